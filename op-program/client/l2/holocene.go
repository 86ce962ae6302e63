package l2

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ethereum-optimism/fault-proof-core/op-node/rollup"
)

// decodeEIP1559Params reads the Holocene payload override (8 bytes: denominator || elasticity,
// both big-endian u32), falling back to the rollup config's chain-wide params for the given
// timestamp when the payload is absent or encodes all zeros (spec §4.7 step 6, §4.9 step 5).
func decodeEIP1559Params(raw *hexutil.Bytes, cfg *rollup.Config, timestamp uint64) (denominator, elasticity uint32) {
	if raw != nil && len(*raw) == 8 {
		d := binary.BigEndian.Uint32((*raw)[:4])
		e := binary.BigEndian.Uint32((*raw)[4:])
		if d != 0 || e != 0 {
			return d, e
		}
	}
	return cfg.BaseFeeParams(timestamp)
}

// holoceneExtraData implements spec §4.9 step 5's post-Holocene extra_data encoding:
// 0x00 || denominator(u32 BE) || elasticity(u32 BE).
func holoceneExtraData(raw *hexutil.Bytes, cfg *rollup.Config, timestamp uint64) []byte {
	denom, elasticity := decodeEIP1559Params(raw, cfg, timestamp)
	out := make([]byte, 9)
	binary.BigEndian.PutUint32(out[1:5], denom)
	binary.BigEndian.PutUint32(out[5:9], elasticity)
	return out
}

// eip1559NextBaseFee computes the standard EIP-1559 base-fee update using the given (possibly
// Holocene-overridden) denominator and elasticity, matching op-geth's CalcBaseFeeFromParams.
func eip1559NextBaseFee(parent *types.Header, denominator, elasticity uint32) *big.Int {
	if denominator == 0 {
		return new(big.Int).Set(parent.BaseFee)
	}
	parentGasTarget := parent.GasLimit / uint64(elasticity)
	if parent.GasUsed == parentGasTarget {
		return new(big.Int).Set(parent.BaseFee)
	}

	den := big.NewInt(int64(denominator))
	if parent.GasUsed > parentGasTarget {
		gasUsedDelta := new(big.Int).SetUint64(parent.GasUsed - parentGasTarget)
		delta := new(big.Int).Mul(parent.BaseFee, gasUsedDelta)
		delta.Div(delta, new(big.Int).SetUint64(parentGasTarget))
		delta.Div(delta, den)
		if delta.Sign() == 0 {
			delta.SetInt64(1)
		}
		return new(big.Int).Add(parent.BaseFee, delta)
	}

	gasUsedDelta := new(big.Int).SetUint64(parentGasTarget - parent.GasUsed)
	delta := new(big.Int).Mul(parent.BaseFee, gasUsedDelta)
	delta.Div(delta, new(big.Int).SetUint64(parentGasTarget))
	delta.Div(delta, den)
	next := new(big.Int).Sub(parent.BaseFee, delta)
	if next.Sign() < 0 {
		return new(big.Int)
	}
	return next
}
