package l2

import (
	"math/big"

	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"github.com/ethereum-optimism/fault-proof-core/op-node/rollup"
)

// opChainConfig builds the params.ChainConfig go-ethereum's EVM and EIP-1559/4844 helpers need,
// translating the rollup's OP-stack fork schedule into go-ethereum's own fork fields. L2 blocks
// are always post-merge, so every pre-merge fork block is pinned to genesis; Canyon maps onto
// Shanghai, Ecotone onto Cancun, and Isthmus onto Prague, matching how op-geth's derivation layer
// aligns the L1 execution-spec forks to their OP Stack counterparts.
func opChainConfig(cfg *rollup.Config, chainID *big.Int) *params.ChainConfig {
	zero := big.NewInt(0)
	return &params.ChainConfig{
		ChainID:                 chainID,
		HomesteadBlock:          zero,
		EIP150Block:             zero,
		EIP155Block:             zero,
		EIP158Block:             zero,
		ByzantiumBlock:          zero,
		ConstantinopleBlock:     zero,
		PetersburgBlock:         zero,
		IstanbulBlock:           zero,
		MuirGlacierBlock:        zero,
		BerlinBlock:             zero,
		LondonBlock:             zero,
		ArrowGlacierBlock:       zero,
		GrayGlacierBlock:        zero,
		MergeNetsplitBlock:      zero,
		TerminalTotalDifficulty: zero,
		ShanghaiTime:            cfg.CanyonTime,
		CancunTime:              cfg.EcotoneTime,
		PragueTime:              cfg.IsthmusTime,
		RegolithTime:            cfg.RegolithTime,
		CanyonTime:              cfg.CanyonTime,
		DeltaTime:               cfg.DeltaTime,
		EcotoneTime:             cfg.EcotoneTime,
		FjordTime:               cfg.FjordTime,
		GraniteTime:             cfg.GraniteTime,
		HoloceneTime:            cfg.HoloceneTime,
		IsthmusTime:             cfg.IsthmusTime,
		InteropTime:             cfg.InteropTime,
	}
}

func uint256FromBig(v *big.Int) (*uint256.Int, bool) {
	return uint256.FromBig(v)
}

func mustUint256(v *big.Int) *uint256.Int {
	u, overflow := uint256.FromBig(v)
	if overflow {
		panic("l2: value overflows uint256")
	}
	return u
}
