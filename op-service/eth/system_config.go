package eth

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Bytes32 is a fixed 32-byte value, used for the L1 fee scalar/overhead fields that predate Ecotone.
type Bytes32 [32]byte

// EIP1559Params is the Holocene-activation packed { denominator, elasticity } pair.
type EIP1559Params [8]byte

func (p EIP1559Params) IsZero() bool {
	return p == EIP1559Params{}
}

func (p EIP1559Params) Denominator() uint32 {
	return uint32(p[0])<<24 | uint32(p[1])<<16 | uint32(p[2])<<8 | uint32(p[3])
}

func (p EIP1559Params) Elasticity() uint32 {
	return uint32(p[4])<<24 | uint32(p[5])<<16 | uint32(p[6])<<8 | uint32(p[7])
}

// SystemConfig mirrors spec §3's SystemConfig entity: parameters updated by batcher-emitted L1 logs.
type SystemConfig struct {
	BatcherAddr common.Address `json:"batcherAddr"`
	Overhead    Bytes32        `json:"overhead"`
	Scalar      Bytes32        `json:"scalar"`
	GasLimit    uint64         `json:"gasLimit"`

	// BaseFeeScalar / BlobBaseFeeScalar replace Overhead/Scalar from Ecotone onward.
	BaseFeeScalar     *uint32        `json:"baseFeeScalar,omitempty"`
	BlobBaseFeeScalar *uint32        `json:"blobBaseFeeScalar,omitempty"`
	EIP1559Params     *EIP1559Params `json:"eip1559Params,omitempty"`

	// OperatorFeeScalar / OperatorFeeConstant are added by Isthmus.
	OperatorFeeScalar   *uint32 `json:"operatorFeeScalar,omitempty"`
	OperatorFeeConstant *uint64 `json:"operatorFeeConstant,omitempty"`
}

// EcotoneScalars returns the split (blobBaseFeeScalar, baseFeeScalar) for the Ecotone L1-info tx.
// Without both explicit scalars it falls back to the legacy Scalar field, whose top byte is a
// version tag: version 0 yields the whole value as the base fee scalar and a zero blob base fee
// scalar; any non-zero version byte is rejected, so a two-scalar packed layout is not decoded.
func (c SystemConfig) EcotoneScalars() (blobBaseFeeScalar uint32, baseFeeScalar uint32, err error) {
	if c.BaseFeeScalar != nil && c.BlobBaseFeeScalar != nil {
		return *c.BlobBaseFeeScalar, *c.BaseFeeScalar, nil
	}
	if c.Scalar[0] != 0 {
		return 0, 0, fmt.Errorf("unrecognized scalar version byte %d", c.Scalar[0])
	}
	// Legacy scalar: the whole 32-byte value was the base fee scalar, no blob scalar existed.
	baseFeeScalar = uint32(new(big.Int).SetBytes(c.Scalar[:]).Uint64())
	return 0, baseFeeScalar, nil
}

// UpdateSystemConfigWithL1Receipts scans batcher-inbox-adjacent log events emitted against the
// L1 SystemConfig contract and folds each update into cfg, in log order.
func UpdateSystemConfigWithL1Receipts(cfg *SystemConfig, receipts []*types.Receipt, systemConfigAddr common.Address) error {
	for _, receipt := range receipts {
		if receipt.Status != types.ReceiptStatusSuccessful {
			continue
		}
		for _, log := range receipt.Logs {
			if log.Address != systemConfigAddr {
				continue
			}
			if len(log.Topics) == 0 || log.Topics[0] != ConfigUpdateEventABIHash {
				continue
			}
			if err := processSystemConfigUpdateLogEvent(cfg, log); err != nil {
				return fmt.Errorf("failed to process system config update log: %w", err)
			}
		}
	}
	return nil
}

// ConfigUpdateEventABIHash is `keccak256("ConfigUpdate(uint256,uint8,bytes)")`.
var ConfigUpdateEventABIHash = crypto.Keccak256Hash([]byte("ConfigUpdate(uint256,uint8,bytes)"))

// System-config update "kind" values, matching the real SystemConfig contract's UpdateType enum.
const (
	SystemConfigUpdateBatcher         = uint64(0)
	SystemConfigUpdateGasConfig       = uint64(1)
	SystemConfigUpdateGasLimit        = uint64(2)
	SystemConfigUpdateUnsafeBlockSig  = uint64(3)
	SystemConfigUpdateEIP1559Params   = uint64(4)
	SystemConfigUpdateOperatorFeeConf = uint64(5)
)

func processSystemConfigUpdateLogEvent(cfg *SystemConfig, log *types.Log) error {
	if len(log.Topics) < 3 {
		return fmt.Errorf("expected at least 3 event topics, got %d", len(log.Topics))
	}
	updateType := log.Topics[1].Big().Uint64()
	// log.Data is ABI-encoded as (bytes) with a 32-byte offset, 32-byte length, then payload.
	if len(log.Data) < 64 {
		return fmt.Errorf("system config update event data too short: %d", len(log.Data))
	}
	payload := log.Data[64:]
	switch updateType {
	case SystemConfigUpdateBatcher:
		if len(payload) < 32 {
			return fmt.Errorf("batcher update payload too short")
		}
		cfg.BatcherAddr = common.BytesToAddress(payload[12:32])
	case SystemConfigUpdateGasConfig:
		if len(payload) < 64 {
			return fmt.Errorf("gas-config update payload too short")
		}
		copy(cfg.Overhead[:], payload[:32])
		copy(cfg.Scalar[:], payload[32:64])
		cfg.BaseFeeScalar = nil
		cfg.BlobBaseFeeScalar = nil
	case SystemConfigUpdateGasLimit:
		if len(payload) < 32 {
			return fmt.Errorf("gas-limit update payload too short")
		}
		cfg.GasLimit = new(big.Int).SetBytes(payload[:32]).Uint64()
	case SystemConfigUpdateEIP1559Params:
		if len(payload) < 32 {
			return fmt.Errorf("eip1559-params update payload too short")
		}
		var p EIP1559Params
		copy(p[:], payload[24:32])
		cfg.EIP1559Params = &p
	case SystemConfigUpdateOperatorFeeConf:
		if len(payload) < 32 {
			return fmt.Errorf("operator-fee-config update payload too short")
		}
		scalar := uint32(new(big.Int).SetBytes(payload[:4]).Uint64())
		constant := new(big.Int).SetBytes(payload[4:12]).Uint64()
		cfg.OperatorFeeScalar = &scalar
		cfg.OperatorFeeConstant = &constant
	case SystemConfigUpdateUnsafeBlockSig:
		// Not consulted by the derivation core: the p2p gossip signer address has no bearing on
		// block derivation or execution.
	default:
		return fmt.Errorf("unrecognized system config update type: %d", updateType)
	}
	return nil
}
