package derive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ethereum-optimism/fault-proof-core/op-node/rollup"
	"github.com/ethereum-optimism/fault-proof-core/op-service/eth"
	"github.com/ethereum-optimism/fault-proof-core/op-service/predeploys"
	"github.com/ethereum-optimism/fault-proof-core/op-service/solabi"
)

const (
	L1InfoFuncBedrockSignature = "setL1BlockValues(uint64,uint64,uint256,bytes32,uint64,bytes32,uint256,uint256)"
	L1InfoFuncEcotoneSignature = "setL1BlockValuesEcotone()"
	L1InfoFuncIsthmusSignature = "setL1BlockValuesIsthmus()"
)

var (
	L1InfoFuncBedrockBytes4 = crypto.Keccak256([]byte(L1InfoFuncBedrockSignature))[:4]
	L1InfoFuncEcotoneBytes4 = crypto.Keccak256([]byte(L1InfoFuncEcotoneSignature))[:4]
	L1InfoFuncIsthmusBytes4 = crypto.Keccak256([]byte(L1InfoFuncIsthmusSignature))[:4]
	L1InfoDepositerAddress  = common.HexToAddress("0xdeaddeaddeaddeaddeaddeaddeaddeaddead0001")
	L1BlockAddress          = predeploys.L1BlockAddr
)

const RegolithSystemTxGas = 1_000_000

// L1BlockInfo is the decoded form of an L1-info attributes transaction's calldata (spec §4.7
// step 5 / §4.10 C14). Not every field is populated in every fork's layout.
type L1BlockInfo struct {
	Number    uint64
	Time      uint64
	BaseFee   *big.Int
	BlockHash common.Hash

	// SequenceNumber counts L2 blocks since the start of the current epoch.
	SequenceNumber uint64
	BatcherAddr    common.Address

	L1FeeOverhead eth.Bytes32 // ignored from Ecotone onward
	L1FeeScalar   eth.Bytes32 // ignored from Ecotone onward

	BlobBaseFee       *big.Int // added by Ecotone
	BaseFeeScalar     uint32   // added by Ecotone
	BlobBaseFeeScalar uint32   // added by Ecotone

	OperatorFeeScalar   uint32 // added by Isthmus
	OperatorFeeConstant uint64 // added by Isthmus
}

// Bedrock binary format (260 bytes total): selector || number || time || base_fee || block_hash || seq_num || batcher_addr ||
// l1_fee_overhead || l1_fee_scalar (spec §4.7 step 5).
func (info *L1BlockInfo) marshalBinaryBedrock() ([]byte, error) {
	w := new(bytes.Buffer)
	if err := solabi.WriteSignature(w, L1InfoFuncBedrockBytes4); err != nil {
		return nil, err
	}
	if err := solabi.WriteUint64(w, info.Number); err != nil {
		return nil, err
	}
	if err := solabi.WriteUint64(w, info.Time); err != nil {
		return nil, err
	}
	if err := solabi.WriteUint256(w, info.BaseFee); err != nil {
		return nil, err
	}
	if err := solabi.WriteHash(w, info.BlockHash); err != nil {
		return nil, err
	}
	if err := solabi.WriteUint64(w, info.SequenceNumber); err != nil {
		return nil, err
	}
	if err := solabi.WriteAddress(w, info.BatcherAddr); err != nil {
		return nil, err
	}
	if err := solabi.WriteEthBytes32(w, info.L1FeeOverhead); err != nil {
		return nil, err
	}
	if err := solabi.WriteEthBytes32(w, info.L1FeeScalar); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func (info *L1BlockInfo) unmarshalBinaryBedrock(data []byte) error {
	r := bytes.NewReader(data)
	var err error
	if _, err = solabi.ReadAndValidateSignature(r, L1InfoFuncBedrockBytes4); err != nil {
		return err
	}
	if info.Number, err = solabi.ReadUint64(r); err != nil {
		return err
	}
	if info.Time, err = solabi.ReadUint64(r); err != nil {
		return err
	}
	if info.BaseFee, err = solabi.ReadUint256(r); err != nil {
		return err
	}
	if info.BlockHash, err = solabi.ReadHash(r); err != nil {
		return err
	}
	if info.SequenceNumber, err = solabi.ReadUint64(r); err != nil {
		return err
	}
	if info.BatcherAddr, err = solabi.ReadAddress(r); err != nil {
		return err
	}
	if info.L1FeeOverhead, err = solabi.ReadEthBytes32(r); err != nil {
		return err
	}
	if info.L1FeeScalar, err = solabi.ReadEthBytes32(r); err != nil {
		return err
	}
	if !solabi.EmptyReader(r) {
		return errors.New("too many bytes")
	}
	return nil
}

// Ecotone binary format (164 bytes total): selector || base_fee_scalar(u32) ||
// blob_base_fee_scalar(u32) || seq_num(u64) || time(u64) || number(u64) || base_fee(u256) ||
// blob_base_fee(u256) || block_hash(32) || batcher_addr(left-padded 32) (spec §4.7 step 5).
func (info *L1BlockInfo) marshalBinaryEcotone() ([]byte, error) {
	w := new(bytes.Buffer)
	if err := solabi.WriteSignature(w, L1InfoFuncEcotoneBytes4); err != nil {
		return nil, err
	}
	if err := binary.Write(w, binary.BigEndian, info.BaseFeeScalar); err != nil {
		return nil, err
	}
	if err := binary.Write(w, binary.BigEndian, info.BlobBaseFeeScalar); err != nil {
		return nil, err
	}
	if err := binary.Write(w, binary.BigEndian, info.SequenceNumber); err != nil {
		return nil, err
	}
	if err := binary.Write(w, binary.BigEndian, info.Time); err != nil {
		return nil, err
	}
	if err := binary.Write(w, binary.BigEndian, info.Number); err != nil {
		return nil, err
	}
	if err := solabi.WriteUint256(w, info.BaseFee); err != nil {
		return nil, err
	}
	blobBaseFee := info.BlobBaseFee
	if blobBaseFee == nil {
		blobBaseFee = big.NewInt(1) // EIP-4844 MIN_BLOB_GASPRICE fallback
	}
	if err := solabi.WriteUint256(w, blobBaseFee); err != nil {
		return nil, err
	}
	if err := solabi.WriteHash(w, info.BlockHash); err != nil {
		return nil, err
	}
	if err := solabi.WriteAddress(w, info.BatcherAddr); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func (info *L1BlockInfo) unmarshalBinaryEcotone(data []byte) error {
	r := bytes.NewReader(data)
	var err error
	if _, err = solabi.ReadAndValidateSignature(r, L1InfoFuncEcotoneBytes4); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &info.BaseFeeScalar); err != nil {
		return fmt.Errorf("invalid ecotone l1 block info format: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &info.BlobBaseFeeScalar); err != nil {
		return fmt.Errorf("invalid ecotone l1 block info format: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &info.SequenceNumber); err != nil {
		return fmt.Errorf("invalid ecotone l1 block info format: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &info.Time); err != nil {
		return fmt.Errorf("invalid ecotone l1 block info format: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &info.Number); err != nil {
		return fmt.Errorf("invalid ecotone l1 block info format: %w", err)
	}
	if info.BaseFee, err = solabi.ReadUint256(r); err != nil {
		return err
	}
	if info.BlobBaseFee, err = solabi.ReadUint256(r); err != nil {
		return err
	}
	if info.BlockHash, err = solabi.ReadHash(r); err != nil {
		return err
	}
	if info.BatcherAddr, err = solabi.ReadAddress(r); err != nil {
		return err
	}
	if !solabi.EmptyReader(r) {
		return errors.New("too many bytes")
	}
	return nil
}

// Isthmus binary format: the Ecotone layout plus an operator_fee_scalar(u32) ||
// operator_fee_constant(u64) suffix (spec §4.7 step 5).
func (info *L1BlockInfo) marshalBinaryIsthmus() ([]byte, error) {
	w := new(bytes.Buffer)
	if err := solabi.WriteSignature(w, L1InfoFuncIsthmusBytes4); err != nil {
		return nil, err
	}
	if err := binary.Write(w, binary.BigEndian, info.BaseFeeScalar); err != nil {
		return nil, err
	}
	if err := binary.Write(w, binary.BigEndian, info.BlobBaseFeeScalar); err != nil {
		return nil, err
	}
	if err := binary.Write(w, binary.BigEndian, info.SequenceNumber); err != nil {
		return nil, err
	}
	if err := binary.Write(w, binary.BigEndian, info.Time); err != nil {
		return nil, err
	}
	if err := binary.Write(w, binary.BigEndian, info.Number); err != nil {
		return nil, err
	}
	if err := solabi.WriteUint256(w, info.BaseFee); err != nil {
		return nil, err
	}
	blobBaseFee := info.BlobBaseFee
	if blobBaseFee == nil {
		blobBaseFee = big.NewInt(1)
	}
	if err := solabi.WriteUint256(w, blobBaseFee); err != nil {
		return nil, err
	}
	if err := solabi.WriteHash(w, info.BlockHash); err != nil {
		return nil, err
	}
	if err := solabi.WriteAddress(w, info.BatcherAddr); err != nil {
		return nil, err
	}
	if err := binary.Write(w, binary.BigEndian, info.OperatorFeeScalar); err != nil {
		return nil, err
	}
	if err := binary.Write(w, binary.BigEndian, info.OperatorFeeConstant); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func (info *L1BlockInfo) unmarshalBinaryIsthmus(data []byte) error {
	r := bytes.NewReader(data)
	var err error
	if _, err = solabi.ReadAndValidateSignature(r, L1InfoFuncIsthmusBytes4); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &info.BaseFeeScalar); err != nil {
		return fmt.Errorf("invalid isthmus l1 block info format: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &info.BlobBaseFeeScalar); err != nil {
		return fmt.Errorf("invalid isthmus l1 block info format: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &info.SequenceNumber); err != nil {
		return fmt.Errorf("invalid isthmus l1 block info format: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &info.Time); err != nil {
		return fmt.Errorf("invalid isthmus l1 block info format: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &info.Number); err != nil {
		return fmt.Errorf("invalid isthmus l1 block info format: %w", err)
	}
	if info.BaseFee, err = solabi.ReadUint256(r); err != nil {
		return err
	}
	if info.BlobBaseFee, err = solabi.ReadUint256(r); err != nil {
		return err
	}
	if info.BlockHash, err = solabi.ReadHash(r); err != nil {
		return err
	}
	if info.BatcherAddr, err = solabi.ReadAddress(r); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &info.OperatorFeeScalar); err != nil {
		return fmt.Errorf("invalid isthmus l1 block info format: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &info.OperatorFeeConstant); err != nil {
		return fmt.Errorf("invalid isthmus l1 block info format: %w", err)
	}
	if !solabi.EmptyReader(r) {
		return errors.New("too many bytes")
	}
	return nil
}

// L1BlockInfoFromBytes is the inverse of L1InfoDeposit, dispatching on the active fork at the
// L2 block's timestamp (spec §4.7 step 5 / §4.10).
func L1BlockInfoFromBytes(rollupCfg *rollup.Config, l2BlockTime uint64, data []byte) (*L1BlockInfo, error) {
	var info L1BlockInfo
	switch {
	case rollupCfg.IsIsthmus(l2BlockTime) && !rollupCfg.IsIsthmusActivationBlock(l2BlockTime):
		return &info, info.unmarshalBinaryIsthmus(data)
	case rollupCfg.IsEcotone(l2BlockTime) && !rollupCfg.IsEcotoneActivationBlock(l2BlockTime):
		return &info, info.unmarshalBinaryEcotone(data)
	default:
		return &info, info.unmarshalBinaryBedrock(data)
	}
}

// L1InfoDeposit builds the L1-info attributes transaction (C14) for the given epoch block and
// L2 sequence number (spec §4.7 step 5).
func L1InfoDeposit(rollupCfg *rollup.Config, sysCfg eth.SystemConfig, seqNumber uint64, block eth.BlockInfo, l2BlockTime uint64) (*types.DepositTx, error) {
	l1BlockInfo := L1BlockInfo{
		Number:         block.NumberU64(),
		Time:           block.Time(),
		BaseFee:        block.BaseFee(),
		BlockHash:      block.Hash(),
		SequenceNumber: seqNumber,
		BatcherAddr:    sysCfg.BatcherAddr,
	}

	var data []byte
	switch {
	case rollupCfg.IsIsthmus(l2BlockTime) && !rollupCfg.IsIsthmusActivationBlock(l2BlockTime):
		l1BlockInfo.BlobBaseFee = block.BlobBaseFee()
		if l1BlockInfo.BlobBaseFee == nil {
			l1BlockInfo.BlobBaseFee = big.NewInt(1)
		}
		blobBaseFeeScalar, baseFeeScalar, err := sysCfg.EcotoneScalars()
		if err != nil {
			return nil, err
		}
		l1BlockInfo.BlobBaseFeeScalar = blobBaseFeeScalar
		l1BlockInfo.BaseFeeScalar = baseFeeScalar
		if sysCfg.OperatorFeeScalar != nil {
			l1BlockInfo.OperatorFeeScalar = *sysCfg.OperatorFeeScalar
		}
		if sysCfg.OperatorFeeConstant != nil {
			l1BlockInfo.OperatorFeeConstant = *sysCfg.OperatorFeeConstant
		}
		out, err := l1BlockInfo.marshalBinaryIsthmus()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal Isthmus l1 block info: %w", err)
		}
		data = out
	case rollupCfg.IsEcotone(l2BlockTime) && !rollupCfg.IsEcotoneActivationBlock(l2BlockTime):
		l1BlockInfo.BlobBaseFee = block.BlobBaseFee()
		if l1BlockInfo.BlobBaseFee == nil {
			l1BlockInfo.BlobBaseFee = big.NewInt(1)
		}
		blobBaseFeeScalar, baseFeeScalar, err := sysCfg.EcotoneScalars()
		if err != nil {
			return nil, err
		}
		l1BlockInfo.BlobBaseFeeScalar = blobBaseFeeScalar
		l1BlockInfo.BaseFeeScalar = baseFeeScalar
		out, err := l1BlockInfo.marshalBinaryEcotone()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal Ecotone l1 block info: %w", err)
		}
		data = out
	default:
		l1BlockInfo.L1FeeOverhead = sysCfg.Overhead
		l1BlockInfo.L1FeeScalar = sysCfg.Scalar
		out, err := l1BlockInfo.marshalBinaryBedrock()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal Bedrock l1 block info: %w", err)
		}
		data = out
	}

	source := L1InfoDepositSource{L1BlockHash: block.Hash(), SeqNumber: seqNumber}
	out := &types.DepositTx{
		SourceHash:          source.SourceHash(),
		From:                L1InfoDepositerAddress,
		To:                  &L1BlockAddress,
		Mint:                nil,
		Value:               big.NewInt(0),
		Gas:                 150_000_000,
		IsSystemTransaction: true,
		Data:                data,
	}
	if rollupCfg.IsRegolith(l2BlockTime) {
		out.IsSystemTransaction = false
		out.Gas = RegolithSystemTxGas
	}
	return out, nil
}

// L1InfoDepositBytes returns the L1-info transaction in its serialized EIP-2718 envelope form.
func L1InfoDepositBytes(rollupCfg *rollup.Config, sysCfg eth.SystemConfig, seqNumber uint64, l1Info eth.BlockInfo, l2BlockTime uint64) ([]byte, error) {
	dep, err := L1InfoDeposit(rollupCfg, sysCfg, seqNumber, l1Info, l2BlockTime)
	if err != nil {
		return nil, fmt.Errorf("failed to create L1 info tx: %w", err)
	}
	l1Tx := types.NewTx(dep)
	opaqueL1Tx, err := l1Tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode L1 info tx: %w", err)
	}
	return opaqueL1Tx, nil
}
