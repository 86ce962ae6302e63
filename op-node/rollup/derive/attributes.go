package derive

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/fault-proof-core/op-node/rollup"
	"github.com/ethereum-optimism/fault-proof-core/op-service/eth"
	"github.com/ethereum-optimism/fault-proof-core/op-service/predeploys"
)

// L1ReceiptsFetcher resolves L1 headers and their full receipt sets, needed to scan an epoch's
// origin block for deposits and SystemConfig updates (spec §4.7 step 2).
type L1ReceiptsFetcher interface {
	HeaderByHash(blockHash common.Hash) (eth.BlockInfo, error)
	ReceiptsByHash(blockHash common.Hash) ([]*types.Receipt, error)
}

// SystemConfigL2Fetcher resolves the SystemConfig in effect as of a given L2 block (spec §4.7
// step 1).
type SystemConfigL2Fetcher interface {
	SystemConfigByL2Number(number uint64) (eth.SystemConfig, error)
}

// AttributesBuilder is C11: it turns an L2 parent and an L1 epoch origin into the payload
// attributes of the next L2 block, containing only deposits (spec §4.7).
type AttributesBuilder struct {
	log      log.Logger
	cfg      *rollup.Config
	l1       L1ReceiptsFetcher
	l2Config SystemConfigL2Fetcher
}

func NewAttributesBuilder(log log.Logger, cfg *rollup.Config, l1 L1ReceiptsFetcher, l2Config SystemConfigL2Fetcher) *AttributesBuilder {
	return &AttributesBuilder{log: log, cfg: cfg, l1: l1, l2Config: l2Config}
}

// PreparePayloadAttributes implements spec §4.7 steps 1-6: fetch the system config, resolve the
// epoch's deposits and config updates if this is the first L2 block of its epoch, check the L2/L1
// time invariant, append any fork upgrade transactions, and assemble the attributes.
func (ab *AttributesBuilder) PreparePayloadAttributes(l2Parent eth.L2BlockRef, epoch eth.BlockID) (*eth.PayloadAttributes, error) {
	sysConfig, err := ab.l2Config.SystemConfigByL2Number(l2Parent.Number)
	if err != nil {
		return nil, NewResetError(ResetL1OriginMismatch, fmt.Errorf("failed to fetch system config for L2 block %d: %w", l2Parent.Number, err))
	}

	var l1Header eth.BlockInfo
	var depositTxs [][]byte
	var seqNumber uint64

	if l2Parent.L1Origin.Number != epoch.Number {
		// First L2 block of the epoch: scan the full epoch-origin block for deposits and config
		// updates (spec §4.7 step 2).
		header, err := ab.l1.HeaderByHash(epoch.Hash)
		if err != nil {
			return nil, NewTemporaryError(fmt.Errorf("failed to fetch L1 epoch block %s: %w", epoch.Hash, err))
		}
		if l2Parent.L1Origin.Hash != header.ParentHash() {
			return nil, NewResetError(ResetBlockMismatchEpoch, fmt.Errorf("parent's L1 origin %s does not match epoch %s's parent %s", l2Parent.L1Origin.Hash, epoch.Hash, header.ParentHash()))
		}
		receipts, err := ab.l1.ReceiptsByHash(epoch.Hash)
		if err != nil {
			return nil, NewTemporaryError(fmt.Errorf("failed to fetch L1 epoch receipts %s: %w", epoch.Hash, err))
		}
		if err := eth.UpdateSystemConfigWithL1Receipts(&sysConfig, receipts, ab.cfg.L1SystemConfigAddress); err != nil {
			return nil, NewResetError(ResetL1OriginMismatch, fmt.Errorf("failed to update system config with L1 receipts: %w", err))
		}
		deposits, err := ab.deriveDeposits(epoch.Hash, receipts)
		if err != nil {
			return nil, NewCriticalError(fmt.Errorf("failed to derive deposits: %w", err))
		}
		l1Header = header
		depositTxs = deposits
		seqNumber = 0
	} else {
		if l2Parent.L1Origin.Hash != epoch.Hash {
			return nil, NewResetError(ResetBlockMismatch, fmt.Errorf("parent's L1 origin %s does not match continuing epoch %s", l2Parent.L1Origin.Hash, epoch.Hash))
		}
		header, err := ab.l1.HeaderByHash(epoch.Hash)
		if err != nil {
			return nil, NewTemporaryError(fmt.Errorf("failed to fetch L1 epoch block %s: %w", epoch.Hash, err))
		}
		l1Header = header
		seqNumber = l2Parent.SequenceNumber + 1
	}

	nextL2Time := l2Parent.Time + ab.cfg.BlockTime
	if nextL2Time < l1Header.Time() {
		return nil, NewResetError(ResetBrokenTimeInvariant, fmt.Errorf("cannot build L2 block at time %d before its L1 origin %s at time %d", nextL2Time, epoch, l1Header.Time()))
	}

	upgradeTxs, err := ab.upgradeTransactionsFor(nextL2Time, l2Parent.Time)
	if err != nil {
		return nil, NewCriticalError(fmt.Errorf("failed to build fork upgrade transactions: %w", err))
	}

	l1InfoTx, err := L1InfoDepositBytes(ab.cfg, sysConfig, seqNumber, l1Header, nextL2Time)
	if err != nil {
		return nil, NewCriticalError(fmt.Errorf("failed to build L1 info transaction: %w", err))
	}

	rawTxs := make([][]byte, 0, 1+len(depositTxs)+len(upgradeTxs))
	rawTxs = append(rawTxs, l1InfoTx)
	rawTxs = append(rawTxs, depositTxs...)
	rawTxs = append(rawTxs, upgradeTxs...)
	txs := make([]hexutil.Bytes, len(rawTxs))
	for i, raw := range rawTxs {
		txs[i] = raw
	}

	gasLimit := hexutil.Uint64(sysConfig.GasLimit)
	attrs := &eth.PayloadAttributes{
		Timestamp:             hexutil.Uint64(nextL2Time),
		PrevRandao:            l1Header.MixDigest(),
		SuggestedFeeRecipient: predeploys.SequencerFeeVaultAddr,
		Transactions:          txs,
		NoTxPool:              true,
		GasLimit:              &gasLimit,
	}

	if ab.cfg.IsCanyon(nextL2Time) {
		attrs.Withdrawals = &[]struct{}{}
	}
	if ab.cfg.IsEcotone(nextL2Time) {
		root := common.Hash{}
		if pbr := l1Header.ParentBeaconRoot(); pbr != nil {
			root = *pbr
		}
		attrs.ParentBeaconBlockRoot = &root
	}
	if ab.cfg.IsHolocene(nextL2Time) && sysConfig.EIP1559Params != nil && !sysConfig.EIP1559Params.IsZero() {
		params := hexutil.Bytes(sysConfig.EIP1559Params[:])
		attrs.EIP1559Params = &params
	}

	return attrs, nil
}

// deriveDeposits scans an epoch-origin block's receipts for TransactionDeposited logs against the
// configured deposit contract and decodes each into an encoded deposit transaction (spec §4.7
// step 2, §4.8).
func (ab *AttributesBuilder) deriveDeposits(blockHash common.Hash, receipts []*types.Receipt) ([][]byte, error) {
	var out [][]byte
	for _, rec := range receipts {
		if rec.Status != types.ReceiptStatusSuccessful {
			continue
		}
		for _, evLog := range rec.Logs {
			if evLog.Address != ab.cfg.DepositContractAddress {
				continue
			}
			if len(evLog.Topics) == 0 || evLog.Topics[0] != DepositEventABIHash {
				continue
			}
			dep, err := UnmarshalDepositLogEvent(evLog)
			if err != nil {
				return nil, fmt.Errorf("failed to decode deposit log at block %s, log index %d: %w", blockHash, evLog.Index, err)
			}
			encoded, err := types.NewTx(dep).MarshalBinary()
			if err != nil {
				return nil, fmt.Errorf("failed to encode deposit transaction: %w", err)
			}
			out = append(out, encoded)
		}
	}
	return out, nil
}

// upgradeTransactionsFor appends the fixed fork upgrade-transaction sequence (spec §4.7 step 4)
// the moment next_l2_time newly crosses a fork boundary that parent_time had not yet crossed.
func (ab *AttributesBuilder) upgradeTransactionsFor(nextL2Time, parentTime uint64) ([][]byte, error) {
	var out [][]byte
	if ab.cfg.IsEcotone(nextL2Time) && !ab.cfg.IsEcotone(parentTime) {
		txs, err := EcotoneUpgradeTxs()
		if err != nil {
			return nil, err
		}
		out = append(out, txs...)
	}
	if ab.cfg.IsFjord(nextL2Time) && !ab.cfg.IsFjord(parentTime) {
		txs, err := FjordUpgradeTxs()
		if err != nil {
			return nil, err
		}
		out = append(out, txs...)
	}
	if ab.cfg.IsGranite(nextL2Time) && !ab.cfg.IsGranite(parentTime) {
		txs, err := GraniteUpgradeTxs()
		if err != nil {
			return nil, err
		}
		out = append(out, txs...)
	}
	if ab.cfg.IsIsthmus(nextL2Time) && !ab.cfg.IsIsthmus(parentTime) {
		txs, err := IsthmusUpgradeTxs()
		if err != nil {
			return nil, err
		}
		out = append(out, txs...)
	}
	return out, nil
}
