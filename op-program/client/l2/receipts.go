package l2

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/ethereum-optimism/fault-proof-core/op-node/rollup"
)

// buildReceipt assembles one transaction's receipt, attaching the deposit-nonce and
// deposit-receipt-version fields deposit transactions carry post-Regolith/Canyon (spec §4.9
// step 4).
func (e *Executor) buildReceipt(db *StateDB, tx *types.Transaction, result *core.ExecutionResult, cumulativeGasUsed uint64, isDeposit bool, timestamp uint64) *types.Receipt {
	status := types.ReceiptStatusSuccessful
	if result.Failed() {
		status = types.ReceiptStatusFailed
	}

	receipt := &types.Receipt{
		Type:              tx.Type(),
		Status:            status,
		CumulativeGasUsed: cumulativeGasUsed,
		TxHash:            tx.Hash(),
		GasUsed:           result.UsedGas,
		Logs:              db.GetLogs(tx.Hash(), 0, common.Hash{}),
	}
	if to := tx.To(); to == nil {
		receipt.ContractAddress = contractAddressFor(tx)
	}
	receipt.Bloom = types.CreateBloom(types.Receipts{receipt})

	if isDeposit && e.cfg.IsRegolith(timestamp) {
		nonce := db.GetNonce(senderOf(tx))
		// The depositor's nonce was already incremented by ApplyMessage, so the nonce consumed
		// by this deposit is one less than the current value.
		nonce--
		receipt.DepositNonce = &nonce
		if e.cfg.IsCanyon(timestamp) {
			version := uint64(1)
			receipt.DepositReceiptVersion = &version
		}
	}
	return receipt
}

func contractAddressFor(tx *types.Transaction) common.Address {
	from := senderOf(tx)
	data, err := rlp.EncodeToBytes([]interface{}{from, tx.Nonce()})
	if err != nil {
		return common.Address{}
	}
	return common.BytesToAddress(crypto.Keccak256(data)[12:])
}

// encodeReceiptForRoot EIP-2718-encodes a receipt for inclusion in the receipts trie, applying
// the Regolith-era encoding bug compensation: a Regolith receipt's deposit_nonce field must be
// omitted from the RLP that the receipts root is computed over whenever Canyon has not yet
// activated, even though the in-memory receipt carries it (spec §4.9 step 5).
func encodeReceiptForRoot(r *types.Receipt, cfg *rollup.Config, timestamp uint64) ([]byte, error) {
	if r.DepositNonce != nil && cfg.IsRegolith(timestamp) && !cfg.IsCanyon(timestamp) {
		stripped := *r
		stripped.DepositNonce = nil
		stripped.DepositReceiptVersion = nil
		return stripped.MarshalBinary()
	}
	return r.MarshalBinary()
}
