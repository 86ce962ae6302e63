package l2

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus/misc/eip1559"
	"github.com/ethereum/go-ethereum/consensus/misc/eip4844"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"

	"github.com/ethereum-optimism/fault-proof-core/op-node/rollup"
	"github.com/ethereum-optimism/fault-proof-core/op-node/rollup/derive"
	"github.com/ethereum-optimism/fault-proof-core/op-service/eth"
	"github.com/ethereum-optimism/fault-proof-core/op-service/predeploys"
)

func NewCriticalError(err error) error { return derive.NewCriticalError(err) }

// coinbase is the fixed block-builder address every OP Stack block attributes to (spec §4.9 step
// 1).
var coinbase = common.HexToAddress("0x4200000000000000000000000000000000000011")

// sha256EmptyHash is sha256("") — the well-known requests_hash value post-Isthmus, since this
// chain never produces EIP-7685 execution-layer requests (spec §4.9 step 5).
var sha256EmptyHash = common.HexToHash("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")

// Executor is C13: replays one payload's transactions against a trie-backed StateDB and seals
// the resulting header (spec §4.9).
type Executor struct {
	log       log.Logger
	cfg       *rollup.Config
	chainID   *big.Int
	vmConfig  vm.Config
}

func NewExecutor(log log.Logger, cfg *rollup.Config, chainID *big.Int) *Executor {
	return &Executor{log: log, cfg: cfg, chainID: chainID}
}

// ExecutePayload runs the full per-payload pipeline of spec §4.9 and returns the sealed header.
func (e *Executor) ExecutePayload(db *StateDB, parent *types.Header, attrs *eth.PayloadAttributes) (*types.Header, error) {
	timestamp := uint64(attrs.Timestamp)
	header := e.blockEnv(parent, attrs, timestamp)

	blockCtx := e.blockContext(db, header)

	if e.cfg.IsEcotone(timestamp) && attrs.ParentBeaconBlockRoot != nil {
		if err := e.runBeaconRootsUpdate(db, blockCtx, *attrs.ParentBeaconBlockRoot); err != nil {
			return nil, NewCriticalError(fmt.Errorf("pre-block EIP-4788 call failed: %w", err))
		}
	}

	if e.cfg.IsCanyonActivationBlock(timestamp) {
		e.ensureCreate2Deployer(db)
	}

	var (
		txs        types.Transactions
		receipts   types.Receipts
		cumulative uint64
		bloom      types.Bloom
	)

	gasPool := new(core.GasPool).AddGas(header.GasLimit)
	for i, rawTx := range attrs.Transactions {
		var tx types.Transaction
		if err := tx.UnmarshalBinary(rawTx); err != nil {
			return nil, NewCriticalError(fmt.Errorf("failed to decode transaction %d: %w", i, err))
		}
		if tx.Type() == types.BlobTxType {
			return nil, NewCriticalError(fmt.Errorf("blob transactions are not supported in L2 execution (tx %d)", i))
		}

		isDeposit := tx.IsDepositTx()
		if tx.Gas() > gasPool.Gas() && !(isDeposit && !e.cfg.IsRegolith(timestamp)) {
			return nil, NewCriticalError(fmt.Errorf("transaction %d gas limit %d exceeds remaining block gas %d", i, tx.Gas(), gasPool.Gas()))
		}

		if isDeposit && e.cfg.IsRegolith(timestamp) {
			db.loadAccount(senderOf(&tx))
		}

		msg, err := core.TransactionToMessage(&tx, types.LatestSignerForChainID(e.chainID), header.BaseFee)
		if err != nil {
			return nil, NewCriticalError(fmt.Errorf("failed to build message for transaction %d: %w", i, err))
		}

		txCtx := core.NewEVMTxContext(msg)
		evm := vm.NewEVM(blockCtx, txCtx, db, e.chainConfig(), e.vmConfig)
		db.SetTxContext(tx.Hash(), i)

		rules := e.chainConfig().Rules(header.Number, true, header.Time)
		db.Prepare(rules, msg.From, header.Coinbase, msg.To, evm.ActivePrecompiles(rules), msg.AccessList)

		snap := db.Snapshot()
		result, err := core.ApplyMessage(evm, msg, gasPool)
		if err != nil {
			db.RevertToSnapshot(snap)
			return nil, NewCriticalError(fmt.Errorf("execution of transaction %d failed: %w", i, err))
		}

		cumulative += result.UsedGas
		receipt := e.buildReceipt(db, &tx, result, cumulative, isDeposit, timestamp)
		txs = append(txs, &tx)
		receipts = append(receipts, receipt)
		bloom.Add(receipt.Bloom.Bytes())
	}

	header.GasUsed = cumulative
	header.Bloom = bloom

	txRoot, err := rootOfEncodedList(txs, func(t *types.Transaction) ([]byte, error) { return t.MarshalBinary() })
	if err != nil {
		return nil, NewCriticalError(fmt.Errorf("failed to compute transactions root: %w", err))
	}
	header.TxHash = txRoot

	receiptRoot, err := rootOfEncodedList(receipts, func(r *types.Receipt) ([]byte, error) {
		return encodeReceiptForRoot(r, e.cfg, timestamp)
	})
	if err != nil {
		return nil, NewCriticalError(fmt.Errorf("failed to compute receipts root: %w", err))
	}
	header.ReceiptHash = receiptRoot

	stateRoot, err := db.StateRoot()
	if err != nil {
		return nil, NewCriticalError(fmt.Errorf("failed to compute state root: %w", err))
	}
	header.Root = stateRoot

	if e.cfg.IsIsthmus(timestamp) {
		root := db.GetStorageRoot(predeploys.L2ToL1MessagePasserAddr)
		header.WithdrawalsHash = &root
	} else if e.cfg.IsCanyon(timestamp) {
		empty := types.EmptyRootHash
		header.WithdrawalsHash = &empty
	}

	if e.cfg.IsIsthmus(timestamp) {
		reqHash := sha256EmptyHash
		header.RequestsHash = &reqHash
	}

	if e.cfg.IsHolocene(timestamp) {
		header.Extra = holoceneExtraData(attrs.EIP1559Params, e.cfg, timestamp)
	}

	blockHash := header.Hash()
	logIndex := uint(0)
	for i, receipt := range receipts {
		receipt.BlockHash = blockHash
		receipt.BlockNumber = header.Number
		receipt.TransactionIndex = uint(i)
		for _, l := range receipt.Logs {
			l.BlockHash = blockHash
			l.BlockNumber = header.Number.Uint64()
			l.TxIndex = uint(i)
			l.Index = logIndex
			logIndex++
		}
	}

	return header, nil
}

// senderOf recovers a transaction's sender address. For deposit transactions this is the
// explicit, unsigned `from` field; go-ethereum's Sender helper special-cases that before
// consulting the signer at all, so any signer works here.
func senderOf(tx *types.Transaction) common.Address {
	signer := types.NewLondonSigner(tx.ChainId())
	addr, err := types.Sender(signer, tx)
	if err != nil {
		from := tx.To()
		if from != nil {
			return *from
		}
		return common.Address{}
	}
	return addr
}

// blockEnv derives the new header's environment fields from the payload, parent, and active
// forks (spec §4.9 step 1).
func (e *Executor) blockEnv(parent *types.Header, attrs *eth.PayloadAttributes, timestamp uint64) *types.Header {
	h := &types.Header{
		ParentHash: parent.Hash(),
		Coinbase:   coinbase,
		Difficulty: new(big.Int),
		Number:     new(big.Int).Add(parent.Number, common.Big1),
		GasLimit:   uint64(*attrs.GasLimit),
		Time:       timestamp,
		MixDigest:  attrs.PrevRandao,
	}
	h.BaseFee = e.nextBlockBaseFee(parent, attrs, timestamp)
	if e.cfg.IsEcotone(timestamp) {
		var excess uint64
		if e.cfg.IsEcotone(parent.Time) {
			excess = eip4844.CalcExcessBlobGas(e.chainConfig(), parent, timestamp)
		}
		used := uint64(0)
		h.ExcessBlobGas = &excess
		h.BlobGasUsed = &used
	}
	if e.cfg.IsEcotone(timestamp) {
		h.ParentBeaconRoot = attrs.ParentBeaconBlockRoot
	}
	return h
}

// nextBlockBaseFee implements the fork-aware EIP-1559 parent->child base-fee step (spec §4.9
// step 1). Pre-Holocene this is go-ethereum's standard London calculation; post-Holocene the
// payload's own denominator/elasticity override (or the chain defaults, if it encodes zeros)
// replaces the chain-wide constants op-geth's misc.CalcBaseFee would otherwise use.
func (e *Executor) nextBlockBaseFee(parent *types.Header, attrs *eth.PayloadAttributes, timestamp uint64) *big.Int {
	if e.cfg.IsHolocene(timestamp) {
		denom, elasticity := decodeEIP1559Params(attrs.EIP1559Params, e.cfg, timestamp)
		return eip1559NextBaseFee(parent, denom, elasticity)
	}
	return eip1559.CalcBaseFee(e.chainConfig(), parent)
}

func (e *Executor) blockContext(db *StateDB, header *types.Header) vm.BlockContext {
	return vm.BlockContext{
		CanTransfer: func(sd vm.StateDB, addr common.Address, amount *big.Int) bool {
			return sd.GetBalance(addr).ToBig().Cmp(amount) >= 0
		},
		Transfer: func(sd vm.StateDB, from, to common.Address, amount *big.Int) {
			u, _ := uint256FromBig(amount)
			sd.SubBalance(from, u, 0)
			sd.AddBalance(to, u, 0)
		},
		GetHash: func(n uint64) common.Hash {
			h, err := db.BlockHash(n)
			if err != nil {
				panic(err)
			}
			return h
		},
		Coinbase:    header.Coinbase,
		BlockNumber: header.Number,
		Time:        header.Time,
		Difficulty:  new(big.Int),
		GasLimit:    header.GasLimit,
		BaseFee:     header.BaseFee,
		Random:      &header.MixDigest,
	}
}

func (e *Executor) chainConfig() *params.ChainConfig {
	return opChainConfig(e.cfg, e.chainID)
}

// runBeaconRootsUpdate invokes the EIP-4788 beacon-roots contract as a pre-block system call
// (spec §4.9 step 2).
func (e *Executor) runBeaconRootsUpdate(db *StateDB, blockCtx vm.BlockContext, root common.Hash) error {
	msg := &core.Message{
		From:      params.SystemAddress,
		To:        &params.BeaconRootsAddress,
		GasLimit:  30_000_000,
		GasPrice:  new(big.Int),
		GasFeeCap: new(big.Int),
		GasTipCap: new(big.Int),
		Value:     new(big.Int),
		Data:      root.Bytes(),
	}
	txCtx := core.NewEVMTxContext(msg)
	evm := vm.NewEVM(blockCtx, txCtx, db, e.chainConfig(), e.vmConfig)
	db.AddBalance(params.SystemAddress, mustUint256(new(big.Int)), 0)
	_, err := core.ApplyMessage(evm, msg, new(core.GasPool).AddGas(30_000_000))
	return err
}

// ensureCreate2Deployer implements spec §4.9 step 3: the Canyon-activating block must have the
// Create2Deployer contract code deployed. The runtime code is content-addressed by its
// well-known hash, so injection only needs to point the account at that hash — the bytes
// themselves resolve lazily through the preimage oracle like any other code fetch.
func (e *Executor) ensureCreate2Deployer(db *StateDB) {
	st := db.loadAccount(predeploys.Create2DeployerAddr)
	if common.BytesToHash(st.acc.CodeHash) == predeploys.Create2DeployerCodeHash {
		return
	}
	st.exists = true
	st.acc.CodeHash = predeploys.Create2DeployerCodeHash[:]
	st.code = nil
}

// ComputeOutputRoot implements spec §3's output-root invariant / §4.9's compute_output_root:
// version 0 || state_root || message_passer_storage_root || latest_block_hash.
func (e *Executor) ComputeOutputRoot(db *StateDB, header *types.Header) common.Hash {
	messagePasserRoot := db.GetStorageRoot(predeploys.L2ToL1MessagePasserAddr)
	var buf [128]byte
	copy(buf[32:64], header.Root[:])
	copy(buf[64:96], messagePasserRoot[:])
	copy(buf[96:128], header.Hash().Bytes())
	return crypto.Keccak256Hash(buf[:])
}
