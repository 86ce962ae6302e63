package l2

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/ethereum-optimism/fault-proof-core/op-preimage"
	"github.com/ethereum-optimism/fault-proof-core/op-program/client/mpt"
)

var emptyCodeHashValue = crypto.Keccak256Hash(nil)

// accountState is the in-memory overlay for one touched account: its decoded trie leaf plus any
// storage slots read or written this block, matching kona's db/mod.rs per-account cache.
type accountState struct {
	loaded      bool
	exists      bool
	acc         trieAccount
	code        []byte
	storageRoot *mpt.TrieNode // lazily opened sub-trie, keyed by keccak256(slot)

	storage map[common.Hash]common.Hash // overlay: committed-or-dirty current values
	dirty   map[common.Hash]bool
	selfDestructed bool
	createdThisTx  bool
}

// snapshot is a deep-enough copy of the dirty overlay to support RevertToSnapshot without
// re-walking the trie.
type snapshot struct {
	accounts map[common.Address]accountState
	refund   uint64
	logs     []*types.Log
}

// StateDB is C2: the EVM's account/storage/code/blockhash view backed entirely by C1 trie nodes
// resolved through the C3 preimage oracle (spec §4.2).
type StateDB struct {
	log    log.Logger
	oracle preimage.Oracle
	hint   preimage.Hinter

	root         mpt.TrieNode
	parentHeader *types.Header

	accounts map[common.Address]*accountState
	touched  map[common.Address]bool

	refund    uint64
	logs      []*types.Log
	accessAddrs map[common.Address]bool
	accessSlots map[common.Address]map[common.Hash]bool
	transientStorage map[common.Address]map[common.Hash]common.Hash

	currentTxHash  common.Hash
	currentTxIndex int

	snapshots []snapshot
}

func NewStateDB(log log.Logger, oracle preimage.Oracle, hint preimage.Hinter, stateRoot common.Hash, parentHeader *types.Header) *StateDB {
	return &StateDB{
		log:              log,
		oracle:           oracle,
		hint:             hint,
		root:             mpt.NewBlinded(stateRoot),
		parentHeader:     parentHeader,
		accounts:         make(map[common.Address]*accountState),
		touched:          make(map[common.Address]bool),
		accessAddrs:      make(map[common.Address]bool),
		accessSlots:      make(map[common.Address]map[common.Hash]bool),
		transientStorage: make(map[common.Address]map[common.Hash]common.Hash),
	}
}

func (s *StateDB) fetcher() mpt.Fetcher { return mpt.OracleFetcher{Oracle: s.oracle, Hint: s.hint} }

func accountPath(addr common.Address) mpt.Nibbles {
	return mpt.Unpack(crypto.Keccak256(addr.Bytes()))
}

func storageKeyPath(slot common.Hash) mpt.Nibbles {
	return mpt.Unpack(crypto.Keccak256(slot.Bytes()))
}

// loadAccount opens and decodes the account leaf the first time addr is touched (spec §4.2
// "basic(address)").
func (s *StateDB) loadAccount(addr common.Address) *accountState {
	if st, ok := s.accounts[addr]; ok {
		return st
	}
	st := &accountState{storage: make(map[common.Hash]common.Hash), dirty: make(map[common.Hash]bool)}
	raw, found, err := s.root.Open(accountPath(addr), s.fetcher())
	if err != nil {
		panic(fmt.Sprintf("l2: failed to open account %s: %v", addr, err))
	}
	if found {
		var acc trieAccount
		if err := rlp.DecodeBytes(raw, &acc); err != nil {
			panic(fmt.Sprintf("l2: failed to decode account %s: %v", addr, err))
		}
		st.acc = acc
		st.exists = true
		st.storageRoot = storageRootNode(acc.Root)
	} else {
		st.acc = trieAccount{Balance: new(big.Int), CodeHash: emptyCodeHash()}
		st.storageRoot = storageRootNode(types.EmptyRootHash)
	}
	st.loaded = true
	s.accounts[addr] = st
	return st
}

func storageRootNode(root common.Hash) *mpt.TrieNode {
	n := mpt.NewBlinded(root)
	return &n
}

// touch records addr as having been the target of a state-changing operation this block, so
// StateRoot can apply EIP-161 state clearing to it once the block is sealed.
func (s *StateDB) touch(addr common.Address) { s.touched[addr] = true }

func (s *StateDB) CreateAccount(addr common.Address) {
	st := s.loadAccount(addr)
	st.exists = true
	st.createdThisTx = true
	s.touch(addr)
}

func (s *StateDB) CreateContract(addr common.Address) {
	// Code is attached via SetCode; existence is already guaranteed by CreateAccount.
}

func (s *StateDB) SubBalance(addr common.Address, amount *uint256.Int, reason int) *uint256.Int {
	st := s.loadAccount(addr)
	prev := new(big.Int).Set(st.acc.Balance)
	st.acc.Balance.Sub(st.acc.Balance, amount.ToBig())
	s.touch(addr)
	return uint256.MustFromBig(prev)
}

func (s *StateDB) AddBalance(addr common.Address, amount *uint256.Int, reason int) *uint256.Int {
	st := s.loadAccount(addr)
	prev := new(big.Int).Set(st.acc.Balance)
	st.acc.Balance.Add(st.acc.Balance, amount.ToBig())
	st.exists = true
	s.touch(addr)
	return uint256.MustFromBig(prev)
}

func (s *StateDB) GetBalance(addr common.Address) *uint256.Int {
	st := s.loadAccount(addr)
	v, _ := uint256.FromBig(st.acc.Balance)
	return v
}

func (s *StateDB) GetNonce(addr common.Address) uint64 {
	return s.loadAccount(addr).acc.Nonce
}

func (s *StateDB) SetNonce(addr common.Address, nonce uint64, reason int) {
	st := s.loadAccount(addr)
	st.acc.Nonce = nonce
	st.exists = true
	s.touch(addr)
}

func (s *StateDB) GetCodeHash(addr common.Address) common.Hash {
	st := s.loadAccount(addr)
	if !st.exists {
		return common.Hash{}
	}
	return common.BytesToHash(st.acc.CodeHash)
}

func (s *StateDB) GetCode(addr common.Address) []byte {
	st := s.loadAccount(addr)
	if st.code != nil {
		return st.code
	}
	if common.BytesToHash(st.acc.CodeHash) == emptyCodeHashValue || !st.exists {
		return nil
	}
	code := s.oracle.Get(preimage.Keccak256Key(common.BytesToHash(st.acc.CodeHash)))
	st.code = code
	return code
}

func (s *StateDB) SetCode(addr common.Address, code []byte) []byte {
	st := s.loadAccount(addr)
	prev := st.code
	st.code = code
	st.acc.CodeHash = crypto.Keccak256(code)
	st.exists = true
	s.touch(addr)
	return prev
}

func (s *StateDB) GetCodeSize(addr common.Address) int {
	return len(s.GetCode(addr))
}

func (s *StateDB) AddRefund(gas uint64)      { s.refund += gas }
func (s *StateDB) SubRefund(gas uint64) {
	if gas > s.refund {
		panic("l2: refund underflow")
	}
	s.refund -= gas
}
func (s *StateDB) GetRefund() uint64 { return s.refund }

// GetCommittedState returns the slot value as of the start of the current transaction, i.e. the
// trie value unaffected by this transaction's own writes (spec §4.2 "storage(address, slot)").
func (s *StateDB) GetCommittedState(addr common.Address, slot common.Hash) common.Hash {
	return s.openStorage(addr, slot)
}

func (s *StateDB) GetState(addr common.Address, slot common.Hash) common.Hash {
	st := s.loadAccount(addr)
	if v, ok := st.storage[slot]; ok {
		return v
	}
	return s.openStorage(addr, slot)
}

func (s *StateDB) openStorage(addr common.Address, slot common.Hash) common.Hash {
	st := s.loadAccount(addr)
	if s.hint != nil {
		s.hint.Hint(preimage.Hint{Type: preimage.HintL2AccountStorageProof, Payload: append(addr.Bytes(), slot.Bytes()...)})
	}
	raw, found, err := st.storageRoot.Open(storageKeyPath(slot), s.fetcher())
	if err != nil {
		panic(fmt.Sprintf("l2: failed to open storage %s/%s: %v", addr, slot, err))
	}
	if !found {
		return common.Hash{}
	}
	var v big.Int
	if err := rlp.DecodeBytes(raw, &v); err != nil {
		panic(fmt.Sprintf("l2: failed to decode storage value: %v", err))
	}
	return common.BigToHash(&v)
}

func (s *StateDB) SetState(addr common.Address, slot common.Hash, value common.Hash) common.Hash {
	st := s.loadAccount(addr)
	prev := s.GetState(addr, slot)
	st.storage[slot] = value
	st.dirty[slot] = true
	return prev
}

func (s *StateDB) GetStorageRoot(addr common.Address) common.Hash {
	st := s.loadAccount(addr)
	root, ok := st.storageRoot.BlindedCommitment()
	if !ok {
		st.storageRoot.Blind()
		root, _ = st.storageRoot.BlindedCommitment()
	}
	return root
}

func (s *StateDB) GetTransientState(addr common.Address, key common.Hash) common.Hash {
	if m, ok := s.transientStorage[addr]; ok {
		return m[key]
	}
	return common.Hash{}
}

func (s *StateDB) SetTransientState(addr common.Address, key, value common.Hash) {
	m, ok := s.transientStorage[addr]
	if !ok {
		m = make(map[common.Hash]common.Hash)
		s.transientStorage[addr] = m
	}
	m[key] = value
}

func (s *StateDB) SelfDestruct(addr common.Address) uint256.Int {
	st := s.loadAccount(addr)
	prev, _ := uint256.FromBig(st.acc.Balance)
	st.selfDestructed = true
	st.acc.Balance = new(big.Int)
	s.touch(addr)
	return *prev
}

func (s *StateDB) HasSelfDestructed(addr common.Address) bool {
	st := s.loadAccount(addr)
	return st.selfDestructed
}

func (s *StateDB) Selfdestruct6780(addr common.Address) (uint256.Int, bool) {
	st := s.loadAccount(addr)
	if !st.createdThisTx {
		return uint256.Int{}, false
	}
	return s.SelfDestruct(addr), true
}

func (s *StateDB) Exist(addr common.Address) bool {
	return s.loadAccount(addr).exists
}

func (s *StateDB) Empty(addr common.Address) bool {
	return !s.loadAccount(addr).exists || s.loadAccount(addr).isEmpty()
}

// isEmpty reports the EIP-161 "empty account" predicate: zero nonce, zero balance, no code.
func (st *accountState) isEmpty() bool {
	return st.acc.Nonce == 0 && st.acc.Balance.Sign() == 0 && common.BytesToHash(st.acc.CodeHash) == emptyCodeHashValue
}

func (s *StateDB) AddressInAccessList(addr common.Address) bool { return s.accessAddrs[addr] }

func (s *StateDB) SlotInAccessList(addr common.Address, slot common.Hash) (bool, bool) {
	addrPresent := s.accessAddrs[addr]
	slots, ok := s.accessSlots[addr]
	if !ok {
		return addrPresent, false
	}
	return addrPresent, slots[slot]
}

func (s *StateDB) AddAddressToAccessList(addr common.Address) { s.accessAddrs[addr] = true }

func (s *StateDB) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	s.accessAddrs[addr] = true
	slots, ok := s.accessSlots[addr]
	if !ok {
		slots = make(map[common.Hash]bool)
		s.accessSlots[addr] = slots
	}
	slots[slot] = true
}

func (s *StateDB) Prepare(rules params.Rules, sender common.Address, coinbase common.Address, dst *common.Address, precompiles []common.Address, list types.AccessList) {
	s.accessAddrs = make(map[common.Address]bool)
	s.accessSlots = make(map[common.Address]map[common.Hash]bool)
	s.AddAddressToAccessList(sender)
	if dst != nil {
		s.AddAddressToAccessList(*dst)
	}
	for _, addr := range precompiles {
		s.AddAddressToAccessList(addr)
	}
	if rules.IsBerlin {
		s.AddAddressToAccessList(coinbase)
	}
	for _, entry := range list {
		s.AddAddressToAccessList(entry.Address)
		for _, key := range entry.StorageKeys {
			s.AddSlotToAccessList(entry.Address, key)
		}
	}
}

func (s *StateDB) RevertToSnapshot(id int) {
	if id < 0 || id >= len(s.snapshots) {
		panic("l2: invalid snapshot id")
	}
	snap := s.snapshots[id]
	s.accounts = make(map[common.Address]*accountState, len(snap.accounts))
	for addr, st := range snap.accounts {
		copied := st
		s.accounts[addr] = &copied
	}
	s.refund = snap.refund
	s.logs = append([]*types.Log{}, snap.logs...)
	s.snapshots = s.snapshots[:id]
}

// Snapshot deep-copies every account's balance/nonce/code-hash fields and its storage overlay
// (storage and dirty maps are reference types and must not alias the live state), so a later
// RevertToSnapshot genuinely undoes writes made after this point. During execution storageRoot is
// only unblinded or re-blinded in place, which leaves its contents unchanged (only StateRoot, called
// once after the last transaction, writes into it), so sharing that pointer across snapshots is safe.
func (s *StateDB) Snapshot() int {
	accCopy := make(map[common.Address]accountState, len(s.accounts))
	for addr, st := range s.accounts {
		cloned := *st
		cloned.acc.Balance = new(big.Int).Set(st.acc.Balance)
		cloned.acc.CodeHash = append([]byte(nil), st.acc.CodeHash...)
		cloned.storage = make(map[common.Hash]common.Hash, len(st.storage))
		for k, v := range st.storage {
			cloned.storage[k] = v
		}
		cloned.dirty = make(map[common.Hash]bool, len(st.dirty))
		for k, v := range st.dirty {
			cloned.dirty[k] = v
		}
		accCopy[addr] = cloned
	}
	s.snapshots = append(s.snapshots, snapshot{
		accounts: accCopy,
		refund:   s.refund,
		logs:     append([]*types.Log{}, s.logs...),
	})
	return len(s.snapshots) - 1
}

// SetTxContext resets the per-transaction state the EVM expects to start clean: EIP-1153
// transient storage and the "created this transaction" bookkeeping SELFDESTRUCT (EIP-6780) needs,
// and records the transaction identity new logs get stamped with.
func (s *StateDB) SetTxContext(txHash common.Hash, txIndex int) {
	s.transientStorage = make(map[common.Address]map[common.Hash]common.Hash)
	for _, st := range s.accounts {
		st.createdThisTx = false
	}
	s.currentTxHash = txHash
	s.currentTxIndex = txIndex
}

func (s *StateDB) AddLog(l *types.Log) {
	l.TxHash = s.currentTxHash
	l.TxIndex = uint(s.currentTxIndex)
	s.logs = append(s.logs, l)
}

// GetLogs returns the logs emitted by the named transaction. block/blockHash are filled in by the
// caller once the block is sealed, so they aren't used to filter here.
func (s *StateDB) GetLogs(hash common.Hash, block uint64, blockHash common.Hash) []*types.Log {
	var out []*types.Log
	for _, l := range s.logs {
		if l.TxHash == hash {
			out = append(out, l)
		}
	}
	return out
}

// BlockHash implements spec §4.2 "block_hash(n)": zero outside the 256-block EIP-2935 window,
// otherwise walk the parent-header chain by hash until the target number is reached.
func (s *StateDB) BlockHash(n uint64) (common.Hash, error) {
	parentNum := s.parentHeader.Number.Uint64()
	if n > parentNum || parentNum-n > 256 {
		return common.Hash{}, nil
	}
	header := s.parentHeader
	for header.Number.Uint64() != n {
		if s.hint != nil {
			s.hint.Hint(preimage.Hint{Type: preimage.HintL2BlockHeader, Payload: header.ParentHash[:]})
		}
		raw := s.oracle.Get(preimage.Keccak256Key(header.ParentHash))
		var parent types.Header
		if err := rlp.DecodeBytes(raw, &parent); err != nil {
			return common.Hash{}, fmt.Errorf("l2: failed to decode ancestor header: %w", err)
		}
		header = &parent
	}
	return header.Hash(), nil
}
