package l2

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/ethereum-optimism/fault-proof-core/op-program/client/mpt"
)

// StateRoot implements spec §4.2 "state_root(bundle)": applies every touched account's diff to
// the world trie and returns the newly blinded root commitment. Must be called exactly once,
// after the last transaction of the block has executed.
func (s *StateDB) StateRoot() (common.Hash, error) {
	addrs := make([]common.Address, 0, len(s.accounts))
	for addr := range s.accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Hex() < addrs[j].Hex() })

	for _, addr := range addrs {
		st := s.accounts[addr]
		path := accountPath(addr)
		if st.selfDestructed {
			if err := s.root.Delete(path, s.fetcher(), nil); err != nil && err != mpt.ErrKeyNotPresent {
				return common.Hash{}, err
			}
			continue
		}
		// EIP-161 state clearing (active from genesis on this chain, chainconfig.go's
		// EIP158Block: 0): any account touched by a state-changing operation this block that ends
		// up empty is deleted, mirroring go-ethereum's StateDB.Finalise(deleteEmptyObjects).
		if s.touched[addr] && st.isEmpty() {
			if err := s.root.Delete(path, s.fetcher(), nil); err != nil && err != mpt.ErrKeyNotPresent {
				return common.Hash{}, err
			}
			continue
		}
		if !st.exists {
			continue
		}

		dirtySlots := make([]common.Hash, 0, len(st.dirty))
		for slot := range st.dirty {
			dirtySlots = append(dirtySlots, slot)
		}
		sort.Slice(dirtySlots, func(i, j int) bool { return dirtySlots[i].Hex() < dirtySlots[j].Hex() })

		for _, slot := range dirtySlots {
			value := st.storage[slot]
			slotPath := storageKeyPath(slot)
			if value == (common.Hash{}) {
				if err := st.storageRoot.Delete(slotPath, s.fetcher(), nil); err != nil && err != mpt.ErrKeyNotPresent {
					return common.Hash{}, err
				}
				continue
			}
			enc, err := rlp.EncodeToBytes(new(big.Int).SetBytes(value.Bytes()))
			if err != nil {
				return common.Hash{}, err
			}
			if err := st.storageRoot.Insert(slotPath, enc, s.fetcher()); err != nil {
				return common.Hash{}, err
			}
		}
		st.storageRoot.Blind()
		root, _ := st.storageRoot.BlindedCommitment()
		st.acc.Root = root

		enc, err := rlp.EncodeToBytes(&st.acc)
		if err != nil {
			return common.Hash{}, err
		}
		if err := s.root.Insert(path, enc, s.fetcher()); err != nil {
			return common.Hash{}, err
		}
	}

	s.root.Blind()
	// A trie emptied by deletions stays unblinded; RootHash reports it as the empty-trie root.
	return s.root.RootHash()
}
