package l2

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/ethereum-optimism/fault-proof-core/op-program/client/mpt"
)

// rootOfEncodedList computes the MPT root of an ordered list keyed by its RLP-encoded index, the
// construction Ethereum uses for both the transactions root and the receipts root (spec §4.9
// step 5). The trie is built entirely in memory; no preimage fetches are needed since every node
// inserted here originates locally.
func rootOfEncodedList[T any](items []T, encode func(T) ([]byte, error)) (common.Hash, error) {
	var root mpt.TrieNode
	noopFetcher := localOnlyFetcher{}
	for i, item := range items {
		key, err := rlp.EncodeToBytes(uint64(i))
		if err != nil {
			return common.Hash{}, err
		}
		value, err := encode(item)
		if err != nil {
			return common.Hash{}, err
		}
		if err := root.Insert(mpt.Unpack(key), value, noopFetcher); err != nil {
			return common.Hash{}, err
		}
	}
	return root.RootHash()
}

// localOnlyFetcher aborts the program via log.Crit if asked to resolve a blinded node; rootOfEncodedList only ever builds
// a fresh trie from locally-known items, so no blinded node should ever appear in it.
type localOnlyFetcher struct{}

func (localOnlyFetcher) TrieNodePreimage(commitment common.Hash) ([]byte, error) {
	log.Crit("rootOfEncodedList: unexpected blinded node in a freshly built trie", "commitment", commitment)
	return nil, nil
}
