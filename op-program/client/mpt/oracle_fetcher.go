package mpt

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/ethereum-optimism/fault-proof-core/op-preimage"
)

// OracleFetcher adapts the C3 preimage oracle into the Fetcher/Hinter surface this engine needs,
// addressing trie-node preimages by their keccak256 commitment (spec §4.3 Keccak256 domain).
type OracleFetcher struct {
	Oracle preimage.Oracle
	Hint   preimage.Hinter
}

func (f OracleFetcher) TrieNodePreimage(commitment common.Hash) ([]byte, error) {
	return f.Oracle.Get(preimage.Keccak256Key(commitment)), nil
}

func (f OracleFetcher) HintTrieNode(commitment common.Hash) {
	if f.Hint == nil {
		return
	}
	f.Hint.Hint(preimage.Hint{Type: preimage.HintL2StateNode, Payload: commitment[:]})
}
