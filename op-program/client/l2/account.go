// Package l2 implements C2 (trie-backed state DB) and C13 (stateless block executor): the L2
// side of the program, which replays one payload against a world trie reachable only through
// preimages, and seals the resulting header (spec §4.2, §4.9).
package l2

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// trieAccount is the RLP shape of an account leaf value in the world trie: nonce, balance, storage
// root and code hash, exactly as Ethereum's yellow paper defines it. Field order is part of
// the wire format and must not change.
type trieAccount struct {
	Nonce    uint64
	Balance  *big.Int
	Root     common.Hash // storage trie root
	CodeHash []byte
}

func emptyCodeHash() []byte { return emptyCodeHashValue[:] }
