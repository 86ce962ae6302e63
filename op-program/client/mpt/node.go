package mpt

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Compact hex-prefix path-encoding nibble prefixes (spec §4.1).
const (
	prefixExtensionEven = 0x0
	prefixExtensionOdd  = 0x1
	prefixLeafEven      = 0x2
	prefixLeafOdd       = 0x3
)

const branchWidth = 16

// kind discriminates the TrieNode variants; TrieNode itself stays a single Go type (rather than
// an interface per variant) so it can carry its own rlp.Encoder/Decoder, mirroring how the
// upstream Rust TrieNode enum implements one encode/decode pair for all variants.
type kind uint8

const (
	kindEmpty kind = iota
	kindBlinded
	kindLeaf
	kindExtension
	kindBranch
)

// ErrRootNotBlinded reports a root node that is expected to be blinded but is not; BlindedCommitment
// itself signals this with its boolean result.
var ErrRootNotBlinded = errors.New("mpt: root node is not blinded")

// ErrKeyNotPresent is returned by Delete when the given path does not resolve to a leaf.
var ErrKeyNotPresent = errors.New("mpt: key does not exist in trie")

func errRLP(msg string) error { return fmt.Errorf("mpt: rlp error: %s", msg) }

// Fetcher resolves a blinded node's preimage by its keccak256 commitment (spec §4.1 Provider
// failure mode), backed by the C3 preimage oracle in production.
type Fetcher interface {
	TrieNodePreimage(commitment common.Hash) ([]byte, error)
}

// Hinter requests that the host make a blinded node's preimage available before the next Fetcher
// call resolves it (spec §4.1 delete's collapse-time hint).
type Hinter interface {
	HintTrieNode(commitment common.Hash)
}

// TrieNode is a node of a standard Merkle Patricia Trie with uniform key length (spec §4.1). The
// zero value is the Empty node.
type TrieNode struct {
	k kind

	commitment common.Hash // kindBlinded

	prefix Nibbles // kindLeaf, kindExtension
	value  []byte  // kindLeaf
	child  *TrieNode // kindExtension

	stack []TrieNode // kindBranch, always len 16
}

// NewBlinded constructs a TrieNode::Blinded node with the given commitment.
func NewBlinded(commitment common.Hash) TrieNode {
	return TrieNode{k: kindBlinded, commitment: commitment}
}

// BlindedCommitment returns the node's commitment if it is currently blinded.
func (n *TrieNode) BlindedCommitment() (common.Hash, bool) {
	if n.k == kindBlinded {
		return n.commitment, true
	}
	return common.Hash{}, false
}

// Blind replaces n in place with TrieNode::Blinded{keccak256(rlp(n))} if its encoded length is at
// least 32 bytes and it isn't already blinded (spec §4.1).
func (n *TrieNode) Blind() {
	if n.k == kindBlinded {
		return
	}
	enc, err := rlp.EncodeToBytes(n)
	if err != nil {
		// Encoding a well-formed in-memory node never fails; a failure here means the node was
		// built with invalid invariants (e.g. a branch with != 16 children).
		panic(fmt.Sprintf("mpt: failed to encode node for blinding: %v", err))
	}
	if len(enc) < common.HashLength {
		return
	}
	*n = NewBlinded(crypto.Keccak256Hash(enc))
}

func blindedChild(n TrieNode) TrieNode {
	n.Blind()
	return n
}

// RootHash returns keccak256(rlp(n)) unconditionally, even when the encoding is under 32 bytes.
// Ethereum always reports a trie's root as a hash regardless of size, unlike interior node
// references which stay embedded below the 32-byte threshold; Blind alone cannot produce that for
// a small trie, so callers that need a comparable root digest (transactions/receipts roots) use
// this instead.
func (n *TrieNode) RootHash() (common.Hash, error) {
	if n.k == kindEmpty {
		return types.EmptyRootHash, nil
	}
	if n.k == kindBlinded {
		return n.commitment, nil
	}
	enc, err := rlp.EncodeToBytes(n)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// Unblind replaces n with the node decoded from its preimage if n is currently blinded. The
// empty-trie root commitment (types.EmptyRootHash) decodes to the Empty node without a fetch.
func (n *TrieNode) Unblind(fetcher Fetcher) error {
	if n.k != kindBlinded {
		return nil
	}
	if n.commitment == types.EmptyRootHash {
		*n = TrieNode{}
		return nil
	}
	preimage, err := fetcher.TrieNodePreimage(n.commitment)
	if err != nil {
		return fmt.Errorf("mpt: provider error resolving %s: %w", n.commitment, err)
	}
	var decoded TrieNode
	if err := rlp.DecodeBytes(preimage, &decoded); err != nil {
		return fmt.Errorf("mpt: %w", errRLP(err.Error()))
	}
	*n = decoded
	return nil
}

// Open walks down to the leaf at path, unblinding nodes along the way. It returns (value, true)
// on an exact match, (nil, false) if the key is absent.
func (n *TrieNode) Open(path Nibbles, fetcher Fetcher) ([]byte, bool, error) {
	switch n.k {
	case kindEmpty:
		return nil, false, nil
	case kindBlinded:
		if err := n.Unblind(fetcher); err != nil {
			return nil, false, err
		}
		return n.Open(path, fetcher)
	case kindLeaf:
		if bytes.Equal(path, n.prefix) {
			return n.value, true, nil
		}
		return nil, false, nil
	case kindExtension:
		if len(path) < len(n.prefix) || !bytes.Equal(path[:len(n.prefix)], n.prefix) {
			return nil, false, nil
		}
		if err := n.child.Unblind(fetcher); err != nil {
			return nil, false, err
		}
		return n.child.Open(path[len(n.prefix):], fetcher)
	case kindBranch:
		if len(path) == 0 {
			return nil, false, nil
		}
		idx := path[0]
		return n.stack[idx].Open(path[1:], fetcher)
	default:
		return nil, false, fmt.Errorf("mpt: unknown node kind %d", n.k)
	}
}

func newBranchStack() []TrieNode { return make([]TrieNode, branchWidth) }

// Insert writes value at path, restructuring leaves into branches/extensions as needed (spec
// §4.1's four cases).
func (n *TrieNode) Insert(path Nibbles, value []byte, fetcher Fetcher) error {
	switch n.k {
	case kindEmpty:
		*n = TrieNode{k: kindLeaf, prefix: path.clone(), value: value}
		return nil

	case kindLeaf:
		if bytes.Equal(path, n.prefix) {
			n.value = value
			return nil
		}
		shared := commonPrefixLen(path, n.prefix)
		stack := newBranchStack()
		stack[n.prefix[shared]] = TrieNode{k: kindLeaf, prefix: n.prefix[shared+1:].clone(), value: n.value}
		stack[path[shared]] = TrieNode{k: kindLeaf, prefix: path[shared+1:].clone(), value: value}
		branch := TrieNode{k: kindBranch, stack: stack}
		if shared == 0 {
			*n = branch
		} else {
			*n = TrieNode{k: kindExtension, prefix: path[:shared].clone(), child: &branch}
		}
		return nil

	case kindExtension:
		shared := commonPrefixLen(path, n.prefix)
		if shared == len(n.prefix) {
			return n.child.Insert(path[shared:], value, fetcher)
		}
		stack := newBranchStack()
		extNibble := n.prefix[shared]
		rest := n.prefix[shared+1:]
		if len(rest) == 0 {
			stack[extNibble] = *n.child
		} else {
			stack[extNibble] = TrieNode{k: kindExtension, prefix: rest.clone(), child: n.child}
		}
		stack[path[shared]] = TrieNode{k: kindLeaf, prefix: path[shared+1:].clone(), value: value}
		branch := TrieNode{k: kindBranch, stack: stack}
		if shared == 0 {
			*n = branch
		} else {
			*n = TrieNode{k: kindExtension, prefix: path[:shared].clone(), child: &branch}
		}
		return nil

	case kindBranch:
		if len(path) == 0 {
			return fmt.Errorf("mpt: branch value slots are unsupported in this engine")
		}
		return n.stack[path[0]].Insert(path[1:], value, fetcher)

	case kindBlinded:
		if err := n.Unblind(fetcher); err != nil {
			return err
		}
		return n.Insert(path, value, fetcher)

	default:
		return fmt.Errorf("mpt: unknown node kind %d", n.k)
	}
}

// Delete removes the leaf at path and collapses ancestors where possible (spec §4.1).
func (n *TrieNode) Delete(path Nibbles, fetcher Fetcher, hinter Hinter) error {
	switch n.k {
	case kindEmpty:
		return ErrKeyNotPresent

	case kindLeaf:
		if !bytes.Equal(path, n.prefix) {
			return ErrKeyNotPresent
		}
		*n = TrieNode{}
		return nil

	case kindExtension:
		shared := commonPrefixLen(path, n.prefix)
		if shared < len(n.prefix) {
			return ErrKeyNotPresent
		}
		if shared == len(path) {
			*n = TrieNode{}
			return nil
		}
		if err := n.child.Delete(path[shared:], fetcher, hinter); err != nil {
			return err
		}
		return n.collapseIfPossible(fetcher, hinter)

	case kindBranch:
		if len(path) == 0 {
			return ErrKeyNotPresent
		}
		if err := n.stack[path[0]].Delete(path[1:], fetcher, hinter); err != nil {
			return err
		}
		return n.collapseIfPossible(fetcher, hinter)

	case kindBlinded:
		if err := n.Unblind(fetcher); err != nil {
			return err
		}
		return n.Delete(path, fetcher, hinter)

	default:
		return fmt.Errorf("mpt: unknown node kind %d", n.k)
	}
}

// collapseIfPossible simplifies n after a child deletion: double extensions merge, an extension
// over a leaf becomes a leaf, an extension over empty becomes empty, and a branch with exactly
// one remaining non-empty child becomes an extension or leaf over it (spec §4.1).
func (n *TrieNode) collapseIfPossible(fetcher Fetcher, hinter Hinter) error {
	switch n.k {
	case kindExtension:
		switch n.child.k {
		case kindExtension:
			merged := append(n.prefix.clone(), n.child.prefix...)
			*n = TrieNode{k: kindExtension, prefix: merged, child: n.child.child}
		case kindLeaf:
			merged := append(n.prefix.clone(), n.child.prefix...)
			*n = TrieNode{k: kindLeaf, prefix: merged, value: n.child.value}
		case kindEmpty:
			*n = TrieNode{}
		case kindBlinded:
			if err := n.child.Unblind(fetcher); err != nil {
				return err
			}
			return n.collapseIfPossible(fetcher, hinter)
		}
		return nil

	case kindBranch:
		nonEmpty := -1
		count := 0
		for i := range n.stack {
			if n.stack[i].k != kindEmpty {
				count++
				nonEmpty = i
			}
		}
		if count != 1 {
			return nil
		}
		child := &n.stack[nonEmpty]
		idx := byte(nonEmpty)
		switch child.k {
		case kindLeaf:
			*n = TrieNode{k: kindLeaf, prefix: append(Nibbles{idx}, child.prefix...), value: child.value}
		case kindExtension:
			*n = TrieNode{k: kindExtension, prefix: append(Nibbles{idx}, child.prefix...), child: child.child}
		case kindBranch:
			c := *child
			*n = TrieNode{k: kindExtension, prefix: Nibbles{idx}, child: &c}
		case kindBlinded:
			// The remaining child lies outside every path traversed so far; its variant must be
			// known to collapse correctly, so the engine hints the host to fetch it.
			if hinter != nil {
				hinter.HintTrieNode(child.commitment)
			}
			if err := child.Unblind(fetcher); err != nil {
				return err
			}
			return n.collapseIfPossible(fetcher, hinter)
		}
		return nil

	default:
		return nil
	}
}
