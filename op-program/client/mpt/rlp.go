package mpt

import (
	"io"

	"github.com/ethereum/go-ethereum/rlp"
)

// branchListLength is the RLP list length of a branch node: 16 children plus a value slot that
// this engine never populates (spec §4.1: "value always empty-string in this system").
const branchListLength = 17

// EncodeRLP implements rlp.Encoder. Each child is blinded on a copy during encoding, leaving the
// caller's tree unchanged, so that callers never need to pre-blind a tree before serializing its
// root (spec §4.1 encode_in_place).
func (n *TrieNode) EncodeRLP(w io.Writer) error {
	switch n.k {
	case kindEmpty:
		return rlp.Encode(w, []byte{})
	case kindBlinded:
		return rlp.Encode(w, n.commitment)
	case kindLeaf:
		return rlp.Encode(w, []interface{}{encodePathLeaf(n.prefix, true), n.value})
	case kindExtension:
		child := blindedChild(*n.child)
		return rlp.Encode(w, []interface{}{encodePathLeaf(n.prefix, false), &child})
	case kindBranch:
		list := make([]interface{}, branchListLength)
		for i := range n.stack {
			child := blindedChild(n.stack[i])
			list[i] = &child
		}
		list[branchWidth] = []byte{}
		return rlp.Encode(w, list)
	default:
		return errRLP("unknown node kind")
	}
}

// DecodeRLP implements rlp.Decoder. Node kind is recovered from the RLP shape alone: a non-list
// 32-byte string is a blinded commitment, the empty string is Empty, a 2-element list is a leaf
// or extension (disambiguated by the path's high nibble), and a 17-element list is a branch.
func (n *TrieNode) DecodeRLP(s *rlp.Stream) error {
	kindTag, _, err := s.Kind()
	if err != nil {
		return errRLP(err.Error())
	}

	if kindTag != rlp.List {
		raw, err := s.Bytes()
		if err != nil {
			return errRLP(err.Error())
		}
		switch len(raw) {
		case 0:
			*n = TrieNode{}
			return nil
		case 32:
			var commitment [32]byte
			copy(commitment[:], raw)
			*n = NewBlinded(commitment)
			return nil
		default:
			return errRLP("unexpected string length in node position")
		}
	}

	listSize, err := s.List()
	if err != nil {
		return errRLP(err.Error())
	}
	switch listSize {
	case branchListLength:
		stack := newBranchStack()
		for i := 0; i < branchWidth; i++ {
			if err := s.Decode(&stack[i]); err != nil {
				return errRLP(err.Error())
			}
		}
		if _, err := s.Bytes(); err != nil { // discard the always-empty value slot
			return errRLP(err.Error())
		}
		if err := s.ListEnd(); err != nil {
			return errRLP(err.Error())
		}
		*n = TrieNode{k: kindBranch, stack: stack}
		return nil
	case 2:
		rawPath, err := s.Bytes()
		if err != nil {
			return errRLP(err.Error())
		}
		path, isLeaf, err := decodePathLeaf(rawPath)
		if err != nil {
			return err
		}
		if isLeaf {
			value, err := s.Bytes()
			if err != nil {
				return errRLP(err.Error())
			}
			if err := s.ListEnd(); err != nil {
				return errRLP(err.Error())
			}
			*n = TrieNode{k: kindLeaf, prefix: path, value: value}
			return nil
		}
		var child TrieNode
		if err := s.Decode(&child); err != nil {
			return errRLP(err.Error())
		}
		if err := s.ListEnd(); err != nil {
			return errRLP(err.Error())
		}
		*n = TrieNode{k: kindExtension, prefix: path, child: &child}
		return nil
	default:
		return errRLP("unexpected list length in node position")
	}
}
