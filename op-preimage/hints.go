package preimage

import (
	"encoding/binary"
	"errors"
)

// HintType is the typed tag of the advisory host-hint protocol (spec §6).
type HintType uint16

const (
	HintL1BlockHeader          HintType = 1
	HintL1Transactions         HintType = 2
	HintL1Receipts             HintType = 3
	HintL1Blob                 HintType = 4
	HintL1Precompile           HintType = 5
	HintL2BlockHeader          HintType = 6
	HintL2Transactions         HintType = 7
	HintL2Receipts             HintType = 8
	HintL2Code                 HintType = 9
	HintL2StateNode            HintType = 10
	HintL2AccountProof         HintType = 11
	HintL2AccountStorageProof  HintType = 12
	HintL2OutputRoot           HintType = 13
	HintAgreedPreState         HintType = 14
	// HintL2BlockData is declared by the upstream protocol but left unimplemented (spec §9 Open
	// Question): Encode accepts it, Decode recognizes the tag, but nothing in this module ever
	// produces it.
	HintL2BlockData HintType = 15
)

// ErrUnimplemented is returned for hint types that are recognized but not produced/consumed.
var ErrUnimplemented = errors.New("hint type not implemented")

// Hint is a fully-formed advisory message: a type tag plus its opaque payload.
type Hint struct {
	Type    HintType
	Payload []byte
}

func (h Hint) Encode() []byte {
	out := make([]byte, 2+len(h.Payload))
	binary.BigEndian.PutUint16(out[:2], uint16(h.Type))
	copy(out[2:], h.Payload)
	return out
}

func DecodeHint(b []byte) (Hint, error) {
	if len(b) < 2 {
		return Hint{}, errors.New("hint too short to contain a type tag")
	}
	t := HintType(binary.BigEndian.Uint16(b[:2]))
	if t == HintL2BlockData {
		return Hint{}, ErrUnimplemented
	}
	return Hint{Type: t, Payload: b[2:]}, nil
}
