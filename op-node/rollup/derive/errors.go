// Package derive implements the pull-driven derivation pipeline (spec §4.5–§4.8, §7): L1
// retrieval, framing, channel assembly, batch decoding, span expansion, batch validation, and
// payload-attributes construction.
package derive

import (
	"errors"
	"fmt"
)

// temporaryError is the §7 "Temporary" error kind: the caller must feed more data or advance the
// origin and retry. Never surfaced as an output failure.
type temporaryError struct{ err error }

func (e temporaryError) Error() string { return e.err.Error() }
func (e temporaryError) Unwrap() error { return e.err }

func NewTemporaryError(err error) error { return temporaryError{err} }

func IsTemporary(err error) bool {
	var t temporaryError
	return errors.As(err, &t)
}

// EOF is returned by a stage that has consumed all data for its current origin and needs a new one.
var EOF = NewTemporaryError(errors.New("eof"))

// NotEnoughData is returned when a stage cannot yet produce an item from what it currently holds.
var NotEnoughData = NewTemporaryError(errors.New("not enough data"))

// ErrMissingOrigin is returned when a stage has no L1 origin set yet.
var ErrMissingOrigin = NewTemporaryError(errors.New("missing L1 origin"))

// ResetReason enumerates the §7 "Reset" causes: the pipeline must unwind to a trusted safe head.
type ResetReason int

const (
	ResetL1OriginMismatch ResetReason = iota
	ResetBadParentHash
	ResetBadTimestamp
	ResetBlockMismatch
	ResetBlockMismatchEpoch
	ResetBrokenTimeInvariant
	ResetReorgRequired
)

func (r ResetReason) String() string {
	switch r {
	case ResetL1OriginMismatch:
		return "L1OriginMismatch"
	case ResetBadParentHash:
		return "BadParentHash"
	case ResetBadTimestamp:
		return "BadTimestamp"
	case ResetBlockMismatch:
		return "BlockMismatch"
	case ResetBlockMismatchEpoch:
		return "BlockMismatchEpochReset"
	case ResetBrokenTimeInvariant:
		return "BrokenTimeInvariant"
	case ResetReorgRequired:
		return "ReorgRequired"
	default:
		return "UnknownReset"
	}
}

// resetError is the §7 "Reset" error kind: the pipeline owns recovery policy, stages only report.
type resetError struct {
	reason ResetReason
	err    error
}

func (e *resetError) Error() string { return fmt.Sprintf("reset(%s): %s", e.reason, e.err) }
func (e *resetError) Unwrap() error { return e.err }

func NewResetError(reason ResetReason, err error) error {
	return &resetError{reason: reason, err: err}
}

func IsReset(err error) (ResetReason, bool) {
	var r *resetError
	if errors.As(err, &r) {
		return r.reason, true
	}
	return 0, false
}

// criticalError is the §7 "Critical" error kind: terminates the current derivation.
type criticalError struct{ err error }

func (e criticalError) Error() string { return e.err.Error() }
func (e criticalError) Unwrap() error { return e.err }

func NewCriticalError(err error) error { return criticalError{err} }

func IsCritical(err error) bool {
	var c criticalError
	return errors.As(err, &c)
}
