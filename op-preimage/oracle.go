package preimage

import (
	"crypto/sha256"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// Oracle is the host-program boundary (spec §6): a uniform keyed byte store. Implementations are
// free to preload every answer offline or fetch on demand; callers must get correct results either
// way, since hints (below) are advisory only.
type Oracle interface {
	Get(key Key) []byte
	GetExact(key Key, dest []byte) error
}

// Hinter is the optional advisory side channel a host-backed Oracle may also implement.
type Hinter interface {
	Hint(hint Hint)
}

// HintOracle is an Oracle that also accepts hints; most real callers obtain one of these from the
// host, and only need to type-assert down to Oracle when hinting isn't relevant (e.g. in tests).
type HintOracle interface {
	Oracle
	Hinter
}

// VerifyingOracle wraps a raw key->bytes source (e.g. a preloaded map, or a host RPC round-trip)
// and enforces the content-address invariant of each KeyType before returning a value, so that a
// misbehaving or malicious host can never substitute a preimage that doesn't match its key.
type VerifyingOracle struct {
	source func(key [32]byte) ([]byte, bool)
}

func NewVerifyingOracle(source func(key [32]byte) ([]byte, bool)) *VerifyingOracle {
	return &VerifyingOracle{source: source}
}

func (o *VerifyingOracle) Get(key Key) []byte {
	k := key.PreimageKey()
	val, ok := o.source(k)
	if !ok {
		panic(fmt.Sprintf("preimage not found for key %x", k))
	}
	if err := verify(KeyType(k[0]), k, val); err != nil {
		panic(err)
	}
	return val
}

func (o *VerifyingOracle) GetExact(key Key, dest []byte) error {
	val := o.Get(key)
	if len(val) != len(dest) {
		return fmt.Errorf("preimage length mismatch: got %d, expected %d", len(val), len(dest))
	}
	copy(dest, val)
	return nil
}

func verify(t KeyType, key [32]byte, val []byte) error {
	switch t {
	case Keccak256KeyType:
		digest := crypto.Keccak256(val)
		if !hashMatches(digest, key) {
			return fmt.Errorf("keccak256 preimage does not match key %x", key)
		}
	case Sha256KeyType:
		digest := sha256.Sum256(val)
		if !hashMatches(digest[:], key) {
			return fmt.Errorf("sha256 preimage does not match key %x", key)
		}
	case BlobKeyType, PrecompileKeyType, LocalKeyType:
		// Blob field elements, precompile results, and local values are addressed by a composite
		// or out-of-band hash the oracle constructed specially; the caller that requested them
		// (the blob data source, the precompile tracer, or the local-key agreement point)
		// performs the matching domain-specific check, not this generic layer.
	default:
		return fmt.Errorf("unrecognized preimage key type %d", t)
	}
	return nil
}

func hashMatches(digest []byte, key [32]byte) bool {
	if len(digest) != 32 {
		return false
	}
	for i := 1; i < 32; i++ {
		if digest[i] != key[i] {
			return false
		}
	}
	return true
}
