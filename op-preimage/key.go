// Package op-preimage defines the content-addressed preimage-oracle protocol (spec §3 PreimageKey,
// §4.3, §6) shared between the L1/L2 data sources, the MPT engine, and the stateless executor.
package preimage

import "github.com/ethereum/go-ethereum/common"

// KeyType is the domain tag encoded in the top byte of a serialized PreimageKey (spec §3).
type KeyType byte

const (
	// LocalKeyType addresses input values agreed upon out-of-band (e.g. the claimed block hash),
	// rather than a value whose integrity is verified by hashing.
	LocalKeyType KeyType = 1
	// Keccak256KeyType addresses a value whose keccak256 digest equals the key hash.
	Keccak256KeyType KeyType = 2
	// Sha256KeyType addresses a value whose sha256 digest equals the key hash (used for KZG
	// commitment correctness proofs).
	Sha256KeyType KeyType = 3
	// BlobKeyType addresses a single 32-byte field element of a 4096-element KZG blob.
	BlobKeyType KeyType = 4
	// PrecompileKeyType addresses the result of a precompile call whose canonical input hashes to
	// the key hash.
	PrecompileKeyType KeyType = 5
)

// Key is anything that can be serialized into the wire PreimageKey format: the key type in the top
// byte, followed by the low 31 bytes of the key's hash.
type Key interface {
	PreimageKey() [32]byte
}

func keyFromTypeAndHash(t KeyType, h common.Hash) (out [32]byte) {
	out = h
	out[0] = byte(t)
	return out
}

// Keccak256Key is the domain key for data addressed by a keccak256 digest.
type Keccak256Key common.Hash

func (k Keccak256Key) PreimageKey() [32]byte {
	return keyFromTypeAndHash(Keccak256KeyType, common.Hash(k))
}

// Sha256Key is the domain key for data addressed by a sha256 digest.
type Sha256Key common.Hash

func (k Sha256Key) PreimageKey() [32]byte {
	return keyFromTypeAndHash(Sha256KeyType, common.Hash(k))
}

// BlobKey addresses a single field element: keccak256(kzg_commitment || big_endian_u256(index)).
type BlobKey common.Hash

func (k BlobKey) PreimageKey() [32]byte {
	return keyFromTypeAndHash(BlobKeyType, common.Hash(k))
}

// PrecompileKey addresses `status_byte || output_bytes` for a precompile call whose canonical
// input hashes (keccak256) to the key hash.
type PrecompileKey common.Hash

func (k PrecompileKey) PreimageKey() [32]byte {
	return keyFromTypeAndHash(PrecompileKeyType, common.Hash(k))
}

// LocalIndexKey addresses a locally-agreed value by a small index rather than a hash.
type LocalIndexKey uint64

func (k LocalIndexKey) PreimageKey() [32]byte {
	var h common.Hash
	// Local keys pack the index into the low 8 bytes; the high bytes are zero, matching the real
	// op-preimage LocalIndexKey encoding.
	for i := 0; i < 8; i++ {
		h[31-i] = byte(k >> (8 * i))
	}
	return keyFromTypeAndHash(LocalKeyType, h)
}
