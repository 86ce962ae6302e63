package derive

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto/kzg4844"

	"github.com/ethereum-optimism/fault-proof-core/op-service/eth"
)

// IndexedBlobHash is a blob's position within its L1 block's blob-tx list together with the
// versioned hash the batcher transaction committed to (spec §4.4 step 1).
type IndexedBlobHash struct {
	Index uint64
	Hash  common.Hash
}

// Blob is a single EIP-4844 blob: 4096 BLS12-381 field elements, 32 bytes each.
type Blob [131072]byte

// BlobSidecar is one sidecar entry returned by a beacon node's blob-sidecar API.
type BlobSidecar struct {
	Index         uint64
	Blob          Blob
	KZGCommitment kzg4844.Commitment
	KZGProof      kzg4844.Proof
}

// BeaconClient is the minimal beacon-node surface C4 needs: slot-indexed sidecar retrieval (spec
// §4.4 step 2).
type BeaconClient interface {
	BeaconBlobSideCars(ctx context.Context, slot uint64, hashes []IndexedBlobHash) ([]BlobSidecar, error)
}

var errSlotDerivation = fmt.Errorf("SlotDerivation: block timestamp precedes beacon genesis")

// BlobDataSource is C4: it converts an L1 block reference and a set of indexed versioned hashes
// into validated blob contents, per spec §4.4.
type BlobDataSource struct {
	beacon            BeaconClient
	fallback          BeaconClient
	beaconGenesisTime uint64
	secondsPerSlot    uint64
}

func NewBlobDataSource(beacon, fallback BeaconClient, beaconGenesisTime, secondsPerSlot uint64) *BlobDataSource {
	return &BlobDataSource{
		beacon:            beacon,
		fallback:          fallback,
		beaconGenesisTime: beaconGenesisTime,
		secondsPerSlot:    secondsPerSlot,
	}
}

// slotForTimestamp implements spec §4.4 step 1.
func (s *BlobDataSource) slotForTimestamp(timestamp uint64) (uint64, error) {
	if timestamp < s.beaconGenesisTime {
		return 0, errSlotDerivation
	}
	return (timestamp - s.beaconGenesisTime) / s.secondsPerSlot, nil
}

// GetBlobs implements spec §4.4: fetch, filter, count-check, and KZG-verify sidecars for the
// requested indexed hashes, falling back to a secondary beacon source on primary failure.
func (s *BlobDataSource) GetBlobs(ctx context.Context, ref eth.L1BlockRef, hashes []IndexedBlobHash) ([]*Blob, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	slot, err := s.slotForTimestamp(ref.Time)
	if err != nil {
		return nil, NewCriticalError(err)
	}

	blobs, err := s.fetchAndValidate(ctx, s.beacon, slot, hashes)
	if err == nil {
		return blobs, nil
	}
	if s.fallback == nil {
		return nil, NewTemporaryError(fmt.Errorf("primary blob fetch failed and no fallback configured: %w", err))
	}
	blobs, ferr := s.fetchAndValidate(ctx, s.fallback, slot, hashes)
	if ferr != nil {
		return nil, NewTemporaryError(fmt.Errorf("primary blob fetch failed (%v), fallback also failed: %w", err, ferr))
	}
	return blobs, nil
}

func (s *BlobDataSource) fetchAndValidate(ctx context.Context, client BeaconClient, slot uint64, hashes []IndexedBlobHash) ([]*Blob, error) {
	sidecars, err := client.BeaconBlobSideCars(ctx, slot, hashes)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch blob sidecars for slot %d: %w", slot, err)
	}

	byIndex := make(map[uint64]BlobSidecar, len(sidecars))
	for _, sc := range sidecars {
		byIndex[sc.Index] = sc
	}

	out := make([]*Blob, len(hashes))
	for i, h := range hashes {
		sc, ok := byIndex[h.Index]
		if !ok {
			return nil, fmt.Errorf("SidecarLengthMismatch: requested %d blobs, sidecar at index %d missing", len(hashes), h.Index)
		}
		if err := verifyBlobAgainstHash(sc, h.Hash); err != nil {
			return nil, fmt.Errorf("blob at index %d failed versioned-hash check: %w", h.Index, err)
		}
		b := sc.Blob
		out[i] = &b
	}
	return out, nil
}

// verifyBlobAgainstHash implements spec §4.4 step 4: the blob's KZG commitment must hash (under
// the EIP-4844 versioned-hash scheme) to the hash the batcher transaction committed to.
func verifyBlobAgainstHash(sc BlobSidecar, want common.Hash) error {
	commitment := kzg4844.Commitment(sc.KZGCommitment)
	got := common.Hash(kzg4844.CalcBlobHashV1(sha256.New(), &commitment))
	if got != want {
		return fmt.Errorf("commitment hash %s does not match requested %s", got, want)
	}
	var blob kzg4844.Blob
	copy(blob[:], sc.Blob[:])
	if err := kzg4844.VerifyBlobProof(blob, commitment, kzg4844.Proof(sc.KZGProof)); err != nil {
		return fmt.Errorf("KZG proof verification failed: %w", err)
	}
	return nil
}
