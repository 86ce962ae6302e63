// Package eth holds the small, dependency-light value types shared between the derivation
// pipeline and the stateless executor: block references, system config, and payload attributes.
package eth

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BlockID identifies a block by number and hash, without committing to which chain it is from.
type BlockID struct {
	Hash   common.Hash `json:"hash"`
	Number uint64      `json:"number"`
}

func (id BlockID) String() string {
	return fmt.Sprintf("%s:%d", id.Hash, id.Number)
}

// BlockInfo is the minimal view of a block header the derivation pipeline needs of either chain.
type BlockInfo interface {
	Hash() common.Hash
	ParentHash() common.Hash
	NumberU64() uint64
	Time() uint64
	// BaseFee is nil pre-London.
	BaseFee() *big.Int
	// BlobBaseFee is nil before EIP-4844 is active on the chain that produced the header.
	BlobBaseFee() *big.Int
	ParentBeaconRoot() *common.Hash
	// MixDigest is the post-Merge RANDAO value, carried into the derived L2 block's prevRandao
	// (spec §4.7 step 6).
	MixDigest() common.Hash
	ID() BlockID
}

// L1BlockRef is a reference to an L1 block, used as the origin of L2 blocks and epochs.
type L1BlockRef struct {
	Hash       common.Hash `json:"hash"`
	Number     uint64      `json:"number"`
	ParentHash common.Hash `json:"parentHash"`
	Time       uint64      `json:"timestamp"`
}

func (r L1BlockRef) ID() BlockID {
	return BlockID{Hash: r.Hash, Number: r.Number}
}

func (r L1BlockRef) String() string {
	return fmt.Sprintf("%s:%d", r.Hash, r.Number)
}

func L1BlockRefFromBlockInfo(info BlockInfo) L1BlockRef {
	return L1BlockRef{
		Hash:       info.Hash(),
		Number:     info.NumberU64(),
		ParentHash: info.ParentHash(),
		Time:       info.Time(),
	}
}

// L2BlockRef is a reference to an L2 block, carrying its L1 origin and its sequence number
// within that origin (spec §3 L2BlockInfo).
type L2BlockRef struct {
	Hash           common.Hash `json:"hash"`
	Number         uint64      `json:"number"`
	ParentHash     common.Hash `json:"parentHash"`
	Time           uint64      `json:"timestamp"`
	L1Origin       BlockID     `json:"l1origin"`
	SequenceNumber uint64      `json:"sequenceNumber"`
}

func (r L2BlockRef) ID() BlockID {
	return BlockID{Hash: r.Hash, Number: r.Number}
}

func (r L2BlockRef) String() string {
	return fmt.Sprintf("%s:%d", r.Hash, r.Number)
}
