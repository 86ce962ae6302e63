package derive

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/fault-proof-core/op-node/rollup"
	"github.com/ethereum-optimism/fault-proof-core/op-service/eth"
)

// batchSource is the upstream contract BatchStream pulls whole (possibly span-) batches from.
type batchSource interface {
	NextBatch() (Batch, error)
	Origin() eth.L1BlockRef
}

// SafeBlockFetcher resolves already-derived L2 blocks by number. BatchStream holds one, but its
// span-batch prefix check uses the safe head passed to NextBatch and fetches nothing.
type SafeBlockFetcher interface {
	L2BlockRefByNumber(number uint64) (eth.L2BlockRef, error)
}

// BatchStream is C9: post-Holocene, it buffers a validated SpanBatch and expands it into an
// ordered queue of SingularBatches on demand; pre-Holocene it is pass-through (spec §4.5.C9).
type BatchStream struct {
	log      log.Logger
	cfg      *rollup.Config
	prev     batchSource
	l2Blocks SafeBlockFetcher

	pending []*SingularBatch
}

func NewBatchStream(log log.Logger, cfg *rollup.Config, prev batchSource, l2Blocks SafeBlockFetcher) *BatchStream {
	return &BatchStream{log: log, cfg: cfg, prev: prev, l2Blocks: l2Blocks}
}

func (bs *BatchStream) Origin() eth.L1BlockRef { return bs.prev.Origin() }

func (bs *BatchStream) Reset() { bs.pending = nil }

// NextBatch returns the next BatchWithL1InclusionBlock, expanding any buffered span batch first.
func (bs *BatchStream) NextBatch(l2SafeHead eth.L2BlockRef) (*BatchWithL1InclusionBlock, error) {
	inclusionBlock := bs.prev.Origin()

	if len(bs.pending) > 0 {
		next := bs.pending[0]
		bs.pending = bs.pending[1:]
		next.ParentHash = l2SafeHead.Hash
		return &BatchWithL1InclusionBlock{L1InclusionBlock: inclusionBlock, Batch: next}, nil
	}

	batch, err := bs.prev.NextBatch()
	if err != nil {
		return nil, err
	}

	if !bs.cfg.IsHolocene(inclusionBlock.Time) {
		// Pre-Holocene: pass batches through untouched, including raw SpanBatches, which the
		// validator (C10) handles directly via checkSpanBatch.
		return &BatchWithL1InclusionBlock{L1InclusionBlock: inclusionBlock, Batch: batch}, nil
	}

	switch batch.GetBatchType() {
	case SingularBatchType:
		return &BatchWithL1InclusionBlock{L1InclusionBlock: inclusionBlock, Batch: batch}, nil
	case SpanBatchType:
		span := batch.(*SpanBatch)
		if err := bs.checkPrefixValidity(span, l2SafeHead); err != nil {
			bs.log.Warn("dropping span batch with invalid prefix", "err", err)
			return nil, NotEnoughData
		}
		singles, err := bs.expand(span, l2SafeHead)
		if err != nil {
			return nil, NewCriticalError(fmt.Errorf("failed to expand span batch: %w", err))
		}
		if len(singles) == 0 {
			return nil, NotEnoughData
		}
		first := singles[0]
		bs.pending = singles[1:]
		return &BatchWithL1InclusionBlock{L1InclusionBlock: inclusionBlock, Batch: first}, nil
	default:
		return nil, NewCriticalError(fmt.Errorf("unrecognized batch type %d", batch.GetBatchType()))
	}
}

// checkPrefixValidity verifies a span batch's parent_check against the current safe head before
// buffering it for expansion (spec §4.6). The span's l1_origin_check is not verified here.
func (bs *BatchStream) checkPrefixValidity(span *SpanBatch, l2SafeHead eth.L2BlockRef) error {
	if !span.CheckParentHash(l2SafeHead.Hash) {
		return fmt.Errorf("parent_check mismatch against safe head %s", l2SafeHead.Hash)
	}
	return nil
}

// expand walks a validated SpanBatch and materializes its SingularBatches (spec §4.5.C9).
//
// Each block's ParentHash is only fully known once the previous block in the span has actually
// been executed, so it is left zero here except for block 0, whose parent is l2SafeHead itself:
// the same safe head checkPrefixValidity already matched against span.ParentCheck. NextBatch
// fills in each later block's ParentHash with the safe head it is called with when it dequeues
// that block, i.e. the block derived from the preceding expanded batch.
func (bs *BatchStream) expand(span *SpanBatch, l2SafeHead eth.L2BlockRef) ([]*SingularBatch, error) {
	out := make([]*SingularBatch, 0, span.GetBlockCount())
	for i := 0; i < span.GetBlockCount(); i++ {
		epochNum := span.GetBlockEpochNum(i)
		epochHash, err := bs.epochHashFor(span, epochNum)
		if err != nil {
			return nil, err
		}
		single := &SingularBatch{
			EpochNum:     epochNum,
			EpochHash:    epochHash,
			Timestamp:    span.GetBlockTimestamp(i),
			Transactions: span.GetBlockTransactions(i),
		}
		if i == 0 {
			single.ParentHash = l2SafeHead.Hash
		}
		out = append(out, single)
	}
	return out, nil
}

func (bs *BatchStream) epochHashFor(span *SpanBatch, epochNum uint64) ([32]byte, error) {
	if epochNum == span.L1OriginNum+uint64(span.GetBlockCount())-1 {
		var h [32]byte
		copy(h[:20], span.L1OriginCheck[:])
		return h, nil
	}
	return [32]byte{}, nil
}
