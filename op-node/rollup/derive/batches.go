package derive

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/fault-proof-core/op-node/rollup"
	"github.com/ethereum-optimism/fault-proof-core/op-service/eth"
)

// BatchWithL1InclusionBlock tags a batch with the L1 block it was found in, needed to evaluate
// the sequence-window expiry rule (spec §4.6).
type BatchWithL1InclusionBlock struct {
	L1InclusionBlock eth.L1BlockRef
	Batch            Batch
}

// BatchValidity is the five-way verdict of spec §4.6 step 5.
type BatchValidity uint8

const (
	BatchDrop BatchValidity = iota
	BatchAccept
	BatchUndecided
	BatchFuture
	BatchPast
)

// checkSingularBatch implements the validity rule of spec §4.6 step 5 against the parent L2
// block `parent` and the current l1_blocks window.
func checkSingularBatch(cfg *rollup.Config, log log.Logger, l1Blocks []eth.L1BlockRef, parent eth.L2BlockRef, batch *SingularBatch, l1InclusionBlock eth.L1BlockRef) BatchValidity {
	log = batch.LogContext(log)

	if len(l1Blocks) == 0 {
		log.Warn("missing L1 block input, cannot proceed with batch checking")
		return BatchUndecided
	}
	epoch := l1Blocks[0]

	nextTimestamp := parent.Time + cfg.BlockTime
	if batch.Timestamp > nextTimestamp {
		log.Trace("received out-of-order batch for future processing", "next_timestamp", nextTimestamp)
		return BatchFuture
	}
	if batch.Timestamp < nextTimestamp {
		log.Warn("dropping old batch", "min_timestamp", nextTimestamp)
		return BatchPast
	}

	if batch.ParentHash != parent.Hash {
		log.Warn("ignoring batch with mismatching parent hash", "parent", parent.Hash)
		return BatchDrop
	}

	if batch.EpochNum+cfg.SeqWindowSize < l1InclusionBlock.Number {
		log.Warn("batch was included too late, sequence window expired")
		return BatchDrop
	}

	batchOrigin := epoch
	if batch.EpochNum < epoch.Number {
		log.Warn("dropped batch, epoch is too old", "minimum", epoch.ID())
		return BatchDrop
	} else if batch.EpochNum == epoch.Number {
		// continuing the current epoch
	} else if batch.EpochNum == epoch.Number+1 {
		if len(l1Blocks) < 2 {
			log.Info("eager batch wants to advance epoch, but could not without more L1 blocks", "current_epoch", epoch.ID())
			return BatchUndecided
		}
		batchOrigin = l1Blocks[1]
	} else {
		log.Warn("batch is for future epoch too far ahead", "current_epoch", epoch.ID())
		return BatchDrop
	}

	if batch.EpochHash != batchOrigin.Hash {
		log.Warn("batch is for different L1 chain, epoch hash mismatch", "expected", batchOrigin.ID())
		return BatchDrop
	}

	if batch.Timestamp < batchOrigin.Time {
		log.Warn("batch timestamp is less than L1 origin timestamp", "l2_time", batch.Timestamp, "l1_time", batchOrigin.Time)
		return BatchDrop
	}

	if max := batchOrigin.Time + cfg.MaxSequencerDrift; batch.Timestamp > max {
		if len(batch.Transactions) == 0 {
			if epoch.Number == batchOrigin.Number {
				if len(l1Blocks) < 2 {
					log.Info("without the next L1 origin we cannot determine yet if this empty batch exceeding drift is valid")
					return BatchUndecided
				}
				nextOrigin := l1Blocks[1]
				if batch.Timestamp >= nextOrigin.Time {
					log.Info("batch exceeded sequencer time drift without adopting next origin, which would have been valid")
					return BatchDrop
				}
				log.Info("continuing with empty batch before late L1 block to preserve L2 time invariant")
			}
		} else {
			log.Warn("batch exceeded sequencer time drift, sequencer must adopt new L1 origin to include transactions again", "max_time", max)
			return BatchDrop
		}
	}

	for i, txBytes := range batch.Transactions {
		if len(txBytes) == 0 {
			log.Warn("transaction data must not be empty", "tx_index", i)
			return BatchDrop
		}
		if txBytes[0] == types.DepositTxType {
			log.Warn("sequencers may not embed deposit transactions into batch data", "tx_index", i)
			return BatchDrop
		}
	}

	return BatchAccept
}

// BatchQueue is C10: it consumes batches from the batch stream (C9), maintains the l1_blocks
// window, and produces validated SingularBatches, synthesizing empty ones on sequence-window
// expiry (spec §4.6).
type BatchQueue struct {
	log  log.Logger
	cfg  *rollup.Config
	prev *BatchStream

	origin     eth.L1BlockRef
	haveOrigin bool
	l1Blocks   []eth.L1BlockRef
	batches    []*BatchWithL1InclusionBlock
}

func NewBatchQueue(log log.Logger, cfg *rollup.Config, prev *BatchStream) *BatchQueue {
	return &BatchQueue{log: log, cfg: cfg, prev: prev}
}

func (bq *BatchQueue) Origin() eth.L1BlockRef { return bq.prev.Origin() }

// Reset implements the pipeline-wide Signal::Reset (spec §5 Cancellation): the l1_blocks window
// is seeded with the new safe-head origin and all buffered batches are dropped.
func (bq *BatchQueue) Reset(l1Origin eth.L1BlockRef) {
	bq.origin = l1Origin
	bq.haveOrigin = true
	bq.l1Blocks = []eth.L1BlockRef{l1Origin}
	bq.batches = nil
}

func (bq *BatchQueue) originBehind(parent eth.L2BlockRef) bool {
	return !bq.haveOrigin || bq.origin.Number < parent.L1Origin.Number
}

func (bq *BatchQueue) updateOrigins(parent eth.L2BlockRef) error {
	originBehind := bq.originBehind(parent)

	upstreamOrigin := bq.prev.Origin()
	if !bq.haveOrigin || bq.origin != upstreamOrigin {
		bq.origin = upstreamOrigin
		bq.haveOrigin = true
		if !originBehind {
			bq.l1Blocks = append(bq.l1Blocks, bq.origin)
		} else {
			// Startup special case: right after Reset, origin_behind is false and l1_blocks
			// already holds the seeded origin; any other occurrence means we're catching up.
			bq.l1Blocks = nil
		}
	}

	if len(bq.l1Blocks) > 0 && parent.L1Origin.Number > bq.l1Blocks[0].Number {
		for i, b := range bq.l1Blocks {
			if parent.L1Origin.Number == b.Number {
				bq.l1Blocks = bq.l1Blocks[i:]
				break
			}
		}
	}
	return nil
}

// NextBatch returns the next validated SingularBatch to build on top of parent (spec §4.6).
func (bq *BatchQueue) NextBatch(parent eth.L2BlockRef) (*SingularBatch, error) {
	if err := bq.updateOrigins(parent); err != nil {
		return nil, err
	}

	if bq.originBehind(parent) || parent.L1Origin.Number < bq.origin.Number {
		if _, err := bq.prev.NextBatch(parent); err != nil && !IsTemporary(err) {
			return nil, err
		}
		return nil, NotEnoughData
	}

	if len(bq.l1Blocks) < 2 {
		return nil, ErrMissingOrigin
	}

	epoch := bq.l1Blocks[0]
	if parent.L1Origin != epoch.ID() && parent.L1Origin.Number != epoch.Number-1 {
		return nil, NewResetError(ResetL1OriginMismatch, fmt.Errorf("buffered L1 epoch %d does not match safe head origin %d", epoch.Number, parent.L1Origin.Number))
	}

	outOfData := false
	next, err := bq.prev.NextBatch(parent)
	switch {
	case err == nil:
		if sb, ok := next.Batch.(*SingularBatch); ok {
			v := checkSingularBatch(bq.cfg, bq.log, bq.l1Blocks, parent, sb, next.L1InclusionBlock)
			switch v {
			case BatchAccept:
				bq.batches = append(bq.batches, &BatchWithL1InclusionBlock{L1InclusionBlock: next.L1InclusionBlock, Batch: sb})
			case BatchFuture:
				bq.log.Warn("buffering future batch")
				bq.batches = append(bq.batches, &BatchWithL1InclusionBlock{L1InclusionBlock: next.L1InclusionBlock, Batch: sb})
			case BatchUndecided, BatchPast, BatchDrop:
				// dropped silently; an undecided verdict does not arise here, since every
				// undecided path needs fewer than two L1 blocks and NextBatch has already
				// returned ErrMissingOrigin in that case
			}
		}
	case IsTemporary(err):
		outOfData = true
	default:
		return nil, err
	}

	return bq.deriveNextBatch(outOfData, parent)
}

// deriveNextBatch implements spec §4.6 step 3 (empty-batch synthesis) and step 5 over the
// buffered batch set.
func (bq *BatchQueue) deriveNextBatch(emptyUpstream bool, parent eth.L2BlockRef) (*SingularBatch, error) {
	if len(bq.l1Blocks) == 0 {
		return nil, NewCriticalError(fmt.Errorf("failed to derive batch: no l1 origin prepared"))
	}
	epoch := bq.l1Blocks[0]

	var remaining []*BatchWithL1InclusionBlock
	var accepted *SingularBatch
	for i, b := range bq.batches {
		sb := b.Batch.(*SingularBatch)
		v := checkSingularBatch(bq.cfg, bq.log, bq.l1Blocks, parent, sb, b.L1InclusionBlock)
		switch v {
		case BatchFuture:
			remaining = append(remaining, b)
		case BatchDrop, BatchPast:
			continue
		case BatchAccept:
			accepted = sb
			remaining = append(remaining, bq.batches[i+1:]...)
		case BatchUndecided:
			remaining = append(remaining, bq.batches[i:]...)
			bq.batches = remaining
			return nil, NotEnoughData
		}
		if accepted != nil {
			break
		}
	}
	bq.batches = remaining

	if accepted != nil {
		return accepted, nil
	}

	expiryEpoch := epoch.Number + bq.cfg.SeqWindowSize
	forceEmpty := (expiryEpoch == bq.origin.Number && emptyUpstream) || expiryEpoch < bq.origin.Number
	firstOfEpoch := epoch.Number == parent.L1Origin.Number+1
	nextTimestamp := epoch.Time + bq.cfg.BlockTime

	if !forceEmpty {
		return nil, NotEnoughData
	}

	if len(bq.l1Blocks) < 2 {
		return nil, NotEnoughData
	}
	nextEpoch := bq.l1Blocks[1]

	if nextTimestamp < nextEpoch.Time || firstOfEpoch {
		return &SingularBatch{
			ParentHash:   parent.Hash,
			EpochNum:     epoch.Number,
			EpochHash:    epoch.Hash,
			Timestamp:    nextTimestamp,
			Transactions: nil,
		}, nil
	}

	bq.l1Blocks = bq.l1Blocks[1:]
	return nil, NotEnoughData
}
