package derive

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus/misc/eip4844"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"

	"github.com/ethereum-optimism/fault-proof-core/op-node/rollup"
	"github.com/ethereum-optimism/fault-proof-core/op-service/eth"
)

// l1CancunChainConfig is the minimal params.ChainConfig eip4844.CalcBlobFee needs to read L1's
// blob base-fee-update-fraction schedule. L1 blob gas accounting only depends on the Cancun fork
// having activated (already true for any header carrying ExcessBlobGas) and the blob schedule
// itself, not on any OP Stack fork, so a single constant config suffices for every L1 header.
var l1CancunChainConfig = &params.ChainConfig{
	LondonBlock:        big.NewInt(0),
	CancunTime:         new(uint64),
	BlobScheduleConfig: params.DefaultBlobSchedule,
}

// HeaderInfo is the concrete eth.BlockInfo backing every L1 header this module observes, wrapping
// a real go-ethereum header the way the teacher's op-service/eth.HeaderBlockInfo does.
type HeaderInfo struct {
	header *types.Header
}

func NewHeaderInfo(header *types.Header) HeaderInfo { return HeaderInfo{header: header} }

func (h HeaderInfo) Hash() common.Hash       { return h.header.Hash() }
func (h HeaderInfo) ParentHash() common.Hash { return h.header.ParentHash }
func (h HeaderInfo) NumberU64() uint64       { return h.header.Number.Uint64() }
func (h HeaderInfo) Time() uint64            { return h.header.Time }
func (h HeaderInfo) BaseFee() *big.Int       { return h.header.BaseFee }

func (h HeaderInfo) BlobBaseFee() *big.Int {
	if h.header.ExcessBlobGas == nil {
		return nil
	}
	return eip4844.CalcBlobFee(l1CancunChainConfig, h.header)
}

func (h HeaderInfo) ParentBeaconRoot() *common.Hash { return h.header.ParentBeaconRoot }
func (h HeaderInfo) MixDigest() common.Hash         { return h.header.MixDigest }

func (h HeaderInfo) ID() eth.BlockID {
	return eth.BlockID{Hash: h.header.Hash(), Number: h.header.Number.Uint64()}
}

// L1Fetcher is the upstream L1 access C5 and the attributes builder (C11) share: headers,
// full transaction bodies, and receipts by block hash, matching the teacher's
// op-service/sources L1 client surface.
type L1Fetcher interface {
	InfoByHash(ctx context.Context, hash common.Hash) (eth.BlockInfo, error)
	InfoByNumber(ctx context.Context, number uint64) (eth.BlockInfo, error)
	InfoAndTxsByHash(ctx context.Context, hash common.Hash) (eth.BlockInfo, types.Transactions, error)
	FetchReceipts(ctx context.Context, hash common.Hash) ([]*types.Receipt, error)
}

// L1Traversal walks the canonical L1 chain one block at a time, exposing the current origin to
// downstream stages and advancing only on request (spec §4.5 "advance_origin()").
type L1Traversal struct {
	log   log.Logger
	fetch L1Fetcher
	block eth.L1BlockRef
}

func NewL1Traversal(log log.Logger, fetch L1Fetcher, start eth.L1BlockRef) *L1Traversal {
	return &L1Traversal{log: log, fetch: fetch, block: start}
}

func (t *L1Traversal) Origin() eth.L1BlockRef { return t.block }

// AdvanceOrigin fetches the current origin's child by number and verifies it actually extends
// the current origin by parent-hash linkage; a mismatch means the canonical chain reorged under
// us and the pipeline must roll back (spec §7 ResetL1OriginMismatch).
func (t *L1Traversal) AdvanceOrigin(ctx context.Context) error {
	next, err := t.fetch.InfoByNumber(ctx, t.block.Number+1)
	if err != nil {
		return NewTemporaryError(fmt.Errorf("failed to fetch L1 block %d: %w", t.block.Number+1, err))
	}
	if next.ParentHash() != t.block.Hash {
		return NewResetError(ResetL1OriginMismatch, fmt.Errorf("fetched block %s does not build on current origin %s", next.ID(), t.block))
	}
	t.block = eth.L1BlockRefFromBlockInfo(next)
	return nil
}

func (t *L1Traversal) Reset(origin eth.L1BlockRef) {
	t.block = origin
}

// L1Retrieval is C5: per spec §4.5.C5, it selects batcher-inbox calldata transactions and
// batcher-sent blob transactions from the current L1 origin, materializing blob contents via C4,
// and emits one opaque payload per batcher submission in transaction order.
type L1Retrieval struct {
	log       log.Logger
	cfg       *rollup.Config
	fetch     L1Fetcher
	blobs     *BlobDataSource
	traversal *L1Traversal

	queue        [][]byte
	loadedOrigin common.Hash
	loaded       bool
}

func NewL1Retrieval(log log.Logger, cfg *rollup.Config, fetch L1Fetcher, blobs *BlobDataSource, traversal *L1Traversal) *L1Retrieval {
	return &L1Retrieval{log: log, cfg: cfg, fetch: fetch, blobs: blobs, traversal: traversal}
}

func (r *L1Retrieval) Origin() eth.L1BlockRef { return r.traversal.Origin() }

// NextData implements the L1RetrievalStage contract FrameQueue (C6) pulls from. Once the current
// origin's transactions have been scanned, it returns EOF until AdvanceOrigin moves the traversal
// to a new block (spec §4.5 "Eof ... the stage has consumed its current origin").
func (r *L1Retrieval) NextData() ([]byte, error) {
	origin := r.traversal.Origin()
	if !r.loaded || r.loadedOrigin != origin.Hash {
		if err := r.loadOrigin(context.Background()); err != nil {
			return nil, err
		}
		r.loaded = true
		r.loadedOrigin = origin.Hash
	}
	if len(r.queue) == 0 {
		return nil, EOF
	}
	data := r.queue[0]
	r.queue = r.queue[1:]
	return data, nil
}

// loadOrigin scans the current origin's transactions for batcher submissions (spec §4.5.C5).
func (r *L1Retrieval) loadOrigin(ctx context.Context) error {
	r.queue = nil
	origin := r.traversal.Origin()
	info, txs, err := r.fetch.InfoAndTxsByHash(ctx, origin.Hash)
	if err != nil {
		return NewTemporaryError(fmt.Errorf("failed to fetch L1 block %s: %w", origin, err))
	}

	var blobHashes []IndexedBlobHash
	var blobTxs []*types.Transaction
	for _, tx := range txs {
		if !isBatcherSubmission(r.cfg, tx) {
			continue
		}
		if tx.Type() == types.BlobTxType {
			for i, h := range tx.BlobHashes() {
				blobHashes = append(blobHashes, IndexedBlobHash{Index: uint64(i), Hash: h})
			}
			blobTxs = append(blobTxs, tx)
			continue
		}
		r.queue = append(r.queue, tx.Data())
	}

	if len(blobHashes) > 0 {
		blobs, err := r.blobs.GetBlobs(ctx, eth.L1BlockRefFromBlockInfo(info), blobHashes)
		if err != nil {
			return err
		}
		idx := 0
		for _, tx := range blobTxs {
			n := len(tx.BlobHashes())
			payload, derr := decodeBlobPayload(blobs[idx : idx+n])
			idx += n
			if derr != nil {
				r.log.Warn("dropping blob batcher submission with invalid field-element encoding", "tx", tx.Hash(), "err", derr)
				continue
			}
			r.queue = append(r.queue, payload)
		}
	}
	return nil
}

// isBatcherSubmission implements spec §4.5.C5's transaction filter: `to == batch_inbox` and
// `from == batcher_address`.
func isBatcherSubmission(cfg *rollup.Config, tx *types.Transaction) bool {
	to := tx.To()
	if to == nil || *to != cfg.BatchInboxAddress {
		return false
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return false
	}
	return from == cfg.BatcherAddress
}

// decodeBlobPayload strips each blob's per-field-element zero high byte (spec §3 "rollup data is
// packed 31 bytes of payload per 32-byte field element") and concatenates the result, then trims
// the single trailing length-prefix envelope the batcher used when packing the payload across
// blobs.
func decodeBlobPayload(blobs []*Blob) ([]byte, error) {
	if len(blobs) == 0 {
		return nil, fmt.Errorf("no blobs to decode")
	}
	var out []byte
	for _, b := range blobs {
		for i := 0; i < len(b); i += 32 {
			fe := b[i : i+32]
			if fe[0] != 0 {
				return nil, fmt.Errorf("field element at byte offset %d has non-zero high byte %#x", i, fe[0])
			}
			out = append(out, fe[1:]...)
		}
	}
	if len(out) < 3 {
		return nil, fmt.Errorf("decoded blob payload too short for length envelope")
	}
	length := int(out[0])<<16 | int(out[1])<<8 | int(out[2])
	out = out[3:]
	if length > len(out) {
		return nil, fmt.Errorf("encoded length %d exceeds decoded payload %d", length, len(out))
	}
	return out[:length], nil
}
