package derive

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/fault-proof-core/op-node/rollup"
	"github.com/ethereum-optimism/fault-proof-core/op-service/eth"
)

// fakeBatchSource replays a fixed list of already-decoded batches.
type fakeBatchSource struct {
	batches []Batch
	origin  eth.L1BlockRef
	i       int
}

func (f *fakeBatchSource) NextBatch() (Batch, error) {
	if f.i >= len(f.batches) {
		return nil, EOF
	}
	b := f.batches[f.i]
	f.i++
	return b, nil
}

func (f *fakeBatchSource) Origin() eth.L1BlockRef { return f.origin }

// fakeSafeBlockFetcher resolves a single canned L2 block. Kept so tests can still construct a
// BatchStream through the same SafeBlockFetcher-accepting constructor used elsewhere.
type fakeSafeBlockFetcher struct {
	ref eth.L2BlockRef
}

func (f *fakeSafeBlockFetcher) L2BlockRefByNumber(number uint64) (eth.L2BlockRef, error) {
	return f.ref, nil
}

func TestBatchStreamPreHolocenePassesThroughSingular(t *testing.T) {
	cfg := &rollup.Config{}
	batch := &SingularBatch{Timestamp: 10}
	src := &fakeBatchSource{batches: []Batch{batch}, origin: eth.L1BlockRef{Time: 5}}
	bs := NewBatchStream(log.New(), cfg, src, &fakeSafeBlockFetcher{})

	got, err := bs.NextBatch(eth.L2BlockRef{})
	require.NoError(t, err)
	require.Same(t, batch, got.Batch)
}

func TestBatchStreamPreHolocenePassesThroughRawSpanBatch(t *testing.T) {
	cfg := &rollup.Config{}
	span := &SpanBatch{BlockCount: 1, OriginBits: []bool{false}, BlockTxCounts: []uint64{0}}
	src := &fakeBatchSource{batches: []Batch{span}, origin: eth.L1BlockRef{Time: 5}}
	bs := NewBatchStream(log.New(), cfg, src, &fakeSafeBlockFetcher{})

	got, err := bs.NextBatch(eth.L2BlockRef{})
	require.NoError(t, err)
	require.Same(t, Batch(span), got.Batch)
}

func TestBatchStreamPostHoloceneExpandsSpanBatch(t *testing.T) {
	holocene := uint64(0)
	cfg := &rollup.Config{HoloceneTime: &holocene}

	safeHead := eth.L2BlockRef{Hash: common.HexToHash("0xaa")}
	var parentCheck [20]byte
	copy(parentCheck[:], safeHead.Hash[:20])

	span := &SpanBatch{
		BlockCount:    2,
		OriginBits:    []bool{false, false},
		BlockTxCounts: []uint64{1, 1},
		Transactions:  [][]byte{{0x01}, {0x02}},
		ParentCheck:   parentCheck,
		L1OriginNum:   7,
	}
	src := &fakeBatchSource{batches: []Batch{span}, origin: eth.L1BlockRef{Time: 5}}
	bs := NewBatchStream(log.New(), cfg, src, &fakeSafeBlockFetcher{ref: safeHead})

	first, err := bs.NextBatch(safeHead)
	require.NoError(t, err)
	single := first.Batch.(*SingularBatch)
	require.Equal(t, safeHead.Hash, single.ParentHash)
	require.Equal(t, [][]byte{{0x01}}, single.Transactions)

	second, err := bs.NextBatch(safeHead)
	require.NoError(t, err)
	require.Equal(t, [][]byte{{0x02}}, second.Batch.(*SingularBatch).Transactions)
}

func TestBatchStreamExpandUsesSafeHeadNotGenesisFetch(t *testing.T) {
	holocene := uint64(0)
	cfg := &rollup.Config{HoloceneTime: &holocene}

	// safeHead is a block well past genesis; the fetcher's canned ref is a different hash
	// entirely, so if expand ever fell back to fetching block 0 this assertion would fail.
	safeHead := eth.L2BlockRef{Number: 1000, Hash: common.HexToHash("0xaa")}
	genesisRef := eth.L2BlockRef{Number: 0, Hash: common.HexToHash("0xdeadbeef")}
	var parentCheck [20]byte
	copy(parentCheck[:], safeHead.Hash[:20])

	span := &SpanBatch{
		BlockCount:    1,
		OriginBits:    []bool{false},
		BlockTxCounts: []uint64{0},
		ParentCheck:   parentCheck,
	}
	src := &fakeBatchSource{batches: []Batch{span}, origin: eth.L1BlockRef{Time: 5}}
	bs := NewBatchStream(log.New(), cfg, src, &fakeSafeBlockFetcher{ref: genesisRef})

	first, err := bs.NextBatch(safeHead)
	require.NoError(t, err)
	require.Equal(t, safeHead.Hash, first.Batch.(*SingularBatch).ParentHash)
}

func TestBatchStreamPostHoloceneRejectsBadPrefix(t *testing.T) {
	holocene := uint64(0)
	cfg := &rollup.Config{HoloceneTime: &holocene}

	span := &SpanBatch{BlockCount: 1, OriginBits: []bool{false}, BlockTxCounts: []uint64{0}, ParentCheck: [20]byte{0xcc}}
	src := &fakeBatchSource{batches: []Batch{span}, origin: eth.L1BlockRef{Time: 5}}
	bs := NewBatchStream(log.New(), cfg, src, &fakeSafeBlockFetcher{})

	_, err := bs.NextBatch(eth.L2BlockRef{Hash: common.HexToHash("0xbb")})
	require.ErrorIs(t, err, NotEnoughData)
}

func TestBatchStreamReset(t *testing.T) {
	cfg := &rollup.Config{}
	bs := NewBatchStream(log.New(), cfg, &fakeBatchSource{}, &fakeSafeBlockFetcher{})
	bs.pending = []*SingularBatch{{}}
	bs.Reset()
	require.Empty(t, bs.pending)
}
