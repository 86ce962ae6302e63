package derive

import (
	"bytes"
	"compress/zlib"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/fault-proof-core/op-node/rollup"
	"github.com/ethereum-optimism/fault-proof-core/op-service/eth"
)

// fakeChannelSource replays a fixed list of already-assembled channel byte strings.
type fakeChannelSource struct {
	data   [][]byte
	origin eth.L1BlockRef
	i      int
}

func (f *fakeChannelSource) NextData() ([]byte, error) {
	if f.i >= len(f.data) {
		return nil, EOF
	}
	d := f.data[f.i]
	f.i++
	return d, nil
}

func (f *fakeChannelSource) Origin() eth.L1BlockRef { return f.origin }

func zlibCompress(t *testing.T, data []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// batchStream encodes a sequence of batches the way they appear in a real decompressed channel:
// each batch's type-tagged payload wrapped as a single RLP byte string, back to back with no
// other framing.
func batchStream(t *testing.T, batches ...Batch) []byte {
	var out []byte
	for _, b := range batches {
		enc, err := b.(interface{ EncodeRLP() ([]byte, error) }).EncodeRLP()
		require.NoError(t, err)
		wrapped, err := rlp.EncodeToBytes(enc)
		require.NoError(t, err)
		out = append(out, wrapped...)
	}
	return out
}

func TestChannelReaderDecodesZlibBatch(t *testing.T) {
	batch := &SingularBatch{Timestamp: 100, Transactions: [][]byte{{0x01}}}
	stream := batchStream(t, batch)
	compressed := zlibCompress(t, stream)

	src := &fakeChannelSource{data: [][]byte{compressed}, origin: eth.L1BlockRef{Time: 10}}
	cr := NewChannelReader(log.New(), &rollup.Config{}, src)

	got, err := cr.NextBatch()
	require.NoError(t, err)
	require.Equal(t, SingularBatchType, got.GetBatchType())
	require.Equal(t, uint64(100), got.GetTimestamp())
}

func TestChannelReaderDecodesBrotliPostFjord(t *testing.T) {
	fjord := uint64(0)
	batch := &SingularBatch{Timestamp: 200}
	stream := batchStream(t, batch)

	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	_, err := w.Write(stream)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	tagged := append([]byte{brotliChannelTag}, buf.Bytes()...)

	src := &fakeChannelSource{data: [][]byte{tagged}, origin: eth.L1BlockRef{Time: 10}}
	cr := NewChannelReader(log.New(), &rollup.Config{FjordTime: &fjord}, src)

	got, err := cr.NextBatch()
	require.NoError(t, err)
	require.Equal(t, uint64(200), got.GetTimestamp())
}

func TestChannelReaderEmitsMultipleBatchesFromOneChannel(t *testing.T) {
	b1 := &SingularBatch{Timestamp: 1}
	b2 := &SingularBatch{Timestamp: 2}
	stream := batchStream(t, b1, b2)
	compressed := zlibCompress(t, stream)

	src := &fakeChannelSource{data: [][]byte{compressed}, origin: eth.L1BlockRef{Time: 10}}
	cr := NewChannelReader(log.New(), &rollup.Config{}, src)

	got1, err := cr.NextBatch()
	require.NoError(t, err)
	require.Equal(t, uint64(1), got1.GetTimestamp())

	got2, err := cr.NextBatch()
	require.NoError(t, err)
	require.Equal(t, uint64(2), got2.GetTimestamp())
}

func TestChannelReaderDropsMalformedChannelAndContinues(t *testing.T) {
	good := &SingularBatch{Timestamp: 42}
	compressedGood := zlibCompress(t, batchStream(t, good))

	src := &fakeChannelSource{data: [][]byte{{0xff, 0xff, 0xff}, compressedGood}, origin: eth.L1BlockRef{Time: 10}}
	cr := NewChannelReader(log.New(), &rollup.Config{}, src)

	got, err := cr.NextBatch()
	require.NoError(t, err)
	require.Equal(t, uint64(42), got.GetTimestamp())
}

func TestDecodeBatchStreamRejectsTruncatedItem(t *testing.T) {
	// 0x85 declares a 5 byte RLP string but only 2 bytes follow.
	_, err := decodeBatchStream([]byte{0x85, 0x01, 0x02}, 0, 2)
	require.Error(t, err)
}

func TestDecodeBatchStreamRejectsEmptyBatchPayload(t *testing.T) {
	wrapped, err := rlp.EncodeToBytes([]byte{})
	require.NoError(t, err)
	_, err = decodeBatchStream(wrapped, 0, 2)
	require.Error(t, err)
}
