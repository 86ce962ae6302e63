package derive

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/ethereum-optimism/fault-proof-core/op-node/rollup"
	"github.com/ethereum-optimism/fault-proof-core/op-service/eth"
)

// channelDataSource is the upstream contract the channel reader pulls assembled channel bytes
// from (either ChannelAssembler or ChannelBank).
type channelDataSource interface {
	NextData() ([]byte, error)
	Origin() eth.L1BlockRef
}

// brotliChannelTag marks a Fjord-era channel payload as brotli-compressed instead of zlib
// (spec §4.5.C8); chosen to never collide with a valid zlib header's first byte (0x78).
const brotliChannelTag = 0x01

// ChannelReader is C8: it decompresses a channel's bytes and decodes the resulting RLP stream
// into a sequence of Batch items.
type ChannelReader struct {
	log  log.Logger
	cfg  *rollup.Config
	prev channelDataSource

	batches []Batch
}

func NewChannelReader(log log.Logger, cfg *rollup.Config, prev channelDataSource) *ChannelReader {
	return &ChannelReader{log: log, cfg: cfg, prev: prev}
}

func (cr *ChannelReader) Origin() eth.L1BlockRef { return cr.prev.Origin() }

func decompressChannel(cfg *rollup.Config, originTime uint64, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty channel data")
	}
	if cfg.IsFjord(originTime) && data[0] == brotliChannelTag {
		r := brotli.NewReader(bytes.NewReader(data[1:]))
		out, err := io.ReadAll(io.LimitReader(r, int64(cfg.MaxRLPBytesPerChannel(originTime))))
		if err != nil {
			return nil, fmt.Errorf("failed to brotli-decompress channel: %w", err)
		}
		return out, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open zlib channel reader: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, int64(cfg.MaxRLPBytesPerChannel(originTime))))
	if err != nil {
		return nil, fmt.Errorf("failed to zlib-decompress channel: %w", err)
	}
	return out, nil
}

// NextBatch returns the next decoded batch from the current channel, pulling and decompressing
// a new channel from upstream once the current one is exhausted.
func (cr *ChannelReader) NextBatch() (Batch, error) {
	for len(cr.batches) == 0 {
		data, err := cr.prev.NextData()
		if err != nil {
			return nil, err
		}
		origin := cr.prev.Origin()
		decompressed, derr := decompressChannel(cr.cfg, origin.Time, data)
		if derr != nil {
			cr.log.Warn("dropping channel that failed to decompress", "err", derr)
			continue
		}
		batches, berr := decodeBatchStream(decompressed, cr.cfg.Genesis.L2Time, cr.cfg.BlockTime)
		if berr != nil {
			cr.log.Warn("dropping channel with malformed batch stream", "err", berr)
			continue
		}
		cr.batches = batches
	}
	b := cr.batches[0]
	cr.batches = cr.batches[1:]
	return b, nil
}

// decodeBatchStream decodes a sequence of RLP-encoded Batch items (spec §4.5.C8). Each batch is
// written to the channel as a single RLP byte string wrapping its type-tagged payload, so the
// sequence is self-delimiting: a streaming RLP decoder walks it item by item with no extra
// framing, the same way the rest of the OP Stack reads a channel's batches.
func decodeBatchStream(data []byte, genesisTime, blockTime uint64) ([]Batch, error) {
	var out []Batch
	stream := rlp.NewStream(bytes.NewReader(data), 0)
	for {
		var raw []byte
		if err := stream.Decode(&raw); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode batch item: %w", err)
		}
		batch, err := DecodeBatch(raw, genesisTime, blockTime)
		if err != nil {
			return nil, err
		}
		out = append(out, batch)
	}
	return out, nil
}
