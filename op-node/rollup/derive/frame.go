package derive

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum-optimism/fault-proof-core/op-service/eth"
)

// DerivationVersion0 is the only currently-understood batcher-data version byte.
const DerivationVersion0 = 0

const (
	frameV0ChannelIDLen   = 16
	frameV0NumberLen      = 2
	frameV0DataLenLen     = 4
	frameV0IsLastLen      = 1
	frameV0MinSize        = frameV0ChannelIDLen + frameV0NumberLen + frameV0DataLenLen + frameV0IsLastLen
	maxFrameLen           = 1_000_000
)

// ChannelID identifies the channel a frame belongs to (spec §3 Frame).
type ChannelID [16]byte

func (id ChannelID) String() string { return fmt.Sprintf("%x", id[:]) }

// Frame is the smallest unit of batcher data (spec §3 Frame).
type Frame struct {
	ID     ChannelID
	Number uint16
	Data   []byte
	IsLast bool
}

// parseFrames parses one versioned batcher-submission payload into its ordered frames (C6),
// per the wire format in spec §4.5.C6. A malformed tail drops the remainder of this payload
// without returning an error, consistent with §7's "drop silently" rule for untrusted L1 data.
func parseFrames(data []byte) ([]Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty frame payload")
	}
	if data[0] != DerivationVersion0 {
		return nil, fmt.Errorf("unrecognized derivation version: %d", data[0])
	}
	var frames []Frame
	rest := data[1:]
	for len(rest) > 0 {
		if len(rest) < frameV0MinSize {
			break
		}
		var id ChannelID
		copy(id[:], rest[:frameV0ChannelIDLen])
		off := frameV0ChannelIDLen
		number := binary.BigEndian.Uint16(rest[off : off+frameV0NumberLen])
		off += frameV0NumberLen
		dataLen := binary.BigEndian.Uint32(rest[off : off+frameV0DataLenLen])
		off += frameV0DataLenLen
		if dataLen > maxFrameLen || uint64(off)+uint64(dataLen)+1 > uint64(len(rest)) {
			break
		}
		frameData := rest[off : off+int(dataLen)]
		off += int(dataLen)
		isLast := rest[off] != 0
		off += frameV0IsLastLen
		frames = append(frames, Frame{ID: id, Number: number, Data: frameData, IsLast: isLast})
		rest = rest[off:]
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no valid frames parsed from payload")
	}
	return frames, nil
}

// FrameQueue is C6: it pulls opaque L1-inclusion-tagged payloads from the retrieval stage (C5)
// and emits their constituent frames, in source order, one at a time.
type FrameQueue struct {
	prev   L1RetrievalStage
	queue  []Frame
}

// L1RetrievalStage is the upstream contract FrameQueue pulls from (C5's output interface).
type L1RetrievalStage interface {
	NextData() ([]byte, error)
	Origin() eth.L1BlockRef
}

func NewFrameQueue(prev L1RetrievalStage) *FrameQueue {
	return &FrameQueue{prev: prev}
}

func (fq *FrameQueue) Origin() eth.L1BlockRef { return fq.prev.Origin() }

// NextFrame returns the next frame in the queue, pulling and parsing new payloads from upstream
// as needed. A payload that yields no frame is skipped here and the next one is pulled; errors
// from upstream are returned as-is.
func (fq *FrameQueue) NextFrame() (Frame, error) {
	for len(fq.queue) == 0 {
		data, err := fq.prev.NextData()
		if err != nil {
			// Temporary (Eof/NotEnoughData) errors propagate as-is; the caller retries later.
			return Frame{}, err
		}
		frames, ferr := parseFrames(data)
		if ferr != nil {
			// Malformed tail / payload: drop silently (spec §7) and pull the next payload.
			continue
		}
		fq.queue = frames
	}
	f := fq.queue[0]
	fq.queue = fq.queue[1:]
	return f, nil
}
