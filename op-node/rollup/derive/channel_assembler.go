package derive

import (
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/fault-proof-core/op-node/rollup"
	"github.com/ethereum-optimism/fault-proof-core/op-service/eth"
)

// frameSource is the upstream contract the channel assembler pulls frames from (C6's output).
type frameSource interface {
	NextFrame() (Frame, error)
	Origin() eth.L1BlockRef
}

// ChannelAssembler is C7: it holds at most one in-progress channel (single-reader discipline,
// spec §5 resource policy) and emits the concatenated byte stream once it is ready.
type ChannelAssembler struct {
	log  log.Logger
	cfg  *rollup.Config
	prev frameSource

	current *Channel
}

func NewChannelAssembler(log log.Logger, cfg *rollup.Config, prev frameSource) *ChannelAssembler {
	return &ChannelAssembler{log: log, cfg: cfg, prev: prev}
}

func (ca *ChannelAssembler) Origin() eth.L1BlockRef { return ca.prev.Origin() }

// Reset clears the buffered channel, per the pipeline-wide Signal::Reset (spec §5 Cancellation).
func (ca *ChannelAssembler) Reset() { ca.current = nil }

// NextData returns the next assembled channel's raw bytes, or a temporary error while it waits
// for more frames.
func (ca *ChannelAssembler) NextData() ([]byte, error) {
	for {
		if ca.current != nil {
			if ca.current.IsReady() {
				data, err := ca.current.Assemble()
				ca.current = nil
				return data, err
			}
			origin := ca.prev.Origin()
			if ca.current.IsTimedOut(ca.cfg, origin) {
				ca.log.Warn("channel timed out", "id", ca.current.ID(), "open_block", ca.current.OpenBlockNumber())
				ca.current = nil
				return nil, NotEnoughData
			}
			if ca.current.Size() > ca.cfg.MaxRLPBytesPerChannel(origin.Time) {
				ca.log.Warn("channel exceeded max size", "id", ca.current.ID(), "size", ca.current.Size())
				ca.current = nil
				return nil, NotEnoughData
			}
		}

		frame, err := ca.prev.NextFrame()
		if err != nil {
			return nil, err
		}

		origin := ca.prev.Origin()
		strictOrder := ca.cfg.IsHolocene(origin.Time)

		if ca.current == nil {
			if frame.Number != 0 {
				ca.log.Warn("discarding frame with no open channel and non-zero frame number", "number", frame.Number)
				continue
			}
			ca.current = NewChannel(frame.ID, origin.Number)
		}

		if frame.ID != ca.current.ID() {
			if strictOrder {
				ca.log.Warn("discarding frame for a different channel while one is open post-Holocene", "frame_channel", frame.ID, "open_channel", ca.current.ID())
				continue
			}
			// Pre-Holocene, a frame for a new channel while one is in progress replaces it
			// (single-reader discipline prunes the stale one).
			if frame.Number != 0 {
				continue
			}
			ca.current = NewChannel(frame.ID, origin.Number)
		}

		if err := ca.current.AddFrame(frame, strictOrder); err != nil {
			ca.log.Warn("dropping frame", "err", err, "channel", frame.ID, "number", frame.Number)
			continue
		}
	}
}
