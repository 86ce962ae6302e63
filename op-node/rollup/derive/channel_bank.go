package derive

import (
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/fault-proof-core/op-node/rollup"
	"github.com/ethereum-optimism/fault-proof-core/op-service/eth"
)

// MaxChannelBankSize bounds the FIFO's total accumulated bytes (spec §5 resource policy).
const MaxChannelBankSize = 100_000_000

// ChannelBank is the pre-Holocene alternative to ChannelAssembler (spec §5, §9 supplemented
// feature): a FIFO of concurrently-open channels, pruned oldest-first once the total buffered
// size exceeds MaxChannelBankSize. Both configurations hold frames exactly the same way
// (Channel.AddFrame); they differ only in how many channels may be open at once.
type ChannelBank struct {
	log  log.Logger
	cfg  *rollup.Config
	prev frameSource

	order   []ChannelID
	byID    map[ChannelID]*Channel
	totalSz uint64
}

func NewChannelBank(log log.Logger, cfg *rollup.Config, prev frameSource) *ChannelBank {
	return &ChannelBank{log: log, cfg: cfg, prev: prev, byID: make(map[ChannelID]*Channel)}
}

func (cb *ChannelBank) Origin() eth.L1BlockRef { return cb.prev.Origin() }

func (cb *ChannelBank) Reset() {
	cb.order = nil
	cb.byID = make(map[ChannelID]*Channel)
	cb.totalSz = 0
}

func (cb *ChannelBank) prune() {
	origin := cb.prev.Origin()
	for len(cb.order) > 0 {
		id := cb.order[0]
		ch := cb.byID[id]
		timedOut := ch.IsTimedOut(cb.cfg, origin)
		overSize := cb.totalSz > MaxChannelBankSize
		if !timedOut && !overSize {
			break
		}
		cb.log.Warn("pruning channel from bank", "id", id, "timed_out", timedOut, "over_size", overSize)
		cb.totalSz -= ch.Size()
		delete(cb.byID, id)
		cb.order = cb.order[1:]
	}
}

// NextData returns the oldest ready channel's bytes, pulling and ingesting more frames as needed.
func (cb *ChannelBank) NextData() ([]byte, error) {
	for {
		cb.prune()
		if len(cb.order) > 0 {
			if ch := cb.byID[cb.order[0]]; ch.IsReady() {
				data, err := ch.Assemble()
				cb.totalSz -= ch.Size()
				delete(cb.byID, ch.ID())
				cb.order = cb.order[1:]
				return data, err
			}
		}

		frame, err := cb.prev.NextFrame()
		if err != nil {
			return nil, err
		}

		ch, ok := cb.byID[frame.ID]
		if !ok {
			ch = NewChannel(frame.ID, cb.prev.Origin().Number)
			cb.byID[frame.ID] = ch
			cb.order = append(cb.order, frame.ID)
		}
		prevSize := ch.Size()
		if err := ch.AddFrame(frame, false); err != nil {
			cb.log.Warn("dropping frame", "err", err, "channel", frame.ID)
			continue
		}
		cb.totalSz += ch.Size() - prevSize
	}
}
