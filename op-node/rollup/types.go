// Package rollup defines the rollup configuration and fork schedule (spec §3 RollupConfig, §4.10).
package rollup

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethereum-optimism/fault-proof-core/op-service/eth"
)

// Genesis anchors the derivation pipeline to its starting L1/L2 block pair.
type Genesis struct {
	L1            eth.BlockID         `json:"l1"`
	L2            eth.BlockID         `json:"l2"`
	L2Time        uint64              `json:"l2Time"`
	SystemConfig  eth.SystemConfig    `json:"systemConfig"`
}

// Config is the RollupConfig of spec §3: genesis anchor, timing parameters, and the timestamped
// fork-activation schedule.
type Config struct {
	Genesis Genesis `json:"genesis"`

	BlockTime         uint64 `json:"blockTime"`
	MaxSequencerDrift uint64 `json:"maxSequencerDrift"`
	SeqWindowSize     uint64 `json:"seqWindowSize"`

	// ChannelTimeoutBedrock is the channel timeout (in L1 blocks) before Granite.
	ChannelTimeoutBedrock uint64 `json:"channelTimeout"`
	// ChannelTimeoutGranite supersedes ChannelTimeoutBedrock once Granite is active.
	ChannelTimeoutGranite uint64 `json:"channelTimeoutGranite"`

	L2ChainID uint64 `json:"l2ChainId"`

	DepositContractAddress common.Address `json:"depositContractAddress"`
	BatchInboxAddress      common.Address `json:"batchInboxAddress"`
	BatcherAddress         common.Address `json:"batcherAddr"`
	L1SystemConfigAddress  common.Address `json:"l1SystemConfigAddress"`

	RegolithTime *uint64 `json:"regolithTime,omitempty"`
	CanyonTime   *uint64 `json:"canyonTime,omitempty"`
	DeltaTime    *uint64 `json:"deltaTime,omitempty"`
	EcotoneTime  *uint64 `json:"ecotoneTime,omitempty"`
	FjordTime    *uint64 `json:"fjordTime,omitempty"`
	GraniteTime  *uint64 `json:"graniteTime,omitempty"`
	HoloceneTime *uint64 `json:"holoceneTime,omitempty"`
	IsthmusTime  *uint64 `json:"isthmusTime,omitempty"`
	InteropTime  *uint64 `json:"interopTime,omitempty"`

	// EIP1559Elasticity is the pre-Holocene, chain-wide EIP-1559 elasticity multiplier.
	EIP1559Elasticity uint64 `json:"eip1559Elasticity"`
	// EIP1559Denominator is the pre-Canyon EIP-1559 base fee denominator.
	EIP1559Denominator uint64 `json:"eip1559Denominator"`
	// EIP1559DenominatorCanyon supersedes EIP1559Denominator once Canyon is active.
	EIP1559DenominatorCanyon uint64 `json:"eip1559DenominatorCanyon"`
}

// BaseFeeParams returns the chain-wide (denominator, elasticity) pair used pre-Holocene, or as the
// Holocene payload-override fallback (spec §4.7 step 6, §4.9 step 1).
func (c *Config) BaseFeeParams(t uint64) (denominator, elasticity uint32) {
	d := c.EIP1559Denominator
	if c.IsCanyon(t) {
		d = c.EIP1559DenominatorCanyon
	}
	return uint32(d), uint32(c.EIP1559Elasticity)
}

// ChannelTimeout returns the fork-dependent channel timeout (spec §3 Channel invariant) for a
// channel whose first frame was observed when the current L1 origin had the given timestamp.
func (c *Config) ChannelTimeout(originTime uint64) uint64 {
	if c.IsGranite(originTime) {
		return c.ChannelTimeoutGranite
	}
	return c.ChannelTimeoutBedrock
}

// MaxRLPBytesPerChannel returns the fork-dependent channel size bound (spec §3 Channel invariant).
func (c *Config) MaxRLPBytesPerChannel(originTime uint64) uint64 {
	const (
		preFjord  = 10_000_000
		postFjord = 100_000_000
	)
	if c.IsFjord(originTime) {
		return postFjord
	}
	return preFjord
}

// Check validates that every configured fork activation obeys the total fork order (spec §4.10).
func (c *Config) Check() error {
	order := c.orderedForks()
	var prev *uint64
	for _, f := range order {
		if f.t == nil {
			prev = nil
			continue
		}
		if prev != nil && *f.t < *prev {
			return fmt.Errorf("fork %s activates at %d, before an earlier fork at %d", f.name, *f.t, *prev)
		}
		prev = f.t
	}
	return nil
}

type namedFork struct {
	name string
	t    *uint64
}

// orderedForks returns the fork activation times in the spec's total order: Bedrock (implicit,
// always active) < Regolith < Canyon < Delta < Ecotone < Fjord < Granite < Holocene < Isthmus <
// Interop. A nil entry means "never activates" and resets the monotonicity chain, since forks
// after a never-activated fork are unconstrained relative to it.
func (c *Config) orderedForks() []namedFork {
	return []namedFork{
		{"regolith", c.RegolithTime},
		{"canyon", c.CanyonTime},
		{"delta", c.DeltaTime},
		{"ecotone", c.EcotoneTime},
		{"fjord", c.FjordTime},
		{"granite", c.GraniteTime},
		{"holocene", c.HoloceneTime},
		{"isthmus", c.IsthmusTime},
		{"interop", c.InteropTime},
	}
}
