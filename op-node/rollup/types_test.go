package rollup

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func u64(v uint64) *uint64 { return &v }

func TestCheckAcceptsMonotonicForkOrder(t *testing.T) {
	cfg := &Config{
		RegolithTime: u64(0),
		CanyonTime:   u64(10),
		DeltaTime:    u64(10),
		EcotoneTime:  u64(20),
	}
	require.NoError(t, cfg.Check())
}

func TestCheckRejectsOutOfOrderForks(t *testing.T) {
	cfg := &Config{
		CanyonTime:  u64(20),
		DeltaTime:   u64(20),
		EcotoneTime: u64(10),
	}
	err := cfg.Check()
	require.Error(t, err)
}

func TestCheckToleratesNeverActivatedGapForks(t *testing.T) {
	cfg := &Config{
		RegolithTime: u64(0),
		CanyonTime:   u64(10),
		// DeltaTime left nil: forks after a never-activated fork are unconstrained relative to it.
		EcotoneTime: u64(5),
	}
	require.NoError(t, cfg.Check())
}

func TestBaseFeeParamsSwitchesDenominatorAtCanyon(t *testing.T) {
	cfg := &Config{
		CanyonTime:               u64(100),
		EIP1559Elasticity:        6,
		EIP1559Denominator:       50,
		EIP1559DenominatorCanyon: 250,
	}
	denom, elasticity := cfg.BaseFeeParams(99)
	require.Equal(t, uint32(50), denom)
	require.Equal(t, uint32(6), elasticity)

	denom, elasticity = cfg.BaseFeeParams(100)
	require.Equal(t, uint32(250), denom)
	require.Equal(t, uint32(6), elasticity)
}

func TestChannelTimeoutSwitchesAtGranite(t *testing.T) {
	cfg := &Config{ChannelTimeoutBedrock: 300, ChannelTimeoutGranite: 50, GraniteTime: u64(100)}
	require.Equal(t, uint64(300), cfg.ChannelTimeout(99))
	require.Equal(t, uint64(50), cfg.ChannelTimeout(100))
}

func TestMaxRLPBytesPerChannelSwitchesAtFjord(t *testing.T) {
	cfg := &Config{FjordTime: u64(100)}
	require.Equal(t, uint64(10_000_000), cfg.MaxRLPBytesPerChannel(99))
	require.Equal(t, uint64(100_000_000), cfg.MaxRLPBytesPerChannel(100))
}
