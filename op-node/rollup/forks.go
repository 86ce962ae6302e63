package rollup

// A fork is "active at time t" iff its activation time is set and <= t (spec §4.10).
func isActive(forkTime *uint64, t uint64) bool {
	return forkTime != nil && *forkTime <= t
}

// isActivationBlock reports whether t is the first L2 timestamp at which forkTime is active,
// i.e. the block that newly crosses the fork boundary. block_time is needed to check the
// predecessor timestamp.
func isActivationBlock(forkTime *uint64, t uint64, blockTime uint64) bool {
	if !isActive(forkTime, t) {
		return false
	}
	if t < blockTime {
		// No predecessor block exists; a fork scheduled at time 0 counts as activating at genesis.
		return *forkTime == 0 && t == 0
	}
	return !isActive(forkTime, t-blockTime)
}

func (c *Config) IsRegolith(t uint64) bool { return isActive(c.RegolithTime, t) }
func (c *Config) IsCanyon(t uint64) bool   { return isActive(c.CanyonTime, t) }
func (c *Config) IsDelta(t uint64) bool    { return isActive(c.DeltaTime, t) }
func (c *Config) IsEcotone(t uint64) bool  { return isActive(c.EcotoneTime, t) }
func (c *Config) IsFjord(t uint64) bool    { return isActive(c.FjordTime, t) }
func (c *Config) IsGranite(t uint64) bool  { return isActive(c.GraniteTime, t) }
func (c *Config) IsHolocene(t uint64) bool { return isActive(c.HoloceneTime, t) }
func (c *Config) IsIsthmus(t uint64) bool  { return isActive(c.IsthmusTime, t) }
func (c *Config) IsInterop(t uint64) bool  { return isActive(c.InteropTime, t) }

func (c *Config) IsCanyonActivationBlock(t uint64) bool {
	return isActivationBlock(c.CanyonTime, t, c.BlockTime)
}

func (c *Config) IsEcotoneActivationBlock(t uint64) bool {
	return isActivationBlock(c.EcotoneTime, t, c.BlockTime)
}

func (c *Config) IsFjordActivationBlock(t uint64) bool {
	return isActivationBlock(c.FjordTime, t, c.BlockTime)
}

func (c *Config) IsGraniteActivationBlock(t uint64) bool {
	return isActivationBlock(c.GraniteTime, t, c.BlockTime)
}

func (c *Config) IsIsthmusActivationBlock(t uint64) bool {
	return isActivationBlock(c.IsthmusTime, t, c.BlockTime)
}

// IsSpanBatch reports whether the Delta-activated span-batch format is in effect at time t.
func (c *Config) IsSpanBatch(t uint64) bool { return c.IsDelta(t) }
