package decoder

// frameCounters tracks a per-second and a per-minute frame count by
// comparing the current virtual time against the last window reset,
// exactly like the original's scalar last-sample-timestamp comparison
// (not a sliding window).
type frameCounters struct {
	perSecond     int64
	perMinute     int64
	lastSecondAt  float64
	lastMinuteAt  float64

	traceFps func(int64)
	traceFpm func(int64)
}

func (c *frameCounters) sample(now float64) {
	c.perSecond++
	c.perMinute++
	if now-c.lastSecondAt >= 1.0 {
		c.lastSecondAt = now
		if c.traceFps != nil {
			c.traceFps(c.perSecond)
		}
		c.perSecond = 0
	}
	if now-c.lastMinuteAt >= 60.0 {
		c.lastMinuteAt = now
		if c.traceFpm != nil {
			c.traceFpm(c.perMinute)
		}
		c.perMinute = 0
	}
}
