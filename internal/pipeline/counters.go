package pipeline

// DefaultMaxFailures is the consecutive-failure ceiling per stage.
const DefaultMaxFailures = 3

// FailureCounters tracks consecutive failures per stage for a single run.
// It is not safe for concurrent use; each run owns its own.
type FailureCounters struct {
	ceiling int
	counts  map[StageName]int
}

// NewFailureCounters returns zeroed counters with the given ceiling. A
// non-positive ceiling uses DefaultMaxFailures.
func NewFailureCounters(ceiling int) *FailureCounters {
	if ceiling <= 0 {
		ceiling = DefaultMaxFailures
	}
	return &FailureCounters{ceiling: ceiling, counts: make(map[StageName]int)}
}

// Ceiling returns the failure ceiling.
func (c *FailureCounters) Ceiling() int { return c.ceiling }

// Get returns the current consecutive failure count for stage.
func (c *FailureCounters) Get(stage StageName) int { return c.counts[stage] }

// Fail records a failure and returns the new count.
func (c *FailureCounters) Fail(stage StageName) int {
	c.counts[stage]++
	return c.counts[stage]
}

// Reset zeroes the counter after a success.
func (c *FailureCounters) Reset(stage StageName) { delete(c.counts, stage) }

// Exhausted reports whether stage has hit the ceiling.
func (c *FailureCounters) Exhausted(stage StageName) bool {
	return c.counts[stage] >= c.ceiling
}

// Snapshot returns a copy of the non-zero counters.
func (c *FailureCounters) Snapshot() map[StageName]int {
	out := make(map[StageName]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}
