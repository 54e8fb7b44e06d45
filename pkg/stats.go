package filehashcache

import (
	"fmt"
	"sync/atomic"
)

// StatsEvent reports hit/miss counters of one engine for observability
// tooling. Counters are cumulative since construction or the last reset.
type StatsEvent struct {
	Engine     string
	Hits       int64
	Misses     int64
	SizeHits   int64
	SizeMisses int64
	Entries    int
}

// HitRate returns hits as a percentage of all digest lookups.
func (e StatsEvent) HitRate() float64 {
	total := e.Hits + e.Misses
	if total == 0 {
		return 0
	}
	return float64(e.Hits) / float64(total) * 100
}

func (e StatsEvent) String() string {
	return fmt.Sprintf("%s: %d entries, %d hits, %d misses (%.1f%%), size %d/%d",
		e.Engine, e.Entries, e.Hits, e.Misses, e.HitRate(), e.SizeHits, e.SizeMisses)
}

// engineCounters are the instrumentation counters shared by engines.
type engineCounters struct {
	hits       atomic.Int64
	misses     atomic.Int64
	sizeHits   atomic.Int64
	sizeMisses atomic.Int64
}

func (c *engineCounters) snapshot(engine string, entries int) StatsEvent {
	return StatsEvent{
		Engine:     engine,
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		SizeHits:   c.sizeHits.Load(),
		SizeMisses: c.sizeMisses.Load(),
		Entries:    entries,
	}
}

func (c *engineCounters) reset() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.sizeHits.Store(0)
	c.sizeMisses.Store(0)
}
