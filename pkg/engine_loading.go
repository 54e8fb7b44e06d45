package filehashcache

import (
	"maps"
	"sync"

	"golang.org/x/sync/singleflight"
)

// loadingEngine is the baseline engine: two maps behind one RWMutex, with
// single-flight loads. The mutex is only held for lookups and installs,
// never across a loader call.
type loadingEngine struct {
	hashLoader HashLoader
	sizeLoader SizeLoader
	strict     bool

	mu      sync.RWMutex
	records map[string]HashRecord
	sizes   map[string]int64
	gens    generations

	hashFlight singleflight.Group
	sizeFlight singleflight.Group
	counters   engineCounters
}

func newLoadingEngine(hashLoader HashLoader, sizeLoader SizeLoader, strict bool) *loadingEngine {
	return &loadingEngine{
		hashLoader: hashLoader,
		sizeLoader: sizeLoader,
		strict:     strict,
		records:    make(map[string]HashRecord),
		sizes:      make(map[string]int64),
	}
}

func (e *loadingEngine) Get(path string) (HashCode, error) {
	record, err := e.GetRecord(path)
	if err != nil {
		return nil, err
	}
	return record.Digest, nil
}

func (e *loadingEngine) GetRecord(path string) (HashRecord, error) {
	e.mu.RLock()
	record, ok := e.records[path]
	e.mu.RUnlock()
	if ok {
		e.counters.hits.Add(1)
		return record, nil
	}

	led := false
	v, err, _ := e.hashFlight.Do(path, func() (interface{}, error) {
		led = true
		// A previous flight may have installed the value since our lookup.
		e.mu.Lock()
		if record, ok := e.records[path]; ok {
			e.mu.Unlock()
			e.counters.hits.Add(1)
			return record, nil
		}
		token := e.beginLoad(path)
		e.mu.Unlock()

		e.counters.misses.Add(1)
		record, err := e.hashLoader(path)

		e.mu.Lock()
		defer e.mu.Unlock()
		if current := e.endLoad(path, token); err == nil && current {
			e.records[path] = record
		}
		return record, err
	})
	if !led {
		// Joined another caller's load.
		e.counters.hits.Add(1)
	}
	if err != nil {
		return HashRecord{}, err
	}
	return v.(HashRecord), nil
}

// beginLoad and endLoad track loads for strict invalidation. Caller holds mu.
func (e *loadingEngine) beginLoad(path string) generationToken {
	if !e.strict {
		return generationToken{}
	}
	return e.gens.begin(path)
}

func (e *loadingEngine) endLoad(path string, token generationToken) bool {
	return !e.strict || e.gens.end(path, token)
}

func (e *loadingEngine) GetArchiveMember(member ArchiveMemberPath) (HashCode, error) {
	return memberDigest(e.GetRecord, member)
}

func (e *loadingEngine) GetIfPresent(path string) (HashRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	record, ok := e.records[path]
	return record, ok
}

func (e *loadingEngine) Put(path string, record HashRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records[path] = record
	if e.strict {
		e.gens.bump(path)
	}
}

func (e *loadingEngine) Invalidate(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.records, path)
	delete(e.sizes, path)
	if e.strict {
		e.gens.bump(path)
	}
}

func (e *loadingEngine) InvalidateAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = make(map[string]HashRecord)
	e.sizes = make(map[string]int64)
	if e.strict {
		e.gens.bumpAll()
	}
}

func (e *loadingEngine) AsMap() map[string]HashRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.records)
}

func (e *loadingEngine) GetSize(path string) (int64, error) {
	e.mu.RLock()
	size, ok := e.sizes[path]
	e.mu.RUnlock()
	if ok {
		e.counters.sizeHits.Add(1)
		return size, nil
	}

	led := false
	v, err, _ := e.sizeFlight.Do(path, func() (interface{}, error) {
		led = true
		e.mu.Lock()
		if size, ok := e.sizes[path]; ok {
			e.mu.Unlock()
			e.counters.sizeHits.Add(1)
			return size, nil
		}
		token := e.beginLoad(path)
		e.mu.Unlock()

		e.counters.sizeMisses.Add(1)
		size, err := e.sizeLoader(path)

		e.mu.Lock()
		defer e.mu.Unlock()
		if current := e.endLoad(path, token); err == nil && current {
			e.sizes[path] = size
		}
		return size, err
	})
	if !led {
		e.counters.sizeHits.Add(1)
	}
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (e *loadingEngine) StatsEvents() []StatsEvent {
	e.mu.RLock()
	entries := len(e.records)
	e.mu.RUnlock()
	return []StatsEvent{e.counters.snapshot(EngineLoading.String(), entries)}
}

func (e *loadingEngine) ResetStats() {
	e.counters.reset()
}
