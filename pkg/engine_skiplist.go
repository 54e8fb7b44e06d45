package filehashcache

import (
	"strings"
	"sync"

	zcsl "github.com/mattkeenan/zerocopyskiplist"
	"golang.org/x/sync/singleflight"
)

const skiplistMaxLevels = 16

// recordEntry is the item stored in the record skiplist; the skiplist
// context carries the record kind.
type recordEntry struct {
	path   string
	record HashRecord
}

type sizeEntry struct {
	path string
	size int64
}

// skiplistEngine is the candidate engine: entries are kept ordered by path
// in zero-copy skiplists instead of maps. The skiplists are not safe for
// concurrent use and are only touched under mu.
type skiplistEngine struct {
	hashLoader HashLoader
	sizeLoader SizeLoader
	strict     bool

	mu      sync.Mutex
	records *zcsl.ZeroCopySkiplist[recordEntry, string, string]
	sizes   *zcsl.ZeroCopySkiplist[sizeEntry, string, string]
	gens    generations

	hashFlight singleflight.Group
	sizeFlight singleflight.Group
	counters   engineCounters
}

func newRecordSkiplist() *zcsl.ZeroCopySkiplist[recordEntry, string, string] {
	return zcsl.MakeZeroCopySkiplist[recordEntry, string, string](
		skiplistMaxLevels,
		func(e *recordEntry) string { return e.path },
		func(e *recordEntry) int { return len(e.path) + len(e.record.Digest) },
		strings.Compare,
	)
}

func newSizeSkiplist() *zcsl.ZeroCopySkiplist[sizeEntry, string, string] {
	return zcsl.MakeZeroCopySkiplist[sizeEntry, string, string](
		skiplistMaxLevels,
		func(e *sizeEntry) string { return e.path },
		func(e *sizeEntry) int { return len(e.path) + 8 },
		strings.Compare,
	)
}

func newSkiplistEngine(hashLoader HashLoader, sizeLoader SizeLoader, strict bool) *skiplistEngine {
	return &skiplistEngine{
		hashLoader: hashLoader,
		sizeLoader: sizeLoader,
		strict:     strict,
		records:    newRecordSkiplist(),
		sizes:      newSizeSkiplist(),
	}
}

// findRecordLocked returns the stored record for path. Caller holds mu.
func (e *skiplistEngine) findRecordLocked(path string) (HashRecord, bool) {
	itemPtr, _ := e.records.Find(path)
	if itemPtr == nil {
		return HashRecord{}, false
	}
	return itemPtr.Item().record, true
}

// storeRecordLocked replaces any entry for path. Caller holds mu.
func (e *skiplistEngine) storeRecordLocked(path string, record HashRecord) {
	e.records.Delete(path)
	e.records.Insert(&recordEntry{path: path, record: record}, record.Kind.String())
}

func (e *skiplistEngine) findSizeLocked(path string) (int64, bool) {
	itemPtr, _ := e.sizes.Find(path)
	if itemPtr == nil {
		return 0, false
	}
	return itemPtr.Item().size, true
}

func (e *skiplistEngine) storeSizeLocked(path string, size int64) {
	e.sizes.Delete(path)
	e.sizes.Insert(&sizeEntry{path: path, size: size}, "size")
}

func (e *skiplistEngine) Get(path string) (HashCode, error) {
	record, err := e.GetRecord(path)
	if err != nil {
		return nil, err
	}
	return record.Digest, nil
}

func (e *skiplistEngine) GetRecord(path string) (HashRecord, error) {
	e.mu.Lock()
	record, ok := e.findRecordLocked(path)
	e.mu.Unlock()
	if ok {
		e.counters.hits.Add(1)
		return record, nil
	}

	led := false
	v, err, _ := e.hashFlight.Do(path, func() (interface{}, error) {
		led = true
		e.mu.Lock()
		if record, ok := e.findRecordLocked(path); ok {
			e.mu.Unlock()
			e.counters.hits.Add(1)
			return record, nil
		}
		token := e.beginLoadLocked(path)
		e.mu.Unlock()

		e.counters.misses.Add(1)
		record, err := e.hashLoader(path)

		e.mu.Lock()
		defer e.mu.Unlock()
		if current := e.endLoadLocked(path, token); err == nil && current {
			e.storeRecordLocked(path, record)
		}
		return record, err
	})
	if !led {
		e.counters.hits.Add(1)
	}
	if err != nil {
		return HashRecord{}, err
	}
	return v.(HashRecord), nil
}

func (e *skiplistEngine) beginLoadLocked(path string) generationToken {
	if !e.strict {
		return generationToken{}
	}
	return e.gens.begin(path)
}

func (e *skiplistEngine) endLoadLocked(path string, token generationToken) bool {
	return !e.strict || e.gens.end(path, token)
}

func (e *skiplistEngine) GetArchiveMember(member ArchiveMemberPath) (HashCode, error) {
	return memberDigest(e.GetRecord, member)
}

func (e *skiplistEngine) GetIfPresent(path string) (HashRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.findRecordLocked(path)
}

func (e *skiplistEngine) Put(path string, record HashRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.storeRecordLocked(path, record)
	if e.strict {
		e.gens.bump(path)
	}
}

func (e *skiplistEngine) Invalidate(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records.Delete(path)
	e.sizes.Delete(path)
	if e.strict {
		e.gens.bump(path)
	}
}

func (e *skiplistEngine) InvalidateAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = newRecordSkiplist()
	e.sizes = newSizeSkiplist()
	if e.strict {
		e.gens.bumpAll()
	}
}

func (e *skiplistEngine) AsMap() map[string]HashRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]HashRecord, e.records.Length())
	for current := e.records.First(); current != nil; current = current.Next() {
		entry := current.Item()
		out[entry.path] = entry.record
	}
	return out
}

func (e *skiplistEngine) GetSize(path string) (int64, error) {
	e.mu.Lock()
	size, ok := e.findSizeLocked(path)
	e.mu.Unlock()
	if ok {
		e.counters.sizeHits.Add(1)
		return size, nil
	}

	led := false
	v, err, _ := e.sizeFlight.Do(path, func() (interface{}, error) {
		led = true
		e.mu.Lock()
		if size, ok := e.findSizeLocked(path); ok {
			e.mu.Unlock()
			e.counters.sizeHits.Add(1)
			return size, nil
		}
		token := e.beginLoadLocked(path)
		e.mu.Unlock()

		e.counters.sizeMisses.Add(1)
		size, err := e.sizeLoader(path)

		e.mu.Lock()
		defer e.mu.Unlock()
		if current := e.endLoadLocked(path, token); err == nil && current {
			e.storeSizeLocked(path, size)
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

func (e *skiplistEngine) StatsEvents() []StatsEvent {
	e.mu.Lock()
	entries := e.records.Length()
	e.mu.Unlock()
	return []StatsEvent{e.counters.snapshot(EngineSkiplist.String(), entries)}
}

func (e *skiplistEngine) ResetStats() {
	e.counters.reset()
}
