package filehashcache

import (
	"github.com/jmgilman/go/errors"
)

// HashLoader computes the record of a root-relative path on a cache miss.
type HashLoader func(path string) (HashRecord, error)

// SizeLoader computes the total byte size under a root-relative path.
type SizeLoader func(path string) (int64, error)

// Engine memoises records and sizes per path.
//
// Get, GetRecord and GetSize run their loader at most once at a time per
// path: concurrent callers for an absent path wait for the single running
// computation and all receive its result or its error. Errors are never
// cached.
//
// Invalidate racing an in-flight load of the same path is relaxed: the path
// may end up cached with the value the load produced. Engines built with
// strict invalidation discard such a value instead.
type Engine interface {
	Get(path string) (HashCode, error)
	GetRecord(path string) (HashRecord, error)
	GetArchiveMember(member ArchiveMemberPath) (HashCode, error)
	GetIfPresent(path string) (HashRecord, bool)
	Put(path string, record HashRecord)
	Invalidate(path string)
	InvalidateAll()
	AsMap() map[string]HashRecord
	GetSize(path string) (int64, error)
	StatsEvents() []StatsEvent
	ResetStats()
}

// EngineKind selects the engine implementation at construction.
type EngineKind int

const (
	// EngineLoading is the map-backed baseline engine.
	EngineLoading EngineKind = iota
	// EngineSkiplist keeps entries ordered by path in a skiplist.
	EngineSkiplist
	// EngineCombo runs the baseline and skiplist engines side by side and
	// records every disagreement.
	EngineCombo
)

func (k EngineKind) String() string {
	switch k {
	case EngineLoading:
		return "loading"
	case EngineSkiplist:
		return "skiplist"
	case EngineCombo:
		return "combo"
	default:
		return "unknown"
	}
}

// ParseEngineKind maps a configuration name to an EngineKind.
func ParseEngineKind(name string) (EngineKind, error) {
	switch name {
	case "", "loading":
		return EngineLoading, nil
	case "skiplist":
		return EngineSkiplist, nil
	case "combo":
		return EngineCombo, nil
	default:
		return 0, errors.Newf(errors.CodeInvalidConfig, "unsupported cache engine: %s (supported: loading, skiplist, combo)", name)
	}
}

// NewEngine builds the engine of the given kind around the loaders.
func NewEngine(kind EngineKind, hashLoader HashLoader, sizeLoader SizeLoader, strictInvalidation bool, logger *Logger) Engine {
	if logger == nil {
		logger = nopLogger()
	}
	switch kind {
	case EngineSkiplist:
		return newSkiplistEngine(hashLoader, sizeLoader, strictInvalidation)
	case EngineCombo:
		return newComboEngine(
			newLoadingEngine(hashLoader, sizeLoader, strictInvalidation),
			newSkiplistEngine(hashLoader, sizeLoader, strictInvalidation),
			logger,
		)
	default:
		return newLoadingEngine(hashLoader, sizeLoader, strictInvalidation)
	}
}

// memberDigest resolves an archive member through any engine's record lookup.
func memberDigest(getRecord func(string) (HashRecord, error), member ArchiveMemberPath) (HashCode, error) {
	record, err := getRecord(member.ArchivePath)
	if err != nil {
		return nil, err
	}
	if record.Kind != KindArchive {
		return nil, errors.Newf(errors.CodeInvalidInput, "%s is a %s, not an archive", member.ArchivePath, record.Kind)
	}
	return record.MemberDigest(member.MemberPath)
}

// generationToken identifies the state of a key when a load started.
type generationToken struct {
	epoch uint64
	key   uint64
}

// generations backs the optional strict invalidation mode: invalidating a
// key or the whole cache advances a counter, and a load only installs its
// value if the counter it saw at start is still current. Counters exist only
// for keys with a load in flight, so settled keys cost nothing. Callers hold
// the owning engine's write lock.
type generations struct {
	epoch    uint64
	perKey   map[string]uint64
	inflight map[string]int
}

// begin registers a load of path and returns the token it must present to end.
func (g *generations) begin(path string) generationToken {
	if g.inflight == nil {
		g.inflight = make(map[string]int)
	}
	g.inflight[path]++
	return generationToken{epoch: g.epoch, key: g.perKey[path]}
}

// end unregisters a load and reports whether no invalidation overtook it.
func (g *generations) end(path string, token generationToken) bool {
	current := token == generationToken{epoch: g.epoch, key: g.perKey[path]}
	if g.inflight[path]--; g.inflight[path] <= 0 {
		delete(g.inflight, path)
		delete(g.perKey, path)
	}
	return current
}

// bump marks loads of path in flight as stale.
func (g *generations) bump(path string) {
	if g.inflight[path] == 0 {
		return
	}
	if g.perKey == nil {
		g.perKey = make(map[string]uint64)
	}
	g.perKey[path]++
}

// bumpAll marks every load in flight as stale.
func (g *generations) bumpAll() {
	g.epoch++
	clear(g.perKey)
}
