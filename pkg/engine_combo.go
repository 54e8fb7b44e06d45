package filehashcache

import (
	"fmt"
	"slices"
	"sync"
)

// Discrepancy is one disagreement between the baseline and candidate engines.
type Discrepancy struct {
	Op        string
	Path      string
	Baseline  string
	Candidate string
}

func (d Discrepancy) String() string {
	return fmt.Sprintf("%s %s: baseline=%s candidate=%s", d.Op, d.Path, d.Baseline, d.Candidate)
}

// comboEngine issues every call to a trusted baseline and a candidate
// engine. Disagreements are recorded and logged; callers always get the
// baseline's answer, so a faulty candidate never changes build outcomes.
type comboEngine struct {
	baseline  Engine
	candidate Engine
	logger    *Logger

	mu            sync.Mutex
	discrepancies []Discrepancy
}

func newComboEngine(baseline, candidate Engine, logger *Logger) *comboEngine {
	return &comboEngine{baseline: baseline, candidate: candidate, logger: logger}
}

func (e *comboEngine) record(op, path, baseline, candidate string) {
	d := Discrepancy{Op: op, Path: path, Baseline: baseline, Candidate: candidate}
	e.mu.Lock()
	e.discrepancies = append(e.discrepancies, d)
	e.mu.Unlock()
	e.logger.VerboseLog(1, "engine discrepancy: %s", d)
}

// Discrepancies returns the disagreements recorded so far, oldest first.
func (e *comboEngine) Discrepancies() []Discrepancy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.discrepancies)
}

func describe(value fmt.Stringer, err error) string {
	if err != nil {
		return "error(" + err.Error() + ")"
	}
	return value.String()
}

func (e *comboEngine) Get(path string) (HashCode, error) {
	record, err := e.GetRecord(path)
	if err != nil {
		return nil, err
	}
	return record.Digest, nil
}

func (e *comboEngine) GetRecord(path string) (HashRecord, error) {
	baseline, baselineErr := e.baseline.GetRecord(path)
	candidate, candidateErr := e.candidate.GetRecord(path)
	if (baselineErr == nil) != (candidateErr == nil) ||
		(baselineErr == nil && !baseline.Equal(candidate)) {
		e.record("get", path, describe(baseline, baselineErr), describe(candidate, candidateErr))
	}
	e.logger.DebugLog("combo", "get %s -> %s", path, describe(baseline, baselineErr))
	return baseline, baselineErr
}

func (e *comboEngine) GetArchiveMember(member ArchiveMemberPath) (HashCode, error) {
	baseline, baselineErr := e.baseline.GetArchiveMember(member)
	candidate, candidateErr := e.candidate.GetArchiveMember(member)
	if (baselineErr == nil) != (candidateErr == nil) ||
		(baselineErr == nil && !baseline.Equal(candidate)) {
		e.record("getArchiveMember", member.String(), describe(baseline, baselineErr), describe(candidate, candidateErr))
	}
	return baseline, baselineErr
}

func (e *comboEngine) GetIfPresent(path string) (HashRecord, bool) {
	baseline, baselineOK := e.baseline.GetIfPresent(path)
	candidate, candidateOK := e.candidate.GetIfPresent(path)
	if baselineOK && candidateOK && !baseline.Equal(candidate) {
		e.record("getIfPresent", path, baseline.String(), candidate.String())
	}
	return baseline, baselineOK
}

func (e *comboEngine) Put(path string, record HashRecord) {
	e.baseline.Put(path, record)
	e.candidate.Put(path, record)
}

func (e *comboEngine) Invalidate(path string) {
	e.baseline.Invalidate(path)
	e.candidate.Invalidate(path)
}

func (e *comboEngine) InvalidateAll() {
	e.baseline.InvalidateAll()
	e.candidate.InvalidateAll()
}

func (e *comboEngine) AsMap() map[string]HashRecord {
	return e.baseline.AsMap()
}

type sizeValue int64

func (s sizeValue) String() string { return fmt.Sprintf("%d", int64(s)) }

func (e *comboEngine) GetSize(path string) (int64, error) {
	baseline, baselineErr := e.baseline.GetSize(path)
	candidate, candidateErr := e.candidate.GetSize(path)
	if (baselineErr == nil) != (candidateErr == nil) ||
		(baselineErr == nil && baseline != candidate) {
		e.record("getSize", path, describe(sizeValue(baseline), baselineErr), describe(sizeValue(candidate), candidateErr))
	}
	return baseline, baselineErr
}

func (e *comboEngine) StatsEvents() []StatsEvent {
	return append(e.baseline.StatsEvents(), e.candidate.StatsEvents()...)
}

func (e *comboEngine) ResetStats() {
	e.baseline.ResetStats()
	e.candidate.ResetStats()
}
