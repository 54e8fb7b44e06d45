package filehashcache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/require"
)

func TestParseEngineKind(t *testing.T) {
	tests := []struct {
		name    string
		want    EngineKind
		wantErr bool
	}{
		{"", EngineLoading, false},
		{"loading", EngineLoading, false},
		{"skiplist", EngineSkiplist, false},
		{"combo", EngineCombo, false},
		{"caffeine", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseEngineKind(tt.name)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseEngineKind(%q) should fail", tt.name)
			} else if errors.GetCode(err) != errors.CodeInvalidConfig {
				t.Errorf("ParseEngineKind(%q) code = %s, want %s", tt.name, errors.GetCode(err), errors.CodeInvalidConfig)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseEngineKind(%q) = %v, %v; want %v", tt.name, got, err, tt.want)
		}
	}
}

func TestEngineIdempotence(t *testing.T) {
	for _, kind := range allEngineKinds {
		t.Run(kind.String(), func(t *testing.T) {
			loaders := &countingLoaders{}
			engine := NewEngine(kind, loaders.hash, loaders.size, false, nil)

			first, err := engine.Get("src/a.txt")
			require.NoError(t, err)
			second, err := engine.Get("src/a.txt")
			require.NoError(t, err)

			require.True(t, first.Equal(second), "digests differ: %s vs %s", first, second)
			require.Equal(t, loadsPerMiss(kind), loaders.hashCalls.Load())

			size, err := engine.GetSize("src/a.txt")
			require.NoError(t, err)
			require.Equal(t, int64(len("src/a.txt")), size)
			_, err = engine.GetSize("src/a.txt")
			require.NoError(t, err)
			require.Equal(t, loadsPerMiss(kind), loaders.sizeCalls.Load())
		})
	}
}

func TestEngineSingleFlight(t *testing.T) {
	for _, kind := range allEngineKinds {
		t.Run(kind.String(), func(t *testing.T) {
			var calls atomic.Int64
			started := make(chan struct{}, 4)
			release := make(chan struct{})
			loader := func(p string) (HashRecord, error) {
				calls.Add(1)
				started <- struct{}{}
				<-release
				return newFileRecord(sha1Of(p)), nil
			}
			engine := NewEngine(kind, loader, nil, false, nil)

			const workers = 16
			results := make([]HashCode, workers)
			errs := make([]error, workers)
			var wg sync.WaitGroup
			for i := range workers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					results[i], errs[i] = engine.Get("src/a.txt")
				}()
			}

			<-started
			close(release)
			wg.Wait()

			for i := range workers {
				if errs[i] != nil {
					t.Fatalf("worker %d: %v", i, errs[i])
				}
				if !results[i].Equal(sha1Of("src/a.txt")) {
					t.Errorf("worker %d got %s", i, results[i])
				}
			}
			if got := calls.Load(); got != loadsPerMiss(kind) {
				t.Errorf("Expected %d loads, got %d", loadsPerMiss(kind), got)
			}

			// Every lookup is counted once, whether it loaded, joined a
			// load or found the installed value.
			for _, event := range engine.StatsEvents() {
				if event.Hits+event.Misses != workers || event.Misses != 1 {
					t.Errorf("%s: hits=%d misses=%d, want %d lookups with 1 miss",
						event.Engine, event.Hits, event.Misses, workers)
				}
			}
		})
	}
}

func TestEngineErrorsAreSharedAndNotCached(t *testing.T) {
	var calls atomic.Int64
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	loader := func(p string) (HashRecord, error) {
		if calls.Add(1) == 1 {
			started <- struct{}{}
			<-release
			return HashRecord{}, errors.New(CodeIO, "disk on fire")
		}
		return newFileRecord(sha1Of(p)), nil
	}
	engine := NewEngine(EngineLoading, loader, nil, false, nil)

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = engine.Get("broken.txt")
		}()
	}
	<-started
	close(release)
	wg.Wait()

	// Workers that arrived after the failed flight start a new load, which
	// succeeds; every worker that joined the first flight saw its error.
	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			require.Equal(t, CodeIO, errors.GetCode(err))
		}
	}
	require.GreaterOrEqual(t, failures, 1)

	digest, err := engine.Get("broken.txt")
	require.NoError(t, err)
	require.True(t, digest.Equal(sha1Of("broken.txt")))
}

func TestEngineInvalidate(t *testing.T) {
	for _, kind := range allEngineKinds {
		t.Run(kind.String(), func(t *testing.T) {
			loaders := &countingLoaders{}
			engine := NewEngine(kind, loaders.hash, loaders.size, false, nil)

			_, err := engine.Get("a.txt")
			require.NoError(t, err)
			_, err = engine.Get("b.txt")
			require.NoError(t, err)

			engine.Invalidate("a.txt")
			_, ok := engine.GetIfPresent("a.txt")
			require.False(t, ok, "a.txt still cached after Invalidate")
			_, ok = engine.GetIfPresent("b.txt")
			require.True(t, ok, "Invalidate of a.txt dropped b.txt")

			_, err = engine.Get("a.txt")
			require.NoError(t, err)
			require.Equal(t, 3*loadsPerMiss(kind), loaders.hashCalls.Load())

			engine.InvalidateAll()
			require.Empty(t, engine.AsMap())
		})
	}
}

func TestEnginePutShortCircuitsLoad(t *testing.T) {
	for _, kind := range allEngineKinds {
		t.Run(kind.String(), func(t *testing.T) {
			loaders := &countingLoaders{}
			engine := NewEngine(kind, loaders.hash, loaders.size, false, nil)

			stored := newFileRecord(sha1Of("precomputed"))
			engine.Put("gen/out.txt", stored)

			digest, err := engine.Get("gen/out.txt")
			require.NoError(t, err)
			require.True(t, digest.Equal(stored.Digest))
			require.Zero(t, loaders.hashCalls.Load())

			snapshot := engine.AsMap()
			require.Len(t, snapshot, 1)
			require.True(t, snapshot["gen/out.txt"].Equal(stored))
		})
	}
}

func TestEngineInvalidateDuringLoad(t *testing.T) {
	builders := map[string]func(HashLoader, SizeLoader, bool) Engine{
		"loading": func(h HashLoader, s SizeLoader, strict bool) Engine {
			return newLoadingEngine(h, s, strict)
		},
		"skiplist": func(h HashLoader, s SizeLoader, strict bool) Engine {
			return newSkiplistEngine(h, s, strict)
		},
	}

	for name, build := range builders {
		for _, strict := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/strict=%t", name, strict), func(t *testing.T) {
				started := make(chan struct{}, 1)
				release := make(chan struct{})
				loader := func(p string) (HashRecord, error) {
					started <- struct{}{}
					<-release
					return newFileRecord(sha1Of(p)), nil
				}
				engine := build(loader, nil, strict)

				done := make(chan error, 1)
				go func() {
					_, err := engine.Get("racy.txt")
					done <- err
				}()
				<-started
				engine.Invalidate("racy.txt")
				close(release)
				require.NoError(t, <-done)

				_, cached := engine.GetIfPresent("racy.txt")
				if strict {
					require.False(t, cached, "strict engine kept a value overtaken by Invalidate")
				} else {
					require.True(t, cached, "relaxed engine dropped the loaded value")
				}
			})
		}
	}
}

func TestStrictInvalidationForgetsSettledKeys(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	loader := func(p string) (HashRecord, error) {
		if p == "racy.txt" {
			started <- struct{}{}
			<-gate
		}
		return newFileRecord(sha1Of(p)), nil
	}
	loading := newLoadingEngine(loader, nil, true)
	skiplist := newSkiplistEngine(loader, nil, true)
	engines := []struct {
		name   string
		engine Engine
		gens   *generations
	}{
		{"loading", loading, &loading.gens},
		{"skiplist", skiplist, &skiplist.gens},
	}

	for _, tt := range engines {
		t.Run(tt.name, func(t *testing.T) {
			for i := range 100 {
				p := fmt.Sprintf("f%03d.txt", i)
				_, err := tt.engine.Get(p)
				require.NoError(t, err)
				tt.engine.Invalidate(p)
				tt.engine.Put(p, newFileRecord(sha1Of("put")))
			}
			require.Empty(t, tt.gens.perKey)
			require.Empty(t, tt.gens.inflight)

			done := make(chan error, 1)
			go func() {
				_, err := tt.engine.Get("racy.txt")
				done <- err
			}()
			<-started
			tt.engine.Invalidate("racy.txt")
			gate <- struct{}{}
			require.NoError(t, <-done)

			_, cached := tt.engine.GetIfPresent("racy.txt")
			require.False(t, cached, "overtaken load was installed")
			require.Empty(t, tt.gens.perKey)
			require.Empty(t, tt.gens.inflight)
		})
	}
}

func TestEngineStats(t *testing.T) {
	loaders := &countingLoaders{}
	engine := NewEngine(EngineLoading, loaders.hash, loaders.size, false, nil)

	for range 3 {
		_, err := engine.Get("a.txt")
		require.NoError(t, err)
	}
	_, err := engine.GetSize("a.txt")
	require.NoError(t, err)

	events := engine.StatsEvents()
	require.Len(t, events, 1)
	event := events[0]
	require.Equal(t, "loading", event.Engine)
	require.Equal(t, int64(2), event.Hits)
	require.Equal(t, int64(1), event.Misses)
	require.Equal(t, int64(1), event.SizeMisses)
	require.Equal(t, 1, event.Entries)
	require.InDelta(t, 66.67, event.HitRate(), 0.01)

	engine.ResetStats()
	require.Zero(t, engine.StatsEvents()[0].Hits)
}

func TestComboEngineRecordsDiscrepancies(t *testing.T) {
	baseline := newLoadingEngine(func(p string) (HashRecord, error) {
		return newFileRecord(sha1Of(p)), nil
	}, nil, false)
	candidate := newSkiplistEngine(func(p string) (HashRecord, error) {
		return newFileRecord(sha1Of("wrong " + p)), nil
	}, nil, false)
	combo := newComboEngine(baseline, candidate, nopLogger())

	digest, err := combo.Get("a.txt")
	require.NoError(t, err)
	require.True(t, digest.Equal(sha1Of("a.txt")), "combo must return the baseline result")

	discrepancies := combo.Discrepancies()
	require.Len(t, discrepancies, 1)
	require.Equal(t, "get", discrepancies[0].Op)
	require.Equal(t, "a.txt", discrepancies[0].Path)
	require.Contains(t, discrepancies[0].Baseline, sha1Of("a.txt").String())
}

func TestComboEngineAgreesOnSameLoader(t *testing.T) {
	loaders := &countingLoaders{}
	engine := NewEngine(EngineCombo, loaders.hash, loaders.size, false, nil)
	combo, ok := engine.(*comboEngine)
	require.True(t, ok)

	for _, p := range []string{"a", "b", "c"} {
		_, err := engine.Get(p)
		require.NoError(t, err)
		_, err = engine.GetSize(p)
		require.NoError(t, err)
	}
	engine.Invalidate("b")
	_, _ = engine.GetIfPresent("a")

	require.Empty(t, combo.Discrepancies())
	require.Len(t, engine.StatsEvents(), 2)
}
