// ABOUTME: Tests for the SQLite memory store: fact persistence, ordering,
// ABOUTME: deletion, and pattern counter upserts.
package memory

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestInsertAndQueryFacts(t *testing.T) {
	store := newTestSQLite(t)

	base := time.Now().Add(-time.Hour)
	facts := []Fact{
		{Entity: "acme", Key: "industry", Value: "robotics", Kind: FactPoint, Importance: 6, CreatedAt: base},
		{Entity: "acme", Key: "industry", Value: "automation", Kind: FactPoint, Importance: 6, CreatedAt: base.Add(time.Minute)},
		{Entity: "other", Key: "industry", Value: "retail", Kind: FactPoint, Importance: 4, CreatedAt: base},
	}
	for _, f := range facts {
		if err := store.InsertFact(f); err != nil {
			t.Fatalf("InsertFact: %v", err)
		}
	}

	got, err := store.FactsForEntity("acme")
	if err != nil {
		t.Fatalf("FactsForEntity: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 facts for acme, got %d", len(got))
	}
	// Newest first; history retained, never overwritten.
	if got[0].Value != "automation" || got[1].Value != "robotics" {
		t.Errorf("order = %q, %q; want newest first", got[0].Value, got[1].Value)
	}
}

func TestDeleteFacts(t *testing.T) {
	store := newTestSQLite(t)

	for i := 0; i < 3; i++ {
		if err := store.InsertFact(Fact{Entity: "acme", Key: "k", Value: "v", Kind: FactPoint, Importance: 5}); err != nil {
			t.Fatalf("InsertFact: %v", err)
		}
	}
	if err := store.InsertFact(Fact{Entity: "other", Key: "k", Value: "v", Kind: FactPoint, Importance: 5}); err != nil {
		t.Fatalf("InsertFact: %v", err)
	}

	n, err := store.DeleteFacts("acme")
	if err != nil {
		t.Fatalf("DeleteFacts: %v", err)
	}
	if n != 3 {
		t.Errorf("deleted = %d, want 3", n)
	}

	remaining, err := store.FactsForEntity("other")
	if err != nil || len(remaining) != 1 {
		t.Errorf("other entity's facts affected: %v, %v", remaining, err)
	}
}

func TestRecordOutcomeAccumulates(t *testing.T) {
	store := newTestSQLite(t)

	if err := store.RecordOutcome("discovery", "small", true, 100*time.Millisecond); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if err := store.RecordOutcome("discovery", "small", false, 200*time.Millisecond); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if err := store.RecordOutcome("discovery", "large", true, 50*time.Millisecond); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}

	stats, err := store.PatternsForStage("discovery")
	if err != nil {
		t.Fatalf("PatternsForStage: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(stats))
	}

	byBucket := map[string]PatternStat{}
	for _, p := range stats {
		byBucket[p.Bucket] = p
	}
	small := byBucket["small"]
	if small.Successes != 1 || small.Failures != 1 || small.TotalMS != 300 {
		t.Errorf("small = %+v", small)
	}
	if small.Samples() != 2 || small.FailureRate() != 0.5 {
		t.Errorf("small samples/rate = %d/%v", small.Samples(), small.FailureRate())
	}
}

func TestCounts(t *testing.T) {
	store := newTestSQLite(t)

	if err := store.InsertFact(Fact{Entity: "acme", Key: "k", Value: "v", Kind: FactPoint, Importance: 5}); err != nil {
		t.Fatalf("InsertFact: %v", err)
	}
	if err := store.RecordOutcome("discovery", "small", true, time.Millisecond); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}

	facts, patterns, err := store.Counts()
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if facts != 1 || patterns != 1 {
		t.Errorf("counts = %d facts, %d patterns; want 1/1", facts, patterns)
	}
}
