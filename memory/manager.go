// ABOUTME: Three-tier memory manager: ephemeral working tier, durable long-term facts, pattern statistics.
// ABOUTME: Provides ingest, importance-ranked recall with a budget, outcome recording, and run-end folding.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// maxWorkingEntries bounds the working tier; lowest-importance entries
	// are pruned first once exceeded.
	maxWorkingEntries = 20

	// promoteThreshold is the minimum importance for a working entry to be
	// folded into long-term memory at run end.
	promoteThreshold = 8
)

// WorkingEntry is one high-detail event in the per-run working tier.
type WorkingEntry struct {
	Type       string         `json:"type"`
	Payload    map[string]any `json:"payload"`
	Importance int            `json:"importance"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Stats summarizes the state of all three tiers.
type Stats struct {
	SessionID      string `json:"session_id"`
	WorkingEntries int    `json:"working_entries"`
	Facts          int    `json:"facts"`
	Patterns       int    `json:"patterns"`
}

// Manager is the three-tier memory subsystem. The working tier lives in
// memory for the current run; facts and patterns persist in the SQLiteStore.
type Manager struct {
	store     *SQLiteStore
	sessionID string

	mu      sync.Mutex
	working []WorkingEntry
}

// NewManager creates a memory manager over the given store with a fresh
// session id.
func NewManager(store *SQLiteStore) *Manager {
	return &Manager{
		store:     store,
		sessionID: uuid.NewString(),
	}
}

// SessionID returns the working-tier session identifier.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// NormalizeEntity canonicalizes an entity key: lowercased, whitespace
// trimmed.
func NormalizeEntity(entity string) string {
	return strings.ToLower(strings.TrimSpace(entity))
}

// Observe appends an event to the working tier. Importance is clamped to
// 1..10 and used only for pruning and run-end promotion, never correctness.
// Satisfies the orchestrator's Recorder contract.
func (m *Manager) Observe(eventType string, payload map[string]any, importance int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.working = append(m.working, WorkingEntry{
		Type:       eventType,
		Payload:    payload,
		Importance: clampImportance(importance),
		Timestamp:  time.Now(),
	})

	if len(m.working) > maxWorkingEntries {
		m.pruneWorking()
	}
}

// Working returns up to n recent working entries, optionally filtered by
// event type. n <= 0 means all.
func (m *Manager) Working(n int, eventType string) []WorkingEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []WorkingEntry
	for _, e := range m.working {
		if eventType == "" || e.Type == eventType {
			out = append(out, e)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// RememberLongTerm appends a durable fact for an entity. Point facts
// supersede older values of the same key on recall; collection facts
// accumulate. History is retained either way.
func (m *Manager) RememberLongTerm(entity string, f Fact) error {
	f.Entity = NormalizeEntity(entity)
	if f.Entity == "" {
		return fmt.Errorf("remember: empty entity")
	}
	if f.Kind == "" {
		f.Kind = FactPoint
	}
	f.Importance = clampImportance(f.Importance)
	return m.store.InsertFact(f)
}

// Recall returns long-term facts for an entity ranked by (recency,
// importance) descending with the fact id as a deterministic tie-break,
// truncated to budget items. Superseded point-fact values are excluded.
// The bound exists so unbounded history can never inflate LLM input.
func (m *Manager) Recall(entity string, budget int) ([]Fact, error) {
	facts, err := m.store.FactsForEntity(NormalizeEntity(entity))
	if err != nil {
		return nil, err
	}

	// Newest point fact per key wins; the store returns newest first.
	seen := make(map[string]bool)
	current := facts[:0]
	for _, f := range facts {
		if f.Kind == FactPoint {
			if seen[f.Key] {
				continue
			}
			seen[f.Key] = true
		}
		current = append(current, f)
	}

	sort.SliceStable(current, func(i, j int) bool {
		a, b := current[i], current[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if a.Importance != b.Importance {
			return a.Importance > b.Importance
		}
		return a.ID > b.ID
	})

	if budget > 0 && len(current) > budget {
		current = current[:budget]
	}
	return current, nil
}

// RecordOutcome updates the pattern tier for a (stage, bucket) pair. The
// bucket is derived from the entity's last known employee count; entities
// without one land in the "unknown" bucket. Satisfies the Recorder contract.
func (m *Manager) RecordOutcome(entity, stage string, success bool, elapsed time.Duration) {
	bucket := m.bucketFor(NormalizeEntity(entity))
	if err := m.store.RecordOutcome(stage, bucket, success, elapsed); err != nil {
		// Pattern data biases future decisions only; losing a sample is
		// not worth failing the run.
		fmt.Fprintf(os.Stderr, "[memory] record outcome: %v\n", err)
	}
}

// PatternsForStage exposes the pattern tier for hint generation.
func (m *Manager) PatternsForStage(stage string) ([]PatternStat, error) {
	return m.store.PatternsForStage(stage)
}

// EndRun folds the working tier into long-term memory and clears it.
// Eviction policy is selective promotion: entries with importance >=
// promoteThreshold become collection facts keyed "note:<type>"; everything
// else is discarded with the run. Satisfies the Recorder contract.
func (m *Manager) EndRun(entity, status string) {
	m.mu.Lock()
	entries := m.working
	m.working = nil
	m.mu.Unlock()

	key := NormalizeEntity(entity)
	if key == "" {
		return
	}

	for _, e := range entries {
		if e.Importance < promoteThreshold {
			continue
		}
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			continue
		}
		_ = m.store.InsertFact(Fact{
			Entity:     key,
			Key:        "note:" + e.Type,
			Value:      string(payload),
			Kind:       FactCollection,
			Importance: e.Importance,
			CreatedAt:  e.Timestamp,
		})
	}

	_ = m.store.InsertFact(Fact{
		Entity:     key,
		Key:        "last_run_status",
		Value:      status,
		Kind:       FactPoint,
		Importance: 5,
	})
}

// Forget clears all long-term memory for an entity, returning the number of
// facts removed.
func (m *Manager) Forget(entity string) (int64, error) {
	return m.store.DeleteFacts(NormalizeEntity(entity))
}

// Stats reports tier sizes.
func (m *Manager) Stats() (Stats, error) {
	facts, patterns, err := m.store.Counts()
	if err != nil {
		return Stats{}, err
	}
	m.mu.Lock()
	working := len(m.working)
	m.mu.Unlock()
	return Stats{
		SessionID:      m.sessionID,
		WorkingEntries: working,
		Facts:          facts,
		Patterns:       patterns,
	}, nil
}

// bucketFor coarsely buckets an entity by its last known employee count.
func (m *Manager) bucketFor(entity string) string {
	facts, err := m.store.FactsForEntity(entity)
	if err != nil {
		return "unknown"
	}
	for _, f := range facts {
		if f.Key == "employee_count" {
			n, err := strconv.Atoi(strings.TrimSpace(f.Value))
			if err != nil {
				return "unknown"
			}
			switch {
			case n < 200:
				return "small"
			case n < 10000:
				return "mid"
			default:
				return "large"
			}
		}
	}
	return "unknown"
}

// pruneWorking drops lowest-importance (then oldest) entries down to the
// cap. Caller holds m.mu.
func (m *Manager) pruneWorking() {
	sort.SliceStable(m.working, func(i, j int) bool {
		if m.working[i].Importance != m.working[j].Importance {
			return m.working[i].Importance > m.working[j].Importance
		}
		return m.working[i].Timestamp.After(m.working[j].Timestamp)
	})
	m.working = m.working[:maxWorkingEntries]
	sort.SliceStable(m.working, func(i, j int) bool {
		return m.working[i].Timestamp.Before(m.working[j].Timestamp)
	})
}

func clampImportance(n int) int {
	if n < 1 {
		return 1
	}
	if n > 10 {
		return 10
	}
	return n
}
