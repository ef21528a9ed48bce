// ABOUTME: SQLite persistence for the long-term fact tier and the pattern statistics tier.
// ABOUTME: Opens in WAL mode with schema bootstrap; facts are append-only, patterns upserted in place.
package memory

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// FactKind distinguishes how facts merge for context purposes.
type FactKind string

const (
	// FactPoint facts supersede: the newest value per (entity, key) wins.
	FactPoint FactKind = "point"
	// FactCollection facts accumulate: every value is retained.
	FactCollection FactKind = "collection"
)

// Fact is one durable long-term memory entry about an entity. Facts are
// never destructively overwritten; newer point facts supersede for recall
// while history stays queryable for audit.
type Fact struct {
	ID         int64     `json:"id"`
	Entity     string    `json:"entity"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Kind       FactKind  `json:"kind"`
	Importance int       `json:"importance"`
	CreatedAt  time.Time `json:"created_at"`
}

// PatternStat is the aggregated outcome record for one (stage, bucket) pair.
type PatternStat struct {
	Stage     string    `json:"stage"`
	Bucket    string    `json:"bucket"`
	Successes int       `json:"successes"`
	Failures  int       `json:"failures"`
	TotalMS   int64     `json:"total_ms"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Samples returns the total number of recorded outcomes.
func (p PatternStat) Samples() int {
	return p.Successes + p.Failures
}

// FailureRate returns failures / samples, or 0 with no samples.
func (p PatternStat) FailureRate() float64 {
	n := p.Samples()
	if n == 0 {
		return 0
	}
	return float64(p.Failures) / float64(n)
}

// SQLiteStore persists the durable memory tiers in a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the memory database at path and runs schema
// bootstrap.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS facts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			kind TEXT NOT NULL,
			importance INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_facts_entity ON facts(entity);

		CREATE TABLE IF NOT EXISTS patterns (
			stage TEXT NOT NULL,
			bucket TEXT NOT NULL,
			successes INTEGER NOT NULL DEFAULT 0,
			failures INTEGER NOT NULL DEFAULT 0,
			total_ms INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (stage, bucket)
		);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertFact appends a fact. The fact's CreatedAt is used as stored time;
// zero means now.
func (s *SQLiteStore) InsertFact(f Fact) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO facts (entity, key, value, kind, importance, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.Entity, f.Key, f.Value, string(f.Kind), f.Importance, f.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}
	return nil
}

// FactsForEntity returns every fact for an entity, newest first with id as
// the deterministic tie-break.
func (s *SQLiteStore) FactsForEntity(entity string) ([]Fact, error) {
	rows, err := s.db.Query(
		`SELECT id, entity, key, value, kind, importance, created_at
		 FROM facts WHERE entity = ?
		 ORDER BY created_at DESC, id DESC`,
		entity,
	)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		var f Fact
		var kind, created string
		if err := rows.Scan(&f.ID, &f.Entity, &f.Key, &f.Value, &kind, &f.Importance, &created); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		f.Kind = FactKind(kind)
		if f.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse fact timestamp: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// DeleteFacts removes every fact for an entity, returning the count removed.
func (s *SQLiteStore) DeleteFacts(entity string) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM facts WHERE entity = ?`, entity)
	if err != nil {
		return 0, fmt.Errorf("delete facts: %w", err)
	}
	return res.RowsAffected()
}

// RecordOutcome increments the pattern counters for a (stage, bucket) pair.
func (s *SQLiteStore) RecordOutcome(stage, bucket string, success bool, elapsed time.Duration) error {
	succ, fail := 0, 1
	if success {
		succ, fail = 1, 0
	}
	_, err := s.db.Exec(
		`INSERT INTO patterns (stage, bucket, successes, failures, total_ms, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(stage, bucket) DO UPDATE SET
		   successes = successes + excluded.successes,
		   failures = failures + excluded.failures,
		   total_ms = total_ms + excluded.total_ms,
		   updated_at = excluded.updated_at`,
		stage, bucket, succ, fail, elapsed.Milliseconds(), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// PatternsForStage returns every bucket's statistics for a stage.
func (s *SQLiteStore) PatternsForStage(stage string) ([]PatternStat, error) {
	rows, err := s.db.Query(
		`SELECT stage, bucket, successes, failures, total_ms, updated_at
		 FROM patterns WHERE stage = ? ORDER BY bucket`,
		stage,
	)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var stats []PatternStat
	for rows.Next() {
		var p PatternStat
		var updated string
		if err := rows.Scan(&p.Stage, &p.Bucket, &p.Successes, &p.Failures, &p.TotalMS, &updated); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
			return nil, fmt.Errorf("parse pattern timestamp: %w", err)
		}
		stats = append(stats, p)
	}
	return stats, rows.Err()
}

// Counts returns total facts and pattern rows, for stats reporting.
func (s *SQLiteStore) Counts() (facts, patterns int, err error) {
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM facts`).Scan(&facts); err != nil {
		return 0, 0, fmt.Errorf("count facts: %w", err)
	}
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM patterns`).Scan(&patterns); err != nil {
		return 0, 0, fmt.Errorf("count patterns: %w", err)
	}
	return facts, patterns, nil
}
