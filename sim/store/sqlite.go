package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/inference-sim/paratemp/sim"
	"github.com/inference-sim/paratemp/sim/calibration"
)

// ErrNotFound is returned when no checkpoint matches a query.
var ErrNotFound = errors.New("store: checkpoint not found")

// Store is a SQLite database holding checkpoints and calibration trials.
// It is safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and initializes its schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// SaveCheckpoint writes cp in one transaction and returns its row id.
// Replica states are stored as JSON, so S must round-trip through encoding/json.
func SaveCheckpoint[S any](ctx context.Context, s *Store, cp sim.Checkpoint[S]) (int64, error) {
	states := make([][]byte, len(cp.Replicas))
	for i, r := range cp.Replicas {
		b, err := json.Marshal(r.State)
		if err != nil {
			return 0, fmt.Errorf("failed to encode state of slot %d: %w", r.Index, err)
		}
		states[i] = b
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO checkpoints (run_id, iteration, seed, created_at) VALUES (?, ?, ?, datetime('now'))`,
		cp.RunID, cp.Iteration, cp.Seed)
	if err != nil {
		return 0, fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read checkpoint id: %w", err)
	}

	for i, r := range cp.Replicas {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO checkpoint_replicas (checkpoint_id, slot, beta, energy, state) VALUES (?, ?, ?, ?, ?)`,
			id, r.Index, r.Beta, nullFloat(r.Energy), string(states[i])); err != nil {
			return 0, fmt.Errorf("failed to insert slot %d: %w", r.Index, err)
		}
	}
	for _, p := range cp.Pairs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO checkpoint_pairs (checkpoint_id, pair_lower, attempted, accepted) VALUES (?, ?, ?, ?)`,
			id, p.Pair.I, p.Attempted, p.Accepted); err != nil {
			return 0, fmt.Errorf("failed to insert pair %v: %w", p.Pair, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return id, nil
}

// LoadLatestCheckpoint returns the checkpoint with the highest iteration for
// runID, or the most recent checkpoint of any run when runID is empty.
func LoadLatestCheckpoint[S any](ctx context.Context, s *Store, runID string) (sim.Checkpoint[S], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cp sim.Checkpoint[S]
	var id int64
	var row *sql.Row
	if runID == "" {
		row = s.db.QueryRowContext(ctx,
			`SELECT id, run_id, iteration, seed FROM checkpoints ORDER BY id DESC LIMIT 1`)
	} else {
		row = s.db.QueryRowContext(ctx,
			`SELECT id, run_id, iteration, seed FROM checkpoints WHERE run_id = ? ORDER BY iteration DESC, id DESC LIMIT 1`,
			runID)
	}
	if err := row.Scan(&id, &cp.RunID, &cp.Iteration, &cp.Seed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cp, fmt.Errorf("run %q: %w", runID, ErrNotFound)
		}
		return cp, fmt.Errorf("failed to query checkpoint: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT slot, beta, energy, state FROM checkpoint_replicas WHERE checkpoint_id = ? ORDER BY slot`, id)
	if err != nil {
		return cp, fmt.Errorf("failed to query replicas: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r sim.ReplicaCheckpoint[S]
		var energy sql.NullFloat64
		var state string
		if err := rows.Scan(&r.Index, &r.Beta, &energy, &state); err != nil {
			return cp, fmt.Errorf("failed to scan replica: %w", err)
		}
		r.Energy = fromNullFloat(energy)
		if err := json.Unmarshal([]byte(state), &r.State); err != nil {
			return cp, fmt.Errorf("failed to decode state of slot %d: %w", r.Index, err)
		}
		cp.Replicas = append(cp.Replicas, r)
	}
	if err := rows.Err(); err != nil {
		return cp, err
	}

	pairRows, err := s.db.QueryContext(ctx,
		`SELECT pair_lower, attempted, accepted FROM checkpoint_pairs WHERE checkpoint_id = ? ORDER BY pair_lower`, id)
	if err != nil {
		return cp, fmt.Errorf("failed to query pairs: %w", err)
	}
	defer pairRows.Close()
	for pairRows.Next() {
		var p sim.PairStats
		if err := pairRows.Scan(&p.Pair.I, &p.Attempted, &p.Accepted); err != nil {
			return cp, fmt.Errorf("failed to scan pair: %w", err)
		}
		p.Pair.J = p.Pair.I + 1
		cp.Pairs = append(cp.Pairs, p)
	}
	return cp, pairRows.Err()
}

// RecordTrial stores one calibration trial, replacing an earlier record at the
// same position. It implements calibration.TrialSink.
func (s *Store) RecordTrial(ctx context.Context, runID string, t calibration.Trial) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	usable := 0
	if t.Usable {
		usable = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO calibration_trials
		 (run_id, position, replicas, seed, attempted, accepted, rate, deviation, usable, reason, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))`,
		runID, t.Position, t.Replicas, t.Seed, t.Attempted, t.Accepted,
		nullFloat(t.Rate), nullFloat(t.Deviation), usable, t.Reason)
	if err != nil {
		return fmt.Errorf("failed to insert calibration trial: %w", err)
	}
	return nil
}

// Trials returns the recorded calibration trials of runID in candidate order.
func (s *Store) Trials(ctx context.Context, runID string) ([]calibration.Trial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT position, replicas, seed, attempted, accepted, rate, deviation, usable, reason
		 FROM calibration_trials WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query calibration trials: %w", err)
	}
	defer rows.Close()

	var trials []calibration.Trial
	for rows.Next() {
		var t calibration.Trial
		var rate, deviation sql.NullFloat64
		var usable int
		var reason sql.NullString
		if err := rows.Scan(&t.Position, &t.Replicas, &t.Seed, &t.Attempted, &t.Accepted,
			&rate, &deviation, &usable, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan calibration trial: %w", err)
		}
		t.Rate = fromNullFloat(rate)
		t.Deviation = math.Inf(1)
		if deviation.Valid {
			t.Deviation = deviation.Float64
		}
		t.Usable = usable != 0
		t.Reason = reason.String
		trials = append(trials, t)
	}
	return trials, rows.Err()
}

// nullFloat maps non-finite values to NULL; SQLite has no portable NaN/Inf.
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNullFloat(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
