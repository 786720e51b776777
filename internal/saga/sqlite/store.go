// Package sqlite provides a SQLite-backed implementation of saga.StateStore.
//
// WAL mode is enabled on Open so that readers never block writers and vice
// versa — the consumer goroutines write while the HTTP status endpoint reads.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/order-fulfillment/internal/saga"

	// Register the pure-Go SQLite driver.
	// modernc.org/sqlite avoids CGO, keeping Docker (Alpine) builds simple.
	_ "modernc.org/sqlite"
)

// schema is the DDL executed once on startup.
//
// saga_instances holds active instances, one row per in-flight saga, upserted
// on every transition. saga_archive receives the row on finalize; its
// presence is what makes a correlation id "finalized" — LoadOrCreate refuses
// to resurrect archived ids. saga_transitions is an append-only audit log of
// every state the saga passed through, with trace ids so a row can be joined
// to the distributed trace in Grafana/Tempo.
const schema = `
CREATE TABLE IF NOT EXISTS saga_instances (
    correlation_id  TEXT PRIMARY KEY,
    current_state   TEXT NOT NULL,
    data            TEXT NOT NULL,
    updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS saga_archive (
    correlation_id  TEXT PRIMARY KEY,
    current_state   TEXT NOT NULL,
    data            TEXT NOT NULL,
    finalized_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS saga_transitions (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    correlation_id  TEXT NOT NULL,
    current_state   TEXT NOT NULL,
    trace_id        TEXT NOT NULL DEFAULT '',
    span_id         TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_saga_transitions_correlation
    ON saga_transitions(correlation_id, id);
`

// Store is the SQLite implementation of saga.StateStore.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at the given path and applies
// the schema.
//
//	st, err := sqlite.Open("./data/sagas.db")
func Open(path string) (*Store, error) {
	// _pragma query parameters configure connection state for the pure-Go
	// driver. WAL enables concurrent readers; busy_timeout waits for locks
	// instead of failing immediately.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// SQLite performs best with a single writer connection. This also makes
	// Save the per-key serialization point the state store contract demands:
	// two transitions for the same saga can never interleave their writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database connection. Call it with defer in main().
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadOrCreate implements saga.StateStore.
func (s *Store) LoadOrCreate(ctx context.Context, correlationID uuid.UUID) (*saga.Instance, bool, error) {
	inst, err := s.Load(ctx, correlationID)
	if errors.Is(err, saga.ErrNotFound) {
		return &saga.Instance{CorrelationID: correlationID}, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return inst, false, nil
}

// Load implements saga.StateStore.
func (s *Store) Load(ctx context.Context, correlationID uuid.UUID) (*saga.Instance, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM saga_instances WHERE correlation_id = ?`,
		correlationID.String(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		finalized, ferr := s.isFinalized(ctx, correlationID)
		if ferr != nil {
			return nil, ferr
		}
		if finalized {
			return nil, saga.ErrFinalized
		}
		return nil, saga.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load %s: %w", correlationID, err)
	}
	return decodeInstance(data)
}

// Save implements saga.StateStore. Each save also appends a row to the
// transition log, carrying the trace ids of the span that drove it.
func (s *Store) Save(ctx context.Context, inst *saga.Instance) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("sqlite: encode %s: %w", inst.CorrelationID, err)
	}
	now := formatTime(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin save %s: %w", inst.CorrelationID, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO saga_instances (correlation_id, current_state, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(correlation_id) DO UPDATE SET
			current_state = excluded.current_state,
			data          = excluded.data,
			updated_at    = excluded.updated_at`,
		inst.CorrelationID.String(), string(inst.CurrentState), string(data), now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: save %s: %w", inst.CorrelationID, err)
	}

	ti := extractTraceInfo(ctx)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO saga_transitions (correlation_id, current_state, trace_id, span_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		inst.CorrelationID.String(), string(inst.CurrentState), ti.TraceID, ti.SpanID, now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: log transition %s: %w", inst.CorrelationID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit save %s: %w", inst.CorrelationID, err)
	}
	return nil
}

// Finalize implements saga.StateStore: the active row moves to saga_archive
// in one transaction. A second Finalize for the same id is a no-op.
func (s *Store) Finalize(ctx context.Context, correlationID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin finalize %s: %w", correlationID, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO saga_archive (correlation_id, current_state, data, finalized_at)
		SELECT correlation_id, current_state, data, ?
		FROM saga_instances WHERE correlation_id = ?`,
		formatTime(time.Now()), correlationID.String(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: archive %s: %w", correlationID, err)
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM saga_instances WHERE correlation_id = ?`, correlationID.String(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: delete active %s: %w", correlationID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit finalize %s: %w", correlationID, err)
	}
	return nil
}

// GetAny returns the instance regardless of whether it is active or already
// archived. Used by the status endpoint; finalized reports which table the
// row came from.
func (s *Store) GetAny(ctx context.Context, correlationID uuid.UUID) (inst *saga.Instance, finalized bool, err error) {
	inst, err = s.Load(ctx, correlationID)
	if err == nil {
		return inst, false, nil
	}
	if !errors.Is(err, saga.ErrFinalized) && !errors.Is(err, saga.ErrNotFound) {
		return nil, false, err
	}

	var data string
	err = s.db.QueryRowContext(ctx,
		`SELECT data FROM saga_archive WHERE correlation_id = ?`,
		correlationID.String(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, saga.ErrNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: load archived %s: %w", correlationID, err)
	}
	inst, err = decodeInstance(data)
	if err != nil {
		return nil, false, err
	}
	return inst, true, nil
}

// Transitions returns the audit log for one saga in application order.
func (s *Store) Transitions(ctx context.Context, correlationID uuid.UUID) ([]Transition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT current_state, trace_id, span_id, created_at
		FROM saga_transitions
		WHERE correlation_id = ?
		ORDER BY id`,
		correlationID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: transitions %s: %w", correlationID, err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		var createdAt string
		if err := rows.Scan(&t.State, &t.TraceID, &t.SpanID, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan transition: %w", err)
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Transition is one row of the saga_transitions audit log.
type Transition struct {
	State     saga.State
	TraceID   string
	SpanID    string
	CreatedAt time.Time
}

func (s *Store) isFinalized(ctx context.Context, correlationID uuid.UUID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM saga_archive WHERE correlation_id = ?`,
		correlationID.String(),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: check archive %s: %w", correlationID, err)
	}
	return true, nil
}

func decodeInstance(data string) (*saga.Instance, error) {
	var inst saga.Instance
	if err := json.Unmarshal([]byte(data), &inst); err != nil {
		return nil, fmt.Errorf("sqlite: decode instance: %w", err)
	}
	return &inst, nil
}

var _ saga.StateStore = (*Store)(nil)
