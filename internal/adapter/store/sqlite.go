// Package store provides the SQLite write-behind sink for agents, payment
// records, and breeding results.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"foresight/internal/domain"
)

// SQLiteStore implements domain.Store using SQLite. It is a durability
// sink, not a source of truth: the agent manager owns live state and
// writes through after each transition.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens (or creates) a SQLite database at dbPath and runs migrations.
func New(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %v", domain.ErrLedgerStore, err)
	}

	// SQLite write safety: single writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: pragma: %v", domain.ErrLedgerStore, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrLedgerStore, err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS agents (
			id          TEXT PRIMARY KEY,
			generation  INTEGER NOT NULL,
			is_active   INTEGER NOT NULL,
			is_bankrupt INTEGER NOT NULL,
			balance     INTEGER NOT NULL,
			state       TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS payments (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id    TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			nonce       TEXT NOT NULL,
			success     INTEGER NOT NULL,
			record      TEXT NOT NULL,
			created_at  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_payments_agent ON payments(agent_id, resource_id);
		CREATE TABLE IF NOT EXISTS breedings (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			parent_a   TEXT NOT NULL,
			parent_b   TEXT NOT NULL,
			generation INTEGER NOT NULL,
			result     TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveAgent upserts the full agent snapshot.
func (s *SQLiteStore) SaveAgent(ctx context.Context, agent domain.Agent) error {
	state, err := json.Marshal(agent)
	if err != nil {
		return fmt.Errorf("%w: marshal agent: %v", domain.ErrLedgerStore, err)
	}
	const upsert = `
		INSERT INTO agents (id, generation, is_active, is_bankrupt, balance, state, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			generation  = excluded.generation,
			is_active   = excluded.is_active,
			is_bankrupt = excluded.is_bankrupt,
			balance     = excluded.balance,
			state       = excluded.state,
			updated_at  = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, upsert,
		agent.ID, agent.Generation, boolInt(agent.IsActive), boolInt(agent.IsBankrupt),
		agent.Balance.Micros(), string(state), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: save agent: %v", domain.ErrLedgerStore, err)
	}
	return nil
}

// SavePayment appends a payment record.
func (s *SQLiteStore) SavePayment(ctx context.Context, agentID string, rec domain.PaymentRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: marshal payment: %v", domain.ErrLedgerStore, err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO payments (agent_id, resource_id, nonce, success, record, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		agentID, rec.Request.ResourceID, rec.Request.Nonce, boolInt(rec.Success),
		string(data), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: save payment: %v", domain.ErrLedgerStore, err)
	}
	return nil
}

// SaveBreeding appends a breeding result.
func (s *SQLiteStore) SaveBreeding(ctx context.Context, res domain.BreedingResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("%w: marshal breeding: %v", domain.ErrLedgerStore, err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO breedings (parent_a, parent_b, generation, result, created_at) VALUES (?, ?, ?, ?, ?)",
		res.ParentIDs[0], res.ParentIDs[1], res.Generation,
		string(data), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: save breeding: %v", domain.ErrLedgerStore, err)
	}
	return nil
}

// LoadAgents returns every persisted agent snapshot.
func (s *SQLiteStore) LoadAgents(ctx context.Context) ([]domain.Agent, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT state FROM agents ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("%w: load agents: %v", domain.ErrLedgerStore, err)
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		var state string
		if err := rows.Scan(&state); err != nil {
			return nil, fmt.Errorf("%w: scan agent: %v", domain.ErrLedgerStore, err)
		}
		var agent domain.Agent
		if err := json.Unmarshal([]byte(state), &agent); err != nil {
			return nil, fmt.Errorf("%w: unmarshal agent: %v", domain.ErrLedgerStore, err)
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// ListPayments returns the persisted payment records for an agent in
// insertion order.
func (s *SQLiteStore) ListPayments(ctx context.Context, agentID string) ([]domain.PaymentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT record FROM payments WHERE agent_id = ? ORDER BY id", agentID)
	if err != nil {
		return nil, fmt.Errorf("%w: list payments: %v", domain.ErrLedgerStore, err)
	}
	defer rows.Close()

	var records []domain.PaymentRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("%w: scan payment: %v", domain.ErrLedgerStore, err)
		}
		var rec domain.PaymentRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("%w: unmarshal payment: %v", domain.ErrLedgerStore, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
