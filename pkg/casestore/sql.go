package casestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore serves postgres, mysql and sqlite from one implementation. The
// case record and both JSON trees live in text columns; status, owner and
// updated_at are projected into real columns for the maintenance queries.
type SQLStore struct {
	db      *sql.DB
	dialect config.StoreBackend
	table   string
}

// NewSQLStore opens the configured database, verifies connectivity and
// ensures the schema.
func NewSQLStore(cfg *config.StoreConfig) (*SQLStore, error) {
	driver := string(cfg.Backend)
	switch cfg.Backend {
	case config.StoreBackendPostgres, config.StoreBackendMySQL:
	case config.StoreBackendSQLite:
		// go-sqlite3 registers as "sqlite3".
		driver = "sqlite3"
	default:
		return nil, fault.New(fault.Validation, component, "new_sql",
			fmt.Sprintf("unsupported dialect %q", cfg.Backend), nil)
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fault.New(fault.PermanentBackend, component, "new_sql", "open database", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fault.New(fault.TransientBackend, component, "new_sql", "ping database", err)
	}

	s := &SQLStore{db: db, dialect: cfg.Backend, table: cfg.Collection}
	if s.table == "" {
		s.table = "cases"
	}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
    id VARCHAR(255) PRIMARY KEY,
    owner_kind VARCHAR(32) NOT NULL,
    owner_id VARCHAR(255) NOT NULL,
    status VARCHAR(32) NOT NULL,
    tier INTEGER NOT NULL DEFAULT 0,
    case_json TEXT NOT NULL,
    details_json TEXT NOT NULL,
    processing_json TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_status ON %[1]s(status);
CREATE INDEX IF NOT EXISTS idx_%[1]s_owner ON %[1]s(owner_id);
CREATE INDEX IF NOT EXISTS idx_%[1]s_updated_at ON %[1]s(updated_at);
`, s.table)

	// MySQL before 8.0 lacks CREATE INDEX IF NOT EXISTS; creating the
	// indexes one by one and ignoring duplicates keeps the same schema
	// everywhere.
	if s.dialect == config.StoreBackendMySQL {
		for _, stmt := range strings.Split(schema, ";") {
			stmt = strings.TrimSpace(strings.ReplaceAll(stmt, "IF NOT EXISTS idx_", "idx_"))
			if stmt == "" {
				continue
			}
			if strings.HasPrefix(stmt, "CREATE INDEX") {
				if _, err := s.db.ExecContext(ctx, stmt); err != nil && !isDuplicateIndex(err) {
					return fault.New(fault.PermanentBackend, component, "init_schema", "create index", err)
				}
				continue
			}
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fault.New(fault.PermanentBackend, component, "init_schema", "create table", err)
			}
		}
		return nil
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fault.New(fault.PermanentBackend, component, "init_schema", "create schema", err)
	}
	return nil
}

func isDuplicateIndex(err error) bool {
	// MySQL error 1061: duplicate key name.
	return err != nil && strings.Contains(err.Error(), "1061")
}

// rebind rewrites ? placeholders to $N for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != config.StoreBackendPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Create(ctx context.Context, c casefile.Case) error {
	if c.ID == "" {
		return fault.New(fault.Validation, component, "create", "case id is required", nil)
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}

	caseJSON, err := json.Marshal(c)
	if err != nil {
		return fault.New(fault.PermanentBackend, component, "create", "marshal case", err)
	}
	detailsJSON, err := json.Marshal(casefile.Details{})
	if err != nil {
		return fault.New(fault.PermanentBackend, component, "create", "marshal details", err)
	}

	return s.withTx(ctx, "create", func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			s.rebind(fmt.Sprintf("SELECT 1 FROM %s WHERE id = ?", s.table)), c.ID,
		).Scan(&exists)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fault.New(fault.TransientBackend, component, "create", "existence check", err)
		}
		_, err = tx.ExecContext(ctx, s.rebind(fmt.Sprintf(`
INSERT INTO %s (id, owner_kind, owner_id, status, tier, case_json, details_json, processing_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`, s.table)),
			c.ID, string(c.Owner.Kind), c.Owner.ID, string(c.Status), c.Tier,
			string(caseJSON), string(detailsJSON), c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return fault.New(fault.TransientBackend, component, "create", "insert case", err)
		}
		return nil
	})
}

func (s *SQLStore) Load(ctx context.Context, caseID string) (casefile.Case, casefile.Details, *casefile.ProcessingState, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(fmt.Sprintf(
		"SELECT case_json, details_json, processing_json FROM %s WHERE id = ?", s.table)), caseID)
	return scanCase(row, caseID, "load")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner, caseID, op string) (casefile.Case, casefile.Details, *casefile.ProcessingState, error) {
	var caseJSON, detailsJSON string
	var processingJSON sql.NullString
	if err := row.Scan(&caseJSON, &detailsJSON, &processingJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return casefile.Case{}, casefile.Details{}, nil, notFound(op, caseID)
		}
		return casefile.Case{}, casefile.Details{}, nil, fault.New(fault.TransientBackend, component, op, "query case", err)
	}

	var c casefile.Case
	if err := json.Unmarshal([]byte(caseJSON), &c); err != nil {
		return casefile.Case{}, casefile.Details{}, nil, fault.New(fault.PermanentBackend, component, op, "unmarshal case", err)
	}
	var details casefile.Details
	if err := json.Unmarshal([]byte(detailsJSON), &details); err != nil {
		return casefile.Case{}, casefile.Details{}, nil, fault.New(fault.PermanentBackend, component, op, "unmarshal details", err)
	}
	var ps *casefile.ProcessingState
	if processingJSON.Valid && processingJSON.String != "" {
		ps = &casefile.ProcessingState{}
		if err := json.Unmarshal([]byte(processingJSON.String), ps); err != nil {
			return casefile.Case{}, casefile.Details{}, nil, fault.New(fault.PermanentBackend, component, op, "unmarshal processing state", err)
		}
	}
	return c, details, ps, nil
}

// mutate runs a read-modify-write cycle on one case row inside a
// transaction. fn edits the in-memory record; persisted columns are derived
// from the result.
func (s *SQLStore) mutate(ctx context.Context, op, caseID string, fn func(c *casefile.Case, details *casefile.Details, ps **casefile.ProcessingState) error) error {
	return s.withTx(ctx, op, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.rebind(fmt.Sprintf(
			"SELECT case_json, details_json, processing_json FROM %s WHERE id = ?", s.table)), caseID)
		c, details, ps, err := scanCase(row, caseID, op)
		if err != nil {
			return err
		}

		if err := fn(&c, &details, &ps); err != nil {
			return err
		}
		c.UpdatedAt = time.Now().UTC()

		caseJSON, err := json.Marshal(c)
		if err != nil {
			return fault.New(fault.PermanentBackend, component, op, "marshal case", err)
		}
		detailsJSON, err := json.Marshal(details)
		if err != nil {
			return fault.New(fault.PermanentBackend, component, op, "marshal details", err)
		}
		var processingJSON any
		if ps != nil {
			raw, err := json.Marshal(ps)
			if err != nil {
				return fault.New(fault.PermanentBackend, component, op, "marshal processing state", err)
			}
			processingJSON = string(raw)
		}

		_, err = tx.ExecContext(ctx, s.rebind(fmt.Sprintf(`
UPDATE %s SET status = ?, tier = ?, case_json = ?, details_json = ?, processing_json = ?, updated_at = ?
WHERE id = ?`, s.table)),
			string(c.Status), c.Tier, string(caseJSON), string(detailsJSON), processingJSON, c.UpdatedAt, caseID,
		)
		if err != nil {
			return fault.New(fault.TransientBackend, component, op, "update case", err)
		}
		return nil
	})
}

func (s *SQLStore) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fault.New(fault.TransientBackend, component, op, "begin tx", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fault.New(fault.TransientBackend, component, op, "commit tx", err)
	}
	return nil
}

func (s *SQLStore) ApplyUpdates(ctx context.Context, caseID string, updates map[string]any) error {
	return s.mutate(ctx, "apply_updates", caseID, func(_ *casefile.Case, details *casefile.Details, _ **casefile.ProcessingState) error {
		return applyBatch(details, updates, time.Now().UTC())
	})
}

func (s *SQLStore) SaveProcessingState(ctx context.Context, caseID string, state casefile.ProcessingState) error {
	return s.mutate(ctx, "save_processing_state", caseID, func(_ *casefile.Case, _ *casefile.Details, ps **casefile.ProcessingState) error {
		*ps = &state
		return nil
	})
}

func (s *SQLStore) ClearProcessingState(ctx context.Context, caseID string) error {
	return s.mutate(ctx, "clear_processing_state", caseID, func(_ *casefile.Case, _ *casefile.Details, ps **casefile.ProcessingState) error {
		*ps = nil
		return nil
	})
}

func (s *SQLStore) SetStatus(ctx context.Context, caseID string, status casefile.Status) error {
	return s.mutate(ctx, "set_status", caseID, func(c *casefile.Case, _ *casefile.Details, _ **casefile.ProcessingState) error {
		if err := checkTransition(c.Status, status); err != nil {
			return err
		}
		c.Status = status
		return nil
	})
}

func (s *SQLStore) SetTier(ctx context.Context, caseID string, tier int) error {
	return s.mutate(ctx, "set_tier", caseID, func(c *casefile.Case, _ *casefile.Details, _ **casefile.ProcessingState) error {
		c.Tier = tier
		return nil
	})
}

func (s *SQLStore) SetSessionIDs(ctx context.Context, caseID, assistantSessionID, reasonerSessionID string) error {
	return s.mutate(ctx, "set_session_ids", caseID, func(c *casefile.Case, _ *casefile.Details, _ **casefile.ProcessingState) error {
		if assistantSessionID != "" {
			c.AssistantSessionID = assistantSessionID
		}
		if reasonerSessionID != "" {
			c.ReasonerSessionID = reasonerSessionID
		}
		return nil
	})
}

func (s *SQLStore) RecordPayment(ctx context.Context, caseID string, p casefile.PaymentRecord) error {
	return s.mutate(ctx, "record_payment", caseID, func(c *casefile.Case, _ *casefile.Details, _ **casefile.ProcessingState) error {
		for _, existing := range c.Payments {
			if existing.EventID == p.EventID {
				return nil
			}
		}
		if p.PaidAt.IsZero() {
			p.PaidAt = time.Now().UTC()
		}
		c.Payments = append(c.Payments, p)
		return nil
	})
}

func (s *SQLStore) ListByStatus(ctx context.Context, status casefile.Status, updatedBefore time.Time, limit int) ([]casefile.Case, error) {
	query := fmt.Sprintf("SELECT case_json FROM %s WHERE status = ?", s.table)
	args := []any{string(status)}
	if !updatedBefore.IsZero() {
		query += " AND updated_at < ?"
		args = append(args, updatedBefore)
	}
	query += " ORDER BY updated_at ASC"
	if limit > 0 {
		query += " LIMIT " + strconv.Itoa(limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fault.New(fault.TransientBackend, component, "list_by_status", "query cases", err)
	}
	defer rows.Close()

	var out []casefile.Case
	for rows.Next() {
		var caseJSON string
		if err := rows.Scan(&caseJSON); err != nil {
			return nil, fault.New(fault.TransientBackend, component, "list_by_status", "scan row", err)
		}
		var c casefile.Case
		if err := json.Unmarshal([]byte(caseJSON), &c); err != nil {
			return nil, fault.New(fault.PermanentBackend, component, "list_by_status", "unmarshal case", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.New(fault.TransientBackend, component, "list_by_status", "iterate rows", err)
	}
	return out, nil
}

func (s *SQLStore) Touch(ctx context.Context, caseID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(fmt.Sprintf(
		"UPDATE %s SET updated_at = ? WHERE id = ?", s.table)), time.Now().UTC(), caseID)
	if err != nil {
		return fault.New(fault.TransientBackend, component, "touch", "update case", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("touch", caseID)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
