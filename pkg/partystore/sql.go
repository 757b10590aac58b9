package partystore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// sqlBackend serves postgres, mysql and sqlite from one implementation.
// The record lives in a JSON text column; there are no query paths beyond
// primary-key lookup, so no projections are needed.
type sqlBackend struct {
	db      *sql.DB
	dialect config.StoreBackend
	table   string
}

func newSQLBackend(cfg *config.StoreConfig) (*sqlBackend, error) {
	driver := string(cfg.Backend)
	if cfg.Backend == config.StoreBackendSQLite {
		driver = "sqlite3"
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

	b := &sqlBackend{db: db, dialect: cfg.Backend, table: cfg.Collection}
	if b.table == "" {
		b.table = "parties"
	}
	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
    id VARCHAR(255) PRIMARY KEY,
    kind VARCHAR(32) NOT NULL,
    party_json TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`, b.table)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fault.New(fault.PermanentBackend, component, "init_schema", "create table", err)
	}
	return b, nil
}

func (b *sqlBackend) get(ctx context.Context, partyID string) (Party, error) {
	var raw string
	query := b.rebind(fmt.Sprintf("SELECT party_json FROM %s WHERE id = ?", b.table))
	err := b.db.QueryRowContext(ctx, query, partyID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Party{}, notFound("get", partyID)
	}
	if err != nil {
		return Party{}, fault.New(fault.TransientBackend, component, "get", "query party", err)
	}
	var p Party
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Party{}, fault.New(fault.PermanentBackend, component, "get", "decode party", err)
	}
	return p, nil
}

func (b *sqlBackend) put(ctx context.Context, p Party) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fault.New(fault.PermanentBackend, component, "put", "encode party", err)
	}
	now := time.Now().UTC()

	var upsert string
	switch b.dialect {
	case config.StoreBackendMySQL:
		upsert = fmt.Sprintf(`INSERT INTO %s (id, kind, party_json, updated_at) VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE kind = VALUES(kind), party_json = VALUES(party_json), updated_at = VALUES(updated_at)`, b.table)
	default:
		// postgres and sqlite share ON CONFLICT syntax.
		upsert = fmt.Sprintf(`INSERT INTO %s (id, kind, party_json, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET kind = excluded.kind, party_json = excluded.party_json, updated_at = excluded.updated_at`, b.table)
	}
	if _, err := b.db.ExecContext(ctx, b.rebind(upsert), p.PartyID, string(p.Kind), string(raw), now); err != nil {
		return fault.New(fault.TransientBackend, component, "put", "upsert party", err)
	}
	return nil
}

func (b *sqlBackend) close() error {
	return b.db.Close()
}

// rebind rewrites ? placeholders to $N for postgres.
func (b *sqlBackend) rebind(query string) string {
	if b.dialect != config.StoreBackendPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
