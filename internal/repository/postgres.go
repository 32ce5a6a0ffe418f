package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"findost/internal/domain"
)

const defaultPostgresTable = "relay_exchanges"

// PostgresStore keeps relay exchanges in a Postgres table.
type PostgresStore struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// OpenPostgres connects to dsn with the lib/pq driver and verifies the
// connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("repository: database url must not be empty")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: ping postgres: %w", err)
	}
	return db, nil
}

// NewPostgresStore wraps db. An empty table name selects relay_exchanges.
func NewPostgresStore(db *sql.DB, table string) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("repository: db must not be nil")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		table = defaultPostgresTable
	}
	return &PostgresStore{db: db, table: pq.QuoteIdentifier(table), now: time.Now}, nil
}

// EnsureSchema creates the exchanges table and its lookup index if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + s.table + ` (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			message TEXT NOT NULL,
			reply TEXT NOT NULL,
			on_topic BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS ` + s.indexName() + ` ON ` + s.table + ` (user_id, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("repository: EnsureSchema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) indexName() string {
	return pq.QuoteIdentifier(strings.Trim(s.table, `"`) + "_user_created_idx")
}

// RecentExchanges returns up to limit of the user's latest exchanges in
// chronological order.
func (s *PostgresStore) RecentExchanges(ctx context.Context, userID string, limit int) ([]domain.Exchange, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, message, reply, on_topic, created_at FROM `+s.table+
			` WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: RecentExchanges query: %w", err)
	}
	defer rows.Close()

	var exchanges []domain.Exchange
	for rows.Next() {
		var ex domain.Exchange
		if err := rows.Scan(&ex.UserID, &ex.Message, &ex.Reply, &ex.OnTopic, &ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: RecentExchanges scan: %w", err)
		}
		exchanges = append(exchanges, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: RecentExchanges rows: %w", err)
	}
	reverse(exchanges)
	return exchanges, nil
}

func (s *PostgresStore) SaveExchange(ctx context.Context, ex domain.Exchange) error {
	if strings.TrimSpace(ex.UserID) == "" {
		return errors.New("repository: SaveExchange: user id is required")
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+s.table+` (user_id, message, reply, on_topic, created_at) VALUES ($1, $2, $3, $4, $5)`,
		ex.UserID, ex.Message, ex.Reply, ex.OnTopic, ex.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository: SaveExchange: %w", err)
	}
	return nil
}
