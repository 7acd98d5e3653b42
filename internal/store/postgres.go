// Package store provides the persistence backends for the student registry
// and the issuance ledger: PostgreSQL through pgx, and an in-memory store for
// local runs and tests.
package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/cardissue/internal/config"
	"github.com/JonMunkholm/cardissue/internal/core"
	"github.com/JonMunkholm/cardissue/internal/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is the subset of pgx used by the store.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
}

const (
	insertStudentSQL = `INSERT INTO students (htno, name, uid) VALUES ($1, $2, $3) ON CONFLICT (uid) DO NOTHING`
	getStudentSQL    = `SELECT htno, name, uid FROM students WHERE uid = $1`

	insertIssuanceSQL = `INSERT INTO issuance (uid, issued_by, htno, issued_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (uid) DO NOTHING`
	getIssuanceSQL = `SELECT uid, issued_by, htno, issued_at FROM issuance WHERE uid = $1`

	listIssuedSQL = `SELECT s.htno, s.name, s.uid, i.issued_at, i.issued_by
		FROM issuance i
		JOIN students s ON i.uid = s.uid`
)

// Postgres is a core.Store backed by PostgreSQL.
type Postgres struct {
	db   DBTX
	pool *pgxpool.Pool
}

var _ core.Store = (*Postgres)(nil)

// NewPostgres wraps an existing connection or pool.
func NewPostgres(db DBTX) *Postgres {
	p := &Postgres{db: db}
	if pool, ok := db.(*pgxpool.Pool); ok {
		p.pool = pool
	}
	return p
}

// Connect opens a pool configured from cfg and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logLevel slog.Level) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	if cfg.LogQueries {
		poolConfig.ConnConfig.Tracer = logging.NewQueryTracer(logLevel)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewPostgres(pool), nil
}

// EnsureSchema creates the students and issuance tables if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) InsertStudent(ctx context.Context, s core.Student) error {
	if _, err := p.db.Exec(ctx, insertStudentSQL, s.Htno, s.Name, s.UID); err != nil {
		return fmt.Errorf("insert student: %w", err)
	}
	return nil
}

func (p *Postgres) GetStudent(ctx context.Context, uid string) (core.Student, error) {
	rows, err := p.db.Query(ctx, getStudentSQL, uid)
	if err != nil {
		return core.Student{}, fmt.Errorf("query student: %w", err)
	}
	student, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[core.Student])
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Student{}, core.ErrNoRecord
	}
	if err != nil {
		return core.Student{}, fmt.Errorf("scan student: %w", err)
	}
	return student, nil
}

func (p *Postgres) InsertIssuance(ctx context.Context, uid, issuedBy, htno string) (bool, error) {
	tag, err := p.db.Exec(ctx, insertIssuanceSQL, uid, issuedBy, htno)
	if err != nil {
		return false, fmt.Errorf("insert issuance: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) GetIssuance(ctx context.Context, uid string) (core.Issuance, error) {
	rows, err := p.db.Query(ctx, getIssuanceSQL, uid)
	if err != nil {
		return core.Issuance{}, fmt.Errorf("query issuance: %w", err)
	}
	issuance, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[core.Issuance])
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Issuance{}, core.ErrNoRecord
	}
	if err != nil {
		return core.Issuance{}, fmt.Errorf("scan issuance: %w", err)
	}
	return issuance, nil
}

func (p *Postgres) ListIssued(ctx context.Context) ([]core.IssuedCard, error) {
	rows, err := p.db.Query(ctx, listIssuedSQL)
	if err != nil {
		return nil, fmt.Errorf("query issued cards: %w", err)
	}
	cards, err := pgx.CollectRows(rows, pgx.RowToStructByName[core.IssuedCard])
	if err != nil {
		return nil, fmt.Errorf("scan issued cards: %w", err)
	}
	return cards, nil
}

// Ping verifies connectivity. Stores built on a single connection or
// transaction report healthy without a round trip.
func (p *Postgres) Ping(ctx context.Context) error {
	if p.pool == nil {
		return nil
	}
	return p.pool.Ping(ctx)
}

// Close releases the pool, if the store owns one.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}
