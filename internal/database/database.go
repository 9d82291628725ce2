// Package database is the relational bookkeeping store: projects and tasks,
// the block queue, batches, pending reports, campaign locks and the dispatch
// cursor. Every access is a parameterized query.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"

	"rsyaclean/internal/config"
)

const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 5 * time.Minute
	DefaultPingTimeout     = 5 * time.Second
)

// ErrNotFound is returned when a lookup by id matches no row
var ErrNotFound = errors.New("not found")

type Database interface {
	Health() error
	Close() error
	Migrate(ctx context.Context) error
	ProjectDatabase
	QueueDatabase
	BatchDatabase
	PendingReportDatabase
	LockDatabase
	CursorDatabase
}

type postgresDB struct {
	db *sqlx.DB
}

func New(cfg *config.Config) (Database, error) {
	pg := cfg.Postgres
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		pg.Host, pg.Port, pg.User, pg.Password, pg.DBName, pg.SSLMode,
	)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return NewWithDB(db), nil
}

// NewWithDB wraps an existing connection
func NewWithDB(db *sqlx.DB) Database {
	return &postgresDB{db: db}
}

func (p *postgresDB) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := p.db.PingContext(ctx); err != nil {
		log.Error().Msgf("Database health error: %v", err)
		return err
	}

	return nil
}

func (p *postgresDB) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
