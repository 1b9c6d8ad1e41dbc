package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"metricsbuf/internal/logger"
	"metricsbuf/internal/point"
)

// sqlSink is the part shared by the database/sql backed sinks: a lazily
// created schema and one insert per point.
type sqlSink struct {
	name   string
	db     *sqlx.DB
	table  string
	schema string
	insert func(ctx context.Context, db *sqlx.DB, p *point.Point) error
	log    zerolog.Logger

	mu      sync.Mutex
	created bool
}

func newSQLSink(name, driver, dsn, table string) (*sqlSink, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &sqlSink{
		name:  name,
		db:    db,
		table: table,
		log:   logger.WithComponent(name + "_sink"),
	}, nil
}

// ensureSchema creates the table on first use. A failed attempt is
// retried by the next write.
func (s *sqlSink) ensureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.created {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, s.schema); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	s.created = true

	s.log.Info().
		Str("table", s.table).
		Msg("table ready")
	return nil
}

// Write inserts one row for the point
func (s *sqlSink) Write(ctx context.Context, p *point.Point) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	if err := s.insert(ctx, s.db, p); err != nil {
		return fmt.Errorf("%s insert failed: %w", s.name, err)
	}
	return nil
}

// Ping checks the database is alive
func (s *sqlSink) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", s.name, err)
	}
	return nil
}

// Close closes the connection pool
func (s *sqlSink) Close() error {
	s.log.Info().Msg("closing database connection")
	return s.db.Close()
}
