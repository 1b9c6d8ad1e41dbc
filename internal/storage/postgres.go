package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"metricsbuf/internal/point"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS %s (
	id     BIGSERIAL PRIMARY KEY,
	series TEXT NOT NULL,
	tags   JSONB NOT NULL DEFAULT '{}',
	fields JSONB NOT NULL,
	time   TIMESTAMPTZ NOT NULL
)`

// Postgres writes points to a table with JSONB tag and field columns.
// The table works as a TimescaleDB hypertable when converted by hand.
type Postgres struct {
	*sqlSink
}

type postgresRow struct {
	Series string    `db:"series"`
	Tags   string    `db:"tags"`
	Fields string    `db:"fields"`
	Time   time.Time `db:"time"`
}

func newPostgresRow(p *point.Point) (postgresRow, error) {
	tags := p.Tags
	if tags == nil {
		tags = map[string]string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return postgresRow{}, fmt.Errorf("failed to encode tags: %w", err)
	}
	fieldsJSON, err := json.Marshal(p.Fields)
	if err != nil {
		return postgresRow{}, fmt.Errorf("failed to encode fields: %w", err)
	}
	return postgresRow{
		Series: p.Series,
		Tags:   string(tagsJSON),
		Fields: string(fieldsJSON),
		Time:   p.Time.UTC(),
	}, nil
}

// NewPostgres creates a Postgres sink from a lib/pq connection string
func NewPostgres(dsn, table string) (*Postgres, error) {
	s, err := newSQLSink("postgres", "postgres", dsn, table)
	if err != nil {
		return nil, err
	}
	s.schema = fmt.Sprintf(postgresSchema, table)

	query := fmt.Sprintf("INSERT INTO %s (series, tags, fields, time) VALUES (:series, :tags, :fields, :time)", table)
	s.insert = func(ctx context.Context, db *sqlx.DB, p *point.Point) error {
		row, err := newPostgresRow(p)
		if err != nil {
			return err
		}
		_, err = db.NamedExecContext(ctx, query, row)
		return err
	}

	return &Postgres{sqlSink: s}, nil
}
