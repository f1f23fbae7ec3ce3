package db

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS subjects (
		name TEXT PRIMARY KEY,
		category TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS score_records (
		row_seq BIGSERIAL,
		id TEXT PRIMARY KEY,
		subject TEXT NOT NULL REFERENCES subjects(name),
		score DOUBLE PRECISION NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		sample_size INTEGER NOT NULL,
		positive INTEGER NOT NULL,
		neutral INTEGER NOT NULL,
		negative INTEGER NOT NULL,
		mean_bias DOUBLE PRECISION NOT NULL,
		mode TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		variance DOUBLE PRECISION NOT NULL DEFAULT 0,
		std_dev DOUBLE PRECISION NOT NULL DEFAULT 0,
		min_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		mean_credibility DOUBLE PRECISION NOT NULL DEFAULT 0,
		mean_length_factor DOUBLE PRECISION NOT NULL DEFAULT 0,
		source_breakdown TEXT NOT NULL DEFAULT '{}',
		ts BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS comment_judgments (
		record_id TEXT NOT NULL REFERENCES score_records(id),
		seq INTEGER NOT NULL,
		subject TEXT NOT NULL,
		source TEXT NOT NULL,
		platform_id TEXT NOT NULL,
		text TEXT NOT NULL,
		author TEXT NOT NULL DEFAULT '',
		engagement INTEGER NOT NULL DEFAULT 0,
		community TEXT NOT NULL DEFAULT '',
		commented_at BIGINT NOT NULL DEFAULT 0,
		raw_score DOUBLE PRECISION NOT NULL,
		scale TEXT NOT NULL,
		bias_score DOUBLE PRECISION NOT NULL,
		confidence_hint DOUBLE PRECISION,
		detected_context TEXT NOT NULL DEFAULT '',
		classifier TEXT NOT NULL DEFAULT '',
		adjusted_sentiment DOUBLE PRECISION NOT NULL DEFAULT 0,
		weight DOUBLE PRECISION NOT NULL DEFAULT 0,
		credibility DOUBLE PRECISION NOT NULL DEFAULT 0,
		bias_discount DOUBLE PRECISION NOT NULL DEFAULT 0,
		length_factor DOUBLE PRECISION NOT NULL DEFAULT 0,
		excluded BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (record_id, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_score_records_subject_ts ON score_records(subject, ts)`,
	`CREATE INDEX IF NOT EXISTS idx_comment_judgments_subject ON comment_judgments(subject)`,
}

// NewPostgresRepository applies the schema through pool and takes ownership
// of it; Close closes the pool.
func NewPostgresRepository(ctx context.Context, pool *pgxpool.Pool) (*SQLRepository, error) {
	db := stdlib.OpenDBFromPool(pool)
	r, err := newSQLRepository(ctx, db, "Postgres", sq.Dollar, "row_seq", postgresSchema)
	if err != nil {
		db.Close()
		pool.Close()
		return nil, err
	}
	r.onClose = pool.Close
	return r, nil
}
