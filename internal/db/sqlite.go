package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"

	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS subjects (
		name TEXT PRIMARY KEY,
		category TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS score_records (
		id TEXT PRIMARY KEY,
		subject TEXT NOT NULL REFERENCES subjects(name),
		score REAL NOT NULL,
		confidence REAL NOT NULL,
		sample_size INTEGER NOT NULL,
		positive INTEGER NOT NULL,
		neutral INTEGER NOT NULL,
		negative INTEGER NOT NULL,
		mean_bias REAL NOT NULL,
		mode TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		variance REAL NOT NULL DEFAULT 0,
		std_dev REAL NOT NULL DEFAULT 0,
		min_score REAL NOT NULL DEFAULT 0,
		max_score REAL NOT NULL DEFAULT 0,
		mean_credibility REAL NOT NULL DEFAULT 0,
		mean_length_factor REAL NOT NULL DEFAULT 0,
		source_breakdown TEXT NOT NULL DEFAULT '{}',
		ts INTEGER NOT NULL
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
		commented_at INTEGER NOT NULL DEFAULT 0,
		raw_score REAL NOT NULL,
		scale TEXT NOT NULL,
		bias_score REAL NOT NULL,
		confidence_hint REAL,
		detected_context TEXT NOT NULL DEFAULT '',
		classifier TEXT NOT NULL DEFAULT '',
		adjusted_sentiment REAL NOT NULL DEFAULT 0,
		weight REAL NOT NULL DEFAULT 0,
		credibility REAL NOT NULL DEFAULT 0,
		bias_discount REAL NOT NULL DEFAULT 0,
		length_factor REAL NOT NULL DEFAULT 0,
		excluded INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (record_id, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_score_records_subject_ts ON score_records(subject, ts)`,
	`CREATE INDEX IF NOT EXISTS idx_comment_judgments_subject ON comment_judgments(subject)`,
}

// NewSQLiteRepository opens (creating if needed) the database at path in WAL
// mode and applies the schema. It is the embedded default backend.
func NewSQLiteRepository(path string) (*SQLRepository, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("[SQLite] failed to create %s: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("[SQLite] failed to open %s: %w", path, err)
	}

	r, err := newSQLRepository(context.Background(), db, "SQLite", sq.Question, "rowid", sqliteSchema)
	if err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("[SQLite] Score repository ready", slog.String("path", path))
	return r, nil
}
