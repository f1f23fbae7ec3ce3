package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/spacesedan/ariss/internal/models"
)

const (
	subjectsTable  = "subjects"
	recordsTable   = "score_records"
	judgmentsTable = "comment_judgments"

	// keeps each insert well under SQLite's bound parameter limit
	judgmentChunkSize = 200
)

var recordColumns = []string{
	"id", "subject", "score", "confidence", "sample_size",
	"positive", "neutral", "negative", "mean_bias", "mode", "category",
	"variance", "std_dev", "min_score", "max_score",
	"mean_credibility", "mean_length_factor", "source_breakdown", "ts",
}

var judgmentColumns = []string{
	"record_id", "seq", "subject", "source", "platform_id", "text", "author",
	"engagement", "community", "commented_at",
	"raw_score", "scale", "bias_score", "confidence_hint", "detected_context", "classifier",
	"adjusted_sentiment", "weight", "credibility", "bias_discount", "length_factor", "excluded",
}

// SQLRepository stores scores in a relational database. SQLite and Postgres
// differ only in placeholders, schema types and the insertion-order column.
type SQLRepository struct {
	db       *sql.DB
	sb       sq.StatementBuilderType
	name     string
	tiebreak string
	onClose  func()
}

func newSQLRepository(ctx context.Context, db *sql.DB, name string, placeholder sq.PlaceholderFormat, tiebreak string, schema []string) (*SQLRepository, error) {
	r := &SQLRepository{
		db:       db,
		sb:       sq.StatementBuilder.PlaceholderFormat(placeholder),
		name:     name,
		tiebreak: tiebreak,
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("[%s] migration failed: %w", name, err)
		}
	}
	return r, nil
}

func (r *SQLRepository) Close() error {
	err := r.db.Close()
	if r.onClose != nil {
		r.onClose()
	}
	return err
}

func (r *SQLRepository) Save(ctx context.Context, record models.ScoreRecord, judgments []models.CommentJudgment) error {
	if err := r.save(ctx, record, judgments); err != nil {
		return fmt.Errorf("%w: %w", models.ErrRepositoryWrite, err)
	}
	slog.Debug("[Repository] Saved score record",
		slog.String("backend", r.name),
		slog.String("subject", record.Subject),
		slog.Int("judgments", len(judgments)))
	return nil
}

func (r *SQLRepository) save(ctx context.Context, record models.ScoreRecord, judgments []models.CommentJudgment) error {
	breakdown, err := json.Marshal(record.SourceBreakdown)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	subjectQuery, args, err := r.sb.Insert(subjectsTable).
		Columns("name", "category", "created_at").
		Values(record.Subject, record.Category, toNanos(record.Timestamp)).
		Suffix("ON CONFLICT(name) DO UPDATE SET category = excluded.category WHERE excluded.category <> ''").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, subjectQuery, args...); err != nil {
		return err
	}

	recordQuery, args, err := r.sb.Insert(recordsTable).
		Columns(recordColumns...).
		Values(
			record.ID.String(), record.Subject, record.Score, record.Confidence, record.SampleSize,
			record.Distribution.Positive, record.Distribution.Neutral, record.Distribution.Negative,
			record.MeanBias, string(record.Mode), record.Category,
			record.Variance, record.StdDev, record.MinScore, record.MaxScore,
			record.MeanCredibility, record.MeanLengthFactor, string(breakdown), toNanos(record.Timestamp),
		).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, recordQuery, args...); err != nil {
		return err
	}

	for start := 0; start < len(judgments); start += judgmentChunkSize {
		end := min(start+judgmentChunkSize, len(judgments))
		insert := r.sb.Insert(judgmentsTable).Columns(judgmentColumns...)
		for i := start; i < end; i++ {
			insert = insert.Values(judgmentValues(record, i, judgments[i])...)
		}
		judgmentQuery, args, err := insert.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, judgmentQuery, args...); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func judgmentValues(record models.ScoreRecord, seq int, cj models.CommentJudgment) []any {
	var hint any
	if cj.Judgment.ConfidenceHint != nil {
		hint = *cj.Judgment.ConfidenceHint
	}
	c, j, w := cj.Comment, cj.Judgment, cj.Weighted
	return []any{
		record.ID.String(), seq, record.Subject, string(c.Source), c.PlatformID, c.Text, c.Author,
		c.Engagement, c.Community, toNanos(c.Timestamp),
		j.RawScore, string(j.Scale), j.BiasScore, hint, j.DetectedContext, j.Classifier,
		w.AdjustedSentiment, w.Weight, w.Credibility, w.BiasDiscount, w.LengthFactor, cj.Excluded,
	}
}

func (r *SQLRepository) GetLatest(ctx context.Context, subject string) (models.ScoreRecord, error) {
	query, args, err := r.sb.Select(recordColumns...).
		From(recordsTable).
		Where(sq.Eq{"subject": subject}).
		OrderBy("ts DESC", r.tiebreak+" DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return models.ScoreRecord{}, err
	}

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.ScoreRecord{}, fmt.Errorf("%w: no score for %q", models.ErrNotFound, subject)
	}
	if err != nil {
		return models.ScoreRecord{}, fmt.Errorf("[%s] get latest %q: %w", r.name, subject, err)
	}
	return record, nil
}

func (r *SQLRepository) GetHistory(ctx context.Context, subject string, since time.Time) ([]models.ScoreRecord, error) {
	query, args, err := r.sb.Select(recordColumns...).
		From(recordsTable).
		Where(sq.And{sq.Eq{"subject": subject}, sq.GtOrEq{"ts": toNanos(since)}}).
		OrderBy("ts ASC", r.tiebreak+" ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("[%s] get history %q: %w", r.name, subject, err)
	}
	defer rows.Close()

	var records []models.ScoreRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("[%s] scan history %q: %w", r.name, subject, err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *SQLRepository) ListSubjects(ctx context.Context) ([]string, error) {
	query, args, err := r.sb.Select("name").From(subjectsTable).OrderBy("name").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("[%s] list subjects: %w", r.name, err)
	}
	defer rows.Close()

	var subjects []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		subjects = append(subjects, name)
	}
	return subjects, rows.Err()
}

func (r *SQLRepository) GetCommentJudgments(ctx context.Context, subject string, limit int) ([]models.CommentJudgment, error) {
	latest, err := r.GetLatest(ctx, subject)
	if err != nil {
		return nil, err
	}

	builder := r.sb.Select(judgmentColumns...).
		From(judgmentsTable).
		Where(sq.Eq{"record_id": latest.ID.String()}).
		OrderBy("seq ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("[%s] comment judgments %q: %w", r.name, subject, err)
	}
	defer rows.Close()

	var out []models.CommentJudgment
	for rows.Next() {
		var (
			cj               models.CommentJudgment
			recordID, source string
			scale            string
			seq              int
			commentedAt      int64
			hint             sql.NullFloat64
		)
		err := rows.Scan(
			&recordID, &seq, new(string), &source, &cj.Comment.PlatformID, &cj.Comment.Text, &cj.Comment.Author,
			&cj.Comment.Engagement, &cj.Comment.Community, &commentedAt,
			&cj.Judgment.RawScore, &scale, &cj.Judgment.BiasScore, &hint, &cj.Judgment.DetectedContext, &cj.Judgment.Classifier,
			&cj.Weighted.AdjustedSentiment, &cj.Weighted.Weight, &cj.Weighted.Credibility,
			&cj.Weighted.BiasDiscount, &cj.Weighted.LengthFactor, &cj.Excluded,
		)
		if err != nil {
			return nil, err
		}
		cj.Comment.Source = models.Source(source)
		cj.Comment.Timestamp = fromNanos(commentedAt)
		cj.Judgment.Scale = models.Scale(scale)
		cj.Judgment.CommentRef = cj.Comment.Key()
		if hint.Valid {
			v := hint.Float64
			cj.Judgment.ConfidenceHint = &v
		}
		cj.Weighted.CommentRef = cj.Comment.Key()
		cj.Weighted.Source = cj.Comment.Source
		cj.Weighted.BiasScore = cj.Judgment.BiasScore
		out = append(out, cj)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (models.ScoreRecord, error) {
	var (
		record    models.ScoreRecord
		id, mode  string
		breakdown string
		ts        int64
	)
	err := row.Scan(
		&id, &record.Subject, &record.Score, &record.Confidence, &record.SampleSize,
		&record.Distribution.Positive, &record.Distribution.Neutral, &record.Distribution.Negative,
		&record.MeanBias, &mode, &record.Category,
		&record.Variance, &record.StdDev, &record.MinScore, &record.MaxScore,
		&record.MeanCredibility, &record.MeanLengthFactor, &breakdown, &ts,
	)
	if err != nil {
		return models.ScoreRecord{}, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return models.ScoreRecord{}, fmt.Errorf("bad record id %q: %w", id, err)
	}
	record.ID = parsed
	record.Mode = models.AggregationMode(mode)
	record.Timestamp = fromNanos(ts)
	if breakdown != "" && breakdown != "null" {
		if err := json.Unmarshal([]byte(breakdown), &record.SourceBreakdown); err != nil {
			return models.ScoreRecord{}, fmt.Errorf("bad source breakdown: %w", err)
		}
	}
	return record, nil
}

// toNanos stores timestamps as UTC unix nanoseconds; the zero time is 0.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
