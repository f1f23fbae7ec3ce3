package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/spacesedan/ariss/internal/broadcast"
	"github.com/spacesedan/ariss/internal/collectors"
	"github.com/spacesedan/ariss/internal/db"
	"github.com/spacesedan/ariss/internal/metrics"
	"github.com/spacesedan/ariss/internal/models"
	"github.com/spacesedan/ariss/internal/scoring"
	"github.com/spacesedan/ariss/internal/sentiment"
	"github.com/spacesedan/ariss/internal/subjectcontext"
	"github.com/spacesedan/ariss/internal/utils"
	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 8

// Deps are the pipeline's collaborators. Classifier and Aggregator are
// required; everything else may be left nil.
type Deps struct {
	Classifier  sentiment.Classifier
	Policy      scoring.Policy
	Aggregator  *scoring.Aggregator
	Publisher   broadcast.Publisher
	Metrics     *metrics.Metrics
	Collectors  []collectors.Collector
	Context     subjectcontext.Provider
	Concurrency int
}

// Pipeline turns comments about a subject into a persisted ScoreRecord. It
// holds no per-run state and is safe for concurrent runs.
type Pipeline struct {
	classifier  sentiment.Classifier
	policy      scoring.Policy
	aggregator  *scoring.Aggregator
	publisher   broadcast.Publisher
	metrics     *metrics.Metrics
	collectors  []collectors.Collector
	contexts    subjectcontext.Provider
	concurrency int
}

func New(deps Deps) *Pipeline {
	if deps.Concurrency <= 0 {
		deps.Concurrency = DefaultConcurrency
	}
	if deps.Aggregator == nil {
		deps.Aggregator = scoring.NewAggregator(models.ModeWeightedMean, 0, nil)
	}
	if deps.Policy.SourceTrust == nil {
		deps.Policy = scoring.DefaultPolicy()
	}
	return &Pipeline{
		classifier:  deps.Classifier,
		policy:      deps.Policy,
		aggregator:  deps.Aggregator,
		publisher:   deps.Publisher,
		metrics:     deps.Metrics,
		collectors:  deps.Collectors,
		contexts:    deps.Context,
		concurrency: deps.Concurrency,
	}
}

// ComputeScore classifies, weighs and aggregates comments, then saves the
// record through repo. A nil repo computes without saving. An empty batch
// yields a neutral zero-sample record, not an error.
func (p *Pipeline) ComputeScore(ctx context.Context, repo db.ScoreRepository, subject string, comments []models.Comment, subjectContext string) (models.ScoreRecord, error) {
	return p.compute(ctx, repo, subject, "", comments, subjectContext)
}

// ComputeCategoryScore is ComputeScore with the record tagged with category
// before it is saved.
func (p *Pipeline) ComputeCategoryScore(ctx context.Context, repo db.ScoreRepository, subject, category string, comments []models.Comment, subjectContext string) (models.ScoreRecord, error) {
	return p.compute(ctx, repo, subject, category, comments, subjectContext)
}

// ScoreSubject collects comments from every collector, fetches subject
// context and computes the score. A failing collector is logged and
// skipped; the run only fails at collection when all of them fail.
func (p *Pipeline) ScoreSubject(ctx context.Context, repo db.ScoreRepository, subject, category string, limit int) (models.ScoreRecord, error) {
	comments, err := p.Collect(ctx, subject, category, limit)
	if err != nil {
		p.metrics.Run(metrics.RunCollectError)
		return models.ScoreRecord{}, &RunError{Subject: subject, Stage: StageCollect, Err: err}
	}

	subjectContext := ""
	if p.contexts != nil {
		subjectContext, err = p.contexts.GetContext(ctx, subject)
		if err != nil {
			slog.Warn("[Pipeline] Continuing without subject context",
				slog.String("subject", subject),
				slog.String("error", err.Error()))
			subjectContext = ""
		}
	}

	return p.compute(ctx, repo, subject, category, comments, subjectContext)
}

// Collect runs every collector concurrently. limit applies per collector.
func (p *Pipeline) Collect(ctx context.Context, subject, category string, limit int) ([]models.Comment, error) {
	if len(p.collectors) == 0 {
		return nil, errors.New("no collectors configured")
	}

	buffer := utils.NewBatchBuffer[models.Comment]()
	errs := make([]error, len(p.collectors))

	var g errgroup.Group
	for i, c := range p.collectors {
		i, c := i, c
		g.Go(func() error {
			start := time.Now()
			var (
				comments []models.Comment
				err      error
			)
			if cc, ok := c.(collectors.CategoryCollector); ok && category != "" {
				comments, err = cc.FetchCategory(ctx, subject, category, limit)
			} else {
				comments, err = c.Fetch(ctx, subject, limit)
			}
			if err != nil {
				slog.Warn("[Pipeline] Collector failed",
					slog.String("source", string(c.Source())),
					slog.String("subject", subject),
					slog.String("error", err.Error()))
				errs[i] = err
				return nil
			}

			buffer.Add(comments...)
			p.metrics.Collected(string(c.Source()), len(comments))
			slog.Info("[Pipeline] Collected comments",
				slog.String("source", string(c.Source())),
				slog.String("subject", subject),
				slog.Int("count", len(comments)),
				slog.Duration("took", time.Since(start)))
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed == len(p.collectors) {
		return nil, errors.Join(errs...)
	}

	comments := buffer.GetAndClear()
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].Source < comments[j].Source
	})
	return comments, nil
}

func (p *Pipeline) compute(ctx context.Context, repo db.ScoreRepository, subject, category string, comments []models.Comment, subjectContext string) (models.ScoreRecord, error) {
	start := time.Now()
	batch := p.prepare(subject, comments)

	judgments, processed, err := p.classify(ctx, subject, batch, subjectContext)
	if err != nil {
		p.metrics.Run(metrics.RunClassifyError)
		slog.Error("[Pipeline] Classification aborted",
			slog.String("subject", subject),
			slog.Int("processed", processed),
			slog.String("error", err.Error()))
		return models.ScoreRecord{}, &RunError{Subject: subject, Stage: StageClassify, Processed: processed, Err: err}
	}

	audit := make([]models.CommentJudgment, 0, len(batch))
	weighted := make([]models.WeightedJudgment, 0, len(batch))
	for i, c := range batch {
		j, ok := judgments[i]
		if !ok {
			continue
		}
		wj, included := p.policy.Weigh(j, c)
		audit = append(audit, models.CommentJudgment{Comment: c, Judgment: j, Weighted: wj, Excluded: !included})
		if !included {
			p.metrics.Comment(string(c.Source), metrics.OutcomeExcluded)
			continue
		}
		weighted = append(weighted, wj)
		p.metrics.Comment(string(c.Source), metrics.OutcomeScored)
	}

	record := p.aggregator.Aggregate(subject, weighted)
	record.Category = category

	if repo != nil {
		if err := repo.Save(ctx, record, audit); err != nil {
			p.metrics.Run(metrics.RunPersistError)
			return models.ScoreRecord{}, &RunError{Subject: subject, Stage: StagePersist, Processed: processed, Err: err}
		}
	}
	p.metrics.Run(metrics.RunSaved)
	p.metrics.Score(subject, record.Score)

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, record); err != nil {
			slog.Warn("[Pipeline] Failed to publish score",
				slog.String("subject", subject),
				slog.String("error", err.Error()))
		}
	}

	slog.Info("[Pipeline] Score computed",
		slog.String("subject", subject),
		slog.Float64("score", record.Score),
		slog.Float64("confidence", record.Confidence),
		slog.Int("sample_size", record.SampleSize),
		slog.Int("collected", len(comments)),
		slog.Duration("took", time.Since(start)))
	return record, nil
}

// prepare drops invalid comments and repeated keys, keeping the first.
func (p *Pipeline) prepare(subject string, comments []models.Comment) []models.Comment {
	seen := make(map[string]struct{}, len(comments))
	out := make([]models.Comment, 0, len(comments))
	for _, c := range comments {
		if err := c.Validate(); err != nil {
			slog.Warn("[Pipeline] Dropping invalid comment",
				slog.String("subject", subject),
				slog.String("error", err.Error()))
			p.metrics.Comment(string(c.Source), metrics.OutcomeInvalid)
			continue
		}
		if _, dup := seen[c.Key()]; dup {
			continue
		}
		seen[c.Key()] = struct{}{}
		out = append(out, c)
	}
	return out
}

// classify runs the classifier with bounded parallelism. Malformed responses
// drop their comment; any other error cancels the remaining calls.
func (p *Pipeline) classify(ctx context.Context, subject string, batch []models.Comment, subjectContext string) (map[int]models.SentimentJudgment, int, error) {
	results := make([]*models.SentimentJudgment, len(batch))
	var processed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, c := range batch {
		i, c := i, c
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			start := time.Now()
			j, err := p.classifier.Classify(gctx, c, subject, subjectContext)
			p.metrics.Classified(time.Since(start))
			if err == nil {
				if j.CommentRef == "" {
					j.CommentRef = c.Key()
				}
				err = j.Validate()
			}

			switch {
			case err == nil:
				results[i] = &j
			case errors.Is(err, models.ErrMalformedResponse):
				slog.Warn("[Pipeline] Dropping comment with malformed judgment",
					slog.String("comment", c.Key()),
					slog.String("error", err.Error()))
				p.metrics.Comment(string(c.Source), metrics.OutcomeMalformed)
			default:
				return err
			}
			processed.Add(1)
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, int(processed.Load()), err
	}

	judgments := make(map[int]models.SentimentJudgment, len(batch))
	for i, j := range results {
		if j != nil {
			judgments[i] = *j
		}
	}
	return judgments, int(processed.Load()), nil
}
