package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spacesedan/ariss/internal/db"
	"github.com/spacesedan/ariss/internal/models"
)

const DefaultTimeout = 15 * time.Minute

// Job represents a scheduled task
type Job func(ctx context.Context) error

// Scheduler runs named jobs on cron schedules. A job that is still running
// when its next tick arrives is skipped.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration

	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

func New(loc *time.Location, timeout time.Duration) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return &Scheduler{cron: c, timeout: timeout, jobs: make(map[string]cron.EntryID)}
}

// AddJob adds a job with a standard five-field cron schedule.
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	entryID, err := s.cron.AddFunc(schedule, func() {
		_ = s.run(context.Background(), name, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.mu.Lock()
	s.jobs[name] = entryID
	s.mu.Unlock()
	slog.Info("[Scheduler] Added job", slog.String("name", name), slog.String("schedule", schedule))
	return nil
}

func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		slog.Info("[Scheduler] Removed job", slog.String("name", name))
	}
}

func (s *Scheduler) Start() {
	slog.Info("[Scheduler] Starting scheduler")
	s.cron.Start()
}

// Stop halts the scheduler; the returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	slog.Info("[Scheduler] Stopping scheduler")
	return s.cron.Stop()
}

// RunNow executes a job immediately with the scheduler's timeout.
func (s *Scheduler) RunNow(ctx context.Context, name string, job Job) error {
	return s.run(ctx, name, job)
}

func (s *Scheduler) run(ctx context.Context, name string, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	slog.Info("[Scheduler] Starting job", slog.String("name", name))
	start := time.Now()

	if err := job(ctx); err != nil {
		slog.Error("[Scheduler] Job failed",
			slog.String("name", name),
			slog.String("error", err.Error()))
		return err
	}
	slog.Info("[Scheduler] Job completed",
		slog.String("name", name),
		slog.Duration("took", time.Since(start)))
	return nil
}

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}

func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, entryID := range s.jobs {
		entry := s.cron.Entry(entryID)
		infos = append(infos, JobInfo{Name: name, NextRun: entry.Next, LastRun: entry.Prev})
	}
	return infos
}

type Scorer interface {
	ScoreSubject(ctx context.Context, repo db.ScoreRepository, subject, category string, limit int) (models.ScoreRecord, error)
}

type Subject struct {
	Name     string
	Category string
}

// RecomputeJob scores every tracked subject in turn. A failing subject does
// not stop the others; the job returns all failures joined.
func RecomputeJob(scorer Scorer, repo db.ScoreRepository, subjects []Subject, limit int) Job {
	return func(ctx context.Context) error {
		var errs []error
		for _, subject := range subjects {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				break
			}
			record, err := scorer.ScoreSubject(ctx, repo, subject.Name, subject.Category, limit)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", subject.Name, err))
				continue
			}
			slog.Info("[Scheduler] Subject rescored",
				slog.String("subject", subject.Name),
				slog.Float64("score", record.Score),
				slog.Int("sample_size", record.SampleSize))
		}
		return errors.Join(errs...)
	}
}
