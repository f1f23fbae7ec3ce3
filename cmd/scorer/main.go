package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spacesedan/ariss/config"
	"github.com/spacesedan/ariss/internal/app"
	"github.com/spacesedan/ariss/internal/db"
	"github.com/spacesedan/ariss/internal/logging"
	"github.com/spacesedan/ariss/internal/models"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file (defaults to $ARISS_CONFIG)")
		subject    = flag.String("subject", "", "subject to score")
		category   = flag.String("category", "", "optional category used to pick communities")
		limit      = flag.Int("limit", 0, "maximum comments to collect (defaults to the configured limit)")
		input      = flag.String("input", "", "score comments from a JSON file instead of collecting them")
		dryRun     = flag.Bool("dry-run", false, "compute the score without saving it")
		asJSON     = flag.Bool("json", false, "print the score record as JSON")
	)
	flag.Parse()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	config.LoadEnv(env)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logging.InitLogger(cfg.LogLevel)

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "usage: scorer -subject <name> [-category <name>] [-limit n] [-input comments.json] [-dry-run] [-json]")
		os.Exit(2)
	}
	if *limit <= 0 {
		*limit = cfg.Collectors.Limit
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("[Main] Failed to initialize", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a.Close()

	var repo db.ScoreRepository = a.Repo
	if *dryRun {
		repo = nil
	}

	var record models.ScoreRecord
	if *input != "" {
		comments, err := readComments(*input)
		if err != nil {
			slog.Error("[Main] Failed to read comments", slog.String("file", *input), slog.String("error", err.Error()))
			os.Exit(1)
		}
		record, err = a.Pipeline.ComputeCategoryScore(ctx, repo, *subject, *category, comments, "")
	} else {
		record, err = a.Pipeline.ScoreSubject(ctx, repo, *subject, *category, *limit)
	}
	if err != nil {
		slog.Error("[Main] Scoring failed", slog.String("subject", *subject), slog.String("error", err.Error()))
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(record)
		return
	}
	printRecord(os.Stdout, record)
}

func readComments(path string) ([]models.Comment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var comments []models.Comment
	if err := json.NewDecoder(f).Decode(&comments); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return comments, nil
}

func printRecord(w io.Writer, r models.ScoreRecord) {
	fmt.Fprintf(w, "Subject:      %s\n", r.Subject)
	if r.Category != "" {
		fmt.Fprintf(w, "Category:     %s\n", r.Category)
	}
	fmt.Fprintf(w, "Score:        %.1f (%s)\n", r.Score, models.Label(r.Score))
	fmt.Fprintf(w, "Confidence:   %.1f%%\n", r.Confidence)
	fmt.Fprintf(w, "Sample size:  %d\n", r.SampleSize)
	fmt.Fprintf(w, "Distribution: %d positive / %d neutral / %d negative\n",
		r.Distribution.Positive, r.Distribution.Neutral, r.Distribution.Negative)
	fmt.Fprintf(w, "Mean bias:    %.1f\n", r.MeanBias)
	if r.SampleSize > 0 {
		fmt.Fprintf(w, "Range:        %.1f to %.1f (std dev %.1f)\n", r.MinScore, r.MaxScore, r.StdDev)
	}

	sources := make([]string, 0, len(r.SourceBreakdown))
	for s := range r.SourceBreakdown {
		sources = append(sources, string(s))
	}
	sort.Strings(sources)
	for _, s := range sources {
		fmt.Fprintf(w, "  %-10s %d\n", s, r.SourceBreakdown[models.Source(s)])
	}
}
