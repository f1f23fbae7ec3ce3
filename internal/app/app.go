package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spacesedan/ariss/config"
	"github.com/spacesedan/ariss/internal/api"
	"github.com/spacesedan/ariss/internal/broadcast"
	"github.com/spacesedan/ariss/internal/clients"
	"github.com/spacesedan/ariss/internal/clients/kafka_client"
	"github.com/spacesedan/ariss/internal/collectors"
	"github.com/spacesedan/ariss/internal/db"
	"github.com/spacesedan/ariss/internal/metrics"
	"github.com/spacesedan/ariss/internal/models"
	"github.com/spacesedan/ariss/internal/pipeline"
	"github.com/spacesedan/ariss/internal/scheduler"
	"github.com/spacesedan/ariss/internal/scoring"
	"github.com/spacesedan/ariss/internal/sentiment"
	"github.com/spacesedan/ariss/internal/subjectcontext"
)

const recomputeJobName = "recompute"

// App owns every long-lived dependency built from a Config.
type App struct {
	Config   config.Config
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Repo     db.ScoreRepository
	Hub      *broadcast.Hub
	Pipeline *pipeline.Pipeline

	closers []func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{Config: cfg, Registry: metrics.NewRegistry()}
	a.Metrics = metrics.New(a.Registry)

	repo, err := newRepository(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.Repo = repo
	a.closers = append(a.closers, func() { _ = repo.Close() })

	classifier, err := newClassifier(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Hub = broadcast.NewHub(a.Metrics, nil)
	a.closers = append(a.closers, a.Hub.Close)
	publishers := broadcast.Multi{a.Hub}
	if cfg.Broadcast.Kafka.Enabled {
		producer, err := kafka_client.NewProducer(kafka_client.KafkaConfig{
			Broker: cfg.Broadcast.Kafka.Broker,
			Topic:  cfg.Broadcast.Kafka.Topic,
		})
		if err != nil {
			slog.Warn("[App] Kafka unavailable, scores will not be published to Kafka",
				slog.String("error", err.Error()))
		} else {
			publishers = append(publishers, broadcast.NewKafka(producer))
			a.closers = append(a.closers, producer.Close)
		}
	}

	a.Pipeline = pipeline.New(pipeline.Deps{
		Classifier:  classifier,
		Policy:      PolicyFromConfig(cfg.Scoring),
		Aggregator:  scoring.NewAggregator(models.AggregationMode(cfg.Scoring.Mode), cfg.Scoring.SizeScale, nil),
		Publisher:   publishers,
		Metrics:     a.Metrics,
		Collectors:  NewCollectors(cfg.Collectors),
		Context:     a.newContextProvider(cfg.Context),
		Concurrency: cfg.Classifier.Concurrency,
	})

	slog.Info("[App] Initialized",
		slog.String("database", cfg.Database.Backend),
		slog.String("classifier", classifier.Name()),
		slog.String("mode", cfg.Scoring.Mode))
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) APIServer() *api.Server {
	return api.NewServer(api.Options{
		Repo:             a.Repo,
		Scorer:           a.Pipeline,
		LiveScores:       a.Hub,
		Metrics:          metrics.Handler(a.Registry),
		DefaultLimit:     a.Config.Collectors.Limit,
		CalculateTimeout: a.Config.Scheduler.Timeout,
	})
}

// Scheduler returns a scheduler recomputing the tracked subjects, or nil
// when scheduling is disabled or nothing is tracked.
func (a *App) Scheduler() (*scheduler.Scheduler, error) {
	sc := a.Config.Scheduler
	if !sc.Enabled || len(sc.Subjects) == 0 {
		return nil, nil
	}

	subjects := make([]scheduler.Subject, 0, len(sc.Subjects))
	for _, s := range sc.Subjects {
		subjects = append(subjects, scheduler.Subject{Name: s.Name, Category: s.Category})
	}

	s := scheduler.New(sc.Location(), sc.Timeout)
	job := scheduler.RecomputeJob(a.Pipeline, a.Repo, subjects, a.Config.Collectors.Limit)
	if err := s.AddJob(recomputeJobName, sc.CronExpression, job); err != nil {
		return nil, err
	}
	return s, nil
}

func newRepository(ctx context.Context, cfg config.DatabaseConfig) (db.ScoreRepository, error) {
	switch cfg.Backend {
	case "postgres":
		pool, err := clients.NewPostgresPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		repo, err := db.NewPostgresRepository(ctx, pool)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "dynamodb":
		client, err := clients.NewDynamoDBClient(ctx, cfg.DynamoDB.Region, cfg.DynamoDB.Endpoint)
		if err != nil {
			return nil, err
		}
		return db.NewDynamoDBRepository(client, db.DynamoDBTables{
			Subjects:    cfg.DynamoDB.SubjectsTable,
			Scores:      cfg.DynamoDB.ScoresTable,
			Judgments:   cfg.DynamoDB.JudgmentsTable,
			JudgmentTTL: time.Duration(cfg.DynamoDB.JudgmentTTLDays) * 24 * time.Hour,
		}), nil
	default:
		repo, err := db.NewSQLiteRepository(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
}

func newClassifier(cfg config.Config) (sentiment.Classifier, error) {
	lexicon := sentiment.NewLexicon()
	if cfg.Classifier.Kind == "lexicon" {
		return lexicon, nil
	}

	llm := sentiment.NewLLM(
		clients.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout),
		sentiment.LLMOptions{
			Model:          cfg.OpenAI.Model,
			Temperature:    cfg.OpenAI.Temperature,
			MaxRetries:     cfg.Classifier.MaxRetries,
			InitialBackoff: cfg.Classifier.InitialBackoff,
		},
	)
	switch cfg.Classifier.Kind {
	case "llm":
		return llm, nil
	case "ensemble":
		return sentiment.NewEnsemble(llm, lexicon, cfg.Classifier.LLMWeight), nil
	default:
		return nil, fmt.Errorf("[App] unknown classifier %q", cfg.Classifier.Kind)
	}
}

// PolicyFromConfig maps scoring settings onto a weighting policy, ignoring
// trust entries for unknown sources.
func PolicyFromConfig(sc config.ScoringConfig) scoring.Policy {
	p := scoring.DefaultPolicy()
	for name, trust := range sc.SourceTrust {
		source, err := models.ParseSource(name)
		if err != nil {
			slog.Warn("[App] Ignoring trust for unknown source", slog.String("source", name))
			continue
		}
		p.SourceTrust[source] = trust
	}
	if sc.EngagementScale > 0 {
		p.EngagementScale = sc.EngagementScale
	}
	if sc.MaxEngagementBoost >= 1 {
		p.MaxEngagementBoost = sc.MaxEngagementBoost
	}
	if sc.BiasFloor > 0 {
		p.BiasFloor = sc.BiasFloor
	}
	if sc.MaxMeaningfulWords > 0 {
		p.MaxMeaningfulWords = sc.MaxMeaningfulWords
	}
	if sc.LengthFloor > 0 {
		p.LengthFloor = sc.LengthFloor
	}
	return p
}

// NewCollectors builds the enabled collectors that have credentials.
func NewCollectors(cfg config.CollectorsConfig) []collectors.Collector {
	var out []collectors.Collector

	if r := cfg.Reddit; r.Enabled {
		if r.ClientID == "" || r.ClientSecret == "" {
			slog.Warn("[App] Reddit collector disabled: missing REDDIT_CLIENT_ID or REDDIT_CLIENT_SECRET")
		} else {
			rc := clients.NewRedditClient(clients.RedditOptions{
				ClientID:          r.ClientID,
				ClientSecret:      r.ClientSecret,
				UserAgent:         r.UserAgent,
				RequestsPerSecond: r.RequestsPerSecond,
			})
			out = append(out, collectors.NewReddit(rc, r.TimeFilter))
		}
	}

	if y := cfg.YouTube; y.Enabled {
		if y.APIKey == "" {
			slog.Warn("[App] YouTube collector disabled: missing YOUTUBE_API_KEY")
		} else {
			out = append(out, collectors.NewYouTube(clients.NewYouTubeClient(y.APIKey, ""), y.MaxVideos))
		}
	}

	if tw := cfg.Twitter; tw.Enabled {
		if tw.BearerToken == "" {
			slog.Warn("[App] Twitter collector disabled: missing TWITTER_BEARER_TOKEN")
		} else {
			out = append(out, collectors.NewTwitter(clients.NewTwitterClient(tw.BearerToken, "")))
		}
	}

	if c := cfg.Custom; c.Enabled && len(c.Pages) > 0 {
		pages := make([]collectors.Page, 0, len(c.Pages))
		for _, p := range c.Pages {
			pages = append(pages, collectors.Page{
				Name:           p.Name,
				URL:            p.URL,
				ItemSelector:   p.ItemSelector,
				TextSelector:   p.TextSelector,
				AuthorSelector: p.AuthorSelector,
			})
		}
		out = append(out, collectors.NewCustom(nil, pages))
	}

	return out
}

func (a *App) newContextProvider(cfg config.ContextConfig) subjectcontext.Provider {
	if cfg.NewsAPIKey == "" {
		slog.Info("[App] No NEWS_API_KEY, subjects are scored without context")
		return nil
	}
	news := subjectcontext.NewNewsProvider(clients.NewNewsAPIClient(cfg.NewsAPIKey, ""))

	var cache subjectcontext.Cache = subjectcontext.NewMemoryCache(nil)
	if cfg.Valkey.Address != "" {
		vc, err := clients.NewValkeyClient(clients.ValkeyOptions{
			Address:  cfg.Valkey.Address,
			Password: cfg.Valkey.Password,
			TLS:      cfg.Valkey.TLS,
		})
		if err != nil {
			slog.Warn("[App] Valkey unavailable, caching context in memory",
				slog.String("error", err.Error()))
		} else {
			cache = vc
			a.closers = append(a.closers, vc.Close)
		}
	}
	return subjectcontext.NewCached(news, cache, cfg.TTL)
}
