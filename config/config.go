package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "ARISS_CONFIG"

	defaultTimezone = "UTC"
)

// Config holds every setting the scorer and the server need.
type Config struct {
	LogLevel   string           `yaml:"logLevel"`
	Database   DatabaseConfig   `yaml:"database"`
	Classifier ClassifierConfig `yaml:"classifier"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Collectors CollectorsConfig `yaml:"collectors"`
	Context    ContextConfig    `yaml:"context"`
	Broadcast  BroadcastConfig  `yaml:"broadcast"`
	Server     ServerConfig     `yaml:"server"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
}

type DatabaseConfig struct {
	// Backend is "sqlite", "postgres" or "dynamodb".
	Backend     string         `yaml:"backend"`
	SQLitePath  string         `yaml:"sqlitePath"`
	PostgresDSN string         `yaml:"postgresDsn"`
	DynamoDB    DynamoDBConfig `yaml:"dynamodb"`
}

type DynamoDBConfig struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	SubjectsTable   string `yaml:"subjectsTable"`
	ScoresTable     string `yaml:"scoresTable"`
	JudgmentsTable  string `yaml:"judgmentsTable"`
	JudgmentTTLDays int    `yaml:"judgmentTtlDays"`
}

type ClassifierConfig struct {
	// Kind is "ensemble", "llm" or "lexicon".
	Kind           string        `yaml:"kind"`
	LLMWeight      float64       `yaml:"llmWeight"`
	Concurrency    int           `yaml:"concurrency"`
	MaxRetries     int           `yaml:"maxRetries"`
	InitialBackoff time.Duration `yaml:"initialBackoff"`
}

type OpenAIConfig struct {
	APIKey      string        `yaml:"apiKey"`
	BaseURL     string        `yaml:"baseUrl"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type ScoringConfig struct {
	Mode               string             `yaml:"mode"`
	SourceTrust        map[string]float64 `yaml:"sourceTrust"`
	EngagementScale    float64            `yaml:"engagementScale"`
	MaxEngagementBoost float64            `yaml:"maxEngagementBoost"`
	BiasFloor          float64            `yaml:"biasFloor"`
	MaxMeaningfulWords int                `yaml:"maxMeaningfulWords"`
	LengthFloor        float64            `yaml:"lengthFloor"`
	SizeScale          float64            `yaml:"sizeScale"`
}

type CollectorsConfig struct {
	Limit   int           `yaml:"limit"`
	Reddit  RedditConfig  `yaml:"reddit"`
	YouTube YouTubeConfig `yaml:"youtube"`
	Twitter TwitterConfig `yaml:"twitter"`
	Custom  CustomConfig  `yaml:"custom"`
}

type RedditConfig struct {
	Enabled           bool    `yaml:"enabled"`
	ClientID          string  `yaml:"clientId"`
	ClientSecret      string  `yaml:"clientSecret"`
	UserAgent         string  `yaml:"userAgent"`
	TimeFilter        string  `yaml:"timeFilter"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
}

type YouTubeConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIKey    string `yaml:"apiKey"`
	MaxVideos int    `yaml:"maxVideos"`
}

type TwitterConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BearerToken string `yaml:"bearerToken"`
}

type CustomConfig struct {
	Enabled bool         `yaml:"enabled"`
	Pages   []PageConfig `yaml:"pages"`
}

// PageConfig describes one HTML page to scrape comments from. URL may contain
// {subject}, which is replaced with the query-escaped subject.
type PageConfig struct {
	Name           string `yaml:"name"`
	URL            string `yaml:"url"`
	ItemSelector   string `yaml:"itemSelector"`
	TextSelector   string `yaml:"textSelector"`
	AuthorSelector string `yaml:"authorSelector"`
}

type ContextConfig struct {
	NewsAPIKey string        `yaml:"newsApiKey"`
	TTL        time.Duration `yaml:"ttl"`
	Valkey     ValkeyConfig  `yaml:"valkey"`
}

type ValkeyConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	TLS      bool   `yaml:"tls"`
}

type BroadcastConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Enabled bool   `yaml:"enabled"`
	Broker  string `yaml:"broker"`
	Topic   string `yaml:"topic"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type SchedulerConfig struct {
	Enabled        bool             `yaml:"enabled"`
	CronExpression string           `yaml:"cronExpression"`
	Timezone       string           `yaml:"timezone"`
	Timeout        time.Duration    `yaml:"timeout"`
	Subjects       []TrackedSubject `yaml:"subjects"`
}

type TrackedSubject struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

// Location resolves the scheduler timezone, falling back to UTC.
func (s SchedulerConfig) Location() *time.Location {
	tz := s.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Database: DatabaseConfig{
			Backend:    "sqlite",
			SQLitePath: "ariss.db",
			DynamoDB: DynamoDBConfig{
				Region:          "us-west-2",
				SubjectsTable:   "ArissSubjects",
				ScoresTable:     "ArissScores",
				JudgmentsTable:  "ArissCommentJudgments",
				JudgmentTTLDays: 30,
			},
		},
		Classifier: ClassifierConfig{
			Kind:           "ensemble",
			LLMWeight:      0.7,
			Concurrency:    8,
			MaxRetries:     5,
			InitialBackoff: time.Second,
		},
		OpenAI: OpenAIConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.1,
			Timeout:     60 * time.Second,
		},
		Scoring: ScoringConfig{
			Mode: "weighted_mean",
			SourceTrust: map[string]float64{
				"reddit":  1.0,
				"youtube": 1.0,
				"twitter": 1.0,
				"custom":  1.0,
			},
			EngagementScale:    0.15,
			MaxEngagementBoost: 2.0,
			BiasFloor:          0.05,
			MaxMeaningfulWords: 75,
			LengthFloor:        0.1,
			SizeScale:          50,
		},
		Collectors: CollectorsConfig{
			Limit: 100,
			Reddit: RedditConfig{
				Enabled:           true,
				UserAgent:         "ariss-bot/0.1",
				TimeFilter:        "month",
				RequestsPerSecond: 1,
			},
			YouTube: YouTubeConfig{Enabled: true, MaxVideos: 15},
			Twitter: TwitterConfig{Enabled: true},
		},
		Context: ContextConfig{TTL: 6 * time.Hour},
		Broadcast: BroadcastConfig{
			Kafka: KafkaConfig{Broker: "localhost:29092", Topic: "ariss.scores"},
		},
		Server: ServerConfig{Addr: ":8080"},
		Scheduler: SchedulerConfig{
			CronExpression: "0 */6 * * *",
			Timezone:       defaultTimezone,
			Timeout:        15 * time.Minute,
		},
	}
}

// Load builds the defaults, merges the YAML file at path (or at $ARISS_CONFIG
// when path is empty), applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("[Config] cannot read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("[Config] cannot parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Database.Backend, "ARISS_DB_BACKEND")
	setString(&c.Database.SQLitePath, "ARISS_DB_PATH")
	setString(&c.Database.PostgresDSN, "DATABASE_URL")
	setString(&c.Database.DynamoDB.Endpoint, "AWS_ENDPOINT")
	setString(&c.Database.DynamoDB.Region, "AWS_REGION")
	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&c.OpenAI.Model, "OPENAI_MODEL")
	setString(&c.Collectors.Reddit.ClientID, "REDDIT_CLIENT_ID")
	setString(&c.Collectors.Reddit.ClientSecret, "REDDIT_CLIENT_SECRET")
	setString(&c.Collectors.YouTube.APIKey, "YOUTUBE_API_KEY")
	setString(&c.Collectors.Twitter.BearerToken, "TWITTER_BEARER_TOKEN")
	setString(&c.Context.NewsAPIKey, "NEWS_API_KEY")
	setString(&c.Context.Valkey.Address, "VALKEY_INIT_ADDRESS")
	setString(&c.Context.Valkey.Password, "VALKEY_PASSWORD")
	setString(&c.Broadcast.Kafka.Broker, "KAFKA_BROKER")
	setString(&c.Server.Addr, "ARISS_ADDR")

	if v, ok := os.LookupEnv("VALKEY_TLS"); ok {
		c.Context.Valkey.TLS = v == "true"
	}
	if v, ok := os.LookupEnv("KAFKA_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Broadcast.Kafka.Enabled = b
		}
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func (c Config) Validate() error {
	var errs []error

	switch c.Database.Backend {
	case "sqlite":
		if c.Database.SQLitePath == "" {
			errs = append(errs, errors.New("database.sqlitePath is required for the sqlite backend"))
		}
	case "postgres":
		if c.Database.PostgresDSN == "" {
			errs = append(errs, errors.New("database.postgresDsn (DATABASE_URL) is required for the postgres backend"))
		}
	case "dynamodb":
	default:
		errs = append(errs, fmt.Errorf("database.backend %q must be sqlite, postgres or dynamodb", c.Database.Backend))
	}

	switch c.Classifier.Kind {
	case "ensemble", "llm":
		if c.OpenAI.APIKey == "" {
			errs = append(errs, fmt.Errorf("classifier %q requires OPENAI_API_KEY", c.Classifier.Kind))
		}
	case "lexicon":
	default:
		errs = append(errs, fmt.Errorf("classifier.kind %q must be ensemble, llm or lexicon", c.Classifier.Kind))
	}
	if c.Classifier.LLMWeight < 0 || c.Classifier.LLMWeight > 1 {
		errs = append(errs, fmt.Errorf("classifier.llmWeight %v outside [0, 1]", c.Classifier.LLMWeight))
	}
	if c.Classifier.Concurrency < 1 {
		errs = append(errs, errors.New("classifier.concurrency must be at least 1"))
	}

	if c.Scoring.Mode != "weighted_mean" && c.Scoring.Mode != "classify_count" {
		errs = append(errs, fmt.Errorf("scoring.mode %q must be weighted_mean or classify_count", c.Scoring.Mode))
	}
	for source, trust := range c.Scoring.SourceTrust {
		if trust < 0 {
			errs = append(errs, fmt.Errorf("scoring.sourceTrust[%s] must not be negative", source))
		}
	}
	if c.Scoring.MaxEngagementBoost < 1 {
		errs = append(errs, errors.New("scoring.maxEngagementBoost must be at least 1"))
	}
	if c.Scoring.BiasFloor <= 0 || c.Scoring.BiasFloor > 1 {
		errs = append(errs, errors.New("scoring.biasFloor must be in (0, 1]"))
	}
	if c.Scoring.LengthFloor <= 0 || c.Scoring.LengthFloor > 1 {
		errs = append(errs, errors.New("scoring.lengthFloor must be in (0, 1]"))
	}
	if c.Scoring.MaxMeaningfulWords < 1 {
		errs = append(errs, errors.New("scoring.maxMeaningfulWords must be at least 1"))
	}
	if c.Scoring.SizeScale <= 0 {
		errs = append(errs, errors.New("scoring.sizeScale must be positive"))
	}

	if c.Collectors.Limit < 1 {
		errs = append(errs, errors.New("collectors.limit must be at least 1"))
	}
	for i, p := range c.Collectors.Custom.Pages {
		if p.URL == "" || p.ItemSelector == "" {
			errs = append(errs, fmt.Errorf("collectors.custom.pages[%d] needs url and itemSelector", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("[Config] invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
