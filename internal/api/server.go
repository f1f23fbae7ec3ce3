package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spacesedan/ariss/internal/db"
	"github.com/spacesedan/ariss/internal/models"
)

const (
	defaultLimit            = 100
	defaultCalculateTimeout = 10 * time.Minute
)

// Scorer runs a full collection and score computation for one subject.
type Scorer interface {
	ScoreSubject(ctx context.Context, repo db.ScoreRepository, subject, category string, limit int) (models.ScoreRecord, error)
}

type Options struct {
	Repo             db.ScoreRepository
	Scorer           Scorer
	LiveScores       http.Handler
	Metrics          http.Handler
	DefaultLimit     int
	CalculateTimeout time.Duration
}

// Server is the JSON API behind the dashboard.
type Server struct {
	echo         *echo.Echo
	repo         db.ScoreRepository
	scorer       Scorer
	defaultLimit int
	calcTimeout  time.Duration
	startTime    time.Time
}

func NewServer(opts Options) *Server {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = defaultLimit
	}
	if opts.CalculateTimeout <= 0 {
		opts.CalculateTimeout = defaultCalculateTimeout
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				slog.Warn("[API] Request failed", attrs...)
				return nil
			}
			slog.Debug("[API] Request", attrs...)
			return nil
		},
	}))

	s := &Server{
		echo:         e,
		repo:         opts.Repo,
		scorer:       opts.Scorer,
		defaultLimit: opts.DefaultLimit,
		calcTimeout:  opts.CalculateTimeout,
		startTime:    time.Now(),
	}
	s.registerRoutes(opts.LiveScores, opts.Metrics)
	return s
}

func (s *Server) registerRoutes(liveScores, metricsHandler http.Handler) {
	s.echo.GET("/health/live", s.handleLiveness)
	if metricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(metricsHandler))
	}
	if liveScores != nil {
		s.echo.GET("/ws", echo.WrapHandler(liveScores))
	}

	api := s.echo.Group("/api")
	api.GET("/subjects", s.handleListSubjects)
	api.GET("/subjects/search", s.handleSearchSubjects)
	api.GET("/subjects/trending", s.handleTrending)
	api.GET("/subjects/:subject/latest", s.handleLatest)
	api.GET("/subjects/:subject/history", s.handleHistory)
	api.GET("/subjects/:subject/comments", s.handleComments)
	if s.scorer != nil {
		api.POST("/subjects/:subject/calculate", s.handleCalculate)
	}
}

func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) Start(addr string) error {
	slog.Info("[API] Starting server", slog.String("addr", addr))
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Seconds(),
	})
}
