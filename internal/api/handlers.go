package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spacesedan/ariss/internal/db"
	"github.com/spacesedan/ariss/internal/models"
	"github.com/spacesedan/ariss/internal/pipeline"
)

const (
	maxSubjectLength  = 200
	defaultHistoryDay = 30
	defaultTrendDays  = 7
	defaultMinChange  = 5.0
	defaultComments   = 50
	maxComments       = 500
)

type scoreResponse struct {
	models.ScoreRecord
	Label string `json:"label"`
}

func newScoreResponse(r models.ScoreRecord) scoreResponse {
	return scoreResponse{ScoreRecord: r, Label: models.Label(r.Score)}
}

type calculateRequest struct {
	Category string `json:"category"`
	Limit    int    `json:"limit"`
}

func (s *Server) handleListSubjects(c echo.Context) error {
	summaries, err := db.Summaries(c.Request().Context(), s.repo)
	if err != nil {
		return s.internalError(c, "list subjects", err)
	}
	return c.JSON(http.StatusOK, summaries)
}

func (s *Server) handleSearchSubjects(c echo.Context) error {
	term := strings.TrimSpace(c.QueryParam("q"))
	if term == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "q is required"})
	}
	summaries, err := db.SearchSubjects(c.Request().Context(), s.repo, term)
	if err != nil {
		return s.internalError(c, "search subjects", err)
	}
	return c.JSON(http.StatusOK, summaries)
}

func (s *Server) handleTrending(c echo.Context) error {
	days, err := intParam(c, "days", defaultTrendDays)
	if err != nil || days <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "days must be a positive integer"})
	}
	minChange := defaultMinChange
	if raw := c.QueryParam("min_change"); raw != "" {
		minChange, err = strconv.ParseFloat(raw, 64)
		if err != nil || minChange < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "min_change must be a non-negative number"})
		}
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	trending, err := db.Trending(c.Request().Context(), s.repo, since, minChange)
	if err != nil {
		return s.internalError(c, "trending subjects", err)
	}
	return c.JSON(http.StatusOK, trending)
}

func (s *Server) handleLatest(c echo.Context) error {
	subject, err := subjectParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	record, err := s.repo.GetLatest(c.Request().Context(), subject)
	if errors.Is(err, models.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "subject not found"})
	}
	if err != nil {
		return s.internalError(c, "latest score", err)
	}
	return c.JSON(http.StatusOK, newScoreResponse(record))
}

func (s *Server) handleHistory(c echo.Context) error {
	subject, err := subjectParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	days, err := intParam(c, "days", defaultHistoryDay)
	if err != nil || days <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "days must be a positive integer"})
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	history, err := s.repo.GetHistory(c.Request().Context(), subject, since)
	if err != nil {
		return s.internalError(c, "score history", err)
	}

	out := make([]scoreResponse, 0, len(history))
	for _, r := range history {
		out = append(out, newScoreResponse(r))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleComments(c echo.Context) error {
	subject, err := subjectParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	limit, err := intParam(c, "limit", defaultComments)
	if err != nil || limit <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
	}

	judgments, err := s.repo.GetCommentJudgments(c.Request().Context(), subject, min(limit, maxComments))
	if errors.Is(err, models.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "subject not found"})
	}
	if err != nil {
		return s.internalError(c, "comment details", err)
	}
	return c.JSON(http.StatusOK, judgments)
}

func (s *Server) handleCalculate(c echo.Context) error {
	subject, err := subjectParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	var req calculateRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
	}
	if req.Limit <= 0 {
		req.Limit = s.defaultLimit
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.calcTimeout)
	defer cancel()

	record, err := s.scorer.ScoreSubject(ctx, s.repo, subject, strings.TrimSpace(req.Category), req.Limit)
	var runErr *pipeline.RunError
	if errors.As(err, &runErr) {
		slog.Error("[API] Calculation failed",
			slog.String("subject", subject),
			slog.String("stage", runErr.Stage),
			slog.Int("processed", runErr.Processed),
			slog.String("error", runErr.Err.Error()))
		return c.JSON(http.StatusBadGateway, map[string]any{
			"error":     runErr.Err.Error(),
			"stage":     runErr.Stage,
			"processed": runErr.Processed,
		})
	}
	if err != nil {
		return s.internalError(c, "calculate", err)
	}
	return c.JSON(http.StatusCreated, newScoreResponse(record))
}

func (s *Server) internalError(c echo.Context, op string, err error) error {
	slog.Error("[API] "+op+" failed", slog.String("error", err.Error()))
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": op + " failed"})
}

// subjectParam unescapes the :subject path segment; echo leaves it escaped
// when the request carries a raw path.
func subjectParam(c echo.Context) (string, error) {
	subject, err := url.PathUnescape(c.Param("subject"))
	if err != nil {
		return "", errors.New("invalid subject")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" || len(subject) > maxSubjectLength {
		return "", errors.New("subject must be between 1 and 200 characters")
	}
	return subject, nil
}

func intParam(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
