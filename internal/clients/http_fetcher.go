package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// StatusError is returned for responses that are not retried.
type StatusError struct {
	Component  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("[%s] unexpected status %d: %s", e.Component, e.StatusCode, e.Body)
}

// Fetcher performs rate limited GET requests that decode JSON, retrying 429
// and 5xx responses with exponential backoff.
type Fetcher struct {
	Component      string
	Client         *http.Client
	Limiter        *rate.Limiter
	MaxRetries     int
	InitialBackoff time.Duration
}

func NewFetcher(component string, client *http.Client, requestsPerSecond float64) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Fetcher{
		Component:      component,
		Client:         client,
		Limiter:        rate.NewLimiter(limit, 1),
		MaxRetries:     MAX_RETRIES,
		InitialBackoff: INITIAL_BACKOFF,
	}
}

func (f *Fetcher) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	backoff := f.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= f.MaxRetries; attempt++ {
		if err := f.Limiter.Wait(ctx); err != nil {
			return err
		}

		retry, err := f.do(ctx, url, header, out)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err

		if attempt == f.MaxRetries {
			break
		}
		slog.Warn(fmt.Sprintf("[%s] Request failed, retrying...", f.Component),
			slog.String("error", err.Error()),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > MAX_BACKOFF {
			backoff = MAX_BACKOFF
		}
	}

	slog.Error(fmt.Sprintf("[%s] Failed after max retries", f.Component))
	return fmt.Errorf("[%s] failed after %d attempts: %w", f.Component, f.MaxRetries, lastErr)
}

func (f *Fetcher) do(ctx context.Context, url string, header http.Header, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", USER_AGENT)
	}

	res, err := f.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return false, fmt.Errorf("[%s] Failed to parse JSON response: %w", f.Component, err)
		}
		return false, nil
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError:
		_, _ = io.Copy(io.Discard, res.Body)
		return true, &StatusError{Component: f.Component, StatusCode: res.StatusCode}
	default:
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return false, &StatusError{Component: f.Component, StatusCode: res.StatusCode, Body: string(body)}
	}
}
