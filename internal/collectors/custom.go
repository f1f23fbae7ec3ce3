package collectors

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/spacesedan/ariss/internal/clients"
	"github.com/spacesedan/ariss/internal/models"
)

const customMinWords = 3

// Page describes one HTML page to scrape. URL may contain {subject}, replaced
// with the query-escaped subject; pages without it only yield items that
// mention the subject.
type Page struct {
	Name           string
	URL            string
	ItemSelector   string
	TextSelector   string
	AuthorSelector string
}

// Custom scrapes comments from configured HTML pages with CSS selectors.
// Items may carry data-id, data-score and a <time datetime> element.
type Custom struct {
	client *http.Client
	pages  []Page
}

func NewCustom(client *http.Client, pages []Page) *Custom {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Custom{client: client, pages: pages}
}

func (c *Custom) Source() models.Source { return models.SourceCustom }

func (c *Custom) Fetch(ctx context.Context, subject string, limit int) ([]models.Comment, error) {
	out := newBatch(limit)
	var errs []error

	for _, page := range c.pages {
		if out.full() {
			break
		}
		if err := c.scrape(ctx, page, subject, out); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("[CustomCollector] Failed to scrape page",
				slog.String("page", page.Name),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("page %s: %w", page.Name, err))
		}
	}

	if len(out.comments) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out.comments, nil
}

func (c *Custom) scrape(ctx context.Context, page Page, subject string, out *batch) error {
	templated := strings.Contains(page.URL, "{subject}")
	pageURL := strings.ReplaceAll(page.URL, "{subject}", url.QueryEscape(subject))

	doc, err := c.fetchDocument(ctx, pageURL)
	if err != nil {
		return err
	}

	needle := strings.ToLower(subject)
	doc.Find(page.ItemSelector).EachWithBreak(func(i int, item *goquery.Selection) bool {
		if out.full() {
			return false
		}

		textSel := item
		if page.TextSelector != "" {
			textSel = item.Find(page.TextSelector).First()
		}
		text := normalizeSpace(textSel.Text())
		if wordCount(text) < customMinWords {
			return true
		}
		if !templated && !strings.Contains(strings.ToLower(text), needle) {
			return true
		}

		comment := models.Comment{
			Text:       text,
			Source:     models.SourceCustom,
			PlatformID: itemID(page.Name, item, text),
			Community:  page.Name,
		}
		if page.AuthorSelector != "" {
			comment.Author = normalizeSpace(item.Find(page.AuthorSelector).First().Text())
		}
		if raw, ok := item.Attr("data-score"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
				comment.Engagement = max(0, n)
			}
		}
		if raw, ok := item.Find("time").First().Attr("datetime"); ok {
			if ts, err := time.Parse(time.RFC3339, raw); err == nil {
				comment.Timestamp = ts.UTC()
			}
		}

		out.add(comment)
		return true
	})
	return nil
}

func (c *Custom) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", clients.USER_AGENT)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func itemID(pageName string, item *goquery.Selection, text string) string {
	for _, attr := range []string{"data-id", "id"} {
		if v, ok := item.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return pageName + "/" + strings.TrimSpace(v)
		}
	}
	sum := sha256.Sum256([]byte(pageName + "\x00" + text))
	return pageName + "/" + hex.EncodeToString(sum[:8])
}
