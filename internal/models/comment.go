package models

import (
	"fmt"
	"strings"
	"time"
)

type Source string

const (
	SourceReddit  Source = "reddit"
	SourceYouTube Source = "youtube"
	SourceTwitter Source = "twitter"
	SourceCustom  Source = "custom"
)

var Sources = []Source{SourceReddit, SourceYouTube, SourceTwitter, SourceCustom}

func (s Source) Valid() bool {
	switch s {
	case SourceReddit, SourceYouTube, SourceTwitter, SourceCustom:
		return true
	default:
		return false
	}
}

func ParseSource(raw string) (Source, error) {
	s := Source(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown source %q", raw)
	}
	return s, nil
}

// Comment is one scraped unit of discourse. Collectors create it and nothing
// downstream mutates it.
type Comment struct {
	Text       string    `json:"text"`
	Source     Source    `json:"source"`
	PlatformID string    `json:"platform_id"`
	Timestamp  time.Time `json:"timestamp"`
	Author     string    `json:"author,omitempty"`
	Engagement int       `json:"engagement"`
	// Community is the subreddit, video id or page the comment was found on.
	Community string `json:"community,omitempty"`
}

// Key identifies a comment across sources.
func (c Comment) Key() string {
	return string(c.Source) + ":" + c.PlatformID
}

func (c Comment) WordCount() int {
	return len(strings.Fields(c.Text))
}

func (c Comment) Validate() error {
	if strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("%w: empty text (%s)", ErrInvalidComment, c.Key())
	}
	if !c.Source.Valid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidComment, c.Source)
	}
	if c.PlatformID == "" {
		return fmt.Errorf("%w: missing platform id", ErrInvalidComment)
	}
	if c.Engagement < 0 {
		return fmt.Errorf("%w: negative engagement %d (%s)", ErrInvalidComment, c.Engagement, c.Key())
	}
	return nil
}
