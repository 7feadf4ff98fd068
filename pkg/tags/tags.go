// Package tags looks up tag suggestions for prompt autocompletion.
package tags

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukex/comfyphone/pkg/models"
)

const (
	// Limit is the maximum number of suggestions a source returns.
	Limit = 20
	// MinQueryLength is the shortest query a source answers.
	MinQueryLength = 2
)

// Source is a prefix tag lookup ordered by popularity.
type Source interface {
	Search(ctx context.Context, term string) ([]models.TagSuggestion, error)
}

// Response is the body of a tag lookup endpoint.
type Response struct {
	Tags []models.TagSuggestion `json:"tags"`
}

// HTTPSource queries a remote `GET {base}/tags?q=` endpoint.
type HTTPSource struct {
	base   string
	client *http.Client
	logger *slog.Logger
}

// NewHTTPSource creates a source for the endpoint rooted at base.
func NewHTTPSource(base string, client *http.Client, logger *slog.Logger) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	return &HTTPSource{
		base:   strings.TrimRight(base, "/"),
		client: client,
		logger: logger.With("module", "tags_http"),
	}
}

func (s *HTTPSource) Search(ctx context.Context, term string) ([]models.TagSuggestion, error) {
	if len(term) < MinQueryLength {
		return []models.TagSuggestion{}, nil
	}

	endpoint := s.base + "/tags?" + url.Values{"q": {term}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build tag request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tag lookup failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return nil, fmt.Errorf("tag lookup failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload Response

	err = json.NewDecoder(resp.Body).Decode(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tag response: %w", err)
	}

	s.logger.DebugContext(ctx, "Tag lookup", "term", term, "count", len(payload.Tags))

	if payload.Tags == nil {
		return []models.TagSuggestion{}, nil
	}

	return payload.Tags[:min(len(payload.Tags), Limit)], nil
}

// Empty is a source with no tags, used when no tag database is configured.
type Empty struct{}

func (Empty) Search(context.Context, string) ([]models.TagSuggestion, error) {
	return []models.TagSuggestion{}, nil
}
