// Package search queries the Tavily web search API for fixes to build
// failures.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"
)

const (
	DefaultEndpoint   = "https://api.tavily.com/search"
	DefaultMaxResults = 3
	DefaultDepth      = "basic"
	DefaultTimeout    = 30 * time.Second
)

// ErrNoAPIKey is returned by NewTavily when no key is configured.
var ErrNoAPIKey = errors.New("TAVILY_API_KEY is not set")

// Hit is a single search result.
type Hit struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Response is the result of one query.
type Response struct {
	Query   string `json:"query"`
	Answer  string `json:"answer,omitempty"`
	Results []Hit  `json:"results"`
}

// Searcher runs web searches.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) (*Response, error)
}

// Tavily is a Searcher backed by the Tavily API.
type Tavily struct {
	apiKey   string
	endpoint string
	depth    string
	client   *http.Client
	logger   *zap.Logger
}

// Option configures a Tavily client.
type Option func(*Tavily)

// WithEndpoint overrides the API URL.
func WithEndpoint(url string) Option { return func(t *Tavily) { t.endpoint = url } }

// WithDepth sets search_depth ("basic" or "advanced").
func WithDepth(depth string) Option { return func(t *Tavily) { t.depth = depth } }

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option { return func(t *Tavily) { t.client.Timeout = d } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(t *Tavily) { t.logger = l } }

// NewTavily returns a client for the given API key.
func NewTavily(apiKey string, opts ...Option) (*Tavily, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = DefaultTimeout
	t := &Tavily{
		apiKey:   apiKey,
		endpoint: DefaultEndpoint,
		depth:    DefaultDepth,
		client:   client,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

type searchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
}

// Search implements Searcher.
func (t *Tavily) Search(ctx context.Context, query string, maxResults int) (*Response, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	body, err := json.Marshal(searchRequest{
		APIKey:        t.apiKey,
		Query:         query,
		MaxResults:    maxResults,
		SearchDepth:   t.depth,
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search %q: %s returned %s", query, t.endpoint, resp.Status)
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if out.Query == "" {
		out.Query = query
	}
	t.logger.Debug("search complete", zap.String("query", query), zap.Int("results", len(out.Results)))
	return &out, nil
}

// SearchMultiple runs each query in order. Failed queries are logged and
// skipped so one bad query does not sink the rest.
func SearchMultiple(ctx context.Context, s Searcher, queries []string, maxResults int, logger *zap.Logger) []Response {
	if logger == nil {
		logger = zap.NewNop()
	}
	var out []Response
	for _, q := range queries {
		if ctx.Err() != nil {
			break
		}
		resp, err := s.Search(ctx, q, maxResults)
		if err != nil {
			logger.Warn("search failed", zap.String("query", q), zap.Error(err))
			continue
		}
		out = append(out, *resp)
	}
	return out
}
