// Package wiki looks up article summaries from a Wikipedia-style REST API.
package wiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cafe_notifier/internal/domain"
)

// ErrNotFound means the lookup produced no usable summary.
var ErrNotFound = errors.New("article not found")

const ellipsis = "..."

type Config struct {
	BaseURL    string
	MaxExtract int
	Timeout    time.Duration
	UserAgent  string
}

// Summary is a trimmed article summary ready for display.
type Summary struct {
	Title   string
	Extract string
	URL     string
}

type summaryResponse struct {
	Title       string `json:"title"`
	Extract     string `json:"extract"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	maxExtract int
	userAgent  string
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "cafe-notifier/1.0"
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxExtract: cfg.MaxExtract,
		userAgent:  userAgent,
		logger:     logger.With("component", "wiki"),
	}
}

// Summary fetches the summary for query. A non-200 status or a body without an extract
// or desktop page link is reported as ErrNotFound.
func (c *Client) Summary(ctx context.Context, query string) (*Summary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNotFound
	}

	title := strings.ReplaceAll(query, " ", "_")
	endpoint := c.baseURL + "/page/summary/" + url.PathEscape(title)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("summary lookup miss", "query", query, "status", resp.StatusCode)
		return nil, ErrNotFound
	}

	var body summaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if body.Extract == "" || body.ContentURLs.Desktop.Page == "" {
		return nil, ErrNotFound
	}

	name := body.Title
	if name == "" {
		name = query
	}

	return &Summary{
		Title:   name,
		Extract: domain.Truncate(body.Extract, c.maxExtract, ellipsis),
		URL:     body.ContentURLs.Desktop.Page,
	}, nil
}
