package cafe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultReferer = "https://cafe.naver.com/"
	maxBodyBytes   = 4 << 20
)

// Config holds settings shared by both fetch strategies.
type Config struct {
	APIBaseURL     string
	UserAgent      string
	Timeout        time.Duration
	RequestSpacing time.Duration
}

// client is the HTTP plumbing shared by the strategies: one http.Client, one limiter.
type client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	logger     *slog.Logger
}

func newClient(cfg Config, logger *slog.Logger) *client {
	limit := rate.Inf
	if cfg.RequestSpacing > 0 {
		limit = rate.Every(cfg.RequestSpacing)
	}
	return &client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// get performs a GET with browser-like headers and returns the body of a 2xx response.
func (c *client) get(ctx context.Context, url, referer, accept string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if referer == "" {
		referer = defaultReferer
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", referer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
