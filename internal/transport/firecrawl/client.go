// Package firecrawl is a client for the hosted Firecrawl v2 scrape API.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/bookmarkd/internal/domain"
	"github.com/kailas-cloud/bookmarkd/internal/metrics"
)

const (
	// DefaultBaseURL is the hosted API root.
	DefaultBaseURL = "https://api.firecrawl.dev"
	scrapePath     = "/v2/scrape"
	maxErrorBody   = 4 << 10
)

var _ domain.Scraper = (*Client)(nil)

// Config holds client settings.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client implements domain.Scraper over POST /v2/scrape.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// New creates a Firecrawl client.
func New(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type scrapeRequest struct {
	URL     string                `json:"url"`
	Formats []domain.ScrapeFormat `json:"formats"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Markdown string              `json:"markdown"`
		JSON     json.RawMessage     `json:"json"`
		Metadata domain.PageMetadata `json:"metadata"`
	} `json:"data"`
}

// Scrape fetches url through the API. Formats default to markdown.
func (c *Client) Scrape(ctx context.Context, url string, formats []domain.ScrapeFormat) (domain.ScrapeResult, error) {
	if len(formats) == 0 {
		formats = []domain.ScrapeFormat{domain.MarkdownFormat()}
	}

	start := time.Now()
	res, status, err := c.scrape(ctx, url, formats)
	metrics.ScrapeDuration.WithLabelValues("firecrawl", status).Observe(time.Since(start).Seconds())
	if err != nil {
		c.logger.Debug("Scrape failed", zap.String("url", url), zap.String("status", status), zap.Error(err))
		return domain.ScrapeResult{}, err
	}
	return res, nil
}

func (c *Client) scrape(
	ctx context.Context, url string, formats []domain.ScrapeFormat,
) (domain.ScrapeResult, string, error) {
	body, err := json.Marshal(scrapeRequest{URL: url, Formats: formats})
	if err != nil {
		return domain.ScrapeResult{}, "error", &domain.FetchError{URL: url, Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+scrapePath, bytes.NewReader(body))
	if err != nil {
		return domain.ScrapeResult{}, "error", &domain.FetchError{URL: url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.ScrapeResult{}, "transport", &domain.FetchError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	status := strconv.Itoa(resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.ScrapeResult{}, status, &domain.FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		}
	}

	var out scrapeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.ScrapeResult{}, status, &domain.FetchError{URL: url, Err: fmt.Errorf("decode response: %w", err)}
	}
	if !out.Success {
		return domain.ScrapeResult{}, status, &domain.FetchError{URL: url, StatusCode: resp.StatusCode, Body: out.Error}
	}

	return domain.ScrapeResult{
		Markdown: out.Data.Markdown,
		JSON:     out.Data.JSON,
		Metadata: out.Data.Metadata,
	}, status, nil
}
