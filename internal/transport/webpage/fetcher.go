// Package webpage is a self-hosted content fetcher: it downloads a page and
// extracts metadata and markdown locally instead of calling a scraping API.
package webpage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/kailas-cloud/bookmarkd/internal/domain"
	"github.com/kailas-cloud/bookmarkd/internal/metrics"
)

const maxRedirects = 5

var (
	errTooLarge    = errors.New("content too large")
	errPrivateHost = errors.New("connection to private address is not allowed")
	errTooManyHops = errors.New("too many redirects")
	errNotHTML     = errors.New("content is not html")
)

var _ domain.Scraper = (*Fetcher)(nil)

// Config holds fetcher settings.
type Config struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBytes     int64
	AllowPrivate bool
	Logger       *zap.Logger
}

// Fetcher implements domain.Scraper with plain HTTP GET and local extraction.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	extractor *Extractor
	logger    *zap.Logger
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
	if !cfg.AllowPrivate {
		transport.DialContext = safeDialContext(dialer)
	}

	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errTooManyHops
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
		maxBytes:  maxBytes,
		extractor: NewExtractor(),
		logger:    logger,
	}
}

// Scrape downloads url and answers the requested formats from the page itself.
// The json format yields {"title","description"} built from page metadata.
func (f *Fetcher) Scrape(ctx context.Context, url string, formats []domain.ScrapeFormat) (domain.ScrapeResult, error) {
	start := time.Now()
	res, status, err := f.scrape(ctx, url, formats)
	metrics.ScrapeDuration.WithLabelValues("local", status).Observe(time.Since(start).Seconds())
	if err != nil {
		f.logger.Debug("Local scrape failed", zap.String("url", url), zap.String("status", status), zap.Error(err))
		return domain.ScrapeResult{}, err
	}
	return res, nil
}

func (f *Fetcher) scrape(
	ctx context.Context, url string, formats []domain.ScrapeFormat,
) (domain.ScrapeResult, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return domain.ScrapeResult{}, "error", &domain.FetchError{URL: url, Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.ScrapeResult{}, "transport", &domain.FetchError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	status := strconv.Itoa(resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return domain.ScrapeResult{}, status, &domain.FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") {
		return domain.ScrapeResult{}, status, &domain.FetchError{URL: url, StatusCode: resp.StatusCode, Err: errNotHTML}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return domain.ScrapeResult{}, status, &domain.FetchError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > f.maxBytes {
		return domain.ScrapeResult{}, status, &domain.FetchError{URL: url, StatusCode: resp.StatusCode, Err: errTooLarge}
	}

	utf8Body, err := charset.NewReader(strings.NewReader(string(body)), contentType)
	if err != nil {
		return domain.ScrapeResult{}, status, &domain.FetchError{URL: url, Err: fmt.Errorf("decode charset: %w", err)}
	}

	page, err := f.extractor.Extract(utf8Body)
	if err != nil {
		return domain.ScrapeResult{}, status, &domain.FetchError{URL: url, Err: err}
	}
	page.Metadata.SourceURL = url
	page.Metadata.StatusCode = resp.StatusCode

	out := domain.ScrapeResult{Metadata: page.Metadata}
	if len(formats) == 0 {
		formats = []domain.ScrapeFormat{domain.MarkdownFormat()}
	}
	for _, format := range formats {
		switch format.Kind {
		case "json":
			out.JSON = page.Summary()
		default:
			out.Markdown = page.Markdown
		}
	}
	return out, status, nil
}

// safeDialContext resolves the host and refuses loopback, private and link-local targets,
// which also covers redirects since every hop dials through it.
func safeDialContext(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid address: %w", err)
		}
		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("dns lookup: %w", err)
		}
		for _, ip := range ips {
			if isPrivate(ip.IP) {
				return nil, fmt.Errorf("%w: %s", errPrivateHost, ip.IP)
			}
		}

		var lastErr error
		for _, ip := range ips {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip.IP.String(), port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		if lastErr == nil {
			lastErr = fmt.Errorf("no addresses for %s", host)
		}
		return nil, lastErr
	}
}

func isPrivate(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}
