package feeds

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/rss"
)

const (
	// DefaultUserAgent is sent when the fetcher is built without one.
	DefaultUserAgent = "ByteBite/1.0"
	// DefaultMaxBodySize bounds a channel response unless SetMaxBodySize
	// says otherwise.
	DefaultMaxBodySize int64 = 10 << 20
)

// Fetcher issues conditional GETs for RSS channels.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
	logger      *slog.Logger
}

// NewFetcher creates a fetcher. A nil client gets a client with timeout; an
// empty userAgent gets DefaultUserAgent.
func NewFetcher(client *http.Client, userAgent string, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:      client,
		userAgent:   userAgent,
		maxBodySize: DefaultMaxBodySize,
		logger:      logger.With("component", "fetcher"),
	}
}

// SetMaxBodySize sets the largest response body the fetcher reads. Larger
// bodies fail the fetch. Non-positive values are ignored.
func (f *Fetcher) SetMaxBodySize(n int64) {
	if n > 0 {
		f.maxBodySize = n
	}
}

// FetchResult holds the outcome of a conditional channel fetch.
type FetchResult struct {
	Channel     *rss.Feed // nil when NotModified is true
	NotModified bool      // true when the source returned 304
}

// FormatIfModifiedSince renders t the way it is sent in If-Modified-Since.
func FormatIfModifiedSince(t time.Time) string {
	return t.UTC().Format(time.RFC1123Z)
}

// FetchChannel fetches and parses the RSS channel at url. When since is
// non-zero it is sent as If-Modified-Since, and a 304 response skips parsing
// entirely and returns NotModified=true.
func (f *Fetcher) FetchChannel(ctx context.Context, url string, since time.Time) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)
	if !since.IsZero() {
		req.Header.Set("If-Modified-Since", FormatIfModifiedSince(since))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	f.logger.Debug("fetched channel", "url", url, "status", resp.StatusCode)

	if resp.StatusCode == http.StatusNotModified {
		return &FetchResult{NotModified: true}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("response body exceeds %d bytes", f.maxBodySize)}
	}

	if kind := gofeed.DetectFeedType(bytes.NewReader(body)); kind != gofeed.FeedTypeRSS {
		return nil, &FeedParseError{URL: url, Err: errors.New("body is not an RSS channel")}
	}
	var parser rss.Parser
	channel, err := parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &FeedParseError{URL: url, Err: err}
	}
	return &FetchResult{Channel: channel}, nil
}
