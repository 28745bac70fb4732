package feeds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/matthewjhunter/bytebite/internal/archive"
	"github.com/matthewjhunter/bytebite/internal/storage"
)

// namedZones maps the RFC 2822 obsolete zone names to hours east of UTC.
// Any other alphabetic zone carries no offset information and reads as UTC.
var namedZones = map[string]int{
	"UT": 0, "UTC": 0, "GMT": 0, "Z": 0,
	"EST": -5, "EDT": -4,
	"CST": -6, "CDT": -5,
	"MST": -7, "MDT": -6,
	"PST": -8, "PDT": -7,
}

var errEmptyDate = errors.New("missing pubDate")

// ParsePubDate parses an RFC 2822 pubDate into a UTC instant. The weekday and
// seconds are optional and the zone is numeric or named.
func ParsePubDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errEmptyDate
	}
	t, err := mail.ParseDate(value)
	if err != nil {
		return time.Time{}, err
	}
	if zone := trailingZoneName(value); zone != "" {
		hours := namedZones[strings.ToUpper(zone)]
		t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(),
			time.FixedZone(zone, hours*3600))
	}
	return t.UTC(), nil
}

// trailingZoneName returns the zone of value when it is given by name rather
// than as a numeric offset. Comments in parentheses are ignored.
func trailingZoneName(value string) string {
	if i := strings.IndexByte(value, '('); i >= 0 {
		value = value[:i]
	}
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return ""
	}
	zone := fields[len(fields)-1]
	for _, r := range zone {
		if !unicode.IsLetter(r) {
			return ""
		}
	}
	return zone
}

// SyncResult summarizes one feed sync.
type SyncResult struct {
	FeedID      int64
	Fetched     int               // items in the fetched channel
	Added       []storage.Article // articles committed, with their ids
	Duplicates  int               // items already in the archive
	NotModified bool
	Duration    time.Duration
}

// Syncer brings the archive up to date for one feed at a time.
type Syncer struct {
	fetcher *Fetcher
	archive *archive.Archive
	mode    archive.BaselineMode
	logger  *slog.Logger
	now     func() time.Time
}

// NewSyncer creates a syncer committing into arch.
func NewSyncer(fetcher *Fetcher, arch *archive.Archive, mode archive.BaselineMode, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		fetcher: fetcher,
		archive: arch,
		mode:    mode,
		logger:  logger.With("component", "syncer"),
		now:     func() time.Time { return time.Now().UTC().Round(0) },
	}
}

// Sync performs one conditional fetch for feed and merges new items into the
// archive. A 304 answer, or a channel with nothing new, writes nothing. Any
// error leaves the archive as it was.
func (s *Syncer) Sync(ctx context.Context, feed storage.Feed) (*SyncResult, error) {
	start := time.Now()
	logger := s.logger.With("feed_id", feed.ID)
	result := &SyncResult{FeedID: feed.ID}

	since, err := s.archive.Baseline(ctx, feed.ID, s.mode)
	if err != nil {
		return nil, fmt.Errorf("failed to compute baseline: %w", err)
	}

	fetched, err := s.fetcher.FetchChannel(ctx, feed.URL, since)
	if err != nil {
		return nil, err
	}
	if fetched.NotModified {
		result.NotModified = true
		result.Duration = time.Since(start)
		logger.Debug("feed not modified", "since", since)
		return result, nil
	}

	captured := s.now()
	candidates := make([]storage.Article, 0, len(fetched.Channel.Items))
	for _, item := range fetched.Channel.Items {
		if item == nil {
			continue
		}
		pub, err := ParsePubDate(item.PubDate)
		if err != nil {
			return nil, &DateParseError{FeedID: feed.ID, Item: item.Title, Value: item.PubDate, Err: err}
		}
		candidates = append(candidates, storage.Article{
			FeedID:    feed.ID,
			Title:     item.Title,
			Summary:   item.Description,
			Link:      item.Link,
			PubDate:   pub,
			CreatedAt: captured,
		})
	}
	result.Fetched = len(candidates)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	added, err := s.archive.Merge(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to commit articles: %w", err)
	}
	result.Added = added
	result.Duplicates = len(candidates) - len(added)
	result.Duration = time.Since(start)

	logger.Info("feed synced", "fetched", result.Fetched, "added", len(added), "duplicates", result.Duplicates)
	return result, nil
}
