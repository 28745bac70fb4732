// Package archive owns the collection of captured articles: filtered views,
// id allocation and the deduplicating merge that syncs commit through.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/matthewjhunter/bytebite/internal/storage"
)

// ErrEmptyArchive is returned by NextID when the archive holds no articles.
var ErrEmptyArchive = errors.New("article archive is empty")

// BaselineMode selects which articles the conditional-fetch baseline is taken
// over.
type BaselineMode int

const (
	// BaselineFeed uses the newest capture time among the feed's own articles.
	BaselineFeed BaselineMode = iota
	// BaselineArchive uses the newest capture time across every feed.
	BaselineArchive
)

// ParseBaselineMode maps the config spelling ("feed", "archive") to a mode.
func ParseBaselineMode(s string) (BaselineMode, error) {
	switch s {
	case storage.BaselineFeed, "":
		return BaselineFeed, nil
	case storage.BaselineArchive:
		return BaselineArchive, nil
	}
	return 0, fmt.Errorf("unknown baseline mode %q", s)
}

func (m BaselineMode) String() string {
	if m == BaselineArchive {
		return storage.BaselineArchive
	}
	return storage.BaselineFeed
}

// DedupKey identifies an article for deduplication. Two articles with equal
// keys are the same item regardless of id or capture time.
type DedupKey struct {
	FeedID  int64
	Title   string
	Summary string
	Link    string
	pubSec  int64
	pubNsec int
}

// KeyOf returns the dedup key of a.
func KeyOf(a storage.Article) DedupKey {
	return DedupKey{
		FeedID:  a.FeedID,
		Title:   a.Title,
		Summary: a.Summary,
		Link:    a.Link,
		pubSec:  a.PubDate.Unix(),
		pubNsec: a.PubDate.Nanosecond(),
	}
}

// Archive reads and mutates the articles document.
type Archive struct {
	doc    *storage.Document[storage.Article]
	logger *slog.Logger
}

// New creates an archive backed by doc.
func New(doc *storage.Document[storage.Article], logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{doc: doc, logger: logger.With("component", "archive")}
}

// List returns every stored article in storage order.
func (a *Archive) List(ctx context.Context) ([]storage.Article, error) {
	return a.doc.Load(ctx)
}

// ListForFeed returns the feed's articles, newest publication first.
func (a *Archive) ListForFeed(ctx context.Context, feedID int64) ([]storage.Article, error) {
	articles, err := a.doc.Load(ctx)
	if err != nil {
		return nil, err
	}
	return ForFeed(articles, feedID), nil
}

// ForFeed filters articles to feedID and sorts them by publication date,
// newest first. Articles published at the same instant keep their storage
// order.
func ForFeed(articles []storage.Article, feedID int64) []storage.Article {
	out := make([]storage.Article, 0)
	for _, art := range articles {
		if art.FeedID == feedID {
			out = append(out, art)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PubDate.After(out[j].PubDate)
	})
	return out
}

// NextID returns one past the largest article id, or ErrEmptyArchive.
func NextID(articles []storage.Article) (int64, error) {
	if len(articles) == 0 {
		return 0, ErrEmptyArchive
	}
	max := articles[0].ID
	for _, art := range articles[1:] {
		if art.ID > max {
			max = art.ID
		}
	}
	return max + 1, nil
}

// Baseline returns the newest capture time among the articles the mode
// covers, or the zero time when there are none.
func Baseline(articles []storage.Article, feedID int64, mode BaselineMode) time.Time {
	var latest time.Time
	for _, art := range articles {
		if mode == BaselineFeed && art.FeedID != feedID {
			continue
		}
		if art.CreatedAt.After(latest) {
			latest = art.CreatedAt
		}
	}
	return latest
}

// Baseline loads the archive and computes the baseline for feedID.
func (a *Archive) Baseline(ctx context.Context, feedID int64, mode BaselineMode) (time.Time, error) {
	articles, err := a.doc.Load(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return Baseline(articles, feedID, mode), nil
}

// AppendAll extends the archive with articles as given and persists the full
// result. Nothing is written when articles is empty.
func (a *Archive) AppendAll(ctx context.Context, articles []storage.Article) error {
	if len(articles) == 0 {
		return nil
	}
	return a.doc.Update(ctx, func(stored []storage.Article) ([]storage.Article, bool, error) {
		return append(stored, articles...), true, nil
	})
}

// Merge commits candidates that are not already in the archive. Candidates
// are compared by DedupKey against stored articles and against the ones
// queued earlier in the same call. Survivors receive contiguous ids starting
// at one past the current maximum (1 for an empty archive) and are appended
// in one write. The articles actually added are returned; when none are new,
// nothing is written.
func (a *Archive) Merge(ctx context.Context, candidates []storage.Article) ([]storage.Article, error) {
	var added []storage.Article
	err := a.doc.Update(ctx, func(stored []storage.Article) ([]storage.Article, bool, error) {
		added = nil
		next, err := NextID(stored)
		if errors.Is(err, ErrEmptyArchive) {
			next = 1
		}

		seen := make(map[DedupKey]struct{}, len(stored)+len(candidates))
		for _, art := range stored {
			seen[KeyOf(art)] = struct{}{}
		}
		for _, art := range candidates {
			key := KeyOf(art)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			art.ID = next
			next++
			added = append(added, art)
		}
		if len(added) == 0 {
			return stored, false, nil
		}
		return append(stored, added...), true, nil
	})
	if err != nil {
		return nil, err
	}
	if len(added) > 0 {
		a.logger.Debug("merged articles", "added", len(added), "skipped", len(candidates)-len(added))
	}
	return added, nil
}
