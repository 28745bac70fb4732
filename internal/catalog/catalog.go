// Package catalog owns the collection of subscribed feeds.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/matthewjhunter/bytebite/internal/selection"
	"github.com/matthewjhunter/bytebite/internal/storage"
)

var (
	// ErrEmptyCatalog is returned by MaxID when there are no feeds to take a
	// maximum over.
	ErrEmptyCatalog = errors.New("feed catalog is empty")
	// ErrMalformedInput is returned when a feed line does not have exactly
	// three pipe-separated fields.
	ErrMalformedInput = errors.New("malformed feed line")
	// ErrFeedNotFound is returned when no feed carries the requested id.
	ErrFeedNotFound = errors.New("feed not found")

	errStaleMark = errors.New("feed added since the high-water mark was recorded")
)

// feedSequence names the feeds' entry in the sequences document.
const feedSequence = "feeds"

// Catalog reads and mutates the feeds document. Every mutation rewrites the
// whole document under the document's lock.
//
// Feed ids are never reused. Before a feed is removed the largest id in the
// catalog is recorded in the sequences document, and new ids start above both
// that mark and the ids still present.
type Catalog struct {
	doc    *storage.Document[storage.Feed]
	seq    *storage.Document[storage.Sequence]
	logger *slog.Logger
	now    func() time.Time
}

// New creates a catalog backed by doc, keeping its id high-water mark in seq.
func New(doc *storage.Document[storage.Feed], seq *storage.Document[storage.Sequence], logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		doc:    doc,
		seq:    seq,
		logger: logger.With("component", "catalog"),
		now:    func() time.Time { return time.Now().UTC().Round(0) },
	}
}

// List returns all feeds in insertion order.
func (c *Catalog) List(ctx context.Context) ([]storage.Feed, error) {
	return c.doc.Load(ctx)
}

// Get returns the feed at index.
func (c *Catalog) Get(ctx context.Context, index int) (storage.Feed, error) {
	feeds, err := c.doc.Load(ctx)
	if err != nil {
		return storage.Feed{}, err
	}
	if index < 0 || index >= len(feeds) {
		return storage.Feed{}, fmt.Errorf("feed index %d of %d: %w", index, len(feeds), selection.ErrNoSelection)
	}
	return feeds[index], nil
}

// Find returns the feed with the given id and its index.
func (c *Catalog) Find(ctx context.Context, id int64) (storage.Feed, int, error) {
	feeds, err := c.doc.Load(ctx)
	if err != nil {
		return storage.Feed{}, 0, err
	}
	for i, f := range feeds {
		if f.ID == id {
			return f, i, nil
		}
	}
	return storage.Feed{}, 0, fmt.Errorf("feed %d: %w", id, ErrFeedNotFound)
}

// ParseLine splits "<category> | <name> | <url>" into its trimmed fields.
func ParseLine(line string) (category, name, url string, err error) {
	parts := strings.Split(line, "|")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("%w: want 3 fields separated by '|', got %d", ErrMalformedInput, len(parts))
	}
	category = strings.TrimSpace(parts[0])
	name = strings.TrimSpace(parts[1])
	url = strings.TrimSpace(parts[2])
	if url == "" {
		return "", "", "", fmt.Errorf("%w: empty url", ErrMalformedInput)
	}
	return category, name, url, nil
}

// MaxID returns the largest feed id, or ErrEmptyCatalog.
func MaxID(feeds []storage.Feed) (int64, error) {
	if len(feeds) == 0 {
		return 0, ErrEmptyCatalog
	}
	max := feeds[0].ID
	for _, f := range feeds[1:] {
		if f.ID > max {
			max = f.ID
		}
	}
	return max, nil
}

// NextID returns the id the next added feed receives: one past the larger of
// the maximum id and mark, the highest id handed out to a since removed feed.
// An empty catalog with no mark starts at 1.
func NextID(feeds []storage.Feed, mark int64) int64 {
	max, err := MaxID(feeds)
	if errors.Is(err, ErrEmptyCatalog) || max < mark {
		max = mark
	}
	return max + 1
}

// HighWater returns the recorded feed id high-water mark, or 0 when none has
// been recorded yet.
func (c *Catalog) HighWater(ctx context.Context) (int64, error) {
	seqs, err := c.seq.Load(ctx)
	if errors.Is(err, storage.ErrDocumentMissing) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	for _, s := range seqs {
		if s.Name == feedSequence {
			return s.LastID, nil
		}
	}
	return 0, nil
}

// recordHighWater raises the high-water mark to the largest id currently in
// the catalog and returns the resulting mark.
func (c *Catalog) recordHighWater(ctx context.Context) (int64, error) {
	feeds, err := c.doc.Load(ctx)
	if err != nil {
		return 0, err
	}
	max, err := MaxID(feeds)
	if errors.Is(err, ErrEmptyCatalog) {
		return c.HighWater(ctx)
	}
	if _, err := c.seq.Bootstrap(ctx); err != nil {
		return 0, err
	}

	mark := max
	err = c.seq.Update(ctx, func(seqs []storage.Sequence) ([]storage.Sequence, bool, error) {
		for i := range seqs {
			if seqs[i].Name != feedSequence {
				continue
			}
			if seqs[i].LastID >= max {
				mark = seqs[i].LastID
				return seqs, false, nil
			}
			seqs[i].LastID = max
			return seqs, true, nil
		}
		return append(seqs, storage.Sequence{Name: feedSequence, LastID: max}), true, nil
	})
	if err != nil {
		return 0, err
	}
	return mark, nil
}

// Add parses line, appends the resulting feed and persists the catalog. It
// returns the new feed and its index in the list.
func (c *Catalog) Add(ctx context.Context, line string) (storage.Feed, int, error) {
	category, name, url, err := ParseLine(line)
	if err != nil {
		return storage.Feed{}, 0, err
	}
	return c.AddFeed(ctx, category, name, url)
}

// AddFeed appends a feed built from already separated fields.
func (c *Catalog) AddFeed(ctx context.Context, category, name, url string) (storage.Feed, int, error) {
	var (
		added storage.Feed
		index int
	)
	err := c.doc.Update(ctx, func(feeds []storage.Feed) ([]storage.Feed, bool, error) {
		mark, err := c.HighWater(ctx)
		if err != nil {
			return nil, false, err
		}
		added = storage.Feed{
			ID:        NextID(feeds, mark),
			Category:  category,
			Name:      name,
			URL:       url,
			CreatedAt: c.now(),
		}
		index = len(feeds)
		return append(feeds, added), true, nil
	})
	if err != nil {
		return storage.Feed{}, 0, fmt.Errorf("failed to add feed: %w", err)
	}
	c.logger.Info("feed added", "feed_id", added.ID, "url", added.URL)
	return added, index, nil
}

// Remove deletes the feed at index and returns the index the selection should
// move to: index-1, or 0 when the first feed was removed.
func (c *Catalog) Remove(ctx context.Context, index int) (int, error) {
	var removed storage.Feed
	for {
		mark, err := c.recordHighWater(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to remove feed: %w", err)
		}
		err = c.doc.Update(ctx, func(feeds []storage.Feed) ([]storage.Feed, bool, error) {
			if index < 0 || index >= len(feeds) {
				return nil, false, fmt.Errorf("feed index %d of %d: %w", index, len(feeds), selection.ErrNoSelection)
			}
			if feeds[index].ID > mark {
				return nil, false, errStaleMark
			}
			removed = feeds[index]
			return append(feeds[:index], feeds[index+1:]...), true, nil
		})
		if errors.Is(err, errStaleMark) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to remove feed: %w", err)
		}
		break
	}
	c.logger.Info("feed removed", "feed_id", removed.ID, "url", removed.URL)
	if index > 0 {
		return index - 1, nil
	}
	return 0, nil
}
