package bytebite

import (
	"log/slog"
	"net/http"
	"time"
)

// EngineConfig configures the ByteBite engine. Zero values fall back to the
// defaults of storage.DefaultConfig.
type EngineConfig struct {
	Backend           string // "file" or "sqlite"
	DataDir           string // directory holding the JSON documents (file backend)
	FeedsDocument     string
	ArticlesDocument  string
	SequencesDocument string // high-water marks for feed ids
	SQLitePath        string // database file (sqlite backend)

	Baseline     string        // "feed" (per-feed baseline) or "archive"
	Timeout      time.Duration // per-sync bound
	UserAgent    string
	Concurrency  int   // parallel syncs in RefreshAll
	MaxBodyBytes int64 // largest feed response accepted

	HTTPClient *http.Client // optional; overrides Timeout for requests
	Logger     *slog.Logger
}

// Feed is a subscribed source.
type Feed struct {
	ID        int64     `json:"id"`
	Category  string    `json:"category"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// Article is one item captured from a feed.
type Article struct {
	ID        int64     `json:"id"`
	FeedID    int64     `json:"feed_id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Link      string    `json:"link"`
	PubDate   time.Time `json:"pub_date"`
	CreatedAt time.Time `json:"created_at"`
}

// SyncResult summarizes one feed refresh.
type SyncResult struct {
	FeedID      int64         `json:"feed_id"`
	Fetched     int           `json:"fetched"`
	Added       []Article     `json:"added"`
	Duplicates  int           `json:"duplicates"`
	NotModified bool          `json:"not_modified"`
	Duration    time.Duration `json:"duration_ns"`
}

// RefreshOutcome is the result for one feed of RefreshAll.
type RefreshOutcome struct {
	Feed   Feed        `json:"feed"`
	Result *SyncResult `json:"result,omitempty"`
	Err    error       `json:"-"`
}

// View is a snapshot of what the reader sees: every feed, the selected feed's
// articles newest first, and both cursors. A cursor is -1 when unset.
type View struct {
	Feeds        []Feed    `json:"feeds"`
	FeedIndex    int       `json:"feed_index"`
	Articles     []Article `json:"articles"`
	ArticleIndex int       `json:"article_index"`
}

// SelectedFeed returns the feed under the feed cursor, or nil.
func (v *View) SelectedFeed() *Feed {
	if v.FeedIndex < 0 || v.FeedIndex >= len(v.Feeds) {
		return nil
	}
	return &v.Feeds[v.FeedIndex]
}

// SelectedArticle returns the article under the article cursor, or nil.
func (v *View) SelectedArticle() *Article {
	if v.ArticleIndex < 0 || v.ArticleIndex >= len(v.Articles) {
		return nil
	}
	return &v.Articles[v.ArticleIndex]
}
