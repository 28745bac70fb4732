package bytebite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/matthewjhunter/bytebite/internal/archive"
	"github.com/matthewjhunter/bytebite/internal/catalog"
	"github.com/matthewjhunter/bytebite/internal/feeds"
	"github.com/matthewjhunter/bytebite/internal/selection"
	"github.com/matthewjhunter/bytebite/internal/storage"
	"github.com/matthewjhunter/bytebite/internal/worker"
)

// Engine is the public API of the feed reader: the feed catalog, the article
// archive, background syncs and the reader's selection.
type Engine struct {
	backend     storage.Backend
	feedsDoc    *storage.Document[storage.Feed]
	articlesDoc *storage.Document[storage.Article]
	seqDoc      *storage.Document[storage.Sequence]
	catalog     *catalog.Catalog
	archive     *archive.Archive
	syncer      *feeds.Syncer
	supervisor  *worker.Supervisor
	concurrency int
	logger      *slog.Logger

	mu  sync.Mutex // guards sel
	sel *selection.Model
}

// NewEngine opens the configured store and wires the engine. It does not
// create missing documents; call Bootstrap for that.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	defaults := storage.DefaultConfig()
	storeCfg := *defaults
	if cfg.Backend != "" {
		storeCfg.Storage.Backend = cfg.Backend
	}
	if cfg.DataDir != "" {
		storeCfg.Storage.DataDir = cfg.DataDir
	}
	if cfg.FeedsDocument != "" {
		storeCfg.Storage.FeedsDocument = cfg.FeedsDocument
	}
	if cfg.ArticlesDocument != "" {
		storeCfg.Storage.ArticlesDocument = cfg.ArticlesDocument
	}
	if cfg.SequencesDocument != "" {
		storeCfg.Storage.SequencesDocument = cfg.SequencesDocument
	}
	if cfg.SQLitePath != "" {
		storeCfg.Storage.SQLitePath = cfg.SQLitePath
	}
	if cfg.Baseline != "" {
		storeCfg.Sync.Baseline = cfg.Baseline
	}
	if cfg.Timeout > 0 {
		storeCfg.Sync.Timeout = cfg.Timeout
	}
	if cfg.UserAgent != "" {
		storeCfg.Sync.UserAgent = cfg.UserAgent
	}
	if cfg.Concurrency > 0 {
		storeCfg.Sync.Concurrency = cfg.Concurrency
	}
	if cfg.MaxBodyBytes > 0 {
		storeCfg.Sync.MaxBodyBytes = cfg.MaxBodyBytes
	}
	if err := storeCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	mode, err := archive.ParseBaselineMode(storeCfg.Sync.Baseline)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backend, err := storeCfg.OpenBackend()
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	feedsDoc := storage.NewDocument[storage.Feed](storeCfg.Storage.FeedsDocument, backend)
	articlesDoc := storage.NewDocument[storage.Article](storeCfg.Storage.ArticlesDocument, backend)
	seqDoc := storage.NewDocument[storage.Sequence](storeCfg.Storage.SequencesDocument, backend)
	arch := archive.New(articlesDoc, logger)
	fetcher := feeds.NewFetcher(cfg.HTTPClient, storeCfg.Sync.UserAgent, storeCfg.Sync.Timeout, logger)
	fetcher.SetMaxBodySize(storeCfg.Sync.MaxBodyBytes)
	syncer := feeds.NewSyncer(fetcher, arch, mode, logger)

	return &Engine{
		backend:     backend,
		feedsDoc:    feedsDoc,
		articlesDoc: articlesDoc,
		seqDoc:      seqDoc,
		catalog:     catalog.New(feedsDoc, seqDoc, logger),
		archive:     arch,
		syncer:      syncer,
		supervisor:  worker.NewSupervisor(syncer, storeCfg.Sync.Timeout, logger),
		concurrency: storeCfg.Sync.Concurrency,
		logger:      logger,
		sel:         selection.New(),
	}, nil
}

// Bootstrap creates empty feed, article and sequence documents where none
// exist yet. Existing documents are left alone.
func (e *Engine) Bootstrap(ctx context.Context) error {
	created, err := e.feedsDoc.Bootstrap(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap feeds: %w", err)
	}
	if created {
		e.logger.Info("created feeds document", "document", e.feedsDoc.Name())
	}
	created, err = e.articlesDoc.Bootstrap(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap articles: %w", err)
	}
	if created {
		e.logger.Info("created articles document", "document", e.articlesDoc.Name())
	}
	if _, err := e.seqDoc.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap sequences: %w", err)
	}
	return nil
}

// Feeds returns every feed in insertion order.
func (e *Engine) Feeds(ctx context.Context) ([]Feed, error) {
	list, err := e.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	return feedsFromInternal(list), nil
}

// AddFeed parses "<category> | <name> | <url>", stores the feed and starts a
// sync for it. The returned task reports that sync.
func (e *Engine) AddFeed(ctx context.Context, line string) (Feed, *RefreshTask, error) {
	feed, _, err := e.catalog.Add(ctx, line)
	if err != nil {
		return Feed{}, nil, err
	}
	return feedFromInternal(feed), e.dispatch(feed), nil
}

// RemoveSelectedFeed removes the feed under the feed cursor and moves the
// cursor to the previous feed. With no current selection it does nothing.
func (e *Engine) RemoveSelectedFeed(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	index, err := e.sel.Feed()
	if errors.Is(err, selection.ErrNoSelection) {
		return nil
	}
	next, err := e.catalog.Remove(ctx, index)
	if err != nil {
		return err
	}
	e.sel.FeedRemoved(next)
	return nil
}

// RemoveFeed removes the feed with the given id. When it was the selected
// feed the cursor moves as in RemoveSelectedFeed; a cursor past it shifts
// down so it stays on the same feed.
func (e *Engine) RemoveFeed(ctx context.Context, id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, index, err := e.catalog.Find(ctx, id)
	if err != nil {
		return err
	}
	next, err := e.catalog.Remove(ctx, index)
	if err != nil {
		return err
	}
	if cur, err := e.sel.Feed(); err == nil {
		switch {
		case cur == index:
			e.sel.FeedRemoved(next)
		case cur > index:
			e.sel.FeedRemoved(cur - 1)
		}
	}
	return nil
}

// RefreshSelected starts a sync of the feed under the feed cursor.
func (e *Engine) RefreshSelected(ctx context.Context) (*RefreshTask, error) {
	e.mu.Lock()
	index, err := e.sel.Feed()
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	feed, err := e.catalog.Get(ctx, index)
	if err != nil {
		return nil, err
	}
	return e.dispatch(feed), nil
}

// RefreshFeed starts a sync of the feed with the given id.
func (e *Engine) RefreshFeed(ctx context.Context, id int64) (*RefreshTask, error) {
	feed, _, err := e.catalog.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.dispatch(feed), nil
}

// RefreshAll syncs every feed, a bounded number at a time, and waits for all
// of them. Per-feed failures are reported in the outcomes; the error is only
// set when the catalog cannot be read or ctx ends early.
func (e *Engine) RefreshAll(ctx context.Context) ([]RefreshOutcome, error) {
	list, err := e.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	outcomes, err := e.supervisor.RunAll(ctx, list, e.concurrency)
	out := make([]RefreshOutcome, len(outcomes))
	for i, o := range outcomes {
		out[i] = RefreshOutcome{
			Feed:   feedFromInternal(o.Feed),
			Result: syncResultFromInternal(o.Result),
			Err:    o.Err,
		}
	}
	return out, err
}

// ArticlesForFeed returns the feed's articles, newest publication first.
func (e *Engine) ArticlesForFeed(ctx context.Context, feedID int64) ([]Article, error) {
	list, err := e.archive.ListForFeed(ctx, feedID)
	if err != nil {
		return nil, err
	}
	return articlesFromInternal(list), nil
}

// View returns the current feeds, the selected feed's articles and both
// cursors.
func (e *Engine) View(ctx context.Context) (*View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewLocked(ctx)
}

func (e *Engine) viewLocked(ctx context.Context) (*View, error) {
	feedList, err := e.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	v := &View{
		Feeds:        feedsFromInternal(feedList),
		FeedIndex:    -1,
		Articles:     []Article{},
		ArticleIndex: -1,
	}

	fi, err := e.sel.Feed()
	if err != nil || fi >= len(feedList) {
		return v, nil
	}
	v.FeedIndex = fi

	all, err := e.archive.List(ctx)
	if err != nil {
		return nil, err
	}
	v.Articles = articlesFromInternal(archive.ForFeed(all, feedList[fi].ID))
	if ai, err := e.sel.Article(); err == nil {
		v.ArticleIndex = ai
	}
	return v, nil
}

// NextFeed moves the feed cursor forward, wrapping to the first feed.
func (e *Engine) NextFeed(ctx context.Context) error {
	return e.stepFeed(ctx, (*selection.Model).NextFeed)
}

// PrevFeed moves the feed cursor back, wrapping to the last feed.
func (e *Engine) PrevFeed(ctx context.Context) error {
	return e.stepFeed(ctx, (*selection.Model).PrevFeed)
}

// NextArticle moves the article cursor forward within the selected feed.
func (e *Engine) NextArticle(ctx context.Context) error {
	return e.stepArticle(ctx, (*selection.Model).NextArticle)
}

// PrevArticle moves the article cursor back within the selected feed.
func (e *Engine) PrevArticle(ctx context.Context) error {
	return e.stepArticle(ctx, (*selection.Model).PrevArticle)
}

func (e *Engine) stepFeed(ctx context.Context, step func(*selection.Model, int)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	list, err := e.catalog.List(ctx)
	if err != nil {
		return err
	}
	step(e.sel, len(list))
	return nil
}

func (e *Engine) stepArticle(ctx context.Context, step func(*selection.Model, int)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.viewLocked(ctx)
	if err != nil {
		return err
	}
	if v.FeedIndex < 0 {
		return ErrNoSelection
	}
	step(e.sel, len(v.Articles))
	return nil
}

// ImportOPML adds the feeds of an OPML document, skipping known URLs.
func (e *Engine) ImportOPML(ctx context.Context, r io.Reader) (int, error) {
	return e.catalog.ImportOPML(ctx, r)
}

// ExportOPML writes the catalog as OPML.
func (e *Engine) ExportOPML(ctx context.Context, w io.Writer) error {
	return e.catalog.ExportOPML(ctx, w)
}

// Close cancels running syncs, waits briefly for them and releases the store.
func (e *Engine) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.supervisor.Shutdown(ctx); err != nil {
		e.logger.Warn("syncs still running at close", "error", err)
	}
	return e.backend.Close()
}

func (e *Engine) dispatch(feed storage.Feed) *RefreshTask {
	return &RefreshTask{task: e.supervisor.Dispatch(feed)}
}

// RefreshTask is the handle of a background feed sync.
type RefreshTask struct {
	task *worker.Task
}

// FeedID returns the id of the feed being synced.
func (t *RefreshTask) FeedID() int64 { return t.task.Feed.ID }

// Done is closed when the sync has finished.
func (t *RefreshTask) Done() <-chan struct{} { return t.task.Done() }

// Cancel stops the sync.
func (t *RefreshTask) Cancel() { t.task.Cancel() }

// Wait blocks until the sync finishes or ctx is done.
func (t *RefreshTask) Wait(ctx context.Context) (*SyncResult, error) {
	res, err := t.task.Wait(ctx)
	return syncResultFromInternal(res), err
}

// --- internal type conversion helpers ---

func articleFromInternal(a storage.Article) Article {
	return Article{
		ID:        a.ID,
		FeedID:    a.FeedID,
		Title:     a.Title,
		Summary:   a.Summary,
		Link:      a.Link,
		PubDate:   a.PubDate,
		CreatedAt: a.CreatedAt,
	}
}

func articlesFromInternal(articles []storage.Article) []Article {
	out := make([]Article, len(articles))
	for i, a := range articles {
		out[i] = articleFromInternal(a)
	}
	return out
}

func feedFromInternal(f storage.Feed) Feed {
	return Feed{
		ID:        f.ID,
		Category:  f.Category,
		Name:      f.Name,
		URL:       f.URL,
		CreatedAt: f.CreatedAt,
	}
}

func feedsFromInternal(ff []storage.Feed) []Feed {
	out := make([]Feed, len(ff))
	for i, f := range ff {
		out[i] = feedFromInternal(f)
	}
	return out
}

func syncResultFromInternal(r *feeds.SyncResult) *SyncResult {
	if r == nil {
		return nil
	}
	return &SyncResult{
		FeedID:      r.FeedID,
		Fetched:     r.Fetched,
		Added:       articlesFromInternal(r.Added),
		Duplicates:  r.Duplicates,
		NotModified: r.NotModified,
		Duration:    r.Duration,
	}
}
