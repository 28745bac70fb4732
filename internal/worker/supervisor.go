// Package worker runs feed syncs as supervised background tasks.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/matthewjhunter/bytebite/internal/feeds"
	"github.com/matthewjhunter/bytebite/internal/storage"
)

var (
	// ErrSupervisorClosed is reported by tasks dispatched after Shutdown.
	ErrSupervisorClosed = errors.New("supervisor is shut down")
	// ErrTaskRunning is returned by Result while the task is still running.
	ErrTaskRunning = errors.New("task still running")
)

// Task is the handle of one dispatched sync.
type Task struct {
	Feed    storage.Feed
	Started time.Time

	cancel context.CancelFunc
	done   chan struct{}

	result *feeds.SyncResult
	err    error
	shared bool
}

// Done is closed when the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Cancel asks the task to stop. The sync it runs on is shared with every
// other task for the same feed that overlaps it, and is only cancelled once
// none of them is waiting any more.
func (t *Task) Cancel() { t.cancel() }

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) (*feeds.SyncResult, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome of a finished task, or ErrTaskRunning.
func (t *Task) Result() (*feeds.SyncResult, error) {
	select {
	case <-t.done:
		return t.result, t.err
	default:
		return nil, ErrTaskRunning
	}
}

// Shared reports whether the task's outcome came from a sync it shared with
// another task for the same feed. Only meaningful once the task is done.
func (t *Task) Shared() bool { return t.shared }

// Supervisor owns every background sync. Syncs for the same feed that overlap
// in time are coalesced into one; Shutdown cancels all of them and waits.
type Supervisor struct {
	syncer  Syncer
	timeout time.Duration
	logger  *slog.Logger

	group singleflight.Group

	mu      sync.Mutex // guards closed, flights and seq
	closed  bool
	flights map[int64]*flight
	seq     uint64
	base    context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// flight is one running sync and the tasks waiting on it. Its context is
// detached from any single task, so the sync outlives the task that started
// it while others still wait.
type flight struct {
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewSupervisor creates a supervisor. A positive timeout bounds each task.
func NewSupervisor(syncer Syncer, timeout time.Duration, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	base, stop := context.WithCancel(context.Background())
	return &Supervisor{
		syncer:  syncer,
		timeout: timeout,
		logger:  logger.With("component", "supervisor"),
		flights: make(map[int64]*flight),
		base:    base,
		stop:    stop,
	}
}

// Dispatch starts a sync of feed and returns its handle immediately. While a
// sync of the same feed is running the task joins it instead.
func (s *Supervisor) Dispatch(feed storage.Feed) *Task {
	t := &Task{Feed: feed, Started: time.Now(), done: make(chan struct{})}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		t.cancel = func() {}
		t.err = ErrSupervisorClosed
		close(t.done)
		return t
	}
	s.wg.Add(1)
	f, ok := s.flights[feed.ID]
	if !ok {
		f = s.newFlightLocked(feed.ID)
		s.flights[feed.ID] = f
	}
	f.waiters++
	ch := s.group.DoChan(f.key, func() (any, error) {
		defer s.land(feed.ID, f)
		return s.syncer.Sync(f.ctx, feed)
	})
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(f.ctx)
	t.cancel = cancel

	go func() {
		defer s.wg.Done()
		defer cancel()
		select {
		case r := <-ch:
			res, _ := r.Val.(*feeds.SyncResult)
			t.result, t.err, t.shared = res, r.Err, r.Shared
			close(t.done)
			s.release(feed.ID, f)
		case <-ctx.Done():
			t.err = ctx.Err()
			close(t.done)
			s.release(feed.ID, f)
			<-ch
		}
		if t.err != nil {
			s.logger.Warn("sync failed", "feed_id", feed.ID, "url", feed.URL, "error", t.err)
		}
	}()
	return t
}

func (s *Supervisor) newFlightLocked(feedID int64) *flight {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(s.base, s.timeout)
	} else {
		ctx, cancel = context.WithCancel(s.base)
	}
	s.seq++
	return &flight{
		key:    strconv.FormatInt(feedID, 10) + "#" + strconv.FormatUint(s.seq, 10),
		ctx:    ctx,
		cancel: cancel,
	}
}

// land retires f once its sync has returned, so the next dispatch for the
// feed starts a fresh sync.
func (s *Supervisor) land(feedID int64, f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flights[feedID] == f {
		delete(s.flights, feedID)
	}
}

// release drops one waiter from f. The last one out cancels the sync if it
// is still running.
func (s *Supervisor) release(feedID int64, f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	if s.flights[feedID] == f {
		delete(s.flights, feedID)
	}
	f.cancel()
}

// Outcome is the result of one feed in RunAll.
type Outcome struct {
	Feed   storage.Feed
	Result *feeds.SyncResult
	Err    error
}

// RunAll syncs every feed with at most limit running at once and returns one
// outcome per feed, in input order. A failing feed does not stop the others.
// The returned error is non-nil only when ctx ended before all feeds were
// done.
func (s *Supervisor) RunAll(ctx context.Context, list []storage.Feed, limit int) ([]Outcome, error) {
	outcomes := make([]Outcome, len(list))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, feed := range list {
		outcomes[i].Feed = feed
		if ctx.Err() != nil {
			outcomes[i].Err = ctx.Err()
			continue
		}
		g.Go(func() error {
			task := s.Dispatch(feed)
			res, err := task.Wait(ctx)
			if ctx.Err() != nil {
				task.Cancel()
			}
			outcomes[i].Result, outcomes[i].Err = res, err
			return nil
		})
	}
	g.Wait()
	return outcomes, ctx.Err()
}

// Shutdown stops accepting work, cancels running tasks and waits for them
// until ctx is done.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
