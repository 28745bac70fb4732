package worker

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"github.com/matthewjhunter/bytebite/internal/feeds"
	"github.com/matthewjhunter/bytebite/internal/storage"
)

// Syncer runs one sync for one feed.
type Syncer interface {
	Sync(ctx context.Context, feed storage.Feed) (*feeds.SyncResult, error)
}
