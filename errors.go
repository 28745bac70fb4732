package bytebite

import (
	"context"
	"errors"

	"github.com/matthewjhunter/bytebite/internal/archive"
	"github.com/matthewjhunter/bytebite/internal/catalog"
	"github.com/matthewjhunter/bytebite/internal/feeds"
	"github.com/matthewjhunter/bytebite/internal/selection"
	"github.com/matthewjhunter/bytebite/internal/storage"
	"github.com/matthewjhunter/bytebite/internal/worker"
)

var (
	ErrNoSelection      = selection.ErrNoSelection
	ErrEmptyCatalog     = catalog.ErrEmptyCatalog
	ErrEmptyArchive     = archive.ErrEmptyArchive
	ErrMalformedInput   = catalog.ErrMalformedInput
	ErrFeedNotFound     = catalog.ErrFeedNotFound
	ErrDocumentMissing  = storage.ErrDocumentMissing
	ErrSupervisorClosed = worker.ErrSupervisorClosed
)

type (
	ReadError      = storage.ReadError
	FormatError    = storage.FormatError
	WriteError     = storage.WriteError
	NetworkError   = feeds.NetworkError
	FeedParseError = feeds.FeedParseError
	DateParseError = feeds.DateParseError
)

// IsRecoverable reports whether err leaves the engine's stored state intact
// and the operation can simply be retried later: network failures, malformed
// remote content, bad item dates and cancellation. Storage failures and
// precondition violations are not recoverable.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var (
		netErr   *feeds.NetworkError
		parseErr *feeds.FeedParseError
		dateErr  *feeds.DateParseError
	)
	return errors.As(err, &netErr) || errors.As(err, &parseErr) || errors.As(err, &dateErr)
}
