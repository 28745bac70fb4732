package feeds

import "fmt"

// NetworkError reports a fetch that produced no usable response: the
// transport failed, or the source answered with a status other than 200 or
// 304.
type NetworkError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// FeedParseError reports a response body that is not a well-formed RSS
// channel.
type FeedParseError struct {
	URL string
	Err error
}

func (e *FeedParseError) Error() string {
	return fmt.Sprintf("parse feed %s: %v", e.URL, e.Err)
}

func (e *FeedParseError) Unwrap() error { return e.Err }

// DateParseError reports an item whose pubDate could not be read. One bad
// item fails the whole sync.
type DateParseError struct {
	FeedID int64
	Item   string // item title, for locating it in the source
	Value  string
	Err    error
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("feed %d item %q: bad pubDate %q: %v", e.FeedID, e.Item, e.Value, e.Err)
}

func (e *DateParseError) Unwrap() error { return e.Err }
