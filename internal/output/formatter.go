package output

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/microcosm-cc/bluemonday"

	"github.com/matthewjhunter/bytebite"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatHuman Format = "human"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSON, FormatText, FormatHuman:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want json, text or human)", s)
}

type Formatter struct {
	format Format
	out    io.Writer
	err    io.Writer
	strip  *bluemonday.Policy
}

// NewFormatter creates a new output formatter
func NewFormatter(format Format) *Formatter {
	return NewFormatterWithWriters(format, os.Stdout, os.Stderr)
}

// NewFormatterWithWriters creates a formatter with custom output writers for testability
func NewFormatterWithWriters(format Format, out, errW io.Writer) *Formatter {
	return &Formatter{
		format: format,
		out:    out,
		err:    errW,
		strip:  bluemonday.StrictPolicy(),
	}
}

// OutputFeeds outputs the feed catalog
func (f *Formatter) OutputFeeds(feeds []bytebite.Feed) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(feeds)
	case FormatText:
		for _, feed := range feeds {
			fmt.Fprintf(f.out, "id=%d\tcategory=%s\tname=%s\turl=%s\n",
				feed.ID, feed.Category, feed.Name, feed.URL)
		}
		return nil
	case FormatHuman:
		if len(feeds) == 0 {
			fmt.Fprintln(f.out, "No feeds. Add one with: bytebite add \"<category> | <name> | <url>\"")
			return nil
		}
		t := newTable(f.out, "ID", "Category", "Name", "URL")
		for _, feed := range feeds {
			t.add(strconv.FormatInt(feed.ID, 10), feed.Category, feed.Name, feed.URL)
		}
		return t.render()
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputArticles outputs one feed's articles
func (f *Formatter) OutputArticles(articles []bytebite.Article) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(articles)
	case FormatText:
		for _, a := range articles {
			fmt.Fprintf(f.out, "id=%d\tfeed_id=%d\ttitle=%s\tlink=%s\tpublished=%s\n",
				a.ID, a.FeedID, a.Title, a.Link, formatTime(a.PubDate))
		}
		return nil
	case FormatHuman:
		if len(articles) == 0 {
			fmt.Fprintln(f.out, "No articles")
			return nil
		}
		fmt.Fprintf(f.out, "Articles (%d):\n\n", len(articles))
		for _, a := range articles {
			fmt.Fprintf(f.out, "ID: %d\n", a.ID)
			fmt.Fprintf(f.out, "Title: %s\n", a.Title)
			if a.Link != "" {
				fmt.Fprintf(f.out, "Link: %s\n", a.Link)
			}
			fmt.Fprintf(f.out, "Published: %s\n", a.PubDate.Local().Format("2006-01-02 15:04"))
			if s := f.PlainText(a.Summary); s != "" {
				fmt.Fprintf(f.out, "\n%s\n", truncate(s, 300))
			}
			fmt.Fprintln(f.out, "---")
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputSyncResult outputs the result of refreshing one feed
func (f *Formatter) OutputSyncResult(result *bytebite.SyncResult) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(result)
	case FormatText:
		fmt.Fprintf(f.out, "feed_id=%d\tfetched=%d\tadded=%d\tduplicates=%d\tnot_modified=%t\n",
			result.FeedID, result.Fetched, len(result.Added), result.Duplicates, result.NotModified)
		return nil
	case FormatHuman:
		if result.NotModified {
			fmt.Fprintf(f.out, "Feed %d: not modified\n", result.FeedID)
			return nil
		}
		fmt.Fprintf(f.out, "Feed %d: %d new article(s), %d already stored (%s)\n",
			result.FeedID, len(result.Added), result.Duplicates, result.Duration.Round(time.Millisecond))
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

type outcomeJSON struct {
	Feed   bytebite.Feed        `json:"feed"`
	Result *bytebite.SyncResult `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// OutputRefreshOutcomes outputs the per-feed results of a full refresh
func (f *Formatter) OutputRefreshOutcomes(outcomes []bytebite.RefreshOutcome) error {
	switch f.format {
	case FormatJSON:
		out := make([]outcomeJSON, len(outcomes))
		for i, o := range outcomes {
			out[i] = outcomeJSON{Feed: o.Feed, Result: o.Result}
			if o.Err != nil {
				out[i].Error = o.Err.Error()
			}
		}
		return json.NewEncoder(f.out).Encode(out)
	case FormatText:
		for _, o := range outcomes {
			switch {
			case o.Err != nil:
				fmt.Fprintf(f.out, "feed_id=%d\tstatus=error\terror=%s\n", o.Feed.ID, o.Err)
			case o.Result.NotModified:
				fmt.Fprintf(f.out, "feed_id=%d\tstatus=not_modified\n", o.Feed.ID)
			default:
				fmt.Fprintf(f.out, "feed_id=%d\tstatus=ok\tadded=%d\n", o.Feed.ID, len(o.Result.Added))
			}
		}
		return nil
	case FormatHuman:
		if len(outcomes) == 0 {
			fmt.Fprintln(f.out, "No feeds to refresh")
			return nil
		}
		t := newTable(f.out, "Feed", "Status", "New")
		added, failed := 0, 0
		for _, o := range outcomes {
			switch {
			case o.Err != nil:
				failed++
				t.add(o.Feed.Name, "error", "-")
			case o.Result.NotModified:
				t.add(o.Feed.Name, "not modified", "0")
			default:
				added += len(o.Result.Added)
				t.add(o.Feed.Name, "ok", strconv.Itoa(len(o.Result.Added)))
			}
		}
		if err := t.render(); err != nil {
			return err
		}
		fmt.Fprintf(f.out, "\n%d new article(s) from %d feed(s)\n", added, len(outcomes))
		for _, o := range outcomes {
			if o.Err != nil {
				f.Warning("%s: %v", o.Feed.Name, o.Err)
			}
		}
		if failed > 0 {
			fmt.Fprintf(f.out, "%d feed(s) failed\n", failed)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// Success outputs a confirmation line
func (f *Formatter) Success(format string, args ...interface{}) {
	if f.format == FormatJSON {
		return
	}
	color.New(color.FgGreen).Fprintf(f.out, format+"\n", args...)
}

// Error outputs an error message to stderr
func (f *Formatter) Error(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(f.err, format+"\n", args...)
}

// Warning outputs a warning message to stderr
func (f *Formatter) Warning(format string, args ...interface{}) {
	color.New(color.FgYellow).Fprintf(f.err, "Warning: "+format+"\n", args...)
}

// PlainText strips markup from an RSS description and collapses whitespace
func (f *Formatter) PlainText(s string) string {
	s = html.UnescapeString(f.strip.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// truncate truncates a string to maxLen characters
func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
