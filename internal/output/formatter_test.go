package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/matthewjhunter/bytebite"
)

func init() {
	color.NoColor = true
}

var testFeeds = []bytebite.Feed{
	{ID: 1, Category: "tech", Name: "HN", URL: "http://x/feed"},
	{ID: 2, Category: "news", Name: "Wire", URL: "http://wire/rss"},
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"json", "text", "human"} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("ParseFormat(%q): %v", s, err)
		}
	}
	if _, err := ParseFormat("yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestOutputFeeds_JSON(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatJSON, &out, &errBuf)

	if err := f.OutputFeeds(testFeeds); err != nil {
		t.Fatalf("OutputFeeds failed: %v", err)
	}

	var decoded []bytebite.Feed
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if len(decoded) != 2 || decoded[0].Name != "HN" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestOutputFeeds_Text(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatText, &out, &errBuf)

	if err := f.OutputFeeds(testFeeds); err != nil {
		t.Fatalf("OutputFeeds failed: %v", err)
	}
	want := "id=1\tcategory=tech\tname=HN\turl=http://x/feed\n"
	if !strings.HasPrefix(out.String(), want) {
		t.Errorf("output = %q, want prefix %q", out.String(), want)
	}
}

func TestOutputFeeds_Human(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)

	if err := f.OutputFeeds(testFeeds); err != nil {
		t.Fatalf("OutputFeeds failed: %v", err)
	}
	got := out.String()
	for _, want := range []string{"HN", "http://wire/rss", "tech"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in table:\n%s", want, got)
		}
	}
}

func TestOutputFeeds_HumanEmpty(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)

	if err := f.OutputFeeds(nil); err != nil {
		t.Fatalf("OutputFeeds failed: %v", err)
	}
	if !strings.Contains(out.String(), "No feeds") {
		t.Errorf("expected empty message, got %q", out.String())
	}
}

func TestOutputArticles_HumanStripsMarkup(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)

	articles := []bytebite.Article{{
		ID:      3,
		FeedID:  1,
		Title:   "Launch",
		Link:    "https://example.com/launch",
		Summary: `<p>Rocket <b>launched</b> &amp; landed</p><script>alert(1)</script>`,
		PubDate: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}}
	if err := f.OutputArticles(articles); err != nil {
		t.Fatalf("OutputArticles failed: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "Rocket launched & landed") {
		t.Errorf("summary not converted to plain text:\n%s", got)
	}
	if strings.Contains(got, "<b>") || strings.Contains(got, "alert") {
		t.Errorf("markup leaked into output:\n%s", got)
	}
}

func TestOutputArticles_Text(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatText, &out, &errBuf)

	articles := []bytebite.Article{{ID: 3, FeedID: 1, Title: "T", Link: "L", PubDate: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}}
	if err := f.OutputArticles(articles); err != nil {
		t.Fatalf("OutputArticles failed: %v", err)
	}
	if !strings.Contains(out.String(), "published=2024-05-01T08:00:00Z") {
		t.Errorf("output = %q", out.String())
	}
}

func TestOutputSyncResult(t *testing.T) {
	result := &bytebite.SyncResult{FeedID: 2, Fetched: 3, Added: make([]bytebite.Article, 2), Duplicates: 1}

	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatText, &out, &errBuf)
	if err := f.OutputSyncResult(result); err != nil {
		t.Fatalf("OutputSyncResult failed: %v", err)
	}
	if got := out.String(); got != "feed_id=2\tfetched=3\tadded=2\tduplicates=1\tnot_modified=false\n" {
		t.Errorf("output = %q", got)
	}

	out.Reset()
	f = NewFormatterWithWriters(FormatHuman, &out, &errBuf)
	if err := f.OutputSyncResult(&bytebite.SyncResult{FeedID: 2, NotModified: true}); err != nil {
		t.Fatalf("OutputSyncResult failed: %v", err)
	}
	if !strings.Contains(out.String(), "not modified") {
		t.Errorf("output = %q", out.String())
	}
}

func TestOutputRefreshOutcomes_JSON(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatJSON, &out, &errBuf)

	outcomes := []bytebite.RefreshOutcome{
		{Feed: testFeeds[0], Result: &bytebite.SyncResult{FeedID: 1, NotModified: true}},
		{Feed: testFeeds[1], Err: errors.New("fetch http://wire/rss: unexpected status 500")},
	}
	if err := f.OutputRefreshOutcomes(outcomes); err != nil {
		t.Fatalf("OutputRefreshOutcomes failed: %v", err)
	}

	var decoded []struct {
		Feed   bytebite.Feed `json:"feed"`
		Error  string        `json:"error"`
		Result *struct {
			NotModified bool `json:"not_modified"`
		} `json:"result"`
	}
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(decoded))
	}
	if decoded[0].Result == nil || !decoded[0].Result.NotModified {
		t.Errorf("first outcome = %+v", decoded[0])
	}
	if !strings.Contains(decoded[1].Error, "status 500") {
		t.Errorf("second outcome error = %q", decoded[1].Error)
	}
}

func TestOutputRefreshOutcomes_HumanWarnsOnFailure(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)

	outcomes := []bytebite.RefreshOutcome{
		{Feed: testFeeds[0], Result: &bytebite.SyncResult{FeedID: 1, Added: make([]bytebite.Article, 4)}},
		{Feed: testFeeds[1], Err: errors.New("boom")},
	}
	if err := f.OutputRefreshOutcomes(outcomes); err != nil {
		t.Fatalf("OutputRefreshOutcomes failed: %v", err)
	}
	if !strings.Contains(out.String(), "4 new article(s) from 2 feed(s)") {
		t.Errorf("missing summary:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "1 feed(s) failed") {
		t.Errorf("missing failure count:\n%s", out.String())
	}
	if got := errBuf.String(); got != "Warning: Wire: boom\n" {
		t.Errorf("stderr = %q", got)
	}
}

func TestWarning(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)

	f.Warning("something %s", "happened")

	if got := errBuf.String(); got != "Warning: something happened\n" {
		t.Errorf("Warning output = %q", got)
	}
	if out.Len() != 0 {
		t.Errorf("Warning should not write to stdout, got %q", out.String())
	}
}

func TestError(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)

	f.Error("failed: %d", 42)

	if got := errBuf.String(); got != "failed: 42\n" {
		t.Errorf("Error output = %q", got)
	}
}

func TestSuccessSilentForJSON(t *testing.T) {
	var out, errBuf bytes.Buffer
	NewFormatterWithWriters(FormatJSON, &out, &errBuf).Success("added %d", 1)
	if out.Len() != 0 {
		t.Errorf("Success should not pollute JSON output, got %q", out.String())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"  padded  ", 10, "padded"},
		{"exactly10!", 10, "exactly10!"},
		{"this is longer", 7, "this is..."},
		{"héllo wörld", 5, "héllo..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
