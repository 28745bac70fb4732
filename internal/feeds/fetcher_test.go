package feeds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <item>
      <guid>item-1</guid>
      <title>Test Article</title>
      <link>https://example.com/1</link>
      <description>Hello world</description>
      <pubDate>Wed, 01 May 2024 09:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

func newTestFetcher() *Fetcher {
	return NewFetcher(nil, "", 5*time.Second, nil)
}

func TestFetchChannelSendsIfModifiedSince(t *testing.T) {
	since := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-Modified-Since") == "Wed, 01 May 2024 12:00:00 +0000" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		t.Errorf("unexpected If-Modified-Since %q", r.Header.Get("If-Modified-Since"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result, err := newTestFetcher().FetchChannel(context.Background(), srv.URL, since)
	if err != nil {
		t.Fatalf("FetchChannel: %v", err)
	}
	if !result.NotModified {
		t.Error("expected NotModified=true")
	}
	if result.Channel != nil {
		t.Error("expected nil Channel on 304")
	}
}

func TestFetchChannelBaselineInOtherZone(t *testing.T) {
	zone := time.FixedZone("EST", -5*3600)
	since := time.Date(2024, 5, 1, 7, 0, 0, 0, zone)
	if got := FormatIfModifiedSince(since); got != "Wed, 01 May 2024 12:00:00 +0000" {
		t.Errorf("FormatIfModifiedSince = %q", got)
	}
}

func TestFetchChannelWithoutBaseline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ims := r.Header.Get("If-Modified-Since"); ims != "" {
			t.Errorf("expected no If-Modified-Since, got %q", ims)
		}
		if ua := r.Header.Get("User-Agent"); ua != DefaultUserAgent {
			t.Errorf("User-Agent=%q, want %q", ua, DefaultUserAgent)
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, testRSS)
	}))
	defer srv.Close()

	result, err := newTestFetcher().FetchChannel(context.Background(), srv.URL, time.Time{})
	if err != nil {
		t.Fatalf("FetchChannel: %v", err)
	}
	if result.NotModified {
		t.Error("expected NotModified=false for 200")
	}
	if result.Channel == nil {
		t.Fatal("expected parsed channel")
	}
	if result.Channel.Title != "Test Feed" {
		t.Errorf("channel title=%q, want Test Feed", result.Channel.Title)
	}
	if len(result.Channel.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(result.Channel.Items))
	}
	item := result.Channel.Items[0]
	if item.Title != "Test Article" || item.Link != "https://example.com/1" || item.Description != "Hello world" {
		t.Errorf("unexpected item: %+v", item)
	}
	if item.PubDate != "Wed, 01 May 2024 09:00:00 +0000" {
		t.Errorf("pubDate=%q", item.PubDate)
	}
}

func TestFetchChannelCustomUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "tester/2" {
			t.Errorf("User-Agent=%q", ua)
		}
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), "tester/2", 0, nil)
	if _, err := f.FetchChannel(context.Background(), srv.URL, time.Now()); err != nil {
		t.Fatalf("FetchChannel: %v", err)
	}
}

func TestFetchChannelErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestFetcher().FetchChannel(context.Background(), srv.URL, time.Time{})
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if netErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("status=%d, want 500", netErr.StatusCode)
	}
}

func TestFetchChannelUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestFetcher().FetchChannel(context.Background(), url, time.Time{})
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if netErr.StatusCode != 0 {
		t.Errorf("status=%d, want 0 for transport failure", netErr.StatusCode)
	}
}

func TestFetchChannelCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := newTestFetcher().FetchChannel(ctx, srv.URL, time.Time{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
}

func TestFetchChannelMalformedBody(t *testing.T) {
	bodies := map[string]string{
		"not xml": "this is not a feed",
		"atom": `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"><title>Atom</title></feed>`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, body)
			}))
			defer srv.Close()

			_, err := newTestFetcher().FetchChannel(context.Background(), srv.URL, time.Time{})
			var parseErr *FeedParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected FeedParseError, got %v", err)
			}
			if parseErr.URL != srv.URL {
				t.Errorf("error URL=%q", parseErr.URL)
			}
		})
	}
}

func TestFetchChannelBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testRSS)
	}))
	defer srv.Close()

	f := newTestFetcher()
	f.SetMaxBodySize(int64(len(testRSS)))
	if _, err := f.FetchChannel(context.Background(), srv.URL, time.Time{}); err != nil {
		t.Fatalf("body at the limit should be accepted: %v", err)
	}

	f.SetMaxBodySize(int64(len(testRSS)) - 1)
	_, err := f.FetchChannel(context.Background(), srv.URL, time.Time{})
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if !strings.Contains(err.Error(), "exceeds") {
		t.Errorf("error should mention the limit: %v", err)
	}

	f.SetMaxBodySize(0)
	if _, err := f.FetchChannel(context.Background(), srv.URL, time.Time{}); err == nil {
		t.Error("non-positive size should leave the previous limit in place")
	}
}
