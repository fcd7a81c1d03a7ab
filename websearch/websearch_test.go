package websearch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/becomeliminal/nim-orchestrator/core"
	"github.com/becomeliminal/nim-orchestrator/websearch"
)

const articleHTML = `<!DOCTYPE html><html><head><title>Fjords</title></head><body>
<nav><a href="/">Home</a></nav>
<article>
<h1>Norwegian fjords</h1>
<p>The Sognefjord is the longest and deepest fjord in Norway, stretching more than two hundred kilometres inland from the coast. Its walls rise steeply from the water and in places the fjord reaches a depth of over one thousand three hundred metres.</p>
<p>Glaciers carved the fjords during successive ice ages, deepening river valleys far below sea level. When the ice retreated the sea flooded the valleys, leaving the narrow inlets that draw visitors from around the world every summer.</p>
<p>Small villages line the shores, reachable by ferry and by winding mountain roads, and many of them still depend on fruit farming and tourism for their income throughout the year.</p>
</article>
</body></html>`

func newServer(t *testing.T, answer func(base string) string) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			if r.URL.Query().Get("format") != "json" {
				http.Error(w, "bad format", http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/x-javascript")
			w.Write([]byte(answer(srv.URL)))
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(articleHTML))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSearch_Abstract(t *testing.T) {
	srv := newServer(t, func(string) string {
		return `{"AbstractText": "Oslo is the capital of Norway.", "AbstractURL": "https://example.com"}`
	})

	s := websearch.NewDuckDuckGo(websearch.WithEndpoint(srv.URL + "/"))
	got, err := s.Search(context.Background(), "capital of norway")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got != "Oslo is the capital of Norway." {
		t.Errorf("unexpected result %q", got)
	}
}

func TestSearch_NoResults(t *testing.T) {
	srv := newServer(t, func(string) string {
		return `{"AbstractText": "", "RelatedTopics": []}`
	})

	s := websearch.NewDuckDuckGo(websearch.WithEndpoint(srv.URL + "/"))
	got, err := s.Search(context.Background(), "zzzz")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got != websearch.NoResultsText {
		t.Errorf("expected %q, got %q", websearch.NoResultsText, got)
	}
}

func TestSearch_PageFallback(t *testing.T) {
	srv := newServer(t, func(base string) string {
		return `{"AbstractText": "", "RelatedTopics": [{"Text": "Fjords", "FirstURL": "` + base + `/page"}]}`
	})

	s := websearch.NewDuckDuckGo(websearch.WithEndpoint(srv.URL+"/"), websearch.WithMaxChars(120))
	got, err := s.Search(context.Background(), "longest fjord")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !strings.Contains(got, "Sognefjord") {
		t.Errorf("expected page text, got %q", got)
	}
	if len(got) > 123 {
		t.Errorf("expected truncated text, got %d chars", len(got))
	}

	off := websearch.NewDuckDuckGo(websearch.WithEndpoint(srv.URL+"/"), websearch.WithPageFetch(false))
	if got, _ := off.Search(context.Background(), "longest fjord"); got != websearch.NoResultsText {
		t.Errorf("page fetch disabled: got %q", got)
	}
}

func TestSearch_ServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := websearch.NewDuckDuckGo(websearch.WithEndpoint(srv.URL + "/"))
	_, err := s.Search(context.Background(), "anything")
	if !core.IsRetryable(err) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}
