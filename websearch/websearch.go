// Package websearch looks up short factual answers on the web.
package websearch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	jsoniter "github.com/json-iterator/go"

	"github.com/becomeliminal/nim-orchestrator/core"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// DefaultEndpoint is DuckDuckGo's instant answer API.
	DefaultEndpoint = "https://api.duckduckgo.com/"

	// FailureText stands in for search results when the provider is unreachable.
	FailureText = "Web search failed."

	// NoResultsText is returned when the provider has nothing relevant.
	NoResultsText = "No relevant results found."

	defaultMaxChars = 4000
)

// Searcher returns plain text results for a query.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// DuckDuckGo implements Searcher on the instant answer API. When the answer
// has no abstract but points at a source page, the page's readable text is
// used instead.
type DuckDuckGo struct {
	endpoint   string
	client     *http.Client
	timeout    time.Duration
	fetchPages bool
	maxChars   int
}

// Option configures DuckDuckGo.
type Option func(*DuckDuckGo)

// WithEndpoint overrides DefaultEndpoint.
func WithEndpoint(endpoint string) Option {
	return func(d *DuckDuckGo) { d.endpoint = endpoint }
}

// WithHTTPClient sets the client used for API and page requests.
func WithHTTPClient(c *http.Client) Option {
	return func(d *DuckDuckGo) { d.client = c }
}

// WithTimeout bounds each Search call, page fetch included.
func WithTimeout(timeout time.Duration) Option {
	return func(d *DuckDuckGo) { d.timeout = timeout }
}

// WithPageFetch enables or disables the readable page fallback (default on).
func WithPageFetch(enabled bool) Option {
	return func(d *DuckDuckGo) { d.fetchPages = enabled }
}

// WithMaxChars truncates page text to n characters.
func WithMaxChars(n int) Option {
	return func(d *DuckDuckGo) { d.maxChars = n }
}

// NewDuckDuckGo creates a DuckDuckGo searcher.
func NewDuckDuckGo(opts ...Option) *DuckDuckGo {
	d := &DuckDuckGo{
		endpoint:   DefaultEndpoint,
		client:     &http.Client{},
		fetchPages: true,
		maxChars:   defaultMaxChars,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type instantAnswer struct {
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	Answer        string `json:"Answer"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

// Search queries the instant answer API. Transport and status failures are
// returned as *core.UpstreamError; an empty answer is NoResultsText.
func (d *DuckDuckGo) Search(ctx context.Context, query string) (string, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")

	body, err := d.get(ctx, d.endpoint+"?"+q.Encode())
	if err != nil {
		log.Printf("[SEARCH] Query %q failed: %v", query, err)
		return "", core.Upstream("search", err)
	}

	var answer instantAnswer
	if err := json.Unmarshal(body, &answer); err != nil {
		return "", core.Upstream("search", fmt.Errorf("decode instant answer: %w", err))
	}

	if text := strings.TrimSpace(answer.AbstractText); text != "" {
		return text, nil
	}
	if text := strings.TrimSpace(answer.Answer); text != "" {
		return text, nil
	}

	if d.fetchPages {
		if page := answer.sourceURL(); page != "" {
			text, err := d.readPage(ctx, page)
			if err != nil {
				log.Printf("[SEARCH] Page fallback for %q failed: %v", query, err)
			} else if text != "" {
				return text, nil
			}
		}
	}
	return NoResultsText, nil
}

func (a *instantAnswer) sourceURL() string {
	if a.AbstractURL != "" {
		return a.AbstractURL
	}
	for _, t := range a.RelatedTopics {
		if t.FirstURL != "" {
			return t.FirstURL
		}
	}
	return ""
}

// readPage downloads rawURL and extracts its readable text.
func (d *DuckDuckGo) readPage(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("unsupported page URL %q", rawURL)
	}

	body, err := d.get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	article, err := readability.FromReader(strings.NewReader(string(body)), parsed)
	if err != nil {
		return "", err
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	if len(text) > d.maxChars {
		text = text[:d.maxChars] + "..."
	}
	return text, nil
}

func (d *DuckDuckGo) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; NimBot/1.0)")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, req.URL.Host)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}
