package scraper

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/gocolly/colly/v2"
)

// Stage labels for request metrics.
const (
	StageLogin   = "login"
	StageLinks   = "links"
	StageListing = "listing"
	StageDetail  = "detail"
)

// Page is a fetched document.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Document parses the page body.
func (p *Page) Document() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	if err != nil {
		return nil, ParseError{What: p.URL, Err: err}
	}
	return doc, nil
}

// ContainsFold reports whether the body contains substr, ignoring case.
func (p *Page) ContainsFold(substr string) bool {
	return strings.Contains(strings.ToLower(string(p.Body)), strings.ToLower(substr))
}

// Resolve turns href into an absolute URL relative to the page.
func (p *Page) Resolve(href string) (string, error) {
	return resolveAgainst(p.URL, href)
}

func resolveAgainst(base, href string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", ParseError{What: "base url " + base, Err: err}
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", ParseError{What: "href " + href, Err: err}
	}
	return baseURL.ResolveReference(ref).String(), nil
}

// Session is the cookie-carrying transport shared by every stage of a run.
// Requests are issued one at a time by the sequential stages; the counters
// are still safe for concurrent use.
type Session struct {
	collector *colly.Collector
	headers   http.Header
	metrics   *Metrics
	logger    *slog.Logger

	requestCount int64
	errorCount   int64

	mu           sync.Mutex
	errorsByType map[string]int
}

// NewSession builds a browser-like session configured from cfg.
func NewSession(cfg *config.Config, metrics *Metrics, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	headers := http.Header{}
	headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	headers.Set("Accept-Language", cfg.AcceptLanguage)
	headers.Set("Upgrade-Insecure-Requests", "1")

	return &Session{
		collector:    collector,
		headers:      headers,
		metrics:      metrics,
		logger:       logger,
		errorsByType: make(map[string]int),
	}
}

// WithTransport swaps the HTTP transport, keeping the cookie jar.
func (s *Session) WithTransport(rt http.RoundTripper) {
	s.collector.WithTransport(rt)
}

// Cookies returns the cookies the session would send to rawURL.
func (s *Session) Cookies(rawURL string) []*http.Cookie {
	return s.collector.Cookies(rawURL)
}

// Get fetches rawURL. Non-2xx responses are returned as NetworkError.
func (s *Session) Get(ctx context.Context, stage, rawURL string) (*Page, error) {
	return s.do(ctx, stage, http.MethodGet, rawURL, nil)
}

// GetWithQuery fetches rawURL with params merged into its query string.
func (s *Session) GetWithQuery(ctx context.Context, stage, rawURL string, params map[string]string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, ParseError{What: "url " + rawURL, Err: err}
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return s.do(ctx, stage, http.MethodGet, u.String(), nil)
}

// PostForm submits form as application/x-www-form-urlencoded.
func (s *Session) PostForm(ctx context.Context, stage, rawURL string, form map[string]string) (*Page, error) {
	return s.do(ctx, stage, http.MethodPost, rawURL, form)
}

func (s *Session) do(ctx context.Context, stage, method, rawURL string, form map[string]string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// A clone shares the backend, so cookies set by any request are visible
	// to the next one while callbacks stay local to this call.
	c := s.collector.Clone()

	var (
		page     *Page
		fetchErr error
	)
	c.OnRequest(func(r *colly.Request) {
		for key := range s.headers {
			r.Headers.Set(key, s.headers.Get(key))
		}
	})
	c.OnResponse(func(r *colly.Response) {
		page = &Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       r.Body,
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = NetworkError{URL: rawURL, StatusCode: status, Err: err}
	})

	current := atomic.AddInt64(&s.requestCount, 1)
	s.metrics.IncRequest(stage)
	s.logger.Debug("request",
		slog.String("stage", stage),
		slog.String("method", method),
		slog.String("url", rawURL),
		slog.Int64("requests", current),
	)

	start := time.Now()
	var err error
	if method == http.MethodPost {
		err = c.Post(rawURL, form)
	} else {
		err = c.Visit(rawURL)
	}
	s.metrics.ObserveDuration(time.Since(start))

	if err != nil && fetchErr == nil {
		fetchErr = NetworkError{URL: rawURL, Err: err}
	}
	if fetchErr == nil && page == nil {
		fetchErr = NetworkError{URL: rawURL, Err: errors.New("no response received")}
	}
	if fetchErr != nil {
		s.recordError(fetchErr)
		return nil, fetchErr
	}
	return page, nil
}

func (s *Session) recordError(err error) {
	atomic.AddInt64(&s.errorCount, 1)
	category := ErrorTypeLabel(err)

	s.mu.Lock()
	s.errorsByType[category]++
	s.mu.Unlock()

	s.metrics.IncError(category)
}

// RequestCount returns the number of requests issued so far.
func (s *Session) RequestCount() int {
	return int(atomic.LoadInt64(&s.requestCount))
}

// ErrorCount returns the number of failed requests so far.
func (s *Session) ErrorCount() int {
	return int(atomic.LoadInt64(&s.errorCount))
}

// ErrorsByType returns a copy of the failure counts by category.
func (s *Session) ErrorsByType() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}
