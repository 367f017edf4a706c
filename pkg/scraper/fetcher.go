package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

	maxPageBytes = 5 << 20
)

// Page is a fetched HTML document
type Page struct {
	// URL is the location after redirects
	URL  string
	HTML string
}

// Session fetches pages one after another, sharing cookies and browser state
type Session interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (*Page, error)
	Close() error
}

// Fetcher opens crawl sessions
type Fetcher interface {
	NewSession(ctx context.Context) (Session, error)
}

// HTTPFetcher fetches raw HTML over plain HTTP without running scripts
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher creates an HTTPFetcher. A nil client uses a default one.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPFetcher{Client: client}
}

// NewSession implements Fetcher
func (f *HTTPFetcher) NewSession(_ context.Context) (Session, error) {
	return &httpSession{client: f.Client}, nil
}

type httpSession struct {
	client *http.Client
}

func (s *httpSession) Fetch(ctx context.Context, target string, timeout time.Duration) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("website %s responded with status %d", target, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, err
	}

	return &Page{URL: resp.Request.URL.String(), HTML: string(bytes.ToValidUTF8(body, nil))}, nil
}

func (s *httpSession) Close() error { return nil }

// BrowserFetcher renders pages in headless Chrome
type BrowserFetcher struct {
	ChromePath string
	Headless   bool
}

// NewBrowserFetcher creates a BrowserFetcher. An empty chromePath lets
// chromedp find the browser.
func NewBrowserFetcher(chromePath string) *BrowserFetcher {
	return &BrowserFetcher{ChromePath: chromePath, Headless: true}
}

// NewSession starts a browser that lives until the session is closed or ctx
// is cancelled
func (f *BrowserFetcher) NewSession(ctx context.Context) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.UserAgent(userAgent),
	)
	if f.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(f.ChromePath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	// Start the browser now so launch failures surface here
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &browserSession{ctx: browserCtx, cancel: func() {
		cancelBrowser()
		cancelAlloc()
	}}, nil
}

type browserSession struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *browserSession) Fetch(ctx context.Context, target string, timeout time.Duration) (*Page, error) {
	tabCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	// Stop when either the job or the session is cancelled
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html, location string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", target, err)
	}
	return &Page{URL: location, HTML: html}, nil
}

func (s *browserSession) Close() error {
	s.cancel()
	return nil
}
