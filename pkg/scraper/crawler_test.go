package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/leadscope/pkg/logger"
)

type site struct {
	mu    sync.Mutex
	pages map[string]string
	hits  map[string]int
}

func newSite(pages map[string]string) *site {
	return &site{pages: pages, hits: make(map[string]int)}
}

func (s *site) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	body, ok := s.pages[r.URL.Path]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, body)
}

func (s *site) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func newTestCrawler(opts ...Option) *Crawler {
	opts = append([]Option{WithLogger(logger.Nop()), WithConfig(Config{
		HomepageTimeout: 5 * time.Second,
		PageTimeout:     5 * time.Second,
		MaxPages:        20,
	})}, opts...)
	return NewCrawler(NewHTTPFetcher(nil), opts...)
}

const homepage = `<html><body>
<header><img src="/img/logo.png" alt="logo"><nav><a href="/services">Services</a></nav></header>
<a href="mailto:Info@Cafe.com?subject=hi">Email us</a>
<a href="mailto:errors@sentry.io">noise</a>
<a href="/about">About</a>
<a href="/contact-us/">Contact</a>
<a href="/menu">Menu</a>
<a href="https://www.facebook.com/cafe">Facebook</a>
<a href="https://www.yelp.com/biz/cafe">Yelp</a>
<a href="https://example.org/x.com/page">not twitter</a>
<a href="tel:+15555550100">Call</a>
</body></html>`

func TestCrawler_Crawl(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - homepage restricts internal links to about and contact", func(t *testing.T) {
		s := newSite(map[string]string{
			"/": homepage,
			"/about": `<html><body>
				<a href="mailto:owner@cafe.com">Owner</a>
				<a href="/gallery">Gallery</a>
				<a href="/files/menu.pdf">Menu PDF</a>
				<a href="https://instagram.com/cafe">IG</a>
			</body></html>`,
			"/contact-us/": `<html><body><a href="https://x.com/cafe">X</a></body></html>`,
			"/gallery": `<html><body>
				<header><img src="/img/header.jpg"></header>
				<main><img src="/img/latte.jpg"><img data-src="/img/cake.webp"><img src="data:image/png;base64,AAA"><img src="/img/icon.svg"></main>
				<footer><img src="/img/footer.png"></footer>
				<a href="/never-followed">hidden</a>
			</body></html>`,
			"/never-followed": `<html><body><a href="mailto:hidden@cafe.com">x</a></body></html>`,
			"/menu":           `<html><body><a href="mailto:menu@cafe.com">x</a></body></html>`,
		})
		srv := httptest.NewServer(http.HandlerFunc(s.handler))
		defer srv.Close()

		result, err := newTestCrawler().Crawl(ctx, srv.URL+"/some/deep/page")
		require.NoError(t, err)

		assert.Equal(t, []string{"info@cafe.com", "owner@cafe.com"}, result.Emails)
		assert.Equal(t, srv.URL+"/img/logo.png", result.LogoURL)
		assert.Equal(t, map[string]string{
			"Facebook":    "https://www.facebook.com/cafe",
			"Instagram":   "https://instagram.com/cafe",
			"Twitter (X)": "https://x.com/cafe",
		}, result.SocialMedia)
		assert.Equal(t, map[string]string{"Yelp": "https://www.yelp.com/biz/cafe"}, result.Directories)
		assert.Equal(t, []string{srv.URL + "/img/latte.jpg", srv.URL + "/img/cake.webp"}, result.ServiceImages)
		assert.True(t, result.HasData())

		assert.Zero(t, s.hitCount("/menu"))
		assert.Zero(t, s.hitCount("/services"))
		assert.Zero(t, s.hitCount("/never-followed"))
		assert.Zero(t, s.hitCount("/files/menu.pdf"))
		assert.Zero(t, s.hitCount("/some/deep/page"))
		assert.Equal(t, 1, s.hitCount("/about"))
		assert.Equal(t, 4, result.PagesVisited)
	})

	t.Run("Success - later pages follow every internal link", func(t *testing.T) {
		s := newSite(map[string]string{
			"/":       `<html><body><a href="/about">About</a></body></html>`,
			"/about":  `<html><body><a href="/team#top">Team</a><a href="/team?x=1">Team again</a></body></html>`,
			"/team":   `<html><body><a href="mailto:team@shop.io">Team</a></body></html>`,
			"/broken": ``,
		})
		srv := httptest.NewServer(http.HandlerFunc(s.handler))
		defer srv.Close()

		result, err := newTestCrawler().Crawl(ctx, srv.URL)
		require.NoError(t, err)
		assert.Equal(t, []string{"team@shop.io"}, result.Emails)
		assert.Equal(t, 1, s.hitCount("/team"))
	})

	t.Run("Success - failing inner page is skipped", func(t *testing.T) {
		s := newSite(map[string]string{
			"/":        `<html><body><a href="/about">About</a><a href="/contact">Contact</a></body></html>`,
			"/contact": `<html><body><a href="mailto:hello@shop.io">x</a></body></html>`,
		})
		srv := httptest.NewServer(http.HandlerFunc(s.handler))
		defer srv.Close()

		result, err := newTestCrawler().Crawl(ctx, srv.URL)
		require.NoError(t, err)
		assert.Equal(t, []string{"hello@shop.io"}, result.Emails)
		assert.Equal(t, 2, result.PagesVisited)
	})

	t.Run("Success - nothing found", func(t *testing.T) {
		s := newSite(map[string]string{"/": `<html><body><p>Welcome</p></body></html>`})
		srv := httptest.NewServer(http.HandlerFunc(s.handler))
		defer srv.Close()

		result, err := newTestCrawler().Crawl(ctx, srv.URL)
		require.NoError(t, err)
		assert.False(t, result.HasData())
		assert.Empty(t, result.Emails)
	})

	t.Run("Success - page limit", func(t *testing.T) {
		s := newSite(map[string]string{
			"/":      `<html><body><a href="/about">About</a></body></html>`,
			"/about": `<html><body><a href="/a">a</a><a href="/b">b</a><a href="/c">c</a></body></html>`,
			"/a":     `<html></html>`,
			"/b":     `<html></html>`,
			"/c":     `<html></html>`,
		})
		srv := httptest.NewServer(http.HandlerFunc(s.handler))
		defer srv.Close()

		c := newTestCrawler(WithConfig(Config{HomepageTimeout: time.Second, PageTimeout: time.Second, MaxPages: 3}))
		result, err := c.Crawl(ctx, srv.URL)
		require.NoError(t, err)
		assert.Equal(t, 3, result.PagesVisited)
		assert.Zero(t, s.hitCount("/b"))
	})

	t.Run("Error - homepage failure fails the crawl", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := newTestCrawler().Crawl(ctx, srv.URL)
		assert.Error(t, err)
	})

	t.Run("Error - invalid website", func(t *testing.T) {
		_, err := newTestCrawler().Crawl(ctx, "   ")
		assert.Error(t, err)
	})

	t.Run("Success - verifier drops rejected emails", func(t *testing.T) {
		s := newSite(map[string]string{"/": `<html><body>
			<a href="mailto:good@live.io">a</a><a href="mailto:bad@dead.io">b</a></body></html>`})
		srv := httptest.NewServer(http.HandlerFunc(s.handler))
		defer srv.Close()

		c := newTestCrawler(WithVerifier(verifierFunc(func(email string) bool {
			return strings.HasSuffix(email, "@live.io")
		})))
		result, err := c.Crawl(ctx, srv.URL)
		require.NoError(t, err)
		assert.Equal(t, []string{"good@live.io"}, result.Emails)
	})
}

type verifierFunc func(string) bool

func (f verifierFunc) Verify(_ context.Context, email string) bool { return f(email) }

type failingFetcher struct{}

func (failingFetcher) NewSession(context.Context) (Session, error) {
	return nil, errors.New("browser not installed")
}

// pageFetcher serves canned pages keyed by absolute URL
type pageFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	visited []string
}

func (f *pageFetcher) NewSession(context.Context) (Session, error) { return f, nil }

func (f *pageFetcher) Close() error { return nil }

func (f *pageFetcher) Fetch(_ context.Context, url string, _ time.Duration) (*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visited = append(f.visited, url)
	body, ok := f.pages[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return &Page{URL: url, HTML: body}, nil
}

func TestCrawler_WWWHost(t *testing.T) {
	fetcher := &pageFetcher{pages: map[string]string{
		"https://cafe.example": `<html><body>
<a href="https://www.cafe.example/contact">Contact</a>
<a href="https://notcafe.example/about">Elsewhere</a>
</body></html>`,
		"https://www.cafe.example/contact": `<html><body><a href="mailto:hello@cafe.example">mail</a></body></html>`,
	}}
	c := NewCrawler(fetcher, WithLogger(logger.Nop()))

	result, err := c.Crawl(context.Background(), "cafe.example")
	require.NoError(t, err)

	assert.Equal(t, []string{"hello@cafe.example"}, result.Emails)
	assert.Contains(t, fetcher.visited, "https://www.cafe.example/contact")
	assert.NotContains(t, fetcher.visited, "https://notcafe.example/about")
	assert.Equal(t, 2, result.PagesVisited)
}

func TestCrawler_SessionFailure(t *testing.T) {
	_, err := NewCrawler(failingFetcher{}, WithLogger(logger.Nop())).Crawl(context.Background(), "cafe.example")
	assert.EqualError(t, err, "browser not installed")
}

func TestRootURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.Cafe.com/menu?x=1", "https://www.cafe.com"},
		{"cafe.com/about", "https://cafe.com"},
		{"http://localhost:8080/a", "http://localhost:8080"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			u, err := RootURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.String())
		})
	}

	_, err := RootURL("")
	assert.Error(t, err)
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("hello@shop.io"))
	assert.False(t, ValidEmail("hello@shop"))
	assert.False(t, ValidEmail("bounce@no-reply.shop.io"))
	assert.False(t, ValidEmail("user@example.com"))
	assert.False(t, ValidEmail("abc@wixpress.com"))
}

func TestLoadRules(t *testing.T) {
	t.Run("Success - defaults without a file", func(t *testing.T) {
		rules, err := LoadRules("")
		require.NoError(t, err)
		assert.Equal(t, DefaultRules(), rules)
	})

	t.Run("Success - file extends and renames", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
social_platforms:
  - domain: mastodon.social
    name: Mastodon
  - domain: X.com
    name: X
directories:
  - domain: tripadvisor.com
    name: Tripadvisor
`), 0o600))

		rules, err := LoadRules(path)
		require.NoError(t, err)

		site, ok := match(rules.SocialPlatforms, "https://mastodon.social/@cafe")
		require.True(t, ok)
		assert.Equal(t, "Mastodon", site.Name)

		site, ok = match(rules.SocialPlatforms, "https://x.com/cafe")
		require.True(t, ok)
		assert.Equal(t, "X", site.Name)

		_, ok = match(rules.Directories, "https://www.tripadvisor.com/r")
		assert.True(t, ok)
	})

	t.Run("Error - malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.yaml")
		require.NoError(t, os.WriteFile(path, []byte("social_platforms: [oops"), 0o600))
		_, err := LoadRules(path)
		assert.Error(t, err)
	})
}

func TestMatch(t *testing.T) {
	social := DefaultRules().SocialPlatforms

	site, ok := match(social, "https://m.facebook.com/page")
	require.True(t, ok)
	assert.Equal(t, "Facebook", site.Name)

	_, ok = match(social, "https://netflix.com/x.com")
	assert.False(t, ok)
	_, ok = match(social, "/relative/facebook.com")
	assert.False(t, ok)
}
