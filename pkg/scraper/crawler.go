// Package scraper crawls a business website for contact emails, social
// profiles, directory listings, a logo and service images.
package scraper

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jordanlanch/leadscope/pkg/logger"
	"github.com/jordanlanch/leadscope/pkg/metrics"
)

var (
	emailPattern     = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	mailtoPrefix     = regexp.MustCompile(`(?i)^mailto:`)
	galleryPattern   = regexp.MustCompile(`(?i)gallery|media`)
	imagePattern     = regexp.MustCompile(`(?i)\.(png|webp|jpeg|jpg)$`)
	homeLinkPattern  = regexp.MustCompile(`(?i)/(about|contact|about-us|contact-us)/?$`)
	fileLinkPattern  = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|webp|gif|svg|pdf|docx?|xlsx?|zip)$`)
	skippedSchemes   = []string{"mailto:", "tel:", "javascript:", "sms:"}
	noiseEmailMarker = []string{"@sentry", "@wixpress", "@no-reply", "@example", "@test", "@noreply"}
)

// Result is everything found on a website
type Result struct {
	Website       string            `json:"website"`
	Emails        []string          `json:"emails"`
	SocialMedia   map[string]string `json:"social_media"`
	Directories   map[string]string `json:"directories"`
	LogoURL       string            `json:"logo_url"`
	ServiceImages []string          `json:"service_images"`
	PagesVisited  int               `json:"pages_visited"`
}

// HasData reports whether the crawl found anything worth keeping
func (r *Result) HasData() bool {
	return len(r.Emails) > 0 || len(r.SocialMedia) > 0 || len(r.Directories) > 0 ||
		r.LogoURL != "" || len(r.ServiceImages) > 0
}

// Config bounds a crawl
type Config struct {
	HomepageTimeout time.Duration
	PageTimeout     time.Duration
	MaxPages        int
}

// DefaultConfig returns the standard crawl bounds
func DefaultConfig() Config {
	return Config{
		HomepageTimeout: 60 * time.Second,
		PageTimeout:     40 * time.Second,
		MaxPages:        50,
	}
}

// Crawler walks a website starting from its root
type Crawler struct {
	fetcher  Fetcher
	rules    Rules
	verifier EmailVerifier
	cfg      Config
	logger   logger.Logger
	metrics  *metrics.Metrics
}

// Option configures a Crawler
type Option func(*Crawler)

// WithRules replaces the default link rules
func WithRules(r Rules) Option {
	return func(c *Crawler) { c.rules = r }
}

// WithVerifier drops emails the verifier rejects
func WithVerifier(v EmailVerifier) Option {
	return func(c *Crawler) { c.verifier = v }
}

// WithConfig sets crawl bounds
func WithConfig(cfg Config) Option {
	return func(c *Crawler) { c.cfg = cfg }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(c *Crawler) { c.logger = l }
}

// WithMetrics records visited pages
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Crawler) { c.metrics = m }
}

// NewCrawler creates a Crawler
func NewCrawler(fetcher Fetcher, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher: fetcher,
		rules:   DefaultRules(),
		cfg:     DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.OrDefault(c.logger).With("component", "crawler")
	return c
}

// RootURL reduces a website to scheme and host. A missing scheme means https.
func RootURL(website string) (*url.URL, error) {
	website = strings.TrimSpace(website)
	if website == "" {
		return nil, fmt.Errorf("empty website")
	}
	if !strings.HasPrefix(strings.ToLower(website), "http") {
		website = "https://" + strings.TrimLeft(website, "/")
	}

	u, err := url.Parse(website)
	if err != nil {
		return nil, fmt.Errorf("invalid website %q: %w", website, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid website %q: missing host", website)
	}
	return &url.URL{Scheme: strings.ToLower(u.Scheme), Host: strings.ToLower(u.Host)}, nil
}

// crawl holds the state of one website walk
type crawl struct {
	root    *url.URL
	rootStr string

	visited map[string]bool
	queued  map[string]bool
	queue   []string

	emails      []string
	seenEmails  map[string]bool
	social      map[string]string
	directories map[string]string
	logo        string
	images      []string
	seenImages  map[string]bool
}

// Crawl visits the homepage of website and the internal pages it leads to.
// A failing homepage fails the crawl; other failing pages are skipped.
func (c *Crawler) Crawl(ctx context.Context, website string) (*Result, error) {
	root, err := RootURL(website)
	if err != nil {
		return nil, err
	}

	session, err := c.fetcher.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	st := &crawl{
		root:        root,
		rootStr:     root.String(),
		visited:     map[string]bool{root.String(): true, root.String() + "/": true},
		queued:      make(map[string]bool),
		seenEmails:  make(map[string]bool),
		social:      make(map[string]string),
		directories: make(map[string]string),
		seenImages:  make(map[string]bool),
	}

	c.logger.Info("visiting homepage", "url", st.rootStr)
	home, err := session.Fetch(ctx, st.rootStr, c.cfg.HomepageTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to load homepage %s: %w", st.rootStr, err)
	}
	pages := 1
	c.metrics.RecordPageVisit()
	c.extract(st, home, st.rootStr)

	for i := 0; i < len(st.queue); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.cfg.MaxPages > 0 && pages >= c.cfg.MaxPages {
			c.logger.Warn("page limit reached", "url", st.rootStr, "pages", pages)
			break
		}

		link := st.queue[i]
		if st.visited[link] || fileLinkPattern.MatchString(link) {
			continue
		}
		st.visited[link] = true

		page, err := session.Fetch(ctx, link, c.cfg.PageTimeout)
		if err != nil {
			c.logger.Warn("failed to visit page", "url", link, "error", err)
			continue
		}
		pages++
		c.metrics.RecordPageVisit()
		c.extract(st, page, link)
	}

	emails := st.emails
	if c.verifier != nil {
		emails = make([]string, 0, len(st.emails))
		for _, e := range st.emails {
			if c.verifier.Verify(ctx, e) {
				emails = append(emails, e)
			} else {
				c.logger.Debug("dropping email without mail exchanger", "email", e)
			}
		}
	}

	result := &Result{
		Website:       website,
		Emails:        emails,
		SocialMedia:   st.social,
		Directories:   st.directories,
		LogoURL:       st.logo,
		ServiceImages: st.images,
		PagesVisited:  pages,
	}
	if result.Emails == nil {
		result.Emails = []string{}
	}
	if result.ServiceImages == nil {
		result.ServiceImages = []string{}
	}

	c.logger.Info("crawl complete", "url", st.rootStr, "pages", pages,
		"emails", len(result.Emails), "social", len(result.SocialMedia), "images", len(result.ServiceImages))
	return result, nil
}

func (c *Crawler) extract(st *crawl, page *Page, requested string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		c.logger.Warn("failed to parse page", "url", requested, "error", err)
		return
	}

	st.collectEmails(doc)
	if st.logo == "" {
		st.collectLogo(doc)
	}

	if galleryPattern.MatchString(requested) && st.collectGallery(doc) > 0 {
		return
	}

	current := page.URL
	if current == "" {
		current = requested
	}
	isHome := current == st.rootStr || current == st.rootStr+"/"
	st.collectLinks(doc, isHome, c.rules)
}

func (st *crawl) collectEmails(doc *goquery.Document) {
	doc.Find(`a[href^="mailto:"]`).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		raw := mailtoPrefix.ReplaceAllString(href, "")
		raw = strings.TrimSpace(strings.SplitN(raw, "?", 2)[0])
		if !ValidEmail(raw) {
			return
		}
		email := strings.ToLower(raw)
		if !st.seenEmails[email] {
			st.seenEmails[email] = true
			st.emails = append(st.emails, email)
		}
	})
}

func (st *crawl) collectLogo(doc *goquery.Document) {
	img := doc.Find("header img").First()
	if img.Length() == 0 {
		return
	}

	src := img.AttrOr("src", "")
	if src == "" {
		src = img.AttrOr("data-src", "")
	}
	if src == "" || strings.HasPrefix(src, "data:") {
		return
	}
	if abs := st.resolve(src); abs != "" {
		st.logo = abs
	}
}

// collectGallery records images outside page chrome and returns how many
// this page contributed
func (st *crawl) collectGallery(doc *goquery.Document) int {
	content := doc.Find("body").Clone()
	content.Find("header, footer, nav, aside").Remove()

	found := 0
	content.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src := sel.AttrOr("src", "")
		if src == "" {
			src = sel.AttrOr("data-src", "")
		}
		if src == "" || strings.HasPrefix(src, "data:") || !imagePattern.MatchString(src) {
			return
		}
		abs := st.resolve(src)
		if abs == "" {
			return
		}
		found++
		if !st.seenImages[abs] {
			st.seenImages[abs] = true
			st.images = append(st.images, abs)
		}
	})
	return found
}

func (st *crawl) collectLinks(doc *goquery.Document, isHome bool, rules Rules) {
	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}

		if site, ok := match(rules.SocialPlatforms, href); ok {
			st.social[site.Name] = href
		}
		if site, ok := match(rules.Directories, href); ok {
			st.directories[site.Name] = href
		}

		link := strings.TrimSpace(href)
		lower := strings.ToLower(link)
		for _, scheme := range skippedSchemes {
			if strings.HasPrefix(lower, scheme) {
				return
			}
		}
		link = strings.SplitN(link, "?", 2)[0]
		link = strings.SplitN(link, "#", 2)[0]
		if link == "" {
			return
		}

		if !strings.HasPrefix(link, "/") && !strings.HasPrefix(link, st.rootStr) &&
			!strings.Contains(lower, bareHost(st.root.Hostname())) {
			return
		}

		abs := st.resolve(link)
		if abs == "" || !st.sameHost(abs) {
			return
		}

		absLower := strings.ToLower(abs)
		allowed := homeLinkPattern.MatchString(absLower) || absLower == st.rootStr || absLower == st.rootStr+"/"
		if isHome && !allowed {
			return
		}
		if !st.visited[abs] && !st.queued[abs] {
			st.queued[abs] = true
			st.queue = append(st.queue, abs)
		}
	})
}

func (st *crawl) resolve(ref string) string {
	u, err := st.root.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	return u.String()
}

// sameHost treats the apex host and its www. variant as one site
func (st *crawl) sameHost(abs string) bool {
	u, err := url.Parse(abs)
	return err == nil && bareHost(u.Hostname()) == bareHost(st.root.Hostname())
}

func bareHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// ValidEmail reports whether email is well formed and not a known noise
// address
func ValidEmail(email string) bool {
	if !emailPattern.MatchString(email) {
		return false
	}
	for _, marker := range noiseEmailMarker {
		if strings.Contains(email, marker) {
			return false
		}
	}
	return true
}
