package discovery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/veranemoloko/index-mirror/internal/domain"
	errpkg "github.com/veranemoloko/index-mirror/internal/errors"
	"github.com/veranemoloko/index-mirror/internal/validation"
)

// Scraper turns an HTML index page into resource descriptors.
type Scraper struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewScraper creates a Scraper whose page request is bounded by timeout.
func NewScraper(timeout time.Duration, logger *slog.Logger) *Scraper {
	return &Scraper{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Discover fetches pageURL and returns one descriptor per table row, in page
// order, ignoring the first skip rows. Rows without a link, and descriptors
// that fail validation, are dropped.
func (s *Scraper) Discover(ctx context.Context, pageURL string, skip int) ([]domain.Descriptor, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.logger.Info("downloading index page", "url", pageURL)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch index page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch index page: %w: %s", errpkg.ErrBadStatus, resp.Status)
	}

	s.logger.Info("scraping index page", "url", pageURL)
	return Parse(resp.Body, base, skip, s.logger)
}

// Parse extracts descriptors from an index document. Relative links are
// resolved against base.
func Parse(r io.Reader, base *url.URL, skip int, logger *slog.Logger) ([]domain.Descriptor, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse index page: %w", err)
	}

	rows := findAll(doc, "tr")
	var out []domain.Descriptor

	for i, row := range rows {
		if i < skip {
			continue
		}

		link := findFirst(row, "a")
		if link == nil {
			continue
		}
		href, ok := attr(link, "href")
		if !ok {
			continue
		}

		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			logger.Debug("skipping unparsable link", "href", href, "error", err)
			continue
		}
		resolved := base.ResolveReference(ref).String()

		d := domain.Descriptor{
			Name: trimExt(strings.TrimSpace(text(link))),
			URL:  resolved,
			Ext:  resolved[strings.LastIndex(resolved, ".")+1:],
		}
		if err := validation.ValidateDescriptor(d); err != nil {
			logger.Debug("skipping implausible entry", "url", d.URL, "ext", d.Ext)
			continue
		}
		out = append(out, d)
	}

	logger.Info("index page scraped", "rows", len(rows), "descriptors", len(out))
	return out, nil
}

func trimExt(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}
	return name
}

func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func findFirst(n *html.Node, tag string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			return c
		}
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
