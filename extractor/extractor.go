/*
Package extractor turns a live source page into a ContentUnit.

The page is fetched with a browser-like request profile, the per-feed CSS
selectors pick the title, body, publish time and featured image, and the body
is stripped of boilerplate, ads and empty elements. The extractor never talks
to publish targets.
*/
package extractor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Nexora-Open-Source/feed-republisher/monitoring"
	"github.com/Nexora-Open-Source/feed-republisher/types"
	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTimeout bounds one page fetch.
	DefaultTimeout = 15 * time.Second

	maxPageSize = 10 << 20

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Extractor fetches and parses source pages.
type Extractor struct {
	client  *http.Client
	timeout time.Duration
	logger  *logrus.Logger
}

// New creates an extractor using the shared HTTP client.
func New(client *http.Client, timeout time.Duration, logger *logrus.Logger) *Extractor {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Extractor{client: client, timeout: timeout, logger: logger}
}

// Extract fetches pageURL and applies selectors. It returns a *FetchError when
// the page could not be downloaded and an *ExtractionError when the title or
// content is missing.
func (e *Extractor) Extract(ctx context.Context, pageURL string, selectors types.Selectors) (*types.ContentUnit, error) {
	ctx, span := monitoring.CreateSpan(ctx, "extractor.extract")
	defer span.End()
	monitoring.SetSpanAttributes(span, map[string]interface{}{"page.url": pageURL})

	doc, err := e.fetch(ctx, pageURL)
	if err != nil {
		monitoring.RecordExtraction("fetch_failed")
		monitoring.SetSpanError(span, err)
		return nil, err
	}

	unit, err := e.parse(doc, pageURL, selectors)
	if err != nil {
		monitoring.RecordExtraction("failed")
		monitoring.SetSpanError(span, err)
		return nil, err
	}

	monitoring.RecordExtraction("success")
	e.logger.WithFields(logrus.Fields{
		"url":            pageURL,
		"title":          truncate(unit.Title, 50),
		"content_length": len(unit.Content),
		"has_image":      unit.ImageURL != "",
	}).Info("Extracted page content")
	return unit, nil
}

func (e *Extractor) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	setBrowserHeaders(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: fmt.Errorf("read page: %w", err)}
	}
	return doc, nil
}

// setBrowserHeaders mimics a desktop browser. Accept-Encoding is left to the
// transport, which then decompresses transparently.
func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Referer", "https://"+req.URL.Host+"/")
}

func (e *Extractor) parse(doc *goquery.Document, pageURL string, selectors types.Selectors) (*types.ContentUnit, error) {
	title := extractText(doc, selectors.Title)
	if title == "" {
		return nil, &ExtractionError{URL: pageURL, Err: ErrMissingTitle}
	}

	content := ""
	if selectors.Content != "" {
		if sel := doc.Find(selectors.Content).First(); sel.Length() > 0 {
			if goquery.NodeName(sel) == "meta" {
				content = strings.TrimSpace(ugcPolicy.Sanitize(sel.AttrOr("content", "")))
			} else {
				content = sanitize(sel.Clone())
			}
		}
	}
	if content == "" {
		return nil, &ExtractionError{URL: pageURL, Err: ErrMissingContent}
	}

	unit := &types.ContentUnit{
		Title:    title,
		Content:  content,
		ImageURL: extractImageURL(doc, selectors.FeaturedImage, pageURL),
	}

	if raw := extractTime(doc, selectors.Time); raw != "" {
		if t, err := dateparse.ParseAny(raw); err == nil {
			unit.PublishedAt = &t
		} else {
			e.logger.WithFields(logrus.Fields{"url": pageURL, "value": raw}).Warn("Could not parse publish time")
		}
	}
	return unit, nil
}

// extractText returns the content attribute of a meta element, or the text of any other element.
func extractText(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return ""
	}
	if goquery.NodeName(sel) == "meta" {
		return strings.TrimSpace(sel.AttrOr("content", ""))
	}
	return strings.TrimSpace(sel.Text())
}

// extractTime prefers the datetime attribute of time elements.
func extractTime(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return ""
	}
	if dt, ok := sel.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
		return strings.TrimSpace(dt)
	}
	return extractText(doc, selector)
}

// extractImageURL reads meta[content] or img[src] and resolves it against pageURL.
func extractImageURL(doc *goquery.Document, selector, pageURL string) string {
	if selector == "" {
		return ""
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return ""
	}

	var src string
	switch goquery.NodeName(sel) {
	case "meta":
		src = sel.AttrOr("content", "")
	case "img":
		src = sel.AttrOr("src", "")
		if src == "" {
			src = sel.AttrOr("data-src", "")
		}
	}
	return resolveURL(pageURL, strings.TrimSpace(src))
}

func resolveURL(pageURL, src string) string {
	if src == "" {
		return ""
	}
	ref, err := url.Parse(src)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return src
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
