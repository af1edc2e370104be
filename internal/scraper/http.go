// Package scraper turns listing sources into raw listings and fetches listing descriptions.
package scraper

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
)

const (
	// DefaultUserAgent is sent with every scrape request.
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)"

	defaultTimeout = 15 * time.Second
	maxPageSize    = 4 << 20
)

func newClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: defaultTimeout}
}

// fetchDocument GETs link and parses the body as HTML. Non-2xx answers are errors.
func fetchDocument(ctx context.Context, client *http.Client, userAgent, link string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create request for %s", link)
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch %s", link)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageSize))
		return nil, errors.Newf("fetch %s: unexpected status %d", link, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", link)
	}
	return doc, nil
}
