package scraper

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"vacancy-watch/poster/internal/models"
)

// WorkUA scrapes a work.ua search results page.
type WorkUA struct {
	pageURL   string
	base      *url.URL
	client    *http.Client
	userAgent string
}

// NewWorkUA creates a scraper for pageURL. Relative listing links are
// resolved against the page URL.
func NewWorkUA(pageURL string, client *http.Client) (*WorkUA, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid source url %q", pageURL)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Newf("source url %q must be absolute", pageURL)
	}
	return &WorkUA{
		pageURL:   pageURL,
		base:      base,
		client:    newClient(client),
		userAgent: DefaultUserAgent,
	}, nil
}

// Fetch downloads the results page and extracts its listings.
func (w *WorkUA) Fetch(ctx context.Context) ([]models.RawListing, error) {
	doc, err := fetchDocument(ctx, w.client, w.userAgent, w.pageURL)
	if err != nil {
		return nil, err
	}
	listings := ParseListings(doc, w.base)
	log.Debug().Str("source", w.pageURL).Int("listings", len(listings)).Msg("Scraped listing page")
	return listings, nil
}

// ParseListings extracts listing cards from a results page. Cards without a
// title are skipped.
func ParseListings(doc *goquery.Document, base *url.URL) []models.RawListing {
	var out []models.RawListing

	doc.Find(`div[class*="job-link"]`).Each(func(_ int, card *goquery.Selection) {
		a := card.Find("h2.my-0 a").First()
		title := strings.TrimSpace(a.Text())
		if title == "" {
			return
		}

		var link string
		if href, ok := a.Attr("href"); ok {
			link = resolve(base, href)
		}

		company, salary := companyAndSalary(card)
		out = append(out, models.RawListing{
			Title:   title,
			Company: company,
			Link:    link,
			Salary:  salary,
		})
	})
	return out
}

// companyAndSalary reads the bold spans of a card. The company sits inside a
// "mt-xs" block, the salary in an unclassed div.
func companyAndSalary(card *goquery.Selection) (company, salary string) {
	card.Find(`span[class*="strong-600"]`).Each(func(_ int, span *goquery.Selection) {
		text := strings.TrimSpace(span.Text())
		if span.Closest(`div[class*="mt-xs"]`).Length() > 0 {
			company = text
			return
		}
		if _, hasClass := span.Closest("div").Attr("class"); !hasClass {
			salary = text
			return
		}
		if salary == "" {
			salary = text
		}
	})
	return company, salary
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
