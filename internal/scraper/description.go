package scraper

import (
	"context"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Descriptions fetches the description text of a listing page.
type Descriptions struct {
	client    *http.Client
	userAgent string
}

// NewDescriptions creates a description fetcher. A nil client gets a 15s timeout.
func NewDescriptions(client *http.Client) *Descriptions {
	return &Descriptions{client: newClient(client), userAgent: DefaultUserAgent}
}

// Fetch returns the description of the listing at link, or "" when the page
// has no description block.
func (d *Descriptions) Fetch(ctx context.Context, link string) (string, error) {
	doc, err := fetchDocument(ctx, d.client, d.userAgent, link)
	if err != nil {
		return "", err
	}
	return ParseDescription(doc), nil
}

// ParseDescription extracts the description block of a listing page as
// newline separated text.
func ParseDescription(doc *goquery.Document) string {
	block := doc.Find("div#job-description").First()
	if block.Length() == 0 {
		block = doc.Find("div.card.wordwrap").First()
	}
	if block.Length() == 0 {
		return ""
	}
	var lines []string
	collectText(block, &lines)
	return strings.Join(lines, "\n")
}

func collectText(sel *goquery.Selection, lines *[]string) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "#text":
			if t := strings.TrimSpace(s.Text()); t != "" {
				*lines = append(*lines, t)
			}
		case "script", "style", "#comment":
		default:
			collectText(s, lines)
		}
	})
}
