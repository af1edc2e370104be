package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/reddot-watch/feedfetcher"
	"github.com/rs/zerolog/log"

	"vacancy-watch/poster/internal/models"
)

// Feed reads listings from an RSS or Atom feed.
type Feed struct {
	url     string
	fetcher *feedfetcher.FeedFetcher
}

// NewFeed creates a feed source for url.
func NewFeed(url string) *Feed {
	return &Feed{
		url: url,
		fetcher: feedfetcher.NewFeedFetcher(feedfetcher.Config{
			UserAgent:            DefaultUserAgent,
			RequestTimeout:       defaultTimeout,
			MaxItems:             100,
			MaxHeadingLength:     200,
			MaxAge:               7 * 24 * time.Hour,
			FutureDriftTolerance: 12 * time.Hour,
		}),
	}
}

// Fetch returns the feed items as raw listings. Items without a URL are dropped.
func (f *Feed) Fetch(ctx context.Context) ([]models.RawListing, error) {
	items, err := f.fetcher.FetchAndProcess(ctx, f.url)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch feed %s", f.url)
	}

	out := make([]models.RawListing, 0, len(items))
	for _, item := range items {
		link := strings.TrimSpace(item.URL)
		if link == "" {
			continue
		}
		out = append(out, models.RawListing{
			Title: strings.TrimSpace(item.Headline),
			Link:  link,
		})
	}
	log.Debug().Str("source", f.url).Int("items", len(out)).Msg("Fetched listing feed")
	return out, nil
}
