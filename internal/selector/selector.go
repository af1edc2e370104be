// Package selector picks the next listing to publish.
package selector

import (
	"context"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"vacancy-watch/poster/internal/availability"
	"vacancy-watch/poster/internal/models"
	"vacancy-watch/poster/internal/store"
)

// Checker probes whether a listing page is still live.
type Checker interface {
	Check(ctx context.Context, link string) availability.Result
}

// Deleter removes listings that can never be posted.
type Deleter interface {
	Delete(ctx context.Context, id int64, reason string) error
}

// Gate explains why a cycle may not post.
type Gate string

const (
	GateOpen          Gate = ""
	GateOutsideWindow Gate = "outside_window"
	GateCooldown      Gate = "cooldown"
)

// Selector applies the posting window and cooldown, then walks the backlog
// oldest first, deleting dead listings until it finds a live one.
type Selector struct {
	checker  Checker
	deleter  Deleter
	window   Window
	cooldown time.Duration
}

// New creates a Selector. A zero cooldown lets every cycle post.
func New(checker Checker, deleter Deleter, window Window, cooldown time.Duration) *Selector {
	return &Selector{
		checker:  checker,
		deleter:  deleter,
		window:   window,
		cooldown: cooldown,
	}
}

// Gate reports whether posting is allowed at now given the last post time.
func (s *Selector) Gate(now, last time.Time, hasLast bool) Gate {
	if !s.window.Contains(now) {
		return GateOutsideWindow
	}
	if s.cooldown > 0 && hasLast && now.Sub(last) < s.cooldown {
		return GateCooldown
	}
	return GateOpen
}

// Select returns the first active listing of unposted, which must be ordered
// oldest first. Listings with unusable or dead links are deleted on the way.
// The boolean is false when nothing may or can be posted.
func (s *Selector) Select(ctx context.Context, unposted []models.Listing, now, last time.Time, hasLast bool) (models.Listing, bool, error) {
	if gate := s.Gate(now, last, hasLast); gate != GateOpen {
		log.Debug().Str("gate", string(gate)).Msg("Posting not allowed this cycle")
		return models.Listing{}, false, nil
	}

	for _, l := range unposted {
		if err := ctx.Err(); err != nil {
			return models.Listing{}, false, err
		}

		if !usableLink(l.Link) {
			if err := s.deleter.Delete(ctx, l.ID, store.ReasonMissingLink); err != nil {
				return models.Listing{}, false, err
			}
			continue
		}

		res := s.checker.Check(ctx, l.Link)
		if res.Active {
			log.Debug().
				Int64("listing_id", l.ID).
				Str("reason", string(res.Reason)).
				Msg("Selected listing")
			return l, true, nil
		}

		log.Info().
			Int64("listing_id", l.ID).
			Str("link", l.Link).
			Str("reason", res.Code()).
			Int("status", res.Status).
			Msg("Listing inactive, deleting")
		if err := s.deleter.Delete(ctx, l.ID, res.Code()); err != nil {
			return models.Listing{}, false, err
		}
	}

	log.Debug().Int("backlog", len(unposted)).Msg("No active listing in backlog")
	return models.Listing{}, false, nil
}

func usableLink(link string) bool {
	if link == "" {
		return false
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
