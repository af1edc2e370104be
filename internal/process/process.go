// Package process runs the posting cycle: ingest, prune, select, summarize, publish, record.
package process

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vacancy-watch/poster/internal/models"
	"vacancy-watch/poster/internal/publisher"
	"vacancy-watch/poster/internal/summarizer"
)

// State is the phase of the posting cycle.
type State int

const (
	StateIdle State = iota
	StateIngesting
	StatePruning
	StateSelecting
	StateSummarizing
	StatePublishing
	StateRecording
)

var stateNames = [...]string{"idle", "ingesting", "pruning", "selecting", "summarizing", "publishing", "recording"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Source yields raw listings observed on the job site.
type Source interface {
	Fetch(ctx context.Context) ([]models.RawListing, error)
}

// Store is the persistence the cycle needs.
type Store interface {
	Ingest(ctx context.Context, candidates []models.RawListing) ([]models.Listing, error)
	PruneOlderThan(ctx context.Context, age time.Duration) (int64, error)
	Unposted(ctx context.Context) ([]models.Listing, error)
	SaveSummary(ctx context.Context, id int64, text string) error
	RecordPost(ctx context.Context, id int64, at time.Time) error
	LastPostTime(ctx context.Context) (time.Time, bool, error)
	GetMeta(ctx context.Context, key string) (string, bool, error)
	SetMeta(ctx context.Context, key, value string) error
}

// Selector picks the next listing to publish.
type Selector interface {
	Select(ctx context.Context, unposted []models.Listing, now, last time.Time, hasLast bool) (models.Listing, bool, error)
}

// Descriptions fetches the full text of a listing.
type Descriptions interface {
	Fetch(ctx context.Context, link string) (string, error)
}

// Summarizer condenses descriptions and writes tips.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
	Tips(ctx context.Context, n int, locale string) (string, error)
}

// Deliverer sends a formatted message, optionally with an image.
type Deliverer interface {
	Deliver(ctx context.Context, message, imagePath string) bool
}

// Options tunes a Poster.
type Options struct {
	Retention     time.Duration
	Interval      time.Duration
	RecoveryDelay time.Duration
	ImagePath     string
	Tips          TipOptions

	// Now and Sleep are replaced in tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Poster drives the posting cycle. It is not safe for concurrent use; one
// goroutine runs cycles back to back.
type Poster struct {
	source       Source
	store        Store
	selector     Selector
	descriptions Descriptions
	summarizer   Summarizer
	deliverer    Deliverer

	opts  Options
	tips  *tipSlots
	state State
}

// NewPoster wires the cycle collaborators. source may be nil, in which case
// cycles work the stored backlog only.
func NewPoster(source Source, store Store, selector Selector, descriptions Descriptions,
	summarizer Summarizer, deliverer Deliverer, opts Options) (*Poster, error) {
	if store == nil || selector == nil || descriptions == nil || summarizer == nil || deliverer == nil {
		return nil, errors.New("poster: store, selector, descriptions, summarizer and deliverer are required")
	}
	if opts.Retention <= 0 {
		return nil, errors.Newf("poster: retention must be positive, got %s", opts.Retention)
	}
	if opts.Interval <= 0 {
		return nil, errors.Newf("poster: interval must be positive, got %s", opts.Interval)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}

	tips, err := newTipSlots(opts.Tips, opts.Interval)
	if err != nil {
		return nil, err
	}

	return &Poster{
		source:       source,
		store:        store,
		selector:     selector,
		descriptions: descriptions,
		summarizer:   summarizer,
		deliverer:    deliverer,
		opts:         opts,
		tips:         tips,
	}, nil
}

// State returns the phase the poster is in.
func (p *Poster) State() State {
	return p.state
}

func (p *Poster) enter(logger *zerolog.Logger, s State) {
	p.state = s
	logger.Debug().Str("state", s.String()).Msg("Cycle state")
}

// Run executes cycles every interval until ctx is cancelled. A failed or
// panicking cycle is logged and followed by the recovery delay; it never stops the loop.
func (p *Poster) Run(ctx context.Context) error {
	log.Info().
		Dur("interval", p.opts.Interval).
		Dur("recovery_delay", p.opts.RecoveryDelay).
		Msg("Starting posting loop")

	for {
		if err := p.safeCycle(ctx); err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("Posting loop stopped")
				return nil
			}
			log.Error().Err(err).Dur("recovery_delay", p.opts.RecoveryDelay).Msg("Cycle failed")
			if err := p.opts.Sleep(ctx, p.opts.RecoveryDelay); err != nil {
				log.Info().Msg("Posting loop stopped")
				return nil
			}
		}

		if err := p.opts.Sleep(ctx, p.opts.Interval); err != nil {
			log.Info().Msg("Posting loop stopped")
			return nil
		}
	}
}

func (p *Poster) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.state = StateIdle
			err = errors.Newf("cycle panicked: %v", r)
			log.Error().Str("stack", string(debug.Stack())).Msg("Recovered from cycle panic")
		}
	}()
	return p.RunCycle(ctx)
}

// RunCycle performs one pass of the posting cycle. It returns nil when the
// cycle ended normally, whether or not something was posted.
func (p *Poster) RunCycle(ctx context.Context) error {
	logger := log.With().Str("cycle_id", xid.New().String()).Logger()
	start := p.opts.Now()
	defer func() {
		p.state = StateIdle
		logger.Debug().Dur("duration", p.opts.Now().Sub(start)).Msg("Cycle finished")
	}()

	p.enter(&logger, StateIngesting)
	p.ingest(ctx, &logger)
	if err := ctx.Err(); err != nil {
		return err
	}

	p.enter(&logger, StatePruning)
	if _, err := p.store.PruneOlderThan(ctx, p.opts.Retention); err != nil {
		return errors.Wrap(err, "prune")
	}

	p.sendDueTips(ctx, &logger)

	p.enter(&logger, StateSelecting)
	last, hasLast, err := p.store.LastPostTime(ctx)
	if err != nil {
		return errors.Wrap(err, "load last post time")
	}
	unposted, err := p.store.Unposted(ctx)
	if err != nil {
		return errors.Wrap(err, "load backlog")
	}
	logger.Debug().Int("unposted", len(unposted)).Msg("Backlog loaded")

	listing, ok, err := p.selector.Select(ctx, unposted, p.opts.Now(), last, hasLast)
	if err != nil {
		return errors.Wrap(err, "select")
	}
	if !ok {
		return nil
	}
	logger = logger.With().Int64("listing_id", listing.ID).Logger()
	logger.Info().Str("title", listing.Title).Msg("Selected listing")

	summary := listing.Summary
	if summary == "" {
		p.enter(&logger, StateSummarizing)
		summary, err = p.summarize(ctx, &logger, listing)
		if err != nil {
			return err
		}
		if err := p.store.SaveSummary(ctx, listing.ID, summary); err != nil {
			logger.Error().Err(err).Msg("Failed to save summary, publishing anyway")
		}
	}

	p.enter(&logger, StatePublishing)
	message := publisher.Format(listing.Title, listing.Company, listing.Salary, listing.Link, summary)
	if !p.deliverer.Deliver(ctx, message, p.opts.ImagePath) {
		logger.Warn().Msg("Delivery failed, listing stays unposted")
		return nil
	}

	p.enter(&logger, StateRecording)
	postedAt := p.opts.Now()
	if err := p.store.RecordPost(ctx, listing.ID, postedAt); err != nil {
		return errors.Wrap(err, "record post")
	}
	logger.Info().Time("posted_at", postedAt).Msg("Listing posted")
	return nil
}

// ingest stores new listings from the source. Source failures only cost
// this cycle its fresh listings; the backlog is still worked.
func (p *Poster) ingest(ctx context.Context, logger *zerolog.Logger) {
	if p.source == nil {
		return
	}
	raw, err := p.source.Fetch(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Source fetch failed, continuing with backlog")
		return
	}
	inserted, err := p.store.Ingest(ctx, raw)
	if err != nil {
		logger.Error().Err(err).Msg("Ingest failed, continuing with backlog")
		return
	}
	logger.Info().Int("observed", len(raw)).Int("inserted", len(inserted)).Msg("Ingested listings")
}

// summarize produces the text to publish and persist. Only context
// cancellation is returned as an error; every other failure becomes a fallback text.
func (p *Poster) summarize(ctx context.Context, logger *zerolog.Logger, listing models.Listing) (string, error) {
	desc, err := p.descriptions.Fetch(ctx, listing.Link)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.Warn().Err(err).Msg("Description fetch failed")
		return summarizer.FallbackServiceError, nil
	}
	if desc == "" {
		logger.Info().Msg("Listing has no description")
		return summarizer.FallbackNoDescription, nil
	}

	summary, err := p.summarizer.Summarize(ctx, desc)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.Warn().Err(err).Msg("Summarization failed, using fallback")
		return summarizer.FallbackServiceError, nil
	}
	if summary == "" {
		return summarizer.FallbackNoDescription, nil
	}
	logger.Debug().Int("summary_length", len([]rune(summary))).Msg("Summary ready")
	return summary, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
