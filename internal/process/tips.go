package process

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"vacancy-watch/poster/internal/models"
	"vacancy-watch/poster/internal/publisher"
)

const (
	tipCount      = 3
	tipLocale     = "uk"
	testTipSlot   = "test"
	slotTagLayout = "2006-01-02T15:04"
)

// Window reports whether posting is allowed at a given time.
type Window interface {
	Contains(t time.Time) bool
}

// TipOptions configures the auxiliary tip posts. An empty Schedule disables
// the scheduled slots.
type TipOptions struct {
	Schedule  string // standard 5-field cron expression
	Location  *time.Location
	ImagePath string
	Window    Window // tips wait for it like listings do; nil means always open
	TestMode  bool   // adds one extra tip post per day, as soon as possible
}

type tipSlots struct {
	spec      string
	schedule  cron.Schedule
	loc       *time.Location
	grace     time.Duration
	imagePath string
	window    Window
	testMode  bool
}

type tipSlot struct {
	key string
	tag string
}

func newTipSlots(opts TipOptions, interval time.Duration) (*tipSlots, error) {
	t := &tipSlots{
		spec:      opts.Schedule,
		loc:       opts.Location,
		grace:     2 * interval,
		imagePath: opts.ImagePath,
		window:    opts.Window,
		testMode:  opts.TestMode,
	}
	if t.loc == nil {
		t.loc = time.UTC
	}
	if opts.Schedule != "" {
		schedule, err := cron.ParseStandard(opts.Schedule)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid tip schedule %q", opts.Schedule)
		}
		t.schedule = schedule
	}
	return t, nil
}

// due returns the tip slots that should fire at now. A scheduled slot is due
// during the grace window that follows it; the daily test slot is due all day.
func (t *tipSlots) due(now time.Time) []tipSlot {
	if t.window != nil && !t.window.Contains(now) {
		return nil
	}
	local := now.In(t.loc)

	var slots []tipSlot
	if t.testMode {
		slots = append(slots, tipSlot{key: models.TipMetaKey(testTipSlot), tag: "TEST:" + local.Format("2006-01-02")})
	}
	if t.schedule != nil {
		if slot := t.schedule.Next(local.Add(-t.grace)); !slot.After(local) {
			slots = append(slots, tipSlot{key: models.TipMetaKey(t.spec), tag: slot.Format(slotTagLayout)})
		}
	}
	return slots
}

// sendDueTips posts tips for every due slot not yet served. Failures are
// logged and never affect the listing path.
func (p *Poster) sendDueTips(ctx context.Context, logger *zerolog.Logger) {
	for _, slot := range p.tips.due(p.opts.Now()) {
		if ctx.Err() != nil {
			return
		}
		p.sendTips(ctx, logger, slot)
	}
}

func (p *Poster) sendTips(ctx context.Context, logger *zerolog.Logger, slot tipSlot) {
	key, tag := slot.key, slot.tag
	sent, _, err := p.store.GetMeta(ctx, key)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Failed to read tip marker")
		return
	}
	if sent == tag {
		return
	}

	slogger := logger.With().Str("slot", tag).Logger()
	slogger.Info().Msg("Tip slot due, generating tips")

	text, err := p.summarizer.Tips(ctx, tipCount, tipLocale)
	if err != nil {
		slogger.Warn().Err(err).Msg("Failed to generate tips")
		return
	}
	if !p.deliverer.Deliver(ctx, publisher.FormatTips(text), p.tips.imagePath) {
		slogger.Warn().Msg("Tip delivery failed")
		return
	}
	if err := p.store.SetMeta(ctx, key, tag); err != nil {
		slogger.Warn().Err(err).Msg("Failed to store tip marker")
		return
	}
	slogger.Info().Msg("Tips posted")
}
