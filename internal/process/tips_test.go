package process

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vacancy-watch/poster/internal/models"
	"vacancy-watch/poster/internal/selector"
)

func tipDeliveries(h *harness) []delivery {
	var out []delivery
	for _, d := range h.deliver.sent {
		if d.image == "tips.jpg" {
			out = append(out, d)
		}
	}
	return out
}

func TestTips_SlotFiresOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour, TipOptions{Schedule: "30 10,18 * * *", Location: time.UTC})
	h.clock.t = time.Date(2025, 3, 1, 10, 29, 0, 0, time.UTC)

	require.NoError(t, h.poster.RunCycle(ctx))
	assert.Empty(t, tipDeliveries(h))

	h.clock.Advance(time.Minute + 10*time.Second)
	require.NoError(t, h.poster.RunCycle(ctx))
	tips := tipDeliveries(h)
	require.Len(t, tips, 1)
	assert.Contains(t, tips[0].message, "<b>Корисні поради</b>")
	assert.Contains(t, tips[0].message, "#junior #tips")

	marker, ok, err := h.store.GetMeta(ctx, models.TipMetaKey("30 10,18 * * *"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2025-03-01T10:30", marker)

	h.clock.Advance(time.Minute)
	require.NoError(t, h.poster.RunCycle(ctx))
	assert.Len(t, tipDeliveries(h), 1)
	assert.Equal(t, 1, h.summ.tips)

	// past the grace window nothing is due until the evening slot
	h.clock.Advance(time.Hour)
	require.NoError(t, h.poster.RunCycle(ctx))
	assert.Len(t, tipDeliveries(h), 1)

	h.clock.t = time.Date(2025, 3, 1, 18, 30, 5, 0, time.UTC)
	require.NoError(t, h.poster.RunCycle(ctx))
	assert.Len(t, tipDeliveries(h), 2)
}

func TestTips_FailedDeliveryRetriedWithinGrace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour, TipOptions{Schedule: "30 10 * * *", Location: time.UTC})
	h.clock.t = time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	h.deliver.ok = false

	require.NoError(t, h.poster.RunCycle(ctx))
	_, ok, err := h.store.GetMeta(ctx, models.TipMetaKey("30 10 * * *"))
	require.NoError(t, err)
	assert.False(t, ok)

	h.deliver.ok = true
	h.clock.Advance(time.Minute)
	require.NoError(t, h.poster.RunCycle(ctx))
	assert.Len(t, tipDeliveries(h), 2)
	assert.Equal(t, 2, h.summ.tips)
}

func TestTips_FailureDoesNotBlockListings(t *testing.T) {
	h := newHarness(t, time.Hour, TipOptions{Schedule: "30 10 * * *", Location: time.UTC})
	h.clock.t = time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	h.seed(t, "https://a.example/1")
	h.summ.tipsErr = errors.New("quota exceeded")

	require.NoError(t, h.poster.RunCycle(context.Background()))
	require.Len(t, h.deliver.sent, 1)
	assert.Equal(t, "vacancy.jpg", h.deliver.sent[0].image)
}

func TestTips_UsesScheduleZone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Kyiv")
	require.NoError(t, err)
	slots, err := newTipSlots(TipOptions{Schedule: "30 10 * * *", Location: loc}, time.Minute)
	require.NoError(t, err)

	// 08:30 UTC is 10:30 in Kyiv in winter
	due := slots.due(time.Date(2025, 1, 15, 8, 30, 30, 0, time.UTC))
	require.Len(t, due, 1)
	assert.Equal(t, "2025-01-15T10:30", due[0].tag)

	assert.Empty(t, slots.due(time.Date(2025, 1, 15, 10, 30, 30, 0, time.UTC)))
}

func TestTips_TestModeOncePerDay(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour, TipOptions{TestMode: true, Location: time.UTC})

	require.NoError(t, h.poster.RunCycle(ctx))
	h.clock.Advance(time.Hour)
	require.NoError(t, h.poster.RunCycle(ctx))
	assert.Len(t, tipDeliveries(h), 1)

	marker, _, err := h.store.GetMeta(ctx, models.TipMetaKey(testTipSlot))
	require.NoError(t, err)
	assert.Equal(t, "TEST:2025-03-01", marker)

	h.clock.Advance(24 * time.Hour)
	require.NoError(t, h.poster.RunCycle(ctx))
	assert.Len(t, tipDeliveries(h), 2)
}

func TestTips_DisabledWithoutSchedule(t *testing.T) {
	slots, err := newTipSlots(TipOptions{}, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, slots.due(time.Now()))
}

func TestTips_WaitForPostingWindow(t *testing.T) {
	ctx := context.Background()
	window, err := selector.ParseWindow("10-20", time.UTC)
	require.NoError(t, err)
	h := newHarness(t, time.Hour, TipOptions{Schedule: "0 9,12 * * *", Location: time.UTC, Window: window})

	h.clock.t = time.Date(2025, 3, 1, 9, 0, 30, 0, time.UTC)
	require.NoError(t, h.poster.RunCycle(ctx))
	assert.Empty(t, tipDeliveries(h))
	assert.Zero(t, h.summ.tips)

	h.clock.t = time.Date(2025, 3, 1, 12, 0, 30, 0, time.UTC)
	require.NoError(t, h.poster.RunCycle(ctx))
	assert.Len(t, tipDeliveries(h), 1)
}

func TestTips_TestModeKeepsScheduledSlots(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Hour, TipOptions{Schedule: "30 10,18 * * *", Location: time.UTC, TestMode: true})

	h.clock.t = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, h.poster.RunCycle(ctx))
	assert.Len(t, tipDeliveries(h), 1)

	h.clock.t = time.Date(2025, 3, 1, 10, 30, 20, 0, time.UTC)
	require.NoError(t, h.poster.RunCycle(ctx))
	assert.Len(t, tipDeliveries(h), 2)

	marker, _, err := h.store.GetMeta(ctx, models.TipMetaKey("30 10,18 * * *"))
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01T10:30", marker)
	marker, _, err = h.store.GetMeta(ctx, models.TipMetaKey(testTipSlot))
	require.NoError(t, err)
	assert.Equal(t, "TEST:2025-03-01", marker)

	h.clock.Advance(time.Minute)
	require.NoError(t, h.poster.RunCycle(ctx))
	assert.Len(t, tipDeliveries(h), 2)
}
