package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("POSTER_TEST_DUR", "90")
	assert.Equal(t, 90*time.Second, GetEnvDuration("POSTER_TEST_DUR", time.Minute))

	t.Setenv("POSTER_TEST_DUR", "2h")
	assert.Equal(t, 2*time.Hour, GetEnvDuration("POSTER_TEST_DUR", time.Minute))

	t.Setenv("POSTER_TEST_DUR", "soon")
	assert.Equal(t, time.Minute, GetEnvDuration("POSTER_TEST_DUR", time.Minute))
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("POSTER_TEST_LIST", " job not found, ,вакансію закрито ")
	assert.Equal(t, []string{"job not found", "вакансію закрито"}, GetEnvList("POSTER_TEST_LIST", nil))

	t.Setenv("POSTER_TEST_LIST", " , ")
	assert.Equal(t, []string{"x"}, GetEnvList("POSTER_TEST_LIST", []string{"x"}))
}

func TestDefaultConfig_TestMode(t *testing.T) {
	t.Setenv("TG_TEST_MODE", "1")
	cfg := DefaultConfig()
	assert.True(t, cfg.TestMode)
	assert.Equal(t, DefaultTestCooldown, cfg.EffectiveCooldown())

	t.Setenv("TG_TEST_MODE", "0")
	cfg = DefaultConfig()
	assert.False(t, cfg.TestMode)
	assert.Equal(t, DefaultCooldown, cfg.EffectiveCooldown())
}

func TestValidatePosting(t *testing.T) {
	cfg := &Config{Interval: time.Minute, Retention: time.Hour}
	err := cfg.ValidatePosting()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
	assert.Contains(t, err.Error(), "TG_BOT_TOKEN")
	assert.Contains(t, err.Error(), "TG_CHAT_ID")

	cfg.OpenAIKey, cfg.BotToken, cfg.ChatID = "k", "t", "@channel"
	require.NoError(t, cfg.ValidatePosting())

	cfg.Interval = 0
	require.Error(t, cfg.ValidatePosting())
}

func TestLocation(t *testing.T) {
	cfg := &Config{TimeZone: "Europe/Kyiv"}
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Kyiv", loc.String())

	cfg.TimeZone = "Mars/Olympus"
	_, err = cfg.Location()
	require.Error(t, err)
}
