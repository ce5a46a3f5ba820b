package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevelSpec(t *testing.T) {
	var cfg Config
	ParseLevelSpec(&cfg, "core/eventbus=debug, core/lifecycle=warn ,error,bogus=loud")

	assert.Equal(t, slog.LevelError, cfg.DefaultLevel)
	assert.Equal(t, slog.LevelDebug, cfg.LevelFor("core/eventbus"))
	assert.Equal(t, slog.LevelWarn, cfg.LevelFor("core/lifecycle"))
	assert.Equal(t, slog.LevelError, cfg.LevelFor("core/metadata"))
	_, ok := cfg.ComponentLevels["bogus"]
	assert.False(t, ok)
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("JSON"))
	assert.Equal(t, FormatText, ParseFormat("text"))
	assert.Equal(t, FormatText, ParseFormat(""))
}

func TestLazyLogger_ComponentFilter(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	cfg := Config{
		DefaultLevel:    slog.LevelWarn,
		ComponentLevels: map[string]slog.Level{"core/eventbus": slog.LevelDebug},
	}
	Setup(cfg, &buf)
	defer Setup(ConfigFromEnv(), nil)

	Logger("core/metadata").Info("hidden")
	Logger("core/eventbus").Debug("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "component=core/eventbus")
	assert.True(t, Logger("core/eventbus").Enabled(slog.LevelDebug))
	assert.False(t, Logger("core/metadata").Enabled(slog.LevelInfo))
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abcd", TruncateID("abcdefgh", 4))
	assert.Equal(t, "ab", TruncateID("ab", 4))
	assert.Equal(t, "ab", TruncateID("ab", 0))
}
