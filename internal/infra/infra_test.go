package infra

import (
	"bytes"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/barb/internal/config"
)

func TestCache(t *testing.T) {
	c := NewCache[int](time.Minute)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	c.SetWithTTL("b", 2, time.Hour)
	c.SetWithTTL("forever", 3, 0)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 3, c.Len())

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok, "expired after default TTL")
	_, ok = c.Get("b")
	assert.True(t, ok)

	c.Cleanup()
	assert.Equal(t, 2, c.Len())

	now = now.Add(24 * time.Hour)
	v, ok = c.Get("forever")
	require.True(t, ok)
	assert.Equal(t, 3, v)

	c.Invalidate("forever")
	_, ok = c.Get("forever")
	assert.False(t, ok)

	c.Set("x", 9)
	c.Flush()
	assert.Zero(t, c.Len())
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		cfg   config.LoggingConfig
		level logrus.Level
		json  bool
	}{
		{config.LoggingConfig{Level: "debug", Format: "text"}, logrus.DebugLevel, false},
		{config.LoggingConfig{Level: "WARN", Format: "json"}, logrus.WarnLevel, true},
		{config.LoggingConfig{Level: "chatty"}, logrus.InfoLevel, false},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Level, func(t *testing.T) {
			var buf bytes.Buffer
			l := newLogger(tt.cfg, &buf)
			assert.Equal(t, tt.level, l.GetLevel())
			_, isJSON := l.Formatter.(*logrus.JSONFormatter)
			assert.Equal(t, tt.json, isJSON)

			l.WithField("step", "where").Warn("narrowed")
			assert.Contains(t, buf.String(), "narrowed")
			assert.Contains(t, buf.String(), "where")
		})
	}
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b, "ids minted later sort later")
}
