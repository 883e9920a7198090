package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/raoulx24/bsu-backup/internal/config"
)

func TestNewRejectsUnknownSettings(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud", Format: "json"})
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = New(config.LoggingConfig{Level: "info", Format: "xml"})
	assert.ErrorIs(t, err, config.ErrInvalid)

	l, err := New(config.LoggingConfig{Level: "DEBUG", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := FromZap(zap.New(core)).With("run", "abc")

	l.Error("deleting snapshot failed", "snapshot", "snap-1")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "deleting snapshot failed", entry.Message)
	assert.Equal(t, map[string]any{"run": "abc", "snapshot": "snap-1"}, entry.ContextMap())
}
