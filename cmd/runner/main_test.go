package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"wavelet-signal-go/infrastructure/logger"
)

func TestLogFailureEmitsErrorEvent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	lg := &logger.Logger{Logger: zap.New(core)}

	barTs := time.UnixMilli(60000).UTC()
	logFailure(lg, "bar_failed", errors.New("window too short"), map[string]interface{}{"barTs": barTs})

	assert.Zero(t, logs.FilterMessage("log schema mismatch").Len())
	entries := logs.FilterMessage("error_event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "bar_failed", ctx["event"])
	assert.Equal(t, "window too short", ctx["error"])
	got, ok := ctx["barTs"].(time.Time)
	require.True(t, ok)
	assert.True(t, barTs.Equal(got))
}

func TestLogEventFlagsSchemaMismatch(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	lg := &logger.Logger{Logger: zap.New(core)}

	logEvent(lg, "runner_exit", map[string]interface{}{})
	assert.Equal(t, 1, logs.FilterMessage("log schema mismatch").Len())
	assert.Equal(t, 1, logs.FilterMessage("step_event").Len())
}
