package monitoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	assert.True(t, called, "custom logger was not called")

	called = false
	SetLogger(nil)
	assert.NotPanics(t, func() { Logf("test message") })
	assert.False(t, called, "no-op logger should not reach the previous logger")
}

func TestLogf_Default(t *testing.T) {
	require.NotNil(t, Logf)
	assert.NotPanics(t, func() { Logf("test %d", 1) })
}

func TestLevelledHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetZapLogger(zap.New(core))
	defer SetZapLogger(nil)

	Debugf("debug %d", 1)
	Infof("info %s", "x")
	Warnf("warn")
	Errorf("error %v", 2.5)

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "debug 1", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "info x", entries[1].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "error 2.5", entries[3].Message)
}

func TestSetZapLoggerNilMutes(t *testing.T) {
	SetZapLogger(nil)
	assert.NotPanics(t, func() {
		Errorf("dropped")
		Sync()
	})
}

func TestInit(t *testing.T) {
	require.NoError(t, Init(true))
	assert.NotPanics(t, func() { Debugf("hello") })
	SetZapLogger(nil)
}
