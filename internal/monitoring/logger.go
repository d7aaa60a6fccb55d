// Package monitoring provides the process-wide diagnostic loggers.
package monitoring

import (
	"fmt"
	"log"
	"sync"

	"go.uber.org/zap"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

var (
	mu    sync.RWMutex
	sugar *zap.SugaredLogger
)

// Init installs a zap logger for the levelled helpers. Debug mode uses the
// development encoder and enables debug output.
func Init(debug bool) error {
	var (
		zapLogger *zap.Logger
		err       error
	)
	if debug {
		zapLogger, err = zap.NewDevelopment(zap.AddCallerSkip(1))
	} else {
		zapLogger, err = zap.NewProduction(zap.AddCallerSkip(1))
	}
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %w", err)
	}
	SetZapLogger(zapLogger)
	return nil
}

// SetZapLogger replaces the logger behind Debugf, Infof, Warnf and Errorf.
// Passing nil mutes them.
func SetZapLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		sugar = zap.NewNop().Sugar()
		return
	}
	sugar = l.Sugar()
}

func logger() *zap.SugaredLogger {
	mu.RLock()
	s := sugar
	mu.RUnlock()
	if s != nil {
		return s
	}

	mu.Lock()
	defer mu.Unlock()
	if sugar == nil {
		base, err := zap.NewProduction(zap.AddCallerSkip(1))
		if err != nil {
			base = zap.NewNop()
		}
		sugar = base.Sugar()
	}
	return sugar
}

// Sync flushes any buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if sugar != nil {
		_ = sugar.Sync()
	}
}

func Debugf(template string, args ...interface{}) {
	logger().Debugf(template, args...)
}

func Infof(template string, args ...interface{}) {
	logger().Infof(template, args...)
}

func Warnf(template string, args ...interface{}) {
	logger().Warnf(template, args...)
}

func Errorf(template string, args ...interface{}) {
	logger().Errorf(template, args...)
}
