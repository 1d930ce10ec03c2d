package main

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds the process-wide logger: zap's development encoder at
// the given level, exposed through logr.
//
func newLogger(level string) (logr.Logger, func(), error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return logr.Discard(), nil, fmt.Errorf("parse level '%s': %w", level, err)
	}

	zapConfig := zap.NewDevelopmentConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(lvl)

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return logr.Discard(), nil, fmt.Errorf("zap build: %w", err)
	}

	flush := func() {
		_ = zapLogger.Sync()
	}

	return zapr.NewLogger(zapLogger), flush, nil
}
