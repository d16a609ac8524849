package core

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns the process logger. ENVIRONMENT=development switches to
// the human readable encoder; LOG_LEVEL overrides the default level.
func NewLogger() (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if os.Getenv("ENVIRONMENT") == "development" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		level, err := zapcore.ParseLevel(raw)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return logger.Sugar(), nil
}
