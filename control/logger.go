// control/logger.go
// Author: momentics <momentics@gmail.com>
//
// Logger construction from Config.

package control

import (
	"go.uber.org/zap"
)

// NewLogger builds the broker logger. The returned level can be changed at
// runtime; a reload hook uses it to apply a new log_level.
func NewLogger(cfg Config) (*zap.Logger, zap.AtomicLevel, error) {
	lvl, err := cfg.Level()
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}
	zc := zap.NewProductionConfig()
	if cfg.LogDevelopment {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	log, err := zc.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}
	return log, zc.Level, nil
}

// LevelReloader returns a reload hook that applies log_level to level.
func LevelReloader(level zap.AtomicLevel) func(Config) error {
	return func(cfg Config) error {
		lvl, err := cfg.Level()
		if err != nil {
			return err
		}
		level.SetLevel(lvl)
		return nil
	}
}
