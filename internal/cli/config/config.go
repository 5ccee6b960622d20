// Package config holds the state shared by every CLI command: global flags,
// the loaded engine configuration and the logger.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	engine "github.com/rustyeddy/creditrisk/config"
	"github.com/rustyeddy/creditrisk/credit"
	"github.com/rustyeddy/creditrisk/pkg/logger"
	"github.com/rustyeddy/creditrisk/report"
	"github.com/rustyeddy/creditrisk/store"
)

type RootConfig struct {
	ConfigPath string
	Mode       string
	DBPath     string
	LogLevel   string
	AsOf       string
	Format     string
	NoColor    bool

	Cfg *engine.Config
	Log zerolog.Logger
}

// Load reads the config file and environment, then lets explicitly set flags win.
func (rc *RootConfig) Load() error {
	cfg, err := engine.Load(rc.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if rc.Mode != "" {
		cfg.Data.Mode = rc.Mode
	}
	if rc.DBPath != "" {
		cfg.Data.Path = rc.DBPath
	}
	if rc.LogLevel != "" {
		cfg.Log.Level = rc.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rc.Cfg = cfg
	rc.Log = logger.New(logger.Config{
		Level:   cfg.Log.Level,
		Pretty:  cfg.Log.Pretty,
		NoColor: rc.NoColor,
		Out:     os.Stderr,
	})
	logger.SetGlobalLogger(rc.Log)
	return nil
}

// OpenStore opens the database selected by mode or --db.
func (rc *RootConfig) OpenStore() (*store.SQLite, error) {
	path := rc.Cfg.Data.DBPath()
	st, err := store.NewSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	rc.Log.Debug().Str("path", path).Str("mode", rc.Cfg.Data.Mode).Msg("store opened")
	return st, nil
}

// AsOfDate parses --as-of (YYYY-MM-DD), defaulting to today in UTC.
func (rc *RootConfig) AsOfDate() (time.Time, error) {
	if rc.AsOf == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(time.DateOnly, rc.AsOf)
	if err != nil {
		return time.Time{}, credit.InvalidInput("bad --as-of %q: want YYYY-MM-DD", rc.AsOf)
	}
	return t, nil
}

func (rc *RootConfig) OutputFormat() (report.Format, error) {
	return report.ParseFormat(rc.Format)
}
