package server

import (
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/susuprotocol/rosca/engine"
)

// VersionInfo contains build-time version information.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

type Config struct {
	Logger            *slog.Logger
	Engine            *engine.Engine
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	RateLimit         rate.Limit
	RateBurst         int
	CORSOrigins       []string
	VersionInfo       VersionInfo
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Engine == nil {
		return errors.New("engine is required")
	}
	if cfg.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		// 100 requests/minute per IP with a burst of 20.
		cfg.RateLimit = rate.Every(time.Minute / 100)
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = 20
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	return nil
}
