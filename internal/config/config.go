// Package config loads a replica's operational configuration from a
// YAML file and layers it over session.DefaultConfig(), the way the
// teacher's cmd/server/main.go builds a Config from flag.Parse but
// generalized to a declarative file per SPEC_FULL.md §2 (grounded on
// nishisan-dev-n-backup/internal/config and boomballa-df2redis, both
// of which load their operational config from YAML).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"redisreplica/internal/session"
)

// File is the on-disk shape: every field is optional and, when
// absent, falls back to session.DefaultConfig()'s value.
type File struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	AnnouncePort int `yaml:"announce_port"`

	CapaEOF   *bool `yaml:"capa_eof"`
	CapaPsync *bool `yaml:"capa_psync2"`

	ReplID     string `yaml:"repl_id"`
	ReplOffset *int64 `yaml:"repl_offset"`

	HeartbeatIntervalMS int `yaml:"heartbeat_interval_ms"`
	DialTimeoutMS       int `yaml:"dial_timeout_ms"`

	RateLimitBytesPerSec int  `yaml:"rate_limit_bytes_per_sec"`
	Prefetch             bool `yaml:"prefetch"`
	PrefetchBuffer       int  `yaml:"prefetch_buffer"`

	Verbose bool `yaml:"verbose"`

	MaxReconnectBackoffMS int `yaml:"max_reconnect_backoff_ms"`

	DiscardRDBEvent bool `yaml:"discard_rdb_event"`

	// Filters are command sequences only; a YAML file has no way to
	// name a Go listener, so any Filter.Listener must be attached by
	// the caller after Load returns.
	Filters []FilterFile `yaml:"filters"`
}

// FilterFile mirrors session.Filter's Command in YAML-friendly form.
type FilterFile struct {
	Command []string `yaml:"command"`
}

// Load reads path as YAML and returns both the host:port to dial and
// a *session.Config seeded from session.DefaultConfig() with every
// present field overridden.
func Load(path string) (host string, port int, cfg *session.Config, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return "", 0, nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg = session.DefaultConfig()
	if f.Username != "" {
		cfg.Username = f.Username
	}
	if f.Password != "" {
		cfg.Password = f.Password
	}
	if f.AnnouncePort != 0 {
		cfg.AnnouncePort = f.AnnouncePort
	}
	if f.CapaEOF != nil {
		cfg.CapaEOF = *f.CapaEOF
	}
	if f.CapaPsync != nil {
		cfg.CapaPsync = *f.CapaPsync
	}
	if f.ReplID != "" {
		cfg.ReplID = f.ReplID
	}
	if f.ReplOffset != nil {
		cfg.ReplOffset = *f.ReplOffset
	}
	if f.HeartbeatIntervalMS > 0 {
		cfg.HeartbeatInterval = time.Duration(f.HeartbeatIntervalMS) * time.Millisecond
	}
	if f.DialTimeoutMS > 0 {
		cfg.DialTimeout = time.Duration(f.DialTimeoutMS) * time.Millisecond
	}
	cfg.RateLimitBytesPerSec = f.RateLimitBytesPerSec
	cfg.Prefetch = f.Prefetch
	cfg.PrefetchBuffer = f.PrefetchBuffer
	cfg.Verbose = f.Verbose
	if f.MaxReconnectBackoffMS > 0 {
		cfg.MaxReconnectBackoff = time.Duration(f.MaxReconnectBackoffMS) * time.Millisecond
	}
	cfg.DiscardRDBEvent = f.DiscardRDBEvent
	if len(f.Filters) > 0 {
		cfg.Filters = make([]session.Filter, len(f.Filters))
		for i, flt := range f.Filters {
			cfg.Filters[i] = session.Filter{Command: flt.Command}
		}
	}

	return f.Host, f.Port, cfg, nil
}
