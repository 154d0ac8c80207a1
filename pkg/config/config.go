package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the beacon server configuration.
const (
	DefaultListenAddr      = ":8080"
	DefaultDataDir         = "/var/lib/beacon"
	DefaultPollInterval    = 2 * time.Second
	DefaultBatchSize       = 16
	DefaultHistoryLimit    = 500
	DefaultUptimeWindow    = 24 * time.Hour
	DefaultAnomalyDecay    = 30 * time.Minute
	DefaultCapacity        = 70
	DefaultKeyCacheTTL     = 5 * time.Minute
	DefaultRankInterval    = time.Minute
	DefaultRankPlayerCap   = 50
	DefaultGraceWindowSecs = 600
)

// Config holds the full beacon server configuration parsed from
// config.yaml. Every field has a default; an empty file is valid.
type Config struct {
	Server Server `yaml:"server"`
	Worker Worker `yaml:"worker"`
	Log    Log    `yaml:"log"`
}

// Server holds the ingest API settings.
type Server struct {
	// ListenAddr is the address the HTTP ingest API listens on (default ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// DataDir holds the SQLite heartbeat store and the Bolt derived store.
	DataDir string `yaml:"data_dir"`

	// KeyCacheTTL is how long a cluster key is served from cache before
	// being re-read from the key store. Default: 5m.
	KeyCacheTTL time.Duration `yaml:"key_cache_ttl"`

	// GraceWindowSeconds is the fallback liveness grace window applied
	// when a server's cluster key does not set its own. Default: 600.
	GraceWindowSeconds int `yaml:"grace_window_seconds"`
}

// Worker holds the derived-state worker settings.
type Worker struct {
	// PollInterval is how often the single poller claims pending jobs (default 2s).
	PollInterval time.Duration `yaml:"poll_interval"`

	// BatchSize is the maximum number of jobs claimed per poll (default 16).
	BatchSize int `yaml:"batch_size"`

	// HistoryLimit caps how many recent heartbeats are loaded per job (default 500).
	HistoryLimit int `yaml:"history_limit"`

	// UptimeWindow is the sliding window for uptime computation (default 24h).
	UptimeWindow time.Duration `yaml:"uptime_window"`

	// AnomalyDecay is how long a player-spike flag stays raised after its
	// last detection (default 30m).
	AnomalyDecay time.Duration `yaml:"anomaly_decay"`

	// DefaultCapacity substitutes for servers that never report
	// players_capacity (default 70).
	DefaultCapacity int `yaml:"default_capacity"`

	// RankInterval is how often the ranking pass sweeps all servers (default 1m).
	RankInterval time.Duration `yaml:"rank_interval"`

	// RankPlayerCap caps the player count used in the popularity term so
	// huge servers do not dominate the ranking (default 50).
	RankPlayerCap int `yaml:"rank_player_cap"`

	// MaxAttempts flags jobs whose attempt count exceeds it via the
	// jobs-over-limit gauge. 0 means unlimited. Jobs are never skipped
	// or dead-lettered; this is observability only.
	MaxAttempts int `yaml:"max_attempts"`
}

// Log holds logging settings.
type Log struct {
	// Level is one of: debug | info | warn | error. Default: info.
	Level string `yaml:"level"`

	// JSON switches output from console format to structured JSON.
	JSON bool `yaml:"json"`
}

// Load reads the config file at path, fills defaults, applies BEACON_*
// environment overrides, and validates. An empty path loads pure defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: Server{
			ListenAddr:         DefaultListenAddr,
			DataDir:            DefaultDataDir,
			KeyCacheTTL:        DefaultKeyCacheTTL,
			GraceWindowSeconds: DefaultGraceWindowSecs,
		},
		Worker: Worker{
			PollInterval:    DefaultPollInterval,
			BatchSize:       DefaultBatchSize,
			HistoryLimit:    DefaultHistoryLimit,
			UptimeWindow:    DefaultUptimeWindow,
			AnomalyDecay:    DefaultAnomalyDecay,
			DefaultCapacity: DefaultCapacity,
			RankInterval:    DefaultRankInterval,
			RankPlayerCap:   DefaultRankPlayerCap,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// applyEnv overrides config values from BEACON_* environment variables.
// Only the operationally common knobs are exposed this way.
func applyEnv(cfg *Config) {
	if v := os.Getenv("BEACON_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("BEACON_DATA_DIR"); v != "" {
		cfg.Server.DataDir = v
	}
	if v := os.Getenv("BEACON_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("BEACON_LOG_JSON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Log.JSON = b
		}
	}
	if v := os.Getenv("BEACON_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.PollInterval = d
		}
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr must not be empty")
	}
	if cfg.Server.DataDir == "" {
		return fmt.Errorf("server.data_dir must not be empty")
	}
	if cfg.Server.GraceWindowSeconds <= 0 {
		return fmt.Errorf("server.grace_window_seconds must be positive")
	}
	if cfg.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker.poll_interval must be positive")
	}
	if cfg.Worker.BatchSize <= 0 {
		return fmt.Errorf("worker.batch_size must be positive")
	}
	if cfg.Worker.HistoryLimit <= 0 {
		return fmt.Errorf("worker.history_limit must be positive")
	}
	if cfg.Worker.UptimeWindow <= 0 {
		return fmt.Errorf("worker.uptime_window must be positive")
	}
	if cfg.Worker.AnomalyDecay < 0 {
		return fmt.Errorf("worker.anomaly_decay must not be negative")
	}
	if cfg.Worker.DefaultCapacity <= 0 {
		return fmt.Errorf("worker.default_capacity must be positive")
	}
	if cfg.Worker.RankPlayerCap <= 0 {
		return fmt.Errorf("worker.rank_player_cap must be positive")
	}
	if cfg.Worker.MaxAttempts < 0 {
		return fmt.Errorf("worker.max_attempts must not be negative")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q unknown: want debug|info|warn|error", cfg.Log.Level)
	}
	return nil
}
