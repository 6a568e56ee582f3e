package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/example/kanband/internal/broadcast"
	"github.com/example/kanband/internal/ledger"
	"github.com/example/kanband/internal/msgstore"
)

// Approval policies for agent-issued approval requests.
const (
	ApprovalApproved = "approved"
	ApprovalDenied   = "denied"
)

// Config is the kanband configuration file.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Store    StoreConfig    `toml:"store"`
	Outbox   OutboxConfig   `toml:"outbox"`
	Log      LogConfig      `toml:"log"`
	Agent    AgentConfig    `toml:"agent"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LedgerConfig bounds both the raw and the normalized ledger of every store.
type LedgerConfig struct {
	MaxEntries int `toml:"max_entries"`
	MaxBytes   int `toml:"max_bytes"`
}

type StoreConfig struct {
	HistoryMaxBytes   int `toml:"history_max_bytes"`
	BroadcastCapacity int `toml:"broadcast_capacity"`
}

type OutboxConfig struct {
	PollInterval  Duration `toml:"poll_interval"`
	BatchSize     int      `toml:"batch_size"`
	RetentionDays int      `toml:"retention_days"`
}

type LogConfig struct {
	Level     string `toml:"level"`
	NoColor   bool   `toml:"no_color"`
	Timestamp bool   `toml:"timestamp"`
}

// AgentConfig describes how to launch the app-server agent.
type AgentConfig struct {
	Command  string   `toml:"command"`
	Args     []string `toml:"args"`
	Model    string   `toml:"model"`
	Approval string   `toml:"approval"`
}

// Duration is a time.Duration that reads and writes as "250ms" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration. The database lives under
// ~/.kanband when the home directory is known.
func Default() Config {
	dbPath := "kanband.db"
	if dir, err := HomeDir(); err == nil {
		dbPath = filepath.Join(dir, "kanband.db")
	}
	return Config{
		Database: DatabaseConfig{Path: dbPath},
		Ledger: LedgerConfig{
			MaxEntries: ledger.DefaultMaxEntries,
			MaxBytes:   ledger.DefaultMaxBytes,
		},
		Store: StoreConfig{
			HistoryMaxBytes:   msgstore.DefaultHistoryMaxBytes,
			BroadcastCapacity: broadcast.DefaultCapacity,
		},
		Outbox: OutboxConfig{
			PollInterval:  Duration{250 * time.Millisecond},
			BatchSize:     100,
			RetentionDays: 7,
		},
		Log: LogConfig{Level: "info"},
		Agent: AgentConfig{
			Command:  "codex",
			Args:     []string{"app-server"},
			Approval: ApprovalDenied,
		},
	}
}

// HomeDir returns ~/.kanband.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".kanband"), nil
}

// DefaultPath returns ~/.kanband/config.toml.
func DefaultPath() (string, error) {
	dir, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value. A missing file yields the defaults when allowMissing is
// set.
func Load(path string, allowMissing bool) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if allowMissing && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg to path, creating the parent directory.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate rejects values that cannot run. Ledger ceilings below one are
// raised to one by the ledger itself and are not errors.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path must not be empty")
	}
	if c.Outbox.PollInterval.Duration <= 0 {
		return fmt.Errorf("outbox.poll_interval must be positive, got %s", c.Outbox.PollInterval)
	}
	if c.Outbox.BatchSize < 1 {
		return fmt.Errorf("outbox.batch_size must be at least 1, got %d", c.Outbox.BatchSize)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	switch c.Agent.Approval {
	case ApprovalApproved, ApprovalDenied:
	default:
		return fmt.Errorf("agent.approval must be %q or %q, got %q", ApprovalApproved, ApprovalDenied, c.Agent.Approval)
	}
	return nil
}

// MessageStore returns the settings shared by every message store.
func (c Config) MessageStore() msgstore.Config {
	limits := ledger.Limits{MaxEntries: c.Ledger.MaxEntries, MaxBytes: c.Ledger.MaxBytes}
	return msgstore.Config{
		RawLimits:         limits,
		NormalizedLimits:  limits,
		HistoryMaxBytes:   c.Store.HistoryMaxBytes,
		BroadcastCapacity: c.Store.BroadcastCapacity,
	}
}
