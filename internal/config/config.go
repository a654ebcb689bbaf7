// Package config handles Dayflow configuration.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Config holds all configuration
type Config struct {
	// Paths
	DataDir string `json:"data_dir"`

	// Server
	Server ServerConfig `json:"server"`

	// Scheduling knobs for the meeting engine
	Scheduling SchedulingConfig `json:"scheduling"`

	// Sync controls calendar reconciliation
	Sync SyncConfig `json:"sync"`

	// Google OAuth client for the calendar provider
	Google GoogleConfig `json:"google"`
}

// ServerConfig for HTTP server
type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// SchedulingConfig tunes candidate generation and ranking
type SchedulingConfig struct {
	MaxCandidates int `json:"max_candidates"` // cap on generated windows per request
	TopN          int `json:"top_n"`          // slots persisted for confirmation
	WorkdayStart  int `json:"workday_start"`  // minutes from midnight
	WorkdayEnd    int `json:"workday_end"`
}

// SyncConfig controls the reconciliation passes
type SyncConfig struct {
	Interval     Duration `json:"interval"`      // between background passes
	CallTimeout  Duration `json:"call_timeout"`  // per provider call
	GracePeriod  Duration `json:"grace_period"`  // re-fetch window before last sync
	FutureWindow Duration `json:"future_window"` // how far ahead to fetch
}

// GoogleConfig for the Google Calendar provider
type GoogleConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURL  string `json:"redirect_url"`
}

// Duration wraps time.Duration so config files can say "30s" or "15m".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns default configuration
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		DataDir: filepath.Join(home, ".dayflow"),
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Scheduling: SchedulingConfig{
			MaxCandidates: 40,
			TopN:          10,
			WorkdayStart:  9 * 60,
			WorkdayEnd:    17 * 60,
		},
		Sync: SyncConfig{
			Interval:     Duration(15 * time.Minute),
			CallTimeout:  Duration(10 * time.Second),
			GracePeriod:  Duration(1 * time.Hour),
			FutureWindow: Duration(30 * 24 * time.Hour),
		},
		Google: GoogleConfig{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  "http://localhost:8080/api/v1/oauth/google/callback",
		},
	}
}

// Load loads config from file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(cfg.DataDir, "config.json")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Env always wins for credentials
	if id := os.Getenv("GOOGLE_CLIENT_ID"); id != "" {
		cfg.Google.ClientID = id
	}
	if secret := os.Getenv("GOOGLE_CLIENT_SECRET"); secret != "" {
		cfg.Google.ClientSecret = secret
	}

	return cfg, nil
}

// Save saves config to file
func (c *Config) Save(path string) error {
	if path == "" {
		path = filepath.Join(c.DataDir, "config.json")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	// Credentials never land on disk
	safeCfg := *c
	safeCfg.Google.ClientSecret = ""

	data, err := json.MarshalIndent(safeCfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
