package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	DefaultStorePath         = "dht-stats.json"
	DefaultNodeAddr          = "http://127.0.0.1:5959"
	DefaultTargetPopulation  = 10
	DefaultPayloadMinB       = 1
	DefaultPayloadMaxB       = 32000
	DefaultSettlePollSec     = 1
	DefaultSettleMaxAttempts = 300
	DefaultConcurrencyLimit  = 8
)

// DefaultIntervalsH is the discrete set of re-evaluation cadences, in hours,
// new probes draw from.
var DefaultIntervalsH = []int{1, 12, 24, 168, 672}

// DefaultSTUNServers are used by the doctor command when none are configured.
var DefaultSTUNServers = []string{
	"stun.l.google.com:19302",
	"stun1.l.google.com:19302",
}

// Config holds all prober settings.
type Config struct {
	// Store is a local file path or an http(s) snapshot URL.
	Store string `yaml:"store"`
	// NodeAddr is the base URL of the DHT node daemon API.
	NodeAddr string `yaml:"node_addr"`

	TargetPopulation int   `yaml:"target_population"`
	IntervalsH       []int `yaml:"evaluation_intervals_h"`
	PayloadMinB      int   `yaml:"payload_min_b"`
	PayloadMaxB      int   `yaml:"payload_max_b"`

	SettlePollSec     int `yaml:"settle_poll_sec"`
	SettleMaxAttempts int `yaml:"settle_max_attempts"`
	ConcurrencyLimit  int `yaml:"concurrency_limit"`

	// PurgeOnStart clears stale routes on the node daemon before a cycle.
	// Defaults to true.
	PurgeOnStart *bool `yaml:"purge_on_start"`

	STUNServers []string `yaml:"stun_servers"`
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate performs minimal validation for required fields.
func Validate(cfg Config) error {
	if cfg.Store == "" {
		return fmt.Errorf("store is required")
	}
	if cfg.NodeAddr == "" {
		return fmt.Errorf("node_addr is required")
	}
	if cfg.TargetPopulation < 0 {
		return fmt.Errorf("target_population must not be negative")
	}
	if len(cfg.IntervalsH) == 0 {
		return fmt.Errorf("evaluation_intervals_h must not be empty")
	}
	for _, h := range cfg.IntervalsH {
		if h <= 0 {
			return fmt.Errorf("evaluation_intervals_h entries must be positive, got %d", h)
		}
	}
	if cfg.PayloadMinB < 1 || cfg.PayloadMaxB < cfg.PayloadMinB {
		return fmt.Errorf("payload size range [%d, %d] is invalid", cfg.PayloadMinB, cfg.PayloadMaxB)
	}
	if cfg.SettlePollSec <= 0 || cfg.SettleMaxAttempts <= 0 {
		return fmt.Errorf("settle_poll_sec and settle_max_attempts must be positive")
	}
	if cfg.ConcurrencyLimit <= 0 {
		return fmt.Errorf("concurrency_limit must be positive")
	}
	return nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Store == "" {
		cfg.Store = DefaultStorePath
	}
	if cfg.NodeAddr == "" {
		cfg.NodeAddr = DefaultNodeAddr
	}
	if cfg.TargetPopulation == 0 {
		cfg.TargetPopulation = DefaultTargetPopulation
	}
	if len(cfg.IntervalsH) == 0 {
		cfg.IntervalsH = append([]int(nil), DefaultIntervalsH...)
	}
	if cfg.PayloadMinB == 0 {
		cfg.PayloadMinB = DefaultPayloadMinB
	}
	if cfg.PayloadMaxB == 0 {
		cfg.PayloadMaxB = DefaultPayloadMaxB
	}
	if cfg.SettlePollSec == 0 {
		cfg.SettlePollSec = DefaultSettlePollSec
	}
	if cfg.SettleMaxAttempts == 0 {
		cfg.SettleMaxAttempts = DefaultSettleMaxAttempts
	}
	if cfg.ConcurrencyLimit == 0 {
		cfg.ConcurrencyLimit = DefaultConcurrencyLimit
	}
	if cfg.PurgeOnStart == nil {
		yes := true
		cfg.PurgeOnStart = &yes
	}
	if len(cfg.STUNServers) == 0 {
		cfg.STUNServers = append([]string(nil), DefaultSTUNServers...)
	}
}
