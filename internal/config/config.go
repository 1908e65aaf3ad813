package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr    string `yaml:"addr"`
	DataDir string `yaml:"data_dir"`
	DBPath  string `yaml:"db_path"`

	Trade TradeConfig `yaml:"trade"`
}

type TradeConfig struct {
	Allow bool `yaml:"allow"`
	// IdleTimeoutSecs reaps sessions left untouched this long; 0 disables.
	IdleTimeoutSecs int `yaml:"idle_timeout_secs"`
	MaxOfferSlots   int `yaml:"max_offer_slots"`

	RequestWindowSecs int `yaml:"request_window_secs"`
	RequestMax        int `yaml:"request_max"`
}

// Load reads the server config. An empty path yields defaults; file values
// override defaults field by field.
func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("server.yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("server.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Addr:    ":8080",
		DataDir: "./data",
		DBPath:  "./data/players.db",
		Trade: TradeConfig{
			Allow:             true,
			IdleTimeoutSecs:   120,
			MaxOfferSlots:     12,
			RequestWindowSecs: 60,
			RequestMax:        10,
		},
	}
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./data"
	}
	if strings.TrimSpace(c.DBPath) == "" {
		c.DBPath = "./data/players.db"
	}
	if c.Trade.MaxOfferSlots <= 0 {
		c.Trade.MaxOfferSlots = 12
	}
	if c.Trade.RequestWindowSecs <= 0 {
		c.Trade.RequestWindowSecs = 60
	}
	if c.Trade.RequestMax <= 0 {
		c.Trade.RequestMax = 10
	}
}

func (c *Config) Validate() error {
	if c.Trade.IdleTimeoutSecs < 0 {
		return fmt.Errorf("trade.idle_timeout_secs must not be negative")
	}
	return nil
}
