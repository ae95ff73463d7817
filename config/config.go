package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the bot. Secrets may be supplied via
// environment variables (BOT_TOKEN, CLORE_API_TOKEN), which override the
// file values.
type Config struct {
	Telegram struct {
		Token string `yaml:"token"`
	} `yaml:"telegram"`

	Clore struct {
		URL   string `yaml:"url"`
		Token string `yaml:"token"`
	} `yaml:"clore"`

	WhatToMine struct {
		URL    string `yaml:"url"`
		TTLSec int    `yaml:"ttl_sec"`
	} `yaml:"whattomine"`

	Monitor struct {
		CheckIntervalSec int `yaml:"check_interval_sec"`
		PageSize         int `yaml:"page_size"`
	} `yaml:"monitor"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
}

func defaults() *Config {
	var cfg Config
	cfg.Clore.URL = "https://api.clore.ai/v1/marketplace"
	cfg.WhatToMine.URL = "https://whattomine.com/coins.json"
	cfg.WhatToMine.TTLSec = 300
	cfg.Monitor.CheckIntervalSec = 60
	cfg.Monitor.PageSize = 20
	cfg.Database.Path = "clore-monitor.db"
	return &cfg
}

// Load reads the YAML config file, fills defaults for anything unset and
// applies environment overrides. A missing file is not an error: env
// variables alone are enough to run.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if v := os.Getenv("BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("CLORE_API_TOKEN"); v != "" {
		cfg.Clore.Token = v
	}

	if cfg.WhatToMine.TTLSec <= 0 {
		cfg.WhatToMine.TTLSec = 300
	}
	if cfg.Monitor.CheckIntervalSec <= 0 {
		cfg.Monitor.CheckIntervalSec = 60
	}
	if cfg.Monitor.PageSize <= 0 {
		cfg.Monitor.PageSize = 20
	}

	if cfg.Telegram.Token == "" {
		return nil, fmt.Errorf("telegram token not set (BOT_TOKEN env or telegram.token in %s)", path)
	}

	return cfg, nil
}

func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Monitor.CheckIntervalSec) * time.Second
}

func (c *Config) ReferenceTTL() time.Duration {
	return time.Duration(c.WhatToMine.TTLSec) * time.Second
}
