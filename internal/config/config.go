package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"seatrelay/internal/models"
)

type Config struct {
	Identity struct {
		SecretKey string `yaml:"secret_key"`
		Pubkey    string `yaml:"pubkey"`
	} `yaml:"identity"`

	Relays []string `yaml:"relays"`

	RelayPool struct {
		PublishRate  float64 `yaml:"publish_rate"`
		PublishBurst int     `yaml:"publish_burst"`
	} `yaml:"relay_pool"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Address       string `yaml:"address"`
		Password      string `yaml:"password"`
		DB            int    `yaml:"db"`
		BillingPrefix string `yaml:"billing_prefix"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	AutoAccept models.AutoAcceptConfig `yaml:"auto_accept"`

	OpeningHours []models.OpeningHoursSpec `yaml:"opening_hours"`

	Notify struct {
		TelegramBotToken string `yaml:"telegram_bot_token"`
		ChatID           int64  `yaml:"chat_id"`
	} `yaml:"notify"`

	Export struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"export"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Identity.SecretKey == "" {
		return nil, fmt.Errorf("identity.secret_key is required")
	}
	if cfg.Identity.Pubkey == "" {
		return nil, fmt.Errorf("identity.pubkey is required")
	}
	if len(cfg.Relays) == 0 {
		return nil, fmt.Errorf("at least one relay is required")
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/seatrelay.db"
	}
	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	if cfg.AutoAccept.MinPartySize <= 0 {
		cfg.AutoAccept.MinPartySize = 1
	}
	if cfg.AutoAccept.MaxPartySize <= 0 {
		cfg.AutoAccept.MaxPartySize = 8
	}
	if cfg.AutoAccept.MaxSimultaneousReservations <= 0 {
		cfg.AutoAccept.MaxSimultaneousReservations = 1
	}
	if cfg.AutoAccept.DefaultDurationMinutes <= 0 {
		cfg.AutoAccept.DefaultDurationMinutes = 90
	}
	if cfg.Export.Path == "" {
		cfg.Export.Path = "exports"
	}

	return &cfg, nil
}
