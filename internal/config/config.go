package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Backend struct {
		BaseURLs          []string `yaml:"base_urls"`
		TimeoutSeconds    int64    `yaml:"timeout_seconds"`
		FailoverThreshold int      `yaml:"failover_threshold"`
	} `yaml:"backend"`
	Mpesa struct {
		BaseURL        string `yaml:"base_url"`
		ShortCode      string `yaml:"short_code"`
		Passkey        string `yaml:"passkey"`
		MinAmount      int64  `yaml:"min_amount"`
		TimeoutSeconds int64  `yaml:"timeout_seconds"`
	} `yaml:"mpesa"`
	Checkout struct {
		PollIntervalSeconds int64 `yaml:"poll_interval_seconds"`
		PollMaxAttempts     int   `yaml:"poll_max_attempts"`
	} `yaml:"checkout"`
	Worker struct {
		IntervalSeconds      int64 `yaml:"interval_seconds"`
		MaxSessionAgeMinutes int   `yaml:"max_session_age_minutes"`
	} `yaml:"worker"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	if len(cfg.Backend.BaseURLs) == 0 {
		return nil, errors.New("backend.base_urls is required")
	}
	if cfg.Mpesa.BaseURL == "" || cfg.Mpesa.ShortCode == "" {
		return nil, errors.New("mpesa config is incomplete")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Backend.TimeoutSeconds <= 0 {
		cfg.Backend.TimeoutSeconds = 10
	}
	if cfg.Mpesa.TimeoutSeconds <= 0 {
		cfg.Mpesa.TimeoutSeconds = 10
	}
	if cfg.Mpesa.MinAmount <= 0 {
		cfg.Mpesa.MinAmount = 1
	}
	if cfg.Checkout.PollIntervalSeconds <= 0 {
		cfg.Checkout.PollIntervalSeconds = 5
	}
	if cfg.Checkout.PollMaxAttempts <= 0 {
		cfg.Checkout.PollMaxAttempts = 24
	}
	if cfg.Worker.IntervalSeconds <= 0 {
		cfg.Worker.IntervalSeconds = 60
	}
	if cfg.Worker.MaxSessionAgeMinutes <= 0 {
		cfg.Worker.MaxSessionAgeMinutes = 120
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("BACKEND_BASE_URLS"); v != "" {
		cfg.Backend.BaseURLs = splitCommaList(v)
	}
	if v := os.Getenv("BACKEND_TIMEOUT_SECONDS"); v != "" {
		cfg.Backend.TimeoutSeconds = atoi64Or(cfg.Backend.TimeoutSeconds, v)
	}
	if v := os.Getenv("BACKEND_FAILOVER_THRESHOLD"); v != "" {
		cfg.Backend.FailoverThreshold = atoiOr(cfg.Backend.FailoverThreshold, v)
	}
	if v := os.Getenv("MPESA_BASE_URL"); v != "" {
		cfg.Mpesa.BaseURL = v
	}
	if v := os.Getenv("MPESA_SHORT_CODE"); v != "" {
		cfg.Mpesa.ShortCode = v
	}
	if v := os.Getenv("MPESA_PASSKEY"); v != "" {
		cfg.Mpesa.Passkey = v
	}
	if v := os.Getenv("MPESA_MIN_AMOUNT"); v != "" {
		cfg.Mpesa.MinAmount = atoi64Or(cfg.Mpesa.MinAmount, v)
	}
	if v := os.Getenv("CHECKOUT_POLL_INTERVAL_SECONDS"); v != "" {
		cfg.Checkout.PollIntervalSeconds = atoi64Or(cfg.Checkout.PollIntervalSeconds, v)
	}
	if v := os.Getenv("CHECKOUT_POLL_MAX_ATTEMPTS"); v != "" {
		cfg.Checkout.PollMaxAttempts = atoiOr(cfg.Checkout.PollMaxAttempts, v)
	}
	if v := os.Getenv("WORKER_INTERVAL_SECONDS"); v != "" {
		cfg.Worker.IntervalSeconds = atoi64Or(cfg.Worker.IntervalSeconds, v)
	}
	if v := os.Getenv("WORKER_MAX_SESSION_AGE_MINUTES"); v != "" {
		cfg.Worker.MaxSessionAgeMinutes = atoiOr(cfg.Worker.MaxSessionAgeMinutes, v)
	}
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func atoi64Or(fallback int64, v string) int64 {
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
