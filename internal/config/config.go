package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Ledger backends selectable through ledger.backend.
const (
	LedgerMemory   = "memory"
	LedgerRedis    = "redis"
	LedgerPostgres = "postgres"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Grading struct {
		Cost int64 `yaml:"cost"`
	} `yaml:"grading"`
	Scoring struct {
		Scale         float64 `yaml:"scale"`
		Normalization string  `yaml:"normalization"`
	} `yaml:"scoring"`
	Ledger struct {
		Backend        string           `yaml:"backend"`
		InitialBalance map[string]int64 `yaml:"initial_balances"`
	} `yaml:"ledger"`
	Events struct {
		AMQPURL  string `yaml:"amqp_url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"events"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

// Load reads YAML config from path. A missing file yields the zero config so
// the service can start on in-memory backends.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LedgerBackend picks the configured ledger, falling back to the most durable
// store that is configured.
func (c Config) LedgerBackend() string {
	switch c.Ledger.Backend {
	case LedgerMemory, LedgerRedis, LedgerPostgres:
		return c.Ledger.Backend
	}
	if c.Postgres.URL != "" {
		return LedgerPostgres
	}
	if c.Redis.Addr != "" {
		return LedgerRedis
	}
	return LedgerMemory
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
