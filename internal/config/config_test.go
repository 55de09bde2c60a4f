package config

import (
	"testing"
	"time"

	"spotx/internal/money"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.LogLevel)
	}
	if money.String(cfg.CommissionRate) != "0.01500000" {
		t.Errorf("expected default commission rate 0.015, got %s", money.String(cfg.CommissionRate))
	}
	if cfg.MatchTimeout != 10*time.Second {
		t.Errorf("expected default match timeout 10s, got %v", cfg.MatchTimeout)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Errorf("expected no kafka brokers by default, got %v", cfg.KafkaBrokers)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("COMMISSION_RATE", "0.002")
	t.Setenv("MATCH_TIMEOUT", "3s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if money.String(cfg.CommissionRate) != "0.00200000" {
		t.Errorf("expected commission rate 0.002, got %s", money.String(cfg.CommissionRate))
	}
	if cfg.MatchTimeout != 3*time.Second {
		t.Errorf("expected match timeout 3s, got %v", cfg.MatchTimeout)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "k1:9092" || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("unexpected kafka brokers: %v", cfg.KafkaBrokers)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "BadPort", key: "PORT", value: "not-a-port"},
		{name: "BadLogLevel", key: "LOG_LEVEL", value: "verbose"},
		{name: "BadCommissionRate", key: "COMMISSION_RATE", value: "abc"},
		{name: "NegativeCommissionRate", key: "COMMISSION_RATE", value: "-0.01"},
		{name: "CommissionRateAboveOne", key: "COMMISSION_RATE", value: "1.5"},
		{name: "BadMatchTimeout", key: "MATCH_TIMEOUT", value: "ten seconds"},
		{name: "ZeroWorkers", key: "MATCH_WORKERS", value: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q, got none", tt.key, tt.value)
			}
		})
	}
}
