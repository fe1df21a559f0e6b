package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("expected port 8080, got %s", cfg.Port)
	}
	if cfg.HoldTTL != 15*time.Minute {
		t.Fatalf("expected hold ttl 15m, got %s", cfg.HoldTTL)
	}
	if cfg.SweepInterval != time.Minute {
		t.Fatalf("expected sweep interval 1m, got %s", cfg.SweepInterval)
	}
	if cfg.KafkaTopic != "hold-events" {
		t.Fatalf("expected topic hold-events, got %s", cfg.KafkaTopic)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("expected 2 default origins, got %v", cfg.CORSOrigins)
	}
	if len(cfg.KafkaBrokers) != 0 || cfg.RedisAddr != "" {
		t.Fatalf("expected cache and events disabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("HOLD_TTL", "7m")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CONFIRM_ATTEMPTS", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" || cfg.HoldTTL != 7*time.Minute || cfg.ConfirmAttempts != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{name: "bad duration", key: "SWEEP_INTERVAL", val: "often", want: "parse env:"},
		{name: "zero interval", key: "SWEEP_INTERVAL", val: "0s", want: "SWEEP_INTERVAL"},
		{name: "inverted bounds", key: "HOLD_TTL_MIN", val: "3h", want: "HOLD_TTL_MIN"},
		{name: "no attempts", key: "CONFIRM_ATTEMPTS", val: "0", want: "CONFIRM_ATTEMPTS"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestParseEnvFile(t *testing.T) {
	t.Setenv("HOLDS_PRESET", "kept")
	// Registered with t.Setenv so the values parseEnvFile writes are restored.
	for _, key := range []string{"HOLDS_PLAIN", "HOLDS_QUOTED", "HOLDS_EXPORTED", "HOLDS_SINGLE"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	input := "\ufeff# comment\n" +
		"HOLDS_PLAIN=one\n" +
		"HOLDS_QUOTED=\"two words\"\n" +
		"export HOLDS_EXPORTED=three\n" +
		"HOLDS_SINGLE='four'\n" +
		"HOLDS_PRESET=overwritten\n" +
		"not a pair\n" +
		"=novalue\n"

	if err := parseEnvFile(zerolog.Nop(), strings.NewReader(input)); err != nil {
		t.Fatalf("parse: %v", err)
	}

	want := map[string]string{
		"HOLDS_PLAIN":    "one",
		"HOLDS_QUOTED":   "two words",
		"HOLDS_EXPORTED": "three",
		"HOLDS_SINGLE":   "four",
		"HOLDS_PRESET":   "kept",
	}
	for key, val := range want {
		if got := os.Getenv(key); got != val {
			t.Fatalf("%s: expected %q, got %q", key, val, got)
		}
	}
}
