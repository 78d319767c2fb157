package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, k := range []string{"HTTP_ADDR", "LOG_LEVEL", "DATABASE_URL", "BCRYPT_COST", "REQUEST_TIMEOUT", "METRICS_ENABLED"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8000" || cfg.BcryptCost != 12 || !cfg.MetricsEnabled {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Timeout() != 15*time.Second {
		t.Fatalf("expected 15s timeout, got %v", cfg.Timeout())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("BCRYPT_COST", "10")
	t.Setenv("REQUEST_TIMEOUT", "2s")
	t.Setenv("METRICS_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:9000" || cfg.BcryptCost != 10 || cfg.MetricsEnabled {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.Timeout() != 2*time.Second {
		t.Fatalf("expected 2s timeout, got %v", cfg.Timeout())
	}
}

func TestLoad_Rejects(t *testing.T) {
	t.Chdir(t.TempDir())
	cases := map[string]map[string]string{
		"cost too low": {"BCRYPT_COST": "3"},
		"bad timeout":  {"REQUEST_TIMEOUT": "soon"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
