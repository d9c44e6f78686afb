package config

import (
	"testing"
)

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("PAPERGEN_TEST_STRING", "custom")

	tests := []struct {
		name       string
		key        string
		defaultVal string
		want       string
	}{
		{"set variable", "PAPERGEN_TEST_STRING", "fallback", "custom"},
		{"unset variable", "PAPERGEN_TEST_MISSING", "fallback", "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getEnvOrDefault(tt.key, tt.defaultVal); got != tt.want {
				t.Errorf("getEnvOrDefault(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestGetEnvAsIntOrDefault(t *testing.T) {
	t.Setenv("PAPERGEN_TEST_INT", "42")
	t.Setenv("PAPERGEN_TEST_NOT_INT", "forty-two")

	tests := []struct {
		name       string
		key        string
		defaultVal int
		want       int
	}{
		{"set integer", "PAPERGEN_TEST_INT", 7, 42},
		{"unset variable", "PAPERGEN_TEST_INT_MISSING", 7, 7},
		{"non-numeric value", "PAPERGEN_TEST_NOT_INT", 7, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getEnvAsIntOrDefault(tt.key, tt.defaultVal); got != tt.want {
				t.Errorf("getEnvAsIntOrDefault(%q) = %d, want %d", tt.key, got, tt.want)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port == "" {
		t.Error("Port must have a default")
	}
	if cfg.GeminiModel == "" {
		t.Error("GeminiModel must have a default")
	}
	if cfg.TargetCount <= 0 {
		t.Errorf("TargetCount = %d, want positive default", cfg.TargetCount)
	}
	if cfg.BasicPercent+cfg.IntermediatePercent >= 100 {
		t.Errorf("difficulty percentages leave no room for advanced: %d + %d",
			cfg.BasicPercent, cfg.IntermediatePercent)
	}
	if cfg.WorkerCount <= 0 {
		t.Errorf("WorkerCount = %d, want positive default", cfg.WorkerCount)
	}
}
