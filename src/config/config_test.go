package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vsnap/src/config"
	"vsnap/src/version"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "vsnap.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(config.EnvFile, "")
	cfg, err := config.Load(config.Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Image != version.DefaultImage() {
		t.Errorf("image = %q, want %q", cfg.Image, version.DefaultImage())
	}
	if cfg.List.Concurrency != 4 || cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.DockerHost() != "" {
		t.Errorf("docker host = %q, want empty", cfg.DockerHost())
	}
}

func TestLoad_Priority(t *testing.T) {
	path := writeConfig(t, `
image: registry.local/vsnap-runner:dev
docker:
  host: unix:///run/user/1000/docker.sock
list:
  concurrency: 2
log:
  level: debug
`)
	t.Setenv("VSNAP_LIST_CONCURRENCY", "8")
	t.Setenv("VSNAP_LOG_FORMAT", "json")

	cfg, err := config.Load(config.Options{
		File:      path,
		Overrides: map[string]any{"log.level": "warn"},
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Image != "registry.local/vsnap-runner:dev" {
		t.Errorf("image from file = %q", cfg.Image)
	}
	if cfg.List.Concurrency != 8 {
		t.Errorf("env should override file: concurrency = %d", cfg.List.Concurrency)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("log.format = %q, want json", cfg.Log.Format)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("flag should override file: level = %q", cfg.Log.Level)
	}
	if got := cfg.DockerHost(); got != "unix:///run/user/1000/docker.sock" {
		t.Errorf("docker host = %q", got)
	}
}

func TestLoad_FileFromEnv(t *testing.T) {
	path := writeConfig(t, "image: from-env-file:1\n")
	t.Setenv(config.EnvFile, path)
	cfg, err := config.Load(config.Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Image != "from-env-file:1" {
		t.Errorf("image = %q", cfg.Image)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(config.Options{File: "/nonexistent/vsnap.yaml"}); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	cfg := config.Defaults()
	cfg.Image = ""
	cfg.List.Concurrency = 0
	cfg.Docker.Host = "ftp://nope"
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"image", "list.concurrency", "docker.host", "log.level", "log.format"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
	if err := config.Defaults().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}
