package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSocketPathConvention(t *testing.T) {
	cfg := Client{Home: "/home/ada", App: "fgp", Service: "fly"}
	want := filepath.Join("/home/ada", ".fgp", "services", "fly", "daemon.sock")
	if got := cfg.SocketPath(); got != want {
		t.Fatalf("expect %s, got %s", want, got)
	}

	cfg.Socket = "/run/custom.sock"
	if got := cfg.SocketPath(); got != "/run/custom.sock" {
		t.Fatalf("expect explicit override, got %s", got)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.App != DefaultApp || cfg.Service != DefaultService {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DialTimeout != DefaultDialTimeout {
		t.Fatalf("expect bounded dial timeout, got %v", cfg.DialTimeout)
	}
	if cfg.ReadTimeout != 0 {
		t.Fatalf("expect no read timeout by default, got %v", cfg.ReadTimeout)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("home: " + dir + "\nservice: gmail\ndialTimeout: 750ms\nreadTimeout: 30s\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Service != "gmail" || cfg.App != DefaultApp {
		t.Fatalf("unexpected merge result: %+v", cfg)
	}
	if cfg.DialTimeout != 750*time.Millisecond || cfg.ReadTimeout != 30*time.Second {
		t.Fatalf("unexpected timeouts: dial=%v read=%v", cfg.DialTimeout, cfg.ReadTimeout)
	}
	if want := SocketPathFor(dir, "fgp", "gmail"); cfg.SocketPath() != want {
		t.Fatalf("expect %s, got %s", want, cfg.SocketPath())
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expect error for a missing explicit config file")
	}
}

func TestLoadImplicitMissingFile(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Service != DefaultService {
		t.Fatalf("expect defaults, got %+v", cfg)
	}
}

func TestEnvOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvHome, home)
	t.Setenv(EnvService, "github")
	t.Setenv(EnvDialTimeout, "2")
	t.Setenv(EnvReadTimeout, "1500ms")
	t.Setenv(EnvMaxResponseBytes, "4096")

	cfg := Default()
	if err := ApplyEnvOverrides(&cfg); err != nil {
		t.Fatalf("ApplyEnvOverrides failed: %v", err)
	}
	if cfg.Home != home || cfg.Service != "github" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.DialTimeout != 2*time.Second || cfg.ReadTimeout != 1500*time.Millisecond {
		t.Fatalf("unexpected timeouts: dial=%v read=%v", cfg.DialTimeout, cfg.ReadTimeout)
	}
	if cfg.MaxResponseBytes != 4096 {
		t.Fatalf("expect 4096, got %d", cfg.MaxResponseBytes)
	}
}

func TestEnvOverridesRejectsBadDuration(t *testing.T) {
	t.Setenv(EnvReadTimeout, "soon")
	cfg := Default()
	if err := ApplyEnvOverrides(&cfg); err == nil {
		t.Fatal("expect error for an unparsable duration")
	}
}

func TestValidate(t *testing.T) {
	if err := (Client{App: "fgp", Service: "fly"}).Validate(); err == nil {
		t.Fatal("expect error without home")
	}
	if err := (Client{Home: "/h", App: "fgp", Service: "a/b"}).Validate(); err == nil {
		t.Fatal("expect error for service containing a separator")
	}
	if err := (Client{Socket: "/tmp/x.sock"}).Validate(); err != nil {
		t.Fatalf("explicit socket should validate, got %v", err)
	}
}
