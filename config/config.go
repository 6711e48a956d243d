// Package config resolves where the daemon socket lives and how long a client waits on it.
//
// Values come from, in increasing precedence: built-in defaults, an optional YAML file, and
// FGP_* environment variables. The result is a plain value handed to the client constructor;
// nothing here is process-global.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultApp         = "fgp"
	DefaultService     = "fly"
	DefaultDialTimeout = 5 * time.Second
	SocketFileName     = "daemon.sock"
	defaultConfigFile  = "config.yaml"
)

// Client holds everything needed to reach one daemon service.
type Client struct {
	Home    string `yaml:"home"`    // user home; defaults to os.UserHomeDir()
	App     string `yaml:"app"`     // application namespace, the ".<app>" state dir
	Service string `yaml:"service"` // sub-service under <home>/.<app>/services/

	// Socket overrides the conventional path entirely when set.
	Socket string `yaml:"socket"`

	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`  // 0 = wait for the daemon indefinitely
	WriteTimeout time.Duration `yaml:"writeTimeout"` // 0 = no write deadline

	// MaxResponseBytes guards against runaway replies; 0 = unlimited.
	MaxResponseBytes int `yaml:"maxResponseBytes"`
}

// Default returns the conventional configuration for the fly service.
func Default() Client {
	home, _ := os.UserHomeDir()
	return Client{
		Home:        home,
		App:         DefaultApp,
		Service:     DefaultService,
		DialTimeout: DefaultDialTimeout,
	}
}

// ForService returns Default with a different service name.
func ForService(service string) Client {
	cfg := Default()
	cfg.Service = service
	return cfg
}

// SocketPath returns the explicit Socket override or <home>/.<app>/services/<service>/daemon.sock.
func (c Client) SocketPath() string {
	if c.Socket != "" {
		return c.Socket
	}
	return SocketPathFor(c.Home, c.App, c.Service)
}

// SocketPathFor builds the conventional socket path.
func SocketPathFor(home, app, service string) string {
	return filepath.Join(home, "."+app, "services", service, SocketFileName)
}

// StateDir is <home>/.<app>, where a per-user config file is looked up.
func (c Client) StateDir() string {
	return filepath.Join(c.Home, "."+c.App)
}

// Validate reports configuration that can never produce a usable socket path.
func (c Client) Validate() error {
	if c.Socket != "" {
		return nil
	}
	if c.Home == "" {
		return fmt.Errorf("config: home directory is not set")
	}
	if c.App == "" || c.Service == "" {
		return fmt.Errorf("config: app and service must be set")
	}
	if strings.ContainsRune(c.Service, filepath.Separator) {
		return fmt.Errorf("config: service %q must not contain a path separator", c.Service)
	}
	return nil
}

// Load builds a configuration from defaults, the YAML file at path (if any) and the environment.
//
// An empty path tries <home>/.fgp/config.yaml and silently skips it when absent; an explicit
// path that cannot be read or parsed is an error.
func Load(path string) (Client, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		// The lookup location follows FGP_HOME / FGP_APP when they are set.
		base := cfg
		_ = ApplyEnvOverrides(&base)
		path = filepath.Join(base.StateDir(), defaultConfigFile)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var parsed Client
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
		Merge(&cfg, parsed)
	case explicit || !os.IsNotExist(err):
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := ApplyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Merge copies every non-zero field of src into dst.
func Merge(dst *Client, src Client) {
	if src.Home != "" {
		dst.Home = src.Home
	}
	if src.App != "" {
		dst.App = src.App
	}
	if src.Service != "" {
		dst.Service = src.Service
	}
	if src.Socket != "" {
		dst.Socket = src.Socket
	}
	if src.DialTimeout != 0 {
		dst.DialTimeout = src.DialTimeout
	}
	if src.ReadTimeout != 0 {
		dst.ReadTimeout = src.ReadTimeout
	}
	if src.WriteTimeout != 0 {
		dst.WriteTimeout = src.WriteTimeout
	}
	if src.MaxResponseBytes != 0 {
		dst.MaxResponseBytes = src.MaxResponseBytes
	}
}
