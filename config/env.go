package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvHome             = "FGP_HOME"
	EnvApp              = "FGP_APP"
	EnvService          = "FGP_SERVICE"
	EnvSocket           = "FGP_SOCKET"
	EnvDialTimeout      = "FGP_DIAL_TIMEOUT"
	EnvReadTimeout      = "FGP_READ_TIMEOUT"
	EnvWriteTimeout     = "FGP_WRITE_TIMEOUT"
	EnvMaxResponseBytes = "FGP_MAX_RESPONSE_BYTES"
)

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// envDuration accepts Go duration strings ("750ms") or bare integers as seconds.
func envDuration(key string) (time.Duration, bool, error) {
	raw := envString(key)
	if raw == "" {
		return 0, false, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, true, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("config: %s=%q: %w", key, raw, err)
	}
	return d, true, nil
}

// ApplyEnvOverrides overlays FGP_* environment variables onto cfg.
func ApplyEnvOverrides(cfg *Client) error {
	if v := envString(EnvHome); v != "" {
		cfg.Home = v
	}
	if v := envString(EnvApp); v != "" {
		cfg.App = v
	}
	if v := envString(EnvService); v != "" {
		cfg.Service = v
	}
	if v := envString(EnvSocket); v != "" {
		cfg.Socket = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{EnvDialTimeout, &cfg.DialTimeout},
		{EnvReadTimeout, &cfg.ReadTimeout},
		{EnvWriteTimeout, &cfg.WriteTimeout},
	}
	for _, d := range durations {
		v, ok, err := envDuration(d.key)
		if err != nil {
			return err
		}
		if ok {
			*d.dst = v
		}
	}

	if raw := envString(EnvMaxResponseBytes); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return fmt.Errorf("config: %s=%q is not a non-negative integer", EnvMaxResponseBytes, raw)
		}
		cfg.MaxResponseBytes = n
	}
	return nil
}
