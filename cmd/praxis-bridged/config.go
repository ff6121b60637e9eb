package main

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// configSchema is the closed schema every config file must satisfy. Unknown
// fields are rejected at load time instead of being silently ignored.
const configSchema = `
listen?: string
origins?: [...string]
database?: string
assets?: string
packages?: [...string]
log_level?: "debug" | "info" | "warn" | "error"
`

// Config is the daemon configuration, loaded from a CUE file.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `json:"listen"`

	// Origins are the allowed CORS and WebSocket origins. Empty allows any
	// origin.
	Origins []string `json:"origins"`

	// Database is the SQLite file recording execution history. Empty
	// disables history.
	Database string `json:"database"`

	// Assets names a directory overriding the embedded asset bundle.
	Assets string `json:"assets"`

	// Packages are installed during bridge initialization.
	Packages []string `json:"packages"`

	LogLevel string `json:"log_level"`
}

// loadConfig reads and validates a CUE config file. An empty path yields the
// defaults.
func loadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := parseConfig(content, path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8090"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

func parseConfig(content []byte, path string, cfg *Config) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString("close({" + configSchema + "})")
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}

	value := ctx.CompileBytes(content, cue.Filename(path))
	if err := value.Err(); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if err := schema.Unify(value).Validate(); err != nil {
		return fmt.Errorf("validate %s: %w", path, err)
	}
	if err := value.Decode(cfg); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
