// Package config holds the transfer engine's configuration. Values can
// be populated directly by a caller or loaded from a TOML file; the
// engine itself never touches argv or the environment.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/opd-ai/filewire/fault"
)

// Duration wraps time.Duration so TOML files can use values like
// "250ms" or "2s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config carries every knob the transfer engine consumes.
type Config struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	ChunkSize      int      `toml:"chunk_size"`
	MaxRetries     int      `toml:"max_retries"`
	RetryDelay     Duration `toml:"retry_delay"`
	SimulateErrors bool     `toml:"simulate_errors"`
	ErrorRate      float64  `toml:"error_rate"`
	Reorder        bool     `toml:"reorder"`
	Seed           int64    `toml:"seed"`
}

// Default returns the configuration used when a field is absent from
// the loaded file.
func Default() Config {
	return Config{
		Host:       "localhost",
		Port:       9999,
		ChunkSize:  1024,
		MaxRetries: 3,
		RetryDelay: Duration(100 * time.Millisecond),
		ErrorRate:  0.1,
	}
}

// Load reads a TOML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the engine cannot operate with.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	// Port 0 lets the listener pick an ephemeral port.
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d outside [0, 65535]", c.Port)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", c.MaxRetries)
	}
	if c.ErrorRate < 0 || c.ErrorRate > 1 {
		return fmt.Errorf("error_rate %v outside [0, 1]", c.ErrorRate)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must be non-negative")
	}
	return nil
}

// Addr returns the host:port dial/listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// FaultConfig maps the error simulation knobs onto a fault injector
// configuration. The per-chunk error budget is split evenly between
// packet loss and payload corruption, mirroring the even coin flip the
// error simulation models.
func (c Config) FaultConfig() fault.Config {
	return fault.Config{
		DropProbability:    c.ErrorRate / 2,
		CorruptProbability: c.ErrorRate / 2,
		Reorder:            c.Reorder,
		Seed:               c.Seed,
	}
}
