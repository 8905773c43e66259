// Package config loads the TOML configuration of the ftptree command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/gonzalop/ftptree"
	"github.com/gonzalop/ftptree/ftp"
)

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config is the top level of the file.
type Config struct {
	Address  string `toml:"address"`
	User     string `toml:"user"`
	Password string `toml:"password"`

	Timeout     Duration `toml:"timeout"`
	IdleTimeout Duration `toml:"idle_timeout"`

	ActiveMode  bool `toml:"active_mode"`
	DisableEPSV bool `toml:"disable_epsv"`

	// CommandsPerSecond paces the control channel. Zero means unlimited.
	CommandsPerSecond float64 `toml:"commands_per_second"`

	// Recursion is "auto", "server" or "client".
	Recursion string `toml:"recursion"`

	// Sessions is the number of connections du spreads SIZE queries over.
	Sessions int `toml:"sessions"`

	LogLevel string `toml:"log_level"`

	Watch []Watch `toml:"watch"`
}

// Watch is a directory whose size and entry count are logged on a cron
// schedule by "ftptree watch".
type Watch struct {
	Name string `toml:"name"`
	Cron string `toml:"cron"`
	Path string `toml:"path"`
}

// Default returns the configuration used for settings the file omits.
func Default() *Config {
	return &Config{
		User:      "anonymous",
		Password:  "anonymous@",
		Timeout:   Duration(30 * time.Second),
		Recursion: "auto",
		Sessions:  1,
		LogLevel:  "info",
	}
}

// Load reads path on top of Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a TOML document on top of Default and validates it.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("config: line %d column %d: %w", row, col, err)
		}
		var serr *toml.StrictMissingError
		if errors.As(err, &serr) {
			return nil, fmt.Errorf("config: %w\n%s", err, serr.String())
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if c.Address == "" {
		result = multierror.Append(result, errors.New("address is required"))
	}
	if c.Timeout < 0 || c.IdleTimeout < 0 {
		result = multierror.Append(result, errors.New("timeouts must not be negative"))
	}
	if c.CommandsPerSecond < 0 {
		result = multierror.Append(result, errors.New("commands_per_second must not be negative"))
	}
	if _, ok := ftptree.ParseRecursion(c.Recursion); !ok {
		result = multierror.Append(result, fmt.Errorf("recursion %q: want auto, server or client", c.Recursion))
	}
	if c.Sessions < 1 {
		result = multierror.Append(result, fmt.Errorf("sessions must be at least 1, got %d", c.Sessions))
	}
	if _, err := c.Level(); err != nil {
		result = multierror.Append(result, err)
	}

	names := make(map[string]bool)
	for i, w := range c.Watch {
		if w.Name == "" {
			result = multierror.Append(result, fmt.Errorf("watch %d: name is required", i))
		} else if names[w.Name] {
			result = multierror.Append(result, fmt.Errorf("watch %q: duplicate name", w.Name))
		}
		names[w.Name] = true
		if w.Path == "" {
			result = multierror.Append(result, fmt.Errorf("watch %q: path is required", w.Name))
		}
		if _, err := cron.ParseStandard(w.Cron); err != nil {
			result = multierror.Append(result, fmt.Errorf("watch %q: cron %q: %w", w.Name, w.Cron, err))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ClientOptions translates the connection settings into ftp options.
func (c *Config) ClientOptions(logger *slog.Logger) []ftp.Option {
	opts := []ftp.Option{
		ftp.WithTimeout(time.Duration(c.Timeout)),
		ftp.WithLogger(logger),
	}
	if c.IdleTimeout > 0 {
		opts = append(opts, ftp.WithIdleTimeout(time.Duration(c.IdleTimeout)))
	}
	if c.ActiveMode {
		opts = append(opts, ftp.WithActiveMode())
	}
	if c.DisableEPSV {
		opts = append(opts, ftp.WithDisableEPSV())
	}
	if c.CommandsPerSecond > 0 {
		opts = append(opts, ftp.WithCommandRate(c.CommandsPerSecond))
	}
	return opts
}

// RecursionMode returns the parsed Recursion setting.
func (c *Config) RecursionMode() ftptree.Recursion {
	r, _ := ftptree.ParseRecursion(c.Recursion)
	return r
}

// Level maps log_level to a slog level.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", c.LogLevel, err)
	}
	return l, nil
}
