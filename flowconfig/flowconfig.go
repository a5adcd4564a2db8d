// Package flowconfig is a minimal TOML-based struct decoder for
// construction-time tuning knobs (max_in_flight, batch timeouts). It is
// deliberately not a CLI: callers read a Config and pass its fields to
// the regular constructors themselves.
package flowconfig

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the tuning knobs a caller may want to externalize into a
// file instead of hard-coding at each constructor call site.
type Config struct {
	Concurrent ConcurrentConfig `toml:"concurrent"`
	Batch      BatchConfig      `toml:"batch"`
}

type ConcurrentConfig struct {
	MaxInFlight int `toml:"max_in_flight"`
}

type BatchConfig struct {
	MaxEvents  int `toml:"max_events"`
	TimeoutSecs int `toml:"timeout_secs"`
}

// Timeout returns the configured batch timeout as a time.Duration.
func (b BatchConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSecs) * time.Second
}

// Default returns a Config with the same defaults the constructors fall
// back to (max_in_flight 8, no batch timeout).
func Default() Config {
	return Config{Concurrent: ConcurrentConfig{MaxInFlight: 8}}
}

// Load reads path (TOML) over Default(), returning the defaults
// unmodified if path does not exist.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
