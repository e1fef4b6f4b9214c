// config/config.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package config

import (
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/mmp/bkar/press"
	"github.com/mmp/bkar/walk"
)

// Config is the daemon's task file: a log level and the list of backup
// tasks to register with the scheduler at startup.
type Config struct {
	LogLevel string       `koanf:"log_level"`
	Tasks    []TaskConfig `koanf:"tasks"`
}

// TaskConfig describes one scheduler task.
type TaskConfig struct {
	// "scheduled" or "realtime".
	Kind        string       `koanf:"kind"`
	Source      string       `koanf:"source"`
	Dest        string       `koanf:"dest"`
	Prefix      string       `koanf:"prefix"`
	IntervalSec int          `koanf:"interval_sec"`
	MaxBackups  int          `koanf:"max_backups"`
	Password    string       `koanf:"password"`
	Algorithm   string       `koanf:"algorithm"`
	Filter      FilterConfig `koanf:"filter"`
}

// FilterConfig mirrors walk.Filter with file-friendly field types.
type FilterConfig struct {
	Enabled      bool     `koanf:"enabled"`
	NameKeywords []string `koanf:"name_keywords"`
	NameRegex    string   `koanf:"name_regex"`
	Suffixes     []string `koanf:"suffixes"`
	MinSize      uint64   `koanf:"min_size"`
	MaxSize      uint64   `koanf:"max_size"`
	// RFC 3339 timestamps; empty means unbounded.
	ModifiedAfter  string `koanf:"modified_after"`
	ModifiedBefore string `koanf:"modified_before"`
	Owner          string `koanf:"owner"`
}

// Load reads and validates a YAML task file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	for i := range cfg.Tasks {
		if err := cfg.Tasks[i].validate(); err != nil {
			return nil, fmt.Errorf("%s: task %d: %w", path, i, err)
		}
	}
	return &cfg, nil
}

func (tc *TaskConfig) validate() error {
	switch tc.Kind {
	case "scheduled":
		if tc.IntervalSec <= 0 {
			return fmt.Errorf("scheduled task needs interval_sec > 0")
		}
	case "realtime":
	default:
		return fmt.Errorf("kind must be \"scheduled\" or \"realtime\", got %q", tc.Kind)
	}
	if tc.Source == "" || tc.Dest == "" {
		return fmt.Errorf("source and dest are required")
	}
	if tc.Prefix == "" {
		return fmt.Errorf("prefix is required")
	}
	if _, err := press.ParseAlgorithm(tc.Algorithm); err != nil {
		return err
	}
	if _, err := tc.Filter.ToFilter(); err != nil {
		return err
	}
	return nil
}

// AlgorithmCode resolves the configured algorithm name.
func (tc *TaskConfig) AlgorithmCode() (press.Algorithm, error) {
	return press.ParseAlgorithm(tc.Algorithm)
}

// ToFilter converts the file form into the walk form, parsing timestamps.
func (fc *FilterConfig) ToFilter() (walk.Filter, error) {
	f := walk.Filter{
		Enabled:      fc.Enabled,
		NameKeywords: fc.NameKeywords,
		NameRegex:    fc.NameRegex,
		Suffixes:     fc.Suffixes,
		MinSize:      fc.MinSize,
		MaxSize:      fc.MaxSize,
		UserName:     fc.Owner,
	}
	if fc.ModifiedAfter != "" {
		t, err := time.Parse(time.RFC3339, fc.ModifiedAfter)
		if err != nil {
			return f, fmt.Errorf("modified_after: %w", err)
		}
		f.StartTime = t.Unix()
	}
	if fc.ModifiedBefore != "" {
		t, err := time.Parse(time.RFC3339, fc.ModifiedBefore)
		if err != nil {
			return f, fmt.Errorf("modified_before: %w", err)
		}
		f.EndTime = t.Unix()
	}
	return f, nil
}
