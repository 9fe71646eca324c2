// Package config defines tessera's settings and loads them from built-in
// defaults, a TOML or YAML file, and TESSERA_* environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/tessera/internal/config/loader"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "TESSERA_"

// Config holds all settings.
type Config struct {
	Buffer Buffer `toml:"buffer" yaml:"buffer"`
	Bridge Bridge `toml:"bridge" yaml:"bridge"`
	Editor Editor `toml:"editor" yaml:"editor"`
	Log    Log    `toml:"log" yaml:"log"`
	LSP    LSP    `toml:"lsp" yaml:"lsp"`
}

// Buffer configures every open buffer.
type Buffer struct {
	ChunkSize      int   `toml:"chunk_size" yaml:"chunk_size"`
	CacheBytes     int64 `toml:"cache_bytes" yaml:"cache_bytes"`
	CacheBlock     int   `toml:"cache_block" yaml:"cache_block"`
	MaxUndo        int   `toml:"max_undo" yaml:"max_undo"`
	MaxGap         int64 `toml:"max_gap" yaml:"max_gap"`
	IteratorWindow int   `toml:"iterator_window" yaml:"iterator_window"`
}

// Bridge sizes the worker channels.
type Bridge struct {
	LSPQueue       int      `toml:"lsp_queue" yaml:"lsp_queue"`
	FileQueue      int      `toml:"file_queue" yaml:"file_queue"`
	WatchQueue     int      `toml:"watch_queue" yaml:"watch_queue"`
	Workers        int      `toml:"workers" yaml:"workers"`
	RequestTimeout Duration `toml:"request_timeout" yaml:"request_timeout"`
	DrainBudget    int      `toml:"drain_budget" yaml:"drain_budget"`
}

// Editor configures the control loop.
type Editor struct {
	FPS        int      `toml:"fps" yaml:"fps"`
	TabWidth   int      `toml:"tab_width" yaml:"tab_width"`
	GCInterval Duration `toml:"gc_interval" yaml:"gc_interval"`
}

// Log configures logging.
type Log struct {
	Level string `toml:"level" yaml:"level"`
	File  string `toml:"file" yaml:"file"`
}

// LSP configures language servers by file extension, without the dot.
type LSP struct {
	Servers map[string]Server `toml:"servers" yaml:"servers"`
}

// Server describes how to start one language server.
type Server struct {
	Command    string   `toml:"command" yaml:"command"`
	Args       []string `toml:"args" yaml:"args"`
	LanguageID string   `toml:"language_id" yaml:"language_id"`
}

// Duration is a time.Duration written as a string such as "2s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Buffer: Buffer{
			ChunkSize:      4096,
			CacheBytes:     8 << 20,
			CacheBlock:     4096,
			MaxUndo:        1000,
			MaxGap:         0,
			IteratorWindow: 4096,
		},
		Bridge: Bridge{
			LSPQueue:       64,
			FileQueue:      16,
			WatchQueue:     16,
			Workers:        4,
			RequestTimeout: Duration(5 * time.Second),
			DrainBudget:    256,
		},
		Editor: Editor{
			FPS:        60,
			TabWidth:   4,
			GCInterval: Duration(30 * time.Second),
		},
		Log: Log{
			Level: "info",
		},
		LSP: LSP{
			Servers: map[string]Server{
				"go": {Command: "gopls", LanguageID: "go"},
			},
		},
	}
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	positive := func(path string, v int64) {
		if v <= 0 {
			errs = append(errs, &ValidationError{Path: path, Value: v, Message: "must be positive"})
		}
	}
	positive("buffer.chunk_size", int64(c.Buffer.ChunkSize))
	positive("buffer.cache_bytes", c.Buffer.CacheBytes)
	positive("buffer.cache_block", int64(c.Buffer.CacheBlock))
	positive("buffer.iterator_window", int64(c.Buffer.IteratorWindow))
	positive("bridge.lsp_queue", int64(c.Bridge.LSPQueue))
	positive("bridge.file_queue", int64(c.Bridge.FileQueue))
	positive("bridge.watch_queue", int64(c.Bridge.WatchQueue))
	positive("bridge.workers", int64(c.Bridge.Workers))
	positive("bridge.request_timeout", int64(c.Bridge.RequestTimeout))
	positive("bridge.drain_budget", int64(c.Bridge.DrainBudget))
	positive("editor.tab_width", int64(c.Editor.TabWidth))
	positive("editor.gc_interval", int64(c.Editor.GCInterval))

	if c.Buffer.MaxUndo < 0 {
		errs = append(errs, &ValidationError{Path: "buffer.max_undo", Value: c.Buffer.MaxUndo, Message: "must not be negative"})
	}
	if c.Buffer.MaxGap < 0 {
		errs = append(errs, &ValidationError{Path: "buffer.max_gap", Value: c.Buffer.MaxGap, Message: "must not be negative"})
	}
	if c.Buffer.CacheBytes > 0 && int64(c.Buffer.CacheBlock) > c.Buffer.CacheBytes {
		errs = append(errs, &ValidationError{Path: "buffer.cache_block", Value: c.Buffer.CacheBlock, Message: "exceeds buffer.cache_bytes"})
	}
	if c.Editor.FPS < 1 || c.Editor.FPS > 240 {
		errs = append(errs, &ValidationError{Path: "editor.fps", Value: c.Editor.FPS, Message: "must be between 1 and 240"})
	}
	if _, ok := parseLevel(c.Log.Level); !ok {
		errs = append(errs, &ValidationError{Path: "log.level", Value: c.Log.Level, Message: "unknown level"})
	}
	for ext, s := range c.LSP.Servers {
		if s.Command == "" {
			errs = append(errs, &ValidationError{Path: "lsp.servers." + ext + ".command", Message: "is required"})
		}
	}
	return errors.Join(errs...)
}

// FrameInterval returns the time between frames.
func (c Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(max(c.Editor.FPS, 1))
}

// Load builds the configuration from defaults, the file at path and the
// environment. An empty path or a missing file leaves the defaults in
// place.
func Load(path string) (Config, error) {
	return LoadFrom(loader.OSFS{}, path, loader.NewEnv(EnvPrefix))
}

// LoadFrom is Load with explicit sources.
func LoadFrom(fsys loader.FileSystem, path string, env *loader.Env) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := loader.DecodeFile(fsys, path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if env != nil {
		for _, o := range env.Overrides() {
			if err := cfg.Set(o.Path, o.Value); err != nil {
				return Config{}, fmt.Errorf("%s: %w", o.Var, err)
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Set assigns one scalar setting from its dotted path and textual value.
func (c *Config) Set(path, value string) error {
	switch path {
	case "buffer.chunk_size":
		return setInt(&c.Buffer.ChunkSize, value)
	case "buffer.cache_bytes":
		return setInt64(&c.Buffer.CacheBytes, value)
	case "buffer.cache_block":
		return setInt(&c.Buffer.CacheBlock, value)
	case "buffer.max_undo":
		return setInt(&c.Buffer.MaxUndo, value)
	case "buffer.max_gap":
		return setInt64(&c.Buffer.MaxGap, value)
	case "buffer.iterator_window":
		return setInt(&c.Buffer.IteratorWindow, value)
	case "bridge.lsp_queue":
		return setInt(&c.Bridge.LSPQueue, value)
	case "bridge.file_queue":
		return setInt(&c.Bridge.FileQueue, value)
	case "bridge.watch_queue":
		return setInt(&c.Bridge.WatchQueue, value)
	case "bridge.workers":
		return setInt(&c.Bridge.Workers, value)
	case "bridge.request_timeout":
		return c.Bridge.RequestTimeout.UnmarshalText([]byte(value))
	case "bridge.drain_budget":
		return setInt(&c.Bridge.DrainBudget, value)
	case "editor.fps":
		return setInt(&c.Editor.FPS, value)
	case "editor.tab_width":
		return setInt(&c.Editor.TabWidth, value)
	case "editor.gc_interval":
		return c.Editor.GCInterval.UnmarshalText([]byte(value))
	case "log.level":
		c.Log.Level = value
		return nil
	case "log.file":
		c.Log.File = value
		return nil
	}
	return fmt.Errorf("%w: %s", ErrSettingNotFound, path)
}

func setInt(dst *int, s string) error {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("%w: %q is not an integer", ErrTypeMismatch, s)
	}
	*dst = v
	return nil
}

func setInt64(dst *int64, s string) error {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q is not an integer", ErrTypeMismatch, s)
	}
	*dst = v
	return nil
}

func parseLevel(s string) (string, bool) {
	switch strings.ToLower(s) {
	case "debug", "info", "warn", "warning", "error":
		return strings.ToLower(s), true
	}
	return "", false
}
