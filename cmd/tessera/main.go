// Package main is the entry point for the Tessera editor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"github.com/dshills/tessera/internal/app"
	"github.com/dshills/tessera/internal/config"
	"github.com/dshills/tessera/internal/engine"
	"github.com/dshills/tessera/internal/logging"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

type options struct {
	configPath  string
	logFile     string
	logLevel    string
	metricsAddr string
	workspace   string
	overrides   []string
	showVersion bool
	files       []string
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()
	if opts.showVersion {
		fmt.Printf("Tessera %s (%s)\n", version, commit)
		return 0
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	log, closeLog, err := newLogger(cfg, interactive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closeLog()

	if !interactive {
		if err := summarize(os.Stdout, os.Stdin, cfg, opts.files); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if opts.metricsAddr != "" {
		srv := serveMetrics(opts.metricsAddr, reg, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create terminal: %v\n", err)
		return 1
	}
	application, err := app.New(screen, app.Options{
		Config:   &cfg,
		Logger:   log,
		Registry: reg,
		Root:     opts.workspace,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}
	if err := application.Run(ctx, opts.files...); err != nil && !errors.Is(err, app.ErrQuit) {
		log.Error("editor stopped", "err", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file (.toml or .yaml)")
	flag.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.logFile, "log-file", "", "Write logs to this file")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&opts.metricsAddr, "metrics", "", "Serve Prometheus metrics on this address")
	flag.StringVar(&opts.workspace, "workspace", "", "Workspace directory for language servers")
	flag.StringVar(&opts.workspace, "w", "", "Workspace directory (shorthand)")
	flag.Func("set", "Override a setting, e.g. -set editor.tab_width=8 (repeatable)", func(s string) error {
		if !strings.Contains(s, "=") {
			return errors.New("expected path=value")
		}
		opts.overrides = append(opts.overrides, s)
		return nil
	})
	flag.BoolVar(&opts.showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Tessera - terminal text editor\n\n")
		fmt.Fprintf(os.Stderr, "Usage: tessera [options] [files...]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nWithout a terminal, tessera loads the files (or stdin) and\n")
		fmt.Fprintf(os.Stderr, "prints a line summary for each.\n")
	}
	flag.Parse()

	opts.files = flag.Args()
	if opts.workspace == "" && len(opts.files) > 0 {
		if abs, err := filepath.Abs(opts.files[0]); err == nil {
			opts.workspace = filepath.Dir(abs)
		}
	}
	if opts.workspace == "" {
		opts.workspace, _ = os.Getwd()
	}
	return opts
}

// loadConfig layers the file, the environment and the command line.
func loadConfig(opts options) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}
	for _, o := range opts.overrides {
		path, value, _ := strings.Cut(o, "=")
		if err := cfg.Set(path, value); err != nil {
			return config.Config{}, fmt.Errorf("-set %s: %w", path, err)
		}
	}
	if opts.logFile != "" {
		cfg.Log.File = opts.logFile
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newLogger writes to the configured file. Without one, an interactive
// session discards logs so they do not corrupt the screen.
func newLogger(cfg config.Config, interactive bool) (*logging.Logger, func(), error) {
	level, _ := logging.ParseLevel(cfg.Log.Level)
	switch {
	case cfg.Log.File != "":
		f, err := logging.OpenFile(cfg.Log.File)
		if err != nil {
			return nil, nil, err
		}
		return logging.New(logging.Config{Level: level, Output: f}), func() { _ = f.Close() }, nil
	case interactive:
		return logging.Nop(), func() {}, nil
	default:
		return logging.New(logging.Config{Level: level, Output: os.Stderr}), func() {}, nil
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", "addr", addr, "err", err)
		}
	}()
	return srv
}

// summarize loads each file, or stdin when there are none, into a buffer
// and prints its size and line count.
func summarize(w io.Writer, stdin io.Reader, cfg config.Config, files []string) error {
	bufOpts := app.BufferOptions(cfg.Buffer)
	report := func(name string, r io.Reader) error {
		vb, err := engine.NewFromReader(r, bufOpts...)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		_, err = fmt.Fprintf(w, "%s\t%d bytes\t%d lines\n", name, vb.Len(), vb.LineCount())
		return err
	}
	if len(files) == 0 {
		return report("-", stdin)
	}
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		err = report(path, f)
		_ = f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
