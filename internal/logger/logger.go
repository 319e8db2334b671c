// Package logger provides the structured logger shared by receiverd and
// senderd: a package-level slog.Logger with a color-capable text handler
// for terminals and a JSON handler for machine consumption.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mattn/go-isatty"
)

// Config controls the global logger's destination, verbosity, and
// rendering.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // text, json
	Output string // stdout, stderr, or a file path
}

var (
	currentLevel  atomic.Int32
	currentFormat atomic.Value // "text" or "json"

	mu       sync.RWMutex
	handler  slog.Handler
	slogger  *slog.Logger
	output   io.Writer = os.Stdout
	useColor bool      = isatty.IsTerminal(os.Stdout.Fd())
)

func init() {
	currentLevel.Store(int32(slog.LevelInfo))
	currentFormat.Store("text")
	reconfigure()
}

func reconfigure() {
	mu.Lock()
	defer mu.Unlock()

	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.Level(currentLevel.Load()))
	opts := &slog.HandlerOptions{Level: levelVar}

	format, _ := currentFormat.Load().(string)
	if format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = NewColorTextHandler(output, opts, useColor)
	}
	slogger = slog.New(handler)
}

// Init applies cfg to the global logger. An empty field leaves the
// corresponding setting unchanged.
func Init(cfg Config) error {
	if cfg.Output != "" {
		mu.Lock()
		var newOutput io.Writer
		var newUseColor bool

		switch strings.ToLower(cfg.Output) {
		case "stdout":
			newOutput, newUseColor = os.Stdout, isatty.IsTerminal(os.Stdout.Fd())
		case "stderr":
			newOutput, newUseColor = os.Stderr, isatty.IsTerminal(os.Stderr.Fd())
		default:
			f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				mu.Unlock()
				return fmt.Errorf("opening log file %q: %w", cfg.Output, err)
			}
			newOutput, newUseColor = f, false
		}

		output, useColor = newOutput, newUseColor
		mu.Unlock()
	}

	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}
	return nil
}

// SetLevel sets the minimum log level. Unrecognized values are ignored.
func SetLevel(level string) {
	var l slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		l = slog.LevelDebug
	case "INFO":
		l = slog.LevelInfo
	case "WARN":
		l = slog.LevelWarn
	case "ERROR":
		l = slog.LevelError
	default:
		return
	}
	currentLevel.Store(int32(l))
	reconfigure()
}

// SetFormat sets the output format ("text" or "json"). Unrecognized
// values are ignored.
func SetFormat(format string) {
	format = strings.ToLower(format)
	if format != "text" && format != "json" {
		return
	}
	currentFormat.Store(format)
	reconfigure()
}

// Get returns the current global logger.
func Get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}
