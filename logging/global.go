// Package logging wires log/slog for the service: console output, a weekly
// rotating JSON file and package-level helpers usable before initialisation.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/salulink/authi-claims/config"
)

// LoggingService owns the process logger and the file it writes to
type LoggingService struct {
	Logger *slog.Logger
	file   *RotatingLogger
}

var (
	DefaultLoggingService *LoggingService
	fallbackOnce          sync.Once
	fallbackLogger        *slog.Logger
)

// Options controls how InitLogger builds the logger
type Options struct {
	Dir            string
	Env            config.Environment
	Level          string
	RetentionWeeks int
	MaxFileSize    int64
	Verbose        bool // keeps info logs on the console when running tests
}

// InitLogger initializes the global logger instance. An empty Dir logs to
// the console only.
func InitLogger(opts Options) *LoggingService {
	consoleLevel := GetConsoleLogLevel(opts.Env, opts.Level, opts.Verbose)
	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: consoleLevel}),
	}

	svc := &LoggingService{}
	if opts.Dir != "" {
		rl, err := OpenRotatingLogger(opts.Dir, opts.RetentionWeeks, opts.MaxFileSize)
		if err != nil {
			slog.New(handlers[0]).Error("Failed to open log directory, logging to console only", "dir", opts.Dir, "error", err)
		} else {
			svc.file = rl
			handlers = append(handlers, slog.NewJSONHandler(rl, &slog.HandlerOptions{
				Level: parseLogLevel(opts.Level),
			}))
		}
	}

	if len(handlers) == 1 {
		svc.Logger = slog.New(handlers[0])
	} else {
		svc.Logger = slog.New(&multiHandler{handlers: handlers})
	}

	DefaultLoggingService = svc
	slog.SetDefault(svc.Logger)
	return svc
}

// Close flushes and closes the rotating file, if any
func (s *LoggingService) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	return s.file.Close()
}

// NewDiscardLogger returns a logger that drops everything, for tests
func NewDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetConsoleLogLevel picks the console level. An explicit LOG_LEVEL wins
// except under test, where the console stays quiet unless verbose.
func GetConsoleLogLevel(env config.Environment, level string, verbose bool) slog.Level {
	if env == config.EnvTest {
		if verbose {
			return slog.LevelInfo
		}
		return slog.LevelError
	}

	if level != "" {
		return parseLogLevel(level)
	}

	switch env {
	case config.EnvProduction, config.EnvStaging:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func current() *slog.Logger {
	if DefaultLoggingService != nil && DefaultLoggingService.Logger != nil {
		return DefaultLoggingService.Logger
	}
	fallbackOnce.Do(func() {
		fallbackLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	})
	return fallbackLogger
}

// Package-level functions for direct access

func Info(msg string, args ...any)  { current().Info(msg, args...) }
func Warn(msg string, args ...any)  { current().Warn(msg, args...) }
func Error(msg string, args ...any) { current().Error(msg, args...) }
func Debug(msg string, args ...any) { current().Debug(msg, args...) }

// Logger returns the active logger
func Logger() *slog.Logger { return current() }
