package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
	// Capture receives a copy of every log line regardless of the main
	// output format. The worker wires the alert ring buffer here so Slack
	// reports carry the failing task's log tail.
	Capture io.Writer
}

// Init initializes the global logger
func Init(cfg Config) {
	// Set log level
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Use JSON or console output
	var sink io.Writer
	if cfg.JSONOutput {
		sink = output
	} else {
		sink = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	if cfg.Capture != nil {
		sink = zerolog.MultiLevelWriter(sink, cfg.Capture)
	}

	Logger = zerolog.New(sink).With().Timestamp().Logger()
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithTask creates a child logger with task_id and task_type fields
func WithTask(taskID int64, taskType string) zerolog.Logger {
	return Logger.With().Int64("task_id", taskID).Str("task_type", taskType).Logger()
}

// WithSite creates a child logger with site_id field
func WithSite(siteID string) zerolog.Logger {
	return Logger.With().Str("site_id", siteID).Logger()
}

// WithProduct creates a child logger with product_id field
func WithProduct(productID string) zerolog.Logger {
	return Logger.With().Str("product_id", productID).Logger()
}

// Helper functions for common logging patterns
func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}
