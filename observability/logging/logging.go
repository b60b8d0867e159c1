package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOutput configures an additional size-rotated log file.
type FileOutput struct {
	Path       string `toml:"path" yaml:"path"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"maxSizeMB"`
	MaxBackups int    `toml:"max_backups" yaml:"maxBackups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"maxAgeDays"`
	Compress   bool   `toml:"compress" yaml:"compress"`
}

// Setup configures the standard library logger to emit structured JSON on
// stdout and returns the underlying slog.Logger. All log lines include the
// service name and environment when provided.
func Setup(service, env string) *slog.Logger {
	return New(os.Stdout, service, env, true)
}

// SetupWithFile behaves like Setup and additionally writes every line to a
// rotated file. The returned closer releases the file handle.
func SetupWithFile(service, env string, out FileOutput) (*slog.Logger, io.Closer) {
	if strings.TrimSpace(out.Path) == "" {
		return Setup(service, env), nopCloser{}
	}
	rotator := &lumberjack.Logger{
		Filename:   out.Path,
		MaxSize:    positiveOr(out.MaxSizeMB, 100),
		MaxBackups: out.MaxBackups,
		MaxAge:     out.MaxAgeDays,
		Compress:   out.Compress,
	}
	return New(io.MultiWriter(os.Stdout, rotator), service, env, true), rotator
}

// New builds a JSON logger writing to w. When global is set the logger
// becomes the slog default and the standard library logger is bridged to it.
func New(w io.Writer, service, env string, global bool) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return redactSensitive(attr)
		},
	})

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	withArgs := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		withArgs = append(withArgs, attr)
	}
	base := slog.New(handler).With(withArgs...)
	if !global {
		return base
	}
	slog.SetDefault(base)

	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")
	return base
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
