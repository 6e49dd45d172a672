package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
)

type config struct {
	level   slog.Level
	pretty  bool
	json    bool
	source  bool
	writers []io.Writer
}

// New builds a *slog.Logger for CLI-facing code. The default handler is
// slog's text handler; WithPretty swaps in charmbracelet/log for terminal
// output and WithJSON swaps in slog's JSON handler for log files.
func New(opts ...Option) *slog.Logger {
	cfg := &config{
		level:   slog.LevelInfo,
		writers: []io.Writer{os.Stdout},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	w := cfg.writers[0]
	if len(cfg.writers) > 1 {
		w = io.MultiWriter(cfg.writers...)
	}

	switch {
	case cfg.pretty:
		// charmbracelet's *log.Logger implements slog.Handler directly,
		// and its level constants share slog's numeric values.
		charm := charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(cfg.level),
			ReportTimestamp: true,
			ReportCaller:    cfg.source,
			TimeFormat:      time.Kitchen,
		})
		return slog.New(charm)
	case cfg.json:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     cfg.level,
			AddSource: cfg.source,
		}))
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:     cfg.level,
			AddSource: cfg.source,
		}))
	}
}

// Nop returns a logger whose handler is disabled at every level. Useful as a
// default when a caller does not care about log output.
func Nop() *slog.Logger {
	return slog.New(nopHandler{})
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
