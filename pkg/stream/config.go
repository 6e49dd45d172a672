package stream

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultStartStallWarn  = 5 * time.Second
	defaultDataStallWarn   = 30 * time.Second
	defaultPlaceholderText = "…"
	defaultReadBufferSize  = 4096
)

// Config carries the decoder's collaborators and thresholds. The zero value
// is usable; every field has a default.
type Config struct {
	// Logger receives frame-level diagnostics (dropped frames, stall
	// warnings, metadata). Defaults to a no-op logger.
	Logger *zap.Logger

	// NewID generates identifiers for finalized tool calls whose provider
	// never issued one. Defaults to uuid.NewString.
	NewID func() string

	// EmitPlaceholder enables the single liveness placeholder fragment,
	// emitted at most once per stream when reasoning arrives (or a data
	// stall is detected) before any real output part. Suppressed by
	// default; consumers that show raw fragments usually do not want it.
	EmitPlaceholder bool

	// PlaceholderText is the placeholder fragment's content.
	PlaceholderText string

	// StartStallWarn is how long the decoder waits for the first byte
	// before logging a stall warning. DataStallWarn is how long it
	// tolerates bytes without data frames (keep-alives only) before
	// logging and, if enabled, emitting the placeholder. Both are
	// diagnostics, never fatal, and the exact values are not load-bearing.
	StartStallWarn time.Duration
	DataStallWarn  time.Duration

	// ReadBufferSize is the transport read buffer size in bytes.
	ReadBufferSize int
}

func (c *Config) applyDefaults() {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
	if c.PlaceholderText == "" {
		c.PlaceholderText = defaultPlaceholderText
	}
	if c.StartStallWarn <= 0 {
		c.StartStallWarn = defaultStartStallWarn
	}
	if c.DataStallWarn <= 0 {
		c.DataStallWarn = defaultDataStallWarn
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = defaultReadBufferSize
	}
}
