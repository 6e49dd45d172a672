package sse

import (
	"io"
	"strings"
)

// Writer emits text/event-stream frames to an underlying io.Writer. It is
// the gateway's client-facing half: decoded events are re-encoded with it
// rather than copied through verbatim.
//
// Writer performs no internal buffering; each call issues one write, which
// is what gives a piped HTTP response its per-event flush behavior.
type Writer struct {
	w io.Writer
}

// NewWriter returns a Writer emitting to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteData emits one data frame followed by the blank event delimiter. A
// payload containing newlines is split across consecutive "data:" lines per
// the SSE specification.
func (w *Writer) WriteData(payload string) error {
	var b strings.Builder
	for _, part := range strings.Split(payload, "\n") {
		b.WriteString("data: ")
		b.WriteString(part)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	_, err := io.WriteString(w.w, b.String())
	return err
}

// WriteComment emits a keep-alive comment line.
func (w *Writer) WriteComment(text string) error {
	_, err := io.WriteString(w.w, ": "+text+"\n\n")
	return err
}

// WriteDone emits the terminating sentinel frame.
func (w *Writer) WriteDone() error {
	return w.WriteData(DoneSentinel)
}
