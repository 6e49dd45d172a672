// Package stream decodes incremental model output from a live byte feed
// into a well-formed, ordered sequence of events.
//
// The input is an OpenAI-style text/event-stream: "data:" frames carrying
// JSON chunks whose deltas hold text fragments, reasoning fragments, and
// indexed partial tool calls, terminated by a "[DONE]" sentinel. The feed
// may be fragmented at arbitrary byte offsets, including in the middle of a
// multi-byte character, a line, or a JSON token; the decoder's output is
// identical for every fragmentation of the same feed.
//
// Output events are TextFragment and ToolCall. Text passes through in
// arrival order. Tool calls accumulate per index and are emitted exactly
// once each, only when complete; a call whose arguments never parse is
// dropped rather than surfaced partially. A stream that ends with zero
// output parts fails with ErrEmptyResponse.
//
// Consumers choose push or pull: Decoder.Decode drives a Sink callback,
// Decoder.Stream returns an Iterator for lazy consumption. Both run the
// same single-pass core.
package stream

import (
	"context"
	"io"

	"github.com/papercomputeco/patchbay/pkg/sse"
)

// Decoder turns raw response streams into event sequences. A Decoder is
// immutable configuration and may be shared; each call to Decode or Stream
// owns its per-response state exclusively.
type Decoder struct {
	cfg Config
}

// New returns a Decoder with cfg's zero fields defaulted.
func New(cfg Config) *Decoder {
	cfg.applyDefaults()
	return &Decoder{cfg: cfg}
}

// Decode reads r until the stream terminates, delivering every event to
// sink in emission order. It blocks until a terminal state is reached and
// reports it in the Result.
//
// The error is non-nil exactly when the Result's State is StateFailed,
// carrying ErrEmptyResponse or the transport failure. Cancellation via ctx
// is not an error: the Result's State is StateCancelled and no further
// events are delivered. Events delivered before a failure are never
// retracted.
func (d *Decoder) Decode(ctx context.Context, r io.Reader, sink Sink) (Result, error) {
	it := d.Stream(ctx, r)
	for {
		ev, err := it.Next()
		if ev == nil {
			return it.Result(), err
		}
		sink(ev)
	}
}

// Stream returns an Iterator decoding r lazily. The read loop advances only
// inside Iterator.Next, so an abandoned Iterator does no work; its stall
// timers are released when a terminal state is reached or Close is called.
func (d *Decoder) Stream(ctx context.Context, r io.Reader) *Iterator {
	it := &Iterator{
		ctx:    ctx,
		r:      r,
		cfg:    d.cfg,
		framer: &sse.Framer{},
		acc:    newAccumulator(d.cfg.NewID),
		stall:  newStallMonitor(d.cfg.StartStallWarn, d.cfg.DataStallWarn, d.cfg.Logger),
		buf:    make([]byte, d.cfg.ReadBufferSize),
	}
	it.stall.start()
	return it
}
