package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/papercomputeco/patchbay/pkg/sse"
)

// Iterator is the pull-driven face of a decode. It owns all per-response
// state and is not safe for concurrent use; one goroutine consumes it.
type Iterator struct {
	ctx context.Context
	r   io.Reader
	cfg Config

	framer *sse.Framer
	acc    *accumulator
	stall  *stallMonitor
	buf    []byte

	pending     []Event
	state       State
	err         error
	res         Result
	partEmitted bool
}

// Next returns the next decoded event. It blocks on the transport as
// needed. After the stream reaches a terminal state Next returns (nil, nil)
// for Completed and Cancelled, or (nil, err) for Failed; events decoded
// before a transport failure are still delivered first.
func (it *Iterator) Next() (Event, error) {
	for {
		// Cancellation wins over everything, including already decoded but
		// undelivered events: those are discarded, not processed.
		if it.state == StateIdle || it.state == StateStreaming {
			if it.ctx.Err() != nil {
				it.cancel()
			}
		}

		if len(it.pending) > 0 {
			ev := it.pending[0]
			it.pending = it.pending[1:]
			return ev, nil
		}

		switch it.state {
		case StateCompleted, StateCancelled:
			return nil, nil
		case StateFailed:
			return nil, it.err
		}

		if it.stall.takePlaceholder() {
			it.maybePlaceholder()
			continue
		}

		n, err := it.r.Read(it.buf)
		if n > 0 {
			if it.state == StateIdle {
				it.state = StateStreaming
			}
			it.stall.noteBytes()
			for _, line := range it.framer.Feed(it.buf[:n]) {
				it.processLine(line)
				if it.state != StateStreaming {
					break
				}
			}
		}
		if err != nil && (it.state == StateIdle || it.state == StateStreaming) {
			it.finishRead(err)
		}
	}
}

// Result reports the terminal state and counters. It is meaningful once
// Next has returned a nil event.
func (it *Iterator) Result() Result {
	res := it.res
	res.State = it.state
	res.Err = it.err
	return res
}

// Close releases the stall timers without waiting for a terminal state. It
// is safe to call multiple times and after normal completion; consumers
// that abandon an Iterator mid-stream should call it.
func (it *Iterator) Close() {
	it.stall.stop()
}

// finishRead maps a transport read error to a terminal state. Cancellation
// is checked first because closing a context-bound response body surfaces
// as a read error.
func (it *Iterator) finishRead(err error) {
	switch {
	case it.ctx.Err() != nil:
		it.cancel()
	case errors.Is(err, io.EOF):
		if line, ok := it.framer.Flush(); ok {
			it.processLine(line)
		}
		if it.state == StateIdle || it.state == StateStreaming {
			it.finishClean()
		}
	default:
		it.fail(fmt.Errorf("reading stream: %w", err))
	}
}

func (it *Iterator) processLine(line string) {
	fr := sse.Classify(line)
	switch fr.Kind {
	case sse.FrameBlank:
	case sse.FrameComment:
		it.res.Comments++
	case sse.FrameMeta:
		it.cfg.Logger.Debug("stream metadata",
			zap.String("field", fr.Field),
			zap.String("value", fr.Value),
		)
	case sse.FrameData:
		it.stall.noteData()
		it.res.DataFrames++
		it.decodePayload(fr.Payload)
	case sse.FrameTerminator:
		it.stall.noteData()
		it.finishClean()
	}
}

// decodePayload parses one data frame and emits whatever it completes. An
// undecodable payload costs only itself: it is logged, counted, and the
// stream moves on.
func (it *Iterator) decodePayload(payload string) {
	var chunk chunkPayload
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		it.res.DroppedFrames++
		it.cfg.Logger.Warn("dropping undecodable data frame",
			zap.Error(err),
			zap.Int("len", len(payload)),
		)
		return
	}

	for _, choice := range chunk.Choices {
		delta := choice.Delta

		if delta.Content != nil && *delta.Content != "" {
			it.emit(TextFragment{Text: *delta.Content})
		}

		if delta.Reasoning != "" {
			it.maybePlaceholder()
		}

		for _, frag := range delta.ToolCalls {
			if call, ok := it.acc.update(frag.Index, frag.ID, frag.Function.Name, frag.Function.Arguments); ok {
				it.emit(call)
			}
		}
	}
}

// finishClean ends the stream at the terminator or a clean transport close:
// still-open tool-call buffers get their one retry, then the
// at-least-one-emission rule decides between Completed and Failed.
func (it *Iterator) finishClean() {
	for _, call := range it.acc.flush() {
		it.emit(call)
	}
	if n := it.acc.remaining(); n > 0 {
		it.res.DroppedCalls += n
		it.cfg.Logger.Warn("dropping unfinished tool calls at stream end",
			zap.Int("count", n),
		)
	}

	it.stall.stop()
	if !it.partEmitted {
		it.state = StateFailed
		it.err = ErrEmptyResponse
		return
	}
	it.state = StateCompleted
}

func (it *Iterator) cancel() {
	it.stall.stop()
	it.pending = nil
	it.state = StateCancelled
}

func (it *Iterator) fail(err error) {
	it.stall.stop()
	it.state = StateFailed
	it.err = err
}

func (it *Iterator) emit(ev Event) {
	switch ev.(type) {
	case TextFragment:
		it.res.TextFragments++
	case ToolCall:
		it.res.ToolCalls++
	}
	it.partEmitted = true
	it.pending = append(it.pending, ev)
}

// maybePlaceholder emits the single liveness placeholder, gated on the
// configuration switch and on nothing having been emitted yet.
func (it *Iterator) maybePlaceholder() {
	if !it.cfg.EmitPlaceholder || it.partEmitted {
		return
	}
	it.emit(TextFragment{Text: it.cfg.PlaceholderText})
}
