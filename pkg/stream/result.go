package stream

import "errors"

// ErrEmptyResponse reports a stream that reached its terminator (or a clean
// transport close) without ever emitting a text fragment or a finalized tool
// call. A response with no content is indistinguishable from a stuck
// provider, so it surfaces as an error instead of silently succeeding.
var ErrEmptyResponse = errors.New("stream completed with no output parts")

// State is the lifecycle position of a decode.
//
// The machine is Idle → Streaming → {Completed, Cancelled, Failed}; there
// are no other transitions.
type State int

const (
	// StateIdle means no chunk has been read yet.
	StateIdle State = iota

	// StateStreaming means at least one chunk has arrived and the stream has
	// not yet terminated.
	StateStreaming

	// StateCompleted means the terminator was classified or the transport
	// closed cleanly, and at least one output part was emitted.
	StateCompleted

	// StateCancelled means the caller's context was cancelled. Cancellation
	// is not an error.
	StateCancelled

	// StateFailed means the transport failed, or the stream ended with zero
	// emitted parts.
	StateFailed
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result describes how a decode ended and what it processed along the way.
// Counters cover delivered events only; output discarded by cancellation is
// not counted.
type Result struct {
	// State is the terminal state: Completed, Cancelled, or Failed.
	State State

	// Err is the failure cause when State is StateFailed, nil otherwise.
	Err error

	// TextFragments and ToolCalls count emitted events.
	TextFragments int
	ToolCalls     int

	// Comments counts keep-alive comment lines (diagnostic).
	Comments int

	// DataFrames counts data frames, decodable or not.
	DataFrames int

	// DroppedFrames counts data frames whose payload failed to decode.
	DroppedFrames int

	// DroppedCalls counts tool-call buffers still unparseable at stream end.
	DroppedCalls int
}
