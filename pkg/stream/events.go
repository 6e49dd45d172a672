package stream

// Event is one unit of decoded model output. The set of implementations is
// closed: TextFragment and ToolCall are the only two, enforced by the
// unexported marker method. Consumers switch over the concrete types and
// treat any other value as a programming error.
type Event interface {
	streamEvent()
}

// TextFragment is an incremental piece of assistant text. Fragments are
// delivered in the exact order their frames arrived and are never merged,
// split, or reordered.
type TextFragment struct {
	Text string
}

// ToolCall is a fully reconstructed tool invocation. It is emitted exactly
// once per tool-call index, and only after the accumulated argument string
// parses as a complete JSON object. Partially accumulated calls never
// surface.
type ToolCall struct {
	// ID is the provider-issued call identifier, or a generated one when the
	// provider never sent an id for this index.
	ID string

	// Name is the function name.
	Name string

	// Arguments is the parsed argument object.
	Arguments map[string]any
}

func (TextFragment) streamEvent() {}
func (ToolCall) streamEvent()     {}

// Sink receives events during a push-driven decode. It is invoked
// sequentially from the decoding goroutine, one event at a time, in
// emission order.
type Sink func(Event)
