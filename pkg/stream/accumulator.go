package stream

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"
)

// accumulator reconstructs tool calls from indexed fragments. One instance
// lives for exactly one response.
//
// Per index: the call id and function name are set by the first non-empty
// value seen; argument fragments are appended in arrival order. A buffer
// finalizes the moment a name is present and the accumulated arguments parse
// as a complete JSON object, and its index then joins the completed set so
// that late or duplicated fragments for it are ignored.
type accumulator struct {
	newID func() string
	open  map[int]*callBuffer
	done  map[int]struct{}
}

type callBuffer struct {
	id   string
	name string
	args strings.Builder
}

func newAccumulator(newID func() string) *accumulator {
	return &accumulator{
		newID: newID,
		open:  make(map[int]*callBuffer),
		done:  make(map[int]struct{}),
	}
}

// update applies one fragment. The returned bool is true when this fragment
// completed the call, in which case the ToolCall is final and the index is
// retired.
func (a *accumulator) update(index int, id, name, args string) (ToolCall, bool) {
	if _, completed := a.done[index]; completed {
		return ToolCall{}, false
	}

	buf, ok := a.open[index]
	if !ok {
		buf = &callBuffer{}
		a.open[index] = buf
	}

	if buf.id == "" && id != "" {
		buf.id = id
	}
	if buf.name == "" && name != "" {
		buf.name = name
	}
	if args != "" {
		buf.args.WriteString(args)
	}

	return a.finalize(index, buf)
}

// flush retries every still-open buffer once, in ascending index order, and
// returns the calls that complete. Used at stream end for calls whose final
// fragment arrived in the last frame before the terminator.
func (a *accumulator) flush() []ToolCall {
	var calls []ToolCall
	for _, index := range slices.Sorted(maps.Keys(a.open)) {
		if call, ok := a.finalize(index, a.open[index]); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

// remaining reports how many buffers are still open. At stream end these
// are dropped, never emitted partially.
func (a *accumulator) remaining() int {
	return len(a.open)
}

func (a *accumulator) finalize(index int, buf *callBuffer) (ToolCall, bool) {
	if buf.name == "" {
		return ToolCall{}, false
	}

	raw := strings.TrimSpace(buf.args.String())
	if raw == "" || raw[0] != '{' {
		return ToolCall{}, false
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return ToolCall{}, false
	}

	id := buf.id
	if id == "" {
		id = a.newID()
	}

	delete(a.open, index)
	a.done[index] = struct{}{}

	return ToolCall{ID: id, Name: buf.name, Arguments: parsed}, true
}
