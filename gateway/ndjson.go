package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/papercomputeco/patchbay/pkg/llm"
	"github.com/papercomputeco/patchbay/pkg/llm/provider"
	"github.com/papercomputeco/patchbay/pkg/sse"
	"github.com/papercomputeco/patchbay/pkg/stream"
)

// ndjsonStream adapts an Ollama-native NDJSON body to the decoder's event
// shape: one pull per text fragment or complete tool call, with the final
// chunk's metrics retained for the turn summary. There is no SSE framing to
// strip; every line is one provider chunk.
type ndjsonStream struct {
	prov   provider.Provider
	body   io.Reader
	framer sse.Framer
	buf    []byte

	pending []stream.Event
	eof     bool
	emitted int

	stopReason string
	usage      *llm.Usage
	model      string
}

func newNDJSONStream(prov provider.Provider, body io.Reader) *ndjsonStream {
	return &ndjsonStream{
		prov: prov,
		body: body,
		buf:  make([]byte, 4096),
	}
}

// Next returns the next event, (nil, nil) at clean end of stream, or the
// error that ended it. A stream that ends without producing a single event
// reports ErrEmptyResponse.
func (n *ndjsonStream) Next() (stream.Event, error) {
	for {
		if len(n.pending) > 0 {
			ev := n.pending[0]
			n.pending = n.pending[1:]
			n.emitted++
			return ev, nil
		}

		if n.eof {
			if n.emitted == 0 {
				return nil, stream.ErrEmptyResponse
			}
			return nil, nil
		}

		nr, err := n.body.Read(n.buf)
		if nr > 0 {
			for _, line := range n.framer.Feed(n.buf[:nr]) {
				n.scan(line)
			}
		}
		if err == io.EOF {
			if line, ok := n.framer.Flush(); ok {
				n.scan(line)
			}
			n.eof = true
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading upstream stream: %w", err)
		}
	}
}

// Summary returns the final chunk's stop reason, eval metrics, and the
// backend's resolved model name.
func (n *ndjsonStream) Summary() (string, *llm.Usage, string) {
	return n.stopReason, n.usage, n.model
}

func (n *ndjsonStream) Close() {}

// scan decodes one NDJSON line into pending events and stream metadata.
// Undecodable lines are skipped; the transport decides when the stream ends.
func (n *ndjsonStream) scan(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}

	chunk, err := n.prov.ParseStreamChunk([]byte(line))
	if err != nil || chunk == nil {
		return
	}

	if n.model == "" && chunk.Model != "" {
		n.model = chunk.Model
	}

	if text := chunk.Message.Text(); text != "" {
		n.pending = append(n.pending, stream.TextFragment{Text: text})
	}

	// Ollama sends each tool call whole, with argument JSON the provider
	// already re-serialized from a parsed object.
	for _, tc := range chunk.ToolCalls {
		var args map[string]any
		if tc.Arguments != "" {
			json.Unmarshal([]byte(tc.Arguments), &args)
		}
		n.pending = append(n.pending, stream.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: args})
	}

	if chunk.Done {
		n.stopReason = chunk.StopReason
		if chunk.Usage != nil {
			n.usage = chunk.Usage
		}
	}
}
