package gateway

import (
	"github.com/papercomputeco/patchbay/pkg/llm"
	"github.com/papercomputeco/patchbay/pkg/llm/provider"
	"github.com/papercomputeco/patchbay/pkg/sse"
)

// usageTap watches the raw upstream SSE bytes for stream metadata the event
// decoder deliberately ignores: the usage object on the final chunk, the
// finish reason, and the backend's resolved model name. It rides an
// io.TeeReader, so the decoder's own reads feed it without a second pass
// over the stream.
//
// Write runs on the decoder's reader goroutine. Summary must only be called
// after the iterator has delivered its terminal result, which orders every
// Write before the read.
type usageTap struct {
	prov   provider.Provider
	framer sse.Framer

	usage      *llm.Usage
	stopReason string
	model      string
}

func newUsageTap(prov provider.Provider) *usageTap {
	return &usageTap{prov: prov}
}

// Write scans the bytes flowing to the decoder. It never fails; a tap that
// cannot parse a line just learns nothing from it.
func (t *usageTap) Write(p []byte) (int, error) {
	for _, line := range t.framer.Feed(p) {
		t.scan(line)
	}
	return len(p), nil
}

// Summary returns what the tap learned. The framer tail is flushed first so
// a stream whose last line lacks a terminator still counts.
func (t *usageTap) Summary() (stopReason string, usage *llm.Usage, model string) {
	if line, ok := t.framer.Flush(); ok {
		t.scan(line)
	}
	return t.stopReason, t.usage, t.model
}

func (t *usageTap) scan(line string) {
	fr := sse.Classify(line)
	if fr.Kind != sse.FrameData {
		return
	}

	chunk, err := t.prov.ParseStreamChunk([]byte(fr.Payload))
	if err != nil || chunk == nil {
		return
	}

	if t.model == "" && chunk.Model != "" {
		t.model = chunk.Model
	}
	if chunk.Usage != nil {
		t.usage = chunk.Usage
	}
	if chunk.Done && chunk.StopReason != "" {
		t.stopReason = chunk.StopReason
	}
}
