package stream_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/patchbay/pkg/stream"
)

// chunkedReader delivers its data in fixed-size chunks so tests can force
// any fragmentation of the same feed.
type chunkedReader struct {
	data []byte
	size int
	off  int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	end := min(r.off+r.size, len(r.data))
	n := copy(p, r.data[r.off:end])
	r.off += n
	return n, nil
}

// scriptedReader plays back a sequence of timed reads.
type scriptedReader struct {
	steps []scriptStep
}

type scriptStep struct {
	delay time.Duration
	data  string
	err   error
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	if len(r.steps) == 0 {
		return 0, io.EOF
	}
	step := r.steps[0]
	r.steps = r.steps[1:]
	if step.delay > 0 {
		time.Sleep(step.delay)
	}
	if step.err != nil {
		return 0, step.err
	}
	return copy(p, step.data), nil
}

var _ = Describe("Decoder", func() {
	textFrame := func(s string) string {
		return `data: {"choices":[{"delta":{"content":"` + s + `"}}]}` + "\n"
	}
	done := "data: [DONE]\n"

	decode := func(cfg stream.Config, r io.Reader) ([]stream.Event, stream.Result, error) {
		var events []stream.Event
		res, err := stream.New(cfg).Decode(context.Background(), r, func(ev stream.Event) {
			events = append(events, ev)
		})
		return events, res, err
	}

	decodeString := func(input string) ([]stream.Event, stream.Result, error) {
		return decode(stream.Config{}, strings.NewReader(input))
	}

	Describe("text streaming", func() {
		It("decodes the canonical two-fragment stream", func() {
			events, res, err := decodeString(textFrame("Hel") + textFrame("lo") + done)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal([]stream.Event{
				stream.TextFragment{Text: "Hel"},
				stream.TextFragment{Text: "lo"},
			}))
			Expect(res.State).To(Equal(stream.StateCompleted))
			Expect(res.TextFragments).To(Equal(2))
			Expect(res.DataFrames).To(Equal(2))
		})

		It("completes on clean EOF without a terminator", func() {
			events, res, err := decodeString(textFrame("hi"))
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(res.State).To(Equal(stream.StateCompleted))
		})

		It("decodes a final line that lacks its terminator", func() {
			input := textFrame("almost")
			events, _, err := decodeString(strings.TrimSuffix(input, "\n"))
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal([]stream.Event{stream.TextFragment{Text: "almost"}}))
		})

		It("emits one fragment per choice, in choice order", func() {
			input := `data: {"choices":[{"delta":{"content":"a"}},{"delta":{"content":"b"}}]}` + "\n" + done
			events, _, err := decodeString(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal([]stream.Event{
				stream.TextFragment{Text: "a"},
				stream.TextFragment{Text: "b"},
			}))
		})

		It("ignores null and empty content", func() {
			input := `data: {"choices":[{"delta":{"content":null}}]}` + "\n" +
				`data: {"choices":[{"delta":{"content":""}}]}` + "\n" +
				textFrame("real") + done
			events, _, err := decodeString(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal([]stream.Event{stream.TextFragment{Text: "real"}}))
		})

		It("ignores frames after the terminator", func() {
			events, res, err := decodeString(textFrame("kept") + done + textFrame("late"))
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal([]stream.Event{stream.TextFragment{Text: "kept"}}))
			Expect(res.State).To(Equal(stream.StateCompleted))
		})
	})

	Describe("chunk-boundary invariance", func() {
		It("produces identical events for every fragmentation of the feed", func() {
			input := ": warming up\n" +
				textFrame("héllo ") +
				`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_a","function":{"name":"lookup","arguments":"{\"ci"}}]}}]}` + "\r\n" +
				`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ty\":\"Zürich\"}"}}]}}]}` + "\n" +
				textFrame("wörld ✓") +
				done

			whole, wholeRes, err := decodeString(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(whole).To(HaveLen(3))
			Expect(wholeRes.State).To(Equal(stream.StateCompleted))

			for _, size := range []int{1, 2, 3, 5, 7, 16, 64} {
				events, res, err := decode(stream.Config{}, &chunkedReader{data: []byte(input), size: size})
				Expect(err).NotTo(HaveOccurred(), "chunk size %d", size)
				Expect(events).To(Equal(whole), "chunk size %d", size)
				Expect(res.State).To(Equal(stream.StateCompleted), "chunk size %d", size)
			}
		})
	})

	Describe("tool calls", func() {
		It("reconstructs arguments split across fragments", func() {
			input := `data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"add","arguments":"{\"a\":"}}]}}]}` + "\n" +
				`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"1,\"b\":"}}]}}]}` + "\n" +
				textFrame("between") +
				`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"2}"}}]}}]}` + "\n" +
				done

			events, res, err := decodeString(input)
			Expect(err).NotTo(HaveOccurred())

			// The call must finalize only after its last fragment: the text
			// frame decoded between fragments has to precede it.
			Expect(events).To(HaveLen(2))
			Expect(events[0]).To(Equal(stream.TextFragment{Text: "between"}))

			call, ok := events[1].(stream.ToolCall)
			Expect(ok).To(BeTrue())
			Expect(call.ID).To(Equal("call_1"))
			Expect(call.Name).To(Equal("add"))
			Expect(call.Arguments).To(Equal(map[string]any{"a": 1.0, "b": 2.0}))
			Expect(res.ToolCalls).To(Equal(1))
		})

		It("emits a finalized call exactly once despite duplicate fragments", func() {
			complete := `data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"ping","arguments":"{}"}}]}}]}` + "\n"
			events, res, err := decodeString(complete + complete + complete + done)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(res.ToolCalls).To(Equal(1))
		})

		It("generates an identifier when the provider never sends one", func() {
			var generated int
			cfg := stream.Config{NewID: func() string {
				generated++
				return "gen-1"
			}}
			input := `data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"name":"ping","arguments":"{}"}}]}}]}` + "\n" + done

			events, _, err := decode(cfg, strings.NewReader(input))
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(events[0].(stream.ToolCall).ID).To(Equal("gen-1"))
			Expect(generated).To(Equal(1))
		})

		It("keeps the first identifier and name seen", func() {
			input := `data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"first","function":{"name":"keep","arguments":"{"}}]}}]}` + "\n" +
				`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"second","function":{"name":"discard","arguments":"}"}}]}}]}` + "\n" +
				done

			events, _, err := decodeString(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
			call := events[0].(stream.ToolCall)
			Expect(call.ID).To(Equal("first"))
			Expect(call.Name).To(Equal("keep"))
		})

		It("orders emissions by completing fragment, not by index", func() {
			input := textFrame("A") +
				`data: {"choices":[{"delta":{"tool_calls":[{"index":1,"id":"call_b","function":{"name":"beta","arguments":"{\"n\":"}}]}}]}` + "\n" +
				`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_a","function":{"name":"alpha","arguments":"{}"}}]}}]}` + "\n" +
				textFrame("B") +
				`data: {"choices":[{"delta":{"tool_calls":[{"index":1,"function":{"arguments":"2}"}}]}}]}` + "\n" +
				done

			events, _, err := decodeString(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(4))
			Expect(events[0]).To(Equal(stream.TextFragment{Text: "A"}))
			Expect(events[1].(stream.ToolCall).Name).To(Equal("alpha"))
			Expect(events[2]).To(Equal(stream.TextFragment{Text: "B"}))
			Expect(events[3].(stream.ToolCall).Name).To(Equal("beta"))
		})

		It("drops a call whose arguments never complete", func() {
			input := textFrame("ok") +
				`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"broken","arguments":"{\"unclosed\":"}}]}}]}` + "\n" +
				done

			events, res, err := decodeString(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal([]stream.Event{stream.TextFragment{Text: "ok"}}))
			Expect(res.DroppedCalls).To(Equal(1))
			Expect(res.State).To(Equal(stream.StateCompleted))
		})

		It("drops a call that never receives a name", func() {
			input := textFrame("ok") +
				`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"arguments":"{\"a\":1}"}}]}}]}` + "\n" +
				done

			events, res, err := decodeString(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(res.DroppedCalls).To(Equal(1))
		})

		It("rejects non-object argument values", func() {
			input := textFrame("ok") +
				`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"scalar","arguments":"42"}}]}}]}` + "\n" +
				done

			events, res, err := decodeString(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(res.DroppedCalls).To(Equal(1))
		})
	})

	Describe("protocol tolerance", func() {
		It("succeeds through a keep-alive-only prelude", func() {
			input := strings.Repeat(": ka\n", 5) + textFrame("hi") + done
			events, res, err := decodeString(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal([]stream.Event{stream.TextFragment{Text: "hi"}}))
			Expect(res.Comments).To(Equal(5))
		})

		It("skips a malformed frame and keeps decoding", func() {
			input := "data: {not json at all\n" + textFrame("survivor") + done
			events, res, err := decodeString(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal([]stream.Event{stream.TextFragment{Text: "survivor"}}))
			Expect(res.DroppedFrames).To(Equal(1))
		})

		It("ignores metadata and blank lines", func() {
			input := "event: chunk\nid: 7\nretry: 100\n\n" + textFrame("hi") + "\n" + done
			events, _, err := decodeString(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
		})
	})

	Describe("empty responses", func() {
		It("fails a stream that terminates without output", func() {
			_, res, err := decodeString(done)
			Expect(err).To(MatchError(stream.ErrEmptyResponse))
			Expect(res.State).To(Equal(stream.StateFailed))
		})

		It("fails a stream that closes without any bytes", func() {
			_, res, err := decodeString("")
			Expect(err).To(MatchError(stream.ErrEmptyResponse))
			Expect(res.State).To(Equal(stream.StateFailed))
		})

		It("fails a keep-alive-only stream", func() {
			_, _, err := decodeString(": ka\n: ka\n" + done)
			Expect(err).To(MatchError(stream.ErrEmptyResponse))
		})

		It("fails a reasoning-only stream when the placeholder is suppressed", func() {
			input := `data: {"choices":[{"delta":{"reasoning":"thinking hard"}}]}` + "\n" + done
			_, _, err := decodeString(input)
			Expect(err).To(MatchError(stream.ErrEmptyResponse))
		})
	})

	Describe("placeholder emission", func() {
		It("emits one placeholder for reasoning when enabled", func() {
			cfg := stream.Config{EmitPlaceholder: true, PlaceholderText: "…"}
			input := `data: {"choices":[{"delta":{"reasoning":"a"}}]}` + "\n" +
				`data: {"choices":[{"delta":{"reasoning":"b"}}]}` + "\n" +
				textFrame("answer") + done

			events, res, err := decode(cfg, strings.NewReader(input))
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal([]stream.Event{
				stream.TextFragment{Text: "…"},
				stream.TextFragment{Text: "answer"},
			}))
			Expect(res.State).To(Equal(stream.StateCompleted))
		})

		It("suppresses the placeholder by default", func() {
			input := `data: {"choices":[{"delta":{"reasoning":"a"}}]}` + "\n" + textFrame("answer") + done
			events, _, err := decodeString(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal([]stream.Event{stream.TextFragment{Text: "answer"}}))
		})

		It("never emits a placeholder after real output", func() {
			cfg := stream.Config{EmitPlaceholder: true}
			input := textFrame("first") +
				`data: {"choices":[{"delta":{"reasoning":"later"}}]}` + "\n" + done
			events, _, err := decode(cfg, strings.NewReader(input))
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal([]stream.Event{stream.TextFragment{Text: "first"}}))
		})
	})

	Describe("stall detection", func() {
		It("emits the placeholder during a data stall when enabled", func() {
			cfg := stream.Config{
				EmitPlaceholder: true,
				PlaceholderText: "…",
				StartStallWarn:  5 * time.Millisecond,
				DataStallWarn:   20 * time.Millisecond,
			}
			r := &scriptedReader{steps: []scriptStep{
				{data: ": ka\n"},
				{delay: 60 * time.Millisecond, data: ": ka\n"},
				{data: textFrame("late")},
				{data: done},
			}}

			events, res, err := decode(cfg, r)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal([]stream.Event{
				stream.TextFragment{Text: "…"},
				stream.TextFragment{Text: "late"},
			}))
			Expect(res.State).To(Equal(stream.StateCompleted))
		})

		It("stays silent during a data stall by default", func() {
			cfg := stream.Config{
				StartStallWarn: 5 * time.Millisecond,
				DataStallWarn:  20 * time.Millisecond,
			}
			r := &scriptedReader{steps: []scriptStep{
				{data: ": ka\n"},
				{delay: 60 * time.Millisecond, data: textFrame("late")},
				{data: done},
			}}

			events, _, err := decode(cfg, r)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal([]stream.Event{stream.TextFragment{Text: "late"}}))
		})
	})

	Describe("cancellation", func() {
		It("ends silently when the context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			reads := 0
			r := io.Reader(readerFunc(func(p []byte) (int, error) {
				reads++
				return 0, context.Canceled
			}))

			var events []stream.Event
			res, err := stream.New(stream.Config{}).Decode(ctx, r, func(ev stream.Event) {
				events = append(events, ev)
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(BeEmpty())
			Expect(res.State).To(Equal(stream.StateCancelled))
			Expect(reads).To(BeZero())
		})

		It("treats a cancelled mid-stream read as cancellation, not failure", func() {
			ctx, cancel := context.WithCancel(context.Background())

			step := 0
			r := io.Reader(readerFunc(func(p []byte) (int, error) {
				step++
				if step == 1 {
					return copy(p, []byte(`data: {"choices":[{"delta":{"content":"partial"}}]}`+"\n")), nil
				}
				cancel()
				return 0, context.Canceled
			}))

			var events []stream.Event
			res, err := stream.New(stream.Config{}).Decode(ctx, r, func(ev stream.Event) {
				events = append(events, ev)
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(Equal([]stream.Event{stream.TextFragment{Text: "partial"}}))
			Expect(res.State).To(Equal(stream.StateCancelled))
		})
	})

	Describe("transport failure", func() {
		It("fails with the wrapped read error, keeping prior output", func() {
			bang := errors.New("connection reset")
			step := 0
			r := io.Reader(readerFunc(func(p []byte) (int, error) {
				step++
				if step == 1 {
					return copy(p, []byte(`data: {"choices":[{"delta":{"content":"kept"}}]}`+"\n")), nil
				}
				return 0, bang
			}))

			var events []stream.Event
			res, err := stream.New(stream.Config{}).Decode(context.Background(), r, func(ev stream.Event) {
				events = append(events, ev)
			})
			Expect(err).To(MatchError(bang))
			Expect(events).To(Equal([]stream.Event{stream.TextFragment{Text: "kept"}}))
			Expect(res.State).To(Equal(stream.StateFailed))
		})
	})

	Describe("pull iteration", func() {
		It("yields the same sequence as push decoding", func() {
			input := textFrame("one") +
				`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"c","function":{"name":"f","arguments":"{}"}}]}}]}` + "\n" +
				textFrame("two") + done

			pushed, _, err := decodeString(input)
			Expect(err).NotTo(HaveOccurred())

			it := stream.New(stream.Config{}).Stream(context.Background(), strings.NewReader(input))
			defer it.Close()

			var pulled []stream.Event
			for {
				ev, err := it.Next()
				Expect(err).NotTo(HaveOccurred())
				if ev == nil {
					break
				}
				pulled = append(pulled, ev)
			}

			Expect(pulled).To(Equal(pushed))
			Expect(it.Result().State).To(Equal(stream.StateCompleted))
		})

		It("reports the failure from Next after draining events", func() {
			it := stream.New(stream.Config{}).Stream(context.Background(), strings.NewReader(done))
			defer it.Close()

			ev, err := it.Next()
			Expect(ev).To(BeNil())
			Expect(err).To(MatchError(stream.ErrEmptyResponse))
			Expect(it.Result().State).To(Equal(stream.StateFailed))
		})
	})
})

// readerFunc adapts a function to io.Reader.
type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
