package worker

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/patchbay/pkg/eventstream"
	"github.com/papercomputeco/patchbay/pkg/llm"
	"github.com/papercomputeco/patchbay/pkg/transcript/inmemory"
)

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []*eventstream.TurnRecordedEvent
}

func (p *capturePublisher) PublishTurn(_ context.Context, event *eventstream.TurnRecordedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) Events() []*eventstream.TurnRecordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.TurnRecordedEvent(nil), p.events...)
}

// newTestPool creates a worker pool backed by an in-memory transcript store.
// Callers should "wp.Close()" to drain enqueued jobs before asserting store state.
func newTestPool() (*Pool, *inmemory.Store, *capturePublisher) {
	logger, _ := zap.NewDevelopment()
	store := inmemory.NewStore()
	publisher := &capturePublisher{}

	wp, err := NewPool(&Config{
		Store:     store,
		Publisher: publisher,
		Gateway:   "localhost:8000",
		Logger:    logger,
	})
	Expect(err).NotTo(HaveOccurred())

	return wp, store, publisher
}

func testJob() Job {
	return Job{
		Provider: "openai",
		Turn: llm.ConversationTurn{
			ConversationID: "conv-1",
			Provider:       "openai",
			Request: &llm.ChatRequest{
				Model: "test-model",
				Messages: []llm.Message{
					llm.NewTextMessage(llm.RoleUser, "hello"),
				},
			},
			Response: &llm.ChatResponse{
				Model:      "test-model",
				Message:    llm.NewTextMessage(llm.RoleAssistant, "hi"),
				Done:       true,
				StopReason: "stop",
				Usage:      &llm.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
			},
		},
		Meta: eventstream.TurnRequestMeta{
			Path:       "/v1/chat/completions",
			Streaming:  true,
			HTTPStatus: 200,
		},
	}
}

var _ = Describe("Worker Pool", func() {
	var (
		wp        *Pool
		store     *inmemory.Store
		publisher *capturePublisher
		ctx       context.Context
	)

	BeforeEach(func() {
		wp, store, publisher = newTestPool()
		ctx = context.Background()
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			ok := wp.Enqueue(testJob())
			Expect(ok).To(BeTrue())
			wp.Close()
		})
	})

	Describe("Turn Recording", func() {
		// These tests exercise the pool's recording path by enqueuing jobs
		// and draining via wp.Close() before asserting store state.

		Context("after one recorded turn", func() {
			BeforeEach(func() {
				wp.Enqueue(testJob())

				// Drain the worker pool to ensure recording completes before assertions
				wp.Close()
			})

			It("saves the turn to the transcript store", func() {
				recs, err := store.List(ctx, "conv-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(recs).To(HaveLen(1))

				Expect(recs[0].Provider).To(Equal("openai"))
				Expect(recs[0].Model).To(Equal("test-model"))
				Expect(recs[0].Usage.TotalTokens).To(Equal(5))
				Expect(recs[0].Response.Message.Text()).To(Equal("hi"))
			})

			It("publishes a turn event referencing the saved record", func() {
				events := publisher.Events()
				Expect(events).To(HaveLen(1))

				recs, err := store.List(ctx, "conv-1")
				Expect(err).NotTo(HaveOccurred())

				event := events[0]
				Expect(event.EventType).To(Equal(eventstream.EventTypeTurnRecorded))
				Expect(event.EventID).NotTo(BeEmpty())
				Expect(event.Transcript.RecordID).To(Equal(recs[0].ID))
				Expect(event.Transcript.ConversationID).To(Equal("conv-1"))
				Expect(event.Source.Gateway).To(Equal("localhost:8000"))
				Expect(event.Source.Provider).To(Equal("openai"))
				Expect(event.Source.Model).To(Equal("test-model"))
				Expect(event.RequestMeta.Streaming).To(BeTrue())
				Expect(event.RequestMeta.HTTPStatus).To(Equal(200))
			})
		})

		Context("multiple turns of one conversation", func() {
			BeforeEach(func() {
				first := testJob()
				second := testJob()
				second.Turn.Request.Messages = append(second.Turn.Request.Messages,
					llm.NewTextMessage(llm.RoleAssistant, "hi"),
					llm.NewTextMessage(llm.RoleUser, "how are you?"),
				)
				second.Turn.Response = &llm.ChatResponse{
					Model:   "test-model",
					Message: llm.NewTextMessage(llm.RoleAssistant, "doing well"),
					Done:    true,
				}

				wp.Enqueue(first)
				wp.Enqueue(second)
				wp.Close()
			})

			It("lists the records in the order they were saved", func() {
				recs, err := store.List(ctx, "conv-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(recs).To(HaveLen(2))
				Expect(recs[0].Response.Message.Text()).To(Equal("hi"))
				Expect(recs[1].Response.Message.Text()).To(Equal("doing well"))
			})

			It("publishes one event per turn", func() {
				Expect(publisher.Events()).To(HaveLen(2))
			})
		})

		Context("without a publisher", func() {
			BeforeEach(func() {
				logger, _ := zap.NewDevelopment()
				store = inmemory.NewStore()

				var err error
				wp, err = NewPool(&Config{
					Store:  store,
					Logger: logger,
				})
				Expect(err).NotTo(HaveOccurred())

				wp.Enqueue(testJob())
				wp.Close()
			})

			It("still saves the turn", func() {
				recs, err := store.List(ctx, "conv-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(recs).To(HaveLen(1))
			})
		})
	})
})
