package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/patchbay/gateway/header"
	"github.com/papercomputeco/patchbay/gateway/worker"
	"github.com/papercomputeco/patchbay/pkg/catalog"
	"github.com/papercomputeco/patchbay/pkg/eventstream"
	"github.com/papercomputeco/patchbay/pkg/llm"
	"github.com/papercomputeco/patchbay/pkg/llm/provider"
	"github.com/papercomputeco/patchbay/pkg/llm/provider/openai"
	"github.com/papercomputeco/patchbay/pkg/stream"
)

const (
	chatPath       = "/v1/chat/completions"
	ollamaChatPath = "/api/chat"
)

// backendTarget is one routed request: where it goes and how to speak to it.
type backendTarget struct {
	name string
	url  string
	key  string
	prov provider.Provider
}

// streamLeg is the pull shape both backend legs share: a source of decoded
// events plus the stream metadata gathered along the way. Summary must only
// be called after Next has delivered its terminal result.
type streamLeg interface {
	Next() (stream.Event, error)
	Summary() (stopReason string, usage *llm.Usage, model string)
	Close()
}

// handleChatCompletions serves POST /v1/chat/completions. The request arrives
// in OpenAI form, routes to a backend by model, and the response is rewritten
// back into OpenAI form whatever the backend speaks natively.
func (g *Gateway) handleChatCompletions(c *fiber.Ctx) error {
	startTime := time.Now()

	surface := g.providers[provider.OpenAI]

	parsedReq, err := surface.ParseRequest(c.Body())
	if err != nil {
		g.logger.Warn("failed to parse request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid chat completion request"})
	}
	if parsedReq.Model == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "model is required"})
	}

	// Every turn belongs to a conversation. A client that wants threading
	// sends the id back on its next request.
	conversationID := c.Get(header.ConversationIDHeader)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	c.Set(header.ConversationIDHeader, conversationID)

	target, err := g.resolveBackend(g.catalog.Route(c.Context(), parsedReq.Model))
	if err != nil {
		g.logger.Warn("no backend for model",
			zap.String("model", parsedReq.Model),
			zap.Error(err),
		)
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	streaming := parsedReq.Streaming(surface.DefaultStreaming())

	g.logger.Debug("routed chat completion",
		zap.String("model", parsedReq.Model),
		zap.String("backend", target.name),
		zap.Bool("streaming", streaming),
		zap.Int("message_count", len(parsedReq.Messages)),
	)

	if streaming {
		return g.handleStreamingChat(c, target, parsedReq, conversationID, startTime)
	}

	return g.handleBufferedChat(c, target, parsedReq, conversationID, startTime)
}

// resolveBackend maps a catalog route to a concrete backend target.
func (g *Gateway) resolveBackend(backend string) (backendTarget, error) {
	switch backend {
	case catalog.BackendOpenAI:
		if g.config.OpenAIURL == "" {
			return backendTarget{}, errors.New("openai backend is not configured")
		}
		return backendTarget{
			name: backend,
			url:  strings.TrimRight(g.config.OpenAIURL, "/") + chatPath,
			key:  g.config.OpenAIKey,
			prov: g.providers[provider.OpenAI],
		}, nil
	case catalog.BackendOllama:
		if g.config.OllamaURL == "" {
			return backendTarget{}, errors.New("ollama backend is not configured")
		}
		return backendTarget{
			name: backend,
			url:  strings.TrimRight(g.config.OllamaURL, "/") + ollamaChatPath,
			prov: g.providers[provider.Ollama],
		}, nil
	default:
		return backendTarget{}, fmt.Errorf("unknown backend %q", backend)
	}
}

// upstreamRequest builds the backend request: the parsed request re-encoded
// in the backend's wire format, client headers filtered through, and the
// backend credential applied.
func (g *Gateway) upstreamRequest(ctx context.Context, c *fiber.Ctx, target backendTarget, parsedReq *llm.ChatRequest) (*http.Request, error) {
	body, err := target.prov.FormatRequest(parsedReq)
	if err != nil {
		return nil, fmt.Errorf("formatting %s request: %w", target.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	g.headerHandler.SetUpstreamRequestHeaders(c, httpReq)
	httpReq.Header.Set(fiber.HeaderContentType, "application/json")
	if target.key != "" {
		httpReq.Header.Set(fiber.HeaderAuthorization, "Bearer "+target.key)
	}

	return httpReq, nil
}

// handleBufferedChat handles non-streaming requests: the backend response is
// aggregated upstream, so one read and one rewrite suffice.
func (g *Gateway) handleBufferedChat(c *fiber.Ctx, target backendTarget, parsedReq *llm.ChatRequest, conversationID string, startTime time.Time) error {
	off := false
	parsedReq.Stream = &off

	httpReq, err := g.upstreamRequest(c.Context(), c, target, parsedReq)
	if err != nil {
		g.logger.Error("failed to create upstream request", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "internal error"})
	}

	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		g.logger.Error("upstream request failed", zap.Error(err))
		g.metrics.recordRequest(target.name, false, fiber.StatusBadGateway, time.Since(startTime))
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "upstream request failed"})
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		g.logger.Error("failed to read upstream response", zap.Error(err))
		g.metrics.recordRequest(target.name, false, fiber.StatusBadGateway, time.Since(startTime))
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "failed to read upstream response"})
	}

	if httpResp.StatusCode != http.StatusOK {
		g.logger.Error("upstream returned error",
			zap.Int("status", httpResp.StatusCode),
			zap.String("body", string(respBody)),
		)
		g.metrics.recordRequest(target.name, false, httpResp.StatusCode, time.Since(startTime))
		return c.Status(httpResp.StatusCode).Send(respBody)
	}

	parsedResp, err := target.prov.ParseResponse(respBody)
	if err != nil {
		g.logger.Error("failed to parse upstream response",
			zap.String("backend", target.name),
			zap.Error(err),
		)
		g.metrics.recordRequest(target.name, false, fiber.StatusBadGateway, time.Since(startTime))
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "unreadable upstream response"})
	}

	out, err := openai.FormatResponse("chatcmpl-"+uuid.NewString(), parsedResp)
	if err != nil {
		g.logger.Error("failed to format response", zap.Error(err))
		g.metrics.recordRequest(target.name, false, fiber.StatusInternalServerError, time.Since(startTime))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "internal error"})
	}

	g.logger.Debug("received response from upstream",
		zap.String("model", parsedResp.Model),
		zap.String("backend", target.name),
		zap.Duration("duration", time.Since(startTime)),
	)

	g.recordTurn(target, parsedReq, parsedResp, conversationID, startTime, false)
	g.metrics.recordRequest(target.name, false, fiber.StatusOK, time.Since(startTime))

	g.headerHandler.SetClientResponseHeaders(c, httpResp)
	c.Set(header.ConversationIDHeader, conversationID)
	c.Set(fiber.HeaderContentType, "application/json")
	return c.Status(fiber.StatusOK).Send(out)
}

// handleStreamingChat handles streaming requests. The first decoded event is
// awaited synchronously, so a stream that dies or ends empty before saying
// anything still turns into a proper error status instead of an empty 200.
func (g *Gateway) handleStreamingChat(c *fiber.Ctx, target backendTarget, parsedReq *llm.ChatRequest, conversationID string, startTime time.Time) error {
	on := true
	parsedReq.Stream = &on

	if target.name == catalog.BackendOpenAI {
		// Ask the backend to attach usage to its final chunk so the recorded
		// turn carries token counts. The client never sees the backend
		// stream, only the gateway's rewrite of it.
		includeStreamUsage(parsedReq)
	}

	// Use context.Background() instead of c.Context() because fasthttp recycles
	// its RequestCtx after the handler returns, but the stream pump runs
	// asynchronously in a separate goroutine and needs the upstream connection
	// to remain open.
	httpReq, err := g.upstreamRequest(context.Background(), c, target, parsedReq)
	if err != nil {
		g.logger.Error("failed to create upstream request", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "internal error"})
	}

	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		g.logger.Error("upstream request failed", zap.Error(err))
		g.metrics.recordRequest(target.name, true, fiber.StatusBadGateway, time.Since(startTime))
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "upstream request failed"})
	}
	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		g.logger.Error("upstream returned error",
			zap.Int("status", httpResp.StatusCode),
			zap.String("body", string(respBody)),
		)
		g.metrics.recordRequest(target.name, true, httpResp.StatusCode, time.Since(startTime))
		return c.Status(httpResp.StatusCode).Send(respBody)
	}

	var leg streamLeg
	switch target.name {
	case catalog.BackendOllama:
		leg = newNDJSONStream(target.prov, httpResp.Body)
	default:
		tap := newUsageTap(target.prov)
		leg = &sseLeg{
			it:  g.decoder.Stream(context.Background(), io.TeeReader(httpResp.Body, tap)),
			tap: tap,
		}
	}

	first, err := leg.Next()
	if first == nil {
		leg.Close()
		httpResp.Body.Close()
		if err == nil {
			err = stream.ErrEmptyResponse
		}
		return g.failStream(c, target, err, startTime)
	}

	g.commitStream(c, httpResp, conversationID)

	// Use io.Pipe + SetBodyStream instead of SetBodyStreamWriter.
	// SetBodyStreamWriter uses an internal PipeConns with a buffered channel
	// (capacity 4) and two bufio.Writers, which means Flush() in the callback
	// only pushes data into the pipe — NOT to the TCP socket. This causes all
	// chunks to buffer in memory before being sent to the client.
	//
	// With io.Pipe, pw.Write blocks until the reader consumes the data, and
	// the reader is fasthttp's writeBodyChunked which flushes to TCP after
	// every chunk. This gives direct backpressure and true per-chunk streaming.
	pr, pw := io.Pipe()
	go g.pumpStream(leg, first, pw, httpResp, target, parsedReq, conversationID, startTime)

	// Set the pipe reader as the body stream with unknown size (-1),
	// which triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// failStream converts a stream that died before its first event into an
// error response. The client has seen no SSE bytes yet, so a real status is
// still possible.
func (g *Gateway) failStream(c *fiber.Ctx, target backendTarget, err error, startTime time.Time) error {
	msg := "upstream stream failed"
	if errors.Is(err, stream.ErrEmptyResponse) {
		msg = "upstream returned an empty response"
		g.metrics.recordEmptyResponse(target.name)
	}

	g.logger.Error("stream failed before first event",
		zap.String("backend", target.name),
		zap.Error(err),
	)
	g.metrics.recordRequest(target.name, true, fiber.StatusBadGateway, time.Since(startTime))

	return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: msg})
}

// commitStream locks in the SSE response. From here on an error can only end
// the stream early, never change the status.
func (g *Gateway) commitStream(c *fiber.Ctx, httpResp *http.Response, conversationID string) {
	g.headerHandler.SetClientResponseHeaders(c, httpResp)
	c.Set(header.ConversationIDHeader, conversationID)
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
}

// pumpStream drains leg events into the client stream, finishing with the
// stop chunk, the [DONE] sentinel, and the recorded turn.
func (g *Gateway) pumpStream(leg streamLeg, first stream.Event, pw *io.PipeWriter, httpResp *http.Response, target backendTarget, parsedReq *llm.ChatRequest, conversationID string, startTime time.Time) {
	// Close the upstream response body once streaming is complete.
	defer httpResp.Body.Close()
	defer pw.Close()
	defer leg.Close()
	defer func() {
		g.metrics.recordRequest(target.name, true, fiber.StatusOK, time.Since(startTime))
	}()

	cs, err := newClientStream(pw, parsedReq.Model)
	if err != nil {
		g.logger.Debug("client went away before the stream opened", zap.Error(err))
		return
	}

	for ev := first; ; {
		if err := g.relayEvent(cs, target, ev); err != nil {
			// A write error means the client hung up and fasthttp closed the
			// pipe reader. Stop producing; the partial turn is dropped.
			g.logger.Debug("client disconnected mid-stream", zap.Error(err))
			return
		}

		next, err := leg.Next()
		if err != nil {
			// The client already holds a 200 and partial content; all that
			// is left is to stop. The turn is not recorded.
			g.logger.Error("upstream stream failed mid-response",
				zap.String("backend", target.name),
				zap.Error(err),
			)
			return
		}
		if next == nil {
			break
		}
		ev = next
	}

	stopReason, usage, model := leg.Summary()
	if err := cs.Finish(stopReason, usage); err != nil {
		g.logger.Debug("client disconnected at stream end", zap.Error(err))
		return
	}

	if model == "" {
		model = parsedReq.Model
	}
	resp := &llm.ChatResponse{
		Model:      model,
		CreatedAt:  time.Now().UTC(),
		Message:    cs.Message(),
		Done:       true,
		StopReason: cs.StopReason(stopReason),
		Usage:      usage,
	}

	g.recordTurn(target, parsedReq, resp, conversationID, startTime, true)
}

// relayEvent writes one decoded event to the client stream.
func (g *Gateway) relayEvent(cs *clientStream, target backendTarget, ev stream.Event) error {
	switch e := ev.(type) {
	case stream.TextFragment:
		g.metrics.recordStreamEvent(target.name, "text")
		return cs.Text(e.Text)
	case stream.ToolCall:
		g.metrics.recordStreamEvent(target.name, "tool_call")
		return cs.ToolCall(e.ID, e.Name, e.Arguments)
	default:
		return nil
	}
}

// recordTurn enqueues the finished turn for async recording.
func (g *Gateway) recordTurn(target backendTarget, req *llm.ChatRequest, resp *llm.ChatResponse, conversationID string, startTime time.Time, streaming bool) {
	completed := time.Now().UTC()

	ok := g.workerPool.Enqueue(worker.Job{
		Provider: target.name,
		Turn: llm.ConversationTurn{
			ConversationID: conversationID,
			Provider:       target.name,
			Request:        req,
			Response:       resp,
		},
		Meta: eventstream.TurnRequestMeta{
			Path:        chatPath,
			StartedAt:   startTime.UTC(),
			CompletedAt: completed,
			DurationMs:  completed.Sub(startTime.UTC()).Milliseconds(),
			Streaming:   streaming,
			HTTPStatus:  fiber.StatusOK,
		},
	})
	if !ok {
		g.metrics.recordDroppedJob()
	}
}

// includeStreamUsage merges include_usage into the request's stream options.
func includeStreamUsage(req *llm.ChatRequest) {
	opts, _ := req.Extra["stream_options"].(map[string]any)
	if opts == nil {
		opts = make(map[string]any)
	}
	opts["include_usage"] = true

	if req.Extra == nil {
		req.Extra = make(map[string]any)
	}
	req.Extra["stream_options"] = opts
}

// sseLeg pairs the SSE decoder's iterator with the usage tap riding its reads.
type sseLeg struct {
	it  *stream.Iterator
	tap *usageTap
}

func (l *sseLeg) Next() (stream.Event, error) { return l.it.Next() }

func (l *sseLeg) Summary() (string, *llm.Usage, string) { return l.tap.Summary() }

func (l *sseLeg) Close() { l.it.Close() }
