// Package header provides header filtering for the patchbay gateway.
//
// The gateway sits between a chat client and an upstream LLM backend like so:
//
//	Client <--> Gateway <--> Upstream LLM Backend
//
// and headers are handled accordingly as each leg negotiates compression, hops,
// encoding, etc. independently.
package header

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Handler manages headers between gateway connections.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// ConversationIDHeader carries the conversation a turn belongs to. Clients
// send it to continue a conversation; the gateway echoes it (minting an id
// when absent) so clients can thread follow-up requests.
const ConversationIDHeader = "X-Patchbay-Conversation-Id"

// skipRequest is the set of request headers (client --> gateway --> upstream)
// that are not forwarded to the upstream LLM backend.
var skipRequest = map[string]struct{}{
	// Hop-by-hop headers: only meaningful for a single transport-level connection.
	"Connection": {},

	// The Host header is rewritten by Go's http.Transport to match the
	// upstream URL. Forwarding the client's Host would confuse virtual-hosted
	// upstreams.
	"Host": {},

	// Accept-Encoding is stripped so that Go's http.Transport adds its own
	// "Accept-Encoding: gzip" and transparently decompresses the upstream
	// response.
	"Accept-Encoding": {},

	// The gateway re-encodes the request body into the backend's native
	// format, so the client's Content-Length and Content-Type no longer
	// describe what goes upstream. http.NewRequest computes the new length
	// and the gateway sets its own Content-Type.
	"Content-Length": {},
	"Content-Type":   {},

	// Internal conversation threading header.
	ConversationIDHeader: {},
}

// skipResponse is the set of upstream response headers (client <-- gateway <-- upstream)
// that are not copied back to the downstream client.
var skipResponse = map[string]struct{}{
	// Hop-by-hop headers: only meaningful for a single transport-level connection.
	"Connection": {},

	// Hop-by-hop headers: fasthttp manages chunked transfer encoding for the
	// client-facing response independently.
	"Transfer-Encoding": {},

	// The gateway always reads a decompressed body (Go's http.Transport strips
	// Content-Encoding after auto-decompression). Forwarding a stale
	// Content-Encoding would claim an encoding the body no longer has.
	// Fiber's compress middleware sets the correct Content-Encoding when it
	// re-compresses the response back down to the client.
	"Content-Encoding": {},

	// The upstream Content-Length reflects the (possibly compressed) upstream
	// body size. The gateway rewrites the body into the client's wire format,
	// so the upstream length is wrong twice over. Letting Fiber compute the
	// final Content-Length avoids sending an incorrect value.
	"Content-Length": {},

	// The upstream Content-Type describes the backend's native format (Ollama
	// answers NDJSON). The gateway sets its own Content-Type for the rewritten
	// body.
	"Content-Type": {},
}

// SetUpstreamRequestHeaders copies request headers from the Fiber context to
// the outgoing http.Request, filtering headers that the gateway should not
// forward to the upstream API.
func (h *Handler) SetUpstreamRequestHeaders(c *fiber.Ctx, req *http.Request) {
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := string(key)
		if _, skip := skipRequest[k]; !skip {
			req.Header.Set(k, string(value))
		}
	})
}

// SetClientResponseHeaders copies response headers from the upstream API
// http.Response to the Fiber context, filtering headers that the gateway
// should not forward back down to the client.
func (h *Handler) SetClientResponseHeaders(c *fiber.Ctx, resp *http.Response) {
	for k, v := range resp.Header {
		if _, skip := skipResponse[k]; !skip {
			c.Set(k, strings.Join(v, ", "))
		}
	}
}
