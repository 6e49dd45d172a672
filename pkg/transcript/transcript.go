// Package transcript persists completed conversation turns. A Record captures
// one request/response exchange in the normalized chat model; Store
// implementations back it with memory, SQLite, or PostgreSQL.
package transcript

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/patchbay/pkg/llm"
)

// ErrNotFound is returned when a transcript record doesn't exist in the store.
var ErrNotFound = errors.New("transcript not found")

// Record is a single persisted conversation turn.
type Record struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Provider       string            `json:"provider"`
	Model          string            `json:"model"`
	CreatedAt      time.Time         `json:"created_at"`
	Request        *llm.ChatRequest  `json:"request"`
	Response       *llm.ChatResponse `json:"response"`
	Usage          llm.Usage         `json:"usage"`
}

// NewRecord builds a Record from a finished turn, minting an id and timestamp.
// The model is taken from the response when present (backends may substitute
// an alias), falling back to the request.
func NewRecord(turn *llm.ConversationTurn) *Record {
	rec := &Record{
		ID:             uuid.NewString(),
		ConversationID: turn.ConversationID,
		Provider:       turn.Provider,
		CreatedAt:      time.Now().UTC(),
		Request:        turn.Request,
		Response:       turn.Response,
	}

	if turn.Request != nil {
		rec.Model = turn.Request.Model
	}
	if turn.Response != nil {
		if turn.Response.Model != "" {
			rec.Model = turn.Response.Model
		}
		if turn.Response.Usage != nil {
			rec.Usage = *turn.Response.Usage
		}
	}

	return rec
}

// Store persists and retrieves transcript records.
type Store interface {
	// Save persists a record. Saving an existing id overwrites it.
	Save(ctx context.Context, rec *Record) error

	// Get retrieves a record by id. Returns ErrNotFound when absent.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns the records of a conversation in the order they were
	// saved. An empty conversation id lists every record.
	List(ctx context.Context, conversationID string) ([]*Record, error)

	// Search returns up to limit records whose message text matches the
	// query, newest first. A limit <= 0 applies a store-chosen default.
	Search(ctx context.Context, query string, limit int) ([]*Record, error)

	// Close releases any resources held by the store.
	Close() error
}

// SearchText renders the searchable text of a record: the concatenated text
// parts of the request messages and the response message. SQL stores index
// this column; the in-memory store matches against it directly.
func (r *Record) SearchText() string {
	var out string
	if r.Request != nil {
		for _, msg := range r.Request.Messages {
			if t := msg.Text(); t != "" {
				out += t + "\n"
			}
		}
	}
	if r.Response != nil {
		if t := r.Response.Message.Text(); t != "" {
			out += t + "\n"
		}
	}
	return out
}
