package eventstream

import (
	"time"

	"github.com/papercomputeco/patchbay/pkg/llm"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnRecorded is emitted after a conversation turn is recorded.
	EventTypeTurnRecorded = "patchbay.turn.recorded"
)

// TurnRecordedEvent is a transport-neutral event payload for a recorded turn.
type TurnRecordedEvent struct {
	SchemaVersion int                  `json:"schema_version"`
	EventType     string               `json:"event_type"`
	EventID       string               `json:"event_id"`
	EmittedAt     time.Time            `json:"emitted_at"`
	Source        EventSource          `json:"source"`
	RequestMeta   TurnRequestMeta      `json:"request_meta"`
	Transcript    TurnTranscriptMeta   `json:"transcript"`
	Turn          llm.ConversationTurn `json:"turn"`
}

// EventSource identifies where the turn originated.
type EventSource struct {
	Gateway  string `json:"gateway,omitempty"`
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// TurnRequestMeta captures request lifecycle metadata for the event.
type TurnRequestMeta struct {
	Path        string    `json:"path,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Streaming   bool      `json:"streaming"`
	HTTPStatus  int       `json:"http_status"`
}

// TurnTranscriptMeta links the event to the stored transcript record.
type TurnTranscriptMeta struct {
	RecordID       string `json:"record_id"`
	ConversationID string `json:"conversation_id,omitempty"`
}
