package llm

// ConversationTurn represents a complete request-response pair, ready for
// transcript storage and event publication.
type ConversationTurn struct {
	ConversationID string        `json:"conversation_id,omitempty"`
	Provider       string        `json:"provider"`
	Request        *ChatRequest  `json:"request"`
	Response       *ChatResponse `json:"response"`
}
