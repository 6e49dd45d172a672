package stream

// Wire shape of one streamed completion chunk. Only the fields the decoder
// consumes are declared; providers attach plenty more and all of it is
// ignored here.
type chunkPayload struct {
	Choices []chunkChoice `json:"choices"`
}

type chunkChoice struct {
	Delta chunkDelta `json:"delta"`
}

type chunkDelta struct {
	// Content distinguishes a JSON null from an empty string. Both carry no
	// text, but null is the common filler on role-announcement and
	// tool-call chunks.
	Content   *string        `json:"content"`
	Reasoning string         `json:"reasoning"`
	ToolCalls []callFragment `json:"tool_calls"`
}

type callFragment struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}
