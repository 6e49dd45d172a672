// Package sse provides line framing, frame classification, and event writing
// for text/event-stream (Server-Sent Events) feeds.
//
// The reading half is chunk-oriented rather than scanner-oriented: a Framer
// accepts raw transport chunks split at arbitrary byte offsets and yields
// complete lines, and Classify maps each line to its protocol meaning. The
// stream decoder builds on these two primitives to guarantee identical
// output no matter how the transport fragments the feed.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import "strings"

// DoneSentinel is the payload conventionally sent as the final data frame of
// an OpenAI-style completion stream.
const DoneSentinel = "[DONE]"

// FrameKind identifies the protocol meaning of a single stream line.
type FrameKind int

const (
	// FrameBlank covers empty lines, whitespace-only lines, data frames with
	// an empty payload, and any non-conforming line. Blank frames carry no
	// information and are ignored by decoders.
	FrameBlank FrameKind = iota

	// FrameComment is a keep-alive comment line (leading ':'). Comments are
	// counted for diagnostics but never decoded.
	FrameComment

	// FrameMeta is an "event:", "id:", or "retry:" field line. Metadata is
	// loggable but ignored for decoding.
	FrameMeta

	// FrameData is a "data:" line carrying a payload.
	FrameData

	// FrameTerminator is a data frame whose payload is exactly DoneSentinel.
	FrameTerminator
)

// String returns the lowercase name of the frame kind.
func (k FrameKind) String() string {
	switch k {
	case FrameBlank:
		return "blank"
	case FrameComment:
		return "comment"
	case FrameMeta:
		return "meta"
	case FrameData:
		return "data"
	case FrameTerminator:
		return "terminator"
	default:
		return "unknown"
	}
}

// Frame is the classification of one stream line.
type Frame struct {
	Kind FrameKind

	// Payload is the data content with the "data:" prefix stripped and
	// leading whitespace removed. Set only for FrameData.
	Payload string

	// Field and Value hold the metadata field name ("event", "id", "retry")
	// and its trimmed value. Set only for FrameMeta.
	Field string
	Value string
}

// metaFields are the SSE field names that carry stream metadata rather than
// payload data.
var metaFields = map[string]struct{}{
	"event": {},
	"id":    {},
	"retry": {},
}

// Classify maps one line to its Frame. The line must already be stripped of
// its terminator (the Framer does this).
//
// Classification is deliberately forgiving: anything that is not a comment,
// a known metadata field, or a data frame is a blank frame. A malformed line
// never fails the stream, it just contributes nothing.
func Classify(line string) Frame {
	if strings.TrimSpace(line) == "" {
		return Frame{Kind: FrameBlank}
	}

	if strings.HasPrefix(line, ":") {
		return Frame{Kind: FrameComment}
	}

	field, value, ok := strings.Cut(line, ":")
	if !ok {
		return Frame{Kind: FrameBlank}
	}

	if _, meta := metaFields[field]; meta {
		return Frame{Kind: FrameMeta, Field: field, Value: strings.TrimSpace(value)}
	}

	if field != "data" {
		return Frame{Kind: FrameBlank}
	}

	payload := strings.TrimLeft(value, " \t")
	switch payload {
	case "":
		return Frame{Kind: FrameBlank}
	case DoneSentinel:
		return Frame{Kind: FrameTerminator}
	default:
		return Frame{Kind: FrameData, Payload: payload}
	}
}
