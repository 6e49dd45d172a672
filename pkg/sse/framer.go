package sse

import "bytes"

// Framer assembles complete lines from a raw byte feed delivered in chunks
// of arbitrary size and alignment. It recognizes both "\n" and "\r\n" line
// endings and holds the unterminated tail of the feed between calls.
//
// The tail is kept as raw bytes, not decoded text. Splitting on the byte
// '\n' is rune-safe because UTF-8 continuation bytes never equal '\n', so a
// multi-byte character split across two chunks simply stays buffered until
// its remaining bytes arrive.
//
// A Framer is stateful and belongs to exactly one stream. The zero value is
// ready to use.
type Framer struct {
	rest []byte
}

// Feed appends chunk to the buffered tail and returns every line completed
// by it, in stream order, with line terminators stripped. The final
// unterminated segment (possibly empty, possibly ending mid-character) is
// retained for the next call.
func (f *Framer) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}

	f.rest = append(f.rest, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(f.rest, '\n')
		if i < 0 {
			return lines
		}
		lines = append(lines, string(trimCR(f.rest[:i])))
		f.rest = f.rest[i+1:]
	}
}

// Flush returns the unterminated tail as a final line. The second return is
// false when there is nothing buffered. Callers invoke Flush exactly once,
// at end-of-stream, so that a feed whose last line lacks a terminator is
// still fully delivered.
func (f *Framer) Flush() (string, bool) {
	line := trimCR(f.rest)
	f.rest = nil
	if len(line) == 0 {
		return "", false
	}
	return string(line), true
}

// trimCR strips a single trailing carriage return, the leftover half of a
// "\r\n" terminator.
func trimCR(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		return b[:n-1]
	}
	return b
}
