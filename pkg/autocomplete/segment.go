// Package autocomplete resolves the comma-delimited tag under a text cursor,
// looks it up with debouncing and inserts chosen tags with normalized
// punctuation.
package autocomplete

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const delimiter = ','

// Segment is the comma-delimited span containing the cursor. Start and End
// are byte offsets; End is the offset of the closing comma or len(text).
type Segment struct {
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Raw       string `json:"raw"`
	Term      string `json:"term"`
	Completed bool   `json:"completed"`
}

// ExtractSegment returns the segment under cursor. The cursor is clamped to
// the text and moved back to a rune boundary.
//
// A segment is completed when the cursor sits on a tag boundary: nothing but
// whitespace between the cursor and a following comma, or nothing but
// whitespace between a preceding comma and the cursor.
func ExtractSegment(text string, cursor int) Segment {
	cursor = clampCursor(text, cursor)

	start := strings.LastIndexByte(text[:cursor], delimiter) + 1

	end := len(text)
	if offset := strings.IndexByte(text[cursor:], delimiter); offset >= 0 {
		end = cursor + offset
	}

	raw := text[start:end]
	head := text[start:cursor]
	tail := text[cursor:end]

	closedAfter := end < len(text) && isBlank(tail)
	freshAfterComma := start > 0 && isBlank(head)

	return Segment{
		Start:     start,
		End:       end,
		Raw:       raw,
		Term:      strings.TrimSpace(raw),
		Completed: closedAfter || freshAfterComma,
	}
}

// Insert replaces the segment under cursor with name and returns the new text
// and cursor. It depends only on its arguments.
func Insert(name, text string, cursor int) (string, int) {
	segment := ExtractSegment(text, cursor)

	lead := ""
	if r, _ := utf8.DecodeRuneInString(segment.Raw); segment.Raw != "" && unicode.IsSpace(r) {
		lead = " "
	}

	base := text[:segment.Start] + lead + name

	return joinSuffix(base, text[segment.End:])
}

// joinSuffix appends the text that followed the segment to base, normalizing
// the delimiter between them to ", ". When the delimiter is already in place
// the cursor stays right after the tag; otherwise it lands after the delimiter.
func joinSuffix(base, after string) (string, int) {
	switch {
	case strings.HasPrefix(after, ", "):
		return base + after, len(base)
	case strings.HasPrefix(after, ","):
		return base + ", " + after[1:], len(base) + 2
	case strings.HasPrefix(after, " "):
		return base + "," + after, len(base) + 2
	default:
		return base + ", " + after, len(base) + 2
	}
}

func clampCursor(text string, cursor int) int {
	cursor = min(max(cursor, 0), len(text))

	for cursor > 0 && cursor < len(text) && !utf8.RuneStart(text[cursor]) {
		cursor--
	}

	return cursor
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
