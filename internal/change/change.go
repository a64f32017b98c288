// Package change applies batches of range-replacement edits to document text.
//
// Offsets count Unicode code points. Every edit in a batch refers to the text
// as it was before the batch, so edits are applied from the highest offset to
// the lowest and earlier replacements never shift pending ones.
package change

import (
	"sort"
)

// Edit replaces the half-open range [From, To) with Insert.
type Edit struct {
	From   int    `json:"from"`
	To     int    `json:"to"`
	Insert string `json:"insert"`
}

// Apply returns content with edits applied. Out-of-range offsets are clamped
// into [0, len(content)] and an inverted range collapses to its smaller end,
// so Apply always produces some text and never fails.
func Apply(content string, edits []Edit) string {
	if len(edits) == 0 {
		return content
	}

	text := []rune(content)
	ordered := Normalize(edits, len(text))

	for i := len(ordered) - 1; i >= 0; i-- {
		e := ordered[i]
		from := clamp(e.From, 0, len(text))
		to := clamp(e.To, from, len(text))

		next := make([]rune, 0, len(text)-(to-from)+len(e.Insert))
		next = append(next, text[:from]...)
		next = append(next, []rune(e.Insert)...)
		next = append(next, text[to:]...)
		text = next
	}

	return string(text)
}

// Normalize returns a copy of edits clamped against a document of the given
// length and stably sorted by ascending From. A range that runs into the next
// edit is cut at that edit's From, so normalized ranges never overlap.
func Normalize(edits []Edit, length int) []Edit {
	out := make([]Edit, len(edits))
	for i, e := range edits {
		from := clamp(e.From, 0, length)
		to := clamp(e.To, 0, length)
		if from > to {
			from = to
		}
		out[i] = Edit{From: from, To: to, Insert: e.Insert}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].From < out[j].From
	})

	for i := 0; i+1 < len(out); i++ {
		if out[i].To > out[i+1].From {
			out[i].To = out[i+1].From
		}
	}
	return out
}

// Delta returns how much a normalized edit changes the document length.
func (e Edit) Delta() int {
	return len([]rune(e.Insert)) - (e.To - e.From)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
