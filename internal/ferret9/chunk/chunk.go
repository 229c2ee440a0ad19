// Package chunk reflows generated text into fragments that fit a single
// Discord message, preferring paragraph, sentence and word boundaries over
// hard cuts.
package chunk

import (
	"errors"
	"fmt"
)

const (
	// DefaultMaxLength leaves room for the "[Part i/N] " label under the
	// transport ceiling.
	DefaultMaxLength = 1950

	// TransportLimit is Discord's per-message ceiling.
	TransportLimit = 2000

	// EmbedDescriptionLimit keeps embed descriptions clear of Discord's
	// 4096 character cap.
	EmbedDescriptionLimit = 4000

	// FieldLimit is the length activity log fields are cut to.
	FieldLimit = 1000
)

// ErrInvalidArgument is returned for a non-positive length limit.
var ErrInvalidArgument = errors.New("chunk: invalid argument")

// Break names the boundary that ended a fragment.
type Break int

const (
	BreakNone      Break = iota // last fragment
	BreakParagraph              // "\n\n", both consumed
	BreakSentence               // ". ", period kept, space consumed
	BreakWord                   // " ", consumed
	BreakHard                   // cut at the limit, nothing consumed
)

// Consumed returns the characters dropped between this fragment and the
// next one.
func (b Break) Consumed() string {
	switch b {
	case BreakParagraph:
		return "\n\n"
	case BreakSentence, BreakWord:
		return " "
	default:
		return ""
	}
}

func (b Break) String() string {
	switch b {
	case BreakParagraph:
		return "paragraph"
	case BreakSentence:
		return "sentence"
	case BreakWord:
		return "word"
	case BreakHard:
		return "hard"
	default:
		return "none"
	}
}

// Fragment is one piece of a split message.
type Fragment struct {
	Index int // 1-based
	Total int
	Text  string
	Break Break
}

// Label returns the text as it is sent: prefixed with "[Part i/N] " when the
// message was split.
func (f Fragment) Label() string {
	if f.Total <= 1 {
		return f.Text
	}
	return fmt.Sprintf("[Part %d/%d] %s", f.Index, f.Total, f.Text)
}

var (
	paragraphSep = []rune("\n\n")
	sentenceSep  = []rune(". ")
	wordSep      = []rune(" ")
)

// Split breaks text into fragments of at most maxLength runes each.
//
// While the remainder is too long, the cut is chosen from the first window
// of maxLength runes, in order of preference:
//  1. the last "\n\n" at or beyond 75% of the window;
//  2. the last ". " at or beyond 75% of the window (the period stays);
//  3. the last space at or beyond 50% of the window;
//  4. exactly maxLength runes.
//
// Text that already fits is returned as a single fragment, and empty text
// yields one empty fragment.
func Split(text string, maxLength int) ([]Fragment, error) {
	if maxLength <= 0 {
		return nil, fmt.Errorf("%w: max length %d", ErrInvalidArgument, maxLength)
	}

	rest := []rune(text)
	if len(rest) <= maxLength {
		return []Fragment{{Index: 1, Total: 1, Text: text}}, nil
	}

	var frags []Fragment
	for len(rest) > maxLength {
		cut, skip, kind := breakPoint(rest, maxLength)
		frags = append(frags, Fragment{Text: string(rest[:cut]), Break: kind})
		rest = rest[cut+skip:]
	}
	if len(rest) > 0 {
		frags = append(frags, Fragment{Text: string(rest)})
	}

	for i := range frags {
		frags[i].Index = i + 1
		frags[i].Total = len(frags)
	}
	return frags, nil
}

// Chunk splits text and returns the labeled fragments ready to send.
func Chunk(text string, maxLength int) ([]string, error) {
	frags, err := Split(text, maxLength)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(frags))
	for i, f := range frags {
		out[i] = f.Label()
	}
	return out, nil
}

// breakPoint picks where to cut r, which is longer than max. It returns the
// fragment length, how many runes to drop after it, and the rule used.
func breakPoint(r []rune, max int) (cut, skip int, kind Break) {
	if p := lastIndex(r, paragraphSep, max); p >= 0 && atLeast(p, max, 3, 4) {
		return p, 2, BreakParagraph
	}
	// The period is kept, so it must itself sit inside the window.
	if p := lastIndex(r, sentenceSep, max-1); p >= 0 && atLeast(p, max, 3, 4) {
		return p + 1, 1, BreakSentence
	}
	if p := lastIndex(r, wordSep, max); p >= 0 && atLeast(p, max, 1, 2) {
		return p, 1, BreakWord
	}
	return max, 0, BreakHard
}

// atLeast reports whether p >= max*num/den without rounding.
func atLeast(p, max, num, den int) bool {
	return p*den >= max*num
}

// lastIndex returns the largest i <= from such that sep occurs in r at i,
// or -1.
func lastIndex(r, sep []rune, from int) int {
	if from > len(r)-len(sep) {
		from = len(r) - len(sep)
	}
	for i := from; i >= 0; i-- {
		match := true
		for j, c := range sep {
			if r[i+j] != c {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
