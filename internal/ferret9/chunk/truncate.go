package chunk

import "fmt"

const ellipsis = "..."

// Truncate shortens text to at most maxLength runes, replacing the tail with
// "..." when anything was cut. Limits too small to hold the ellipsis cut
// without it.
func Truncate(text string, maxLength int) (string, error) {
	if maxLength <= 0 {
		return "", fmt.Errorf("%w: max length %d", ErrInvalidArgument, maxLength)
	}
	r := []rune(text)
	if len(r) <= maxLength {
		return text, nil
	}
	if maxLength <= len(ellipsis) {
		return string(r[:maxLength]), nil
	}
	return string(r[:maxLength-len(ellipsis)]) + ellipsis, nil
}

// Field truncates text for an embed field, falling back to placeholder when
// text is empty.
func Field(text, placeholder string) string {
	if text == "" {
		return placeholder
	}
	s, _ := Truncate(text, FieldLimit)
	return s
}
