package chunk

import (
	"errors"
	"strings"
	"testing"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{"empty", "", 5, ""},
		{"fits", "hello", 5, "hello"},
		{"ellipsis", "hello world", 8, "hello..."},
		{"tiny limit", "hello", 2, "he"},
		{"runes", "ééééé", 4, "é..."},
		{"field limit", strings.Repeat("a", 1200), FieldLimit, strings.Repeat("a", 997) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Truncate(tt.text, tt.max)
			if err != nil {
				t.Fatalf("Truncate() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Truncate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate_InvalidLength(t *testing.T) {
	if _, err := Truncate("x", 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestField(t *testing.T) {
	if got := Field("", "(Image only)"); got != "(Image only)" {
		t.Errorf("Field(empty) = %q", got)
	}
	if got := Field("question", "-"); got != "question" {
		t.Errorf("Field() = %q", got)
	}
}
