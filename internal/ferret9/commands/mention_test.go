package commands

import (
	"reflect"
	"strings"
	"testing"
)

func TestStripMention(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"<@123> hello", "hello"},
		{"<@!123> hello <@123>", "hello"},
		{"hey <@123>, what's up", "hey , what's up"},
		{"<@456> hello", "<@456> hello"},
		{"<@123>", ""},
	}
	for _, tt := range tests {
		if got := StripMention(tt.content, "123"); got != tt.want {
			t.Errorf("StripMention(%q) = %q, want %q", tt.content, got, tt.want)
		}
	}
}

func TestMentionedIDs(t *testing.T) {
	got := MentionedIDs("<@1> and <@!2> and <@1> again")
	if !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Errorf("MentionedIDs() = %v", got)
	}
	if got := MentionedIDs("nobody"); len(got) != 0 {
		t.Errorf("MentionedIDs(nobody) = %v", got)
	}
}

func TestParseReportArgs(t *testing.T) {
	tests := []struct {
		text     string
		wantUser string
		wantDate string
		wantErr  bool
	}{
		{text: "report <@42> March 4", wantUser: "42", wantDate: "March 4"},
		{text: "/report <@!42> 03-04-2025", wantUser: "42", wantDate: "03-04-2025"},
		{text: "REPORT <@7>   yesterday  ", wantUser: "7", wantDate: "yesterday"},
		{text: "report March 4", wantErr: true},
		{text: "report <@42>", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			user, date, err := ParseReportArgs(tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got user=%q date=%q", user, date)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if user != tt.wantUser || date != tt.wantDate {
				t.Errorf("got (%q, %q), want (%q, %q)", user, date, tt.wantUser, tt.wantDate)
			}
		})
	}
}

func TestHelpTexts(t *testing.T) {
	if !strings.Contains(GreetingText("Ferret9"), "I'm Ferret9") {
		t.Error("greeting does not name the bot")
	}
	if !strings.Contains(HelpText("Ferret9"), "`reset`") {
		t.Error("help text does not list reset")
	}
}
