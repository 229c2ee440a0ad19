package commands

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/lo"
)

var mentionRe = regexp.MustCompile(`<@!?(\d+)>`)

// StripMention removes every <@id> and <@!id> mention of botID from content.
func StripMention(content, botID string) string {
	if botID == "" {
		return strings.TrimSpace(content)
	}
	re := regexp.MustCompile(`<@!?` + regexp.QuoteMeta(botID) + `>`)
	return strings.TrimSpace(re.ReplaceAllString(content, ""))
}

// MentionedIDs returns the distinct user IDs mentioned in text, in order.
func MentionedIDs(text string) []string {
	ids := lo.Map(mentionRe.FindAllStringSubmatch(text, -1), func(m []string, _ int) string {
		return m[1]
	})
	return lo.Uniq(ids)
}

var reportRe = regexp.MustCompile(`(?i)^/?report\s+<@!?(\d+)>\s+(.+)$`)

// ParseReportArgs extracts the user ID and date from
// "report <@id> March 4" or "/report <@!id> 03-04-2025".
func ParseReportArgs(text string) (userID, date string, err error) {
	m := reportRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", "", fmt.Errorf("usage: report @user <date>, e.g. report @alice March 4")
	}
	return m[1], strings.TrimSpace(m[2]), nil
}

// GreetingText is the reply to a bare mention.
func GreetingText(botName string) string {
	return fmt.Sprintf("Hello! I'm %s. You can ask me questions or chat with me by mentioning me followed by your message. You can also send images for me to analyze.", botName)
}

// HelpText lists what the bot understands.
func HelpText(botName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s help**\n", botName)
	b.WriteString("Mention me with a question to chat. I remember the last few messages in each channel for 30 minutes.\n\n")
	b.WriteString("**Mention commands**\n")
	b.WriteString("• `help`: show this message\n")
	b.WriteString("• `reset`: forget this channel's conversation\n")
	b.WriteString("• `report @user <date>`: activity report, e.g. `report @alice March 4`\n")
	b.WriteString("• `whosworking`: who is signed in right now\n")
	b.WriteString("• `scan tables`: summary of the activity tables\n\n")
	b.WriteString("**Slash commands**\n")
	b.WriteString("• `/ask question image`\n• `/report user date`\n• `/whosworking`\n• `/reset`")
	return b.String()
}
