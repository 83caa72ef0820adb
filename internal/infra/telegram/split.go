package telegram

import (
	"strings"

	"gopkg.in/telebot.v3"
)

// maxMessageLength is Telegram's limit for one text message, in UTF-16 code units.
const maxMessageLength = 4096

// splitMessage cuts text into parts of at most limit UTF-16 units, breaking at
// line ends. A single line longer than limit is cut between runes.
func splitMessage(text string, limit int) []string {
	if utf16Len(text) <= limit {
		return []string{text}
	}

	var parts []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf16Len(line)
		if curLen+n > limit {
			flush()
		}
		if n <= limit {
			cur.WriteString(line)
			curLen += n
			continue
		}
		for _, r := range line {
			w := runeUnits(r)
			if curLen+w > limit {
				flush()
			}
			cur.WriteRune(r)
			curLen += w
		}
	}
	flush()

	// Drop the line break each part ended on.
	for i, p := range parts {
		parts[i] = strings.TrimSuffix(p, "\n")
	}
	return parts
}

// sendSplit replies in as many messages as text needs.
func sendSplit(c telebot.Context, text string) error {
	for _, part := range splitMessage(text, maxMessageLength) {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if err := c.Send(part); err != nil {
			return err
		}
	}
	return nil
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}

func runeUnits(r rune) int {
	if r > 0xFFFF {
		return 2
	}
	return 1
}
