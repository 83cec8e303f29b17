package picker

import (
	"regexp"
	"strings"

	"github.com/mattn/go-runewidth"
)

// escapeSeq matches CSI, OSC (BEL or ST terminated) and two-byte escapes.
var escapeSeq = regexp.MustCompile(`\x1b(?:\[[0-9;]*[A-Za-z]|\].*?(?:\x1b\\|\x07)|[()#*+\-./][A-Za-z0-9])`)

// escapeLiterals spells out escape prefixes typed as text, e.g. printf '\033[1m'.
var escapeLiterals = strings.NewReplacer(
	`\033[`, "<ESC>[", `\033]`, "<ESC>]",
	`\x1b[`, "<ESC>[", `\x1b]`, "<ESC>]",
	`\x1B[`, "<ESC>[", `\x1B]`, "<ESC>]",
	`\e[`, "<ESC>[", `\e]`, "<ESC>]",
)

const ellipsis = "…"

// DisplayCommand renders a stored command on one picker row. The result is
// for display only and must never be executed.
func DisplayCommand(s string) string {
	s = StripANSI(strings.ToValidUTF8(s, "�"))
	return escapeLiterals.Replace(strings.Join(strings.Fields(s), " "))
}

// StripANSI removes terminal escape sequences.
func StripANSI(s string) string {
	return escapeSeq.ReplaceAllString(s, "")
}

// MiddleTruncate fits s into width display columns, keeping both ends
// around an ellipsis. Below three columns it cuts from the right.
func MiddleTruncate(s string, width int) string {
	switch {
	case width <= 0:
		return ""
	case runewidth.StringWidth(s) <= width:
		return s
	case width < 3:
		return runewidth.Truncate(s, width, "")
	}

	room := width - runewidth.StringWidth(ellipsis)
	return runewidth.Truncate(s, (room+1)/2, "") + ellipsis + suffixWithin(s, room/2)
}

// suffixWithin returns the longest suffix of s at most width columns wide.
func suffixWithin(s string, width int) string {
	runes := []rune(s)
	i := len(runes)
	for used := 0; i > 0; i-- {
		w := runewidth.RuneWidth(runes[i-1])
		if used+w > width {
			break
		}
		used += w
	}
	return string(runes[i:])
}
