// Package cmdutil provides shell command text helpers shared by the
// classifier, the advisor and the workflow runner.
package cmdutil

import (
	"strings"
	"unicode"
)

// NormalizeCommand lowercases a command, collapses whitespace and replaces
// variable arguments (paths, URLs, numbers) with placeholders so that
// repeated invocations with different operands compare equal.
func NormalizeCommand(cmd string) string {
	parts := strings.Fields(strings.ToLower(cmd))
	if len(parts) == 0 {
		return ""
	}

	out := make([]string, 0, len(parts))
	out = append(out, parts[0])
	for _, part := range parts[1:] {
		switch {
		case strings.HasPrefix(part, "-"):
			out = append(out, part)
		case strings.Contains(part, "://"):
			out = append(out, "<url>")
		case strings.HasPrefix(part, "/") || strings.HasPrefix(part, "~") || strings.HasPrefix(part, "./"):
			out = append(out, "<path>")
		case IsNumeric(part):
			out = append(out, "<num>")
		default:
			out = append(out, part)
		}
	}
	return strings.Join(out, " ")
}

// StripPrefix removes a leading sudo and any leading VAR=value assignments
// so that rules see the effective program first.
func StripPrefix(cmd string) string {
	fields := strings.Fields(cmd)
	i := 0
	for i < len(fields) {
		f := fields[i]
		if f == "sudo" || f == "env" || f == "command" || f == "exec" || f == "time" || f == "nohup" {
			i++
			continue
		}
		if isAssignment(f) {
			i++
			continue
		}
		break
	}
	return strings.Join(fields[i:], " ")
}

// IsNumeric checks if a string contains only digits.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func isAssignment(word string) bool {
	eq := strings.IndexByte(word, '=')
	if eq <= 0 {
		return false
	}
	for i, r := range word[:eq] {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}
