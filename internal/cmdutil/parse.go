package cmdutil

import (
	"strings"
)

// controlFlowWords are shell keywords that open a compound command.
var controlFlowWords = map[string]bool{
	"for":   true,
	"while": true,
	"until": true,
	"if":    true,
	"case":  true,
}

// walkUnquoted calls fn for every rune outside single and double quotes.
// fn returns how many following runes to skip.
func walkUnquoted(cmd string, fn func(rs []rune, i int) int) {
	rs := []rune(cmd)
	inSingle, inDouble := false, false
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case r == '\\' && !inSingle:
			i++
		case r == '\'' && !inDouble:
			inSingle = !inSingle
		case r == '"' && !inSingle:
			inDouble = !inDouble
		case !inSingle && !inDouble:
			i += fn(rs, i)
		}
	}
}

// CountPipes returns the number of pipe operators in a command. Pipes inside
// quotes and the logical "||" operator are not counted.
func CountPipes(cmd string) int {
	count := 0
	walkUnquoted(cmd, func(rs []rune, i int) int {
		if rs[i] != '|' {
			return 0
		}
		if i+1 < len(rs) && rs[i+1] == '|' {
			return 1
		}
		if i > 0 && rs[i-1] == '>' {
			// ">|" is a clobbering redirect
			return 0
		}
		count++
		return 0
	})
	return count
}

// CountRedirections returns the number of redirection operators. Compound
// forms such as ">>", "2>&1", "&>" and "<<<" count once each. Process
// substitution "<(" and ">(" is not a redirection.
func CountRedirections(cmd string) int {
	count := 0
	walkUnquoted(cmd, func(rs []rune, i int) int {
		next := func(k int) rune {
			if i+k < len(rs) {
				return rs[i+k]
			}
			return 0
		}
		switch rs[i] {
		case '>':
			switch next(1) {
			case '(':
				return 0
			case '>', '&', '|':
				count++
				return 1
			}
			count++
		case '<':
			switch {
			case next(1) == '(':
				return 0
			case next(1) == '<' && next(2) == '<':
				count++
				return 2
			case next(1) == '<':
				count++
				return 1
			}
			count++
		}
		return 0
	})
	return count
}

// HasSubstitution reports whether cmd contains command substitution.
func HasSubstitution(cmd string) bool {
	return strings.Contains(cmd, "$(") || strings.ContainsRune(cmd, '`')
}

// HasControlFlow reports whether any word of cmd is a compound command
// keyword such as for, while or if.
func HasControlFlow(cmd string) bool {
	words := strings.FieldsFunc(strings.ToLower(cmd), func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', ';', '&', '|', '(', ')':
			return true
		}
		return false
	})
	for _, w := range words {
		if controlFlowWords[w] {
			return true
		}
	}
	return false
}

// HasShellMeta reports whether cmd needs a shell to run: pipes, redirects,
// substitution, globbing, variable expansion or command lists.
func HasShellMeta(cmd string) bool {
	found := false
	walkUnquoted(cmd, func(rs []rune, i int) int {
		switch rs[i] {
		case '|', '&', ';', '<', '>', '(', ')', '$', '`', '*', '?', '[', '~', '{':
			found = true
		}
		return 0
	})
	return found || strings.Contains(cmd, "$")
}
