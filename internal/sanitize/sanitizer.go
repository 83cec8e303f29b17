package sanitize

// Sanitizer flags and redacts secrets.
type Sanitizer struct {
	patterns []Pattern
}

// NewSanitizer creates a Sanitizer with the default patterns.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{patterns: SecretPatterns()}
}

// IsSensitive reports whether a command mentions credentials or carries a
// recognisable secret value. Sensitive commands are stored but never
// returned by list or aggregate queries.
func (s *Sanitizer) IsSensitive(command string) bool {
	if command == "" {
		return false
	}
	if sensitiveWords.MatchString(command) {
		return true
	}
	for _, p := range s.patterns {
		if p.Regex.MatchString(command) {
			return true
		}
	}
	return false
}

// Sanitize replaces secret values in input with placeholders.
func (s *Sanitizer) Sanitize(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, p := range s.patterns {
		result = p.Regex.ReplaceAllString(result, p.Replacement)
	}
	return result
}

// DefaultSanitizer is a package-level sanitizer for convenience.
var DefaultSanitizer = NewSanitizer()

// IsSensitive uses the default sanitizer.
func IsSensitive(command string) bool {
	return DefaultSanitizer.IsSensitive(command)
}

// Sanitize uses the default sanitizer.
func Sanitize(input string) string {
	return DefaultSanitizer.Sanitize(input)
}
