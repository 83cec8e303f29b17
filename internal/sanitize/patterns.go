// Package sanitize detects and redacts secrets in recorded shell commands.
package sanitize

import "regexp"

// Pattern represents a compiled regex pattern for secret detection.
type Pattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// sensitiveWords flags commands that mention credentials at all. Matching is
// deliberately loose: "author" matches "auth" and is treated as sensitive.
var sensitiveWords = regexp.MustCompile(`(?i)(password|passwd|passphrase|token|secret|credential|auth|api[_-]?key|private[_-]?key)`)

// secretPatterns match concrete secret values and are used both for detection
// and for redaction.
var secretPatterns = []Pattern{
	{
		Name:        "AWS Access Key",
		Regex:       regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
		Replacement: "[AWS_ACCESS_KEY_REDACTED]",
	},
	{
		Name:        "AWS Secret Key",
		Regex:       regexp.MustCompile(`(?i)(aws_secret_access_key|secret_access_key)\s*[=:]\s*\S+`),
		Replacement: "$1=[AWS_SECRET_REDACTED]",
	},
	{
		Name:        "JWT Token",
		Regex:       regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`),
		Replacement: "[JWT_REDACTED]",
	},
	{
		Name:        "Slack Token",
		Regex:       regexp.MustCompile(`xox[baprs]-[0-9a-zA-Z-]+`),
		Replacement: "[SLACK_TOKEN_REDACTED]",
	},
	{
		Name:        "PEM Block",
		Regex:       regexp.MustCompile(`-----BEGIN [A-Z ]+-----[\s\S]+?-----END [A-Z ]+-----`),
		Replacement: "[PEM_BLOCK_REDACTED]",
	},
	{
		Name:        "GitHub Token",
		Regex:       regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36}`),
		Replacement: "[GITHUB_TOKEN_REDACTED]",
	},
	{
		Name:        "Key Value Secret",
		Regex:       regexp.MustCompile(`(?i)(password|passwd|token|secret|api[_-]?key|private[_-]?key)\s*[=:]\s*\S+`),
		Replacement: "$1=[REDACTED]",
	},
	{
		Name:        "Password Flag",
		Regex:       regexp.MustCompile(`(?i)(--password)(=|\s+)\S+`),
		Replacement: "$1$2[REDACTED]",
	},
	{
		Name:        "URL Credentials",
		Regex:       regexp.MustCompile(`://[^/\s:@]+:[^/\s@]+@`),
		Replacement: "://[CREDENTIALS_REDACTED]@",
	},
	{
		Name:        "Bearer Token",
		Regex:       regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_.-]{20,}`),
		Replacement: "Bearer [TOKEN_REDACTED]",
	},
	{
		Name:        "Basic Auth",
		Regex:       regexp.MustCompile(`(?i)basic\s+[A-Za-z0-9+/=]{20,}`),
		Replacement: "Basic [CREDENTIALS_REDACTED]",
	},
}

// SecretPatterns returns a copy of the secret detection patterns.
func SecretPatterns() []Pattern {
	result := make([]Pattern, len(secretPatterns))
	copy(result, secretPatterns)
	return result
}
