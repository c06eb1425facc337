// Package redact masks secret-like substrings in recorded bytes before
// they reach a tape on disk.
package redact

import (
	"os"
	"regexp"
	"unicode/utf8"
)

// secretPatterns mirrors the original claude_control redactor: key/value
// assignments for api keys, tokens and passwords; AWS access key ids;
// and a generic "secret..." shape.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|token|password)\s*[:=]\s*[^\s]+`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`(?i)secret[^\s]{6,}`),
}

// assignmentRE captures the "key" and separator of a key/value match so
// the mask can preserve them and only blank the value.
var assignmentRE = regexp.MustCompile(`(?i)^(api[_-]?key|token|password)(\s*[:=]\s*)`)

const mask = "***"

// EnvDisableVar is the opt-out environment variable checked by Redact.
const EnvDisableVar = "CONTROLTAPE_REDACT"

// Enabled reports whether redaction is active, honoring the opt-out
// values "0", "false" and "False" for CONTROLTAPE_REDACT. Any other
// value, including unset, means redaction stays on.
func Enabled() bool {
	switch os.Getenv(EnvDisableVar) {
	case "0", "false", "False":
		return false
	default:
		return true
	}
}

// Redact masks secret-like substrings in payload, returning a new byte
// slice. Non-UTF-8 payloads pass through unchanged, since the patterns
// operate on decoded text. When redaction is disabled via
// CONTROLTAPE_REDACT, payload is returned unmodified.
func Redact(payload []byte) []byte {
	if !Enabled() {
		return payload
	}
	if !utf8.Valid(payload) {
		return payload
	}
	text := string(payload)
	for _, re := range secretPatterns {
		text = re.ReplaceAllStringFunc(text, maskMatch)
	}
	return []byte(text)
}

func maskMatch(match string) string {
	if loc := assignmentRE.FindStringSubmatchIndex(match); loc != nil {
		// loc[5] is the end of the second capture group (the separator),
		// so prefix keeps "key:" or "key=" and the value is replaced.
		prefix := match[:loc[5]]
		return prefix + mask
	}
	return mask
}
