package sanitizer

import "regexp"

// Redacted is the literal replacement applied for every PII match.
const Redacted = "[REDACTED]"

var (
	uuidPattern = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)

	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

	openAIKeyPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`)
	githubPATPattern = regexp.MustCompile(`\bghp_[A-Za-z0-9]{36,}\b`)
	awsKeyPattern    = regexp.MustCompile(`\bAKIA[A-Z0-9]{16}\b`)

	genericCredentialPattern = regexp.MustCompile(`(?i)\b(?:api_key|token|secret)\b\s*[:=]?\s*['"]?[A-Za-z0-9_-]{20,}['"]?`)

	creditCardPattern = regexp.MustCompile(`\b\d(?:[ -]?\d){12,18}\b`)

	ipv4Octet   = `(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)`
	ipv4Pattern = regexp.MustCompile(`\b` + ipv4Octet + `\.` + ipv4Octet + `\.` + ipv4Octet + `\.` + ipv4Octet + `\b`)

	// applied in this order; earlier patterns consume the text a later,
	// broader pattern (credit card's run of digits) might otherwise
	// misinterpret, e.g. a UUID's digit runs.
	allPatterns = []*regexp.Regexp{
		uuidPattern,
		openAIKeyPattern,
		githubPATPattern,
		awsKeyPattern,
		genericCredentialPattern,
		emailPattern,
		creditCardPattern,
		ipv4Pattern,
	}
)

// CleanText replaces every PII match in s with the literal [REDACTED].
// CleanText(CleanText(s)) == CleanText(s): none of the patterns below can
// match the literal string "[REDACTED]", so a second pass is a no-op.
func CleanText(s string) string {
	out := s
	for _, p := range allPatterns {
		out = p.ReplaceAllString(out, Redacted)
	}
	return out
}

// ContainsPII reports whether s matches any of the redaction patterns.
func ContainsPII(s string) bool {
	for _, p := range allPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// CleanDict recursively sanitizes every string value in a map, leaving
// keys and non-string values untouched.
func CleanDict(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cleanValue(v)
	}
	return out
}

// CleanList recursively sanitizes every string element of a slice.
func CleanList(items []any) []any {
	if items == nil {
		return nil
	}
	out := make([]any, len(items))
	for i, v := range items {
		out[i] = cleanValue(v)
	}
	return out
}

func cleanValue(v any) any {
	switch t := v.(type) {
	case string:
		return CleanText(t)
	case map[string]any:
		return CleanDict(t)
	case []any:
		return CleanList(t)
	default:
		return v
	}
}
