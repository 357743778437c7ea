package inference

import (
	"regexp"
	"strings"
)

// activityKeywordTags maps a compiled keyword regex to the tag it
// contributes when matched against the LLM's response text (spec section
// 4.9, tag extraction on success).
var activityKeywordTags = []struct {
	tag     string
	pattern *regexp.Regexp
}{
	{"edit", regexp.MustCompile(`(?i)\bedit(?:ing|ed|s)?\b`)},
	{"read", regexp.MustCompile(`(?i)\bread(?:ing|s)?\b`)},
	{"write", regexp.MustCompile(`(?i)\bwrit(?:e|ing|es|ten)\b`)},
	{"debug", regexp.MustCompile(`(?i)\bdebug(?:ging|ged|s)?\b`)},
	{"review", regexp.MustCompile(`(?i)\breview(?:ing|ed|s)?\b`)},
	{"meet", regexp.MustCompile(`(?i)\bmeet(?:ing|s)?\b`)},
	{"communicate", regexp.MustCompile(`(?i)\b(?:communicat(?:e|ing|ion)|chat(?:ting)?|messag(?:e|ing))\b`)},
}

// appKeywordTags maps process-name substrings to a fallback tag, used when
// the LLM call itself fails (spec section 4.9, the "on failure" branch).
var appKeywordTags = []struct {
	keyword string
	tag     string
}{
	{"code", "coding"},
	{"idea", "coding"},
	{"studio", "coding"},
	{"vim", "coding"},
	{"terminal", "coding"},
	{"chrome", "browsing"},
	{"firefox", "browsing"},
	{"edge", "browsing"},
	{"safari", "browsing"},
	{"slack", "communication"},
	{"teams", "communication"},
	{"discord", "communication"},
	{"outlook", "communication"},
	{"mail", "communication"},
	{"zoom", "meeting"},
	{"word", "writing"},
	{"docs", "writing"},
	{"excel", "spreadsheet"},
	{"sheets", "spreadsheet"},
	{"photoshop", "design"},
	{"figma", "design"},
	{"spotify", "media"},
	{"steam", "gaming"},
}

// ExtractKeywordTags scans text for the fixed set of activity keywords and
// returns the matching tags, in table order, deduplicated.
func ExtractKeywordTags(text string) []string {
	var tags []string
	for _, kt := range activityKeywordTags {
		if kt.pattern.MatchString(text) {
			tags = append(tags, kt.tag)
		}
	}
	return tags
}

// FallbackTagsForProcess derives tags from a table of application-name
// keywords when the LLM call itself failed.
func FallbackTagsForProcess(processName string) []string {
	lower := strings.ToLower(processName)
	var tags []string
	seen := make(map[string]bool)
	for _, kt := range appKeywordTags {
		if strings.Contains(lower, kt.keyword) && !seen[kt.tag] {
			tags = append(tags, kt.tag)
			seen[kt.tag] = true
		}
	}
	return tags
}
