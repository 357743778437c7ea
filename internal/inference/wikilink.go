package inference

import (
	"regexp"
	"sort"
	"strings"
)

var bracketedPattern = regexp.MustCompile(`\[\[[^\]]*\]\]`)

// AugmentWikilinks wraps any occurrence of a known vault entity in
// `[[…]]`, case-insensitive, trying longer entity names first so a
// shorter name nested inside a longer one never steals the match (spec
// section 4.9). Text already inside a `[[…]]` span is left untouched.
func AugmentWikilinks(text string, vault *Vault) string {
	if !vault.Enabled() || text == "" {
		return text
	}

	protected := bracketedSpans(text)

	entities := append([]string(nil), vault.entities...)
	sort.SliceStable(entities, func(i, j int) bool { return len(entities[i]) > len(entities[j]) })

	for _, entity := range entities {
		text = wrapEntity(text, entity, protected)
		protected = bracketedSpans(text)
	}
	return text
}

// ExtractTags returns the deduplicated set of strings found inside
// `[[…]]` spans, in first-seen order (spec section 4.8, step 4).
func ExtractTags(text string) []string {
	matches := bracketedPattern.FindAllString(text, -1)
	seen := make(map[string]bool, len(matches))
	var tags []string
	for _, m := range matches {
		inner := strings.TrimSuffix(strings.TrimPrefix(m, "[["), "]]")
		if inner == "" || seen[inner] {
			continue
		}
		seen[inner] = true
		tags = append(tags, inner)
	}
	return tags
}

type span struct{ start, end int }

func bracketedSpans(text string) []span {
	idx := bracketedPattern.FindAllStringIndex(text, -1)
	spans := make([]span, len(idx))
	for i, pair := range idx {
		spans[i] = span{start: pair[0], end: pair[1]}
	}
	return spans
}

func overlapsProtected(start, end int, protected []span) bool {
	for _, p := range protected {
		if start < p.end && end > p.start {
			return true
		}
	}
	return false
}

// wrapEntity wraps every case-insensitive occurrence of entity in text
// with `[[…]]`, skipping occurrences that fall inside an already-bracketed
// span.
func wrapEntity(text, entity string, protected []span) string {
	if entity == "" {
		return text
	}

	lowerText := strings.ToLower(text)
	lowerEntity := strings.ToLower(entity)

	var b strings.Builder
	pos := 0
	for {
		idx := strings.Index(lowerText[pos:], lowerEntity)
		if idx < 0 {
			b.WriteString(text[pos:])
			break
		}
		start := pos + idx
		end := start + len(entity)

		b.WriteString(text[pos:start])
		if overlapsProtected(start, end, protected) {
			b.WriteString(text[start:end])
		} else {
			b.WriteString("[[")
			b.WriteString(text[start:end])
			b.WriteString("]]")
		}
		pos = end
	}
	return b.String()
}
