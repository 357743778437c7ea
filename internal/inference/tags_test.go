package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractKeywordTags_MatchesKnownVerbs(t *testing.T) {
	tags := ExtractKeywordTags("The user is editing a document and reviewing comments")
	assert.Contains(t, tags, "edit")
	assert.Contains(t, tags, "review")
}

func TestExtractKeywordTags_NoMatches(t *testing.T) {
	tags := ExtractKeywordTags("The weather is nice today")
	assert.Empty(t, tags)
}

func TestFallbackTagsForProcess_MatchesKnownApps(t *testing.T) {
	assert.Equal(t, []string{"coding"}, FallbackTagsForProcess("Code.exe"))
	assert.Equal(t, []string{"browsing"}, FallbackTagsForProcess("chrome"))
	assert.Equal(t, []string{"communication"}, FallbackTagsForProcess("slack"))
}

func TestFallbackTagsForProcess_UnknownProcessYieldsNoTags(t *testing.T) {
	assert.Empty(t, FallbackTagsForProcess("some_random_tool"))
}
