package sessionregistry

import (
	"fmt"
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "to": true, "of": true, "in": true,
	"on": true, "for": true, "and": true, "or": true, "is": true, "it": true,
	"this": true, "that": true, "with": true, "can": true, "you": true,
	"please": true, "i": true, "me": true, "my": true, "we": true,
}

const maxSlugWords = 6

// BuildWorkItemSlug derives a hyphen-joined slug from the first salient
// words of text: lowercased, stop words stripped, capped at six words.
func BuildWorkItemSlug(text string) string {
	var words []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if stopWords[w] {
			continue
		}
		words = append(words, w)
		if len(words) == maxSlugWords {
			break
		}
	}
	if len(words) == 0 {
		return "session"
	}
	return strings.Join(words, "-")
}

// BuildBranchName builds the canonical branch name for a session from its
// work-item slug and session id.
func BuildBranchName(slug, sessionID string) string {
	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("session/%s-%s", slug, short)
}
