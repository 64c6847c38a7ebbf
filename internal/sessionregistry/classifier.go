package sessionregistry

import (
	"context"
	"strings"

	"github.com/nextlevelbuilder/chatbridge/internal/records"
)

// Classification is the result of classifying a message's text into a
// work category.
type Classification struct {
	Type       records.ClassificationType
	Confidence float64
}

// Classifier infers a message's work category. It is a capability seam:
// the registry only stores whatever tuple it returns, never the
// implementation. Swapping in a model-backed classifier requires no
// change to the registry.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

var bugKeywords = []string{"bug", "error", "broken", "crash", "fails", "failing", "exception", "not working"}
var featureKeywords = []string{"add", "implement", "feature", "support", "new", "build", "create"}
var choreKeywords = []string{"cleanup", "refactor", "update", "bump", "chore", "docs", "rename"}

// HeuristicClassifier scores keyword matches against three buckets. It
// requires no external model and is the registry's default.
type HeuristicClassifier struct{}

// Classify implements Classifier.
func (HeuristicClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	lower := strings.ToLower(text)

	bugScore := countMatches(lower, bugKeywords)
	featureScore := countMatches(lower, featureKeywords)
	choreScore := countMatches(lower, choreKeywords)

	total := bugScore + featureScore + choreScore
	if total == 0 {
		return Classification{Type: records.ClassificationChore, Confidence: 0.34}, nil
	}

	best := records.ClassificationChore
	bestScore := choreScore
	if bugScore > bestScore {
		best, bestScore = records.ClassificationBug, bugScore
	}
	if featureScore > bestScore {
		best, bestScore = records.ClassificationFeature, featureScore
	}

	return Classification{Type: best, Confidence: float64(bestScore) / float64(total)}, nil
}

func countMatches(text string, keywords []string) int {
	count := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			count++
		}
	}
	return count
}
