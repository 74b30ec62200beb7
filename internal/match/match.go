// Package match scores similarity between normalized source-name keys and
// decides whether a candidate belongs to an already known topic.
package match

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// DefaultThreshold is the score at or above which two keys are considered
// the same source.
const DefaultThreshold = 0.85

const (
	weightRatio    = 0.40
	weightKeywords = 0.35
	weightWords    = 0.25

	minKeywordLen = 2
)

// stopWords are filler terms that carry no identity and are excluded from
// keyword comparison.
var stopWords = map[string]struct{}{
	"channel": {}, "group": {}, "chat": {},
	"oficial": {}, "official": {},
	"vip": {}, "premium": {},
	"new": {}, "novo": {}, "nova": {},
	"the": {}, "a": {}, "an": {},
}

// Score computes a similarity score in [0,1] between two normalized keys.
// Equal keys score 1.0 exactly. The score blends whole-string edit
// similarity, keyword overlap, and best per-word alignment.
func Score(a, b string) float64 {
	if a == b {
		return 1.0
	}

	if a == "" || b == "" {
		return 0.0
	}

	return weightRatio*ratio(a, b) +
		weightKeywords*keywordJaccard(a, b) +
		weightWords*avgBestWordRatio(a, b)
}

// FindMatch returns the known key with the highest score at or above
// threshold, or ok=false when none qualifies. Known keys are scanned in the
// order given; on a tie the earlier key wins. The function is pure.
func FindMatch(candidate string, known []string, threshold float64) (string, bool) {
	var (
		bestKey   string
		bestScore float64
		found     bool
	)

	for _, key := range known {
		score := Score(candidate, key)
		if score < threshold {
			continue
		}

		if !found || score > bestScore {
			bestKey = key
			bestScore = score
			found = true
		}
	}

	return bestKey, found
}

// ratio is normalized edit similarity: 1 - distance/maxLen.
func ratio(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))

	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}

	if maxLen == 0 {
		return 1.0
	}

	dist := levenshtein.ComputeDistance(a, b)

	return 1.0 - float64(dist)/float64(maxLen)
}

func keywords(s string) []string {
	var out []string

	for _, w := range strings.Fields(s) {
		if len([]rune(w)) < minKeywordLen {
			continue
		}

		if _, skip := stopWords[w]; skip {
			continue
		}

		out = append(out, w)
	}

	return out
}

func keywordJaccard(a, b string) float64 {
	ka, kb := keywords(a), keywords(b)
	if len(ka) == 0 || len(kb) == 0 {
		return 0.0
	}

	setA := make(map[string]struct{}, len(ka))
	for _, w := range ka {
		setA[w] = struct{}{}
	}

	setB := make(map[string]struct{}, len(kb))
	for _, w := range kb {
		setB[w] = struct{}{}
	}

	var intersection int

	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}

	return float64(intersection) / float64(union)
}

// avgBestWordRatio averages, over the candidate's words, the best edit
// similarity against any word of the other key. Catches reordered or
// partially renamed sources.
func avgBestWordRatio(a, b string) float64 {
	wa, wb := strings.Fields(a), strings.Fields(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0.0
	}

	var sum float64

	for _, w := range wa {
		var best float64

		for _, v := range wb {
			if r := ratio(w, v); r > best {
				best = r
			}
		}

		sum += best
	}

	return sum / float64(len(wa))
}
