package registry

import (
	"regexp"
	"sort"
	"strings"

	"deskbroker/internal/model"
)

var (
	scopedNamespace = regexp.MustCompile(`^@[^/]+/`)
	plainNamespace  = regexp.MustCompile(`^[^/]+/`)
	versionSuffix   = regexp.MustCompile(`-v?\d+$`)
)

var deprioritizedKeywords = []string{
	"api", "extension", "plugin", "specific", "manager", "tool", "client", "wrapper", "sdk",
}

// rankCandidate scores a candidate's fitness for normalizedQuery. Higher
// is better. The score is purely positional, not a probability.
func rankCandidate(candidate model.ToolServerDescriptor, normalizedQuery string) int {
	stem := candidate.PackageName
	score := 0

	switch {
	case scopedNamespace.MatchString(stem):
		score -= 150
		stem = scopedNamespace.ReplaceAllString(stem, "")
	case plainNamespace.MatchString(stem):
		score -= 100
		stem = plainNamespace.ReplaceAllString(stem, "")
	}

	switch {
	case stem == normalizedQuery:
		score += 1000
	case strings.HasPrefix(stem, normalizedQuery+"-") || strings.HasPrefix(stem, normalizedQuery+"_"):
		score += 700
	case strings.HasSuffix(stem, "-"+normalizedQuery) || strings.HasSuffix(stem, "_"+normalizedQuery):
		score += 600
	case strings.Contains(stem, normalizedQuery):
		score += 300
	}

	if candidate.ServerName == normalizedQuery {
		score += 900
	}

	if candidate.Validated {
		score += 200
	}

	for _, kw := range deprioritizedKeywords {
		if strings.Contains(stem, kw) {
			score -= 200
		}
	}

	tokens := strings.FieldsFunc(stem, func(r rune) bool {
		return r == '-' || r == '_' || r == '.' || r == '/'
	})
	tokenIndex := -1
	for i, tok := range tokens {
		if tok == normalizedQuery {
			tokenIndex = i
			break
		}
	}
	n := len(tokens)
	switch {
	case tokenIndex >= 0 && n > 0:
		score -= 50 * (n - tokenIndex - 1)
	case strings.Contains(stem, normalizedQuery) && n > 0:
		score -= 30 * (n - 1)
	}

	if extra := len(stem) - 8; extra > 0 {
		score -= 2 * extra
	}

	separators := strings.Count(stem, "-") + strings.Count(stem, "_") + strings.Count(stem, ".")
	score -= 10 * separators

	if versionSuffix.MatchString(stem) {
		score -= 50
	}

	return score
}

// bestCandidate picks the highest-scoring descriptor for query, breaking
// ties lexicographically on package name. Returns false if candidates is
// empty.
func bestCandidate(candidates []model.ToolServerDescriptor, normalizedQuery string) (model.ToolServerDescriptor, bool) {
	if len(candidates) == 0 {
		return model.ToolServerDescriptor{}, false
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}

	type scored struct {
		descriptor model.ToolServerDescriptor
		score      int
	}
	ranked := make([]scored, len(candidates))
	for i, c := range candidates {
		ranked[i] = scored{descriptor: c, score: rankCandidate(c, normalizedQuery)}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].descriptor.PackageName < ranked[j].descriptor.PackageName
	})

	return ranked[0].descriptor, true
}
