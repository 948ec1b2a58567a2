package search

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/yellowbook/core"
)

// Stop words dropped from keyword queries. These are the filler words of
// directory questions ("where can I find a good ..."), not a general list.
var stopWords = map[string]bool{
	"where": true, "can": true, "find": true, "looking": true, "for": true,
	"need": true, "want": true, "good": true, "best": true, "the": true,
	"a": true, "an": true, "in": true, "at": true, "to": true, "from": true,
}

const (
	wholeWordScore = 3
	substringScore = 1
	phraseBonus    = 5
	maxKeywordRel  = 0.95
)

// Keywords extracts the significant words of a question: lowercased,
// stripped of surrounding punctuation, without stop words or words of two
// characters or fewer. Order is preserved.
func Keywords(question string) []string {
	words := strings.Fields(strings.ToLower(question))
	keywords := make([]string, 0, len(words))
	for _, word := range words {
		cleaned := strings.Trim(word, ".,!?;:'\"-()[]{}")
		if utf8.RuneCountInString(cleaned) <= 2 || stopWords[cleaned] {
			continue
		}
		keywords = append(keywords, cleaned)
	}
	return keywords
}

// KeywordMatcher ranks records by lexical overlap with a question. It is
// the fallback when no query embedding is available.
type KeywordMatcher struct{}

// NewKeywordMatcher creates a KeywordMatcher.
func NewKeywordMatcher() *KeywordMatcher {
	return &KeywordMatcher{}
}

// Match scores candidates against question and returns the topK best with
// relevance min(score/10, 0.95). Records scoring zero are dropped. Ties
// keep candidate order. topK <= 0 returns all matches.
func (m *KeywordMatcher) Match(question string, candidates []*core.Record, topK int) []core.RankedRecord {
	keywords := Keywords(question)
	if len(keywords) == 0 {
		return []core.RankedRecord{}
	}

	patterns := make([]*regexp.Regexp, len(keywords))
	for i, kw := range keywords {
		patterns[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
	}
	phrase := strings.Join(keywords, " ")

	type scored struct {
		rec   *core.Record
		score int
	}
	var hits []scored
	for _, rec := range candidates {
		if rec == nil {
			continue
		}
		haystack := searchText(rec)

		score := 0
		for i, kw := range keywords {
			switch {
			case patterns[i].MatchString(haystack):
				score += wholeWordScore
			case strings.Contains(haystack, kw):
				score += substringScore
			}
		}
		if len(keywords) > 1 && strings.Contains(haystack, phrase) {
			score += phraseBonus
		}
		if score > 0 {
			hits = append(hits, scored{rec: rec, score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}

	ranked := make([]core.RankedRecord, len(hits))
	for i, h := range hits {
		ranked[i] = core.RankedRecord{
			Record:    h.rec,
			Relevance: math.Min(float64(h.score)/10, maxKeywordRel),
		}
	}
	return ranked
}

func searchText(rec *core.Record) string {
	parts := make([]string, 0, 3+len(rec.Categories))
	parts = append(parts, rec.Name, rec.Description, rec.Address.City)
	parts = append(parts, rec.Categories...)
	return strings.ToLower(strings.Join(parts, " "))
}
