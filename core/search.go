package core

import (
	"strings"
	"unicode/utf8"
)

// MinQuestionLength is the shortest accepted search question, counted in
// characters after trimming.
const MinQuestionLength = 3

// SearchQuery is a validated natural-language question with an optional
// city scope.
type SearchQuery struct {
	Question string
	City     string // empty means all cities
}

// NewSearchQuery trims and validates a question.
func NewSearchQuery(question, city string) (SearchQuery, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return SearchQuery{}, &ValidationError{Field: "question", Err: ErrEmptyQuestion}
	}
	if utf8.RuneCountInString(q) < MinQuestionLength {
		return SearchQuery{}, &ValidationError{Field: "question", Err: ErrQuestionTooShort}
	}
	return SearchQuery{Question: q, City: strings.TrimSpace(city)}, nil
}

// SearchMode identifies which retrieval path produced a result and,
// with it, the scale its relevance scores are on.
type SearchMode int

const (
	// SearchModeSemantic ranks by cosine similarity in [-1, 1].
	SearchModeSemantic SearchMode = iota + 1
	// SearchModeKeyword ranks by lexical score mapped into [0, 0.95].
	SearchModeKeyword
)

func (m SearchMode) String() string {
	switch m {
	case SearchModeSemantic:
		return "semantic"
	case SearchModeKeyword:
		return "keyword"
	default:
		return "unknown"
	}
}

// RankedRecord is a retrieved record with its relevance score.
type RankedRecord struct {
	Record    *Record
	Relevance float64
}

// SearchResult is the answer to a SearchQuery.
type SearchResult struct {
	Answer     string
	Businesses []RankedRecord
	Cached     bool
	Mode       SearchMode
}

// Clone returns a deep copy so cached results cannot be mutated by callers.
func (r *SearchResult) Clone() *SearchResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Businesses = make([]RankedRecord, len(r.Businesses))
	for i, b := range r.Businesses {
		c.Businesses[i] = RankedRecord{Record: b.Record.Clone(), Relevance: b.Relevance}
	}
	return &c
}
