package search

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/poiesic/yellowbook/core"
)

// CosineSimilarity returns dot(a, b) / (|a| * |b|).
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, ErrZeroMagnitude
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Ranker orders records by cosine similarity to a query vector.
type Ranker struct {
	logger *slog.Logger
}

// NewRanker creates a Ranker. A nil logger selects slog.Default().
func NewRanker(logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{logger: logger.With("component", "ranker")}
}

// Rank scores every candidate that has a vector and returns the topK best,
// highest first. Ties keep candidate order. topK <= 0 returns all.
//
// A zero query vector is an error. Candidates whose vectors cannot be
// compared are skipped.
func (r *Ranker) Rank(query core.Vector, candidates []*core.Record, topK int) ([]core.RankedRecord, error) {
	if allZero(query) {
		return nil, ErrZeroMagnitude
	}

	ranked := make([]core.RankedRecord, 0, len(candidates))
	for _, rec := range candidates {
		if rec == nil || !rec.HasVector() {
			continue
		}
		score, err := CosineSimilarity(query, rec.Vector)
		if err != nil {
			r.logger.Warn("skipping record", "id", rec.Id, "err", err)
			continue
		}
		ranked = append(ranked, core.RankedRecord{Record: rec, Relevance: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Relevance > ranked[j].Relevance
	})
	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked, nil
}

// allZero reports whether v is empty or has only zero components.
func allZero(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
