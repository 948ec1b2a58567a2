package search

import (
	"testing"

	"github.com/poiesic/yellowbook/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func business(name, description, city string, categories ...string) *core.Record {
	return &core.Record{
		Id:          core.RecordID(name),
		Name:        name,
		Description: description,
		Categories:  categories,
		Address:     core.Address{City: city},
	}
}

func TestKeywords(t *testing.T) {
	tests := []struct {
		question string
		want     []string
	}{
		{"Where can I find a good Italian restaurant?", []string{"italian", "restaurant"}},
		{"best pizza in Portland", []string{"pizza", "portland"}},
		{"I need an ox", []string{}},
		{"  Vegan   BAKERY  ", []string{"vegan", "bakery"}},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.want, Keywords(tt.question))
		})
	}
}

func TestKeywordMatcher_WholeWordBeatsSubstring(t *testing.T) {
	m := NewKeywordMatcher()
	candidates := []*core.Record{
		business("Pizzeria Uno", "Deep dish pizzas", "Chicago", "Restaurant"),
		business("Pizza Place", "Fresh pizza daily", "Chicago", "Restaurant"),
	}

	ranked := m.Match("pizza", candidates, 5)
	require.Len(t, ranked, 2)
	assert.Equal(t, "Pizza Place", ranked[0].Record.Name)
	assert.InDelta(t, 0.3, ranked[0].Relevance, 1e-9)
	assert.Equal(t, "Pizzeria Uno", ranked[1].Record.Name)
	assert.InDelta(t, 0.1, ranked[1].Relevance, 1e-9)
}

func TestKeywordMatcher_PhraseBonusAndCap(t *testing.T) {
	m := NewKeywordMatcher()
	candidates := []*core.Record{
		business("Luigi's", "Authentic italian restaurant downtown", "Portland", "Italian", "Restaurant"),
		business("Italian Market", "Groceries", "Portland", "Grocery"),
		business("Hardware Hut", "Tools and paint", "Portland", "Hardware"),
	}

	ranked := m.Match("italian restaurant", candidates, 5)
	require.Len(t, ranked, 2, "zero scores are dropped")
	assert.Equal(t, "Luigi's", ranked[0].Record.Name)
	// 3 + 3 + 5 = 11, capped
	assert.InDelta(t, 0.95, ranked[0].Relevance, 1e-9)
	assert.InDelta(t, 0.3, ranked[1].Relevance, 1e-9)
}

func TestKeywordMatcher_StableTopK(t *testing.T) {
	m := NewKeywordMatcher()
	var candidates []*core.Record
	for _, name := range []string{"A", "B", "C", "D", "E", "F"} {
		candidates = append(candidates, business(name+" Bakery", "bread", "Salem", "Bakery"))
	}

	ranked := m.Match("bakery", candidates, 5)
	require.Len(t, ranked, 5)
	for i, r := range ranked {
		assert.Equal(t, candidates[i].Name, r.Record.Name)
	}
}

func TestKeywordMatcher_NoKeywords(t *testing.T) {
	m := NewKeywordMatcher()
	ranked := m.Match("where can I find the best", []*core.Record{business("X", "y", "z", "w")}, 5)
	assert.Empty(t, ranked)
}

func TestKeywordMatcher_MetacharactersAreLiteral(t *testing.T) {
	m := NewKeywordMatcher()
	ranked := m.Match("c++ tutoring", []*core.Record{business("Code Camp", "c++ tutoring for kids", "Austin", "Education")}, 5)
	require.Len(t, ranked, 1)
}
