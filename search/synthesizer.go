package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/yellowbook/ai"
	"github.com/poiesic/yellowbook/core"
)

const (
	// NoResultsAnswer is returned when retrieval finds nothing.
	NoResultsAnswer = "I couldn't find any businesses matching your query. Please try different keywords or expand your search area."

	// KeywordFallbackNote is appended when results came from keyword matching.
	KeywordFallbackNote = "\n\n_Note: Results generated using keyword matching (AI embedding quota temporarily exhausted)._"

	// GenerationUnavailableNote ends the template answer.
	GenerationUnavailableNote = "\n\n_Note: AI response generation temporarily unavailable._"
)

const promptTemplate = `You are a helpful assistant for Yellow Book, a business directory service.

User Question: "%s"

Relevant Businesses Found:
%s

Instructions:
- Answer the user's question based on the businesses provided
- Be concise and helpful
- Mention specific business names when relevant
- Include contact information if the user is looking for how to reach them
- If no relevant businesses found, politely say so

Answer:`

// Synthesizer turns retrieved records into a natural-language answer.
type Synthesizer struct {
	completer ai.Completer
	logger    *slog.Logger
}

// NewSynthesizer creates a Synthesizer. A nil logger selects slog.Default().
func NewSynthesizer(completer ai.Completer, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		completer: completer,
		logger:    logger.With("component", "synthesizer"),
	}
}

// Synthesize always produces an answer. Without records it returns
// NoResultsAnswer without calling the model; if the model fails it falls
// back to TemplateAnswer. Keyword-mode answers, empty ones included, carry
// KeywordFallbackNote.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, ranked []core.RankedRecord, mode core.SearchMode) string {
	answer := s.answer(ctx, question, ranked)
	if mode == core.SearchModeKeyword {
		answer += KeywordFallbackNote
	}
	return answer
}

func (s *Synthesizer) answer(ctx context.Context, question string, ranked []core.RankedRecord) string {
	if len(ranked) == 0 {
		return NoResultsAnswer
	}

	records := make([]*core.Record, len(ranked))
	for i, r := range ranked {
		records[i] = r.Record
	}

	answer, err := s.completer.Complete(ctx, BuildPrompt(question, records))
	if err != nil {
		s.logger.Warn("answer generation failed, using template", "err", err)
		answer = TemplateAnswer(question, records)
	}
	return answer
}

// BuildPrompt renders the completion prompt for question over records.
func BuildPrompt(question string, records []*core.Record) string {
	return fmt.Sprintf(promptTemplate, question, contextBlock(records))
}

func contextBlock(records []*core.Record) string {
	entries := make([]string, len(records))
	for i, rec := range records {
		var b strings.Builder
		fmt.Fprintf(&b, "%d. %s\n", i+1, rec.Name)
		fmt.Fprintf(&b, "   Description: %s\n", rec.Description)
		fmt.Fprintf(&b, "   Categories: %s\n", strings.Join(rec.Categories, ", "))
		fmt.Fprintf(&b, "   Location: %s\n", joinNonEmpty(", ", rec.Address.City, rec.Address.State))
		fmt.Fprintf(&b, "   Contact: %s", joinNonEmpty(" | ", rec.Contact.Phone, rec.Contact.Email))
		if rec.Contact.Website != "" {
			fmt.Fprintf(&b, "\n   Website: %s", rec.Contact.Website)
		}
		entries[i] = b.String()
	}
	return strings.Join(entries, "\n\n")
}

// TemplateAnswer lists records without a model.
func TemplateAnswer(question string, records []*core.Record) string {
	lines := make([]string, len(records))
	for i, rec := range records {
		line := fmt.Sprintf("%d. **%s**", i+1, rec.Name)
		if rec.Address.City != "" {
			line += " - " + rec.Address.City
		}
		lines[i] = line
	}
	return fmt.Sprintf("Found %d business(es) matching \"%s\":\n\n%s%s",
		len(records), question, strings.Join(lines, "\n"), GenerationUnavailableNote)
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
