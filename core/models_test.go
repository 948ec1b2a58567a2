package core

import (
	"testing"
	"time"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantSame bool
	}{
		{
			name:     "same content produces same ID",
			content:  "embedding:abc@1",
			wantSame: true,
		},
		{
			name:     "empty string",
			content:  "",
			wantSame: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if tt.wantSame && id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	id1 := IDFromContent("content1")
	id2 := IDFromContent("content2")

	if id1 == id2 {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestEmbeddingText(t *testing.T) {
	tests := []struct {
		name   string
		record *Record
		want   string
	}{
		{
			name: "all parts",
			record: &Record{
				Name:        "Luigi's Trattoria",
				Description: "Family-run Italian restaurant",
				Categories:  []string{"Restaurant", "Italian"},
				Address:     Address{City: "Ulaanbaatar", State: "UB"},
			},
			want: "Luigi's Trattoria. Family-run Italian restaurant. Restaurant, Italian. Located in Ulaanbaatar, UB",
		},
		{
			name: "city only",
			record: &Record{
				Name:        "Corner Shop",
				Description: "Groceries",
				Categories:  []string{"Grocery"},
				Address:     Address{City: "Darkhan"},
			},
			want: "Corner Shop. Groceries. Grocery. Located in Darkhan",
		},
		{
			name:   "name only",
			record: &Record{Name: "Nameless"},
			want:   "Nameless",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EmbeddingText(tt.record); got != tt.want {
				t.Errorf("EmbeddingText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecordClone(t *testing.T) {
	r := &Record{
		Id:         "r1",
		Categories: []string{"a", "b"},
		Vector:     Vector{1, 2, 3},
	}
	c := r.Clone()
	c.Categories[0] = "changed"
	c.Vector[0] = 42

	if r.Categories[0] != "a" {
		t.Errorf("clone shares categories with original")
	}
	if r.Vector[0] != 1 {
		t.Errorf("clone shares vector with original")
	}
	if (*Record)(nil).Clone() != nil {
		t.Errorf("nil clone should be nil")
	}
}

func TestRecordApplyTrims(t *testing.T) {
	r := NewRecord(RecordFields{
		Name:       "  Padded  ",
		Categories: []string{" Cafe "},
	})
	if r.Name != "Padded" {
		t.Errorf("Name = %q", r.Name)
	}
	if r.Categories[0] != "Cafe" {
		t.Errorf("Categories[0] = %q", r.Categories[0])
	}
}

func TestNewEmbeddingJob(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	record := &Record{Id: "rec-1", Name: "Cafe", Description: "Coffee", Categories: []string{"Cafe"}}

	job := NewEmbeddingJob(record, now)

	if job.DedupKey != "embedding:rec-1" {
		t.Errorf("DedupKey = %q", job.DedupKey)
	}
	if job.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1", job.Attempt)
	}
	if job.State != JobStateEnqueued {
		t.Errorf("State = %v", job.State)
	}
	if !job.EnqueuedAt.Equal(now) || !job.NextRunAt.Equal(now) {
		t.Errorf("timestamps not set to now")
	}
	if job.Type != JobTypeGenerateEmbedding {
		t.Errorf("Type = %v", job.Type)
	}
	if job.Text != EmbeddingText(record) {
		t.Errorf("Text = %q", job.Text)
	}

	later := NewEmbeddingJob(record, now.Add(time.Second))
	if later.Id == job.Id {
		t.Errorf("jobs enqueued at different times should have different IDs")
	}
}

func TestJobStatePredicates(t *testing.T) {
	tests := []struct {
		state    JobState
		terminal bool
		pending  bool
		runnable bool
	}{
		{JobStateEnqueued, false, true, true},
		{JobStateProcessing, false, true, false},
		{JobStateRetrying, false, true, true},
		{JobStateCompleted, true, false, false},
		{JobStateDeadLettered, true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if tt.state.Terminal() != tt.terminal {
				t.Errorf("Terminal() = %v", tt.state.Terminal())
			}
			if tt.state.Pending() != tt.pending {
				t.Errorf("Pending() = %v", tt.state.Pending())
			}
			if tt.state.Runnable() != tt.runnable {
				t.Errorf("Runnable() = %v", tt.state.Runnable())
			}
			parsed, ok := ParseJobState(tt.state.String())
			if !ok || parsed != tt.state {
				t.Errorf("ParseJobState(%q) = %v, %v", tt.state.String(), parsed, ok)
			}
		})
	}

	if _, ok := ParseJobState("bogus"); ok {
		t.Errorf("ParseJobState accepted an unknown state")
	}
}

func TestSearchResultClone(t *testing.T) {
	orig := &SearchResult{
		Answer:     "answer",
		Businesses: []RankedRecord{{Record: &Record{Name: "A"}, Relevance: 0.5}},
	}
	c := orig.Clone()
	c.Cached = true
	c.Businesses[0].Record.Name = "B"

	if orig.Cached {
		t.Errorf("Cached flag leaked into original")
	}
	if orig.Businesses[0].Record.Name != "A" {
		t.Errorf("record mutation leaked into original")
	}
}
