package core

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// DefaultDimension is the vector width produced by the default embedding model.
const DefaultDimension = 768

// ID is a unique identifier for queue entities.
// It is generated using content-based hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// RecordID identifies a directory record. Stores assign UUIDs.
type RecordID string

// Vector is a semantic embedding. An empty Vector means "not yet embedded".
type Vector []float32

// Dimension returns the number of components.
func (v Vector) Dimension() int {
	return len(v)
}

// IsZero reports whether the vector is absent.
func (v Vector) IsZero() bool {
	return len(v) == 0
}

// Address is the postal location of a business.
type Address struct {
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Contact holds the ways a business can be reached.
type Contact struct {
	Phone   string
	Email   string
	Website string
}

// Location is a WGS84 coordinate pair.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Record is a single business in the directory.
// Vector is populated asynchronously by the embedding pipeline.
type Record struct {
	Id          RecordID
	Name        string
	Description string
	Categories  []string // display order preserved
	Address     Address
	Contact     Contact
	Location    Location
	Vector      Vector
	CreatedAt   time.Time
	UpdatedAt   time.Time // bumped on every write, including vector writes
}

// HasVector reports whether the record has been embedded.
func (r *Record) HasVector() bool {
	return !r.Vector.IsZero()
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Categories != nil {
		c.Categories = append([]string(nil), r.Categories...)
	}
	if r.Vector != nil {
		c.Vector = append(Vector(nil), r.Vector...)
	}
	return &c
}

// RecordFields is the caller-supplied content of a new or edited record.
type RecordFields struct {
	Name        string
	Description string
	Categories  []string
	Address     Address
	Contact     Contact
	Location    Location
}

// NewRecord builds an unsaved record from fields.
func NewRecord(fields RecordFields) *Record {
	r := &Record{}
	r.Apply(fields)
	return r
}

// Apply overwrites the record's content with fields. Identity, vector
// and timestamps are left alone.
func (r *Record) Apply(fields RecordFields) {
	r.Name = strings.TrimSpace(fields.Name)
	r.Description = strings.TrimSpace(fields.Description)
	r.Categories = make([]string, 0, len(fields.Categories))
	for _, c := range fields.Categories {
		r.Categories = append(r.Categories, strings.TrimSpace(c))
	}
	r.Address = fields.Address
	r.Contact = fields.Contact
	r.Location = fields.Location
}

// EmbeddingText builds the source text sent to the embedding provider:
// name, description, categories and location joined into sentences.
func EmbeddingText(r *Record) string {
	parts := make([]string, 0, 4)
	if r.Name != "" {
		parts = append(parts, r.Name)
	}
	if r.Description != "" {
		parts = append(parts, r.Description)
	}
	if len(r.Categories) > 0 {
		parts = append(parts, strings.Join(r.Categories, ", "))
	}
	if loc := locationLine(r.Address); loc != "" {
		parts = append(parts, "Located in "+loc)
	}
	return strings.Join(parts, ". ")
}

func locationLine(a Address) string {
	switch {
	case a.City != "" && a.State != "":
		return a.City + ", " + a.State
	case a.City != "":
		return a.City
	default:
		return a.State
	}
}

// Checkpoint records how far a long-running processor has progressed.
type Checkpoint struct {
	ProcessorType string
	LastId        RecordID
	Processed     int
	UpdatedAt     time.Time
}
