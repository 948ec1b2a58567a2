package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/poiesic/yellowbook/core"
)

// seedRecord is one business in a seed file.
type seedRecord struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Categories  []string `json:"categories"`
	Address     struct {
		Street     string `json:"street"`
		City       string `json:"city"`
		State      string `json:"state"`
		PostalCode string `json:"postalCode"`
		Country    string `json:"country"`
	} `json:"address"`
	Contact struct {
		Phone   string `json:"phone"`
		Email   string `json:"email"`
		Website string `json:"website"`
	} `json:"contact"`
	Location struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lng"`
	} `json:"location"`
}

func (s *seedRecord) fields() core.RecordFields {
	return core.RecordFields{
		Name:        s.Name,
		Description: s.Description,
		Categories:  s.Categories,
		Address: core.Address{
			Street:     s.Address.Street,
			City:       s.Address.City,
			State:      s.Address.State,
			PostalCode: s.Address.PostalCode,
			Country:    s.Address.Country,
		},
		Contact: core.Contact{
			Phone:   s.Contact.Phone,
			Email:   s.Contact.Email,
			Website: s.Contact.Website,
		},
		Location: core.Location{
			Latitude:  s.Location.Latitude,
			Longitude: s.Location.Longitude,
		},
	}
}

// readSeed decodes a JSON array of businesses.
func readSeed(r io.Reader) ([]core.RecordFields, error) {
	var records []seedRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode seed data: %w", err)
	}
	out := make([]core.RecordFields, len(records))
	for i := range records {
		out[i] = records[i].fields()
	}
	return out, nil
}

func readSeedFile(path string) ([]core.RecordFields, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readSeed(f)
}
