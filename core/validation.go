// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// ValidationError reports a rejected input field. It matches both
// ErrValidation and the specific cause under errors.Is.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrValidation, e.Field, e.Err)
}

// Unwrap exposes the generic and specific causes.
func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Err}
}

// IsValidationError reports whether err was caused by rejected input.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// ValidateRecordFields validates the content of a record before it is stored.
//
// Validation rules:
//   - Name, Description and Address.City must not be empty
//   - Categories must contain at least one non-blank entry
//   - Contact.Email, when present, must parse as an address
//   - Location must be a valid coordinate pair
//
// NOT validated:
//   - Vector (absent until the embedding pipeline runs)
func ValidateRecordFields(fields RecordFields) error {
	if strings.TrimSpace(fields.Name) == "" {
		return invalidRecord("name", ErrEmptyName)
	}
	if strings.TrimSpace(fields.Description) == "" {
		return invalidRecord("description", ErrEmptyDescription)
	}
	if len(fields.Categories) == 0 {
		return invalidRecord("categories", ErrNoCategories)
	}
	for _, c := range fields.Categories {
		if strings.TrimSpace(c) == "" {
			return invalidRecord("categories", ErrEmptyCategory)
		}
	}
	if strings.TrimSpace(fields.Address.City) == "" {
		return invalidRecord("address.city", ErrEmptyCity)
	}
	if fields.Contact.Email != "" {
		if _, err := mail.ParseAddress(fields.Contact.Email); err != nil {
			return invalidRecord("contact.email", ErrInvalidEmail)
		}
	}
	if !IsValidLocation(fields.Location) {
		return invalidRecord("location", ErrInvalidCoordinates)
	}
	return nil
}

// ValidateVector checks that v has exactly dim components.
// A zero dim disables the check.
func ValidateVector(v Vector, dim int) error {
	if dim > 0 && len(v) != dim {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dim, len(v))
	}
	return nil
}

// IsValidLocation reports whether loc is within WGS84 bounds.
func IsValidLocation(loc Location) bool {
	return loc.Latitude >= -90 && loc.Latitude <= 90 &&
		loc.Longitude >= -180 && loc.Longitude <= 180
}

func invalidRecord(field string, err error) error {
	return &ValidationError{Field: field, Err: fmt.Errorf("%w: %w", ErrInvalidRecord, err)}
}
