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

import "errors"

// Domain validation errors
var (
	// ErrValidation is the root of every input validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidRecord indicates a Record failed validation.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrEmptyQuestion indicates a search question is blank after trimming.
	ErrEmptyQuestion = errors.New("question cannot be empty")

	// ErrQuestionTooShort indicates a search question has fewer than MinQuestionLength characters.
	ErrQuestionTooShort = errors.New("question is too short")

	// ErrEmptyName indicates the record Name field is empty.
	ErrEmptyName = errors.New("name cannot be empty")

	// ErrEmptyDescription indicates the record Description field is empty.
	ErrEmptyDescription = errors.New("description cannot be empty")

	// ErrNoCategories indicates a record has no categories.
	ErrNoCategories = errors.New("at least one category is required")

	// ErrEmptyCategory indicates one of the categories is blank.
	ErrEmptyCategory = errors.New("category cannot be empty")

	// ErrEmptyCity indicates the record address has no city.
	ErrEmptyCity = errors.New("city cannot be empty")

	// ErrInvalidEmail indicates a malformed contact email.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrInvalidCoordinates indicates latitude or longitude are out of range.
	ErrInvalidCoordinates = errors.New("coordinates out of range")

	// ErrDimensionMismatch indicates a vector does not have the expected number of components.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
