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

// Package search answers natural-language questions over the directory.
//
// The Searcher combines:
//   - A response cache keyed by normalized question and city
//   - Vector ranking by cosine similarity to the embedded question
//   - Keyword ranking when the question cannot be embedded
//   - Answer synthesis by a completion model, with a templated fallback
//
// Vector and keyword relevance use different scales and are never mixed
// within one result; SearchResult.Mode says which one applies.
package search
