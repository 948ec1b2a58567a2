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

// Package ai provides abstractions for the AI services used by the
// directory search: text embeddings and answer completion.
//
// # Interfaces
//
//   - Embedder: Generates vector embeddings from text
//   - Completer: Generates an answer from a prompt
//   - AIProvider: Aggregates both for initialization and shutdown
//
// # Errors
//
// Implementations return *ProviderError. Its Kind tells callers whether a
// failure is worth retrying: rate limits, outages, timeouts and refused
// connections are; invalid input, bad credentials, unknown models and
// wrong-sized vectors are not. Implementations never retry internally.
//
// # Implementation Packages
//
//   - ai/langchain: langchaingo clients for OpenAI-compatible servers and Ollama
//   - ai/openai: the official OpenAI Go SDK
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// Public constructors return interface types. The mock constructors return
// concrete types so tests can inject behavior and read call counts.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithHost("http://localhost:11434"))
//	provider, err := langchain.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "italian restaurant")
package ai
