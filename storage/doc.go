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

// Package storage provides the storage abstraction layer for yellowbook.
//
// This package defines repository interfaces that decouple storage implementation
// from search and pipeline logic. Two backends are provided:
//
//   - storage/badger: embedded BadgerDB store for records, the job queue and checkpoints
//   - storage/postgres: PostgreSQL + pgvector store for records
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - RecordRepository: directory records and their vectors
//   - JobRepository: durable embedding job queue with deduplication and dead letters
//   - CheckpointRepository: progress markers for backfill runs
//
// # Ownership
//
// The record store owns the vector column. The embedding pipeline only
// proposes vectors through UpdateEmbedding, which rejects a write when the
// record was modified after the job was enqueued and already carries a vector.
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	repos, err := badger.NewMemoryRepositories(768)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repos.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
