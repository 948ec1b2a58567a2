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

package reembed

import (
	"context"

	"github.com/poiesic/yellowbook/core"
	"github.com/poiesic/yellowbook/storage"
)

const (
	// DefaultBatchSize is the default number of records handed out per batch
	DefaultBatchSize = 100
)

// RecordIterator walks records that have no vector, in creation order.
type RecordIterator struct {
	repo      storage.RecordRepository
	batchSize int
	after     core.RecordID
}

// NewRecordIterator creates a new record iterator.
// batchSize: number of records per batch (defaults to DefaultBatchSize if <= 0)
func NewRecordIterator(repo storage.RecordRepository, batchSize int) *RecordIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &RecordIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// ResumeAfter skips records up to and including id. If id is no longer
// among the pending records the iterator starts from the beginning.
func (it *RecordIterator) ResumeAfter(id core.RecordID) *RecordIterator {
	it.after = id
	return it
}

// Pending returns the records the iterator will visit.
func (it *RecordIterator) Pending(ctx context.Context) ([]*core.Record, error) {
	records, err := it.repo.ListRecordsWithoutVector(ctx)
	if err != nil {
		return nil, err
	}
	if it.after == "" {
		return records, nil
	}
	for i, rec := range records {
		if rec.Id == it.after {
			return records[i+1:], nil
		}
	}
	return records, nil
}

// ForEach calls fn for each batch of pending records.
// Iteration stops on first error from fn or when all records are processed.
// Context cancellation is checked between batches.
func (it *RecordIterator) ForEach(ctx context.Context, fn func([]*core.Record) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	records, err := it.Pending(ctx)
	if err != nil {
		return err
	}
	return forEachBatch(ctx, records, it.batchSize, fn)
}

func forEachBatch(ctx context.Context, records []*core.Record, size int, fn func([]*core.Record) error) error {
	for i := 0; i < len(records); i += size {
		end := min(i+size, len(records))
		if err := fn(records[i:end]); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}
