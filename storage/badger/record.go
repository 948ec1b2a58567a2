package badger

import (
	"context"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/poiesic/yellowbook/core"
	"github.com/poiesic/yellowbook/storage"
)

// RecordRepository implements storage.RecordRepository for BadgerDB.
type RecordRepository struct {
	backend   *Backend
	dimension int
}

var _ storage.RecordRepository = (*RecordRepository)(nil)

// NewRecordRepository creates a new RecordRepository. Stored vectors must
// have exactly dimension components; zero disables the check.
func NewRecordRepository(backend *Backend, dimension int) *RecordRepository {
	return &RecordRepository{
		backend:   backend,
		dimension: dimension,
	}
}

// Close is a no-op; the backend is closed by its owner.
func (r *RecordRepository) Close() error {
	return nil
}

// AddRecord stores a new record.
func (r *RecordRepository) AddRecord(ctx context.Context, fields core.RecordFields) (*core.Record, error) {
	if err := core.ValidateRecordFields(fields); err != nil {
		return nil, err
	}

	record := core.NewRecord(fields)
	record.Id = core.RecordID(uuid.NewString())
	record.CreatedAt = r.backend.creationTime()
	record.UpdatedAt = record.CreatedAt

	err := r.backend.WithUpdate(func(tx *badger.Txn) error {
		if err := tx.Set(makeRecordKey(record.Id), storage.MarshalRecord(record)); err != nil {
			return err
		}
		return tx.Set(makeRecordOrderKey(record.CreatedAt, record.Id), []byte(record.Id))
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetRecord retrieves a single record by ID.
func (r *RecordRepository) GetRecord(ctx context.Context, id core.RecordID) (*core.Record, error) {
	var result *core.Record
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = r.readRecord(tx, id)
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// ListRecords returns records in creation order, optionally filtered by city.
func (r *RecordRepository) ListRecords(ctx context.Context, cityFilter string) ([]*core.Record, error) {
	city := strings.ToLower(strings.TrimSpace(cityFilter))
	return r.scan(ctx, func(rec *core.Record) bool {
		return city == "" || strings.Contains(strings.ToLower(rec.Address.City), city)
	})
}

// ListRecordsWithoutVector returns records not yet embedded, in creation order.
func (r *RecordRepository) ListRecordsWithoutVector(ctx context.Context) ([]*core.Record, error) {
	return r.scan(ctx, func(rec *core.Record) bool {
		return !rec.HasVector()
	})
}

// UpdateRecord replaces a record's content and clears its vector.
func (r *RecordRepository) UpdateRecord(ctx context.Context, id core.RecordID, fields core.RecordFields) (*core.Record, error) {
	if err := core.ValidateRecordFields(fields); err != nil {
		return nil, err
	}

	var updated *core.Record
	err := r.backend.WithUpdate(func(tx *badger.Txn) error {
		record, err := r.readRecord(tx, id)
		if err != nil {
			return err
		}
		if record == nil {
			return storage.ErrNotFound
		}

		record.Apply(fields)
		record.Vector = nil
		record.UpdatedAt = now()
		updated = record
		return tx.Set(makeRecordKey(id), storage.MarshalRecord(record))
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateEmbedding conditionally stores a record's vector.
func (r *RecordRepository) UpdateEmbedding(ctx context.Context, id core.RecordID, vector core.Vector, notModifiedAfter time.Time) (bool, error) {
	if err := core.ValidateVector(vector, r.dimension); err != nil {
		return false, err
	}

	applied := false
	err := r.backend.WithUpdate(func(tx *badger.Txn) error {
		applied = false
		record, err := r.readRecord(tx, id)
		if err != nil {
			return err
		}
		if record == nil {
			return storage.ErrNotFound
		}
		if record.HasVector() && record.UpdatedAt.After(notModifiedAfter) {
			return nil
		}

		record.Vector = append(core.Vector(nil), vector...)
		record.UpdatedAt = now()
		if err := tx.Set(makeRecordKey(id), storage.MarshalRecord(record)); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// DeleteRecord removes a record and its index entry.
func (r *RecordRepository) DeleteRecord(ctx context.Context, id core.RecordID) error {
	return r.backend.WithUpdate(func(tx *badger.Txn) error {
		record, err := r.readRecord(tx, id)
		if err != nil {
			return err
		}
		if record == nil {
			return storage.ErrNotFound
		}
		if err := tx.Delete(makeRecordOrderKey(record.CreatedAt, record.Id)); err != nil {
			return err
		}
		return tx.Delete(makeRecordKey(id))
	})
}

// scan walks the creation-order index and returns records accepted by keep.
func (r *RecordRepository) scan(ctx context.Context, keep func(*core.Record) bool) ([]*core.Record, error) {
	var results []*core.Record
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordOrderPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var id core.RecordID
			err := iter.Item().Value(func(val []byte) error {
				id = core.RecordID(val)
				return nil
			})
			if err != nil {
				return err
			}

			record, err := r.readRecord(tx, id)
			if err != nil {
				return err
			}
			if record == nil {
				r.backend.logger.Warn("order index points at missing record", "id", id)
				continue
			}
			if keep(record) {
				results = append(results, record)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// readRecord loads a record inside tx. Returns nil, nil if it doesn't exist.
func (r *RecordRepository) readRecord(tx *badger.Txn, id core.RecordID) (*core.Record, error) {
	item, err := tx.Get(makeRecordKey(id))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var record *core.Record
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		record, unmarshalErr = storage.UnmarshalRecord(val, r.dimension)
		return unmarshalErr
	})
	return record, err
}
