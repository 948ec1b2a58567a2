package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/poiesic/yellowbook/core"
	"github.com/poiesic/yellowbook/storage"
)

const recordColumns = `id, name, description, categories, street, city, state, postal_code,
	country, phone, email, website, latitude, longitude, embedding, created_at, updated_at`

// RecordRepository implements storage.RecordRepository on PostgreSQL.
type RecordRepository struct {
	pool      *pgxpool.Pool
	dimension int
	logger    *slog.Logger
}

var _ storage.RecordRepository = (*RecordRepository)(nil)

// Option configures a RecordRepository.
type Option func(*RecordRepository) error

// WithLogger sets the logger. A nil logger selects slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *RecordRepository) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger.With("component", "postgres-records")
		return nil
	}
}

// Open connects to connString, verifies the connection and ensures the
// schema exists. The repository owns the pool and closes it in Close.
func Open(ctx context.Context, connString string, dimension int, opts ...Option) (*RecordRepository, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := EnsureSchema(ctx, pool, dimension); err != nil {
		pool.Close()
		return nil, err
	}

	repo := &RecordRepository{
		pool:      pool,
		dimension: dimension,
		logger:    slog.Default().With("component", "postgres-records"),
	}
	for _, opt := range opts {
		if err := opt(repo); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return repo, nil
}

// Close closes the connection pool.
func (r *RecordRepository) Close() error {
	r.pool.Close()
	return nil
}

// AddRecord stores a new record.
func (r *RecordRepository) AddRecord(ctx context.Context, fields core.RecordFields) (*core.Record, error) {
	if err := core.ValidateRecordFields(fields); err != nil {
		return nil, err
	}

	record := core.NewRecord(fields)
	record.Id = core.RecordID(uuid.NewString())
	record.CreatedAt = now()
	record.UpdatedAt = record.CreatedAt

	_, err := r.pool.Exec(ctx, `
		INSERT INTO records (id, name, description, categories, street, city, state, postal_code,
			country, phone, email, website, latitude, longitude, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)`,
		string(record.Id), record.Name, record.Description, record.Categories,
		record.Address.Street, record.Address.City, record.Address.State, record.Address.PostalCode,
		record.Address.Country, record.Contact.Phone, record.Contact.Email, record.Contact.Website,
		record.Location.Latitude, record.Location.Longitude, record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert record: %w", err)
	}
	return record, nil
}

// GetRecord retrieves a single record by ID.
func (r *RecordRepository) GetRecord(ctx context.Context, id core.RecordID) (*core.Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM records WHERE id = $1`, string(id))
	record, err := r.scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return record, nil
}

// ListRecords returns records in creation order, optionally filtered by a
// case-insensitive city substring. The filter is matched literally.
func (r *RecordRepository) ListRecords(ctx context.Context, cityFilter string) ([]*core.Record, error) {
	return r.query(ctx, `SELECT `+recordColumns+` FROM records
		WHERE $1 = '' OR strpos(lower(city), lower($1)) > 0
		ORDER BY seq`, strings.TrimSpace(cityFilter))
}

// ListRecordsWithoutVector returns records not yet embedded, in creation order.
func (r *RecordRepository) ListRecordsWithoutVector(ctx context.Context) ([]*core.Record, error) {
	return r.query(ctx, `SELECT `+recordColumns+` FROM records
		WHERE embedding IS NULL
		ORDER BY seq`)
}

// UpdateRecord replaces a record's content and clears its vector.
func (r *RecordRepository) UpdateRecord(ctx context.Context, id core.RecordID, fields core.RecordFields) (*core.Record, error) {
	if err := core.ValidateRecordFields(fields); err != nil {
		return nil, err
	}

	record := core.NewRecord(fields)
	record.Id = id
	record.UpdatedAt = now()

	err := r.pool.QueryRow(ctx, `
		UPDATE records SET name = $2, description = $3, categories = $4, street = $5, city = $6,
			state = $7, postal_code = $8, country = $9, phone = $10, email = $11, website = $12,
			latitude = $13, longitude = $14, embedding = NULL, updated_at = $15
		WHERE id = $1
		RETURNING created_at`,
		string(id), record.Name, record.Description, record.Categories,
		record.Address.Street, record.Address.City, record.Address.State, record.Address.PostalCode,
		record.Address.Country, record.Contact.Phone, record.Contact.Email, record.Contact.Website,
		record.Location.Latitude, record.Location.Longitude, record.UpdatedAt).Scan(&record.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	record.CreatedAt = record.CreatedAt.UTC()
	return record, nil
}

// UpdateEmbedding conditionally stores a record's vector in a single
// statement, so concurrent edits cannot slip between check and write.
func (r *RecordRepository) UpdateEmbedding(ctx context.Context, id core.RecordID, vector core.Vector, notModifiedAfter time.Time) (bool, error) {
	if err := core.ValidateVector(vector, r.dimension); err != nil {
		return false, err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE records SET embedding = $2, updated_at = $3
		WHERE id = $1 AND (embedding IS NULL OR updated_at <= $4)`,
		string(id), pgvector.NewVector(vector), now(), notModifiedAfter)
	if err != nil {
		return false, fmt.Errorf("failed to update embedding: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	err = r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM records WHERE id = $1)`, string(id)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check record: %w", err)
	}
	if !exists {
		return false, storage.ErrNotFound
	}
	return false, nil
}

// DeleteRecord removes a record.
func (r *RecordRepository) DeleteRecord(ctx context.Context, id core.RecordID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM records WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *RecordRepository) query(ctx context.Context, sql string, args ...any) ([]*core.Record, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*core.Record
	for rows.Next() {
		record, err := r.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return records, nil
}

func (r *RecordRepository) scanRecord(row pgx.Row) (*core.Record, error) {
	var (
		record    core.Record
		id        string
		embedding *pgvector.Vector
	)
	err := row.Scan(&id, &record.Name, &record.Description, &record.Categories,
		&record.Address.Street, &record.Address.City, &record.Address.State, &record.Address.PostalCode,
		&record.Address.Country, &record.Contact.Phone, &record.Contact.Email, &record.Contact.Website,
		&record.Location.Latitude, &record.Location.Longitude, &embedding,
		&record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}

	record.Id = core.RecordID(id)
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	if embedding != nil {
		record.Vector = core.Vector(embedding.Slice())
		if err := core.ValidateVector(record.Vector, r.dimension); err != nil {
			r.logger.Warn("stored vector has wrong dimension", "id", id, "err", err)
			record.Vector = nil
		}
	}
	return &record, nil
}

// now returns the current time at PostgreSQL's timestamp precision.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
