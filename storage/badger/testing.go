package badger

import "github.com/poiesic/yellowbook/storage"

// MemoryRepositories bundles repositories sharing one in-memory backend.
type MemoryRepositories struct {
	Records     storage.RecordRepository
	Jobs        storage.JobRepository
	Checkpoints storage.CheckpointRepository
	Backend     *Backend
}

// Close closes the shared backend.
func (m *MemoryRepositories) Close() error {
	return m.Backend.Close()
}

// NewMemoryRepositories creates in-memory repositories for testing.
// dimension is the vector dimension records are validated against.
// Caller must Close the result when done.
func NewMemoryRepositories(dimension int) (*MemoryRepositories, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}

	return &MemoryRepositories{
		Records:     NewRecordRepository(backend, dimension),
		Jobs:        NewJobRepository(backend),
		Checkpoints: NewCheckpointRepository(backend),
		Backend:     backend,
	}, nil
}
