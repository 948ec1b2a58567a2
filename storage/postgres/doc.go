// Package postgres provides a PostgreSQL implementation of
// storage.RecordRepository with vectors held in a pgvector column.
//
// Jobs and checkpoints stay in the Badger backend; only records live here
// so an existing directory database can be searched in place.
package postgres
