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

package storage

import (
	"fmt"
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/yellowbook/core"
)

// Encoding versions, written as the first field of every value.
const (
	recordVersion     = 1
	jobVersion        = 1
	checkpointVersion = 1
)

// fieldWriter is implemented by a sizing pass and a marshaling pass so each
// type's field order is declared once.
type fieldWriter interface {
	str(s string)
	u64(v uint64)
	i64(v int64)
}

type sizer struct{ n int }

func (s *sizer) str(v string) { s.n += ord.String.Size(v) }
func (s *sizer) u64(v uint64) { s.n += varint.Uint64.Size(v) }
func (s *sizer) i64(v int64)  { s.n += varint.Int64.Size(v) }

type writer struct {
	bs []byte
	n  int
}

func (w *writer) str(v string) { w.n += ord.String.Marshal(v, w.bs[w.n:]) }
func (w *writer) u64(v uint64) { w.n += varint.Uint64.Marshal(v, w.bs[w.n:]) }
func (w *writer) i64(v int64)  { w.n += varint.Int64.Marshal(v, w.bs[w.n:]) }

// reader decodes fields in order and remembers the first error.
type reader struct {
	bs  []byte
	n   int
	err error
}

func (r *reader) str() string {
	if r.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) u64() uint64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) i64() int64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

// length reads a collection length and rejects values that cannot fit in
// the remaining input, so corrupt data cannot force a huge allocation.
func (r *reader) length() int {
	l := r.u64()
	if r.err == nil && l > uint64(len(r.bs)-r.n) {
		r.err = ErrTruncatedData
		return 0
	}
	return int(l)
}

func (r *reader) time() time.Time {
	us := r.i64()
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}

func (r *reader) f64() float64 {
	return math.Float64frombits(r.u64())
}

func (r *reader) version(want uint64) {
	if v := r.u64(); r.err == nil && v != want {
		r.err = fmt.Errorf("unsupported encoding version %d", v)
	}
}

func (r *reader) done() error {
	if r.err != nil {
		return fmt.Errorf("%w: %w", ErrSerializationFailed, r.err)
	}
	return nil
}

func putTime(w fieldWriter, t time.Time) {
	if t.IsZero() {
		w.i64(0)
		return
	}
	w.i64(t.UnixMicro())
}

func putF64(w fieldWriter, f float64) {
	w.u64(math.Float64bits(f))
}

func putStrings(w fieldWriter, ss []string) {
	w.u64(uint64(len(ss)))
	for _, s := range ss {
		w.str(s)
	}
}

func putVector(w fieldWriter, v core.Vector) {
	w.u64(uint64(len(v)))
	for _, f := range v {
		w.u64(uint64(math.Float32bits(f)))
	}
}

func encode(put func(w fieldWriter)) []byte {
	s := &sizer{}
	put(s)
	w := &writer{bs: make([]byte, s.n)}
	put(w)
	return w.bs[:w.n]
}

func putRecord(w fieldWriter, r *core.Record) {
	w.u64(recordVersion)
	w.str(string(r.Id))
	w.str(r.Name)
	w.str(r.Description)
	putStrings(w, r.Categories)
	w.str(r.Address.Street)
	w.str(r.Address.City)
	w.str(r.Address.State)
	w.str(r.Address.PostalCode)
	w.str(r.Address.Country)
	w.str(r.Contact.Phone)
	w.str(r.Contact.Email)
	w.str(r.Contact.Website)
	putF64(w, r.Location.Latitude)
	putF64(w, r.Location.Longitude)
	putVector(w, r.Vector)
	putTime(w, r.CreatedAt)
	putTime(w, r.UpdatedAt)
}

// MarshalRecord serializes a Record to bytes.
func MarshalRecord(record *core.Record) []byte {
	return encode(func(w fieldWriter) { putRecord(w, record) })
}

// UnmarshalRecord deserializes a Record from bytes.
// A stored vector must have exactly dim components; dim 0 accepts any width.
func UnmarshalRecord(data []byte, dim int) (*core.Record, error) {
	r := &reader{bs: data}
	r.version(recordVersion)

	rec := &core.Record{}
	rec.Id = core.RecordID(r.str())
	rec.Name = r.str()
	rec.Description = r.str()
	if n := r.length(); n > 0 {
		rec.Categories = make([]string, n)
		for i := range rec.Categories {
			rec.Categories[i] = r.str()
		}
	}
	rec.Address.Street = r.str()
	rec.Address.City = r.str()
	rec.Address.State = r.str()
	rec.Address.PostalCode = r.str()
	rec.Address.Country = r.str()
	rec.Contact.Phone = r.str()
	rec.Contact.Email = r.str()
	rec.Contact.Website = r.str()
	rec.Location.Latitude = r.f64()
	rec.Location.Longitude = r.f64()
	if n := r.length(); n > 0 {
		rec.Vector = make(core.Vector, n)
		for i := range rec.Vector {
			rec.Vector[i] = math.Float32frombits(uint32(r.u64()))
		}
	}
	rec.CreatedAt = r.time()
	rec.UpdatedAt = r.time()

	if err := r.done(); err != nil {
		return nil, err
	}
	if rec.HasVector() {
		if err := core.ValidateVector(rec.Vector, dim); err != nil {
			return nil, fmt.Errorf("%w: record %s: %w", ErrSerializationFailed, rec.Id, err)
		}
	}
	return rec, nil
}

func putJob(w fieldWriter, j *core.EmbeddingJob) {
	w.u64(jobVersion)
	w.u64(uint64(j.Id))
	w.u64(uint64(j.Type))
	w.str(string(j.RecordId))
	w.str(j.Text)
	w.u64(uint64(j.Attempt))
	putTime(w, j.EnqueuedAt)
	w.str(j.DedupKey)
	w.u64(uint64(j.State))
	putTime(w, j.NextRunAt)
	w.str(j.LastError)
	putTime(w, j.UpdatedAt)
}

// MarshalJob serializes an EmbeddingJob to bytes.
func MarshalJob(job *core.EmbeddingJob) []byte {
	return encode(func(w fieldWriter) { putJob(w, job) })
}

// UnmarshalJob deserializes an EmbeddingJob from bytes.
func UnmarshalJob(data []byte) (*core.EmbeddingJob, error) {
	r := &reader{bs: data}
	r.version(jobVersion)

	job := &core.EmbeddingJob{}
	job.Id = core.ID(r.u64())
	job.Type = core.JobType(r.u64())
	job.RecordId = core.RecordID(r.str())
	job.Text = r.str()
	job.Attempt = int(r.u64())
	job.EnqueuedAt = r.time()
	job.DedupKey = r.str()
	job.State = core.JobState(r.u64())
	job.NextRunAt = r.time()
	job.LastError = r.str()
	job.UpdatedAt = r.time()

	if err := r.done(); err != nil {
		return nil, err
	}
	return job, nil
}

// MarshalJobID serializes a job ID for index values.
func MarshalJobID(id core.ID) []byte {
	return encode(func(w fieldWriter) { w.u64(uint64(id)) })
}

// UnmarshalJobID deserializes a job ID written by MarshalJobID.
func UnmarshalJobID(data []byte) (core.ID, error) {
	r := &reader{bs: data}
	id := core.ID(r.u64())
	return id, r.done()
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *core.Checkpoint) []byte {
	return encode(func(w fieldWriter) {
		w.u64(checkpointVersion)
		w.str(checkpoint.ProcessorType)
		w.str(string(checkpoint.LastId))
		w.u64(uint64(checkpoint.Processed))
		putTime(w, checkpoint.UpdatedAt)
	})
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	r := &reader{bs: data}
	r.version(checkpointVersion)

	cp := &core.Checkpoint{}
	cp.ProcessorType = r.str()
	cp.LastId = core.RecordID(r.str())
	cp.Processed = int(r.u64())
	cp.UpdatedAt = r.time()

	if err := r.done(); err != nil {
		return nil, err
	}
	return cp, nil
}
