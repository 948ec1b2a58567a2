package badger

import (
	"encoding/binary"
	"time"

	"github.com/poiesic/yellowbook/core"
)

// Key prefixes for different data types. Every prefix ends with ':' so no
// prefix is a prefix of another.
const (
	recordPrefix      = "rec:"
	recordOrderPrefix = "rord:"
	jobPrefix         = "job:"
	jobDedupPrefix    = "jdup:"
	jobStatePrefix    = "jst:"
	checkpointPrefix  = "chkpt:"
)

// makeRecordKey generates a key for a record by ID.
func makeRecordKey(id core.RecordID) []byte {
	return append([]byte(recordPrefix), id...)
}

// makeRecordOrderKey generates a composite key for the creation-order index.
// Format: prefix:createdAt:id
func makeRecordOrderKey(createdAt time.Time, id core.RecordID) []byte {
	buf := make([]byte, 0, len(recordOrderPrefix)+8+len(id))
	buf = append(buf, recordOrderPrefix...)
	// BigEndian so lexicographic order is chronological
	buf = binary.BigEndian.AppendUint64(buf, uint64(createdAt.UnixMicro()))
	return append(buf, id...)
}

// makeJobKey generates a key for a job by ID.
func makeJobKey(id core.ID) []byte {
	buf := make([]byte, 0, len(jobPrefix)+8)
	buf = append(buf, jobPrefix...)
	return binary.BigEndian.AppendUint64(buf, uint64(id))
}

// makeJobDedupKey generates the key that marks a dedup key as held.
func makeJobDedupKey(dedupKey string) []byte {
	return append([]byte(jobDedupPrefix), dedupKey...)
}

// makePartialJobStateKey generates the prefix shared by all jobs of one
// type in one state.
// Format: prefix:state:type
func makePartialJobStateKey(state core.JobState, jobType core.JobType) []byte {
	buf := make([]byte, 0, len(jobStatePrefix)+2)
	buf = append(buf, jobStatePrefix...)
	return append(buf, byte(state), byte(jobType))
}

// makeJobStateKey generates a composite key for the state index.
// Format: prefix:state:type:nextRunAt:id
func makeJobStateKey(job *core.EmbeddingJob) []byte {
	buf := makePartialJobStateKey(job.State, job.Type)
	buf = binary.BigEndian.AppendUint64(buf, uint64(job.NextRunAt.UnixMicro()))
	return binary.BigEndian.AppendUint64(buf, uint64(job.Id))
}

// parseJobStateKey extracts the run time and job ID from a state index key.
func parseJobStateKey(key []byte) (time.Time, core.ID, bool) {
	offset := len(jobStatePrefix) + 2
	if len(key) != offset+16 {
		return time.Time{}, 0, false
	}
	runAt := time.UnixMicro(int64(binary.BigEndian.Uint64(key[offset:]))).UTC()
	id := core.ID(binary.BigEndian.Uint64(key[offset+8:]))
	return runAt, id, true
}

// makeCheckpointKey generates a key for processor checkpoints.
func makeCheckpointKey(processorType string) []byte {
	return append([]byte(checkpointPrefix), processorType...)
}
