package core

import (
	"strconv"
	"time"
)

// DedupKeyPrefix namespaces embedding job deduplication keys.
const DedupKeyPrefix = "embedding:"

// JobType selects the handler for a queued job.
type JobType int

const (
	// JobTypeGenerateEmbedding computes and stores a record's vector.
	JobTypeGenerateEmbedding JobType = iota + 1
)

func (t JobType) String() string {
	switch t {
	case JobTypeGenerateEmbedding:
		return "generate-embedding"
	default:
		return "unknown"
	}
}

// JobState is the lifecycle position of a job.
//
//	Enqueued -> Processing -> Completed
//	                       -> Retrying -> Processing
//	                       -> DeadLettered
type JobState int

const (
	JobStateEnqueued JobState = iota + 1
	JobStateProcessing
	JobStateRetrying
	JobStateCompleted
	JobStateDeadLettered
)

func (s JobState) String() string {
	switch s {
	case JobStateEnqueued:
		return "enqueued"
	case JobStateProcessing:
		return "processing"
	case JobStateRetrying:
		return "retrying"
	case JobStateCompleted:
		return "completed"
	case JobStateDeadLettered:
		return "dead-lettered"
	default:
		return "unknown"
	}
}

// ParseJobState is the inverse of JobState.String.
func ParseJobState(s string) (JobState, bool) {
	for st := JobStateEnqueued; st <= JobStateDeadLettered; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateDeadLettered
}

// Pending reports whether the job still holds its dedup key.
func (s JobState) Pending() bool {
	return s == JobStateEnqueued || s == JobStateProcessing || s == JobStateRetrying
}

// Runnable reports whether a worker may claim the job.
func (s JobState) Runnable() bool {
	return s == JobStateEnqueued || s == JobStateRetrying
}

// EmbeddingJob is a queued request to embed one record.
type EmbeddingJob struct {
	Id         ID
	Type       JobType
	RecordId   RecordID
	Text       string
	Attempt    int // 1 on first delivery
	EnqueuedAt time.Time
	DedupKey   string
	State      JobState
	NextRunAt  time.Time
	LastError  string
	UpdatedAt  time.Time
}

// DedupKey returns the deduplication key for a record's embedding job.
func DedupKey(id RecordID) string {
	return DedupKeyPrefix + string(id)
}

// NewEmbeddingJob builds a job for the record's current content.
func NewEmbeddingJob(record *Record, now time.Time) *EmbeddingJob {
	key := DedupKey(record.Id)
	return &EmbeddingJob{
		Id:         IDFromContent(key + "@" + strconv.FormatInt(now.UnixNano(), 10)),
		Type:       JobTypeGenerateEmbedding,
		RecordId:   record.Id,
		Text:       EmbeddingText(record),
		Attempt:    1,
		EnqueuedAt: now,
		DedupKey:   key,
		State:      JobStateEnqueued,
		NextRunAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a copy of the job.
func (j *EmbeddingJob) Clone() *EmbeddingJob {
	if j == nil {
		return nil
	}
	c := *j
	return &c
}
