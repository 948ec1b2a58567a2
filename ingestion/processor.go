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

package ingestion

import (
	"context"
	"errors"

	"github.com/poiesic/yellowbook/ai"
	"github.com/poiesic/yellowbook/core"
	"github.com/poiesic/yellowbook/storage"
)

// handler runs one kind of job. Implementations classify their own
// failures; the pipeline applies the retry limit and persists the result.
type handler interface {
	// handle executes job once and reports how it ended.
	handle(ctx context.Context, job *core.EmbeddingJob) Outcome
}

// Outcome is the result of one job execution.
//
// State is Completed on success, Retrying for a failure worth repeating and
// DeadLettered for one that is not. A retryable failure on the last allowed
// attempt is reported as DeadLettered with an error wrapping ErrJobExhausted.
type Outcome struct {
	JobID   core.ID
	State   core.JobState
	Attempt int   // the attempt that ran
	Err     error // nil unless the job failed
	NoOp    bool  // completed without writing a vector
}

func succeeded(job *core.EmbeddingJob, noop bool) Outcome {
	return Outcome{JobID: job.Id, State: core.JobStateCompleted, Attempt: job.Attempt, NoOp: noop}
}

func failed(job *core.EmbeddingJob, err error) Outcome {
	state := core.JobStateDeadLettered
	if IsRetryable(err) {
		state = core.JobStateRetrying
	}
	return Outcome{JobID: job.Id, State: state, Attempt: job.Attempt, Err: err}
}

// IsRetryable reports whether a job that failed with err may succeed later.
// Missing records and invalid input are permanent; provider errors follow
// their kind; anything else, such as a transient store error, is retried.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrRecordGone), errors.Is(err, storage.ErrNotFound):
		return false
	case errors.Is(err, core.ErrValidation), errors.Is(err, ErrUnknownJobType):
		return false
	}
	return ai.IsRetryable(err)
}
