package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/codebuildervaibhav/transcribe-worker/internal/transcription"
	"github.com/codebuildervaibhav/transcribe-worker/internal/types"
)

// Job represents one transcription request waiting for a worker
type Job struct {
	ID         string
	SourceType string
	Audio      []byte
	Request    transcription.Request
	Status     string
	CreatedAt  time.Time

	ctx  context.Context
	done chan *types.TranscriptionResult
}

// NewJob creates a queued job. The request ID doubles as the job ID.
func NewJob(sourceType string, audio []byte, req transcription.Request) *Job {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	return &Job{
		ID:         req.ID,
		SourceType: sourceType,
		Audio:      audio,
		Request:    req,
		Status:     types.StatusQueued,
		CreatedAt:  time.Now(),
		done:       make(chan *types.TranscriptionResult, 1),
	}
}

// finish hands the result to the submitter. done is buffered so a worker
// never blocks on a caller that has gone away.
func (j *Job) finish(result *types.TranscriptionResult) {
	if result.Success {
		j.Status = types.StatusCompleted
	} else {
		j.Status = types.StatusFailed
	}
	select {
	case j.done <- result:
	default:
	}
}
