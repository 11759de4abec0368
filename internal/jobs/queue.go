package jobs

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hmtran/vigil/internal/storage"
)

// Job types understood by the worker.
const (
	TypeChannel = "channel_analysis"
	TypeVideo   = "video_analysis"
)

// ErrQueueFull is returned by Submit when the hand-off buffer has no room.
var ErrQueueFull = errors.New("job queue is full")

// Recorder is the subset of the record store the queue needs.
type Recorder interface {
	CreateJob(j storage.Job) error
	DeleteJob(id string) error
}

// Queue accepts job submissions and hands their ids to the worker over a
// bounded buffer. Every accepted job has a durable row before Submit
// returns, so callers can poll its status immediately.
type Queue struct {
	records Recorder
	pending chan string
}

// NewQueue creates a queue with the given buffer size. If size <= 0, it
// defaults to 100.
func NewQueue(records Recorder, size int) *Queue {
	if size <= 0 {
		size = 100
	}
	return &Queue{
		records: records,
		pending: make(chan string, size),
	}
}

// Submit records a new job and enqueues it for the worker. It returns the
// job id, or ErrQueueFull when the buffer has no room; a job rejected for
// lack of room leaves no row behind.
func (q *Queue) Submit(jobType, paramsJSON string) (string, error) {
	id := uuid.New().String()
	if err := q.records.CreateJob(storage.Job{ID: id, Type: jobType, ParamsJSON: paramsJSON}); err != nil {
		return "", fmt.Errorf("recording job: %w", err)
	}

	select {
	case q.pending <- id:
		return id, nil
	default:
		if err := q.records.DeleteJob(id); err != nil {
			return "", fmt.Errorf("rolling back rejected job %s: %w", id, err)
		}
		return "", ErrQueueFull
	}
}

// Pending exposes the hand-off channel for the worker.
func (q *Queue) Pending() <-chan string {
	return q.pending
}
