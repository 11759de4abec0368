package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/hmtran/vigil/internal/pipeline"
	"github.com/hmtran/vigil/internal/storage"
)

// JobStore abstracts the job record operations the worker performs.
type JobStore interface {
	GetJob(id string) (storage.Job, error)
	MarkJobRunning(id string) error
	CompleteJob(id string, resultJSON string) error
	FailJob(id string, errMsg string, resultJSON string) error
}

// Runner executes one job's worth of work. Each job gets a fresh Runner so
// scraper sessions and store handles never leak state between jobs.
type Runner interface {
	ProcessChannel(ctx context.Context, params pipeline.ChannelParams) (pipeline.ChannelResult, error)
	ProcessVideo(ctx context.Context, params pipeline.VideoParams) (pipeline.VideoResult, error)
	Close() error
}

// RunnerFactory builds a Runner for a single job.
type RunnerFactory func(ctx context.Context) (Runner, error)

// Worker drains the queue one job at a time. A single worker goroutine is
// the concurrency model: jobs run strictly in submission order and never
// overlap.
type Worker struct {
	records    JobStore
	queue      *Queue
	newRunner  RunnerFactory
	poll       time.Duration
	jobTimeout time.Duration
	logger     *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to
// 500ms. jobTimeout of 0 means jobs run without a deadline.
func NewWorker(records JobStore, queue *Queue, newRunner RunnerFactory, pollInterval, jobTimeout time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		records:    records,
		queue:      queue,
		newRunner:  newRunner,
		poll:       pollInterval,
		jobTimeout: jobTimeout,
		logger:     slog.Default(),
	}
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-w.queue.Pending():
			if err := w.RunOne(ctx, id); err != nil {
				w.logger.Error("worker iteration failed", "job_id", id, "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(w.poll):
				}
			}
		case <-time.After(w.poll):
		}
	}
}

// RunOne executes a single job by id. Handler errors are recorded on the
// job row and do not propagate; the returned error covers only internal
// failures such as unreachable job records.
func (w *Worker) RunOne(ctx context.Context, id string) error {
	job, err := w.records.GetJob(id)
	if err != nil {
		return fmt.Errorf("loading job %s: %w", id, err)
	}
	if job.Status != storage.JobQueued {
		w.logger.Warn("skipping job in unexpected state", "job_id", id, "status", job.Status)
		return nil
	}

	if err := w.records.MarkJobRunning(id); err != nil {
		return fmt.Errorf("starting job %s: %w", id, err)
	}

	result, err := w.execute(ctx, job)
	if err != nil {
		w.logger.Warn("job failed", "job_id", id, "type", job.Type, "error", err)
		resultJSON, _ := json.Marshal(map[string]string{"error": err.Error()})
		if failErr := w.records.FailJob(id, err.Error(), string(resultJSON)); failErr != nil {
			return fmt.Errorf("marking job %s failed: %w", id, failErr)
		}
		return nil
	}

	if err := w.records.CompleteJob(id, result); err != nil {
		return fmt.Errorf("completing job %s: %w", id, err)
	}
	w.logger.Info("job completed", "job_id", id, "type", job.Type)
	return nil
}

// execute builds a fresh runner and dispatches the job by type. A panic in
// a handler is recovered and reported as the job's error so one bad page
// never takes the worker down.
func (w *Worker) execute(ctx context.Context, job storage.Job) (resultJSON string, err error) {
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	runner, err := w.newRunner(ctx)
	if err != nil {
		return "", fmt.Errorf("preparing job resources: %w", err)
	}
	defer func() {
		if closeErr := runner.Close(); closeErr != nil {
			w.logger.Warn("closing job resources", "job_id", job.ID, "error", closeErr)
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()

	switch job.Type {
	case TypeChannel:
		var params pipeline.ChannelParams
		if err := json.Unmarshal([]byte(job.ParamsJSON), &params); err != nil {
			return "", fmt.Errorf("parsing params: %w", err)
		}
		result, err := runner.ProcessChannel(ctx, params)
		if err != nil {
			return "", err
		}
		return marshalResult(result)
	case TypeVideo:
		var params pipeline.VideoParams
		if err := json.Unmarshal([]byte(job.ParamsJSON), &params); err != nil {
			return "", fmt.Errorf("parsing params: %w", err)
		}
		result, err := runner.ProcessVideo(ctx, params)
		if err != nil {
			return "", err
		}
		return marshalResult(result)
	default:
		return "", fmt.Errorf("unknown job type %q", job.Type)
	}
}

func marshalResult(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	return string(b), nil
}
