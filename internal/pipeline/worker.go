package pipeline

import (
	"context"
	"log/slog"
)

// JobHandler performs the work of one import job. It advances the job's
// status through the intermediate phases; the worker sets the final one.
type JobHandler interface {
	Process(ctx context.Context, job *Job) error
}

// JobHandlerFunc adapts a function to JobHandler.
type JobHandlerFunc func(ctx context.Context, job *Job) error

func (f JobHandlerFunc) Process(ctx context.Context, job *Job) error {
	return f(ctx, job)
}

// Worker processes import jobs one at a time.
type Worker struct {
	handler JobHandler
	log     *slog.Logger
}

func NewWorker(h JobHandler, log *slog.Logger) *Worker {
	return &Worker{handler: h, log: log}
}

// Process runs a job to completion and records its final status.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)
	log.Info("import started")

	if err := w.handler.Process(ctx, job); err != nil {
		log.Error("import failed", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, job.Snapshot().Phase)
		return
	}

	// Release the upload once it has been converted.
	job.SetFileData(nil)
	job.SetStatus(StatusCompleted, "done")
	log.Info("import complete", "lessons", job.Snapshot().Progress.Lessons)
}
