// Package scheduler provides task dispatching with worker pool management.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fentz26/litscreen/internal/audit"
	"github.com/fentz26/litscreen/internal/models"
	"github.com/fentz26/litscreen/internal/pipeline"
	"github.com/fentz26/litscreen/internal/registry"
	"github.com/google/uuid"
)

// MsgQueued is the message of a freshly submitted task.
const MsgQueued = "Queued..."

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("scheduler stopped")

// RunFunc executes one job. pipeline.Run is the production implementation.
type RunFunc func(ctx context.Context, job pipeline.Job, report pipeline.Reporter) (*models.Result, error)

// CompletionHook observes every task once it reaches a terminal state.
type CompletionHook func(ctx context.Context, task *models.Task)

// Scheduler manages task dispatching and worker pools.
type Scheduler struct {
	registry registry.Registry
	pdr      *audit.PDRWriter
	config   *Config
	log      *slog.Logger
	run      RunFunc
	hooks    []CompletionHook

	// Worker pool state
	slots         chan struct{}
	mu            sync.Mutex
	activeWorkers int
	queued        int
	completed     int
	failed        int
	stopped       bool

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new scheduler. pdr and logger may be nil.
func New(reg registry.Registry, pdr *audit.PDRWriter, cfg *Config, logger *slog.Logger) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		registry: reg,
		pdr:      pdr,
		config:   cfg,
		log:      logger.With("component", "scheduler"),
		run:      pipeline.Run,
		slots:    make(chan struct{}, cfg.limit()),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnComplete registers a hook. Hooks run sequentially on the worker
// goroutine, so register them before the first Submit.
func (sch *Scheduler) OnComplete(hook CompletionHook) {
	sch.hooks = append(sch.hooks, hook)
}

// Registry returns the registry tasks are tracked in.
func (sch *Scheduler) Registry() registry.Registry {
	return sch.registry
}

// Submit registers a queued task for job and starts its worker. The job's
// records are copied by the pipeline, so callers may reuse the slice.
func (sch *Scheduler) Submit(ctx context.Context, job pipeline.Job) (string, error) {
	// The worker is counted under mu so Stop never waits on a group that
	// can still grow.
	sch.mu.Lock()
	if sch.stopped {
		sch.mu.Unlock()
		return "", ErrStopped
	}
	sch.wg.Add(1)
	sch.mu.Unlock()

	task := &models.Task{
		ID:      uuid.New().String(),
		Status:  models.TaskStatusQueued,
		Message: MsgQueued,
		Files:   append([]string(nil), job.Files...),
	}
	if err := sch.registry.Create(ctx, task); err != nil {
		sch.wg.Done()
		return "", fmt.Errorf("create task: %w", err)
	}

	if _, err := sch.pdr.Record(audit.ActionSubmit, map[string]interface{}{
		"task_id": task.ID,
		"files":   task.Files,
		"records": len(job.Records),
		"ai":      job.Options.AIEnabled(),
	}, "success", task.ID, fmt.Sprintf("%d records from %d files", len(job.Records), len(job.Files))); err != nil {
		sch.log.Warn("audit submit failed", "task_id", task.ID, "err", err)
	}

	sch.mu.Lock()
	sch.queued++
	sch.mu.Unlock()

	sch.log.Info("task queued", "task_id", task.ID, "records", len(job.Records), "files", len(job.Files))

	go sch.runWorker(task.ID, job)
	return task.ID, nil
}

// Stop cancels running tasks and waits for every worker to exit. Tasks
// still waiting for a slot end in the error state.
func (sch *Scheduler) Stop() {
	sch.mu.Lock()
	sch.stopped = true
	sch.mu.Unlock()
	sch.cancel()
	sch.wg.Wait()
	sch.log.Info("scheduler stopped")
}

// runWorker waits for a slot then executes a task.
func (sch *Scheduler) runWorker(id string, job pipeline.Job) {
	defer sch.wg.Done()

	select {
	case sch.slots <- struct{}{}:
	case <-sch.ctx.Done():
		sch.abandon(id)
		return
	}
	// Both cases may be ready at once; a slot won after Stop is given back.
	if sch.ctx.Err() != nil {
		<-sch.slots
		sch.abandon(id)
		return
	}
	defer func() { <-sch.slots }()

	sch.mu.Lock()
	sch.queued--
	sch.activeWorkers++
	sch.mu.Unlock()
	defer func() {
		sch.mu.Lock()
		sch.activeWorkers--
		sch.mu.Unlock()
	}()

	task, err := sch.registry.Update(sch.ctx, id, func(t *models.Task) error {
		t.Status = models.TaskStatusProcessing
		t.Progress = 0
		t.Message = pipeline.MsgInitializing
		return nil
	})
	if err != nil {
		sch.log.Error("start task", "task_id", id, "err", err)
		sch.finish(id, nil, err)
		return
	}
	if err := sch.pdr.RunStarted(task); err != nil {
		sch.log.Warn("audit start failed", "task_id", id, "err", err)
	}
	sch.log.Info("task started", "task_id", id)

	ctx := sch.ctx
	if sch.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sch.config.TaskTimeout)
		defer cancel()
	}
	if job.Options.AI.Logger == nil {
		job.Options.AI.Logger = sch.log.With("task_id", id)
	}

	result, err := sch.execute(ctx, job, sch.reporter(id))
	sch.finish(id, result, err)
}

// abandon fails a task that never got to run.
func (sch *Scheduler) abandon(id string) {
	sch.mu.Lock()
	sch.queued--
	sch.mu.Unlock()
	sch.finish(id, nil, ErrStopped)
}

// execute runs the job, converting a panic into an error.
func (sch *Scheduler) execute(ctx context.Context, job pipeline.Job, report pipeline.Reporter) (result *models.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sch.run(ctx, job, report)
}

// reporter writes progress into the registry. Failures are logged only;
// progress is advisory.
func (sch *Scheduler) reporter(id string) pipeline.Reporter {
	return func(progress int, message string) {
		_, err := sch.registry.Update(context.Background(), id, func(t *models.Task) error {
			t.Progress = progress
			t.Message = message
			return nil
		})
		if err != nil {
			sch.log.Debug("progress update dropped", "task_id", id, "err", err)
		}
	}
}

// finish moves the task to its terminal state, then runs audit and hooks.
func (sch *Scheduler) finish(id string, result *models.Result, runErr error) {
	ctx := context.Background()
	if runErr == nil && result == nil {
		runErr = errors.New("pipeline returned no result")
	}
	task, err := sch.registry.Update(ctx, id, func(t *models.Task) error {
		if runErr != nil {
			t.Status = models.TaskStatusError
			t.Error = runErr.Error()
			return nil
		}
		t.Status = models.TaskStatusCompleted
		t.Progress = 100
		t.Message = pipeline.MsgCompleted
		t.Result = result
		return nil
	})
	if err != nil {
		sch.log.Error("finish task", "task_id", id, "err", err)
		return
	}

	sch.mu.Lock()
	if task.Status == models.TaskStatusCompleted {
		sch.completed++
	} else {
		sch.failed++
	}
	sch.mu.Unlock()

	if runErr != nil {
		sch.log.Error("task failed", "task_id", id, "err", runErr)
	} else {
		s := result.Stats
		sch.log.Info("task completed", "task_id", id, "total", s.Total, "kept", s.Kept, "excluded", s.Excluded)
	}

	if err := sch.pdr.RunFinished(task); err != nil {
		sch.log.Warn("audit finish failed", "task_id", id, "err", err)
	}
	for _, hook := range sch.hooks {
		hook(ctx, task)
	}
}

// GetStats returns current scheduler statistics.
func (sch *Scheduler) GetStats() map[string]interface{} {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	return map[string]interface{}{
		"active_workers": sch.activeWorkers,
		"queued":         sch.queued,
		"completed":      sch.completed,
		"failed":         sch.failed,
		"global_max":     sch.config.limit(),
		"task_timeout":   sch.config.TaskTimeout.String(),
	}
}
