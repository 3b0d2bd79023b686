// Package registry stores screening tasks. It is the only state shared
// between the HTTP layer and the workers, and it enforces that a task in a
// terminal state is never written again.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/litscreen/internal/models"
)

// Sentinel errors returned by every Registry implementation.
var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrTaskExists        = errors.New("task already exists")
	ErrTaskFrozen        = errors.New("task is in a terminal state")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Registry is a concurrency-safe task store. Get and List return copies;
// the only way to change a task is Update.
type Registry interface {
	Create(ctx context.Context, task *models.Task) error
	Get(ctx context.Context, id string) (*models.Task, error)
	// Update applies fn to a copy of the task and stores the result. It
	// fails with ErrTaskFrozen when the stored task is already terminal.
	Update(ctx context.Context, id string, fn func(*models.Task) error) (*models.Task, error)
	// List returns tasks oldest first.
	List(ctx context.Context) ([]*models.Task, error)
}

// transitions lists the allowed next statuses for each status.
var transitions = map[models.TaskStatus][]models.TaskStatus{
	models.TaskStatusQueued:     {models.TaskStatusProcessing, models.TaskStatusCompleted, models.TaskStatusError},
	models.TaskStatusProcessing: {models.TaskStatusCompleted, models.TaskStatusError},
}

// checkTransition validates a status change made by an update function.
func checkTransition(from, to models.TaskStatus) error {
	if from == to {
		return nil
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// applyUpdate runs fn against a copy of cur and validates the outcome. It is
// shared by all backends so they enforce identical rules.
func applyUpdate(cur *models.Task, fn func(*models.Task) error) (*models.Task, error) {
	if cur.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrTaskFrozen, cur.ID, cur.Status)
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if next.ID != cur.ID {
		return nil, fmt.Errorf("task id cannot change (%s -> %s)", cur.ID, next.ID)
	}
	if err := checkTransition(cur.Status, next.Status); err != nil {
		return nil, err
	}
	switch {
	case next.Progress < 0:
		next.Progress = 0
	case next.Progress > 100:
		next.Progress = 100
	}
	if next.Status != models.TaskStatusCompleted {
		next.Result = nil
	}
	if next.Status != models.TaskStatusError {
		next.Error = ""
	}
	next.UpdatedAt = time.Now().UTC()
	return next, nil
}

// prepareNew validates and stamps a task before first storage.
func prepareNew(task *models.Task) (*models.Task, error) {
	if task == nil || task.ID == "" {
		return nil, errors.New("task id is required")
	}
	t := task.Clone()
	if t.Status == "" {
		t.Status = models.TaskStatusQueued
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	return t, nil
}
