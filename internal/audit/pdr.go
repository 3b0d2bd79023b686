// Package audit writes decision records and per-record screening verdicts
// for completed and failed tasks.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/fentz26/litscreen/internal/models"
	"github.com/fentz26/litscreen/internal/store"
)

// Actions recorded by the task lifecycle.
const (
	ActionSubmit   = "task.submit"
	ActionStart    = "task.start"
	ActionComplete = "task.complete"
	ActionFail     = "task.fail"
)

// PDRWriter writes decision records for audit trails.
type PDRWriter struct {
	store *store.Store
}

// NewPDRWriter creates a new writer. A nil store yields a writer whose
// methods do nothing, so callers never need to check whether auditing is on.
func NewPDRWriter(s *store.Store) *PDRWriter {
	return &PDRWriter{store: s}
}

// Enabled reports whether records are persisted.
func (w *PDRWriter) Enabled() bool {
	return w != nil && w.store != nil
}

// Record writes an entry for a state-mutating action.
func (w *PDRWriter) Record(action string, inputs interface{}, outcome, taskID, details string) (*models.DecisionRecord, error) {
	if !w.Enabled() {
		return nil, nil
	}
	return w.store.WritePDR(action, hashInputs(inputs), outcome, taskID, details)
}

// RunStarted opens the run row for a task.
func (w *PDRWriter) RunStarted(task *models.Task) error {
	if !w.Enabled() {
		return nil
	}
	if _, err := w.store.CreateRun(task.ID, task.Files); err != nil {
		return err
	}
	_, err := w.Record(ActionStart, map[string]interface{}{"task_id": task.ID, "files": task.Files},
		"success", task.ID, "")
	return err
}

// RunFinished closes the run row and, for completed tasks, stores one
// verdict per record in kept-then-removed order. Tasks that failed before
// starting get their run row here.
func (w *PDRWriter) RunFinished(task *models.Task) error {
	if !w.Enabled() {
		return nil
	}
	run, err := w.store.GetRun(task.ID)
	if err != nil {
		return err
	}
	if run == nil {
		if _, err := w.store.CreateRun(task.ID, task.Files); err != nil {
			return err
		}
	}
	if err := w.store.FinishRun(task.ID, task.Status, task.Result, task.Error); err != nil {
		return err
	}

	if task.Status != models.TaskStatusCompleted || task.Result == nil {
		_, err := w.Record(ActionFail, map[string]interface{}{"task_id": task.ID, "error": task.Error},
			"error", task.ID, task.Error)
		return err
	}

	if err := w.store.WriteDecisions(Decisions(task.ID, task.Result)); err != nil {
		return err
	}
	s := task.Result.Stats
	_, err = w.Record(ActionComplete, s, "success", task.ID,
		fmt.Sprintf("kept %d, excluded %d of %d", s.Kept, s.Excluded, s.Total))
	return err
}

// Decisions flattens a result into per-record verdicts.
func Decisions(taskID string, res *models.Result) []models.ExclusionDecision {
	out := make([]models.ExclusionDecision, 0, len(res.Kept)+len(res.Removed))
	for _, r := range res.Kept {
		out = append(out, models.ExclusionDecision{TaskID: taskID, RecordID: r.ID, Title: r.Title, DOI: r.DOI})
	}
	for i := range res.Removed {
		r := &res.Removed[i]
		out = append(out, models.ExclusionDecision{
			TaskID:   taskID,
			RecordID: r.ID,
			Title:    r.Title,
			DOI:      r.DOI,
			Excluded: true,
			Reason:   r.ExclusionReason(),
		})
	}
	return out
}

// hashInputs creates a SHA256 hash of the inputs for reproducibility.
func hashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
