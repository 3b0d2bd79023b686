// Package controlplane provides the HTTP API and service layer for litscreen.
package controlplane

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fentz26/litscreen/internal/audit"
	"github.com/fentz26/litscreen/internal/dedup"
	"github.com/fentz26/litscreen/internal/delegate"
	"github.com/fentz26/litscreen/internal/export"
	"github.com/fentz26/litscreen/internal/ingest"
	"github.com/fentz26/litscreen/internal/models"
	"github.com/fentz26/litscreen/internal/pipeline"
	"github.com/fentz26/litscreen/internal/registry"
	"github.com/fentz26/litscreen/internal/scheduler"
	"github.com/fentz26/litscreen/internal/screening"
	"github.com/fentz26/litscreen/internal/store"
)

// DelegateFactory builds a delegate for a submission. It returns nil when
// no API key is available.
type DelegateFactory func(apiKey, model string) delegate.Delegate

// ServiceConfig carries the defaults applied to every submission.
type ServiceConfig struct {
	Version     string
	NewDelegate DelegateFactory
	// Verify and CallTimeout seed the AI options; a form value for verify
	// overrides Verify.
	Verify      bool
	CallTimeout time.Duration
	// Dedup applies when a submission leaves remove_duplicates unset.
	// Empty means doi_title.
	Dedup       dedup.Method
	Logger      *slog.Logger
}

// Submission is one screening request as received from a client.
type Submission struct {
	Files                 []ingest.Upload
	TitleAbstractKeywords string
	JournalKeywords       string
	APIKey                string
	Criteria              string
	Model                 string
	// RemoveDuplicates and Verify are nil when the client left them unset.
	RemoveDuplicates *bool
	Verify           *bool
}

// StatusView is the client-facing state of one task.
type StatusView struct {
	ID       string                 `json:"task_id"`
	Status   models.TaskStatus      `json:"status"`
	Progress int                    `json:"progress"`
	Message  string                 `json:"message"`
	Files    []string               `json:"files,omitempty"`
	Stats    *models.ScreeningStats `json:"stats,omitempty"`
	Dedup    *models.DedupResult    `json:"dedup,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// TaskSummary is one row of the task listing.
type TaskSummary struct {
	ID        string            `json:"task_id"`
	Status    models.TaskStatus `json:"status"`
	Progress  int               `json:"progress"`
	Message   string            `json:"message"`
	Files     []string          `json:"files,omitempty"`
	Kept      int               `json:"kept,omitempty"`
	Excluded  int               `json:"excluded,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Service provides the control plane business logic.
type Service struct {
	scheduler *scheduler.Scheduler
	registry  registry.Registry
	store     *store.Store
	pdr       *audit.PDRWriter
	cfg       ServiceConfig
	log       *slog.Logger
}

// NewService creates a new control plane service. st may be nil when the
// audit trail is disabled.
func NewService(sch *scheduler.Scheduler, st *store.Store, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Dedup == "" {
		cfg.Dedup = dedup.MethodDOITitle
	}
	return &Service{
		scheduler: sch,
		registry:  sch.Registry(),
		store:     st,
		pdr:       audit.NewPDRWriter(st),
		cfg:       cfg,
		log:       logger.With("component", "controlplane"),
	}
}

// Version reports the server build version.
func (s *Service) Version() string {
	return s.cfg.Version
}

// --- Submission ---

// Submit validates and parses a submission, then queues it. Validation and
// parse failures are returned before any task is created.
func (s *Service) Submit(ctx context.Context, sub Submission) (string, error) {
	job, err := s.BuildJob(sub)
	if err != nil {
		return "", err
	}
	return s.scheduler.Submit(ctx, *job)
}

// BuildJob turns a submission into a pipeline job.
func (s *Service) BuildJob(sub Submission) (*pipeline.Job, error) {
	if len(sub.Files) == 0 {
		return nil, invalid("file", "No file uploaded")
	}
	for _, f := range sub.Files {
		if f.Name == "" {
			return nil, invalid("file", "No file selected")
		}
		if !ingest.IsSupported(f.Name) {
			return nil, invalid("file", "Unsupported file format: %s", f.Name)
		}
	}

	batch, err := ingest.ParseFiles(sub.Files)
	if err != nil {
		return nil, err
	}
	if len(batch.Records) == 0 {
		return nil, invalid("file", "No valid files processed")
	}
	if batch.Skipped > 0 {
		s.log.Warn("malformed rows skipped", "files", batch.Files, "skipped", batch.Skipped)
	}

	opts := pipeline.Options{
		Blacklists: screening.Blacklists{
			TitleAbstract: screening.ParseKeywords(sub.TitleAbstractKeywords),
			Journal:       screening.ParseKeywords(sub.JournalKeywords),
		},
		Dedup: s.cfg.Dedup,
		AI: screening.AIOptions{
			Criteria:    strings.TrimSpace(sub.Criteria),
			Verify:      s.cfg.Verify,
			CallTimeout: s.cfg.CallTimeout,
		},
	}
	if sub.RemoveDuplicates != nil {
		opts.Dedup = dedup.MethodNone
		if *sub.RemoveDuplicates {
			opts.Dedup = dedup.MethodDOITitle
		}
	}
	if sub.Verify != nil {
		opts.AI.Verify = *sub.Verify
	}
	if opts.AI.Criteria != "" && s.cfg.NewDelegate != nil {
		if d := s.cfg.NewDelegate(strings.TrimSpace(sub.APIKey), strings.TrimSpace(sub.Model)); d != nil {
			opts.Delegate = d
		}
	}
	if opts.AI.Criteria != "" && opts.Delegate == nil {
		s.log.Info("AI criteria given without an API key, AI stage skipped")
	}

	return &pipeline.Job{
		Records: batch.Records,
		Columns: batch.Columns,
		Files:   batch.Files,
		Options: opts,
	}, nil
}

// --- Retrieval ---

// GetTask returns a task or ErrTaskNotFound.
func (s *Service) GetTask(ctx context.Context, id string) (*models.Task, error) {
	task, err := s.registry.Get(ctx, id)
	if errors.Is(err, registry.ErrTaskNotFound) {
		return nil, ErrTaskNotFound
	}
	return task, err
}

// Status returns the client view of a task.
func (s *Service) Status(ctx context.Context, id string) (*StatusView, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &StatusView{
		ID:       task.ID,
		Status:   task.Status,
		Progress: task.Progress,
		Message:  task.Message,
		Files:    task.Files,
	}
	switch task.Status {
	case models.TaskStatusCompleted:
		if task.Result != nil {
			view.Stats = &task.Result.Stats
			view.Dedup = &task.Result.Dedup
		}
	case models.TaskStatusError:
		view.Error = task.Error
		if view.Error == "" {
			view.Error = "Unknown error"
		}
	}
	return view, nil
}

// ListTasks returns task summaries oldest first, optionally filtered by
// status.
func (s *Service) ListTasks(ctx context.Context, status string) ([]TaskSummary, error) {
	tasks, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		if status != "" && string(t.Status) != status {
			continue
		}
		sum := TaskSummary{
			ID:        t.ID,
			Status:    t.Status,
			Progress:  t.Progress,
			Message:   t.Message,
			Files:     t.Files,
			CreatedAt: t.CreatedAt,
			UpdatedAt: t.UpdatedAt,
		}
		if t.Result != nil {
			sum.Kept = t.Result.Stats.Kept
			sum.Excluded = t.Result.Stats.Excluded
		}
		out = append(out, sum)
	}
	return out, nil
}

// Download renders one dataset of a completed task.
func (s *Service) Download(ctx context.Context, id string, ds export.Dataset, f export.Format) (*export.File, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskStatusCompleted || task.Result == nil {
		return nil, ErrResultNotReady
	}
	file, err := export.Export(task.Result, ds, f)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", ds, err)
	}
	s.log.Info("download", "task_id", id, "dataset", ds, "format", f, "bytes", len(file.Data))
	return file, nil
}

// Workers returns scheduler statistics.
func (s *Service) Workers() map[string]interface{} {
	return s.scheduler.GetStats()
}

// --- Audit ---

// AuditStatus reports "ok", "disabled", or the database error.
func (s *Service) AuditStatus(ctx context.Context) (string, error) {
	if s.store == nil {
		return "disabled", nil
	}
	if err := s.store.Ping(ctx); err != nil {
		return "error: " + err.Error(), err
	}
	return "ok", nil
}

// Decisions returns the persisted per-record verdicts of a run.
func (s *Service) Decisions(id string, excludedOnly bool) ([]models.ExclusionDecision, error) {
	if s.store == nil {
		return nil, ErrAuditDisabled
	}
	run, err := s.store.GetRun(id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, ErrTaskNotFound
	}
	return s.store.GetDecisions(id, excludedOnly)
}

// Runs lists audited runs, newest first.
func (s *Service) Runs(status string, limit int) ([]models.Run, error) {
	if s.store == nil {
		return nil, ErrAuditDisabled
	}
	return s.store.ListRuns(status, limit)
}

// History returns the decision records of one task, or all of them when
// id is empty.
func (s *Service) History(id string) ([]models.DecisionRecord, error) {
	if !s.pdr.Enabled() {
		return nil, ErrAuditDisabled
	}
	return s.store.ListPDR(id)
}
