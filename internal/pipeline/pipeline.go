// Package pipeline sequences the screening stages for one task: dedup,
// keyword screening, optional AI screening, then partition and stats.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fentz26/litscreen/internal/dedup"
	"github.com/fentz26/litscreen/internal/delegate"
	"github.com/fentz26/litscreen/internal/models"
	"github.com/fentz26/litscreen/internal/screening"
)

// Phase messages reported while a task runs.
const (
	MsgInitializing = "Initializing..."
	MsgDedup        = "Removing duplicates..."
	MsgKeywords     = "Keyword Screening..."
	MsgConnectAI    = "Connecting to AI..."
	MsgCompleted    = "Completed!"
)

// TimestampFormat names result files.
const TimestampFormat = "20060102_150405"

// Options controls which stages run and how.
type Options struct {
	Blacklists screening.Blacklists
	Dedup      dedup.Method
	// Delegate enables the AI stage together with a non-empty AI.Criteria.
	Delegate delegate.Delegate
	AI       screening.AIOptions
}

// AIEnabled reports whether the AI stage will run.
func (o Options) AIEnabled() bool {
	return o.Delegate != nil && o.AI.Criteria != ""
}

// Job is everything a worker needs to run one task.
type Job struct {
	Records []models.Record
	Columns models.Columns
	Files   []string
	Options Options
}

// Reporter receives coarse progress updates.
type Reporter func(progress int, message string)

// StageError is an unexpected failure inside a stage. It aborts the task.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Run executes every stage on a private copy of the job's records.
func Run(ctx context.Context, job Job, report Reporter) (*models.Result, error) {
	if report == nil {
		report = func(int, string) {}
	}
	log := job.Options.AI.Logger
	if log == nil {
		log = slog.Default()
	}

	report(0, MsgInitializing)
	records := models.CloneRecords(job.Records)
	total := len(records)

	var dres models.DedupResult
	if job.Options.Dedup == dedup.MethodNone {
		records, dres = dedup.Deduplicate(records, dedup.MethodNone)
	} else {
		report(0, MsgDedup)
		if err := guard("dedup", func() {
			records, dres = dedup.Deduplicate(records, dedup.MethodDOITitle)
		}); err != nil {
			return nil, err
		}
		log.Info("deduplicated", "original", dres.OriginalCount, "removed", dres.DuplicatesRemoved)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report(0, MsgKeywords)
	var kw screening.KeywordCounts
	if err := guard("keyword", func() {
		kw = screening.KeywordStage(records, job.Options.Blacklists)
	}); err != nil {
		return nil, err
	}
	log.Info("keyword screening done", "excluded", kw.Excluded,
		"title_abstract", kw.TitleAbstractExcluded, "journal_only", kw.JournalExcluded)

	var ai screening.AICounts
	if job.Options.AIEnabled() {
		report(0, MsgConnectAI)
		var err error
		ai, err = screening.AIStage(ctx, records, job.Options.Delegate, job.Options.AI, screening.ProgressFunc(report))
		if err != nil {
			return nil, err
		}
		log.Info("ai screening done", "candidates", ai.Candidates, "excluded", ai.Excluded,
			"verify_excluded", ai.VerificationExcluded, "errors", ai.Errors)
	}

	kept, removed := screening.Partition(records)
	return &models.Result{
		Kept:      kept,
		Removed:   removed,
		Stats:     screening.Stats(total, dres, kw, ai, len(kept), len(removed), job.Columns),
		Dedup:     dres,
		Columns:   job.Columns,
		Timestamp: time.Now().Format(TimestampFormat),
	}, nil
}

// guard turns a panic inside a stage into a StageError.
func guard(stage string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	fn()
	return nil
}
