// Package models defines the core domain types for litscreen.
package models

import (
	"strings"
	"time"
)

// TaskStatus represents the current state of a screening task.
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusError      TaskStatus = "error"
)

// IsTerminal reports whether no further transitions are allowed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusError
}

// Field is a named value carried through from a source column that has no
// canonical slot on Record.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ExclusionState tracks why a record was screened out. Stages append to
// Reasons; they never overwrite another stage's reasons.
type ExclusionState struct {
	Excluded bool     `json:"excluded"`
	Reasons  []string `json:"reasons,omitempty"`
}

// Record is one normalized bibliographic entry.
type Record struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Abstract    string   `json:"abstract"`
	SourceTitle string   `json:"source_title"`
	Authors     []string `json:"authors,omitempty"`
	Year        string   `json:"year,omitempty"`
	DOI         string   `json:"doi,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Type        string   `json:"type,omitempty"`
	URL         string   `json:"url,omitempty"`
	Publisher   string   `json:"publisher,omitempty"`
	Volume      string   `json:"volume,omitempty"`
	Pages       string   `json:"pages,omitempty"`
	Extra       []Field  `json:"extra,omitempty"`
	Source      string   `json:"source,omitempty"` // originating upload

	Exclusion ExclusionState `json:"exclusion"`
}

// Exclude marks the record excluded and appends reason.
func (r *Record) Exclude(reason string) {
	r.Exclusion.Excluded = true
	r.Exclusion.Reasons = append(r.Exclusion.Reasons, reason)
}

// ExclusionReason joins all reasons with a pipe separator.
func (r *Record) ExclusionReason() string {
	return strings.Join(r.Exclusion.Reasons, " | ")
}

// AuthorString joins authors with the semicolon convention used on output.
func (r *Record) AuthorString() string {
	return strings.Join(r.Authors, "; ")
}

// KeywordString joins keywords with the semicolon convention used on output.
func (r *Record) KeywordString() string {
	return strings.Join(r.Keywords, "; ")
}

// Clone returns a deep copy so tasks never share record slices.
func (r Record) Clone() Record {
	c := r
	c.Authors = append([]string(nil), r.Authors...)
	c.Keywords = append([]string(nil), r.Keywords...)
	c.Extra = append([]Field(nil), r.Extra...)
	c.Exclusion.Reasons = append([]string(nil), r.Exclusion.Reasons...)
	return c
}

// CloneRecords deep-copies a record sequence.
func CloneRecords(in []Record) []Record {
	if in == nil {
		return nil
	}
	out := make([]Record, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// Columns names the source headers that were resolved to the canonical
// title, abstract and source fields. Empty means the field was synthesized.
type Columns struct {
	Title    string `json:"title_col"`
	Abstract string `json:"abstract_col"`
	Source   string `json:"source_col"`
}

// DedupResult summarizes one deduplication run.
type DedupResult struct {
	OriginalCount     int      `json:"original_count"`
	DOIDuplicates     int      `json:"doi_duplicates"`
	TitleDuplicates   int      `json:"title_duplicates"`
	DuplicatesRemoved int      `json:"duplicates_removed"`
	FinalCount        int      `json:"final_count"`
	Basis             []string `json:"basis,omitempty"`
	Method            string   `json:"method"`
}

// ScreeningStats aggregates counts for one completed run.
type ScreeningStats struct {
	Total                  int `json:"total"`
	AfterDedup             int `json:"after_dedup"`
	TitleAbstractExcluded  int `json:"title_abstract_excluded"`
	JournalExcluded        int `json:"journal_excluded"`
	AIExcluded             int `json:"ai_excluded"`
	AIVerificationExcluded int `json:"ai_verification_excluded"`
	AIErrors               int `json:"ai_errors"`
	Kept                   int `json:"kept"`
	Excluded               int `json:"excluded"`

	TitleColumn    string `json:"title_col"`
	AbstractColumn string `json:"abstract_col"`
	SourceColumn   string `json:"source_col"`
}

// Result is the terminal output of a completed task.
type Result struct {
	Kept      []Record       `json:"kept"`
	Removed   []Record       `json:"removed"`
	Stats     ScreeningStats `json:"stats"`
	Dedup     DedupResult    `json:"dedup"`
	Columns   Columns        `json:"columns"`
	Timestamp string         `json:"timestamp"` // 20060102_150405
}

// Task represents one asynchronous run of the screening pipeline.
type Task struct {
	ID        string     `json:"id"`
	Status    TaskStatus `json:"status"`
	Progress  int        `json:"progress"`
	Message   string     `json:"message"`
	Result    *Result    `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	Files     []string   `json:"files,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Clone returns a deep copy of the task. The result record slices are
// copied so callers can never reach the registry's own data.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Files = append([]string(nil), t.Files...)
	if t.Result != nil {
		r := *t.Result
		r.Kept = CloneRecords(t.Result.Kept)
		r.Removed = CloneRecords(t.Result.Removed)
		r.Dedup.Basis = append([]string(nil), t.Result.Dedup.Basis...)
		c.Result = &r
	}
	return &c
}

// DecisionRecord is an audit entry for a state-mutating action.
type DecisionRecord struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	TaskID     string    `json:"task_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ExclusionDecision is the persisted verdict for one record of a run.
type ExclusionDecision struct {
	TaskID   string `json:"task_id"`
	RecordID string `json:"record_id"`
	Title    string `json:"title"`
	DOI      string `json:"doi,omitempty"`
	Excluded bool   `json:"excluded"`
	Reason   string `json:"reason,omitempty"`
}

// Run is the audit summary of one task execution.
type Run struct {
	TaskID    string     `json:"task_id"`
	Status    TaskStatus `json:"status"`
	Files     []string   `json:"files,omitempty"`
	Total     int        `json:"total"`
	Kept      int        `json:"kept"`
	Excluded  int        `json:"excluded"`
	Error     string     `json:"error,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}
