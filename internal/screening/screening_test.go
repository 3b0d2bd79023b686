package screening

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fentz26/litscreen/internal/delegate"
	"github.com/fentz26/litscreen/internal/models"
)

func TestParseKeywords(t *testing.T) {
	got := ParseKeywords("  surgery \n\n\tclinical trial\r\n   \npatient")
	want := []string{"surgery", "clinical trial", "patient"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseKeywords = %q, want %q", got, want)
	}
	if ParseKeywords("") != nil {
		t.Error("expected nil for empty input")
	}
}

func TestMatchTerm_FirstInListOrder(t *testing.T) {
	term, ok := MatchTerm("Drug therapy for CANCER", []string{"cancer", "therapy"})
	if !ok || term != "cancer" {
		t.Errorf("MatchTerm = %q, %v; want cancer", term, ok)
	}
	if _, ok := MatchTerm("", []string{"x"}); ok {
		t.Error("empty text should never match")
	}
	if _, ok := MatchTerm("anything", []string{"  "}); ok {
		t.Error("blank terms should never match")
	}
}

func TestKeywordStage_TitleSubstring(t *testing.T) {
	records := []models.Record{{Title: "A Study of Patient Surgery Outcomes"}}
	bl := Blacklists{TitleAbstract: []string{"surgical", "surgery"}}

	c := KeywordStage(records, bl)

	r := records[0]
	if !r.Exclusion.Excluded {
		t.Fatal("expected record to be excluded")
	}
	if want := []string{"Title: 'surgery'"}; !reflect.DeepEqual(r.Exclusion.Reasons, want) {
		t.Errorf("reasons = %q, want %q", r.Exclusion.Reasons, want)
	}
	if c.TitleAbstractExcluded != 1 || c.JournalExcluded != 0 || c.Excluded != 1 {
		t.Errorf("unexpected counts %+v", c)
	}
}

func TestKeywordStage_JournalOnly(t *testing.T) {
	records := []models.Record{{
		Title:       "Robot grasping",
		Abstract:    "We grasp things",
		SourceTitle: "Journal of Chemistry",
	}}
	bl := Blacklists{TitleAbstract: []string{"surgery"}, Journal: []string{"chemistry"}}

	c := KeywordStage(records, bl)

	if c.JournalExcluded != 1 {
		t.Errorf("JournalExcluded = %d, want 1", c.JournalExcluded)
	}
	if c.TitleAbstractExcluded != 0 {
		t.Errorf("TitleAbstractExcluded = %d, want 0", c.TitleAbstractExcluded)
	}
	if got := records[0].ExclusionReason(); got != "Journal: 'chemistry'" {
		t.Errorf("reason = %q", got)
	}
}

func TestKeywordStage_AllFields(t *testing.T) {
	records := []models.Record{{
		Title:       "Surgery robots",
		Abstract:    "patients in hospital",
		SourceTitle: "Medical Robotics",
	}}
	bl := Blacklists{
		TitleAbstract: []string{"patient", "surgery"},
		Journal:       []string{"medical"},
	}

	c := KeywordStage(records, bl)

	want := "Title: 'surgery' | Abstract: 'patient' | Journal: 'medical'"
	if got := records[0].ExclusionReason(); got != want {
		t.Errorf("reason = %q, want %q", got, want)
	}
	if c.TitleAbstractExcluded != 1 || c.JournalExcluded != 0 {
		t.Errorf("unexpected counts %+v", c)
	}
	if c.TitleAbstractExcluded+c.JournalExcluded > c.Excluded {
		t.Error("counters do not reconcile with excluded total")
	}
}

func TestKeywordStage_KeptRecordsCarryNoReason(t *testing.T) {
	records := []models.Record{{Title: "Robots", Abstract: "Control", SourceTitle: "Automatica"}}
	KeywordStage(records, DefaultBlacklists())
	if records[0].Exclusion.Excluded || len(records[0].Exclusion.Reasons) != 0 {
		t.Errorf("unexpected exclusion %+v", records[0].Exclusion)
	}
}

func TestKeywordStage_Idempotent(t *testing.T) {
	records := []models.Record{
		{Title: "Cancer detection", SourceTitle: "Health Informatics"},
		{Title: "Robot arms"},
		{Title: "Sports analytics"},
	}
	// An earlier stage's reason must survive re-screening.
	records[1].Exclude("AI: off topic")

	bl := DefaultBlacklists()
	first := KeywordStage(records, bl)
	snapshot := models.CloneRecords(records)
	second := KeywordStage(records, bl)

	if first != second {
		t.Errorf("counts changed: %+v vs %+v", first, second)
	}
	for i := range records {
		if !reflect.DeepEqual(records[i].Exclusion, snapshot[i].Exclusion) {
			t.Errorf("record %d changed: %+v vs %+v", i, records[i].Exclusion, snapshot[i].Exclusion)
		}
	}
	if got := records[1].ExclusionReason(); got != "AI: off topic" {
		t.Errorf("foreign reason lost: %q", got)
	}
}

// fakeDelegate returns scripted answers keyed by title.
type fakeDelegate struct {
	mu         sync.Mutex
	decisions  map[string]delegate.Decision
	verifies   map[string]delegate.Verification
	failTitles map[string]bool
	classified []string
	verified   []string
}

func (f *fakeDelegate) Classify(_ context.Context, title, _, _ string) (delegate.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classified = append(f.classified, title)
	if f.failTitles[title] {
		return delegate.Decision{}, errors.New("boom")
	}
	return f.decisions[title], nil
}

func (f *fakeDelegate) Verify(_ context.Context, title, _, _ string) (delegate.Verification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verified = append(f.verified, title)
	if v, ok := f.verifies[title]; ok {
		return v, nil
	}
	return delegate.Verification{InScope: true, Confidence: "high"}, nil
}

func titled(titles ...string) []models.Record {
	out := make([]models.Record, len(titles))
	for i, t := range titles {
		out[i] = models.Record{ID: t, Title: t}
	}
	return out
}

func TestAIStage_ErrorOnOneCandidateDoesNotStopRun(t *testing.T) {
	records := titled("1", "2", "3", "4", "5", "6", "7", "8", "9", "10")
	d := &fakeDelegate{
		failTitles: map[string]bool{"3": true},
		decisions:  map[string]delegate.Decision{"7": {Exclude: true, Reason: "off topic"}},
	}

	c, err := AIStage(context.Background(), records, d, AIOptions{Criteria: "robots only"}, nil)
	if err != nil {
		t.Fatalf("AIStage: %v", err)
	}

	if len(d.classified) != 10 {
		t.Errorf("classified %d candidates, want 10", len(d.classified))
	}
	if records[2].Exclusion.Excluded {
		t.Error("failing candidate must stay kept")
	}
	if !records[6].Exclusion.Excluded || records[6].ExclusionReason() != "AI: off topic" {
		t.Errorf("candidate 7 exclusion = %+v", records[6].Exclusion)
	}
	if c.Errors != 1 || c.Excluded != 1 || c.Candidates != 10 {
		t.Errorf("unexpected counts %+v", c)
	}
}

// chatServer answers classify prompts with classify and verify prompts with
// verify, the way an OpenAI-compatible endpoint would.
func chatServer(t *testing.T, classify, verify string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			t.Errorf("bad request: %v", err)
			return
		}
		content := classify
		if strings.Contains(req.Messages[len(req.Messages)-1].Content, "in_scope") {
			content = verify
		}
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, content)
	}))
}

func TestAIStage_IncompleteRepliesKeepRecord(t *testing.T) {
	tests := []struct {
		name     string
		classify string
		verify   string
	}{
		{"classify without exclude", `{"reason": "clinical"}`, `{"in_scope": true, "confidence": "high"}`},
		{"verify without in_scope", `{"exclude": false, "reason": ""}`, `{"confidence": "high"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := chatServer(t, tt.classify, tt.verify)
			defer ts.Close()
			d := delegate.NewOpenAIClient("test-key", delegate.WithBaseURL(ts.URL), delegate.WithRateLimit(1000))

			records := titled("a")
			c, err := AIStage(context.Background(), records, d,
				AIOptions{Criteria: "robots only", Verify: true, CallTimeout: 5 * time.Second}, nil)
			if err != nil {
				t.Fatalf("AIStage: %v", err)
			}
			if records[0].Exclusion.Excluded {
				t.Errorf("record excluded on an incomplete reply: %v", records[0].Exclusion.Reasons)
			}
			if c.Errors != 1 || c.Excluded != 0 || c.VerificationExcluded != 0 {
				t.Errorf("unexpected counts %+v", c)
			}
		})
	}
}

func TestAIStage_SkipsKeywordExcluded(t *testing.T) {
	records := titled("a", "b", "c")
	records[1].Exclude("Title: 'x'")
	d := &fakeDelegate{}

	c, err := AIStage(context.Background(), records, d, AIOptions{Criteria: "x"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(d.classified, []string{"a", "c"}) {
		t.Errorf("classified = %v", d.classified)
	}
	if c.Candidates != 2 {
		t.Errorf("Candidates = %d", c.Candidates)
	}
}

func TestAIStage_Progress(t *testing.T) {
	records := titled("a", "b", "c", "d")
	var percents []int
	var messages []string

	_, err := AIStage(context.Background(), records, &fakeDelegate{}, AIOptions{Criteria: "x"},
		func(p int, m string) {
			percents = append(percents, p)
			messages = append(messages, m)
		})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(percents, []int{0, 25, 50, 75}) {
		t.Errorf("percents = %v", percents)
	}
	if messages[0] != "AI Screening: 1/4" || messages[3] != "AI Screening: 4/4" {
		t.Errorf("messages = %v", messages)
	}
}

func TestAIStage_Verification(t *testing.T) {
	records := titled("in", "out", "excluded")
	d := &fakeDelegate{
		decisions: map[string]delegate.Decision{"excluded": {Exclude: true, Reason: "r"}},
		verifies:  map[string]delegate.Verification{"out": {InScope: false, Confidence: "medium"}},
	}

	c, err := AIStage(context.Background(), records, d, AIOptions{Criteria: "x", Verify: true}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if records[0].Exclusion.Excluded {
		t.Error("in-scope record should be kept")
	}
	if got := records[1].ExclusionReason(); got != "AI-Verify: out of scope (medium)" {
		t.Errorf("verify reason = %q", got)
	}
	if !reflect.DeepEqual(d.verified, []string{"in", "out"}) {
		t.Errorf("verified = %v; excluded records must not be verified", d.verified)
	}
	if c.Excluded != 1 || c.VerificationExcluded != 1 {
		t.Errorf("unexpected counts %+v", c)
	}
}

func TestAIStage_NoVerifyByDefault(t *testing.T) {
	records := titled("a")
	d := &fakeDelegate{verifies: map[string]delegate.Verification{"a": {InScope: false}}}

	if _, err := AIStage(context.Background(), records, d, AIOptions{Criteria: "x"}, nil); err != nil {
		t.Fatal(err)
	}
	if len(d.verified) != 0 || records[0].Exclusion.Excluded {
		t.Error("verification should not run unless enabled")
	}
}

type slowDelegate struct{}

func (slowDelegate) Classify(ctx context.Context, _, _, _ string) (delegate.Decision, error) {
	<-ctx.Done()
	return delegate.Decision{}, ctx.Err()
}

func (slowDelegate) Verify(ctx context.Context, _, _, _ string) (delegate.Verification, error) {
	<-ctx.Done()
	return delegate.Verification{}, ctx.Err()
}

func TestAIStage_CallTimeoutKeepsRecord(t *testing.T) {
	records := titled("a", "b")

	c, err := AIStage(context.Background(), records, slowDelegate{},
		AIOptions{Criteria: "x", CallTimeout: 10 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("per-call timeout must not abort the run: %v", err)
	}
	if c.Errors != 2 {
		t.Errorf("Errors = %d, want 2", c.Errors)
	}
	for _, r := range records {
		if r.Exclusion.Excluded {
			t.Error("timed-out record must be kept")
		}
	}
}

func TestAIStage_CancelledRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := AIStage(ctx, titled("a"), &fakeDelegate{}, AIOptions{Criteria: "x"}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestApplyOutcome(t *testing.T) {
	tests := []struct {
		name     string
		outcome  Outcome
		excluded bool
		reason   string
		counts   AICounts
	}{
		{"exclude", Outcome{Decision: delegate.Decision{Exclude: true, Reason: "x"}}, true, "AI: x", AICounts{Excluded: 1}},
		{"exclude without reason", Outcome{Decision: delegate.Decision{Exclude: true}}, true, "AI: Criteria matched", AICounts{Excluded: 1}},
		{"keep", Outcome{}, false, "", AICounts{}},
		{"error", Outcome{Err: errors.New("e")}, false, "", AICounts{Errors: 1}},
		{"verify out", Outcome{Verification: &delegate.Verification{InScope: false, Confidence: "low"}}, true, "AI-Verify: out of scope (low)", AICounts{VerificationExcluded: 1}},
		{"verify in", Outcome{Verification: &delegate.Verification{InScope: true}}, false, "", AICounts{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r models.Record
			var c AICounts
			applyOutcome(&r, tt.outcome, &c)
			if r.Exclusion.Excluded != tt.excluded || r.ExclusionReason() != tt.reason {
				t.Errorf("got %+v", r.Exclusion)
			}
			if c != tt.counts {
				t.Errorf("counts = %+v, want %+v", c, tt.counts)
			}
		})
	}
}

func TestPartitionAndStats(t *testing.T) {
	records := titled("a", "b", "c")
	records[1].Exclude("Title: 'x'")

	kept, removed := Partition(records)
	if len(kept) != 2 || len(removed) != 1 || removed[0].ID != "b" {
		t.Fatalf("kept=%d removed=%d", len(kept), len(removed))
	}
	if kept[0].ID != "a" || kept[1].ID != "c" {
		t.Error("partition must preserve order")
	}

	s := Stats(5, models.DedupResult{FinalCount: 3}, KeywordCounts{TitleAbstractExcluded: 1},
		AICounts{Excluded: 0}, len(kept), len(removed), models.Columns{Title: "Title"})
	if s.Total != 5 || s.AfterDedup != 3 || s.Kept != 2 || s.Excluded != 1 || s.TitleColumn != "Title" {
		t.Errorf("unexpected stats %+v", s)
	}
}
