package tui

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fentz26/litscreen/internal/controlplane"
	"github.com/fentz26/litscreen/internal/models"
)

func TestClient_SubmitAndStatus(t *testing.T) {
	var gotFields map[string]string
	var gotFiles []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/screen":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("ParseMultipartForm: %v", err)
			}
			gotFields = map[string]string{}
			for k, v := range r.MultipartForm.Value {
				gotFields[k] = v[0]
			}
			for _, fh := range r.MultipartForm.File["file"] {
				gotFiles = append(gotFiles, fh.Filename)
			}
			w.Write([]byte(`{"task_id":"abc"}`))
		case "/status/abc":
			json.NewEncoder(w).Encode(controlplane.StatusView{ID: "abc", Status: models.TaskStatusProcessing, Progress: 40})
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"Task not found"}`))
		}
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "refs.ris")
	if err := os.WriteFile(path, []byte("TY  - JOUR\nTI  - A\nER  - \n"), 0644); err != nil {
		t.Fatal(err)
	}

	c := NewClient(srv.URL + "/")
	id, err := c.Submit([]string{path}, SubmitOptions{JournalKeywords: "chemistry", KeepDuplicates: true})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if id != "abc" {
		t.Errorf("Expected task id abc, got %q", id)
	}
	if len(gotFiles) != 1 || gotFiles[0] != "refs.ris" {
		t.Errorf("Unexpected files: %v", gotFiles)
	}
	if gotFields["journal_keywords"] != "chemistry" || gotFields["remove_duplicates"] != "false" || gotFields["verify"] != "false" {
		t.Errorf("Unexpected fields: %v", gotFields)
	}

	view, err := c.Status("abc")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if view.Progress != 40 || view.Status != models.TaskStatusProcessing {
		t.Errorf("Unexpected status: %+v", view)
	}

	_, err = c.Status("missing")
	if !IsNotFound(err) {
		t.Errorf("Expected not found, got %v", err)
	}
	if !strings.Contains(err.Error(), "Task not found") {
		t.Errorf("Expected server message in error, got %v", err)
	}
}

func TestClient_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "ris" {
			t.Errorf("Expected format=ris, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Disposition", `attachment; filename="cleaned_data_20240102_030405.ris"`)
		io.WriteString(w, "TY  - JOUR\n")
	}))
	defer srv.Close()

	name, data, err := NewClient(srv.URL).Download("abc", "cleaned", "ris")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if name != "cleaned_data_20240102_030405.ris" || string(data) != "TY  - JOUR\n" {
		t.Errorf("Unexpected download: %q %q", name, data)
	}
}

func TestClient_AuditLookups(t *testing.T) {
	var gotQueries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQueries = append(gotQueries, r.URL.RequestURI())
		switch r.URL.Path {
		case "/tasks/t1/decisions":
			json.NewEncoder(w).Encode([]models.ExclusionDecision{{TaskID: "t1", Title: "A", Excluded: true, Reason: "Title: 'x'"}})
		case "/tasks/t1/history":
			json.NewEncoder(w).Encode([]models.DecisionRecord{{Action: "task.complete"}})
		case "/runs":
			json.NewEncoder(w).Encode([]models.Run{{TaskID: "t1", Kept: 2}})
		default:
			w.WriteHeader(http.StatusNotImplemented)
			w.Write([]byte(`{"error":"audit trail is disabled"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	decisions, err := c.Decisions("t1", true)
	if err != nil || len(decisions) != 1 || !decisions[0].Excluded {
		t.Fatalf("Unexpected decisions %+v, err %v", decisions, err)
	}
	history, err := c.History("t1")
	if err != nil || len(history) != 1 {
		t.Fatalf("Unexpected history %+v, err %v", history, err)
	}
	runs, err := c.Runs("completed", 5)
	if err != nil || len(runs) != 1 || runs[0].Kept != 2 {
		t.Fatalf("Unexpected runs %+v, err %v", runs, err)
	}
	if gotQueries[0] != "/tasks/t1/decisions?excluded=true" || gotQueries[2] != "/runs?limit=5&status=completed" {
		t.Errorf("Unexpected requests: %v", gotQueries)
	}

	_, err = c.History("t2")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotImplemented {
		t.Errorf("Expected 501 APIError, got %v", err)
	}
}

func TestClient_CheckHealthUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(controlplane.HealthResponse{OK: false, Audit: "error: closed"})
	}))
	defer srv.Close()

	health, err := NewClient(srv.URL).CheckHealth()
	if err == nil {
		t.Fatal("Expected an error for 503")
	}
	if health == nil || health.Audit != "error: closed" {
		t.Errorf("Expected payload alongside error, got %+v", health)
	}
}

type fakeSource struct {
	views []*controlplane.StatusView
	err   error
	calls int
}

func (f *fakeSource) Status(string) (*controlplane.StatusView, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	v := f.views[0]
	if len(f.views) > 1 {
		f.views = f.views[1:]
	}
	return v, nil
}

func (f *fakeSource) ListTasks(string) ([]controlplane.TaskSummary, error) {
	return []controlplane.TaskSummary{{ID: "t1", Status: models.TaskStatusCompleted, Progress: 100}}, nil
}

func (f *fakeSource) GetWorkers() (*WorkersStats, error) {
	return &WorkersStats{GlobalMax: 10}, nil
}

// drive feeds one message to the model.
func drive(m tea.Model, msg tea.Msg) (tea.Model, tea.Cmd) {
	return m.Update(msg)
}

func TestWatch_FollowsUntilTerminal(t *testing.T) {
	src := &fakeSource{views: []*controlplane.StatusView{
		{ID: "t1", Status: models.TaskStatusProcessing, Progress: 50, Message: "AI Screening: 2/4"},
		{ID: "t1", Status: models.TaskStatusCompleted, Progress: 100, Message: "Completed!",
			Stats: &models.ScreeningStats{Total: 4, Kept: 3, Excluded: 1}},
	}}
	m := NewWatch(src, "t1", 0)

	msg := m.poll()()
	_, cmd := drive(m, msg)
	if m.done {
		t.Fatal("Watch ended on a running task")
	}
	if cmd == nil {
		t.Fatal("Expected a tick command")
	}
	if !strings.Contains(m.View(), "AI Screening: 2/4") {
		t.Errorf("Expected message in view:\n%s", m.View())
	}

	msg = m.poll()()
	drive(m, msg)
	if !m.done {
		t.Fatal("Expected watch to end on completion")
	}
	if m.Status().Status != models.TaskStatusCompleted {
		t.Errorf("Unexpected final status %s", m.Status().Status)
	}
	view := m.View()
	if !strings.Contains(view, "Kept") || !strings.Contains(view, "Completed!") {
		t.Errorf("Expected stats in final view:\n%s", view)
	}
}

func TestWatch_StopsOnNotFound(t *testing.T) {
	src := &fakeSource{err: &APIError{StatusCode: http.StatusNotFound, Message: "Task not found"}}
	m := NewWatch(src, "missing", 0)

	drive(m, m.poll()())
	if !m.done || !IsNotFound(m.Err()) {
		t.Errorf("Expected watch to end with not found, got done=%v err=%v", m.done, m.Err())
	}
}

func TestWatch_ToleratesTransientErrors(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	m := NewWatch(src, "t1", 0)

	for i := 1; i < maxPollFailures; i++ {
		drive(m, m.poll()())
		if m.done {
			t.Fatalf("Watch ended after %d failures", i)
		}
	}
	drive(m, m.poll()())
	if !m.done {
		t.Error("Expected watch to give up")
	}
}

func TestDashboard_LoadsAndShowsDetail(t *testing.T) {
	src := &fakeSource{views: []*controlplane.StatusView{
		{ID: "t1", Status: models.TaskStatusCompleted, Progress: 100, Stats: &models.ScreeningStats{Kept: 2}},
	}}
	a := New(src)

	drive(a, a.fetchTasks()())
	if len(a.tasks) != 1 || !a.online {
		t.Fatalf("Expected one task loaded, got %+v", a.tasks)
	}
	if !strings.Contains(a.View(), "t1") {
		t.Errorf("Expected task id in list view:\n%s", a.View())
	}

	_, cmd := drive(a, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil || !a.showDetail {
		t.Fatal("Expected enter to open the detail view")
	}
	drive(a, cmd())
	if a.detail == nil || !strings.Contains(a.View(), "Kept") {
		t.Errorf("Expected stats in detail view:\n%s", a.View())
	}

	drive(a, tea.KeyMsg{Type: tea.KeyEsc})
	if a.showDetail {
		t.Error("Expected esc to return to the list")
	}
}
