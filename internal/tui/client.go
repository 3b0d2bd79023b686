package tui

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fentz26/litscreen/internal/controlplane"
	"github.com/fentz26/litscreen/internal/models"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// UploadTimeout bounds a submission, which carries whole files.
const UploadTimeout = 5 * time.Minute

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client wraps HTTP calls to the litscreen API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client with timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

// SubmitOptions are the form fields of a screening request.
type SubmitOptions struct {
	TitleAbstractKeywords string
	JournalKeywords       string
	APIKey                string
	Criteria              string
	Model                 string
	KeepDuplicates        bool
	Verify                bool
}

// Submit uploads files for screening and returns the task id.
func (c *Client) Submit(paths []string, opts SubmitOptions) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return "", err
		}
		fw, err := mw.CreateFormFile("file", filepath.Base(p))
		if err != nil {
			return "", err
		}
		if _, err := fw.Write(data); err != nil {
			return "", err
		}
	}
	fields := map[string]string{
		"ta_keywords":       opts.TitleAbstractKeywords,
		"journal_keywords":  opts.JournalKeywords,
		"api_key":           opts.APIKey,
		"ai_criteria":       opts.Criteria,
		"model":             opts.Model,
		"remove_duplicates": fmt.Sprint(!opts.KeepDuplicates),
		"verify":            fmt.Sprint(opts.Verify),
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/screen", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	upload := *c.httpClient
	upload.Timeout = UploadTimeout
	resp, err := upload.Do(req)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return "", err
	}
	var result struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", err
	}
	return result.TaskID, nil
}

// Status fetches the state of one task.
func (c *Client) Status(id string) (*controlplane.StatusView, error) {
	var view controlplane.StatusView
	if err := c.getJSON("/status/"+url.PathEscape(id), &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// ListTasks fetches task summaries, optionally filtered by status.
func (c *Client) ListTasks(status string) ([]controlplane.TaskSummary, error) {
	path := "/tasks"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var tasks []controlplane.TaskSummary
	if err := c.getJSON(path, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// WorkersStats mirrors the scheduler statistics served on /workers.
type WorkersStats struct {
	ActiveWorkers int    `json:"active_workers"`
	Queued        int    `json:"queued"`
	Completed     int    `json:"completed"`
	Failed        int    `json:"failed"`
	GlobalMax     int    `json:"global_max"`
	TaskTimeout   string `json:"task_timeout"`
}

// GetWorkers fetches scheduler statistics.
func (c *Client) GetWorkers() (*WorkersStats, error) {
	var stats WorkersStats
	if err := c.getJSON("/workers", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Decisions fetches the per-record verdicts of an audited task.
func (c *Client) Decisions(id string, excludedOnly bool) ([]models.ExclusionDecision, error) {
	path := "/tasks/" + url.PathEscape(id) + "/decisions"
	if excludedOnly {
		path += "?excluded=true"
	}
	var out []models.ExclusionDecision
	if err := c.getJSON(path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// History fetches the decision records of one task.
func (c *Client) History(id string) ([]models.DecisionRecord, error) {
	var out []models.DecisionRecord
	if err := c.getJSON("/tasks/"+url.PathEscape(id)+"/history", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Runs fetches audited runs, newest first.
func (c *Client) Runs(status string, limit int) ([]models.Run, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	path := "/runs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []models.Run
	if err := c.getJSON(path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Download fetches one dataset of a completed task. The returned name comes
// from the server's Content-Disposition header.
func (c *Client) Download(id, dataset, format string) (string, []byte, error) {
	path := "/download/" + url.PathEscape(id) + "/" + url.PathEscape(dataset)
	if format != "" {
		path += "?format=" + url.QueryEscape(format)
	}
	download := *c.httpClient
	download.Timeout = UploadTimeout
	resp, err := download.Get(c.baseURL + path)
	if err != nil {
		return "", nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return "", nil, err
	}
	name := dataset
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return name, data, nil
}

// CheckHealth returns the parsed health payload even on a non-200 answer so
// callers can show why the server is unhealthy.
func (c *Client) CheckHealth() (*controlplane.HealthResponse, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	var health controlplane.HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, fmt.Errorf("failed to parse health response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &health, &APIError{StatusCode: resp.StatusCode, Message: health.Audit}
	}
	return &health, nil
}

func (c *Client) getJSON(path string, out interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// readBody returns the body of a 2xx response or an APIError carrying the
// server's message.
func readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(body))
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return body, nil
}
