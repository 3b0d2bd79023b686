package controlplane

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/litscreen/internal/export"
	"github.com/fentz26/litscreen/internal/ingest"
	"github.com/fentz26/litscreen/internal/screening"
	"github.com/gin-gonic/gin"
)

//go:embed templates/index.html
var templatesFS embed.FS

// DefaultMaxUploadMB bounds one submission when the caller sets no limit.
const DefaultMaxUploadMB = 50

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
	Time    string `json:"time"`
	Audit   string `json:"audit"`
}

// Server provides the HTTP API for litscreen.
type Server struct {
	service   *Service
	addr      string
	maxUpload int64
	model     string
	engine    *gin.Engine
	server    *http.Server
	log       *slog.Logger
}

// NewServer creates a new HTTP server. model is the default shown on the
// upload form.
func NewServer(service *Service, addr string, maxUploadMB int, model string) *Server {
	if maxUploadMB <= 0 {
		maxUploadMB = DefaultMaxUploadMB
	}
	s := &Server{
		service:   service,
		addr:      addr,
		maxUpload: int64(maxUploadMB) << 20,
		model:     model,
		log:       service.log,
	}
	s.engine = s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.MaxMultipartMemory = s.maxUpload
	r.SetHTMLTemplate(template.Must(template.ParseFS(templatesFS, "templates/index.html")))

	r.GET("/", s.handleIndex)
	r.GET("/health", s.handleHealth)
	r.POST("/screen", s.handleScreen)
	r.GET("/status/:id", s.handleStatus)
	r.GET("/download/:id/:dataset", s.handleDownload)
	r.GET("/tasks", s.handleListTasks)
	r.GET("/tasks/:id/decisions", s.handleDecisions)
	r.GET("/tasks/:id/history", s.handleHistory)
	r.GET("/runs", s.handleRuns)
	r.GET("/workers", s.handleWorkers)
	return r
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.engine,
		ReadTimeout: 2 * time.Minute,
		// Large bundles can take a while to stream.
		WriteTimeout: 5 * time.Minute,
	}

	s.log.Info("starting litscreen server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// --- Pages ---

func (s *Server) handleIndex(c *gin.Context) {
	bl := screening.DefaultBlacklists()
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Version":       s.service.Version(),
		"Extensions":    strings.Join(ingest.SupportedExtensions, " "),
		"TitleAbstract": strings.Join(bl.TitleAbstract, "\n"),
		"Journal":       strings.Join(bl.Journal, "\n"),
		"Model":         s.model,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{
		OK:      true,
		Version: s.service.Version(),
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	audit, err := s.service.AuditStatus(c.Request.Context())
	resp.Audit = audit
	if err != nil {
		resp.OK = false
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// --- Task Handlers ---

func (s *Server) handleScreen(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("upload exceeds %d MB", s.maxUpload>>20),
			})
			return
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	uploads, err := readUploads(append(form.File["file"], form.File["file[]"]...))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub := Submission{
		Files:                 uploads,
		TitleAbstractKeywords: c.PostForm("ta_keywords"),
		JournalKeywords:       c.PostForm("journal_keywords"),
		APIKey:                c.PostForm("api_key"),
		Criteria:              c.PostForm("ai_criteria"),
		Model:                 c.PostForm("model"),
		RemoveDuplicates:      formBool(c.PostForm("remove_duplicates")),
		Verify:                formBool(c.PostForm("verify")),
	}

	id, err := s.service.Submit(c.Request.Context(), sub)
	if err != nil {
		s.writeSubmitError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_id": id})
}

func (s *Server) writeSubmitError(c *gin.Context, err error) {
	var verr *ValidationError
	var perr *ingest.ParseError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Reason})
	case errors.As(err, &perr):
		s.log.Warn("upload rejected", "file", perr.File, "err", perr.Err)
		c.JSON(http.StatusBadRequest, gin.H{"error": perr.Error()})
	default:
		s.log.Error("submit failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func readUploads(headers []*multipart.FileHeader) ([]ingest.Upload, error) {
	uploads := make([]ingest.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		uploads = append(uploads, ingest.Upload{Name: fh.Filename, Data: data})
	}
	return uploads, nil
}

// formBool reads an HTML checkbox or a plain boolean. Empty means unset.
func formBool(v string) *bool {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return nil
	}
	b := v == "on" || v == "yes"
	if parsed, err := strconv.ParseBool(v); err == nil {
		b = parsed
	}
	return &b
}

func (s *Server) handleStatus(c *gin.Context) {
	view, err := s.service.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.service.ListTasks(c.Request.Context(), c.Query("status"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) handleWorkers(c *gin.Context) {
	c.JSON(http.StatusOK, s.service.Workers())
}

// handleDownload serves GET /download/:id/:dataset?format=. Errors are plain
// text so browsers show them directly.
func (s *Server) handleDownload(c *gin.Context) {
	ds, err := export.ParseDataset(c.Param("dataset"))
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid file type")
		return
	}
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		c.String(http.StatusBadRequest, "%s", err.Error())
		return
	}

	file, err := s.service.Download(c.Request.Context(), c.Param("id"), ds, format)
	switch {
	case errors.Is(err, ErrTaskNotFound), errors.Is(err, ErrResultNotReady):
		c.String(http.StatusNotFound, "%s", err.Error())
		return
	case err != nil:
		s.log.Error("download failed", "task_id", c.Param("id"), "err", err)
		c.String(http.StatusInternalServerError, "Server Error: %s", err.Error())
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// --- Audit Handlers ---

func (s *Server) handleDecisions(c *gin.Context) {
	excludedOnly := c.Query("excluded") == "true"
	decisions, err := s.service.Decisions(c.Param("id"), excludedOnly)
	if err != nil {
		s.writeLookupError(c, err)
		return
	}
	if decisions == nil {
		c.JSON(http.StatusOK, []struct{}{})
		return
	}
	c.JSON(http.StatusOK, decisions)
}

func (s *Server) handleHistory(c *gin.Context) {
	records, err := s.service.History(c.Param("id"))
	if err != nil {
		s.writeLookupError(c, err)
		return
	}
	if records == nil {
		c.JSON(http.StatusOK, []struct{}{})
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) handleRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.service.Runs(c.Query("status"), limit)
	if err != nil {
		s.writeLookupError(c, err)
		return
	}
	if runs == nil {
		c.JSON(http.StatusOK, []struct{}{})
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) writeLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrAuditDisabled):
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
