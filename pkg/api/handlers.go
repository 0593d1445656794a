// Package api serves the scan REST surface and the WebSocket subscriber
// endpoint. Handlers return classified errors; the server's error handler
// renders them into the error envelope.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/sidequest-dev/foreman/lib/eventbus"
	"github.com/sidequest-dev/foreman/pkg/engine"
	"github.com/sidequest-dev/foreman/pkg/events"
	"github.com/sidequest-dev/foreman/pkg/faults"
	"github.com/sidequest-dev/foreman/pkg/gitinfo"
	"github.com/sidequest-dev/foreman/pkg/reports"
	"github.com/sidequest-dev/foreman/pkg/store/resultcache"
)

var log = logging.Logger("api")

// ScanPipelineID is the pipeline every scan submission targets.
const ScanPipelineID = "duplicate-detection"

// Result formats accepted by the results endpoint.
const (
	FormatSummary = "summary"
	FormatFull    = "full"
)

// DefaultRecentLimit applies when the recent listing names no limit.
const DefaultRecentLimit = 20

// Handler exposes the orchestrator over HTTP.
type Handler struct {
	engine  *engine.Engine
	reports *reports.Coordinator
	cache   *resultcache.Cache
	bus     *eventbus.Bus[events.Message]
}

// NewHandler wires the handler to the running core components.
func NewHandler(eng *engine.Engine, coord *reports.Coordinator, cache *resultcache.Cache, bus *eventbus.Bus[events.Message]) *Handler {
	return &Handler{engine: eng, reports: coord, cache: cache, bus: bus}
}

// RegisterRoutes mounts the scan API, the report artifacts and the
// WebSocket endpoint on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	scans := e.Group("/api/scans")
	scans.POST("/start", h.StartScan)
	scans.POST("/start-multi", h.StartMultiScan)
	scans.GET("/recent", h.RecentScans)
	scans.GET("/stats", h.ScanStats)
	scans.GET("/:job_id/status", h.ScanStatus)
	scans.GET("/:job_id/results", h.ScanResults)
	scans.DELETE("/:job_id", h.CancelScan)

	rg := e.Group("/api/reports")
	rg.GET("", h.ListReports)
	rg.DELETE("", h.DeleteAllReports)
	rg.GET("/:filename", h.DownloadReport)
	rg.DELETE("/:filename", h.DeleteReport)

	e.GET("/ws", h.ServeWS)
}

// StartScanRequest asks for a scan of a single repository. Options pass
// through to the pipeline executor untouched.
type StartScanRequest struct {
	RepositoryPath string          `json:"repositoryPath"`
	Options        json.RawMessage `json:"options,omitempty"`
}

// StartScanResponse acknowledges an accepted submission and tells the
// caller where to poll.
type StartScanResponse struct {
	Success    bool   `json:"success"`
	JobID      string `json:"job_id"`
	StatusURL  string `json:"status_url"`
	ResultsURL string `json:"results_url"`
	Timestamp  string `json:"timestamp"`
}

// StartScan submits a single-repository scan and answers 202 with the
// polling URLs. Repository state is captured best effort and attached to
// the job.
func (h *Handler) StartScan(ctx echo.Context) error {
	var req StartScanRequest
	if err := ctx.Bind(&req); err != nil {
		return faults.NewValidationError("request body must be a JSON object", "body")
	}
	if req.RepositoryPath == "" {
		return faults.NewValidationError("repositoryPath is required", "repositoryPath")
	}

	reqCtx := ctx.Request().Context()
	input, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding scan input: %w", err)
	}

	var opts []engine.SubmitOption
	if gc := gitinfo.Capture(reqCtx, req.RepositoryPath); gc != nil {
		opts = append(opts, engine.WithGitContext(gc.Raw()))
	}

	job, err := h.engine.Submit(reqCtx, ScanPipelineID, input, opts...)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusAccepted, StartScanResponse{
		Success:    true,
		JobID:      job.ID,
		StatusURL:  fmt.Sprintf("/api/scans/%s/status", job.ID),
		ResultsURL: fmt.Sprintf("/api/scans/%s/results", job.ID),
		Timestamp:  timestamp(),
	})
}

// StartMultiScanRequest asks for one scan spanning several repositories.
type StartMultiScanRequest struct {
	RepositoryPaths []string        `json:"repositoryPaths"`
	GroupName       string          `json:"groupName,omitempty"`
	Options         json.RawMessage `json:"options,omitempty"`
}

// StartMultiScanResponse acknowledges a cross-project submission.
type StartMultiScanResponse struct {
	Success         bool   `json:"success"`
	JobID           string `json:"job_id"`
	RepositoryCount int    `json:"repository_count"`
	Timestamp       string `json:"timestamp"`
}

// StartMultiScan submits a cross-project scan over two or more
// repositories.
func (h *Handler) StartMultiScan(ctx echo.Context) error {
	var req StartMultiScanRequest
	if err := ctx.Bind(&req); err != nil {
		return faults.NewValidationError("request body must be a JSON object", "body")
	}
	if len(req.RepositoryPaths) < 2 {
		return faults.NewValidationError("at least two repositoryPaths are required", "repositoryPaths")
	}
	if lo.Contains(req.RepositoryPaths, "") {
		return faults.NewValidationError("repositoryPaths entries must be non-empty", "repositoryPaths")
	}

	input, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding scan input: %w", err)
	}
	job, err := h.engine.Submit(ctx.Request().Context(), ScanPipelineID, input)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusAccepted, StartMultiScanResponse{
		Success:         true,
		JobID:           job.ID,
		RepositoryCount: len(req.RepositoryPaths),
		Timestamp:       timestamp(),
	})
}

// ScanStatusResponse reports one job's place in its lifecycle alongside
// its pipeline's queue occupancy.
type ScanStatusResponse struct {
	JobID     string        `json:"job_id"`
	Status    engine.Status `json:"status"`
	Queued    int           `json:"queued"`
	Active    int           `json:"active"`
	Completed uint64        `json:"completed"`
	Timestamp string        `json:"timestamp"`
}

// ScanStatus answers the polling endpoint named by status_url.
func (h *Handler) ScanStatus(ctx echo.Context) error {
	jobID := ctx.Param("job_id")
	job, ok := h.engine.Get(jobID)
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, faults.ErrNotFound)
	}

	var ws engine.WorkerStats
	if w, ok := h.engine.Registry().Peek(job.PipelineID); ok {
		ws = w.Stats()
	}
	return ctx.JSON(http.StatusOK, ScanStatusResponse{
		JobID:     job.ID,
		Status:    job.Status,
		Queued:    ws.Queued,
		Active:    ws.Active,
		Completed: ws.Completed,
		Timestamp: timestamp(),
	})
}

// ScanResultsDoc is the rendered results payload. Metrics appear once the
// job completed; detailed_metrics carries the raw result document in full
// format; a failed job carries its classified error instead.
type ScanResultsDoc struct {
	JobID           string          `json:"job_id"`
	Status          engine.Status   `json:"status"`
	DurationSeconds *float64        `json:"duration_seconds,omitempty"`
	Metrics         map[string]any  `json:"metrics,omitempty"`
	DetailedMetrics json.RawMessage `json:"detailed_metrics,omitempty"`
	Error           *faults.Detail  `json:"error,omitempty"`
	Timestamp       string          `json:"timestamp"`
}

// ScanResults serves a job's rendered results, through the LRU cache once
// the job is terminal. Non-terminal jobs answer with their current status
// and no metrics.
func (h *Handler) ScanResults(ctx echo.Context) error {
	jobID := ctx.Param("job_id")
	format := ctx.QueryParam("format")
	if format == "" {
		format = FormatSummary
	}
	if format != FormatSummary && format != FormatFull {
		return faults.NewValidationError("format must be summary or full", "format")
	}

	key := resultcache.Key{JobID: jobID, Format: format}
	if payload, ok := h.cache.Get(key); ok {
		return ctx.JSONBlob(http.StatusOK, payload)
	}

	job, ok := h.engine.Get(jobID)
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, faults.ErrNotFound)
	}

	doc := ScanResultsDoc{
		JobID:     job.ID,
		Status:    job.Status,
		Timestamp: timestamp(),
	}
	if d := job.Duration(); d != nil {
		secs := d.Seconds()
		doc.DurationSeconds = &secs
	}
	switch job.Status {
	case engine.StatusCompleted:
		doc.Metrics = engine.ScanMetrics(job.Result)
		if format == FormatFull {
			doc.DetailedMetrics = job.Result
		}
	case engine.StatusFailed:
		doc.Error = job.Error
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding scan results: %w", err)
	}
	if job.Status.Terminal() {
		h.cache.Put(key, payload)
	}
	return ctx.JSONBlob(http.StatusOK, payload)
}

// ScanSummary is the compact listing entry for one scan job.
type ScanSummary struct {
	JobID           string         `json:"job_id"`
	PipelineID      string         `json:"pipeline_id"`
	Status          engine.Status  `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	DurationSeconds *float64       `json:"duration_seconds,omitempty"`
	Metrics         map[string]any `json:"metrics,omitempty"`
	Error           *faults.Detail `json:"error,omitempty"`
}

// RecentScansResponse lists the newest submissions first.
type RecentScansResponse struct {
	Scans     []ScanSummary `json:"scans"`
	Total     int           `json:"total"`
	Timestamp string        `json:"timestamp"`
}

// RecentScans lists recent submissions, newest first. limit <= 0 or
// absent falls back to DefaultRecentLimit.
func (h *Handler) RecentScans(ctx echo.Context) error {
	limit := DefaultRecentLimit
	if raw := ctx.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return faults.NewValidationError("limit must be a non-negative integer", "limit")
		}
		if n > 0 {
			limit = n
		}
	}

	scans := lo.Map(h.engine.Recent(limit), func(job *engine.Job, _ int) ScanSummary {
		return summarize(job)
	})
	return ctx.JSON(http.StatusOK, RecentScansResponse{
		Scans:     scans,
		Total:     h.engine.Stats().TrackedJobs,
		Timestamp: timestamp(),
	})
}

func summarize(job *engine.Job) ScanSummary {
	s := ScanSummary{
		JobID:       job.ID,
		PipelineID:  job.PipelineID,
		Status:      job.Status,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
		Error:       job.Error,
	}
	if d := job.Duration(); d != nil {
		secs := d.Seconds()
		s.DurationSeconds = &secs
	}
	if job.Status == engine.StatusCompleted {
		s.Metrics = engine.ScanMetrics(job.Result)
	}
	return s
}

// ScanCounters are the engine's lifetime job counters.
type ScanCounters struct {
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Cancelled uint64 `json:"cancelled"`
	Retries   uint64 `json:"retries"`
}

// QueueStats describes current queue occupancy across pipelines.
type QueueStats struct {
	Queued         int                           `json:"queued"`
	Active         int                           `json:"active"`
	PendingRetries int                           `json:"pending_retries"`
	TrackedJobs    int                           `json:"tracked_jobs"`
	Pipelines      map[string]engine.WorkerStats `json:"pipelines"`
}

// ScanStatsResponse aggregates engine and cache statistics.
type ScanStatsResponse struct {
	ScanMetrics ScanCounters      `json:"scan_metrics"`
	QueueStats  QueueStats        `json:"queue_stats"`
	CacheStats  resultcache.Stats `json:"cache_stats"`
	Timestamp   string            `json:"timestamp"`
}

// ScanStats reports lifetime counters, queue occupancy and result cache
// effectiveness.
func (h *Handler) ScanStats(ctx echo.Context) error {
	stats := h.engine.Stats()
	return ctx.JSON(http.StatusOK, ScanStatsResponse{
		ScanMetrics: ScanCounters{
			Submitted: stats.Submitted,
			Completed: stats.Completed,
			Failed:    stats.Failed,
			Cancelled: stats.Cancelled,
			Retries:   stats.Retries,
		},
		QueueStats: QueueStats{
			Queued:         stats.Queued,
			Active:         stats.Active,
			PendingRetries: stats.PendingRetries,
			TrackedJobs:    stats.TrackedJobs,
			Pipelines:      stats.Pipelines,
		},
		CacheStats: h.cache.Stats(),
		Timestamp:  timestamp(),
	})
}

// CancelScanResponse acknowledges a cancellation.
type CancelScanResponse struct {
	Success   bool   `json:"success"`
	JobID     string `json:"job_id"`
	Timestamp string `json:"timestamp"`
}

// CancelScan cancels a queued or running job, or abandons its pending
// retry. Unknown jobs answer 404; jobs already settled answer 400.
func (h *Handler) CancelScan(ctx echo.Context) error {
	jobID := ctx.Param("job_id")
	if h.engine.Cancel(jobID) {
		return ctx.JSON(http.StatusOK, CancelScanResponse{
			Success:   true,
			JobID:     jobID,
			Timestamp: timestamp(),
		})
	}
	if _, ok := h.engine.Get(jobID); !ok {
		return fmt.Errorf("job %s: %w", jobID, faults.ErrNotFound)
	}
	return echo.NewHTTPError(http.StatusBadRequest, "job already in a terminal state")
}

// ReportListResponse lists report artifacts, newest first.
type ReportListResponse struct {
	Reports   []reports.ArtifactInfo `json:"reports"`
	Total     int                    `json:"total"`
	Timestamp string                 `json:"timestamp"`
}

// ListReports lists the report artifacts on disk.
func (h *Handler) ListReports(ctx echo.Context) error {
	infos, err := h.reports.List()
	if err != nil {
		return err
	}
	if infos == nil {
		infos = []reports.ArtifactInfo{}
	}
	return ctx.JSON(http.StatusOK, ReportListResponse{
		Reports:   infos,
		Total:     len(infos),
		Timestamp: timestamp(),
	})
}

// DownloadReport streams one artifact. The coordinator rejects any name
// that could escape the report directory.
func (h *Handler) DownloadReport(ctx echo.Context) error {
	path, err := h.reports.Resolve(ctx.Param("filename"))
	if err != nil {
		return err
	}
	return ctx.File(path)
}

// DeleteReportResponse acknowledges an artifact deletion.
type DeleteReportResponse struct {
	Success   bool   `json:"success"`
	Filename  string `json:"filename,omitempty"`
	Deleted   int    `json:"deleted,omitempty"`
	Timestamp string `json:"timestamp"`
}

// DeleteReport removes one artifact by name.
func (h *Handler) DeleteReport(ctx echo.Context) error {
	name := ctx.Param("filename")
	if err := h.reports.Remove(name); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, DeleteReportResponse{
		Success:   true,
		Filename:  name,
		Timestamp: timestamp(),
	})
}

// DeleteAllReports removes every artifact in the report directory.
func (h *Handler) DeleteAllReports(ctx echo.Context) error {
	infos, err := h.reports.List()
	if err != nil {
		return err
	}
	deleted := 0
	for _, info := range infos {
		if err := h.reports.Remove(info.Name); err != nil {
			log.Warnw("failed to delete report", "name", info.Name, "error", err)
			continue
		}
		deleted++
	}
	return ctx.JSON(http.StatusOK, DeleteReportResponse{
		Success:   true,
		Deleted:   deleted,
		Timestamp: timestamp(),
	})
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
