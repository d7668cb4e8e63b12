package ops

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"denticheck-server/internal/domain/journal"
	apperrors "denticheck-server/internal/platform/errors"
	"denticheck-server/internal/platform/logging"
	httptransport "denticheck-server/internal/transport/http"
)

// DetectorInfo reports the active model. Satisfied by *detection.Detector.
type DetectorInfo interface {
	BackendName() string
	ClassTableVersion() string
}

// HealthData is the /api/health payload.
type HealthData struct {
	Status            string  `json:"status"`
	Uptime            string  `json:"uptime"`
	DetectorBackend   string  `json:"detector_backend"`
	ClassTableVersion string  `json:"class_table_version"`
	Goroutines        int     `json:"goroutines"`
	ProcessRSSBytes   uint64  `json:"process_rss_bytes,omitempty"`
	HostMemoryUsedPct float64 `json:"host_memory_used_pct,omitempty"`
	HostCPUUsedPct    float64 `json:"host_cpu_used_pct,omitempty"`
}

// Service exposes health and run journal endpoints.
type Service struct {
	detector DetectorInfo
	journal  journal.Store
	started  time.Time
	logger   *logging.Logger
}

func NewService(detector DetectorInfo, store journal.Store, logger *logging.Logger) (*Service, error) {
	if detector == nil || store == nil {
		return nil, apperrors.New(apperrors.KindConfig, "ops.new", "detector and journal store are required")
	}
	return &Service{detector: detector, journal: store, started: time.Now(), logger: logger}, nil
}

func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.GET("/health", s.handleHealth)
	router.GET("/v1/runs", s.handleRuns)
	s.logger.InfoTag("HTTP", "ops routes registered")
	return nil
}

// handleHealth reports liveness plus host and process metrics.
// @Summary Service health
// @Tags Ops
// @Produce json
// @Success 200 {object} httptransport.APIResponse{data=HealthData}
// @Router /health [get]
func (s *Service) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	data := HealthData{
		Status:            "ok",
		Uptime:            time.Since(s.started).Round(time.Second).String(),
		DetectorBackend:   s.detector.BackendName(),
		ClassTableVersion: s.detector.ClassTableVersion(),
		Goroutines:        runtime.NumGoroutine(),
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		data.HostMemoryUsedPct = vm.UsedPercent
	}
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		data.HostCPUUsedPct = pct[0]
	}
	if p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if info, err := p.MemoryInfoWithContext(ctx); err == nil {
			data.ProcessRSSBytes = info.RSS
		}
	}
	httptransport.RespondSuccess(c, http.StatusOK, data, "")
}

// handleRuns lists journaled requests, newest first.
// @Summary Recent runs
// @Tags Ops
// @Produce json
// @Param limit query int false "Maximum records (default 50)"
// @Success 200 {object} httptransport.APIResponse{data=[]journal.Record}
// @Failure 400 {object} httptransport.APIResponse
// @Router /v1/runs [get]
func (s *Service) handleRuns(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httptransport.RespondAppError(c, apperrors.New(apperrors.KindInvalidInput, "ops.runs", "limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	records, err := s.journal.List(c.Request.Context(), limit)
	if err != nil {
		httptransport.RespondAppError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, records, "")
}
