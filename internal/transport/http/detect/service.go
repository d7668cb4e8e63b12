package detect

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"denticheck-server/internal/domain/detection"
	"denticheck-server/internal/domain/eventbus"
	"denticheck-server/internal/domain/image"
	apperrors "denticheck-server/internal/platform/errors"
	"denticheck-server/internal/platform/logging"
	httptransport "denticheck-server/internal/transport/http"
)

// Detector is satisfied by *detection.Service.
type Detector interface {
	DetectReference(ctx context.Context, requestID, storageKey, imageURL string) (*detection.Outcome, error)
	DetectUpload(ctx context.Context, requestID string, data []byte, filename string) (*detection.Outcome, error)
}

// QualityChecker is satisfied by *image.QualityGate.
type QualityChecker interface {
	Check(data []byte) image.QualityResult
}

// ReferenceSource fetches referenced images for the quality check without
// validating them. Satisfied by *acquire.Acquirer.
type ReferenceSource interface {
	Fetch(ctx context.Context, storageKey, imageURL string) ([]byte, error)
}

// ReferenceRequest selects a stored image by key or explicit URL.
type ReferenceRequest struct {
	StorageKey string `json:"storage_key" example:"uploads/2026/10/a1.jpg"`
	ImageURL   string `json:"image_url,omitempty" example:"https://cdn.example.com/a1.jpg"`
}

// QualityResponse is the quality gate verdict.
type QualityResponse struct {
	RequestID string `json:"request_id"`
	image.QualityResult
}

type Options struct {
	Detector      Detector
	Quality       QualityChecker
	Source        ReferenceSource
	MaxUploadSize int64
	Publisher     eventbus.Publisher
	Logger        *logging.Logger
}

// Service exposes detection and quality endpoints.
type Service struct {
	detector  Detector
	quality   QualityChecker
	source    ReferenceSource
	maxUpload int64
	publisher eventbus.Publisher
	logger    *logging.Logger
}

func NewService(opts Options) (*Service, error) {
	if opts.Detector == nil {
		return nil, apperrors.New(apperrors.KindConfig, "detect.new", "detector is required")
	}
	if opts.Quality == nil || opts.Source == nil {
		return nil, apperrors.New(apperrors.KindConfig, "detect.new", "quality gate and image source are required")
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 10 << 20
	}
	if opts.Publisher == nil {
		opts.Publisher = eventbus.Discard{}
	}
	return &Service{
		detector:  opts.Detector,
		quality:   opts.Quality,
		source:    opts.Source,
		maxUpload: opts.MaxUploadSize,
		publisher: opts.Publisher,
		logger:    opts.Logger,
	}, nil
}

func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	v1 := router.Group("/v1")
	v1.POST("/detect", s.handleDetect)
	v1.POST("/detect/upload", s.handleDetectUpload)
	v1.POST("/quality", s.handleQuality)

	s.logger.InfoTag("HTTP", "detection routes registered")
	return nil
}

// handleDetect runs detection on a stored image.
// @Summary Detect findings in a stored image
// @Description Fetches the image by storage key (or explicit URL) and returns normalized detections with a per-label summary.
// @Tags Detection
// @Accept json
// @Produce json
// @Param request body ReferenceRequest true "Image reference"
// @Success 200 {object} detection.Outcome
// @Failure 400 {object} httptransport.APIResponse
// @Failure 502 {object} httptransport.APIResponse
// @Failure 503 {object} httptransport.APIResponse
// @Failure 504 {object} httptransport.APIResponse
// @Router /v1/detect [post]
func (s *Service) handleDetect(c *gin.Context) {
	var req ReferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondAppError(c, apperrors.Wrap(apperrors.KindInvalidInput, "detect.bind", "invalid JSON body", err))
		return
	}
	outcome, err := s.detector.DetectReference(c.Request.Context(), httptransport.RequestID(c), req.StorageKey, req.ImageURL)
	if err != nil {
		httptransport.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// handleDetectUpload runs detection on an uploaded image.
// @Summary Detect findings in an uploaded image
// @Tags Detection
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Image file"
// @Success 200 {object} detection.Outcome
// @Failure 400 {object} httptransport.APIResponse
// @Failure 503 {object} httptransport.APIResponse
// @Router /v1/detect/upload [post]
func (s *Service) handleDetectUpload(c *gin.Context) {
	data, filename, err := s.readUpload(c)
	if err != nil {
		httptransport.RespondAppError(c, err)
		return
	}
	outcome, err := s.detector.DetectUpload(c.Request.Context(), httptransport.RequestID(c), data, filename)
	if err != nil {
		httptransport.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// handleQuality scores image quality before detection.
// @Summary Check image quality
// @Description Accepts a multipart "file" or a JSON image reference. Unusable images return pass=false with reasons, not an error.
// @Tags Detection
// @Accept multipart/form-data
// @Accept json
// @Produce json
// @Param file formData file false "Image file"
// @Success 200 {object} QualityResponse
// @Failure 400 {object} httptransport.APIResponse
// @Failure 502 {object} httptransport.APIResponse
// @Router /v1/quality [post]
func (s *Service) handleQuality(c *gin.Context) {
	start := time.Now()
	requestID := httptransport.RequestID(c)
	source := "upload"

	var data []byte
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		raw, _, err := s.readUpload(c)
		if err != nil && err != errEmptyUpload {
			httptransport.RespondAppError(c, err)
			return
		}
		data = raw
	} else {
		source = "reference"
		var req ReferenceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httptransport.RespondAppError(c, apperrors.Wrap(apperrors.KindInvalidInput, "quality.bind", "invalid JSON body", err))
			return
		}
		raw, err := s.source.Fetch(c.Request.Context(), req.StorageKey, req.ImageURL)
		if err != nil {
			s.publishQuality(requestID, source, nil, err, time.Since(start))
			httptransport.RespondAppError(c, err)
			return
		}
		data = raw
	}

	result := s.quality.Check(data)
	s.publishQuality(requestID, source, &result, nil, time.Since(start))
	s.logger.InfoTag("QUALITY", "request %s: pass=%t score=%.2f reasons=%v", requestID, result.Pass, result.Score, result.Reasons)
	c.JSON(http.StatusOK, QualityResponse{RequestID: requestID, QualityResult: result})
}

var errEmptyUpload = apperrors.New(apperrors.KindInvalidInput, "detect.upload", "uploaded file is empty")

// readUpload reads the multipart "file" field, bounded by the upload limit.
// An empty file is returned as errEmptyUpload with no data.
func (s *Service) readUpload(c *gin.Context) ([]byte, string, error) {
	const op = "detect.upload"
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload+(1<<20))
	header, err := c.FormFile("file")
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.KindInvalidInput, op, "multipart field \"file\" is required", err)
	}
	if header.Size > s.maxUpload {
		return nil, "", apperrors.New(apperrors.KindInvalidInput, op, fmt.Sprintf("file exceeds maximum size of %d bytes", s.maxUpload))
	}
	f, err := header.Open()
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.KindInvalidInput, op, "open upload", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, s.maxUpload+1))
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.KindInvalidInput, op, "read upload", err)
	}
	if len(data) == 0 {
		return nil, header.Filename, errEmptyUpload
	}
	return data, header.Filename, nil
}

func (s *Service) publishQuality(requestID, source string, result *image.QualityResult, err error, elapsed time.Duration) {
	ev := eventbus.RunEvent{
		RequestID: requestID,
		Operation: eventbus.OperationQuality,
		Source:    source,
		Status:    eventbus.StatusCompleted,
		Duration:  elapsed,
		At:        time.Now(),
	}
	if err != nil {
		ev.Status = eventbus.StatusFailed
		ev.ErrorKind = string(apperrors.KindOf(err))
	} else if result != nil && !result.Pass {
		ev.Labels = make(map[string]int, len(result.Reasons))
		for _, r := range result.Reasons {
			ev.Labels[r] = 1
		}
	}
	s.publisher.PublishAsync(eventbus.TopicRun, ev)
}
