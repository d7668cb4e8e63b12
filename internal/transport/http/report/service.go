package report

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	domainreport "denticheck-server/internal/domain/report"
	apperrors "denticheck-server/internal/platform/errors"
	"denticheck-server/internal/platform/logging"
	httptransport "denticheck-server/internal/transport/http"
)

// Generator is satisfied by *report.Service.
type Generator interface {
	Generate(ctx context.Context, req domainreport.Request) (*domainreport.Outcome, error)
}

// Service exposes report generation.
type Service struct {
	generator Generator
	logger    *logging.Logger
}

func NewService(generator Generator, logger *logging.Logger) (*Service, error) {
	if generator == nil {
		return nil, apperrors.New(apperrors.KindConfig, "report.http.new", "report generator is required")
	}
	return &Service{generator: generator, logger: logger}, nil
}

func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.POST("/v1/report/generate", s.handleGenerate)
	s.logger.InfoTag("HTTP", "report routes registered")
	return nil
}

// handleGenerate composes retrieval context and synthesizes a report.
// @Summary Generate a screening report
// @Description Failures are always returned as errors; a report is never replaced by an empty one.
// @Tags Report
// @Accept json
// @Produce json
// @Param request body domainreport.Request true "Findings and context"
// @Success 200 {object} domainreport.Outcome
// @Failure 400 {object} httptransport.APIResponse
// @Failure 502 {object} httptransport.APIResponse
// @Router /v1/report/generate [post]
func (s *Service) handleGenerate(c *gin.Context) {
	var req domainreport.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondAppError(c, apperrors.Wrap(apperrors.KindInvalidInput, "report.bind", "invalid JSON body", err))
		return
	}
	out, err := s.generator.Generate(c.Request.Context(), req)
	if err != nil {
		httptransport.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
