// Package mcptransport exposes detection and report generation as MCP tools
// over SSE.
package mcptransport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"denticheck-server/internal/domain/detection"
	domainreport "denticheck-server/internal/domain/report"
	apperrors "denticheck-server/internal/platform/errors"
	"denticheck-server/internal/platform/logging"
)

const (
	ToolDetect = "detect_dental_image"
	ToolReport = "generate_dental_report"
)

// Detector is satisfied by *detection.Service.
type Detector interface {
	DetectReference(ctx context.Context, requestID, storageKey, imageURL string) (*detection.Outcome, error)
}

// ReportGenerator is satisfied by *report.Service.
type ReportGenerator interface {
	Generate(ctx context.Context, req domainreport.Request) (*domainreport.Outcome, error)
}

type Options struct {
	Name     string
	Version  string
	BaseURL  string
	Detector Detector
	Reports  ReportGenerator
	Logger   *logging.Logger
}

// Server wraps an MCP server and its SSE transport.
type Server struct {
	mcp      *server.MCPServer
	sse      *server.SSEServer
	detector Detector
	reports  ReportGenerator
	logger   *logging.Logger
}

func New(opts Options) (*Server, error) {
	if opts.Detector == nil || opts.Reports == nil {
		return nil, apperrors.New(apperrors.KindConfig, "mcp.new", "detector and report generator are required")
	}
	if opts.Name == "" {
		opts.Name = "denticheck"
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}

	s := &Server{
		detector: opts.Detector,
		reports:  opts.Reports,
		logger:   opts.Logger,
	}
	s.mcp = server.NewMCPServer(opts.Name, opts.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithToolHandlerMiddleware(s.logCalls),
		server.WithInstructions("Dental image screening: detect findings in a stored image, then generate a patient-facing report from the findings."),
	)
	s.registerTools()

	var sseOpts []server.SSEOption
	if opts.BaseURL != "" {
		sseOpts = append(sseOpts, server.WithBaseURL(strings.TrimRight(opts.BaseURL, "/")))
	}
	s.sse = server.NewSSEServer(s.mcp, sseOpts...)
	return s, nil
}

// MCPServer returns the underlying server, mainly for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool(ToolDetect,
		mcp.WithDescription("Detect caries, tartar and oral cancer suspicion in a stored dental image. Returns normalized boxes and a per-label summary."),
		mcp.WithString("storage_key", mcp.Description("Object storage key of the image")),
		mcp.WithString("image_url", mcp.Description("Explicit image URL; overrides storage_key")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	), s.handleDetect)

	s.mcp.AddTool(mcp.NewTool(ToolReport,
		mcp.WithDescription("Generate a screening report from detection findings, optional classifier results and questionnaire context."),
		mcp.WithObject("findings", mcp.Required(), mcp.Description("Per-label findings: {label: {present, count, area_ratio, max_score}}")),
		mcp.WithObject("classifier", mcp.Description("Per-label classifier results: {label: {suspect, prob}}")),
		mcp.WithObject("survey", mcp.Description("Questionnaire answers")),
		mcp.WithObject("history", mcp.Description("Prior screening history")),
		mcp.WithObject("overall", mcp.Description("Rule-based overall assessment")),
		mcp.WithString("language", mcp.Enum(domainreport.LanguageKorean, domainreport.LanguageEnglish)),
		mcp.WithString("disclaimer_version", mcp.Description("Disclaimer text version, e.g. v1.0")),
		mcp.WithDestructiveHintAnnotation(false),
	), s.handleReport)
}

func (s *Server) handleDetect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	storageKey := req.GetString("storage_key", "")
	imageURL := req.GetString("image_url", "")
	outcome, err := s.detector.DetectReference(ctx, uuid.NewString(), storageKey, imageURL)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(outcome)
}

func (s *Server) handleReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in domainreport.Request
	if err := req.BindArguments(&in); err != nil {
		return toolError(apperrors.Wrap(apperrors.KindInvalidInput, "mcp.report", "invalid arguments", err)), nil
	}
	out, err := s.reports.Generate(ctx, in)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(out)
}

func (s *Server) logCalls(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := next(ctx, req)
		failed := err != nil || (res != nil && res.IsError)
		s.logger.InfoTag("MCP", "tool %s finished in %s failed=%t", req.Params.Name, time.Since(start).Round(time.Millisecond), failed)
		return res, err
	}
}

// Start serves SSE on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.InfoTag("MCP", "SSE server listening on %s", addr)
	if err := s.sse.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return apperrors.Wrap(apperrors.KindTransport, "mcp.start", "mcp sse server failed", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.sse.Shutdown(ctx)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	text, err := sonic.MarshalString(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(text), nil
}

// toolError reports failures inside the result so clients see the kind.
func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", apperrors.KindOf(err), apperrors.MessageOf(err)))
}
