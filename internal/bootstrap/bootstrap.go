package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"denticheck-server/internal/domain/acquire"
	"denticheck-server/internal/domain/detection"
	"denticheck-server/internal/domain/detection/backend"
	"denticheck-server/internal/domain/eventbus"
	domainimage "denticheck-server/internal/domain/image"
	"denticheck-server/internal/domain/journal"
	"denticheck-server/internal/domain/llm"
	domainreport "denticheck-server/internal/domain/report"
	"denticheck-server/internal/domain/retrieval"
	platformconfig "denticheck-server/internal/platform/config"
	platformerrors "denticheck-server/internal/platform/errors"
	platformlogging "denticheck-server/internal/platform/logging"
	platformobservability "denticheck-server/internal/platform/observability"
	httptransport "denticheck-server/internal/transport/http"
	httpdetect "denticheck-server/internal/transport/http/detect"
	httpdocs "denticheck-server/internal/transport/http/docs"
	httpops "denticheck-server/internal/transport/http/ops"
	httpreport "denticheck-server/internal/transport/http/report"
	mcptransport "denticheck-server/internal/transport/mcp"
)

const bootTag = "BOOT"

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config                *platformconfig.Config
	configPath            string
	logger                *platformlogging.Logger
	observabilityShutdown platformobservability.ShutdownFunc

	bus            *eventbus.AsyncEventBus
	journal        journal.Store
	detachRecorder func()

	acquirer  *acquire.Acquirer
	quality   *domainimage.QualityGate
	detector  *detection.Detector
	detection *detection.Service
	reports   *domainreport.Service
}

// Run starts the service and blocks until SIGINT/SIGTERM or a server fails.
func Run(ctx context.Context) error {
	return run(ctx, &appState{})
}

func run(ctx context.Context, state *appState) error {
	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		state.close()
		return err
	}
	defer state.close()

	logger := state.logger
	logBootstrapGraph(steps, logger)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startServices(groupCtx, state, group); err != nil {
		cancel()
		_ = group.Wait()
		return err
	}

	// A server that fails on its own must also end the wait.
	waitCtx, waitCancel := context.WithCancel(signalCtx)
	defer waitCancel()
	go func() {
		<-groupCtx.Done()
		waitCancel()
	}()

	return waitForShutdown(waitCtx, cancel, state, group)
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	logger.InfoTag(bootTag, "init graph (%d steps)", len(steps))
	for _, step := range steps {
		if len(step.DependsOn) == 0 {
			logger.InfoTag(bootTag, "  %s: %s", step.ID, step.Title)
			continue
		}
		logger.InfoTag(bootTag, "  %s: %s <- %s", step.ID, step.Title, strings.Join(step.DependsOn, ", "))
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "execute init steps", "nil bootstrap state")
	}
	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(platformerrors.KindBootstrap, step.ID, fmt.Sprintf("dependency %s not satisfied", dep))
			}
		}
		if step.Execute == nil {
			return platformerrors.New(platformerrors.KindBootstrap, step.ID, "missing execute function")
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}
			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph lists the init steps in execution order.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "eventbus:start",
			Title:     "Start event bus",
			DependsOn: []string{"logging:init-provider"},
			Execute:   startEventBusStep,
		},
		{
			ID:        "journal:init-store",
			Title:     "Open run journal and attach recorder",
			DependsOn: []string{"eventbus:start"},
			Kind:      platformerrors.KindStorage,
			Execute:   initJournalStep,
		},
		{
			ID:        "acquire:init",
			Title:     "Initialise image acquisition",
			DependsOn: []string{"logging:init-provider"},
			Execute:   initAcquireStep,
		},
		{
			ID:        "quality:init-gate",
			Title:     "Initialise quality gate",
			DependsOn: []string{"logging:init-provider"},
			Execute:   initQualityStep,
		},
		{
			ID:        "detector:load-model",
			Title:     "Load detection model",
			DependsOn: []string{"observability:setup-hooks"},
			Kind:      platformerrors.KindModelUnavailable,
			Execute:   initDetectorStep,
		},
		{
			ID:        "detection:init-service",
			Title:     "Initialise detection pipeline",
			DependsOn: []string{"acquire:init", "detector:load-model", "eventbus:start"},
			Execute:   initDetectionStep,
		},
		{
			ID:        "report:init-service",
			Title:     "Initialise retrieval, synthesizer and report service",
			DependsOn: []string{"observability:setup-hooks", "eventbus:start"},
			Execute:   initReportStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	if state.config != nil {
		state.configPath = "preset"
		return nil
	}
	res, err := platformconfig.NewLoader().Load()
	if err != nil {
		return err
	}
	state.config = res.Config
	state.configPath = res.Path
	if state.configPath == "" {
		state.configPath = "defaults"
	}
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.logger != nil {
		return nil
	}
	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}
	state.logger = logger
	logger.InfoTag(bootTag, "logging ready [%s] config=%s", state.config.Log.Level, state.configPath)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	shutdown, err := platformobservability.Setup(ctx, platformobservability.Config{
		Enabled: state.config.Observability.Enabled,
	}, state.logger.Slog())
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func startEventBusStep(_ context.Context, state *appState) error {
	workers := state.config.Journal.Workers
	if workers <= 0 {
		workers = 2
	}
	state.bus = eventbus.NewAsyncEventBus(workers, 1024, state.logger)
	state.bus.Start()
	return nil
}

func initJournalStep(ctx context.Context, state *appState) error {
	store, err := journal.New(ctx, state.config.Journal, state.logger)
	if err != nil {
		return err
	}
	detach, err := journal.NewRecorder(store, state.logger).Attach(state.bus)
	if err != nil {
		_ = store.Close()
		return platformerrors.Wrap(platformerrors.KindBootstrap, "journal:init-store", "failed to attach journal recorder", err)
	}
	state.journal = store
	state.detachRecorder = detach
	state.logger.InfoTag("JOURNAL", "run journal ready (driver=%s capacity=%d)", state.config.Journal.Driver, state.config.Journal.Capacity)
	return nil
}

func initAcquireStep(_ context.Context, state *appState) error {
	cfg := state.config.Acquisition
	pipeline, err := domainimage.NewPipeline(domainimage.Options{Security: cfg.Security, Logger: state.logger})
	if err != nil {
		return err
	}
	temp, err := acquire.NewTempManager(cfg.TempDir, cfg.TempPrefix)
	if err != nil {
		return err
	}
	acquirer, err := acquire.NewAcquirer(acquire.Options{
		Storage:      state.config.ObjectStorage,
		FetchTimeout: cfg.FetchTimeout,
		Pipeline:     pipeline,
		Temp:         temp,
		Logger:       state.logger,
	})
	if err != nil {
		return err
	}
	state.acquirer = acquirer
	state.logger.InfoTag("ACQUIRE", "object storage %s/%s, temp dir %s", state.config.ObjectStorage.Endpoint, state.config.ObjectStorage.Bucket, temp.Dir())
	return nil
}

func initQualityStep(_ context.Context, state *appState) error {
	state.quality = domainimage.NewQualityGate(state.config.Quality, state.logger)
	return nil
}

// initDetectorStep loads the model. A backend that cannot load is replaced
// by one that answers model_unavailable so the rest of the service runs.
func initDetectorStep(ctx context.Context, state *appState) error {
	cfg := state.config.Detector
	classes, err := detection.NewClassTable(cfg.ClassTableVersion, cfg.Classes)
	if err != nil {
		return err
	}
	if cfg.ClassesFile != "" {
		if classes, err = detection.LoadClassTable(cfg.ClassesFile); err != nil {
			return err
		}
	}

	b, err := backend.New(ctx, cfg, state.logger)
	if err != nil {
		if !platformerrors.IsKind(err, platformerrors.KindModelUnavailable) {
			return err
		}
		state.logger.WarnTag("DETECT", "detector backend %s unavailable: %v", cfg.Backend, err)
		b = backend.NewUnavailable(err)
	}

	detector, err := detection.NewDetector(b, classes, detection.Options{
		Threshold:    cfg.ConfidenceThreshold,
		NMSThreshold: cfg.NMSThreshold,
		Timeout:      cfg.Timeout,
		Logger:       state.logger,
	})
	if err != nil {
		_ = b.Close()
		return err
	}
	state.detector = detector
	state.logger.InfoTag("DETECT", "detector ready backend=%s classes=%s threshold=%.2f", b.Name(), classes.Version, cfg.ConfidenceThreshold)
	return nil
}

func initDetectionStep(_ context.Context, state *appState) error {
	svc, err := detection.NewService(detection.ServiceOptions{
		Source:           state.acquirer,
		Detector:         state.detector,
		Aggregate:        detection.AggregateOptions{IncludeAreaRatio: state.config.Detector.IncludeAreaRatio},
		Publisher:        state.bus,
		Logger:           state.logger,
		DegradeOnFailure: state.config.Detector.DegradeOnFailure,
	})
	if err != nil {
		return err
	}
	state.detection = svc
	return nil
}

func initReportStep(_ context.Context, state *appState) error {
	cfg := state.config
	r, err := retrieval.New(cfg.Retrieval, state.logger)
	if err != nil {
		return err
	}
	composer, err := domainreport.NewComposer(r, domainreport.ComposerOptions{
		TopK:                     cfg.Retrieval.TopK,
		DefaultQuery:             cfg.Retrieval.DefaultQuery,
		DefaultLanguage:          cfg.Report.DefaultLanguage,
		DefaultDisclaimerVersion: cfg.Report.DefaultDisclaimerVersion,
		Timeout:                  cfg.Retrieval.Timeout,
		Logger:                   state.logger,
	})
	if err != nil {
		return err
	}
	synth, err := llm.NewOpenAISynthesizer(llm.Options{
		Model:                    cfg.LLM.ModelName,
		BaseURL:                  cfg.LLM.BaseURL,
		APIKey:                   cfg.LLM.APIKey,
		Temperature:              cfg.LLM.Temperature,
		MaxTokens:                cfg.LLM.MaxTokens,
		Timeout:                  cfg.LLM.Timeout,
		JSONMode:                 cfg.LLM.JSONMode,
		Disclaimers:              cfg.Report.Disclaimers,
		DefaultDisclaimerVersion: cfg.Report.DefaultDisclaimerVersion,
		Logger:                   state.logger,
	})
	if err != nil {
		return err
	}
	if cfg.LLM.APIKey == "" {
		state.logger.WarnTag("LLM", "llm.api_key is empty; report generation will fail against authenticated endpoints")
	}
	svc, err := domainreport.NewService(composer, synth, state.bus, state.logger)
	if err != nil {
		return err
	}
	state.reports = svc
	state.logger.InfoTag("REPORT", "report service ready retrieval=%s model=%s", cfg.Retrieval.Backend, cfg.LLM.ModelName)
	return nil
}

// buildHTTPHandler assembles the router with every route group.
func buildHTTPHandler(ctx context.Context, state *appState) (*gin.Engine, error) {
	httpRouter, err := httptransport.Build(httptransport.Options{
		Config: state.config,
		Logger: state.logger,
	})
	if err != nil {
		return nil, err
	}
	router := httpRouter.Engine

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			httptransport.RespondError(c, http.StatusNotFound, "api not found", gin.H{})
			return
		}
		c.Status(http.StatusNotFound)
	})

	detectService, err := httpdetect.NewService(httpdetect.Options{
		Detector:      state.detection,
		Quality:       state.quality,
		Source:        state.acquirer,
		MaxUploadSize: state.config.Acquisition.Security.MaxFileSize,
		Publisher:     state.bus,
		Logger:        state.logger,
	})
	if err != nil {
		return nil, err
	}
	reportService, err := httpreport.NewService(state.reports, state.logger)
	if err != nil {
		return nil, err
	}
	opsService, err := httpops.NewService(state.detector, state.journal, state.logger)
	if err != nil {
		return nil, err
	}

	for _, registrar := range []httptransport.Registrar{detectService, reportService, opsService} {
		if err := registrar.Register(ctx, httpRouter.API); err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindTransport, "http:register", "failed to register routes", err)
		}
	}

	if state.config.Web.DocsEnabled {
		httpdocs.Register(router, state.logger)
	}
	return router, nil
}

func startHTTPServer(ctx context.Context, state *appState, g *errgroup.Group) error {
	handler, err := buildHTTPHandler(ctx, state)
	if err != nil {
		return err
	}
	cfg := state.config
	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.IP, strconv.Itoa(cfg.Server.Port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger := state.logger

	g.Go(func() error {
		logger.InfoTag("HTTP", "gin server listening on %s", httpServer.Addr)
		if cfg.Web.DocsEnabled {
			logger.InfoTag("HTTP", "API reference at http://localhost:%d/docs", cfg.Server.Port)
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "http server shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "http server stopped")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "http server failed: %v", err)
			return platformerrors.Wrap(platformerrors.KindTransport, "http:serve", "http server failed", err)
		}
		return nil
	})
	return nil
}

func startMCPServer(ctx context.Context, state *appState, g *errgroup.Group) error {
	cfg := state.config.MCP
	if !cfg.Enabled {
		return nil
	}
	srv, err := mcptransport.New(mcptransport.Options{
		BaseURL:  cfg.BaseURL,
		Detector: state.detection,
		Reports:  state.reports,
		Logger:   state.logger,
	})
	if err != nil {
		return err
	}
	logger := state.logger

	g.Go(func() error {
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("MCP", "mcp server shutdown failed: %v", err)
			}
		}()
		return srv.Start(cfg.Addr)
	})
	return nil
}

// startClassWatcher reloads the detector class table when the configured
// file changes. A bad edit is logged and the current table stays in place.
func startClassWatcher(ctx context.Context, state *appState, g *errgroup.Group) error {
	path := state.config.Detector.ClassesFile
	if path == "" {
		return nil
	}
	logger := state.logger
	detector := state.detector
	watcher, err := platformconfig.NewFileWatcher(path, func() {
		classes, err := detection.LoadClassTable(path)
		if err != nil {
			logger.WarnTag("DETECT", "class table reload rejected: %v", err)
			return
		}
		if err := detector.SwapClasses(classes); err != nil {
			logger.WarnTag("DETECT", "class table swap failed: %v", err)
		}
	}, logger)
	if err != nil {
		return err
	}
	logger.InfoTag("DETECT", "watching class table %s", watcher.Path())
	g.Go(func() error { return watcher.Run(ctx) })
	return nil
}

func startServices(ctx context.Context, state *appState, g *errgroup.Group) error {
	if err := startClassWatcher(ctx, state, g); err != nil {
		return fmt.Errorf("start class watcher: %w", err)
	}
	if err := startHTTPServer(ctx, state, g); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	if err := startMCPServer(ctx, state, g); err != nil {
		return fmt.Errorf("start mcp server: %w", err)
	}
	return nil
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc, state *appState, g *errgroup.Group) error {
	logger := state.logger
	<-ctx.Done()
	logger.InfoTag(bootTag, "shutting down: %v", context.Cause(ctx))

	cancel()

	timeout := state.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag(bootTag, "service stopped with error: %v", err)
			return err
		}
		logger.InfoTag(bootTag, "all services stopped")
	case <-time.After(timeout):
		logger.ErrorTag(bootTag, "shutdown timed out after %s", timeout)
		return platformerrors.New(platformerrors.KindBootstrap, "bootstrap:shutdown", "shutdown timed out")
	}
	return nil
}

// close releases everything the init steps acquired, in reverse order.
// It is safe on a partially initialised state.
func (s *appState) close() {
	if s.detector != nil {
		if err := s.detector.Close(); err != nil {
			s.logger.WarnTag("DETECT", "detector close failed: %v", err)
		}
	}
	if s.bus != nil {
		s.bus.Stop()
	}
	if s.detachRecorder != nil {
		s.detachRecorder()
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.WarnTag("JOURNAL", "journal close failed: %v", err)
		}
	}
	if s.observabilityShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.observabilityShutdown(shutdownCtx); err != nil {
			s.logger.WarnTag(bootTag, "observability did not shut down cleanly: %v", err)
		}
	}
	if s.logger != nil {
		_ = s.logger.Close()
	}
}
