package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/attunelabs/attune-core/internal/advice"
	"github.com/attunelabs/attune-core/internal/bus"
	"github.com/attunelabs/attune-core/internal/config"
	"github.com/attunelabs/attune-core/internal/emotion"
	"github.com/attunelabs/attune-core/internal/natsserver"
	"github.com/attunelabs/attune-core/internal/pipeline"
	"github.com/attunelabs/attune-core/internal/session"
	"github.com/attunelabs/attune-core/internal/sessionstore"
	"github.com/attunelabs/attune-core/internal/state"
	"github.com/attunelabs/attune-core/internal/timeline"
	"github.com/attunelabs/attune-core/internal/transcribe"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	natsServer *natsserver.EmbeddedServer
	busClient  *bus.Client
	store      *sessionstore.Store
	sessions   *session.Manager
	engine     *advice.Engine
	pipeline   *pipeline.Service
	transcribe *transcribe.Service
	emotion    *emotion.Service
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if err := r.startComponents(ctx); err != nil {
		r.stopComponents()
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/statsz", r.handleStats)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	r.stopComponents()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) startComponents(ctx context.Context) error {
	ns, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("start embedded nats: %w", err)
	}
	r.natsServer = ns

	busCfg := r.cfg.Bus
	if busCfg.Embedded {
		busCfg.Servers = []string{fmt.Sprintf("nats://127.0.0.1:%d", busCfg.Port)}
	}
	busClient, err := bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}
	r.busClient = busClient

	store, err := sessionstore.Open(ctx, r.cfg.SessionStore, r.logger)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	r.store = store

	if r.cfg.Advice.Enabled {
		engine, err := advice.NewEngine(r.cfg.Advice, r.logger)
		if err != nil {
			return fmt.Errorf("build advice engine: %w", err)
		}
		r.engine = engine
	}

	pipelineCfg := timeline.Config{
		IntervalDuration: r.cfg.Pipeline.IntervalSeconds,
		EMAAlpha:         r.cfg.Pipeline.EMAAlpha,
		TopK:             r.cfg.Pipeline.TopKEmotions,
		WindowCapacity:   r.cfg.Pipeline.WindowCapacity,
		UpdateInterval:   r.cfg.Pipeline.UpdateSeconds,
		TrendThreshold:   r.cfg.Pipeline.TrendThreshold,
		Lookback:         r.cfg.Pipeline.LookbackSeconds,
		SilenceZeroWords: r.cfg.Pipeline.SilenceZeroWords,
	}
	idleTimeout := time.Duration(r.cfg.Pipeline.IdleTimeoutMS) * time.Millisecond
	r.sessions = session.NewManager(ctx, pipelineCfg, state.DefaultMapper(), idleTimeout, func(sess *session.Context) {
		if r.pipeline != nil {
			r.pipeline.FinishExpired(sess)
		}
	}, r.logger)

	r.pipeline = pipeline.NewService(ctx, r.cfg, busClient, r.sessions, r.engine, store, r.logger)
	if err := r.pipeline.Start(); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	if r.cfg.Transcribe.Enabled {
		recognizer, err := buildRecognizer(r.cfg.Transcribe)
		if err != nil {
			return fmt.Errorf("build recognizer: %w", err)
		}
		r.transcribe = transcribe.NewService(ctx, r.cfg.Transcribe, busClient, recognizer)
		if err := r.transcribe.Start(); err != nil {
			return fmt.Errorf("start transcribe: %w", err)
		}
	}

	if r.cfg.Emotion.Enabled {
		svc, err := emotion.NewService(ctx, r.cfg.Emotion, busClient)
		if err != nil {
			return fmt.Errorf("build emotion service: %w", err)
		}
		r.emotion = svc
		if err := r.emotion.Start(); err != nil {
			return fmt.Errorf("start emotion: %w", err)
		}
	}

	return nil
}

func buildRecognizer(cfg config.TranscribeConfig) (transcribe.Recognizer, error) {
	switch cfg.Mode {
	case "mock":
		return transcribe.NewMockRecognizer(), nil
	case "exec":
		return transcribe.NewExecRecognizer(cfg)
	default:
		return nil, fmt.Errorf("unknown transcribe mode %q", cfg.Mode)
	}
}

func (r *Runtime) stopComponents() {
	if r.emotion != nil {
		r.emotion.Close()
	}
	if r.transcribe != nil {
		r.transcribe.Close()
	}
	if r.pipeline != nil {
		r.pipeline.Close()
	}
	if r.sessions != nil {
		r.sessions.Close()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("session store close error", slog.String("error", err.Error()))
		}
	}
	if r.busClient != nil {
		r.busClient.Close()
	}
	if r.natsServer != nil {
		r.natsServer.Shutdown()
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	ready := r.ready.Load() &&
		r.busClient.Healthy() &&
		(r.pipeline == nil || r.pipeline.Healthy()) &&
		(r.transcribe == nil || r.transcribe.Healthy()) &&
		(r.emotion == nil || r.emotion.Healthy())
	if ready {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleStats(w http.ResponseWriter, _ *http.Request) {
	type statsResponse struct {
		ActiveSessions int             `json:"active_sessions"`
		AdviceCacheLen int             `json:"advice_cache_len"`
		Sessions       []session.Stats `json:"sessions"`
	}

	resp := statsResponse{Sessions: []session.Stats{}}
	if r.sessions != nil {
		for _, sess := range r.sessions.Active() {
			resp.Sessions = append(resp.Sessions, sess.Stats())
		}
		resp.ActiveSessions = len(resp.Sessions)
	}
	if r.engine != nil {
		resp.AdviceCacheLen = r.engine.CacheLen()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		r.logger.Warn("failed to encode stats", slog.String("error", err.Error()))
	}
}
