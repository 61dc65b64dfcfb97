package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/attunelabs/attune-core/internal/advice"
	"github.com/attunelabs/attune-core/internal/bus"
	"github.com/attunelabs/attune-core/internal/config"
	"github.com/attunelabs/attune-core/internal/protocol"
	"github.com/attunelabs/attune-core/internal/session"
	"github.com/attunelabs/attune-core/internal/sessionstore"
	"github.com/attunelabs/attune-core/internal/timeline"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Service is the coordination layer between the bus and the per-session
// aggregation pipeline. It feeds frames and transcripts into sessions,
// drives the interval clock, and fans finalized intervals out to the bus,
// the store, and the advice engine.
type Service struct {
	cfg      config.Config
	bus      *bus.Client
	logger   *slog.Logger
	sessions *session.Manager
	engine   *advice.Engine
	store    *sessionstore.Store

	ctx    context.Context
	cancel context.CancelFunc
	subs   []*nats.Subscription
	wg     sync.WaitGroup
	ready  bool

	meter            metric.Meter
	intervalsCounter metric.Int64Counter
	triggersCounter  metric.Int64Counter
	adviceLatency    metric.Float64Histogram
}

func NewService(parent context.Context, cfg config.Config, busClient *bus.Client, sessions *session.Manager, engine *advice.Engine, store *sessionstore.Store, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:      cfg,
		bus:      busClient,
		logger:   logger.With(slog.String("component", "pipeline")),
		sessions: sessions,
		engine:   engine,
		store:    store,
		ctx:      ctx,
		cancel:   cancel,
		meter:    otel.Meter("github.com/attunelabs/attune-core/pipeline"),
	}
	if err := s.initMetrics(); err != nil {
		s.logger.Warn("failed to initialize metrics", slogError(err))
	}
	return s
}

func (s *Service) initMetrics() error {
	var err error
	s.intervalsCounter, err = s.meter.Int64Counter("attune.pipeline.intervals",
		metric.WithDescription("Finalized aggregation intervals"))
	if err != nil {
		return err
	}
	s.triggersCounter, err = s.meter.Int64Counter("attune.pipeline.triggers",
		metric.WithDescription("Window triggers that requested advice"))
	if err != nil {
		return err
	}
	s.adviceLatency, err = s.meter.Float64Histogram("attune.advice.latency_seconds",
		metric.WithDescription("End-to-end advice generation latency"))
	return err
}

func (s *Service) Start() error {
	conn := s.bus.Conn()

	frameSub, err := conn.Subscribe(protocol.SubjectVisionFramePrefix+".>", s.handleEmotionFrame)
	if err != nil {
		return fmt.Errorf("subscribe emotion frames: %w", err)
	}
	s.subs = append(s.subs, frameSub)

	finalSub, err := conn.Subscribe(protocol.SubjectTranscriptFinal, s.handleTranscript)
	if err != nil {
		return fmt.Errorf("subscribe final transcripts: %w", err)
	}
	s.subs = append(s.subs, finalSub)

	closedSub, err := conn.Subscribe(protocol.SubjectSessionClosed, s.handleSessionClosed)
	if err != nil {
		return fmt.Errorf("subscribe session closed: %w", err)
	}
	s.subs = append(s.subs, closedSub)

	s.wg.Add(1)
	go s.runTicker()

	s.ready = true
	return nil
}

func (s *Service) Close() {
	s.cancel()
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return s.ready
}

func (s *Service) handleEmotionFrame(msg *nats.Msg) {
	var frame protocol.EmotionFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.logger.Warn("failed to decode emotion frame", slogError(err))
		return
	}
	if frame.SessionID == "" {
		return
	}

	now := time.Now()
	sess, created := s.sessions.GetOrCreate(frame.SessionID, now)
	if created {
		s.beginStoredSession(frame.SessionID, now)
	}
	sess.OnFrame(timeline.RawEmotionFrame{
		Timestamp:    frame.Timestamp,
		Scores:       frame.Scores,
		FaceDetected: frame.FaceDetected,
	}, now)
}

func (s *Service) handleTranscript(msg *nats.Msg) {
	var transcript protocol.Transcript
	if err := json.Unmarshal(msg.Data, &transcript); err != nil {
		s.logger.Warn("failed to decode transcript", slogError(err))
		return
	}
	if transcript.SessionID == "" || transcript.Partial {
		return
	}

	now := time.Now()
	sess, created := s.sessions.GetOrCreate(transcript.SessionID, now)
	if created {
		s.beginStoredSession(transcript.SessionID, now)
	}
	if len(transcript.Words) > 0 {
		for _, word := range transcript.Words {
			sess.OnWord(word.Text, word.Timestamp, word.Confidence, now)
		}
		return
	}
	sess.OnUtterance(transcript.Text, transcript.Start, transcript.End, transcript.Confidence, now)
}

func (s *Service) handleSessionClosed(msg *nats.Msg) {
	var closed protocol.SessionClosed
	if err := json.Unmarshal(msg.Data, &closed); err != nil {
		s.logger.Warn("failed to decode session closed", slogError(err))
		return
	}
	sess, ok := s.sessions.Dispose(closed.SessionID)
	if !ok {
		return
	}
	s.finishSession(sess, closed.Reason)
}

// FinishExpired flushes and persists a session reaped by the idle sweep.
func (s *Service) FinishExpired(sess *session.Context) {
	s.finishSession(sess, "idle")
}

func (s *Service) finishSession(sess *session.Context, reason string) {
	now := time.Now()
	if summary, ok := sess.Flush(now); ok {
		s.publishInterval(sess.ID, summary)
		s.persistInterval(sess.ID, summary)
	}
	if s.store != nil {
		ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		defer cancel()
		if err := s.store.EndSession(ctx, sess.ID, now); err != nil {
			s.logger.Warn("failed to end stored session", slogError(err))
		}
	}
	stats := sess.Stats()
	s.logger.Info("session finished",
		slog.String("session_id", sess.ID),
		slog.String("reason", reason),
		slog.Int("intervals", stats.Intervals),
		slog.Int("triggers", stats.TriggersFired),
		slog.Int("words_attached", stats.WordsAttached),
		slog.Int("words_expired", stats.WordsExpired))
}

func (s *Service) runTicker() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Duration(s.cfg.Pipeline.TickMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.tickAll(now)
		}
	}
}

func (s *Service) tickAll(now time.Time) {
	for _, sess := range s.sessions.Active() {
		finalized, triggered := sess.Tick(now)
		for _, summary := range finalized {
			s.intervalsCounter.Add(s.ctx, 1)
			s.publishInterval(sess.ID, summary)
			s.persistInterval(sess.ID, summary)
		}
		if triggered {
			s.triggersCounter.Add(s.ctx, 1)
			s.dispatchAdvice(sess)
		}
	}
}

func (s *Service) publishInterval(sessionID string, summary timeline.IntervalSummary) {
	event := protocol.IntervalEvent{
		SessionID:     sessionID,
		Start:         summary.Start,
		End:           summary.End,
		DominantState: summary.DominantState,
		FrameCount:    summary.FrameCount,
		WordCount:     len(summary.Words),
		Emitted:       time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to marshal interval event", slogError(err))
		return
	}
	subject := protocol.SubjectIntervalPrefix + "." + sessionID
	if err := s.bus.Conn().Publish(subject, data); err != nil {
		s.logger.Warn("failed to publish interval event", slogError(err))
	}
}

func (s *Service) persistInterval(sessionID string, summary timeline.IntervalSummary) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	if err := s.store.AppendInterval(ctx, sessionID, summary); err != nil {
		s.logger.Warn("failed to persist interval", slogError(err))
	}
}

func (s *Service) beginStoredSession(sessionID string, startedAt time.Time) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	if err := s.store.BeginSession(ctx, sessionID, startedAt); err != nil {
		s.logger.Warn("failed to begin stored session", slogError(err))
	}
}

// dispatchAdvice runs advice generation off the tick loop so a slow
// generator cannot stall interval finalization for other sessions.
func (s *Service) dispatchAdvice(sess *session.Context) {
	if s.engine == nil || !s.cfg.Advice.Enabled {
		return
	}
	intervals, summary, trends := sess.Window()
	adviceCtx := advice.BuildContext(intervals, summary, trends)
	traceID := uuid.NewString()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, time.Duration(s.cfg.Advice.TimeoutSeconds)*time.Second)
		defer cancel()

		start := time.Now()
		content, cached, err := s.engine.Advise(ctx, sess.ID, traceID, adviceCtx)
		s.adviceLatency.Record(s.ctx, time.Since(start).Seconds())
		if err != nil {
			s.logger.Warn("advice generation failed, using fallback",
				slog.String("session_id", sess.ID),
				slogError(err))
		}
		if content == "" {
			return
		}
		s.publishAdvice(sess.ID, traceID, content, cached)
		if s.store != nil {
			storeCtx, cancelStore := context.WithTimeout(s.ctx, 5*time.Second)
			defer cancelStore()
			if err := s.store.AppendAdvice(storeCtx, sess.ID, traceID, content, cached); err != nil {
				s.logger.Warn("failed to persist advice", slogError(err))
			}
		}
	}()
}

func (s *Service) publishAdvice(sessionID, traceID, content string, cached bool) {
	event := protocol.AdviceEvent{
		SessionID: sessionID,
		Advice:    content,
		TraceID:   traceID,
		Cached:    cached,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to marshal advice event", slogError(err))
		return
	}
	subject := protocol.SubjectAdvicePrefix + "." + sessionID
	if err := s.bus.Conn().Publish(subject, data); err != nil {
		s.logger.Warn("failed to publish advice event", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
