package emotion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/attunelabs/attune-core/internal/bus"
	"github.com/attunelabs/attune-core/internal/config"
	"github.com/attunelabs/attune-core/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Service scores raw camera captures server side and republishes them as
// emotion frames. Deployments that score on the edge publish emotion
// frames directly and leave this service disabled.
type Service struct {
	cfg        config.EmotionConfig
	bus        *bus.Client
	classifier Classifier
	ctx        context.Context
	cancel     context.CancelFunc
	sub        *nats.Subscription
	wg         sync.WaitGroup
	ready      bool
}

func NewService(parent context.Context, cfg config.EmotionConfig, busClient *bus.Client) (*Service, error) {
	var classifier Classifier
	switch cfg.Mode {
	case "mock":
		classifier = NewMockClassifier()
	case "http":
		classifier = NewHTTPClassifier(cfg)
	default:
		if cfg.Enabled {
			return nil, fmt.Errorf("unknown emotion mode %q", cfg.Mode)
		}
		classifier = NewMockClassifier()
	}

	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:        cfg,
		bus:        busClient,
		classifier: classifier,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	subject := protocol.SubjectVisionCapturePrefix + ".>"
	sub, err := s.bus.Conn().Subscribe(subject, s.handleCapture)
	if err != nil {
		return fmt.Errorf("subscribe vision captures: %w", err)
	}
	s.sub = sub
	s.ready = true
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || s.ready
}

func (s *Service) handleCapture(msg *nats.Msg) {
	var capture protocol.VisionCapture
	if err := json.Unmarshal(msg.Data, &capture); err != nil {
		s.bus.Logger().Warn("failed to decode vision capture", slogError(err))
		return
	}
	if capture.SessionID == "" {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
		defer cancel()

		result, err := s.classifier.Classify(ctx, capture.Image, capture.MimeType)
		if err != nil {
			s.bus.Logger().Warn("emotion classification failed", slogError(err))
			return
		}
		s.publishFrame(capture, result)
	}()
}

func (s *Service) publishFrame(capture protocol.VisionCapture, result Result) {
	frame := protocol.EmotionFrame{
		SessionID:    capture.SessionID,
		Timestamp:    capture.Timestamp,
		Scores:       result.Scores,
		FaceDetected: result.FaceDetected,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		s.bus.Logger().Warn("failed to marshal emotion frame", slogError(err))
		return
	}
	subject := protocol.SubjectVisionFramePrefix + "." + capture.SessionID
	if err := s.bus.Conn().Publish(subject, data); err != nil {
		s.bus.Logger().Warn("failed to publish emotion frame", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
