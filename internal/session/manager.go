package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/attunelabs/attune-core/internal/timeline"
)

// Manager tracks live sessions by id. Sessions are created lazily on first
// input and reaped after the idle timeout; an explicit Dispose flushes and
// removes a session immediately.
type Manager struct {
	cfg    timeline.Config
	mapper timeline.StateMapper
	log    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Context

	idleTimeout time.Duration
	onExpire    func(*Context)
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewManager starts the idle sweep in the background. onExpire, if not
// nil, runs for each session reaped by the sweep, after removal from the
// map but before the session is dropped.
func NewManager(ctx context.Context, cfg timeline.Config, mapper timeline.StateMapper, idleTimeout time.Duration, onExpire func(*Context), log *slog.Logger) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	m := &Manager{
		cfg:         cfg,
		mapper:      mapper,
		log:         log.With(slog.String("component", "session-manager")),
		sessions:    make(map[string]*Context),
		idleTimeout: idleTimeout,
		onExpire:    onExpire,
		cancel:      cancel,
	}
	if idleTimeout > 0 {
		m.wg.Add(1)
		go m.sweepIdle(ctx)
	}
	return m
}

func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

// GetOrCreate returns the session for id, creating it with the given
// wall time as its epoch when absent. created reports whether this call
// made the session.
func (m *Manager) GetOrCreate(id string, now time.Time) (sess *Context, created bool) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return sess, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[id]; ok {
		return sess, false
	}
	sess = newContext(id, m.cfg, m.mapper, now)
	m.sessions[id] = sess
	m.log.Info("session started", slog.String("session_id", id))
	return sess, true
}

// Get returns the session for id without creating one.
func (m *Manager) Get(id string) (*Context, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// Dispose removes a session from the map and returns it for final
// flushing. ok is false when the session was unknown.
func (m *Manager) Dispose(id string) (*Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	delete(m.sessions, id)
	m.log.Info("session disposed", slog.String("session_id", id))
	return sess, true
}

// Active returns a snapshot of all live sessions.
func (m *Manager) Active() []*Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Context, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	return out
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) sweepIdle(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reapExpired(time.Now())
		}
	}
}

func (m *Manager) reapExpired(now time.Time) {
	var expired []*Context

	m.mu.Lock()
	for id, sess := range m.sessions {
		if now.Sub(sess.LastSeen()) > m.idleTimeout {
			delete(m.sessions, id)
			expired = append(expired, sess)
		}
	}
	m.mu.Unlock()

	for _, sess := range expired {
		m.log.Info("session expired",
			slog.String("session_id", sess.ID),
			slog.Duration("idle_timeout", m.idleTimeout))
		if m.onExpire != nil {
			m.onExpire(sess)
		}
	}
}
