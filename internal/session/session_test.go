package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/attunelabs/attune-core/internal/state"
	"github.com/attunelabs/attune-core/internal/timeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testManager(t *testing.T, cfg timeline.Config) *Manager {
	t.Helper()
	m := NewManager(context.Background(), cfg, state.DefaultMapper(), 0, nil, testLogger())
	t.Cleanup(m.Close)
	return m
}

func TestTickFinalizesIntervalsWithSpeech(t *testing.T) {
	cfg := timeline.DefaultConfig()
	m := testManager(t, cfg)

	epoch := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sess, _ := m.GetOrCreate("demo", epoch)

	// Three frames and one utterance inside the first second.
	for i := 0; i < 3; i++ {
		ts := float64(i) * 0.3
		sess.OnFrame(timeline.RawEmotionFrame{
			Timestamp:    ts,
			Scores:       map[string]float64{"Interest": 0.7, "Excitement": 0.5},
			FaceDetected: true,
		}, epoch.Add(time.Duration(ts*float64(time.Second))))
	}
	sess.OnUtterance("let me show you", 0.1, 0.9, 0.95, epoch.Add(900*time.Millisecond))

	finalized, _ := sess.Tick(epoch.Add(1100 * time.Millisecond))
	if len(finalized) != 1 {
		t.Fatalf("expected 1 finalized interval, got %d", len(finalized))
	}
	iv := finalized[0]
	if iv.FrameCount != 3 {
		t.Fatalf("expected 3 frames, got %d", iv.FrameCount)
	}
	if len(iv.Words) != 4 {
		t.Fatalf("expected 4 words attached, got %d (%q)", len(iv.Words), iv.FullText)
	}
	if iv.FullText != "let me show you" {
		t.Fatalf("unexpected text %q", iv.FullText)
	}
	if iv.Flags.Silence {
		t.Fatal("interval with speech should not be flagged silent")
	}
	if iv.DominantState == timeline.NoSignalState {
		t.Fatalf("expected a mapped state, got %q", iv.DominantState)
	}
}

func TestTickCatchesUpAfterStall(t *testing.T) {
	cfg := timeline.DefaultConfig()
	m := testManager(t, cfg)

	epoch := time.Now()
	sess, _ := m.GetOrCreate("stall", epoch)
	sess.OnFrame(timeline.RawEmotionFrame{
		Timestamp:    0.5,
		Scores:       map[string]float64{"Calmness": 0.6},
		FaceDetected: true,
	}, epoch)

	// No ticks for several intervals, then one late tick drains them all.
	finalized, _ := sess.Tick(epoch.Add(3600 * time.Millisecond))
	if len(finalized) != 3 {
		t.Fatalf("expected 3 catch-up intervals, got %d", len(finalized))
	}
	if finalized[1].DominantState != timeline.NoSignalState {
		t.Fatalf("empty catch-up interval should be no-signal, got %q", finalized[1].DominantState)
	}
	if finalized[0].End != finalized[1].Start {
		t.Fatalf("intervals must be contiguous: %v then %v", finalized[0].End, finalized[1].Start)
	}
}

func TestWindowTriggerAfterColdStart(t *testing.T) {
	cfg := timeline.DefaultConfig()
	cfg.WindowCapacity = 3
	m := testManager(t, cfg)

	epoch := time.Now()
	sess, _ := m.GetOrCreate("trigger", epoch)

	triggeredAt := -1
	for i := 0; i < 4; i++ {
		sess.OnFrame(timeline.RawEmotionFrame{
			Timestamp:    float64(i) + 0.1,
			Scores:       map[string]float64{"Joy": 0.8},
			FaceDetected: true,
		}, epoch)
		_, triggered := sess.Tick(epoch.Add(time.Duration(i+1)*time.Second + 600*time.Millisecond))
		if triggered && triggeredAt < 0 {
			triggeredAt = i
		}
	}
	if triggeredAt != 2 {
		t.Fatalf("expected first trigger when the window filled at the third interval, got index %d", triggeredAt)
	}
}

func TestFlushShortFinalInterval(t *testing.T) {
	cfg := timeline.DefaultConfig()
	m := testManager(t, cfg)

	epoch := time.Now()
	sess, _ := m.GetOrCreate("flush", epoch)
	sess.OnFrame(timeline.RawEmotionFrame{
		Timestamp:    0.1,
		Scores:       map[string]float64{"Joy": 0.9},
		FaceDetected: true,
	}, epoch)

	summary, ok := sess.Flush(epoch.Add(400 * time.Millisecond))
	if !ok {
		t.Fatal("expected a flushed interval")
	}
	if summary.Duration() >= 1.0 {
		t.Fatalf("flushed interval should be shorter than a full interval, got %v", summary.Duration())
	}
	if _, ok := sess.Flush(epoch.Add(400 * time.Millisecond)); ok {
		t.Fatal("second flush at the same instant should report nothing pending")
	}
}

func TestDisposeRemovesSession(t *testing.T) {
	m := testManager(t, timeline.DefaultConfig())
	m.GetOrCreate("gone", time.Now())

	if _, ok := m.Dispose("gone"); !ok {
		t.Fatal("expected dispose to find the session")
	}
	if _, ok := m.Get("gone"); ok {
		t.Fatal("disposed session should be absent")
	}
	if _, ok := m.Dispose("gone"); ok {
		t.Fatal("double dispose should report missing")
	}
}

func TestIdleReap(t *testing.T) {
	cfg := timeline.DefaultConfig()
	var reaped []string
	m := NewManager(context.Background(), cfg, state.DefaultMapper(), 10*time.Millisecond, func(c *Context) {
		reaped = append(reaped, c.ID)
	}, testLogger())
	defer m.Close()

	m.GetOrCreate("idle", time.Now().Add(-time.Minute))
	m.reapExpired(time.Now())

	if len(reaped) != 1 || reaped[0] != "idle" {
		t.Fatalf("expected idle session reaped, got %v", reaped)
	}
	if m.Len() != 0 {
		t.Fatalf("expected empty manager, got %d sessions", m.Len())
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	cfg := timeline.DefaultConfig()
	m := testManager(t, cfg)

	epoch := time.Now()
	a, _ := m.GetOrCreate("a", epoch)
	b, _ := m.GetOrCreate("b", epoch)

	a.OnFrame(timeline.RawEmotionFrame{
		Timestamp:    0.1,
		Scores:       map[string]float64{"Joy": 0.9},
		FaceDetected: true,
	}, epoch)
	b.OnFrame(timeline.RawEmotionFrame{
		Timestamp:    0.1,
		Scores:       nil,
		FaceDetected: false,
	}, epoch)

	aDone, _ := a.Tick(epoch.Add(1200 * time.Millisecond))
	bDone, _ := b.Tick(epoch.Add(1200 * time.Millisecond))

	if len(aDone) != 1 || len(bDone) != 1 {
		t.Fatalf("each session should finalize its own interval, got %d and %d", len(aDone), len(bDone))
	}
	if bDone[0].FrameCount != 1 {
		t.Fatalf("frames must not leak across sessions, got %d", bDone[0].FrameCount)
	}
	if bDone[0].DominantState != timeline.NoSignalState {
		t.Fatalf("session b saw no faces, expected no-signal, got %q", bDone[0].DominantState)
	}
	if aDone[0].DominantState == timeline.NoSignalState {
		t.Fatalf("session a should have a mapped state")
	}
}
