package timeline

import "testing"

func interval(start float64, state string, top ...TopEmotion) IntervalSummary {
	return IntervalSummary{
		Start:         start,
		End:           start + 1,
		DominantState: state,
		TopEmotions:   top,
		FrameCount:    3,
	}
}

func fillWindow(w *Window, state string) float64 {
	now := 0.0
	for i := 0; i < DefaultConfig().WindowCapacity; i++ {
		now = float64(i + 1)
		w.Push(interval(float64(i), state), now)
	}
	return now
}

func TestColdStartTriggersOnFirstFill(t *testing.T) {
	w := NewWindow(DefaultConfig())
	for i := 0; i < 4; i++ {
		if w.Push(interval(float64(i), "baseline"), float64(i+1)) {
			t.Fatalf("push %d should not trigger before window is full", i)
		}
	}
	if !w.Push(interval(4, "baseline"), 5) {
		t.Fatal("filling the window the first time must trigger")
	}
}

func TestNoRedundantTriggerAfterColdStart(t *testing.T) {
	w := NewWindow(DefaultConfig())
	now := fillWindow(w, "baseline")

	// Same state, no trends, zero elapsed time: stay quiet.
	if w.Push(interval(now, "baseline"), now) {
		t.Fatal("unchanged interval immediately after cold start must not trigger")
	}
}

func TestElapsedTimeTriggers(t *testing.T) {
	cfg := DefaultConfig()
	w := NewWindow(cfg)
	now := fillWindow(w, "baseline")

	if w.Push(interval(now, "baseline"), now+cfg.UpdateInterval-0.1) {
		t.Fatal("not enough time elapsed")
	}
	if !w.Push(interval(now+1, "baseline"), now+cfg.UpdateInterval) {
		t.Fatal("update interval elapsed, expected trigger")
	}
}

func TestStateTransitionTriggersEarly(t *testing.T) {
	w := NewWindow(DefaultConfig())
	now := fillWindow(w, "baseline")

	if !w.Push(interval(now, "curious"), now+0.1) {
		t.Fatal("state transition should trigger regardless of elapsed time")
	}
}

func TestSustainedTrendTriggersEarly(t *testing.T) {
	w := NewWindow(DefaultConfig())
	now := fillWindow(w, "baseline")

	rising := TopEmotion{Name: "Interest", Smoothed: 0.6, Trend: TrendIncreasing}
	if w.Push(interval(now, "baseline", rising), now+0.1) {
		t.Fatal("single-interval trend is noise, not a trigger")
	}
	risingMore := TopEmotion{Name: "Interest", Smoothed: 0.7, Trend: TrendIncreasing}
	if !w.Push(interval(now+1, "baseline", risingMore), now+0.2) {
		t.Fatal("trend sustained for two intervals should trigger")
	}
}

func TestTrendFlipIsNotSustained(t *testing.T) {
	w := NewWindow(DefaultConfig())
	now := fillWindow(w, "baseline")

	up := TopEmotion{Name: "Joy", Smoothed: 0.6, Trend: TrendIncreasing}
	down := TopEmotion{Name: "Joy", Smoothed: 0.5, Trend: TrendDecreasing}
	w.Push(interval(now, "baseline", up), now+0.1)
	if w.Push(interval(now+1, "baseline", down), now+0.2) {
		t.Fatal("opposite directions are not a sustained trend")
	}
}

func TestWindowCapacityInvariant(t *testing.T) {
	cfg := DefaultConfig()
	w := NewWindow(cfg)
	for i := 0; i < cfg.WindowCapacity+3; i++ {
		w.Push(interval(float64(i), "baseline"), float64(i+1))
	}

	got := w.GetWindow()
	if len(got) != cfg.WindowCapacity {
		t.Fatalf("expected %d intervals, got %d", cfg.WindowCapacity, len(got))
	}
	for i, iv := range got {
		want := float64(i + 3)
		if iv.Start != want {
			t.Fatalf("expected most recent intervals oldest-first, got start %.1f at %d", iv.Start, i)
		}
	}
}

func TestSummarizeMajorityVoteWithRecencyTiebreak(t *testing.T) {
	w := NewWindow(DefaultConfig())
	states := []string{"curious", "curious", "baseline", "thinking", "thinking"}
	for i, st := range states {
		iv := interval(float64(i), st)
		iv.Words = []SpeechToken{{Text: "w", Timestamp: float64(i)}}
		w.Push(iv, float64(i+1))
	}

	s := w.Summarize()
	if s.DominantState != "thinking" {
		t.Fatalf("tie must break toward the most recent state, got %q", s.DominantState)
	}
	if s.TotalWords != 5 || s.TotalFrames != 15 {
		t.Fatalf("unexpected totals words=%d frames=%d", s.TotalWords, s.TotalFrames)
	}
	if s.StateDistribution["curious"] != 2 || s.StateDistribution["thinking"] != 2 || s.StateDistribution["baseline"] != 1 {
		t.Fatalf("unexpected distribution %v", s.StateDistribution)
	}
}

func TestSummarizeEmptyWindow(t *testing.T) {
	w := NewWindow(DefaultConfig())
	s := w.Summarize()
	if s.DominantState != "neutral" || s.TotalWords != 0 {
		t.Fatalf("empty window should summarize to neutral, got %+v", s)
	}
}

func TestEmotionTrendsCompareEarliestToLatest(t *testing.T) {
	w := NewWindow(DefaultConfig())
	smoothed := []float64{0.2, 0.3, 0.4, 0.5, 0.6}
	for i, v := range smoothed {
		w.Push(interval(float64(i), "baseline",
			TopEmotion{Name: "Interest", Smoothed: v, Trend: TrendStable},
			TopEmotion{Name: "Calmness", Smoothed: 0.5, Trend: TrendStable},
		), float64(i+1))
	}
	w.Push(interval(5, "baseline",
		TopEmotion{Name: "Boredom", Smoothed: 0.4, Trend: TrendNew},
	), 6)

	trends := w.EmotionTrends()
	if trends["Interest"] != TrendIncreasing {
		t.Fatalf("Interest rose 0.2->0.6, got %s", trends["Interest"])
	}
	if trends["Calmness"] != TrendStable {
		t.Fatalf("Calmness was flat, got %s", trends["Calmness"])
	}
	if trends["Boredom"] != TrendStable {
		t.Fatalf("single observation defaults to stable, got %s", trends["Boredom"])
	}
}
