package timeline

// Summary holds derived statistics over the window's intervals.
type Summary struct {
	DominantState     string         `json:"dominant_state"`
	TotalWords        int            `json:"total_words"`
	TotalFrames       int            `json:"total_frames"`
	StateDistribution map[string]int `json:"state_distribution"`
}

// Window keeps the most recent intervals and decides when accumulated signal
// justifies an advice-generation cycle. Trigger conditions are evaluated in
// fixed order: cold-start fill, elapsed cadence, state transition, sustained
// significant trend.
type Window struct {
	cfg       Config
	intervals []IntervalSummary

	filledOnce  bool
	hasTrigger  bool
	lastTrigger float64

	totalIntervals int
	triggersFired  int
}

// NewWindow builds a rolling window for one session.
func NewWindow(cfg Config) *Window {
	return &Window{cfg: cfg}
}

// Push appends a finalized interval, evicting the oldest past capacity, and
// reports whether an advice cycle should fire now.
func (w *Window) Push(summary IntervalSummary, now float64) bool {
	w.intervals = append(w.intervals, summary)
	if len(w.intervals) > w.cfg.WindowCapacity {
		w.intervals = w.intervals[1:]
	}
	w.totalIntervals++

	if w.shouldTrigger(now) {
		w.hasTrigger = true
		w.lastTrigger = now
		w.triggersFired++
		return true
	}
	return false
}

func (w *Window) shouldTrigger(now float64) bool {
	if len(w.intervals) < w.cfg.WindowCapacity {
		return false
	}

	// The first full window always fires so the opening seconds of a
	// session are not advice-silent.
	if !w.filledOnce {
		w.filledOnce = true
		return true
	}

	if w.hasTrigger && now-w.lastTrigger >= w.cfg.UpdateInterval {
		return true
	}

	if len(w.intervals) >= 2 {
		newest := w.intervals[len(w.intervals)-1]
		prev := w.intervals[len(w.intervals)-2]
		if newest.DominantState != prev.DominantState {
			return true
		}
		if w.hasSustainedTrend(newest, prev) {
			return true
		}
	}

	return false
}

// hasSustainedTrend guards against triggering on single-interval noise: the
// newest interval's directional trend must also have held, in the same
// direction, in the interval before it.
func (w *Window) hasSustainedTrend(newest, prev IntervalSummary) bool {
	for _, e := range newest.TopEmotions {
		if e.Trend != TrendIncreasing && e.Trend != TrendDecreasing {
			continue
		}
		for _, p := range prev.TopEmotions {
			if p.Name == e.Name && p.Trend == e.Trend {
				return true
			}
		}
	}
	return false
}

// GetWindow returns a copy of the buffer, oldest first.
func (w *Window) GetWindow() []IntervalSummary {
	out := make([]IntervalSummary, len(w.intervals))
	copy(out, w.intervals)
	return out
}

// Len reports the current buffer size.
func (w *Window) Len() int {
	return len(w.intervals)
}

// TotalIntervals reports intervals pushed over the session lifetime.
func (w *Window) TotalIntervals() int {
	return w.totalIntervals
}

// TriggersFired reports advice cycles triggered over the session lifetime.
func (w *Window) TriggersFired() int {
	return w.triggersFired
}

// Summarize computes window-level statistics. The dominant state is the
// majority vote across intervals, with ties broken by the most recently
// seen state.
func (w *Window) Summarize() Summary {
	s := Summary{
		DominantState:     "neutral",
		StateDistribution: make(map[string]int),
	}
	if len(w.intervals) == 0 {
		return s
	}

	lastSeen := make(map[string]int)
	for i, interval := range w.intervals {
		s.StateDistribution[interval.DominantState]++
		lastSeen[interval.DominantState] = i
		s.TotalWords += len(interval.Words)
		s.TotalFrames += interval.FrameCount
	}

	best := ""
	for state, count := range s.StateDistribution {
		if best == "" {
			best = state
			continue
		}
		bestCount := s.StateDistribution[best]
		if count > bestCount || (count == bestCount && lastSeen[state] > lastSeen[best]) {
			best = state
		}
	}
	s.DominantState = best
	return s
}

// EmotionTrends determines an overall direction for every emotion appearing
// in any interval's ranking, comparing its earliest smoothed score in the
// window to its latest.
func (w *Window) EmotionTrends() map[string]Trend {
	type span struct {
		first, last float64
		seen        int
	}
	spans := make(map[string]*span)
	for _, interval := range w.intervals {
		for _, e := range interval.TopEmotions {
			sp, ok := spans[e.Name]
			if !ok {
				sp = &span{first: e.Smoothed}
				spans[e.Name] = sp
			}
			sp.last = e.Smoothed
			sp.seen++
		}
	}

	trends := make(map[string]Trend, len(spans))
	for name, sp := range spans {
		diff := sp.last - sp.first
		switch {
		case sp.seen < 2:
			trends[name] = TrendStable
		case diff > w.cfg.TrendThreshold:
			trends[name] = TrendIncreasing
		case diff < -w.cfg.TrendThreshold:
			trends[name] = TrendDecreasing
		default:
			trends[name] = TrendStable
		}
	}
	return trends
}
