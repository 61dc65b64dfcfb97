package timeline

import (
	"fmt"
	"sort"
)

// Aggregator folds an irregular stream of per-frame emotion readings into
// one IntervalSummary per fixed time window. Smoothing state (the EMA and
// the previous interval's ranking) persists across intervals for the whole
// session so trends have memory.
type Aggregator struct {
	cfg    Config
	states StateMapper

	started bool
	start   float64
	frames  []RawEmotionFrame

	ema       map[string]float64
	prevTop   []TopEmotion
	prevState string

	intervalCount int
}

// NewAggregator builds an aggregator for one session. The mapper is the
// pluggable emotion-to-state policy applied to each interval's full averaged
// score set.
func NewAggregator(cfg Config, mapper StateMapper) *Aggregator {
	return &Aggregator{
		cfg:    cfg,
		states: mapper,
		ema:    make(map[string]float64),
	}
}

// AddFrame appends a frame to the currently open interval. The first frame
// of a session opens the interval at the frame's timestamp; after that,
// interval boundaries advance strictly by IntervalDuration with no gaps.
// Frames without a detected face still count toward coverage.
func (a *Aggregator) AddFrame(frame RawEmotionFrame) {
	if !a.started {
		a.started = true
		a.start = frame.Timestamp
	}
	a.frames = append(a.frames, frame)
}

// IntervalComplete reports whether the open interval has spanned its full
// duration at the given time. Pure query.
func (a *Aggregator) IntervalComplete(now float64) bool {
	if !a.started {
		return false
	}
	return now-a.start >= a.cfg.IntervalDuration
}

// IntervalCount returns how many intervals have been finalized this session.
func (a *Aggregator) IntervalCount() int {
	return a.intervalCount
}

// Finalize closes the open interval and returns its summary. Calling it
// before IntervalComplete is a caller bug and panics; use Flush at session
// end for a short final interval.
func (a *Aggregator) Finalize(now float64) IntervalSummary {
	if !a.IntervalComplete(now) {
		panic(fmt.Sprintf("timeline: finalize called at %.3f before interval ending %.3f is complete",
			now, a.start+a.cfg.IntervalDuration))
	}
	return a.finalize(a.start + a.cfg.IntervalDuration)
}

// Flush closes whatever is buffered as a final, possibly short, interval.
// Returns false when no interval was ever opened.
func (a *Aggregator) Flush(now float64) (IntervalSummary, bool) {
	if !a.started {
		return IntervalSummary{}, false
	}
	if now <= a.start {
		return IntervalSummary{}, false
	}
	return a.finalize(now), true
}

func (a *Aggregator) finalize(end float64) IntervalSummary {
	averages, faces := a.averageScores()

	for name, mean := range averages {
		prev, ok := a.ema[name]
		if !ok {
			a.ema[name] = mean
			continue
		}
		a.ema[name] = a.cfg.EMAAlpha*mean + (1-a.cfg.EMAAlpha)*prev
	}

	var top []TopEmotion
	var state string
	if faces == 0 {
		state = NoSignalState
	} else {
		top = a.rankTop(averages)
		state = a.states.Map(averages)
	}

	summary := IntervalSummary{
		Start:         a.start,
		End:           end,
		TopEmotions:   top,
		DominantState: state,
		FrameCount:    len(a.frames),
		FacesDetected: faces,
		Flags: Flags{
			HighConfidence:   len(a.frames) > 0 && float64(faces)/float64(len(a.frames)) >= 0.8,
			StateTransition:  a.prevState != "" && state != a.prevState,
			SignificantShift: hasDirectionalTrend(top),
		},
	}

	a.prevTop = top
	a.prevState = state
	a.frames = a.frames[:0]
	a.start = end
	a.intervalCount++

	return summary
}

// averageScores computes the arithmetic mean per emotion across frames with
// a detected face. Faceless frames contribute to coverage only.
func (a *Aggregator) averageScores() (map[string]float64, int) {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	faces := 0
	for _, frame := range a.frames {
		if !frame.FaceDetected {
			continue
		}
		faces++
		for name, score := range frame.Scores {
			sums[name] += score
			counts[name]++
		}
	}
	averages := make(map[string]float64, len(sums))
	for name, sum := range sums {
		averages[name] = sum / float64(counts[name])
	}
	return averages, faces
}

func (a *Aggregator) rankTop(averages map[string]float64) []TopEmotion {
	names := make([]string, 0, len(a.ema))
	for name := range a.ema {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if a.ema[names[i]] != a.ema[names[j]] {
			return a.ema[names[i]] > a.ema[names[j]]
		}
		return names[i] < names[j]
	})

	k := a.cfg.TopK
	if k > len(names) {
		k = len(names)
	}
	top := make([]TopEmotion, 0, k)
	for _, name := range names[:k] {
		top = append(top, TopEmotion{
			Name:       name,
			RawAverage: averages[name],
			Smoothed:   a.ema[name],
			Trend:      a.trendFor(name),
		})
	}
	return top
}

func (a *Aggregator) trendFor(name string) Trend {
	var prev *TopEmotion
	for i := range a.prevTop {
		if a.prevTop[i].Name == name {
			prev = &a.prevTop[i]
			break
		}
	}
	if prev == nil {
		return TrendNew
	}
	diff := a.ema[name] - prev.Smoothed
	switch {
	case diff > a.cfg.TrendThreshold:
		return TrendIncreasing
	case diff < -a.cfg.TrendThreshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func hasDirectionalTrend(top []TopEmotion) bool {
	for _, e := range top {
		if e.Trend == TrendIncreasing || e.Trend == TrendDecreasing {
			return true
		}
	}
	return false
}
