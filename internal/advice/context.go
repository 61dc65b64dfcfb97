package advice

import (
	"math"

	"github.com/attunelabs/attune-core/internal/state"
	"github.com/attunelabs/attune-core/internal/timeline"
)

// TimeWindowMeta describes the span the context covers.
type TimeWindowMeta struct {
	Start         float64 `json:"start_time"`
	End           float64 `json:"end_time"`
	Duration      float64 `json:"duration_seconds"`
	IntervalCount int     `json:"interval_count"`
}

// EmotionDigest is one compact ranked-emotion entry.
type EmotionDigest struct {
	Name  string         `json:"name"`
	Score float64        `json:"score"`
	Trend timeline.Trend `json:"trend"`
}

// IntervalDigest is the compact per-interval view fed to the generator.
type IntervalDigest struct {
	Timestamp float64         `json:"timestamp"`
	State     string          `json:"state"`
	Emotions  []EmotionDigest `json:"emotions"`
	Text      string          `json:"text"`
	WordCount int             `json:"word_count"`
	Flags     timeline.Flags  `json:"flags"`
}

// Transition records a dominant-state change, anchored to whatever was
// spoken as it happened.
type Transition struct {
	From      string  `json:"from_state"`
	To        string  `json:"to_state"`
	Timestamp float64 `json:"timestamp"`
	Text      string  `json:"text,omitempty"`
}

// Shift records an emotion whose trend flipped direction mid-window.
type Shift struct {
	Emotion   string         `json:"emotion"`
	From      timeline.Trend `json:"from_trend"`
	To        timeline.Trend `json:"to_trend"`
	Timestamp float64        `json:"timestamp"`
	Text      string         `json:"text,omitempty"`
}

// SilencePeriod is a run of consecutive silent intervals.
type SilencePeriod struct {
	Start    float64 `json:"start_timestamp"`
	End      float64 `json:"end_timestamp"`
	Duration float64 `json:"duration"`
	State    string  `json:"state_during_silence"`
}

// Patterns gathers the derived events that make advice feel grounded.
type Patterns struct {
	Transitions     []Transition    `json:"state_transitions"`
	Shifts          []Shift         `json:"emotion_shifts"`
	SilencePeriods  []SilencePeriod `json:"silence_periods"`
	EngagementTrend string          `json:"engagement_trend"`
}

// Context is the structured object handed to the advice generator and
// surfaced to callers for display or logging.
type Context struct {
	TimeWindow   TimeWindowMeta            `json:"time_window"`
	Intervals    []IntervalDigest          `json:"intervals"`
	Summary      timeline.Summary          `json:"summary"`
	Trends       map[string]timeline.Trend `json:"emotion_trends"`
	Patterns     Patterns                  `json:"patterns"`
	Insufficient bool                      `json:"insufficient_data,omitempty"`
}

// topEmotionsPerDigest bounds how many ranked emotions each compact interval
// summary keeps.
const topEmotionsPerDigest = 2

// BuildContext assembles the structured advice context from the window's
// contents and derived statistics. An empty interval set yields a minimal
// insufficient-data context rather than an error.
func BuildContext(intervals []timeline.IntervalSummary, summary timeline.Summary, trends map[string]timeline.Trend) Context {
	if len(intervals) == 0 {
		return Context{
			Summary:      timeline.Summary{DominantState: "neutral", StateDistribution: map[string]int{}},
			Trends:       map[string]timeline.Trend{},
			Patterns:     Patterns{EngagementTrend: "stable"},
			Insufficient: true,
		}
	}

	digests := make([]IntervalDigest, 0, len(intervals))
	for _, iv := range intervals {
		digests = append(digests, digestInterval(iv))
	}

	return Context{
		TimeWindow: TimeWindowMeta{
			Start:         intervals[0].Start,
			End:           intervals[len(intervals)-1].End,
			Duration:      intervals[len(intervals)-1].End - intervals[0].Start,
			IntervalCount: len(intervals),
		},
		Intervals: digests,
		Summary:   summary,
		Trends:    trends,
		Patterns: Patterns{
			Transitions:     findTransitions(intervals),
			Shifts:          findShifts(intervals),
			SilencePeriods:  findSilencePeriods(intervals),
			EngagementTrend: engagementTrend(intervals),
		},
	}
}

func digestInterval(iv timeline.IntervalSummary) IntervalDigest {
	n := len(iv.TopEmotions)
	if n > topEmotionsPerDigest {
		n = topEmotionsPerDigest
	}
	emotions := make([]EmotionDigest, 0, n)
	for _, e := range iv.TopEmotions[:n] {
		emotions = append(emotions, EmotionDigest{
			Name:  e.Name,
			Score: round2(e.Smoothed),
			Trend: e.Trend,
		})
	}
	return IntervalDigest{
		Timestamp: round1(iv.Midpoint()),
		State:     iv.DominantState,
		Emotions:  emotions,
		Text:      iv.FullText,
		WordCount: len(iv.Words),
		Flags:     iv.Flags,
	}
}

func findTransitions(intervals []timeline.IntervalSummary) []Transition {
	var transitions []Transition
	for i := 1; i < len(intervals); i++ {
		prev, curr := intervals[i-1], intervals[i]
		if prev.DominantState == curr.DominantState {
			continue
		}
		transitions = append(transitions, Transition{
			From:      prev.DominantState,
			To:        curr.DominantState,
			Timestamp: round1(curr.Midpoint()),
			Text:      curr.FullText,
		})
	}
	return transitions
}

// findShifts reports emotions whose directional trend reversed between two
// appearances in the window's rankings.
func findShifts(intervals []timeline.IntervalSummary) []Shift {
	lastDirection := make(map[string]timeline.Trend)
	var shifts []Shift
	for _, iv := range intervals {
		for _, e := range iv.TopEmotions {
			if e.Trend != timeline.TrendIncreasing && e.Trend != timeline.TrendDecreasing {
				continue
			}
			if prev, ok := lastDirection[e.Name]; ok && prev != e.Trend {
				shifts = append(shifts, Shift{
					Emotion:   e.Name,
					From:      prev,
					To:        e.Trend,
					Timestamp: round1(iv.Midpoint()),
					Text:      iv.FullText,
				})
			}
			lastDirection[e.Name] = e.Trend
		}
	}
	return shifts
}

func findSilencePeriods(intervals []timeline.IntervalSummary) []SilencePeriod {
	var periods []SilencePeriod
	var open *SilencePeriod
	for _, iv := range intervals {
		if iv.Flags.Silence {
			if open == nil {
				open = &SilencePeriod{
					Start: round1(iv.Midpoint()),
					State: iv.DominantState,
				}
			}
			open.End = round1(iv.Midpoint())
			open.Duration += iv.Duration()
			continue
		}
		if open != nil {
			periods = append(periods, *open)
			open = nil
		}
	}
	if open != nil {
		periods = append(periods, *open)
	}
	return periods
}

// engagementTrend compares how engaged the dominant states were in the
// second half of the window versus the first.
func engagementTrend(intervals []timeline.IntervalSummary) string {
	if len(intervals) < 2 {
		return "stable"
	}
	mid := len(intervals) / 2
	first := averageEngagement(intervals[:mid])
	second := averageEngagement(intervals[mid:])

	diff := second - first
	switch {
	case diff > 0.5:
		return "increasing"
	case diff < -0.5:
		return "decreasing"
	default:
		return "stable"
	}
}

func averageEngagement(intervals []timeline.IntervalSummary) float64 {
	var total float64
	for _, iv := range intervals {
		total += float64(state.Engagement(iv.DominantState))
	}
	return total / float64(len(intervals))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
