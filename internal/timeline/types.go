package timeline

// Trend describes the direction of an emotion's smoothed score between
// consecutive intervals.
type Trend string

const (
	TrendNew        Trend = "new"
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// NoSignalState is the dominant state reported for intervals where no face
// was detected in any frame. Absent data is modeled, not treated as an error.
const NoSignalState = "no-signal"

// RawEmotionFrame is one classifier result for one video frame. Timestamps
// are seconds on the session's monotonic clock.
type RawEmotionFrame struct {
	Timestamp    float64            `json:"timestamp"`
	Scores       map[string]float64 `json:"scores"`
	FaceDetected bool               `json:"face_detected"`
}

// SpeechToken is one transcribed word with a point-in-time estimate of when
// it was spoken.
type SpeechToken struct {
	Text       string  `json:"text"`
	Timestamp  float64 `json:"timestamp"`
	Confidence float64 `json:"confidence"`
}

// TopEmotion is one entry of an interval's ranked emotion list.
type TopEmotion struct {
	Name       string  `json:"name"`
	RawAverage float64 `json:"raw_average"`
	Smoothed   float64 `json:"smoothed_score"`
	Trend      Trend   `json:"trend"`
}

// Flags carries per-interval quality and event markers.
type Flags struct {
	HighConfidence   bool `json:"high_confidence"`
	StateTransition  bool `json:"state_transition"`
	SignificantShift bool `json:"significant_shift"`
	Silence          bool `json:"silence"`
}

// IntervalSummary is the finalized unit produced once per elapsed window.
// The span is half-open [Start, End). Immutable after creation; the aligner
// returns an enriched copy rather than mutating in place.
type IntervalSummary struct {
	Start         float64       `json:"interval_start"`
	End           float64       `json:"interval_end"`
	TopEmotions   []TopEmotion  `json:"top_emotions"`
	DominantState string        `json:"dominant_state"`
	FrameCount    int           `json:"frame_count"`
	FacesDetected int           `json:"faces_detected"`
	Words         []SpeechToken `json:"words"`
	FullText      string        `json:"full_text"`
	Flags         Flags         `json:"flags"`
}

// Duration returns the interval's span in seconds.
func (s IntervalSummary) Duration() float64 {
	return s.End - s.Start
}

// Midpoint is the representative timestamp used in formatted output.
func (s IntervalSummary) Midpoint() float64 {
	return s.Start + (s.End-s.Start)/2
}

// StateMapper derives a coarse categorical state from a full set of averaged
// emotion scores. Implementations are priority-ordered rule tables with a
// guaranteed catch-all default.
type StateMapper interface {
	Map(scores map[string]float64) string
}

// Config carries the tuning constants for the aggregation pipeline. A single
// immutable value is constructed at session start and threaded through every
// component's constructor.
type Config struct {
	IntervalDuration float64
	EMAAlpha         float64
	TopK             int
	WindowCapacity   int
	UpdateInterval   float64
	TrendThreshold   float64
	// Lookback lets words slightly older than an interval's start still
	// attach, absorbing transcription latency. Zero keeps strict bounds.
	Lookback float64
	// SilenceZeroWords marks an interval silent iff no words attached.
	SilenceZeroWords bool
}

// DefaultConfig returns the tuning used in production sessions.
func DefaultConfig() Config {
	return Config{
		IntervalDuration: 1.0,
		EMAAlpha:         0.3,
		TopK:             3,
		WindowCapacity:   5,
		UpdateInterval:   4.5,
		TrendThreshold:   0.05,
		Lookback:         0,
		SilenceZeroWords: true,
	}
}
