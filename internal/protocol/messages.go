package protocol

import "time"

// Bus subjects. Session-scoped subjects carry the session id as the last
// token, e.g. "vision.frame.<session_id>".
const (
	SubjectVisionCapturePrefix = "vision.capture"
	SubjectVisionFramePrefix   = "vision.frame"
	SubjectAudioFramePrefix    = "audio.frame"
	SubjectTranscriptPartial   = "stt.text.partial"
	SubjectTranscriptFinal     = "stt.text.final"
	SubjectIntervalPrefix      = "coach.interval"
	SubjectAdvicePrefix        = "coach.advice"
	SubjectSessionClosed       = "session.closed"
)

// VisionCapture carries a raw camera frame from an edge device, for
// deployments where emotion scoring runs server side.
type VisionCapture struct {
	SessionID string  `json:"session_id"`
	Timestamp float64 `json:"timestamp"`
	Image     []byte  `json:"image"`
	MimeType  string  `json:"mime_type"`
}

// EmotionFrame is a scored vision frame: per-emotion scores for the most
// prominent face, stamped with seconds since session start.
type EmotionFrame struct {
	SessionID    string             `json:"session_id"`
	Timestamp    float64            `json:"timestamp"`
	Scores       map[string]float64 `json:"scores"`
	FaceDetected bool               `json:"face_detected"`
}

// AudioFrame represents PCM audio data streamed from edge devices.
type AudioFrame struct {
	SessionID  string  `json:"session_id"`
	Sequence   int     `json:"sequence"`
	Timestamp  float64 `json:"timestamp"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	PCM        []byte  `json:"pcm"`
	Final      bool    `json:"final"`
}

// Transcript represents STT output broadcast on the bus. Start and End
// bound the utterance in session seconds; Words is optional per-word
// timing when the recognizer provides it.
type Transcript struct {
	SessionID  string           `json:"session_id"`
	Text       string           `json:"text"`
	Partial    bool             `json:"partial"`
	Start      float64          `json:"start"`
	End        float64          `json:"end"`
	Confidence float64          `json:"confidence,omitempty"`
	Words      []TranscriptWord `json:"words,omitempty"`
}

// TranscriptWord is a single recognized word with its own timestamp.
type TranscriptWord struct {
	Text       string  `json:"text"`
	Timestamp  float64 `json:"timestamp"`
	Confidence float64 `json:"confidence,omitempty"`
}

// IntervalEvent announces a finalized aggregation interval.
type IntervalEvent struct {
	SessionID     string    `json:"session_id"`
	Start         float64   `json:"start"`
	End           float64   `json:"end"`
	DominantState string    `json:"dominant_state"`
	FrameCount    int       `json:"frame_count"`
	WordCount     int       `json:"word_count"`
	Emitted       time.Time `json:"emitted"`
}

// AdviceEvent carries generated coaching advice for a session.
type AdviceEvent struct {
	SessionID string    `json:"session_id"`
	Advice    string    `json:"advice"`
	TraceID   string    `json:"trace_id"`
	Cached    bool      `json:"cached"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionClosed signals that a client ended a session and remaining
// state should be flushed.
type SessionClosed struct {
	SessionID string    `json:"session_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
