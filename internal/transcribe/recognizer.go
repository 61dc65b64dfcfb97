package transcribe

import (
	"context"
)

// WordTiming is one recognized word, offset in seconds from the start of
// the transcribed segment.
type WordTiming struct {
	Text       string
	Offset     float64
	Confidence float64
}

// TranscriptResult captures recognizer output. Words is optional; when a
// backend cannot produce word timings the service falls back to
// utterance-level bounds.
type TranscriptResult struct {
	Text       string
	Confidence float64
	Words      []WordTiming
}

// Recognizer abstracts STT backends.
type Recognizer interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int, channels int, final bool) (TranscriptResult, error)
}
