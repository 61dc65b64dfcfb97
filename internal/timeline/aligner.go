package timeline

import (
	"sort"
	"strings"
)

// Aligner attaches independently-timestamped speech tokens to finalized
// intervals. Tokens normally arrive in order, but insertion keeps the
// pending queue sorted so out-of-order arrival cannot corrupt alignment.
type Aligner struct {
	cfg     Config
	pending []SpeechToken

	wordsAttached int
	wordsExpired  int
}

// NewAligner builds an aligner for one session.
func NewAligner(cfg Config) *Aligner {
	return &Aligner{cfg: cfg}
}

// AddWord queues one transcribed word at its sorted position.
func (al *Aligner) AddWord(text string, timestamp, confidence float64) {
	token := SpeechToken{Text: text, Timestamp: timestamp, Confidence: confidence}
	i := sort.Search(len(al.pending), func(i int) bool {
		return al.pending[i].Timestamp > timestamp
	})
	al.pending = append(al.pending, SpeechToken{})
	copy(al.pending[i+1:], al.pending[i:])
	al.pending[i] = token
}

// AddUtterance splits whitespace-delimited text and distributes word
// timestamps evenly across [start, end). Used when the transcription
// service reports whole utterances with coarse bounds.
func (al *Aligner) AddUtterance(text string, start, end, confidence float64) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return
	}
	step := (end - start) / float64(len(words))
	for i, word := range words {
		al.AddWord(word, start+float64(i)*step, confidence)
	}
}

// AttachToInterval consumes pending words falling inside the summary's span
// and returns a copy with Words, FullText, and the silence flag populated.
// Words at or past the interval's end stay pending for a future interval;
// words older than the start (minus any configured lookback) are expired and
// dropped so a video outage cannot grow the backlog without bound.
func (al *Aligner) AttachToInterval(summary IntervalSummary) IntervalSummary {
	cutoff := summary.Start - al.cfg.Lookback

	var matched []SpeechToken
	remaining := al.pending[:0]
	for _, token := range al.pending {
		switch {
		case token.Timestamp >= summary.End:
			remaining = append(remaining, token)
		case token.Timestamp >= cutoff:
			matched = append(matched, token)
		default:
			al.wordsExpired++
		}
	}
	al.pending = remaining
	al.wordsAttached += len(matched)

	texts := make([]string, len(matched))
	for i, token := range matched {
		texts[i] = token.Text
	}

	summary.Words = matched
	summary.FullText = strings.Join(texts, " ")
	if al.cfg.SilenceZeroWords {
		summary.Flags.Silence = len(matched) == 0
	}
	return summary
}

// PendingCount reports words waiting for a future interval.
func (al *Aligner) PendingCount() int {
	return len(al.pending)
}

// Stats returns cumulative attached and expired word counts.
func (al *Aligner) Stats() (attached, expired int) {
	return al.wordsAttached, al.wordsExpired
}
