package session

import (
	"sync"
	"time"

	"github.com/attunelabs/attune-core/internal/timeline"
)

// Context owns all per-session pipeline state: the interval aggregator,
// the speech aligner, and the rolling window. Nothing in here is shared
// across sessions; concurrent sessions only contend on the manager map.
type Context struct {
	ID string

	mu         sync.Mutex
	aggregator *timeline.Aggregator
	aligner    *timeline.Aligner
	window     *timeline.Window

	epoch    time.Time
	lastSeen time.Time

	intervals []timeline.IntervalSummary
}

func newContext(id string, cfg timeline.Config, mapper timeline.StateMapper, now time.Time) *Context {
	return &Context{
		ID:         id,
		aggregator: timeline.NewAggregator(cfg, mapper),
		aligner:    timeline.NewAligner(cfg),
		window:     timeline.NewWindow(cfg),
		epoch:      now,
		lastSeen:   now,
	}
}

// Now converts wall time to session seconds.
func (c *Context) Now(wall time.Time) float64 {
	return wall.Sub(c.epoch).Seconds()
}

// Epoch returns the wall time of session start.
func (c *Context) Epoch() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// LastSeen reports the wall time of the most recent input or tick with
// activity, used by the manager's idle sweep.
func (c *Context) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// OnFrame feeds a scored emotion frame into the aggregator.
func (c *Context) OnFrame(frame timeline.RawEmotionFrame, wall time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aggregator.AddFrame(frame)
	c.lastSeen = wall
}

// OnWord feeds a single timestamped word into the aligner.
func (c *Context) OnWord(text string, timestamp, confidence float64, wall time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aligner.AddWord(text, timestamp, confidence)
	c.lastSeen = wall
}

// OnUtterance feeds an utterance-level transcript into the aligner,
// distributing word timestamps across its bounds.
func (c *Context) OnUtterance(text string, start, end, confidence float64, wall time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aligner.AddUtterance(text, start, end, confidence)
	c.lastSeen = wall
}

// Tick advances the session clock. When the current interval has elapsed
// it is finalized, speech is attached, and the result is pushed into the
// window. The returned summaries are the intervals finalized by this tick
// (usually zero or one, more after a stall), and triggered reports whether
// the window requested an advice update.
func (c *Context) Tick(wall time.Time) (finalized []timeline.IntervalSummary, triggered bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := wall.Sub(c.epoch).Seconds()
	for c.aggregator.IntervalComplete(now) {
		summary := c.aggregator.Finalize(now)
		summary = c.aligner.AttachToInterval(summary)
		if c.window.Push(summary, now) {
			triggered = true
		}
		c.intervals = append(c.intervals, summary)
		finalized = append(finalized, summary)
	}
	return finalized, triggered
}

// Flush finalizes any partial interval at session end. ok is false when
// nothing was pending.
func (c *Context) Flush(wall time.Time) (timeline.IntervalSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := wall.Sub(c.epoch).Seconds()
	summary, ok := c.aggregator.Flush(now)
	if !ok {
		return timeline.IntervalSummary{}, false
	}
	summary = c.aligner.AttachToInterval(summary)
	c.window.Push(summary, now)
	c.intervals = append(c.intervals, summary)
	return summary, true
}

// Window exposes the rolling window for context building. Callers must
// treat the returned snapshot as read only.
func (c *Context) Window() (intervals []timeline.IntervalSummary, summary timeline.Summary, trends map[string]timeline.Trend) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window.GetWindow(), c.window.Summarize(), c.window.EmotionTrends()
}

// Stats reports session counters for the stats endpoint.
type Stats struct {
	SessionID      string    `json:"session_id"`
	StartedAt      time.Time `json:"started_at"`
	Intervals      int       `json:"intervals"`
	TriggersFired  int       `json:"triggers_fired"`
	PendingWords   int       `json:"pending_words"`
	WordsAttached  int       `json:"words_attached"`
	WordsExpired   int       `json:"words_expired"`
	FramesReceived int       `json:"frames_received"`
}

func (c *Context) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	attached, expired := c.aligner.Stats()
	frames := 0
	for _, iv := range c.intervals {
		frames += iv.FrameCount
	}
	return Stats{
		SessionID:      c.ID,
		StartedAt:      c.epoch,
		Intervals:      c.aggregator.IntervalCount(),
		TriggersFired:  c.window.TriggersFired(),
		PendingWords:   c.aligner.PendingCount(),
		WordsAttached:  attached,
		WordsExpired:   expired,
		FramesReceived: frames,
	}
}

// History returns all intervals finalized so far, oldest first. Used by
// the store writer at session close.
func (c *Context) History() []timeline.IntervalSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]timeline.IntervalSummary, len(c.intervals))
	copy(out, c.intervals)
	return out
}
