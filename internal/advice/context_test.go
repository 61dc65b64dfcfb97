package advice

import (
	"strings"
	"testing"

	"github.com/attunelabs/attune-core/internal/timeline"
)

func interval(start float64, state string, text string, silent bool) timeline.IntervalSummary {
	iv := timeline.IntervalSummary{
		Start:         start,
		End:           start + 1,
		DominantState: state,
		FullText:      text,
		Flags:         timeline.Flags{Silence: silent},
	}
	if text != "" {
		for i, w := range strings.Fields(text) {
			iv.Words = append(iv.Words, timeline.SpeechToken{Text: w, Timestamp: start + float64(i)*0.2})
		}
	}
	return iv
}

func TestBuildContextEmptyWindow(t *testing.T) {
	ctx := BuildContext(nil, timeline.Summary{}, nil)
	if !ctx.Insufficient {
		t.Fatal("expected insufficient-data context")
	}
	if ctx.Summary.DominantState != "neutral" {
		t.Fatalf("expected neutral placeholder, got %q", ctx.Summary.DominantState)
	}
	if ctx.Patterns.EngagementTrend != "stable" {
		t.Fatalf("expected stable trend, got %q", ctx.Patterns.EngagementTrend)
	}
}

func TestBuildContextWindowMeta(t *testing.T) {
	intervals := []timeline.IntervalSummary{
		interval(2, "baseline", "so the idea is", false),
		interval(3, "curious", "we aggregate everything", false),
		interval(4, "curious", "", true),
	}
	ctx := BuildContext(intervals, timeline.Summary{DominantState: "curious"}, nil)

	if ctx.TimeWindow.Start != 2 || ctx.TimeWindow.End != 5 {
		t.Fatalf("unexpected window bounds: %+v", ctx.TimeWindow)
	}
	if ctx.TimeWindow.Duration != 3 {
		t.Fatalf("expected 3s duration, got %v", ctx.TimeWindow.Duration)
	}
	if ctx.TimeWindow.IntervalCount != 3 {
		t.Fatalf("expected 3 intervals, got %d", ctx.TimeWindow.IntervalCount)
	}
	if len(ctx.Intervals) != 3 {
		t.Fatalf("expected 3 digests, got %d", len(ctx.Intervals))
	}
	if ctx.Intervals[0].WordCount != 4 {
		t.Fatalf("expected 4 words in first digest, got %d", ctx.Intervals[0].WordCount)
	}
}

func TestBuildContextFindsTransitions(t *testing.T) {
	intervals := []timeline.IntervalSummary{
		interval(0, "baseline", "", true),
		interval(1, "curious", "tell me more", false),
		interval(2, "curious", "", true),
		interval(3, "closed-off", "", true),
	}
	ctx := BuildContext(intervals, timeline.Summary{}, nil)

	transitions := ctx.Patterns.Transitions
	if len(transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(transitions))
	}
	if transitions[0].From != "baseline" || transitions[0].To != "curious" {
		t.Fatalf("unexpected first transition: %+v", transitions[0])
	}
	if transitions[0].Text != "tell me more" {
		t.Fatalf("transition should carry the spoken text, got %q", transitions[0].Text)
	}
	if transitions[1].To != "closed-off" {
		t.Fatalf("unexpected second transition: %+v", transitions[1])
	}
}

func TestBuildContextFindsShifts(t *testing.T) {
	up := interval(0, "curious", "", true)
	up.TopEmotions = []timeline.TopEmotion{{Name: "Interest", Smoothed: 0.6, Trend: timeline.TrendIncreasing}}
	down := interval(1, "curious", "", true)
	down.TopEmotions = []timeline.TopEmotion{{Name: "Interest", Smoothed: 0.4, Trend: timeline.TrendDecreasing}}

	ctx := BuildContext([]timeline.IntervalSummary{up, down}, timeline.Summary{}, nil)
	if len(ctx.Patterns.Shifts) != 1 {
		t.Fatalf("expected 1 shift, got %d", len(ctx.Patterns.Shifts))
	}
	shift := ctx.Patterns.Shifts[0]
	if shift.Emotion != "Interest" || shift.From != timeline.TrendIncreasing || shift.To != timeline.TrendDecreasing {
		t.Fatalf("unexpected shift: %+v", shift)
	}
}

func TestBuildContextSilencePeriods(t *testing.T) {
	intervals := []timeline.IntervalSummary{
		interval(0, "baseline", "hello", false),
		interval(1, "thinking", "", true),
		interval(2, "thinking", "", true),
		interval(3, "curious", "ok", false),
	}
	ctx := BuildContext(intervals, timeline.Summary{}, nil)

	periods := ctx.Patterns.SilencePeriods
	if len(periods) != 1 {
		t.Fatalf("expected 1 silence period, got %d", len(periods))
	}
	if periods[0].Duration != 2 {
		t.Fatalf("expected 2s of silence, got %v", periods[0].Duration)
	}
	if periods[0].State != "thinking" {
		t.Fatalf("expected thinking during silence, got %q", periods[0].State)
	}
}

func TestEngagementTrendDirection(t *testing.T) {
	rising := []timeline.IntervalSummary{
		interval(0, "baseline", "", true),
		interval(1, "baseline", "", true),
		interval(2, "curious", "", true),
		interval(3, "enthusiastic", "", true),
	}
	if got := BuildContext(rising, timeline.Summary{}, nil).Patterns.EngagementTrend; got != "increasing" {
		t.Fatalf("expected increasing, got %q", got)
	}

	falling := []timeline.IntervalSummary{
		interval(0, "enthusiastic", "", true),
		interval(1, "amused", "", true),
		interval(2, "baseline", "", true),
		interval(3, "closed-off", "", true),
	}
	if got := BuildContext(falling, timeline.Summary{}, nil).Patterns.EngagementTrend; got != "decreasing" {
		t.Fatalf("expected decreasing, got %q", got)
	}

	flat := []timeline.IntervalSummary{
		interval(0, "curious", "", true),
		interval(1, "curious", "", true),
	}
	if got := BuildContext(flat, timeline.Summary{}, nil).Patterns.EngagementTrend; got != "stable" {
		t.Fatalf("expected stable, got %q", got)
	}
}

func TestFormatForPromptSections(t *testing.T) {
	intervals := []timeline.IntervalSummary{
		interval(0, "baseline", "here is the plan", false),
		interval(1, "curious", "", true),
	}
	intervals[1].TopEmotions = []timeline.TopEmotion{
		{Name: "Interest", Smoothed: 0.62, Trend: timeline.TrendIncreasing},
	}
	ctx := BuildContext(intervals, timeline.Summary{DominantState: "curious", TotalWords: 4}, nil)

	out := FormatForPrompt(ctx)
	for _, want := range []string{
		"=== SPEAKER ANALYSIS",
		"Dominant State: CURIOUS",
		"Words Spoken: 4",
		"State Transitions:",
		"baseline to curious",
		"Interest(0.62)",
		`said: "here is the plan"`,
		"[silence]",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("prompt missing %q:\n%s", want, out)
		}
	}
}

func TestFormatForPromptInsufficient(t *testing.T) {
	out := FormatForPrompt(BuildContext(nil, timeline.Summary{}, nil))
	if !strings.Contains(out, "Insufficient data") {
		t.Fatalf("expected insufficient-data prompt, got %q", out)
	}
}
