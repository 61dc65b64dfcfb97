package advice

import (
	"fmt"
	"strings"
)

// FormatForPrompt renders the context as a fixed-layout text block sized for
// a short prompt budget. Sparse data drops sections instead of emitting
// empty bullets.
func FormatForPrompt(ctx Context) string {
	if ctx.Insufficient || len(ctx.Intervals) == 0 {
		return "=== SPEAKER ANALYSIS ===\nInsufficient data: no completed intervals yet."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== SPEAKER ANALYSIS (last %.0f seconds) ===\n\n", ctx.TimeWindow.Duration)
	fmt.Fprintf(&b, "Dominant State: %s\n", strings.ToUpper(ctx.Summary.DominantState))
	fmt.Fprintf(&b, "Engagement Trend: %s\n", ctx.Patterns.EngagementTrend)
	fmt.Fprintf(&b, "Words Spoken: %d\n", ctx.Summary.TotalWords)

	if len(ctx.Patterns.Transitions) > 0 {
		b.WriteString("\nState Transitions:\n")
		for _, t := range ctx.Patterns.Transitions {
			fmt.Fprintf(&b, "  - %s to %s at %.1fs\n", t.From, t.To, t.Timestamp)
			if t.Text != "" {
				fmt.Fprintf(&b, "    Said: %q\n", t.Text)
			}
		}
	}

	if len(ctx.Patterns.Shifts) > 0 {
		b.WriteString("\nEmotion Shifts:\n")
		for _, s := range ctx.Patterns.Shifts {
			fmt.Fprintf(&b, "  - %s flipped %s to %s at %.1fs\n", s.Emotion, s.From, s.To, s.Timestamp)
		}
	}

	if len(ctx.Patterns.SilencePeriods) > 0 {
		b.WriteString("\nSilence:\n")
		for _, s := range ctx.Patterns.SilencePeriods {
			fmt.Fprintf(&b, "  - %.1fs of silence (%s state)\n", s.Duration, s.State)
		}
	}

	b.WriteString("\nTimeline:\n")
	for _, iv := range ctx.Intervals {
		fmt.Fprintf(&b, "[%.1fs] %s", iv.Timestamp, strings.ToUpper(iv.State))
		if len(iv.Emotions) > 0 {
			parts := make([]string, 0, len(iv.Emotions))
			for _, e := range iv.Emotions {
				parts = append(parts, fmt.Sprintf("%s(%.2f)", e.Name, e.Score))
			}
			fmt.Fprintf(&b, " | %s", strings.Join(parts, ", "))
		}
		if iv.Text != "" {
			fmt.Fprintf(&b, " | said: %q", iv.Text)
		} else {
			b.WriteString(" | [silence]")
		}
		b.WriteString("\n")
	}

	return b.String()
}
