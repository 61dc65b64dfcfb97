package advice

import "github.com/attunelabs/attune-core/internal/state"

// SystemPrompt frames the generator as a realtime conversation coach. Kept
// short so the per-window context dominates the token budget.
const SystemPrompt = `You are a realtime conversation coach. You receive a ` +
	`rolling analysis of a listener's emotional state aligned with what the ` +
	`speaker said. Reply with one short, concrete, actionable tip (under 20 ` +
	`words) the speaker can apply immediately. No preamble, no lists.`

// FallbackAdvice returns canned coaching for when the generator is
// unavailable, keyed by the window's dominant state.
func FallbackAdvice(dominantState string) string {
	switch dominantState {
	case state.ClosedOff:
		return "They seem disengaged. Pause, ask an open question, and give them room to answer."
	case state.Thinking:
		return "They are processing. Slow down and let the silence sit."
	case state.Curious:
		return "They are interested. Go one level deeper on this point."
	case state.Amused:
		return "The tone is landing. Keep it light and stay conversational."
	case state.Enthusiastic:
		return "Strong connection. Ask them to share their perspective now."
	default:
		return "Keep a steady pace and check in with a short question."
	}
}
