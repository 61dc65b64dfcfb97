// Package state maps fine-grained classifier emotion scores onto the small
// set of coarse engagement states the coaching layer reasons about. The
// mapping is a priority-ordered rule table so it can be tuned and tested
// independently of the aggregation math.
package state

// The coarse engagement states, roughly ordered from disengaged to engaged.
const (
	ClosedOff    = "closed-off"
	Baseline     = "baseline"
	Thinking     = "thinking"
	Curious      = "curious"
	Amused       = "amused"
	Enthusiastic = "enthusiastic"
)

// Rule scores one candidate state as a weighted sum over named emotions.
type Rule struct {
	State   string
	Weights map[string]float64
}

// Score evaluates the rule against a full emotion score set.
func (r Rule) Score(scores map[string]float64) float64 {
	var total float64
	for name, weight := range r.Weights {
		total += scores[name] * weight
	}
	return total
}

// Mapper evaluates rules in declaration order and picks the best-scoring
// state; earlier rules win score ties, and anything under the confidence
// floor falls through to the default state.
type Mapper struct {
	rules    []Rule
	fallback string
	floor    float64
}

// NewMapper builds a mapper from an ordered rule list. The fallback state is
// returned when every rule scores below the floor or the score set is empty.
func NewMapper(rules []Rule, fallback string, floor float64) *Mapper {
	return &Mapper{rules: rules, fallback: fallback, floor: floor}
}

// Map picks the coarse state for a full averaged emotion score set.
func (m *Mapper) Map(scores map[string]float64) string {
	best := m.fallback
	bestScore := m.floor
	for _, rule := range m.rules {
		if s := rule.Score(scores); s > bestScore {
			best = rule.State
			bestScore = s
		}
	}
	return best
}

// DefaultMapper returns the production rule table, tuned for the classifier
// vocabulary the deployment uses. A decisive lower-ranked emotion (strong
// Doubt alongside stronger Interest) can still flip the state because every
// rule sees the full score set.
func DefaultMapper() *Mapper {
	rules := []Rule{
		{State: ClosedOff, Weights: map[string]float64{
			"Anger":              0.7,
			"Awkwardness":        0.7,
			"Fear":               0.6,
			"Anxiety (negative)": 0.6,
			"Boredom":            0.6,
			"Distress":           0.5,
			"Contempt":           0.5,
			"Disgust":            0.4,
			"Disapproval":        0.3,
			"Sadness":            0.3,
			"Doubt":              0.3,
			"Pain":               0.2,
		}},
		{State: Enthusiastic, Weights: map[string]float64{
			"Joy":                 0.9,
			"Excitement":          0.9,
			"Admiration":          0.7,
			"Ecstasy":             0.6,
			"Triumph":             0.5,
			"Surprise (positive)": 0.5,
		}},
		{State: Amused, Weights: map[string]float64{
			"Amusement":    0.9,
			"Satisfaction": 0.6,
			"Joy":          0.5,
			"Entrancement": 0.4,
		}},
		{State: Curious, Weights: map[string]float64{
			"Interest":            0.9,
			"Curiosity":           0.9,
			"Concentration":       0.5,
			"Realization":         0.5,
			"Surprise (positive)": 0.4,
		}},
		{State: Thinking, Weights: map[string]float64{
			"Contemplation": 0.8,
			"Concentration": 0.7,
			"Confusion":     0.4,
			"Realization":   0.3,
		}},
		{State: Baseline, Weights: map[string]float64{
			"Calmness":               0.8,
			"Aesthetic Appreciation": 0.3,
			"Contemplation":          0.2,
		}},
	}
	return NewMapper(rules, Baseline, 0.10)
}

// Engagement ranks a state for engagement-trend analysis; higher is more
// engaged. Unknown states (including the no-signal sentinel) rank lowest.
func Engagement(state string) int {
	switch state {
	case Enthusiastic:
		return 5
	case Amused:
		return 4
	case Curious:
		return 3
	case Thinking:
		return 2
	case Baseline:
		return 1
	default:
		return 0
	}
}
