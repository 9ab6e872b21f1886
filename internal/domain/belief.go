package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// BeliefSource indicates where a belief originated.
type BeliefSource string

const (
	SourceObservation BeliefSource = "observation"
	SourceInference   BeliefSource = "inference"
	SourceExternal    BeliefSource = "external"
	SourceUser        BeliefSource = "user"
)

func ValidBeliefSource(s string) bool {
	switch BeliefSource(s) {
	case SourceObservation, SourceInference, SourceExternal, SourceUser:
		return true
	}
	return false
}

// Belief is a confidence-weighted claim about the world with provenance and
// optional expiry. Evidence holds the ids of the signals that produced it.
type Belief struct {
	ID         uuid.UUID    `json:"id"`
	Content    string       `json:"content"`
	Confidence float64      `json:"confidence"`
	Source     BeliefSource `json:"source"`
	Evidence   []uuid.UUID  `json:"evidence,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	ExpiresAt  *time.Time   `json:"expires_at,omitempty"`
}

// Expired reports whether the belief's expiry has passed. Beliefs without an
// expiry never expire.
func (b Belief) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && now.After(*b.ExpiresAt)
}

// Contradicts reports whether two claims form a lexical negation pair: one
// claim equals the other with a single "not" token removed. "ETH is
// undervalued" contradicts both "not ETH is undervalued" and "ETH is not
// undervalued".
func Contradicts(a, b string) bool {
	na := strings.ToLower(strings.TrimSpace(a))
	nb := strings.ToLower(strings.TrimSpace(b))
	if na == nb {
		return false
	}
	return stripNot(na) == nb || stripNot(nb) == na
}

// stripNot removes the first standalone "not" token. The input is returned
// unchanged when no token is present.
func stripNot(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if w == "not" {
			return strings.Join(append(words[:i:i], words[i+1:]...), " ")
		}
	}
	return s
}

// ClampConfidence bounds a confidence or strength value to [0,1].
// Out-of-range inputs are clamped, not rejected.
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
