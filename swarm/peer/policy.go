package peer

import "math"

// AcceptancePolicy decides whether a received opinion may influence the receiver.
type AcceptancePolicy func(opinion float64) bool

// AcceptAll is the policy of a plain user.
func AcceptAll(float64) bool {
	return true
}

// CriticalThinking accepts an opinion only when floor(opinion*100) is a multiple of 7.
// Non-finite values are rejected.
func CriticalThinking(opinion float64) bool {
	if math.IsNaN(opinion) || math.IsInf(opinion, 0) {
		return false
	}
	return int64(math.Floor(opinion*100))%7 == 0
}

// PolicyByName maps a user kind to its policy.
func PolicyByName(name string) (AcceptancePolicy, bool) {
	switch name {
	case "", "user", "influencer":
		return AcceptAll, true
	case "critical":
		return CriticalThinking, true
	}
	return nil, false
}
