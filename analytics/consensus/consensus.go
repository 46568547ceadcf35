// Package consensus simulates two users trying to agree on a topic. When they agree, both adopt
// the mean of their opinions.
package consensus

import (
	"math/rand/v2"

	"opinionnet/metrics"

	log "github.com/sirupsen/logrus"
)

// Participant is a user taking part in a consensus attempt, usually a *peer.Node.
type Participant interface {
	ID() string
	Opinion() float64
	ApplyUpdate(newOpinion, weight float64) float64
}

// AcceptancePolicy decides whether a pair reaches consensus.
type AcceptancePolicy func() bool

// CoinFlips accepts when two independent fair coin flips both come up true (p = 1/4).
func CoinFlips() bool {
	return rand.IntN(2) == 1 && rand.IntN(2) == 1
}

func Always() bool { return true }

func Never() bool { return false }

type Outcome struct {
	Reached bool
	Before  [2]float64
	After   [2]float64
	Mean    float64 // Only meaningful when Reached
}

type Finder struct {
	accept AcceptancePolicy
}

// NewFinder returns a Finder using policy, or CoinFlips when policy is nil.
func NewFinder(policy AcceptancePolicy) *Finder {
	if policy == nil {
		policy = CoinFlips
	}
	return &Finder{accept: policy}
}

// Find makes one consensus attempt between a and b. The mean is taken from the opinions read
// before either participant is updated.
func (f *Finder) Find(a, b Participant, topic string) Outcome {
	o := Outcome{Before: [2]float64{a.Opinion(), b.Opinion()}}
	o.After = o.Before

	flog := log.WithFields(log.Fields{"user1": a.ID(), "user2": b.ID(), "topic": topic})

	if !f.accept() {
		metrics.ConsensusAttempts.WithLabelValues("not_reached").Inc()
		flog.Infof("Consensus not reached between %s and %s on topic %s", a.ID(), b.ID(), topic)
		return o
	}

	o.Reached = true
	o.Mean = (o.Before[0] + o.Before[1]) / 2
	o.After[0] = a.ApplyUpdate(o.Mean, 1.0)
	o.After[1] = b.ApplyUpdate(o.Mean, 1.0)

	metrics.ConsensusAttempts.WithLabelValues("reached").Inc()
	flog.Infof("Consensus reached between %s and %s on topic %s at %.4f", a.ID(), b.ID(), topic, o.Mean)

	return o
}
