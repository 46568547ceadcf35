// Package polarimeter measures how polarized a group of users is on a topic. Opinions are
// grouped into five equal-width bins over [0,1] and scored with an Esteban-Ray style index.
package polarimeter

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"opinionnet/helper/timer"
	"opinionnet/metrics"

	log "github.com/sirupsen/logrus"
)

const (
	NumBins = 5
	Alpha   = 1.6
	K       = 1.0
)

var Midpoints = [NumBins]float64{0.1, 0.3, 0.5, 0.7, 0.9}

// Source is anything that holds an opinion, usually a *peer.Node.
type Source interface {
	ID() string
	Opinion() float64
}

// Bins counts opinions per bin. 1.0 falls into the last bin, values outside [0,1] into the
// nearest edge bin, NaN is skipped.
func Bins(opinions []float64) [NumBins]int {
	var bins [NumBins]int
	for _, v := range opinions {
		if math.IsNaN(v) {
			continue
		}
		bins[binIndex(v)]++
	}
	return bins
}

func binIndex(v float64) int {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return NumBins - 1
	}
	i := int(v * NumBins)
	if i >= NumBins {
		i = NumBins - 1
	}
	return i
}

// Index computes K * sum_i sum_j bins[i]^(1+Alpha) * bins[j] * |m[i]-m[j]|.
func Index(bins [NumBins]int) float64 {
	var p float64
	for i := range bins {
		if bins[i] == 0 {
			continue
		}
		wi := math.Pow(float64(bins[i]), 1+Alpha)
		for j := range bins {
			p += wi * float64(bins[j]) * math.Abs(Midpoints[i]-Midpoints[j])
		}
	}
	return K * p
}

// Measure snapshots the opinions of sources and returns their polarization index.
func Measure(sources []Source) float64 {
	return Index(Bins(snapshot(sources)))
}

func snapshot(sources []Source) []float64 {
	opinions := make([]float64, 0, len(sources))
	for _, s := range sources {
		opinions = append(opinions, s.Opinion())
	}
	return opinions
}

type Measurement struct {
	Topic string       `json:"topic"`
	Index float64      `json:"index"`
	Bins  [NumBins]int `json:"bins"`
	Users int          `json:"users"`
	At    time.Time    `json:"at"`
}

type Meter struct {
	topic    string
	sources  []Source
	interval timer.Interval

	mu   sync.RWMutex
	last *Measurement
}

func NewMeter(topic string, sources []Source, delay, jitter time.Duration) (*Meter, error) {
	if len(sources) == 0 {
		return nil, errors.New("polarimeter: no users to measure")
	}
	m := &Meter{
		topic:    topic,
		sources:  sources,
		interval: timer.Interval{Duration: delay, Jitter: jitter},
	}
	if err := m.interval.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Meter) Topic() string { return m.topic }

// Run measures immediately and then once per interval until ctx is cancelled.
func (m *Meter) Run(ctx context.Context) error {
	err := timer.RunWithTicker(ctx, &m.interval, true, m.measure)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (m *Meter) measure(context.Context) error {
	opinions := snapshot(m.sources)
	bins := Bins(opinions)

	res := &Measurement{
		Topic: m.topic,
		Index: Index(bins),
		Bins:  bins,
		Users: len(opinions),
		At:    time.Now(),
	}

	m.mu.Lock()
	m.last = res
	m.mu.Unlock()

	metrics.Polarization.WithLabelValues(m.topic).Set(res.Index)
	log.WithFields(log.Fields{"topic": m.topic, "bins": bins}).Infof("Polarization on topic %s is %f", m.topic, res.Index)

	return nil
}

// Last returns the latest measurement, or nil before the first one.
func (m *Meter) Last() *Measurement {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}
