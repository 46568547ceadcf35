package polarimeter

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixed struct {
	id      string
	opinion atomic.Uint64
}

func newFixed(id string, v float64) *fixed {
	f := &fixed{id: id}
	f.set(v)
	return f
}

func (f *fixed) ID() string       { return f.id }
func (f *fixed) Opinion() float64 { return math.Float64frombits(f.opinion.Load()) }
func (f *fixed) set(v float64)    { f.opinion.Store(math.Float64bits(v)) }

func TestBins(t *testing.T) {
	bins := Bins([]float64{0, 0.19, 0.2, 0.5, 0.99, 1.0})
	assert.Equal(t, [NumBins]int{2, 1, 1, 0, 2}, bins)
}

func TestBinsOutOfRangeAndNaN(t *testing.T) {
	bins := Bins([]float64{-0.3, 1.7, math.NaN(), math.Inf(1)})
	assert.Equal(t, [NumBins]int{1, 0, 0, 0, 2}, bins)
}

func TestIndexConsensusIsZero(t *testing.T) {
	assert.Zero(t, Index(Bins([]float64{0.5, 0.5, 0.5, 0.5, 0.5})))
	assert.Zero(t, Index([NumBins]int{}))
}

func TestIndexTwoPoles(t *testing.T) {
	// 3 users near 0 and 2 near 1: 3^2.6*2*0.8 + 2^2.6*3*0.8
	want := math.Pow(3, 2.6)*2*0.8 + math.Pow(2, 2.6)*3*0.8
	got := Index(Bins([]float64{0.05, 0.05, 0.05, 0.95, 0.95}))
	assert.InDelta(t, want, got, 1e-9)
	assert.Greater(t, got, Index(Bins([]float64{0.5, 0.5, 0.5, 0.5, 0.5})))
}

func TestIndexIsSymmetric(t *testing.T) {
	a := Index([NumBins]int{4, 0, 1, 0, 0})
	b := Index([NumBins]int{0, 0, 1, 0, 4})
	assert.InDelta(t, a, b, 1e-9)
}

func TestMeasure(t *testing.T) {
	sources := []Source{newFixed("a", 0.05), newFixed("b", 0.95)}
	assert.InDelta(t, 2*0.8, Measure(sources), 1e-9)
}

func TestNewMeterValidates(t *testing.T) {
	_, err := NewMeter("t", nil, time.Second, 0)
	assert.Error(t, err)

	_, err = NewMeter("t", []Source{newFixed("a", 0)}, 0, 0)
	assert.Error(t, err)
}

func TestMeterRunMeasuresPeriodically(t *testing.T) {
	a := newFixed("a", 0.5)
	b := newFixed("b", 0.5)
	m, err := NewMeter("climate", []Source{a, b}, 10*time.Millisecond, 0)
	require.NoError(t, err)
	assert.Nil(t, m.Last())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool {
		last := m.Last()
		return last != nil && last.Index == 0
	}, time.Second, 5*time.Millisecond)

	a.set(0.0)
	b.set(1.0)
	require.Eventually(t, func() bool {
		last := m.Last()
		return last != nil && last.Index > 0
	}, time.Second, 5*time.Millisecond)

	last := m.Last()
	assert.Equal(t, "climate", last.Topic)
	assert.Equal(t, 2, last.Users)
	assert.Equal(t, [NumBins]int{1, 0, 0, 0, 1}, last.Bins)

	cancel()
	assert.NoError(t, <-done)
}
