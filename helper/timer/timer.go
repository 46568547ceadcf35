package timer

import (
	"context"
	"errors"
	"math/rand/v2"
	"reflect"
	"runtime"
	"time"

	"github.com/lthibault/jitterbug/v2"

	log "github.com/sirupsen/logrus"
)

var ErrJitterTooLarge = errors.New("timer: jitter must be smaller than the interval")

type Interval struct {
	Duration time.Duration
	Jitter   time.Duration
}

func (i *Interval) Validate() error {
	if i.Duration <= 0 {
		return errors.New("timer: interval must be positive")
	}
	if i.Jitter < 0 || i.Jitter >= i.Duration {
		return ErrJitterTooLarge
	}
	return nil
}

type tickerJitter struct {
	MaxJitter time.Duration
}

// Jitter spreads ticks uniformly over [d-MaxJitter, d+MaxJitter).
func (j tickerJitter) Jitter(d time.Duration) time.Duration {
	if j.MaxJitter == 0 {
		return d
	}

	return d + (time.Duration(rand.Int64N(int64(2*j.MaxJitter))) - j.MaxJitter)
}

// Runs the provided function periodically with a given duration. Exits when a context is
// cancelled or when f() returns an error. With immediate set, f runs once before the first tick.
func RunWithTicker(ctx context.Context, interval *Interval, immediate bool, f func(ctx context.Context) error) error {
	if err := interval.Validate(); err != nil {
		return err
	}

	funcName := runtime.FuncForPC(reflect.ValueOf(f).Pointer()).Name()

	if immediate {
		if err := f(ctx); err != nil {
			log.Errorf("RunWithTicker: function %s returned error: %v", funcName, err)
			return err
		}
	}

	j := jitterbug.New(interval.Duration, tickerJitter{MaxJitter: interval.Jitter})
	defer j.Stop()

	log.Debugf("RunWithTicker: running %s with interval %v (jitter %v)", funcName, interval.Duration, interval.Jitter)

	for {
		select {
		case <-ctx.Done():
			log.Debugf("RunWithTicker: context cancelled for %s", funcName)
			return ctx.Err()
		case <-j.C:
			if err := f(ctx); err != nil {
				log.Errorf("RunWithTicker: function %s returned error: %v", funcName, err)
				return err
			}
		}
	}
}
