package commands

import (
	"fmt"
	"strconv"
	"time"
)

// millisDuration is a duration flag that reads a bare integer as milliseconds ("5000") and
// anything else as a Go duration ("5s", "250ms").
type millisDuration time.Duration

func (d *millisDuration) Set(s string) error {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = millisDuration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%q is neither milliseconds nor a duration", s)
	}
	*d = millisDuration(v)
	return nil
}

func (d *millisDuration) String() string {
	return time.Duration(*d).String()
}

func (d *millisDuration) Type() string {
	return "ms|duration"
}
