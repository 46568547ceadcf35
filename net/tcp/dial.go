package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"opinionnet/swarm/protocol"
)

// Timeouts bounds every network operation performed on a dialed connection.
type Timeouts struct {
	Dial  time.Duration
	Read  time.Duration
	Write time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Dial:  3 * time.Second,
		Read:  5 * time.Second,
		Write: 5 * time.Second,
	}
}

// Dial connects to address within the dial timeout. Failures wrap protocol.ErrUnreachable.
func Dial(ctx context.Context, address string, t Timeouts) (net.Conn, error) {
	d := net.Dialer{Timeout: t.Dial}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w: %w", address, protocol.ErrUnreachable, err)
	}
	return conn, nil
}

// SetDeadline applies a single deadline covering reads and writes. Zero timeouts are ignored.
func SetDeadline(conn net.Conn, t Timeouts) {
	d := max(t.Read, t.Write)
	if d > 0 {
		conn.SetDeadline(time.Now().Add(d))
	}
}

// Unreachable wraps an I/O error on an established connection.
func Unreachable(op, address string, err error) error {
	return fmt.Errorf("%s %s: %w: %w", op, address, protocol.ErrUnreachable, err)
}

// Send opens a dedicated connection, lets write encode one request and closes the connection
// without waiting for an answer.
func Send(ctx context.Context, address string, t Timeouts, write func(io.Writer) error) error {
	return Exchange(ctx, address, t, write, nil)
}

// Exchange opens a dedicated connection, writes one request and, if read is not nil, decodes the
// response before closing. Encoding errors are returned unchanged; transport errors wrap
// protocol.ErrUnreachable.
func Exchange(ctx context.Context, address string, t Timeouts, write func(io.Writer) error, read func(*protocol.LineReader) error) error {
	conn, err := Dial(ctx, address, t)
	if err != nil {
		return err
	}
	defer conn.Close()

	SetDeadline(conn, t)

	if err := write(conn); err != nil {
		if errors.Is(err, protocol.ErrMalformed) {
			return err
		}
		return Unreachable("write", address, err)
	}

	if read == nil {
		return nil
	}

	if err := read(protocol.NewLineReader(conn)); err != nil {
		if errors.Is(err, protocol.ErrMalformed) || errors.Is(err, protocol.ErrNotFound) {
			return err
		}
		return Unreachable("read", address, err)
	}
	return nil
}
