// Package tcp provides the accept loop and dialing helpers shared by the registry and the
// peers. Each accepted connection is served by its own goroutine, and a weighted semaphore caps
// how many of them run at once.
package tcp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	log "github.com/sirupsen/logrus"
)

// Handler serves one accepted connection. The server closes the connection once the handler
// returns.
type Handler func(ctx context.Context, conn net.Conn)

type Server struct {
	listener net.Listener
	handler  Handler
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
}

// NewServer wraps a listener. maxConns bounds concurrent handlers; when the bound is reached the
// accept loop waits for a handler to finish. A non-positive maxConns disables the bound.
func NewServer(listener net.Listener, handler Handler, maxConns int64) *Server {
	srv := &Server{
		listener: listener,
		handler:  handler,
	}
	if maxConns > 0 {
		srv.sem = semaphore.NewWeighted(maxConns)
	}
	return srv
}

func (srv *Server) Addr() net.Addr {
	return srv.listener.Addr()
}

// Port returns the TCP port the listener is bound to.
func (srv *Server) Port() int {
	if a, ok := srv.listener.Addr().(*net.TCPAddr); ok {
		return a.Port
	}
	return 0
}

// Close closes the listener, which makes a running Serve return.
func (srv *Server) Close() error {
	return srv.listener.Close()
}

// Serve accepts connections until ctx is cancelled, then waits for in-flight handlers. It
// returns ctx.Err() on cancellation.
func (srv *Server) Serve(ctx context.Context) error {
	defer srv.wg.Wait()

	// Closing the listener unblocks Accept
	stop := context.AfterFunc(ctx, func() {
		log.Debugf("tcp.Server: context cancelled, closing listener %s", srv.listener.Addr())
		if err := srv.listener.Close(); err != nil {
			log.Warnf("tcp.Server: error closing listener %s: %v", srv.listener.Addr(), err)
		}
	})
	defer stop()

	var tempDelay time.Duration // how long to sleep on accept failure
	for {
		if srv.sem != nil {
			if err := srv.sem.Acquire(ctx, 1); err != nil {
				return ctx.Err()
			}
		}

		conn, err := srv.listener.Accept()
		if err != nil {
			srv.release()

			if ctx.Err() != nil {
				log.Debugf("tcp.Server: listener %s shut down", srv.listener.Addr())
				return ctx.Err()
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				log.Warnf("tcp.Server: accept error on %s: %v; retrying in %v", srv.listener.Addr(), err, tempDelay)
				time.Sleep(tempDelay)
				continue
			}

			log.Errorf("tcp.Server: critical accept error on %s: %v", srv.listener.Addr(), err)
			return err
		}

		tempDelay = 0
		srv.wg.Add(1)
		go srv.serveConn(ctx, conn)
	}
}

func (srv *Server) release() {
	if srv.sem != nil {
		srv.sem.Release(1)
	}
}

func (srv *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer srv.wg.Done()
	defer srv.release()
	defer conn.Close()

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("tcp.Server: panic while serving %s: %v", conn.RemoteAddr(), r)
		}
	}()

	srv.handler(ctx, conn)
}
