package registry

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"

	"opinionnet/datamodel/address"
	"opinionnet/net/tcp"
	"opinionnet/swarm/protocol"

	log "github.com/sirupsen/logrus"
)

// Server exposes a Registry over the line protocol.
type Server struct {
	registry *Registry
	timeouts tcp.Timeouts
	srv      *tcp.Server
}

func NewServer(reg *Registry, listener net.Listener, timeouts tcp.Timeouts, maxConns int64) *Server {
	s := &Server{
		registry: reg,
		timeouts: timeouts,
	}
	s.srv = tcp.NewServer(listener, s.serveConn, maxConns)
	return s
}

func (s *Server) Addr() net.Addr {
	return s.srv.Addr()
}

// Serve blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	log.Infof("Registry listening on %s", s.srv.Addr())
	return s.srv.Serve(ctx)
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	clog := log.WithFields(log.Fields{"conn": uuid.NewString(), "remote": conn.RemoteAddr().String()})

	// Request decoding is bounded by the read timeout. A topic broadcast may take longer, so the
	// deadline is lifted before dispatching.
	tcp.SetDeadline(conn, s.timeouts)

	req, err := protocol.ReadRequest(protocol.NewLineReader(conn))
	if err != nil {
		clog.Warnf("Failed to decode registry request: %v", err)
		if errors.Is(err, protocol.ErrUnknownCommand) {
			protocol.WriteAck(conn, protocol.AckUnknown)
		}
		return
	}
	clog = clog.WithField("op", req.Kind.String())

	var ack string
	switch req.Kind {
	case protocol.KindRegister:
		ack = s.handleRegister(conn, req, clog)

	case protocol.KindLookup:
		s.handleLookup(conn, req, clog)
		return

	case protocol.KindProposeTopic:
		conn.SetDeadline(time.Time{})
		ack = s.handlePropose(ctx, req, clog)
		tcp.SetDeadline(conn, s.timeouts)
	}

	if err := protocol.WriteAck(conn, ack); err != nil {
		clog.Debugf("Failed to write acknowledgement: %v", err)
	}
}

func (s *Server) handleRegister(conn net.Conn, req *protocol.Request, clog *log.Entry) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}

	rec := address.Record{Address: host, Port: req.Port}
	if err := s.registry.Register(req.UserID, rec); err != nil {
		clog.Warnf("Registration failed: %v", err)
		return "Registration failed: " + err.Error()
	}
	return protocol.AckRegistered
}

func (s *Server) handleLookup(conn net.Conn, req *protocol.Request, clog *log.Entry) {
	var answer *address.Record
	rec, err := s.registry.Lookup(req.UserID)
	switch {
	case err == nil:
		answer = &rec
	case errors.Is(err, protocol.ErrNotFound):
		clog.Debugf("Lookup miss for %s", req.UserID)
	default:
		clog.Errorf("Lookup failed: %v", err)
	}

	if err := protocol.WriteLookupResponse(conn, answer); err != nil {
		clog.Debugf("Failed to write lookup response: %v", err)
	}
}

func (s *Server) handlePropose(ctx context.Context, req *protocol.Request, clog *log.Entry) string {
	res, err := s.registry.BroadcastTopic(ctx, req.Topic)
	if err != nil {
		clog.Errorf("Topic broadcast failed: %v", err)
		return "Topic broadcast failed: " + err.Error()
	}
	if len(res.Failed) > 0 {
		clog.Warnf("Topic %q not delivered to %v", req.Topic, res.FailedIDs())
	}
	return "Topic registered: " + req.Topic
}
