package peer

import (
	"context"
	"errors"
	"net"

	"github.com/google/uuid"

	"opinionnet/metrics"
	"opinionnet/net/tcp"
	"opinionnet/swarm/protocol"

	log "github.com/sirupsen/logrus"
)

func (n *Node) serveConn(ctx context.Context, conn net.Conn) {
	// Errors are logged by Process
	n.Process(ctx, conn)
}

// Process decodes one opinion message from conn and hands it to Receive. The message is fully
// decoded before anything is applied, so a malformed message never changes the opinion. The
// caller owns conn.
func (n *Node) Process(ctx context.Context, conn net.Conn) error {
	clog := log.WithFields(log.Fields{
		"user":   n.id,
		"conn":   uuid.NewString(),
		"remote": conn.RemoteAddr().String(),
	})

	tcp.SetDeadline(conn, n.timeouts)

	msg, err := protocol.ReadOpinion(protocol.NewLineReader(conn))
	if err != nil {
		if errors.Is(err, protocol.ErrMalformed) {
			metrics.MessagesReceived.WithLabelValues("malformed").Inc()
		} else {
			metrics.MessagesReceived.WithLabelValues("error").Inc()
			err = tcp.Unreachable("read", conn.RemoteAddr().String(), err)
		}
		clog.Warnf("Dropping inbound message: %v", err)
		return err
	}

	clog.WithField("topic", msg.Topic).Debugf("Received opinion %v", msg.Opinion)
	return n.Receive(msg.Topic, msg.Opinion)
}
