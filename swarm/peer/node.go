// Package peer implements a simulated user: a node that holds an opinion, listens for opinion
// messages from other users and sends its own opinion to peers resolved through the registry.
package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"opinionnet/datamodel/address"
	"opinionnet/metrics"
	"opinionnet/net/tcp"
	"opinionnet/swarm/protocol"

	log "github.com/sirupsen/logrus"
)

// Registrar is the part of the registry client a node depends on.
type Registrar interface {
	Register(ctx context.Context, userID string, listenPort int) (string, error)
	Resolve(ctx context.Context, userID string) (address.Record, error)
}

type Config struct {
	ID        string
	Opinion   float64
	Influence float64 // Weight applied to every accepted opinion

	// Address to listen on, e.g. ":5001". Port 0 picks a free port.
	ListenAddress string

	// Defaults to AcceptAll
	Policy AcceptancePolicy

	Timeouts   tcp.Timeouts
	MaxInbound int64 // Concurrent inbound handlers, 0 for no bound
}

type Node struct {
	id        string
	influence float64
	policy    AcceptancePolicy
	timeouts  tcp.Timeouts

	registry Registrar
	server   *tcp.Server

	mu      sync.Mutex // protects opinion
	opinion float64
}

// New binds the node's listener. The node does not accept connections until Run is called, but
// the kernel queues them, so registering right after New is safe.
func New(cfg Config, registry Registrar) (*Node, error) {
	if cfg.ID == "" {
		return nil, errors.New("peer: empty user ID")
	}

	l, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err)
	}

	n := &Node{
		id:        cfg.ID,
		influence: cfg.Influence,
		policy:    cfg.Policy,
		timeouts:  cfg.Timeouts,
		registry:  registry,
		opinion:   cfg.Opinion,
	}
	if n.policy == nil {
		n.policy = AcceptAll
	}
	n.server = tcp.NewServer(l, n.serveConn, cfg.MaxInbound)

	metrics.Opinion.WithLabelValues(n.id).Set(n.opinion)
	log.WithFields(log.Fields{"user": n.id, "port": n.Port()}).Infof("User listening, opinion %.4f, influence %.4f", n.opinion, n.influence)

	return n, nil
}

func (n *Node) ID() string { return n.id }

func (n *Node) Influence() float64 { return n.influence }

// Port returns the port the node listens on.
func (n *Node) Port() int { return n.server.Port() }

func (n *Node) Addr() net.Addr { return n.server.Addr() }

// Opinion returns the current opinion.
func (n *Node) Opinion() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.opinion
}

// Join registers the node's listening port with the registry.
func (n *Node) Join(ctx context.Context) error {
	if _, err := n.registry.Register(ctx, n.id, n.Port()); err != nil {
		return err
	}
	return nil
}

// Close releases the listener of a node that is not running. Run closes it on its own.
func (n *Node) Close() error {
	return n.server.Close()
}

// Run serves inbound opinion messages until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return n.server.Serve(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.WithField("user", n.id).Info("User shutting down")
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ApplyUpdate moves the opinion towards newOpinion by weight:
//
//	opinion = opinion + (newOpinion - opinion) * weight
//
// evaluated as opinion*(1-weight) + newOpinion*weight, which is exact at both ends: a weight of
// 1 adopts newOpinion and a weight of 0 leaves the opinion unchanged. The result is not clamped
// to [0, 1]. Updates do not commute: the order in which two updates are applied changes the
// outcome. ApplyUpdate returns the new opinion.
func (n *Node) ApplyUpdate(newOpinion, weight float64) float64 {
	n.mu.Lock()
	n.opinion = n.opinion*(1-weight) + newOpinion*weight
	updated := n.opinion
	n.mu.Unlock()

	metrics.Opinion.WithLabelValues(n.id).Set(updated)

	ulog := log.WithField("user", n.id)
	if updated < 0 || updated > 1 {
		ulog.Warnf("Opinion drifted outside [0, 1]: %v", updated)
	}
	ulog.Infof("Updated opinion to %v", updated)
	return updated
}

// Receive applies an opinion received from a peer, weighted by the node's own influence. An
// opinion refused by the acceptance policy leaves the node unchanged and yields
// protocol.ErrRejected.
func (n *Node) Receive(topic string, opinion float64) error {
	if !n.policy(opinion) {
		metrics.MessagesReceived.WithLabelValues("rejected").Inc()
		log.WithFields(log.Fields{"user": n.id, "topic": topic}).Infof("Rejected opinion %v", opinion)
		return fmt.Errorf("%w: %v on topic %q", protocol.ErrRejected, opinion, topic)
	}

	metrics.MessagesReceived.WithLabelValues("accepted").Inc()
	n.ApplyUpdate(opinion, n.influence)
	return nil
}

// SendOpinion sends the current opinion on topic to recipientID. An unknown recipient is
// skipped with a warning; the error is returned so callers can tell the cases apart.
func (n *Node) SendOpinion(ctx context.Context, recipientID, topic string) error {
	slog := log.WithFields(log.Fields{"user": n.id, "recipient": recipientID, "topic": topic})

	rec, err := n.registry.Resolve(ctx, recipientID)
	if err != nil {
		if errors.Is(err, protocol.ErrNotFound) {
			metrics.MessagesSent.WithLabelValues("not_found").Inc()
			slog.Warn("Recipient not registered, skipping message")
		} else {
			metrics.MessagesSent.WithLabelValues("unreachable").Inc()
			slog.Warnf("Failed to resolve recipient: %v", err)
		}
		return err
	}

	msg := &protocol.OpinionMessage{Topic: topic, Opinion: n.Opinion()}
	err = tcp.Send(ctx, rec.String(), n.timeouts, func(w io.Writer) error {
		return protocol.WriteOpinion(w, msg)
	})
	if err != nil {
		metrics.MessagesSent.WithLabelValues("unreachable").Inc()
		slog.Warnf("Failed to send opinion: %v", err)
		return fmt.Errorf("send to %s: %w", recipientID, err)
	}

	metrics.MessagesSent.WithLabelValues("sent").Inc()
	slog.Infof("Sent opinion %v", msg.Opinion)
	return nil
}

// Broadcast sends the current opinion to each recipient in turn. A recipient that cannot be
// resolved or reached is recorded and skipped.
func (n *Node) Broadcast(ctx context.Context, recipientIDs []string, topic string) *protocol.BroadcastResult {
	res := protocol.NewBroadcastResult()
	for _, id := range recipientIDs {
		if ctx.Err() != nil {
			res.Record(id, ctx.Err())
			continue
		}
		res.Record(id, n.SendOpinion(ctx, id, topic))
	}
	return res
}
