// Package registry implements the directory that maps logical user identifiers to the network
// address each user listens on.
package registry

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"opinionnet/datamodel/address"
	"opinionnet/metrics"
	"opinionnet/net/tcp"
	"opinionnet/swarm/protocol"

	log "github.com/sirupsen/logrus"
)

// Placeholder opinion carried by topic notifications
const topicPlaceholderOpinion = 0.0

type Registry struct {
	dir         address.Directory
	timeouts    tcp.Timeouts
	parallelism int

	// Serializes broadcasts so that two announcements never interleave their notifications
	bmu sync.Mutex
}

// New creates a registry on top of dir. parallelism bounds concurrent notifications during a
// topic broadcast; values below 1 mean one at a time.
func New(dir address.Directory, timeouts tcp.Timeouts, parallelism int) *Registry {
	return &Registry{
		dir:         dir,
		timeouts:    timeouts,
		parallelism: max(1, parallelism),
	}
}

// Register inserts or overwrites the address of userID.
func (r *Registry) Register(userID string, rec address.Record) error {
	if userID == "" || !rec.Valid() {
		metrics.Registrations.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: user %q at %s", protocol.ErrInvalidRequest, userID, rec)
	}

	if err := r.dir.Put(userID, rec); err != nil {
		return fmt.Errorf("store %s: %w", userID, err)
	}

	metrics.Registrations.WithLabelValues("ok").Inc()
	log.WithFields(log.Fields{"user": userID, "addr": rec.String()}).Info("User registered")
	return nil
}

// Lookup returns the latest record committed for userID, or protocol.ErrNotFound.
func (r *Registry) Lookup(userID string) (address.Record, error) {
	rec, ok, err := r.dir.Get(userID)
	if err != nil {
		metrics.Lookups.WithLabelValues("error").Inc()
		return address.Record{}, fmt.Errorf("lookup %s: %w", userID, err)
	}
	if !ok {
		metrics.Lookups.WithLabelValues("not_found").Inc()
		return address.Record{}, fmt.Errorf("lookup %s: %w", userID, protocol.ErrNotFound)
	}
	metrics.Lookups.WithLabelValues("found").Inc()
	return rec, nil
}

// Entries returns a snapshot of all registrations.
func (r *Registry) Entries() ([]address.Entry, error) {
	return r.dir.Enumerate()
}

// BroadcastTopic notifies every registered user of a new topic. Each notification is an opinion
// message carrying the topic and a placeholder opinion of 0.0. Failures are logged and recorded
// per recipient and do not stop the remaining notifications.
func (r *Registry) BroadcastTopic(ctx context.Context, topic string) (*protocol.BroadcastResult, error) {
	r.bmu.Lock()
	defer r.bmu.Unlock()

	entries, err := r.dir.Enumerate()
	if err != nil {
		return nil, fmt.Errorf("enumerate users: %w", err)
	}

	errs := make([]error, len(entries))

	var g errgroup.Group
	g.SetLimit(r.parallelism)
	for i, e := range entries {
		g.Go(func() error {
			errs[i] = r.notify(ctx, e, topic)
			return nil
		})
	}
	g.Wait()

	res := protocol.NewBroadcastResult()
	for i, e := range entries {
		res.Record(e.UserID, errs[i])
	}

	log.WithFields(log.Fields{
		"topic":     topic,
		"delivered": len(res.Delivered),
		"failed":    len(res.Failed),
	}).Info("Topic broadcast finished")

	return res, nil
}

func (r *Registry) notify(ctx context.Context, e address.Entry, topic string) error {
	msg := &protocol.OpinionMessage{Topic: topic, Opinion: topicPlaceholderOpinion}
	err := tcp.Send(ctx, e.Record.String(), r.timeouts, func(w io.Writer) error {
		return protocol.WriteOpinion(w, msg)
	})
	if err != nil {
		metrics.TopicNotifications.WithLabelValues("failed").Inc()
		log.WithField("user", e.UserID).Warnf("Failed to notify user: %v", err)
		return err
	}

	metrics.TopicNotifications.WithLabelValues("delivered").Inc()
	log.WithFields(log.Fields{"user": e.UserID, "addr": e.Record.String(), "topic": topic}).Info("Notified user of new topic")
	return nil
}
