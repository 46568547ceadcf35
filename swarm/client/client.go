// Package client implements the registry client used by every node and administrative tool.
// Each call opens and closes its own connection.
package client

import (
	"context"
	"fmt"
	"io"

	"opinionnet/datamodel/address"
	"opinionnet/net/tcp"
	"opinionnet/swarm/protocol"

	log "github.com/sirupsen/logrus"
)

type Client struct {
	address  string
	timeouts tcp.Timeouts
}

// New returns a client for the registry listening on address (host:port).
func New(address string, timeouts tcp.Timeouts) *Client {
	return &Client{
		address:  address,
		timeouts: timeouts,
	}
}

// Register announces that userID listens on listenPort. The registry records the address the
// connection originates from. The acknowledgement line is returned for logging only.
func (c *Client) Register(ctx context.Context, userID string, listenPort int) (string, error) {
	var ack string
	err := tcp.Exchange(ctx, c.address, c.timeouts,
		func(w io.Writer) error {
			return protocol.WriteRegister(w, userID, listenPort)
		},
		func(lr *protocol.LineReader) error {
			var err error
			ack, err = lr.Next()
			return err
		})
	if err != nil {
		return "", fmt.Errorf("register %s: %w", userID, err)
	}

	log.WithField("user", userID).Infof("Registry response: %s", ack)
	return ack, nil
}

// Resolve returns the address registered for userID. It returns protocol.ErrNotFound if the
// registry has no such user and protocol.ErrUnreachable if the registry cannot be reached.
// Every call sends its own lookup, so it observes any registration completed before it started.
func (c *Client) Resolve(ctx context.Context, userID string) (address.Record, error) {
	var rec address.Record
	err := tcp.Exchange(ctx, c.address, c.timeouts,
		func(w io.Writer) error {
			return protocol.WriteLookup(w, userID)
		},
		func(lr *protocol.LineReader) error {
			var err error
			rec, err = protocol.ReadLookupResponse(lr)
			return err
		})
	if err != nil {
		return address.Record{}, fmt.Errorf("resolve %s: %w", userID, err)
	}
	return rec, nil
}

// AnnounceTopic asks the registry to notify every registered user of topic. It does not wait
// for the acknowledgement.
func (c *Client) AnnounceTopic(ctx context.Context, topic string) error {
	err := tcp.Send(ctx, c.address, c.timeouts, func(w io.Writer) error {
		return protocol.WriteProposeTopic(w, topic)
	})
	if err != nil {
		return fmt.Errorf("announce %q: %w", topic, err)
	}

	log.WithField("topic", topic).Info("Notified registry about new topic")
	return nil
}
