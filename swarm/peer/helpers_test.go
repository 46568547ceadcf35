package peer

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"opinionnet/datastore/memory"
	"opinionnet/net/tcp"
	"opinionnet/swarm/client"
	"opinionnet/swarm/registry"
)

func testTimeouts() tcp.Timeouts {
	return tcp.Timeouts{Dial: time.Second, Read: 2 * time.Second, Write: time.Second}
}

// startRegistry runs a registry server on a loopback port for the duration of the test.
func startRegistry(t *testing.T) *client.Client {
	t.Helper()
	reg := registry.New(memory.New(), testTimeouts(), 4)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := registry.NewServer(reg, l, testTimeouts(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return client.New(srv.Addr().String(), testTimeouts())
}

// startNode creates, registers and runs a node for the duration of the test.
func startNode(t *testing.T, reg Registrar, cfg Config) *Node {
	t.Helper()
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.Timeouts = testTimeouts()
	cfg.MaxInbound = 8

	n, err := New(cfg, reg)
	require.NoError(t, err)
	require.NoError(t, n.Join(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return n
}

// idleNode returns a node that is not registered and never serves, for pure state tests.
func idleNode(t *testing.T, cfg Config) *Node {
	t.Helper()
	cfg.ListenAddress = "127.0.0.1:0"
	n, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { n.Close() })
	return n
}
