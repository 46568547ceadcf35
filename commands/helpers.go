package commands

import (
	"context"
	"math/rand/v2"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"opinionnet/api"
	"opinionnet/swarm/client"
	"opinionnet/swarm/peer"

	log "github.com/sirupsen/logrus"
)

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func registryClient() *client.Client {
	return client.New(cfg.RegistryAddress(), cfg.Timeouts())
}

func listenAddress(port int) string {
	return net.JoinHostPort("", strconv.Itoa(port))
}

// splitList parses a comma separated flag value, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// randomUnless returns the flag value if it was set on the command line, a uniform random
// value in [0,1) otherwise.
func randomUnless(cmd *cobra.Command, flag string, value float64) float64 {
	if cmd.Flags().Changed(flag) {
		return value
	}
	return rand.Float64()
}

// startUser binds, registers and runs a user in g. A failed registration is logged and the
// user keeps running, as peers may still reach it once it registers again.
func startUser(ctx context.Context, g *errgroup.Group, reg peer.Registrar, id string, port int, opinion, influence float64, policy peer.AcceptancePolicy) (*peer.Node, error) {
	n, err := peer.New(peer.Config{
		ID:            id,
		Opinion:       opinion,
		Influence:     influence,
		ListenAddress: listenAddress(port),
		Policy:        policy,
		Timeouts:      cfg.Timeouts(),
		MaxInbound:    cfg.Network.MaxInbound,
	}, reg)
	if err != nil {
		return nil, err
	}

	if err := n.Join(ctx); err != nil {
		log.WithField("user", id).Errorf("Failed to register with the registry: %v", err)
	}

	g.Go(func() error {
		return n.Run(ctx)
	})
	return n, nil
}

// startAdmin runs the admin API in g when an admin address is configured.
func startAdmin(ctx context.Context, g *errgroup.Group, setup func(s *api.Server)) error {
	if cfg.Admin.Listen == "" {
		return nil
	}

	l, err := net.Listen("tcp", cfg.Admin.Listen)
	if err != nil {
		return err
	}

	s := api.NewServer()
	setup(s)
	g.Go(func() error {
		return s.Serve(ctx, l)
	})
	return nil
}
