package commands

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"opinionnet/api"
	"opinionnet/config"
	"opinionnet/datamodel/address"
	"opinionnet/datastore/leveldb"
	"opinionnet/datastore/memory"
	"opinionnet/swarm/registry"

	log "github.com/sirupsen/logrus"
)

var (
	registryPort  int
	registryStore string
)

func init() {
	registryCmd.Flags().IntVar(&registryPort, "port", 0, "Port to listen on (overrides config, default 12345)")
	registryCmd.Flags().StringVar(&registryStore, "store", "", "Directory backend: memory or leveldb (overrides config)")
	rootCmd.AddCommand(registryCmd)
}

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Run the central registry",
	Long: `Run the registry that maps user identifiers to addresses. Users register on startup,
look up their peers before sending, and proposers announce new topics through it.`,
	Args: cobra.NoArgs,
	RunE: runRegistry,
}

func openDirectory(store string) (address.Directory, error) {
	switch store {
	case config.StoreMemory:
		return memory.New(), nil
	case config.StoreLevelDB:
		return leveldb.NewDirectory()
	}
	return nil, fmt.Errorf("unknown store %q", store)
}

func runRegistry(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("port") {
		cfg.Registry.Port = registryPort
	}
	if cmd.Flags().Changed("store") {
		cfg.Registry.Store = registryStore
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir, err := openDirectory(cfg.Registry.Store)
	if err != nil {
		return err
	}
	defer dir.Close()

	l, err := net.Listen("tcp", listenAddress(cfg.Registry.Port))
	if err != nil {
		return err
	}

	reg := registry.New(dir, cfg.Timeouts(), cfg.Network.BroadcastParallelism)
	srv := registry.NewServer(reg, l, cfg.Timeouts(), cfg.Registry.MaxConnections)

	ctx, cancel := signalContext()
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if err := startAdmin(gctx, g, func(s *api.Server) { s.SetRegistry(reg) }); err != nil {
		l.Close()
		return err
	}

	g.Go(func() error {
		return srv.Serve(gctx)
	})

	log.WithField("store", cfg.Registry.Store).Info("Registry started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("Registry stopped")
	return nil
}
