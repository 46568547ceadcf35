package commands

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"opinionnet/analytics/polarimeter"
	"opinionnet/api"
	"opinionnet/swarm/peer"
)

var (
	polarimeterUsers string
	polarimeterTopic string
	polarimeterDelay millisDuration
	polarimeterPort  int
)

func init() {
	f := polarimeterCmd.Flags()
	f.StringVar(&polarimeterUsers, "users", "", "Comma separated users to spawn and measure")
	f.StringVar(&polarimeterTopic, "topic", "", "Topic being measured")
	polarimeterDelay = millisDuration(5 * time.Second)
	f.Var(&polarimeterDelay, "delay", "Time between two measurements, in milliseconds or as a duration (5000, 5s)")
	f.IntVar(&polarimeterPort, "port", 0, "Port of the first user, the others use the following ports")
	polarimeterCmd.MarkFlagRequired("users")
	polarimeterCmd.MarkFlagRequired("topic")
	polarimeterCmd.MarkFlagRequired("port")
	rootCmd.AddCommand(polarimeterCmd)
}

var polarimeterCmd = &cobra.Command{
	Use:   "polarimeter",
	Short: "Spawn users and periodically measure their polarization on a topic",
	Args:  cobra.NoArgs,
	RunE:  runPolarimeter,
}

func runPolarimeter(cmd *cobra.Command, args []string) error {
	ids := splitList(polarimeterUsers)
	if len(ids) == 0 {
		return errors.New("no users, use --users")
	}

	ctx, cancel := signalContext()
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	fail := func(err error) error {
		cancel()
		g.Wait()
		return err
	}

	reg := registryClient()
	nodes := make([]*peer.Node, 0, len(ids))
	sources := make([]polarimeter.Source, 0, len(ids))
	for i, id := range ids {
		n, err := startUser(gctx, g, reg, id, polarimeterPort+i, rand.Float64(), rand.Float64(), peer.AcceptAll)
		if err != nil {
			return fail(err)
		}
		nodes = append(nodes, n)
		sources = append(sources, n)
	}

	meter, err := polarimeter.NewMeter(polarimeterTopic, sources, time.Duration(polarimeterDelay), cfg.Polarimeter.Jitter.Duration)
	if err != nil {
		return fail(err)
	}

	err = startAdmin(gctx, g, func(s *api.Server) {
		for _, n := range nodes {
			s.AddUser(n)
		}
		s.AddMeter(meter)
	})
	if err != nil {
		return fail(err)
	}

	g.Go(func() error {
		return meter.Run(gctx)
	})

	return g.Wait()
}
