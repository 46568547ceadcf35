package commands

import (
	"errors"
	"math/rand/v2"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"opinionnet/analytics/consensus"
	"opinionnet/api"
	"opinionnet/swarm/peer"
)

var (
	consensusUser1 string
	consensusUser2 string
	consensusTopic string
	consensusPort  int
)

func init() {
	f := consensusCmd.Flags()
	f.StringVar(&consensusUser1, "user1", "", "First user")
	f.StringVar(&consensusUser2, "user2", "", "Second user")
	f.StringVar(&consensusTopic, "topic", "", "Topic to agree on")
	f.IntVar(&consensusPort, "port", 0, "Port of the first user, the second one uses the next port")
	for _, name := range []string{"user1", "user2", "topic", "port"} {
		consensusCmd.MarkFlagRequired(name)
	}
	rootCmd.AddCommand(consensusCmd)
}

var consensusCmd = &cobra.Command{
	Use:   "consensus",
	Short: "Spawn two users and let them try to reach consensus on a topic",
	Long: `Spawn two users with random opinions and make one consensus attempt. On success both
adopt the mean of their opinions. The users keep running until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runConsensus,
}

func runConsensus(cmd *cobra.Command, args []string) error {
	if consensusUser1 == "" || consensusUser2 == "" {
		return errors.New("empty user id")
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
	a, err := startUser(gctx, g, reg, consensusUser1, consensusPort, rand.Float64(), rand.Float64(), peer.AcceptAll)
	if err != nil {
		return fail(err)
	}
	b, err := startUser(gctx, g, reg, consensusUser2, consensusPort+1, rand.Float64(), rand.Float64(), peer.AcceptAll)
	if err != nil {
		return fail(err)
	}

	err = startAdmin(gctx, g, func(s *api.Server) {
		s.AddUser(a)
		s.AddUser(b)
	})
	if err != nil {
		return fail(err)
	}

	consensus.NewFinder(consensus.CoinFlips).Find(a, b, consensusTopic)

	return g.Wait()
}
