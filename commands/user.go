package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"opinionnet/api"
	"opinionnet/swarm/peer"

	log "github.com/sirupsen/logrus"
)

type userFlags struct {
	id        string
	port      int
	opinion   float64
	influence float64
}

func (f *userFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.id, "id", "", "User identifier")
	cmd.Flags().IntVar(&f.port, "port", 0, "Port to listen on for opinion messages")
	cmd.Flags().Float64Var(&f.opinion, "opinion", 0, "Initial opinion (default random in [0,1))")
	cmd.Flags().Float64Var(&f.influence, "influence", 0, "Weight given to accepted opinions (default random in [0,1))")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("port")
}

var (
	plainUser    userFlags
	criticalUser userFlags
)

func init() {
	plainUser.register(userCmd)
	criticalUser.register(criticalCmd)
	rootCmd.AddCommand(userCmd, criticalCmd)
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Run a user that accepts every opinion it receives",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUser(cmd, &plainUser, "user")
	},
}

var criticalCmd = &cobra.Command{
	Use:   "critical",
	Short: "Run a critical thinker that filters the opinions it receives",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUser(cmd, &criticalUser, "critical")
	},
}

// userPolicy returns the acceptance policy of a user kind.
func userPolicy(kind string) (peer.AcceptancePolicy, error) {
	policy, ok := peer.PolicyByName(kind)
	if !ok {
		return nil, fmt.Errorf("unknown user kind %q", kind)
	}
	return policy, nil
}

func runUser(cmd *cobra.Command, f *userFlags, kind string) error {
	policy, err := userPolicy(kind)
	if err != nil {
		return err
	}
	if f.id == "" {
		return errors.New("empty user id")
	}

	ctx, cancel := signalContext()
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	n, err := startUser(gctx, g, registryClient(), f.id, f.port,
		randomUnless(cmd, "opinion", f.opinion), randomUnless(cmd, "influence", f.influence), policy)
	if err != nil {
		return err
	}

	if err := startAdmin(gctx, g, func(s *api.Server) { s.AddUser(n) }); err != nil {
		cancel()
		g.Wait()
		return err
	}

	err = g.Wait()
	log.WithField("user", f.id).Infof("Final opinion %.4f", n.Opinion())
	return err
}
