package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"opinionnet/api"
	"opinionnet/swarm/protocol"

	log "github.com/sirupsen/logrus"
)

const broadcastCommand = "broadcast "

var defaultRecipients = []string{"user1", "user2"}

var (
	influencerUser       userFlags
	influencerRecipients string
)

func init() {
	influencerUser.register(influencerCmd)
	influencerCmd.Flags().StringVar(&influencerRecipients, "users", strings.Join(defaultRecipients, ","), "Comma separated recipients of every broadcast")
	rootCmd.AddCommand(influencerCmd)
}

var influencerCmd = &cobra.Command{
	Use:   "influencer",
	Short: "Run a user that broadcasts its opinion on demand",
	Long: `Run an influencer. Besides receiving opinions like any user, it reads commands from
standard input; "broadcast <topic>" sends its current opinion to every recipient.`,
	Args: cobra.NoArgs,
	RunE: runInfluencer,
}

// Broadcaster sends the local opinion on a topic to a list of users.
type Broadcaster interface {
	Broadcast(ctx context.Context, recipientIDs []string, topic string) *protocol.BroadcastResult
}

func runInfluencer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	return serveInfluencer(ctx, cmd, os.Stdin)
}

// serveInfluencer runs the influencer until ctx is cancelled. Closing in ends the command loop
// but the influencer keeps receiving opinions.
func serveInfluencer(ctx context.Context, cmd *cobra.Command, in io.Reader) error {
	recipients := splitList(influencerRecipients)
	if len(recipients) == 0 {
		return errors.New("no recipients, use --users")
	}
	policy, err := userPolicy("influencer")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	n, err := startUser(gctx, g, registryClient(), influencerUser.id, influencerUser.port,
		randomUnless(cmd, "opinion", influencerUser.opinion), randomUnless(cmd, "influence", influencerUser.influence), policy)
	if err != nil {
		return err
	}

	if err := startAdmin(gctx, g, func(s *api.Server) { s.AddUser(n) }); err != nil {
		cancel()
		g.Wait()
		return err
	}

	// Stdin reads cannot be interrupted, so the loop is not part of the group
	go func() {
		runCommandLoop(gctx, in, cmd.OutOrStdout(), n, recipients)
		if gctx.Err() == nil {
			log.WithField("user", n.ID()).Info("Command input closed, still receiving opinions")
		}
	}()

	return g.Wait()
}

// runCommandLoop reads commands from in until EOF or ctx is cancelled.
func runCommandLoop(ctx context.Context, in io.Reader, out io.Writer, b Broadcaster, recipients []string) {
	fmt.Fprintln(out, "Enter commands. To broadcast your opinion, use: broadcast <topic>")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return
		}
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, broadcastCommand):
			topic := strings.TrimSpace(strings.TrimPrefix(line, broadcastCommand))
			if topic == "" {
				fmt.Fprintln(out, "Missing topic")
				continue
			}
			res := b.Broadcast(ctx, recipients, topic)
			fmt.Fprintf(out, "Delivered to %d of %d users\n", len(res.Delivered), len(recipients))
			if failed := res.FailedIDs(); len(failed) > 0 {
				log.Warnf("Broadcast on %s skipped %s", topic, strings.Join(failed, ", "))
			}
		default:
			fmt.Fprintf(out, "Unknown command: %s\n", line)
		}
	}
}
