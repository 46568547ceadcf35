package commands

import (
	"errors"

	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"
)

var proposerTopic string

func init() {
	proposerCmd.Flags().StringVar(&proposerTopic, "topic", "", "Topic to announce")
	proposerCmd.MarkFlagRequired("topic")
	rootCmd.AddCommand(proposerCmd)
}

var proposerCmd = &cobra.Command{
	Use:   "proposer",
	Short: "Announce a new topic to every registered user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if proposerTopic == "" {
			return errors.New("empty topic")
		}

		ctx, cancel := signalContext()
		defer cancel()

		if err := registryClient().AnnounceTopic(ctx, proposerTopic); err != nil {
			return err
		}
		log.Infof("Proposer introduced a new topic: %s", proposerTopic)
		return nil
	},
}
