package commands

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"opinionnet/config"

	log "github.com/sirupsen/logrus"
)

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with default settings",
	Args:  cobra.NoArgs,
	// The config file does not exist yet
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.NewEmptyConfig(configFile)
		setupLogging(cfg)
		return nil
	},
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		return errors.New("config file not specified, use --config")
	}
	if _, err := os.Stat(configFile); err == nil && !initForce {
		return errors.New("config file " + configFile + " already exists, use --force to overwrite")
	}

	if err := cfg.Save(); err != nil {
		return err
	}
	log.Infof("Default config written to %s", configFile)
	return nil
}
