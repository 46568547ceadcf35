// Package commands implements the opinionnet command-line tools. Each subcommand starts one of
// the roles of the network: the registry, a user, an influencer, a proposer or an analytics tool.
package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"opinionnet/config"

	log "github.com/sirupsen/logrus"
)

var (
	configFile string
	logLevel   string
	serverIP   string
	serverPort int
	adminAddr  string

	// Loaded before any subcommand runs
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "opinionnet",
	Short: "Opinion propagation over a peer-to-peer network",
	Long: `opinionnet simulates users exchanging opinions over direct TCP connections.
A central registry maps user identifiers to addresses; users update their opinion
with every message they accept, weighted by their influence.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Path to config file")
	pf.StringVar(&logLevel, "loglevel", "", "Log level (overrides config)")
	pf.StringVar(&serverIP, "serverIp", "", "Registry host (overrides config)")
	pf.IntVar(&serverPort, "serverPort", 0, "Registry port (overrides config)")
	pf.StringVar(&adminAddr, "admin", "", "Admin HTTP listen address, e.g. 127.0.0.1:8080 (overrides config)")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err}
	})
}

// usageError marks command line mistakes, which are reported together with the usage string.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

// Execute runs the root command. Called from main.go.
func Execute() {
	cmd, err := rootCmd.ExecuteC()
	if err != nil {
		reportError(os.Stderr, cmd, err)
		os.Exit(1)
	}
}

func reportError(w io.Writer, cmd *cobra.Command, err error) {
	fmt.Fprintln(w, "Error:", err)

	var ue *usageError
	if errors.As(err, &ue) {
		fmt.Fprintln(w)
		fmt.Fprint(w, cmd.UsageString())
	}
}

func loadConfig(cmd *cobra.Command, args []string) error {
	// Missing required flags are reported with the usage string
	if err := cmd.ValidateRequiredFlags(); err != nil {
		return &usageError{err}
	}

	c, err := config.NewConfigFromFile(configFile)
	if err != nil {
		return err
	}

	pf := cmd.Flags()
	if pf.Changed("loglevel") {
		c.Logging.Level = logLevel
	}
	if pf.Changed("serverIp") {
		c.Registry.Host = serverIP
	}
	if pf.Changed("serverPort") {
		c.Registry.Port = serverPort
	}
	if pf.Changed("admin") {
		c.Admin.Listen = adminAddr
	}
	if err := c.Validate(); err != nil {
		return err
	}

	setupLogging(c)
	cfg = c
	return nil
}

func setupLogging(c *config.Config) {
	l, err := log.ParseLevel(c.Logging.Level)
	if err != nil {
		l = log.InfoLevel
	}
	log.SetLevel(l)

	if c.Logging.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
