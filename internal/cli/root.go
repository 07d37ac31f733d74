// Package cli defines the artic command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/artic-client/internal/config"
	"github.com/Sternrassler/artic-client/pkg/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	redisURL   string

	cfg config.Config
}

// NewRootCmd builds the root command with all subcommands.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "artic",
		Short: "Browse the Art Institute of Chicago collection and select artworks",
		Long: `artic pages through the Art Institute of Chicago artworks API.

It shows one page of artworks at a time, lets you select rows, and can
select the first N artworks of the collection across as many pages as needed.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Logging.Level = opts.logLevel
			}
			if opts.redisURL != "" {
				cfg.Redis.URL = opts.redisURL
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			opts.cfg = cfg

			logging.Setup(logging.Config{
				Level:  logging.LogLevel(cfg.Logging.Level),
				Pretty: cfg.Logging.Pretty,
				Output: os.Stderr,
			})
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $ARTIC_CONFIG or ./artic.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&opts.redisURL, "redis-url", "", "Redis URL for the page cache and shared selection")

	cmd.AddCommand(newBrowseCmd(opts))
	cmd.AddCommand(newPageCmd(opts))
	cmd.AddCommand(newSelectCmd(opts))
	cmd.AddCommand(newServeCmd(opts))

	return cmd
}
