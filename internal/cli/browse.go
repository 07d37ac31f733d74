package cli

import (
	"github.com/spf13/cobra"

	"github.com/Sternrassler/artic-client/internal/tui"
	"github.com/Sternrassler/artic-client/pkg/logging"
)

func newBrowseCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse artworks page by page in the terminal",
		Long: `Opens an interactive table of artworks.

Keys: n/→ next page, p/← previous page, space toggle the row,
s select the first N artworks, q quit. Logs go to the file set by
logging.file while the table is open.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logFile, err := logging.OpenFile(opts.cfg.Logging.File)
			if err != nil {
				return err
			}
			defer logFile.Close()

			logging.Setup(logging.Config{
				Level:  logging.LogLevel(opts.cfg.Logging.Level),
				Output: logFile,
			})

			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return tui.Run(cmd.Context(), a.session)
		},
	}
}
