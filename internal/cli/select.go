package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/artic-client/internal/viewer"
	"github.com/Sternrassler/artic-client/pkg/pagination"
)

func newSelectCmd(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "select N",
		Short: "Select the first N artworks and print their IDs",
		Long: `Select the first N artworks of the collection, fetching pages in order
until N artworks are known or the collection ends. The selection replaces
the stored one (in Redis when --redis-url is set).

N must be a positive whole number; anything else leaves the selection as is.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != outputTable && output != outputJSON {
				return fmt.Errorf("unknown output format %q (want %s or %s)", output, outputTable, outputJSON)
			}

			n, ok := viewer.ParseCount(args[0])
			if !ok {
				fmt.Fprintf(cmd.ErrOrStderr(), "%q is not a positive number; selection unchanged\n", args[0])
				return nil
			}

			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.session.SelectFirstN(cmd.Context(), n)
			if res == nil {
				return err
			}
			if errors.Is(err, pagination.ErrPublish) {
				return err
			}
			if errors.Is(err, pagination.ErrIncomplete) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: stopped after %d artworks: %v\n", len(res.IDs), err)
			} else if err != nil {
				return err
			}

			if output == outputJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"ids":           res.IDs,
					"pages_fetched": res.Pages,
					"exhausted":     res.Exhausted,
				})
			}
			for _, id := range res.IDs {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "output format: table (one ID per line) or json")

	return cmd
}
