package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/artic-client/pkg/catalog"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

func newPageCmd(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "page N",
		Short: "Print one page of artworks",
		Example: `  # First page as a table
  artic page 1

  # Third page as JSON
  artic page 3 --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := strconv.Atoi(args[0])
			if err != nil || number < 1 {
				return fmt.Errorf("page must be a positive integer, got %q", args[0])
			}
			if output != outputTable && output != outputJSON {
				return fmt.Errorf("unknown output format %q (want %s or %s)", output, outputTable, outputJSON)
			}

			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			page, err := a.client.FetchPage(cmd.Context(), number)
			if errors.Is(err, catalog.ErrEndOfCatalog) {
				page = &catalog.Page{Number: number, Items: []catalog.Item{}}
			} else if err != nil {
				return err
			}

			if output == outputJSON {
				return writeJSON(cmd.OutOrStdout(), page)
			}
			return writePageTable(cmd.OutOrStdout(), page)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "output format: table or json")

	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writePageTable(w io.Writer, page *catalog.Page) error {
	if len(page.Items) == 0 {
		_, err := fmt.Fprintf(w, "Page %d: no artworks\n", page.Number)
		return err
	}

	rows := make([][]string, 0, len(page.Items))
	for _, it := range page.Items {
		rows = append(rows, []string{
			strconv.Itoa(it.ID),
			it.Title,
			it.PlaceOfOrigin,
			it.ArtistDisplay,
			it.Inscriptions,
			year(it.DateStart),
			year(it.DateEnd),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "Title", "Place of Origin", "Artist", "Inscriptions", "Start", "End").
		Rows(rows...)

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func year(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}
