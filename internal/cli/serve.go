package cli

import (
	"github.com/spf13/cobra"

	"github.com/Sternrassler/artic-client/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve artworks and the selection over HTTP",
		Long: `Starts an HTTP server with these routes:

  GET  /health
  GET  /metrics
  GET  /api/artworks?page=N
  GET  /api/selection
  PUT  /api/selection                 {"ids": [...]}
  POST /api/selection/toggle/{id}
  POST /api/selection/first?n=N`,
		Example: `  # Serve on the configured address
  artic serve

  # Share the selection between instances through Redis
  artic serve --addr :9090 --redis-url redis://localhost:6379/0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = opts.cfg.Server.Addr
			}

			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.New(a.client, a.session, a.store)
			return srv.Run(cmd.Context(), addr, opts.cfg.Server.ShutdownTimeout)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (default from config, :8080)")

	return cmd
}
