package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stacksync/pkg/config"
	"github.com/matzehuels/stacksync/pkg/server"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr string
		warm bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the install API and version broadcasts to a host",
		Long: `Serve runs an HTTP API for the project:

  GET  /api/dependencies      current dependency snapshot
  GET  /api/versions/{name}   registry versions of a package
  POST /api/install           {"dependencies": {...}, "force": false}
  POST /api/invalidate        drop cached versions and the snapshot
  GET  /ws                    version deltas and reload requests

The host connects to /ws, reports the modules it has loaded and reloads
the ones named in "reload" messages after an install.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			if addr == "" {
				addr = p.cfg.Serve.Addr
			}
			srv := server.New(p.orch, c.Logger)

			if warm {
				go func() {
					if _, err := p.orch.Snapshot(ctx); err != nil {
						c.Logger.Warn("initial snapshot failed", "err", err)
					}
				}()
			}

			printKeyValue("project", p.root)
			printKeyValue("registry", p.client.Endpoint())
			printKeyValue("manager", fmt.Sprintf("%s %s", p.runner.Manager(), p.runner.Version()))
			printInfo("Listening on %s", StyleLink.Render("http://"+addr))
			printNextStep("Connect a host", "ws://"+addr+"/ws")
			return srv.Start(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: serve.addr from config, else "+config.DefaultServeAddr+")")
	cmd.Flags().BoolVar(&warm, "warm", true, "build the dependency snapshot at startup")

	return cmd
}
