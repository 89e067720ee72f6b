package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	sserrors "github.com/matzehuels/stacksync/pkg/errors"
	"github.com/matzehuels/stacksync/pkg/versions"
)

// versionsCommand creates the versions command.
func (c *CLI) versionsCommand() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "versions name",
		Short: "List the registry versions of a package, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := args[0]
			if err := sserrors.ValidateNpmPackageName(name); err != nil {
				return err
			}

			p, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			vs := p.orch.Versions(ctx, name)
			if len(vs) == 0 {
				return sserrors.New(sserrors.ErrCodePackageNotFound, "no versions of %s found on %s", name, p.client.Endpoint())
			}
			if limit > 0 && len(vs) > limit {
				vs = vs[:limit]
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(vs)
			}
			printVersions(name, vs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "show at most n versions (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print releases as JSON")

	return cmd
}

func printVersions(name string, vs versions.Versions) {
	fmt.Println(StyleTitle.Render(name))
	for _, r := range vs {
		line := StyleValue.Render(fmt.Sprintf("%-16s", r.Version))
		if peers := peerList(r); peers != "-" {
			line += " " + StyleDim.Render(peers)
		}
		if r.Deprecated != "" {
			line += " " + StyleWarning.Render("deprecated")
		}
		fmt.Println("  " + line)
	}
}
