package cli

import (
	"context"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	sserrors "github.com/matzehuels/stacksync/pkg/errors"
	"github.com/matzehuels/stacksync/pkg/install"
	"github.com/matzehuels/stacksync/pkg/manifest"
)

// installCommand creates the install command.
func (c *CLI) installCommand() *cobra.Command {
	var (
		force       bool
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "install [name[@range]...]",
		Short: "Declare dependencies and install them when needed",
		Long: `Install sets the given dependency ranges in package.json and runs the
package manager when an installed version no longer satisfies its range.

A name without a range is pinned to ^latest. With -i, pick the version
of a single package interactively. Without arguments, nothing is installed
unless --force is given.`,
		Example: `  stacksync install left-pad@^1.3.0
  stacksync install @scope/plugin react
  stacksync install -i lodash
  stacksync install --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if interactive && len(args) != 1 {
				return sserrors.New(sserrors.ErrCodeInvalidInput, "-i takes exactly one package name")
			}

			p, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			overrides, err := c.resolveSpecs(ctx, p, args, interactive)
			if err != nil || overrides == nil && len(args) > 0 {
				return err
			}
			return c.runInstall(ctx, p, overrides, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "run the package manager even if everything is satisfied")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "pick the version from a list")

	return cmd
}

// removeCommand creates the remove command.
func (c *CLI) removeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove name...",
		Aliases: []string{"rm"},
		Short:   "Remove dependencies from package.json and reinstall",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			overrides := make(map[string]string, len(args))
			for _, name := range args {
				overrides[name] = ""
			}
			return c.runInstall(ctx, p, overrides, false)
		},
	}
}

// resolveSpecs turns name[@range] arguments into overrides. Bare names are
// pinned to ^latest, or to the picked version when interactive. A nil map
// with a nil error means the picker was cancelled.
func (c *CLI) resolveSpecs(ctx context.Context, p *project, args []string, interactive bool) (map[string]string, error) {
	overrides := make(map[string]string, len(args))
	var bare []string
	for _, arg := range args {
		name, rng := parseSpec(arg)
		if name == "" {
			return nil, sserrors.New(sserrors.ErrCodeInvalidInput, "invalid package spec %q", arg)
		}
		if rng == "" || interactive {
			bare = append(bare, name)
			continue
		}
		overrides[name] = rng
	}
	if len(bare) == 0 {
		return overrides, nil
	}

	spin := newSpinnerWithContext(ctx, "Fetching versions...")
	spin.Start()
	found := make(map[string]string, len(bare))
	for _, name := range bare {
		spin.Update("Fetching versions of " + name + "...")
		vs := p.orch.Versions(ctx, name)
		if len(vs) == 0 {
			spin.Stop()
			return nil, sserrors.New(sserrors.ErrCodePackageNotFound, "no versions of %s found on %s", name, p.client.Endpoint())
		}
		if !interactive {
			found[name] = vs.Latest()
			continue
		}
		spin.Stop()

		var current string
		if pkg, err := manifest.Installed(p.root, name); err == nil {
			current = pkg.Version
		}
		final, err := tea.NewProgram(NewVersionPicker(name, vs, current)).Run()
		if err != nil {
			return nil, err
		}
		picked := final.(VersionPicker).Selected
		if picked == "" {
			printInfo("Cancelled")
			return nil, nil
		}
		found[name] = picked
	}
	spin.Stop()

	for name, v := range found {
		overrides[name] = "^" + v
		c.Logger.Debug("pinned", "name", name, "range", overrides[name])
	}
	return overrides, nil
}

func (c *CLI) runInstall(ctx context.Context, p *project, overrides map[string]string, force bool) error {
	prog := newProgress(loggerFromContext(ctx))
	res, err := p.orch.Install(ctx, overrides, force)
	if err != nil {
		if code, ok := exitCode(err); ok {
			c.Logger.Error("install failed", "id", res.ID, "manager", p.runner.Manager(), "code", code)
		}
		return err
	}

	printResult(res)
	if res.Forced {
		prog.done("Install finished")
	}
	return nil
}

func printResult(res install.Result) {
	if !res.Forced {
		printSuccess("Dependencies already satisfied")
		return
	}
	printSuccess("Installed (%s)", res.Reason)
	for _, name := range res.Reloaded {
		printDetail("reload %s", name)
	}
}

// parseSpec splits name@range. The leading @ of a scoped name is part of
// the name.
func parseSpec(arg string) (name, rng string) {
	i := strings.LastIndex(arg, "@")
	if i <= 0 {
		return arg, ""
	}
	return arg[:i], arg[i+1:]
}

func exitCode(err error) (int, bool) {
	var ee *sserrors.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode, true
	}
	return 0, false
}
