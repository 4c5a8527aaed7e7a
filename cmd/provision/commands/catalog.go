package commands

import (
	"github.com/spf13/cobra"

	"github.com/openfroyo/devprovision/pkg/config"
	"github.com/openfroyo/devprovision/pkg/engine"
)

func newCatalogCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the package set for a platform",
		Long: `Print the ordered package set the catalog resolves for the detected
host, or for --platform, with the versions of the versioned dependencies.`,
		Example: `  provision catalog --platform Ubuntu/trusty`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			rc, err := config.Build(a.cfg, opts.flags)
			if err != nil {
				return err
			}
			rc, err = a.host(ctx, rc)
			if err != nil {
				return err
			}

			id := rc.Platform
			versions := map[string]string{
				engine.DatabaseDependency: a.catalog.Version(engine.DatabaseDependency, id),
			}
			return a.out.packages(id, versions, a.catalog.Resolve(id))
		},
	}

	addPlatformFlag(cmd, opts)
	return cmd
}
