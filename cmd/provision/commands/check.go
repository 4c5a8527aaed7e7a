package commands

import (
	"github.com/spf13/cobra"
)

func newCheckCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that this host is supported",
		Long: `Run only the platform gate: detect the CPU architecture and the
distribution release and check them against the support matrix.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			host, err := a.gate().Check(ctx, a.catalog.SupportMatrix())
			if err != nil {
				return err
			}
			return a.out.host(host)
		},
	}
}
