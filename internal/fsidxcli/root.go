package fsidxcli

import (
	"github.com/spf13/cobra"

	"fsindex/internal/version"
)

func NewRootCommand() *cobra.Command {
	opts := newDefaultOptions()
	cmd := &cobra.Command{
		Use:   "fsidx",
		Short: "Search and manage the filesystem name index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.Version = version.String()
	cmd.InitDefaultVersionFlag()
	if f := cmd.Flags().Lookup("version"); f != nil {
		f.Shorthand = "v"
	}

	withOptionsContext(cmd, opts)
	bindFlags(cmd, opts)

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if opts := optionsFrom(cmd); opts != nil {
			return opts.Prepare()
		}
		return nil
	}

	cmd.AddCommand(newSearchCommand())
	cmd.AddCommand(newAddCommand())
	cmd.AddCommand(newRmCommand())
	cmd.AddCommand(newExistsCommand())
	cmd.AddCommand(newStatusCommand())
	cmd.AddCommand(newPingCommand())
	cmd.AddCommand(newConfigCommand())
	return cmd
}
