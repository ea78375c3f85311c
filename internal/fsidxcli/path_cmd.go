package fsidxcli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add <path>",
		Short: "Queue a path for indexing",
		Long:  "Queue a path for indexing. Prints whether a document for it is already committed; a fresh addition prints false until its batch flushes.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := optionsFrom(cmd)
			if opts == nil {
				return fmt.Errorf("options missing")
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			c, err := dialDaemon(opts)
			if err != nil {
				return err
			}
			defer c.Close()

			indexed, err := c.PathAdd(path)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), indexed)
			return nil
		},
	}
}

func newRmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Remove a path from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := optionsFrom(cmd)
			if opts == nil {
				return fmt.Errorf("options missing")
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			c, err := dialDaemon(opts)
			if err != nil {
				return err
			}
			defer c.Close()

			removed, err := c.PathRemove(path)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), removed)
			return nil
		},
	}
}

func newExistsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <path>",
		Short: "Check whether a path has a committed document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := optionsFrom(cmd)
			if opts == nil {
				return fmt.Errorf("options missing")
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			c, err := dialDaemon(opts)
			if err != nil {
				return err
			}
			defer c.Close()

			exists, err := c.PathExists(path)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), exists)
			return nil
		},
	}
}
