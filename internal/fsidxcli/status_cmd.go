package fsidxcli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and index status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := optionsFrom(cmd)
			if opts == nil {
				return fmt.Errorf("options missing")
			}

			c, err := dialDaemon(opts)
			if err != nil {
				return err
			}
			defer c.Close()

			st, err := c.Status()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.JSONL {
				enc := json.NewEncoder(w)
				return enc.Encode(st)
			}

			_, _ = fmt.Fprintf(w, "version:    %s\n", st.Version)
			_, _ = fmt.Fprintf(w, "instance:   %s\n", st.Instance)
			_, _ = fmt.Fprintf(w, "backend:    %s\n", st.Backend)
			_, _ = fmt.Fprintf(w, "index dir:  %s\n", st.IndexDir)
			_, _ = fmt.Fprintf(w, "documents:  %d\n", st.DocCount)
			_, _ = fmt.Fprintf(w, "pending:    %d\n", st.Pending)
			_, _ = fmt.Fprintf(w, "additions:  %d\n", st.Additions)
			_, _ = fmt.Fprintf(w, "deletions:  %d\n", st.Deletions)
			if len(st.Roots) > 0 {
				_, _ = fmt.Fprintf(w, "roots:      %s\n", strings.Join(st.Roots, ", "))
			}
			for _, mi := range st.Mounts {
				_, _ = fmt.Fprintf(w, "mount:      %s on %s (%s)\n", mi.Root, mi.MountPoint, mi.FSType)
			}
			if st.LastScan != "" {
				_, _ = fmt.Fprintf(w, "last scan:  %s\n", st.LastScan)
			}
			return nil
		},
	}
}

func newPingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the daemon answers on its socket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := optionsFrom(cmd)
			if opts == nil {
				return fmt.Errorf("options missing")
			}

			c, err := dialDaemon(opts)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Ping(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "pong")
			return nil
		},
	}
}
