package fsidxcli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fsindex/internal/fsidxd"
)

func newSearchCommand() *cobra.Command {
	var dir string
	var offset int
	var maxCount int
	var caseSensitive bool

	cmd := &cobra.Command{
		Use:   "search <keyword>...",
		Short: "Search indexed file names",
		Long:  "Search indexed file names. Keywords match as substrings and all of them must match.",
		Args:  cobra.MinimumNArgs(1),
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

			paths, err := c.Search(fsidxd.SearchParams{
				Keywords:      strings.Join(args, " "),
				Dir:           dir,
				Offset:        offset,
				MaxCount:      maxCount,
				CaseSensitive: caseSensitive,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, p := range paths {
				if opts.JSONL {
					b, err := json.Marshal(map[string]string{"path": p})
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintln(out, string(b))
					continue
				}
				_, _ = fmt.Fprintln(out, p)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "restrict matches to a directory subtree")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of results to skip")
	cmd.Flags().IntVarP(&maxCount, "max-count", "n", 0, "maximum results (default 50)")
	cmd.Flags().BoolVarP(&caseSensitive, "case-sensitive", "c", false, "match keyword case exactly")
	return cmd
}
