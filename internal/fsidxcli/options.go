package fsidxcli

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fsindex/internal/config"
	"fsindex/internal/fsidxd"
)

type Options struct {
	Socket string
	JSONL  bool
}

func (o *Options) Prepare() error {
	if strings.TrimSpace(o.Socket) == "" {
		o.Socket = config.DefaultSocketPath()
	}
	return nil
}

type optionsKey struct{}

func optionsFrom(cmd *cobra.Command) *Options {
	if cmd == nil {
		return nil
	}
	root := cmd.Root()
	if root == nil {
		root = cmd
	}
	v := root.Context().Value(optionsKey{})
	opts, _ := v.(*Options)
	return opts
}

func bindFlags(cmd *cobra.Command, opts *Options) {
	cmd.PersistentFlags().StringVar(&opts.Socket, "socket", opts.Socket, "daemon socket path")
	cmd.PersistentFlags().BoolVar(&opts.JSONL, "jsonl", opts.JSONL, "output as JSONL")
}

func withOptionsContext(cmd *cobra.Command, opts *Options) {
	cmd.SetContext(context.WithValue(context.Background(), optionsKey{}, opts))
}

func newDefaultOptions() *Options {
	return &Options{}
}

func dialDaemon(opts *Options) (*fsidxd.Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("options missing")
	}
	c, err := fsidxd.Dial(opts.Socket)
	if err != nil {
		return nil, fmt.Errorf("cannot reach daemon at %s (is fsidxd running?): %w", opts.Socket, err)
	}
	return c, nil
}

func ExecuteForTest(cmd *cobra.Command) (string, Options, error) {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	err := cmd.Execute()

	opts := optionsFrom(cmd)
	if opts == nil {
		return out.String(), Options{}, err
	}

	return out.String(), *opts, err
}
