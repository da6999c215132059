package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/code-bush/robustack-dl/internal/fetch"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func init() {
	fetch.Version = version
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), banner())
			return err
		},
	}
}

func banner() string {
	return fmt.Sprintf("RoBustack-DL v%s\n\"Own Your Reading. Byte by Byte.\"\n[GPLv3 + Commercial License]\n", version)
}
