package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCompletionsCmd() *cobra.Command {
	var shell string

	cmd := &cobra.Command{
		Use:   "completions",
		Short: "Generate a shell completion script",
		Example: "  robustack-dl completions --shell bash > /etc/bash_completion.d/robustack-dl\n" +
			"  robustack-dl completions --shell zsh > \"${fpath[1]}/_robustack-dl\"",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root := cmd.Root()
			out := cmd.OutOrStdout()
			switch shell {
			case "bash":
				return root.GenBashCompletionV2(out, true)
			case "zsh":
				return root.GenZshCompletion(out)
			case "fish":
				return root.GenFishCompletion(out, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell %q (bash, zsh, fish, powershell)", shell)
			}
		},
	}
	cmd.Flags().StringVarP(&shell, "shell", "s", "", "Shell: bash, zsh, fish or powershell (required)")
	if err := cmd.MarkFlagRequired("shell"); err != nil {
		panic(fmt.Sprintf("failed to mark shell flag as required: %v", err))
	}
	return cmd
}
