package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/code-bush/robustack-dl/internal/observability"
	"github.com/code-bush/robustack-dl/internal/substack"
)

func newListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the posts of a publication",
		Args:  cobra.NoArgs,
		RunE:  a.runList,
	}
	cmd.Flags().StringP("url", "u", "", "Publication URL (required)")
	cmd.Flags().Int("limit", 0, "Maximum number of posts (0 for all)")
	return cmd
}

func (a *app) runList(cmd *cobra.Command, _ []string) error {
	if a.cfg.URL == "" {
		return fmt.Errorf("--url is required")
	}
	baseURL, err := substack.NormalizeBaseURL(a.cfg.URL)
	if err != nil {
		return err
	}

	client, err := a.newClient(baseURL)
	if err != nil {
		return err
	}

	posts, err := substack.NewLister(client, a.log).ListItems(cmd.Context(), baseURL, a.cfg.Filter())
	if err != nil {
		return fmt.Errorf("failed to list posts: %w", err)
	}

	observability.NewPrinter(cmd.OutOrStdout()).PrintPosts(posts)
	return nil
}
