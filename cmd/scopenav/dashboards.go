package main

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"
)

var (
	dashboardsScopes []string
	dashboardsSearch string
	dashboardsOutput string
)

var dashboardsCmd = &cobra.Command{
	Use:   "dashboards",
	Short: "Print the dashboards bound to the given scopes, grouped into folders.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDashboards(cmd.Context(), cmd.OutOrStdout())
	},
}

func runDashboards(ctx context.Context, w io.Writer) error {
	format, err := resolveOutputFormat(dashboardsOutput, w)
	if err != nil {
		return err
	}
	if len(dashboardsScopes) == 0 {
		return errors.New("pass at least one --scope")
	}

	a, err := startClientApp(ctx, "/")
	if err != nil {
		return err
	}
	defer a.Close()

	a.Dashboards.FetchDashboards(ctx, dashboardsScopes)
	if err := ctx.Err(); err != nil {
		return err
	}
	if dashboardsSearch != "" {
		a.Dashboards.ChangeSearchQuery(dashboardsSearch)
	}

	folders := a.Dashboards.Snapshot().FilteredFolders
	if format == outputJSON {
		return writeJSON(w, folders)
	}
	printFolders(w, folders)
	return nil
}

func init() {
	dashboardsCmd.Flags().StringArrayVar(&dashboardsScopes, "scope", nil, "Scope name (repeatable)")
	dashboardsCmd.Flags().StringVar(&dashboardsSearch, "search", "", "Filter by folder or dashboard title")
	addOutputFlag(dashboardsCmd, &dashboardsOutput)
}
