package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/scopenav/scopenav/internal/dashboards"
	"github.com/scopenav/scopenav/internal/scopes"
)

var (
	selectNodes  []string
	selectURL    string
	selectSearch string
	selectOutput string
)

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Select scope nodes, apply them and print the resulting dashboards and URL.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSelect(cmd.Context(), cmd.OutOrStdout())
	},
}

type selectResult struct {
	Scopes     []scopes.SelectedScope `json:"scopes"`
	Dashboards dashboards.Folders     `json:"dashboards"`
	URL        string                 `json:"url"`
}

func runSelect(ctx context.Context, w io.Writer) error {
	format, err := resolveOutputFormat(selectOutput, w)
	if err != nil {
		return err
	}
	if len(selectNodes) == 0 && selectURL == "/" {
		return errors.New("nothing to select: pass --node or --url with scopes")
	}

	a, err := startClientApp(ctx, selectURL)
	if err != nil {
		return err
	}
	defer a.Close()

	sel := a.Selector
	if len(selectNodes) > 0 {
		sel.OpenPicker()
		for _, raw := range selectNodes {
			path := scopes.ParsePath(raw)
			if len(path) < 2 {
				return fmt.Errorf("--node %q does not name a node", raw)
			}
			if err := expandAlong(ctx, sel, scopes.ParentPath(path), ""); err != nil {
				return err
			}
			if err := sel.ToggleNodeSelect(path); err != nil {
				return fmt.Errorf("select %q: %w", raw, err)
			}
		}
		if err := sel.ApplySelection(ctx); err != nil {
			return err
		}
		sel.ClosePicker()
	}
	a.Dashboards.Wait()
	if selectSearch != "" {
		a.Dashboards.ChangeSearchQuery(selectSearch)
	}

	res := selectResult{
		Scopes:     sel.Snapshot().Scopes,
		Dashboards: a.Dashboards.Snapshot().FilteredFolders,
		URL:        a.CurrentLocation().String(),
	}
	if format == outputJSON {
		return writeJSON(w, res)
	}

	fmt.Fprintln(w, "Scopes:")
	for _, s := range res.Scopes {
		fmt.Fprintf(w, "  %s (%s) %s\n", s.Scope.Spec.Title, s.Scope.Metadata.Name, scopes.FormatPath(s.Path))
	}
	fmt.Fprintln(w, "Dashboards:")
	printFolders(w, res.Dashboards)
	fmt.Fprintf(w, "URL: %s\n", res.URL)
	return nil
}

func init() {
	selectCmd.Flags().StringArrayVar(&selectNodes, "node", nil, "Node path to select, e.g. prod/eu/checkout (repeatable)")
	selectCmd.Flags().StringVar(&selectURL, "url", "/", "Initial URL; scopes query parameters are restored first")
	selectCmd.Flags().StringVar(&selectSearch, "search", "", "Filter the dashboards by folder or dashboard title")
	addOutputFlag(selectCmd, &selectOutput)
}
