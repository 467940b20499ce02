package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/scopenav/scopenav/internal/nodetree"
	"github.com/scopenav/scopenav/internal/scopes"
)

var (
	treeExpand []string
	treeQuery  string
	treeOutput string
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the scope node tree served by the scopes API.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTree(cmd.Context(), cmd.OutOrStdout())
	},
}

func runTree(ctx context.Context, w io.Writer) error {
	format, err := resolveOutputFormat(treeOutput, w)
	if err != nil {
		return err
	}

	a, err := startClientApp(ctx, "/")
	if err != nil {
		return err
	}
	defer a.Close()

	last := []string{""}
	for _, raw := range treeExpand {
		last = scopes.ParsePath(raw)
		if err := expandAlong(ctx, a.Selector, last, ""); err != nil {
			return err
		}
	}
	if treeQuery != "" {
		if err := a.Selector.UpdateNode(ctx, last, true, treeQuery); err != nil {
			return err
		}
	}

	st := a.Selector.Snapshot()
	if format == outputJSON {
		return writeJSON(w, treeToJSON(st, nodetree.RootID))
	}
	printTree(w, st)
	return nil
}

func init() {
	treeCmd.Flags().StringArrayVar(&treeExpand, "expand", nil, "Node path to expand, e.g. prod/eu (repeatable)")
	treeCmd.Flags().StringVar(&treeQuery, "query", "", "Filter the children of the last expanded node by title")
	addOutputFlag(treeCmd, &treeOutput)
}
