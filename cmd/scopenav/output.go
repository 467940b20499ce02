package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/scopenav/scopenav/internal/dashboards"
	"github.com/scopenav/scopenav/internal/nodetree"
	"github.com/scopenav/scopenav/internal/selector"
)

const (
	outputText = "text"
	outputJSON = "json"
)

func addOutputFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "output", "o", "", "Output format: text or json (default text on a terminal, json otherwise)")
}

// resolveOutputFormat validates flag, defaulting to text when w is a terminal.
func resolveOutputFormat(flag string, w io.Writer) (string, error) {
	switch strings.ToLower(strings.TrimSpace(flag)) {
	case outputText:
		return outputText, nil
	case outputJSON:
		return outputJSON, nil
	case "":
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return outputText, nil
		}
		return outputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", flag)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type treeNodeJSON struct {
	Name       string         `json:"name"`
	Title      string         `json:"title"`
	NodeType   string         `json:"nodeType"`
	LinkID     string         `json:"linkId,omitempty"`
	IsExpanded bool           `json:"isExpanded,omitempty"`
	IsSelected bool           `json:"isSelected,omitempty"`
	Children   []treeNodeJSON `json:"children,omitempty"`
}

func treeToJSON(st selector.State, id nodetree.NodeID) []treeNodeJSON {
	children := st.Tree.Children(id)
	out := make([]treeNodeJSON, 0, len(children))
	for _, n := range children {
		item := treeNodeJSON{
			Name:       n.Name,
			Title:      n.Title,
			NodeType:   string(n.NodeType),
			LinkID:     n.LinkID,
			IsExpanded: n.IsExpanded,
			IsSelected: n.IsSelectable && st.IsSelected(n.LinkID),
		}
		if n.IsExpanded {
			item.Children = treeToJSON(st, n.ID)
		}
		out = append(out, item)
	}
	return out
}

func printTree(w io.Writer, st selector.State) {
	st.Tree.Walk(nodetree.RootID, func(n nodetree.Node, depth int) bool {
		marker := "  "
		switch {
		case n.IsSelectable && st.IsSelected(n.LinkID):
			marker = "[x]"
		case n.IsSelectable:
			marker = "[ ]"
		case n.IsExpanded:
			marker = "-"
		case n.IsExpandable:
			marker = "+"
		}
		fmt.Fprintf(w, "%s%s %s (%s)\n", strings.Repeat("  ", depth), marker, n.Title, n.Name)
		return n.IsExpanded
	})
}

func printFolders(w io.Writer, folders dashboards.Folders) {
	root, ok := folders[dashboards.RootFolder]
	if !ok {
		fmt.Fprintln(w, "no dashboards")
		return
	}
	printFolder(w, root, 0)
}

func printFolder(w io.Writer, folder dashboards.Folder, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, key := range folder.Folders.SortedKeys() {
		sub := folder.Folders[key]
		fmt.Fprintf(w, "%s%s/\n", indent, sub.Title)
		printFolder(w, sub, depth+1)
	}
	for _, d := range folder.SortedDashboards() {
		fmt.Fprintf(w, "%s- %s (%s)\n", indent, d.DashboardTitle, d.Dashboard)
	}
}
