package dashboards

import (
	"errors"
	"slices"
	"strings"

	"github.com/scopenav/scopenav/internal/scopes"
)

// RootFolder is the key of the top level folder.
const RootFolder = ""

// ErrFolderNotFound is returned by UpdateFolder for a path that does not exist.
var ErrFolderNotFound = errors.New("folder not found")

// Folders maps folder keys to folders. Published trees are never modified:
// operations build new maps along the paths they change.
type Folders map[string]Folder

type Folder struct {
	Title      string               `json:"title"`
	IsExpanded bool                 `json:"isExpanded"`
	Folders    Folders              `json:"folders"`
	Dashboards map[string]Dashboard `json:"dashboards"`
}

// Dashboard is one suggested dashboard with every binding that points at it.
type Dashboard struct {
	Dashboard      string                         `json:"dashboard"`
	DashboardTitle string                         `json:"dashboardTitle"`
	Items          []scopes.ScopeDashboardBinding `json:"items"`
}

func newFolder(title string, expanded bool) Folder {
	return Folder{
		Title:      title,
		IsExpanded: expanded,
		Folders:    Folders{},
		Dashboards: map[string]Dashboard{},
	}
}

// GroupDashboards builds the folder tree for bindings. The root folder "" is
// always present and expanded. Each non-empty group becomes a collapsed
// sub-folder of the root; a binding lands in every one of its groups, the
// empty group meaning the root itself, or in the root when it has no groups.
func GroupDashboards(bindings []scopes.ScopeDashboardBinding) Folders {
	root := newFolder("", true)

	for _, binding := range bindings {
		groups := binding.Status.Groups
		for _, group := range groups {
			if group == "" {
				continue
			}
			if _, ok := root.Folders[group]; !ok {
				root.Folders[group] = newFolder(group, false)
			}
		}

		if len(groups) == 0 {
			addBinding(root.Dashboards, binding)
			continue
		}
		for _, group := range groups {
			if group == "" {
				addBinding(root.Dashboards, binding)
				continue
			}
			addBinding(root.Folders[group].Dashboards, binding)
		}
	}
	return Folders{RootFolder: root}
}

func addBinding(target map[string]Dashboard, binding scopes.ScopeDashboardBinding) {
	key := binding.Spec.Dashboard
	entry, ok := target[key]
	if !ok {
		entry = Dashboard{Dashboard: key, DashboardTitle: binding.Status.DashboardTitle}
	}
	entry.Items = append(entry.Items, binding)
	target[key] = entry
}

// FilterFolders keeps the folders that match query, case-insensitively. A
// folder whose title matches is kept whole. Otherwise only its matching
// dashboards and sub-folders are kept, and the folder is dropped when nothing
// is left. Every kept folder is expanded.
func FilterFolders(folders Folders, query string) Folders {
	return filterFolders(folders, strings.ToLower(query))
}

func filterFolders(folders Folders, query string) Folders {
	out := Folders{}
	for key, folder := range folders {
		if strings.Contains(strings.ToLower(folder.Title), query) {
			folder.IsExpanded = true
			out[key] = folder
			continue
		}

		sub := filterFolders(folder.Folders, query)
		dashboards := map[string]Dashboard{}
		for name, d := range folder.Dashboards {
			if strings.Contains(strings.ToLower(d.DashboardTitle), query) {
				dashboards[name] = d
			}
		}
		if len(sub) > 0 || len(dashboards) > 0 {
			out[key] = Folder{
				Title:      folder.Title,
				IsExpanded: true,
				Folders:    sub,
				Dashboards: dashboards,
			}
		}
	}
	return out
}

// withExpanded returns folders with the folder at path set to isExpanded. Only
// the maps along path are copied.
func withExpanded(folders Folders, path []string, isExpanded bool) (Folders, error) {
	if len(path) == 0 {
		return folders, ErrFolderNotFound
	}
	folder, ok := folders[path[0]]
	if !ok {
		return folders, ErrFolderNotFound
	}
	if len(path) == 1 {
		folder.IsExpanded = isExpanded
	} else {
		sub, err := withExpanded(folder.Folders, path[1:], isExpanded)
		if err != nil {
			return folders, err
		}
		folder.Folders = sub
	}
	out := make(Folders, len(folders))
	for k, v := range folders {
		out[k] = v
	}
	out[path[0]] = folder
	return out, nil
}

// SortedKeys returns the sub-folder keys ordered by title then key.
func (f Folders) SortedKeys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if c := strings.Compare(f[a].Title, f[b].Title); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return keys
}

// SortedDashboards returns the folder's dashboards ordered by title then name.
func (f Folder) SortedDashboards() []Dashboard {
	out := make([]Dashboard, 0, len(f.Dashboards))
	for _, d := range f.Dashboards {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Dashboard) int {
		if c := strings.Compare(a.DashboardTitle, b.DashboardTitle); c != 0 {
			return c
		}
		return strings.Compare(a.Dashboard, b.Dashboard)
	})
	return out
}

// CountDashboards counts distinct dashboard entries in the tree.
func (f Folders) CountDashboards() int {
	n := 0
	for _, folder := range f {
		n += len(folder.Dashboards) + folder.Folders.CountDashboards()
	}
	return n
}
