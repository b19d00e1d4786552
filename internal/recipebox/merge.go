package recipebox

import (
	"slices"
	"strings"

	"recipebox/internal/model"
)

// mergeRecipes reconciles the local and remote collections by id.
//
// Remote order is kept. For an id present remotely the remote version wins,
// unless the id has an undelivered add or update, in which case the local
// version takes its place; ids with an undelivered delete are dropped.
// Recipes only known locally are appended after the remote ones, newest first.
func mergeRecipes(local, remote []*model.Recipe, pending map[string]model.Action) []*model.Recipe {
	localByID := make(map[string]*model.Recipe, len(local))
	for _, r := range local {
		localByID[r.ID] = r
	}

	merged := make([]*model.Recipe, 0, len(local)+len(remote))
	seen := make(map[string]bool, len(remote))

	for _, r := range remote {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true

		switch pending[r.ID] {
		case model.ActionDelete:
			continue
		case model.ActionAdd, model.ActionUpdate:
			if l, ok := localByID[r.ID]; ok {
				merged = append(merged, l)
				continue
			}
		}
		merged = append(merged, r)
	}

	var localOnly []*model.Recipe
	for _, r := range local {
		if !seen[r.ID] {
			localOnly = append(localOnly, r)
		}
	}

	return append(merged, sortNewestFirst(localOnly)...)
}

// sortNewestFirst returns recipes ordered by UpdatedAt descending, ties broken by id.
func sortNewestFirst(recipes []*model.Recipe) []*model.Recipe {
	sorted := slices.Clone(recipes)
	slices.SortStableFunc(sorted, func(a, b *model.Recipe) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return sorted
}

// filterRecipes keeps the recipes matching the query's search term, flag
// filters and owner, preserving order.
func filterRecipes(recipes []*model.Recipe, query model.Query) []*model.Recipe {
	out := make([]*model.Recipe, 0, len(recipes))
	for _, r := range recipes {
		if query.Owner != "" && r.Owner != query.Owner {
			continue
		}
		if !r.Matches(query.Search) || !r.MatchesFilters(query.Filters) {
			continue
		}
		out = append(out, r)
	}
	return out
}
