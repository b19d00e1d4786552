package remote

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"recipebox/internal/model"
)

// DefaultPageSize is used when a query does not set a limit.
const DefaultPageSize = 50

// paginate applies the query to an unordered collection the way a server
// would: filter, order by UpdatedAt descending (ties by id), then cut one page.
// Cursors are opaque offsets.
func paginate(recipes []*model.Recipe, query model.Query) (*model.Page, error) {
	matched := make([]*model.Recipe, 0, len(recipes))
	for _, r := range recipes {
		if query.Owner != "" && r.Owner != query.Owner {
			continue
		}
		if !r.Matches(query.Search) || !r.MatchesFilters(query.Filters) {
			continue
		}
		matched = append(matched, r)
	}

	slices.SortFunc(matched, func(a, b *model.Recipe) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	offset := 0
	if query.Cursor != "" {
		n, err := strconv.Atoi(query.Cursor)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid cursor %q", query.Cursor)
		}
		offset = n
	}
	limit := query.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}

	page := &model.Page{}
	if offset >= len(matched) {
		return page, nil
	}
	end := min(offset+limit, len(matched))
	page.Recipes = matched[offset:end]
	if end < len(matched) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

// validID rejects ids that could escape a key prefix or directory.
func validID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid recipe id %q", id)
	}
	return nil
}
