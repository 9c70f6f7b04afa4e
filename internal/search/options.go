package search

import "github.com/codectx/codectx/internal/vectorstore"

// ApplyFilter re-applies filterExpr as a post-filter on an already-fused
// result list. Engine relies on vectorstore.Store.HybridSearch to apply
// the filter during fusion; this is for callers that merge results from
// more than one collection after the fact, where a single Store call
// can't have filtered for them — grounded on the teacher's
// ApplyFilters/FilterFunc pattern.
func ApplyFilter(results []Result, filterExpr string) ([]Result, error) {
	filter, err := vectorstore.ParseFilter(filterExpr)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		return results, nil
	}

	filtered := make([]Result, 0, len(results))
	for _, r := range results {
		if filter.Match(r.Row) {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}
