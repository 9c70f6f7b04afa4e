package search

import "sort"

// SortResults orders results by fused score descending, ties broken by
// document id ascending. Engine relies on vectorstore.Store.HybridSearch to
// have already fused and sorted the list, so this is a defensive re-sort
// for Store implementations that don't guarantee it themselves — grounded
// on the tie-break priority the teacher's RRFFusion.compare used.
func SortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}
