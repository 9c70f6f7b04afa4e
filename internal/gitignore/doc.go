// Package gitignore provides gitignore pattern matching for codectx's
// file discovery, following the syntax documented at:
// https://git-scm.com/docs/gitignore
//
// Features:
//   - Basic pattern matching (*.log, temp/)
//   - Wildcard patterns (*, ?, **)
//   - Rooted patterns (/build)
//   - Negation patterns (!important.log)
//   - Directory-only patterns (build/)
//   - Nested .gitignore scoping
//   - Thread-safe matching
//
// internal/walker builds one PathFilter for each directory that has its
// own .gitignore, holding that file's rules after those of every ancestor
// .gitignore up to the walk root, and caches it per directory so a later
// Walk by the same Walker doesn't recompile the same patterns:
//
//	f := gitignore.NewPathFilter()
//	f.AddRule("*.log")
//	f.AddRule("!important.log")
//	f.AddScopedRule("/build/", "cmd/tool")
//
//	if f.Ignored("cmd/tool/build/out.bin", false) {
//	    // skip it
//	}
//
// internal/watcher rebuilds its PathFilter from scratch whenever a
// .gitignore changes, using PatternDelta to log what was added or removed
// before reloading:
//
//	added, removed := gitignore.PatternDelta(oldContent, newContent)
package gitignore
