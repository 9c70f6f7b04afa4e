// Package watcher feeds codectx's `index --watch` loop (see
// cmd/codectx/cmd/index.go's runWatch) a stream of coalesced file events so a
// running index can be kept current without a full rescan on every
// keystroke.
//
// HybridWatcher prefers fsnotify for event-based watching and falls back to
// directory-mtime polling when fsnotify can't be initialized (network
// mounts, some Docker volume drivers). Either way, raw events are:
//
//   - debounced through a Debouncer so a burst of saves from an editor or a
//     git checkout collapses into one batch per path,
//   - paired so a rename observed as a Rename-then-Create (fsnotify does not
//     report renames atomically on every platform) comes out as a single
//     OpRename with OldPath set, and
//   - filtered against a gitignore.PathFilter that is rebuilt whenever a
//     live .gitignore edit is observed, so a file that becomes ignored mid-
//     session stops generating reindex churn.
//
// Usage:
//
//	opts := watcher.DefaultOptions()
//	w, err := watcher.NewHybridWatcher(opts)
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	if err := w.Start(ctx, projectRoot); err != nil {
//	    return err
//	}
//
//	for event := range w.Events() {
//	    switch event.Operation {
//	    case watcher.OpCreate, watcher.OpModify:
//	        // trigger a reindex of event.Path
//	    case watcher.OpDelete:
//	        // drop event.Path from the index
//	    case watcher.OpGitignoreChange:
//	        // reconcile: the ignore set changed
//	    }
//	}
package watcher
