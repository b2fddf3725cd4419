// Package watcher keeps an index in step with a folder.
//
// A Watcher reports file changes under a root, using fsnotify when the
// platform supports it and polling otherwise. Events are debounced so an
// editor's save-rename-write dance arrives as one change per path. A Syncer
// applies each batch to an index: created and modified files are indexed,
// deleted and renamed-away paths are removed.
//
//	w, err := watcher.New(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	go func() { _ = w.Start(ctx, root) }()
//	defer w.Stop()
//
//	return watcher.NewSyncer(indexer, accept).Run(ctx, w)
package watcher
