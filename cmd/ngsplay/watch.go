package main

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watchPatchFile rebuilds the session whenever the patch file changes. The
// directory is watched since editors often replace files instead of
// writing them in place.
func watchPatchFile(ctx context.Context, path string, sess *session, log *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	err = w.Add(filepath.Dir(path))
	if err != nil {
		return err
	}

	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			reload(path, sess, log)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}

			log.Warn("watch", "err", err)
		}
	}
}

// reload swaps the session for the one the file now describes. A file
// that fails to parse leaves the running session alone.
func reload(path string, sess *session, log *slog.Logger) {
	pf, err := loadPatchFile(path)
	if err != nil {
		log.Warn("reload rejected", "err", err)
		return
	}

	sess.reset()

	err = sess.apply(pf)
	if err != nil {
		log.Error("reload failed", "path", path, "err", err)
		sess.reset()

		return
	}

	log.Info("patch reloaded", "path", path, "racks", len(pf.Racks))
}
