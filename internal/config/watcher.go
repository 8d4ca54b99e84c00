package config

import (
	"context"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config file into rt whenever it changes, so webhook
// URL/secret rotation does not need a restart. The parent directory is
// watched rather than the file itself because editors and config mounts
// replace files instead of writing in place. A reload that fails to parse
// keeps the previous snapshot.
func Watch(ctx context.Context, path string, rt *Runtime) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	target := filepath.Clean(path)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, loadErr := Load(path)
				if loadErr != nil {
					log.Printf("config: reload of %s failed, keeping previous: %v", path, loadErr)
					continue
				}
				rt.Replace(cfg)
				log.Printf("config: reloaded %s", path)
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("config: watcher error: %v", watchErr)
			}
		}
	}()
	return watcher.Close, nil
}
