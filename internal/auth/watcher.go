package auth

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/logging"
)

// DescriptorWatcher reloads a ServiceAccountProvider when its descriptor file
// changes on disk. A descriptor that fails to parse is logged and the
// previous one stays in use.
type DescriptorWatcher struct {
	path     string
	provider *ServiceAccountProvider
	logger   *logging.Logger
	audit    logging.AuditStore
	onReload func(*ServiceAccount, error)
}

// NewDescriptorWatcher creates a watcher for path. audit may be nil.
func NewDescriptorWatcher(path string, provider *ServiceAccountProvider, logger *logging.Logger, audit logging.AuditStore) *DescriptorWatcher {
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &DescriptorWatcher{
		path:     path,
		provider: provider,
		logger:   logger,
		audit:    audit,
	}
}

// OnReload registers a callback invoked after every reload attempt.
func (w *DescriptorWatcher) OnReload(fn func(*ServiceAccount, error)) {
	w.onReload = fn
}

// Reload re-reads the descriptor file and swaps it into the provider.
func (w *DescriptorWatcher) Reload() error {
	sa, err := LoadServiceAccount(w.path)

	event := logging.NewAuditEvent(logging.ConfigChange, "reload_service_account", logging.StatusSuccess).
		WithActor("watcher").
		WithResource(w.path)
	if err != nil {
		w.logger.Error("service account reload failed", "path", w.path, "error", err.Error())
		w.provider.SetLoadError(err)
		event.WithError(err.Error())
	} else {
		w.provider.Reload(sa)
		w.logger.Info("service account reloaded", "path", w.path, "client_id", sa.ClientID)
	}
	if w.audit != nil {
		w.audit.SaveEventAsync(event)
	}
	if w.onReload != nil {
		w.onReload(sa, err)
	}
	return err
}

// Watch starts watching the descriptor's directory. Editors commonly replace
// files by rename, so the directory is watched and events are filtered by
// name. The goroutine exits when ctx is cancelled.
func (w *DescriptorWatcher) Watch(ctx context.Context) error {
	if w.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	target := filepath.Clean(w.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
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
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					_ = w.Reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("service account watcher error", "error", err.Error())
			}
		}
	}()

	return nil
}
