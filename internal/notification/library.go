package notification

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

//go:embed templates
var embeddedTemplates embed.FS

// DefaultTitleTemplate used when a request names no title
const DefaultTitleTemplate = "default/title.md"

// Library global set of named templates: the embedded defaults plus an optional
// directory whose files add to or replace them. Names are slash paths relative to
// the template root, e.g. "coldchain/body.md".
type Library struct {
	dir    string
	logger *zap.Logger

	mu  sync.RWMutex
	set *template.Template
}

// NewLibrary loads the embedded templates and dir (empty dir means defaults only)
func NewLibrary(dir string, logger *zap.Logger) (*Library, error) {
	l := &Library{
		dir:    dir,
		logger: logger,
	}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

func newTemplateSet() *template.Template {
	return template.New("").Option("missingkey=error").Funcs(sprig.TxtFuncMap())
}

// Reload rebuilds the set. On error the previous set stays active.
func (l *Library) Reload() error {
	set := newTemplateSet()

	sub, err := fs.Sub(embeddedTemplates, "templates")
	if err != nil {
		return fmt.Errorf("failed to open embedded templates: %w", err)
	}
	if err := addTemplates(set, sub); err != nil {
		return fmt.Errorf("failed to load embedded templates: %w", err)
	}

	if l.dir != "" {
		if err := addTemplates(set, os.DirFS(l.dir)); err != nil {
			return fmt.Errorf("failed to load templates from %s: %w", l.dir, err)
		}
	}

	l.mu.Lock()
	l.set = set
	l.mu.Unlock()

	l.logger.Info("Template library loaded",
		zap.String("dir", l.dir),
		zap.Int("templates", len(set.Templates())),
	)
	return nil
}

func addTemplates(set *template.Template, fsys fs.FS) error {
	return fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		if _, err := set.New(path).Parse(string(content)); err != nil {
			return err
		}
		return nil
	})
}

// Clone returns a private copy callers may add inline templates to
func (l *Library) Clone() (*template.Template, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.set == nil {
		return nil, fmt.Errorf("template library is not loaded")
	}
	set, err := l.set.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to clone template library: %w", err)
	}
	// Clone does not carry template options over
	return set.Option("missingkey=error"), nil
}

// Watch reloads the library whenever a file under dir changes. It runs until ctx is
// cancelled. A failed reload is logged and the previous set stays active.
func (l *Library) Watch(ctx context.Context) error {
	if l.dir == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// fsnotify is not recursive
	err = filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", l.dir, err)
	}

	l.logger.Info("Watching templates for changes", zap.String("dir", l.dir))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}

			if err := l.Reload(); err != nil {
				l.logger.Error("Template reload failed, keeping previous templates",
					zap.String("file", event.Name),
					zap.Error(err),
				)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Error("Template watcher error", zap.Error(err))
		}
	}
}
