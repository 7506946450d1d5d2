// Package loader implements the module loader contract of spec.md §6:
// require("a.b") converts dots to the host path separator, tries each
// configured search template, and caches modules by resolved path. A
// require of a path whose load is still in progress (a circular
// require, or one from a concurrent caller) returns that load's
// placeholder table at once: it does not wait for the load, and the
// placeholder is an empty table that is never filled with or replaced
// by the module's value. Grounded on the
// teacher's internal/packages/resolver.go (ImportResolver: a
// search-path list plus a path-probing ResolveImport) and
// internal/packages/module.go (ModuleCache), trimmed of the teacher's
// remote-fetch-over-HTTP machinery (spec.md's module system is
// file-local only); the load runs through
// golang.org/x/sync/singleflight instead of the teacher's ad hoc
// mutex-guarded map.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"lumen/internal/value"
)

// Evaluator is the subset of *interp.Runtime the loader needs to run a
// resolved module file. Kept as an interface so this package doesn't
// import interp (which would import loader back for require()).
type Evaluator interface {
	EvaluateSource(source, scriptPath string) ([]value.Value, error)
}

// Loader resolves and caches require("a.b") targets.
type Loader struct {
	eval      Evaluator
	templates []string // e.g. "./?.lumen", "./?/init.lumen"

	mu      sync.Mutex
	cache   map[string]value.Value
	loading map[string]value.Value // in-flight modules, for circular requires
	group   singleflight.Group
}

// DefaultTemplates matches spec.md §6's default: "./?.ext;./?/init.ext".
func DefaultTemplates() []string {
	return []string{"./?.lumen", "./?/init.lumen"}
}

func New(eval Evaluator, templates []string) *Loader {
	if len(templates) == 0 {
		templates = DefaultTemplates()
	}
	return &Loader{
		eval:      eval,
		templates: templates,
		cache:     make(map[string]value.Value),
		loading:   make(map[string]value.Value),
	}
}

func (l *Loader) SetTemplates(templates []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.templates = templates
}

func (l *Loader) AddTemplate(t string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.templates = append(l.templates, t)
}

// resolve turns "a.b" into a candidate file path for each template,
// returning the first one that exists on disk.
func (l *Loader) resolve(dotted string) (string, error) {
	rel := strings.ReplaceAll(dotted, ".", string(os.PathSeparator))
	l.mu.Lock()
	templates := append([]string(nil), l.templates...)
	l.mu.Unlock()
	for _, tmpl := range templates {
		candidate := strings.ReplaceAll(tmpl, "?", rel)
		if _, err := os.Stat(candidate); err == nil {
			return filepath.Clean(candidate), nil
		}
	}
	return "", fmt.Errorf("module '%s' not found (no file matching %s)", dotted, strings.Join(templates, ";"))
}

// Require implements `require("a.b")`: resolves, loads, and caches by
// resolved path. While a path is loading, every further Require of it
// (a module that requires itself transitively, or a concurrent caller)
// gets the empty placeholder table registered before evaluation
// starts, without waiting; that table does not become the module's
// value, which only callers arriving after the load see, via the cache.
func (l *Loader) Require(dotted string) (value.Value, error) {
	path, err := l.resolve(dotted)
	if err != nil {
		return value.Nil, err
	}

	l.mu.Lock()
	if v, ok := l.cache[path]; ok {
		l.mu.Unlock()
		return v, nil
	}
	if v, ok := l.loading[path]; ok {
		l.mu.Unlock()
		return v, nil // circular require: hand back the in-progress placeholder
	}
	placeholder := value.FromRef(value.KindTable, value.NewTable())
	l.loading[path] = placeholder
	l.mu.Unlock()

	v, err, _ := l.group.Do(path, func() (interface{}, error) {
		src, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil, rerr
		}
		results, rerr := l.eval.EvaluateSource(string(src), path)
		if rerr != nil {
			return nil, rerr
		}
		if len(results) == 0 {
			return value.Bool(true), nil // a module with no return still satisfies require()
		}
		return results[0], nil
	})

	l.mu.Lock()
	delete(l.loading, path)
	if err == nil {
		l.cache[path] = v.(value.Value)
	}
	l.mu.Unlock()

	if err != nil {
		return value.Nil, err
	}
	return v.(value.Value), nil
}

// ResolvedPath exposes path resolution for callers that want to
// inspect it (e.g. package.searchpath equivalents) without loading.
func (l *Loader) ResolvedPath(dotted string) (string, error) {
	return l.resolve(dotted)
}
