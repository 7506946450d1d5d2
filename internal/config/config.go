// Package config holds runtime configuration assembled from CLI flags
// and environment variables, in the style of the teacher's
// cmd/sentra/main.go flag/alias handling.
package config

import "os"

// GC holds the generational collector's scheduling knobs (spec.md
// §4.6): percentage thresholds over the post-last-cycle baseline.
type GC struct {
	MinorMultiplier int // default 100, max 200
	MajorMultiplier int // default 100, max 1000
}

func DefaultGC() GC {
	return GC{MinorMultiplier: 100, MajorMultiplier: 100}
}

// RuntimeConfig configures a new Runtime (internal/interp).
type RuntimeConfig struct {
	GC GC

	// EnableLogs mirrors the CLI's --enable-logs flag.
	EnableLogs bool

	// SearchTemplates are the require() path templates, in order,
	// matching spec.md §6 ("./?.ext;./?/init.ext" by default).
	SearchTemplates []string

	// ScriptPath is reflected into the script as the SCRIPT_PATH
	// global, per spec.md §6.
	ScriptPath string
}

func Default() RuntimeConfig {
	return RuntimeConfig{
		GC:              DefaultGC(),
		SearchTemplates: []string{"./?.lumen", "./?/init.lumen"},
		ScriptPath:      os.Getenv("SCRIPT_PATH"),
	}
}

// AddSearchPath appends a directory to be tried ahead of the default
// templates, matching runtime.add_search_path from spec.md §6.
func (c *RuntimeConfig) AddSearchPath(dir string) {
	c.SearchTemplates = append([]string{dir + "/?.lumen", dir + "/?/init.lumen"}, c.SearchTemplates...)
}
