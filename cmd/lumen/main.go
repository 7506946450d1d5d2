// Command lumen is the thin CLI collaborator of spec.md §6:
//
//	interp [--enable-logs] [script [args...]] | -e "code" | -i (REPL)
//
// Exit codes: 0 success, 1 runtime error, 2 syntax error. Grounded on
// the teacher's cmd/sentra/main.go dispatch (flag-then-subcommand
// scan, a log.Fatalf-on-error style for fatal paths), trimmed from its
// many build/test/lint/watch/package subcommands down to the three
// entry points spec.md §6 actually names — the rest of that surface
// (build tooling, a bytecode compiler, an LSP server, a package
// registry client) belongs to the teacher's own non-goals, not
// Lumen's (see DESIGN.md).
package main

import (
	"fmt"
	"os"
	"strings"

	"lumen/internal/config"
	"lumen/internal/errors"
	"lumen/internal/hostmodules/db"
	"lumen/internal/hostmodules/net"
	"lumen/internal/hostmodules/util"
	"lumen/internal/interp"
	"lumen/internal/loader"
	"lumen/internal/logging"
	"lumen/internal/repl"
	"lumen/internal/value"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg := config.Default()
	var (
		enableLogs bool
		evalCode   string
		wantRepl   bool
		scriptArgs []string
		scriptPath string
	)

	i := 0
	for ; i < len(args); i++ {
		switch a := args[i]; {
		case a == "--enable-logs":
			enableLogs = true
		case a == "-i":
			wantRepl = true
		case a == "-e":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "lumen: -e requires an argument")
				return 2
			}
			evalCode = args[i+1]
			i++
		case strings.HasPrefix(a, "-"):
			fmt.Fprintf(os.Stderr, "lumen: unknown flag %q\n", a)
			return 2
		default:
			scriptPath = a
			scriptArgs = args[i+1:]
			i = len(args) // stop scanning flags once the script path is found
		}
	}

	level := logging.LevelQuiet
	if enableLogs {
		level = logging.LevelInfo
	}
	log := logging.New(level)
	cfg.EnableLogs = enableLogs
	if scriptPath != "" {
		cfg.ScriptPath = scriptPath
	}
	rt := interp.New(&cfg, log)

	ld := loader.New(rt, cfg.SearchTemplates)
	rt.SetLoader(ld)
	db.Register(rt)
	net.Register(rt)
	util.Register(rt)

	rt.DefineGlobal("arg", scriptArgsValue(scriptArgs))

	switch {
	case evalCode != "":
		if _, err := rt.EvaluateSource(evalCode, "<command line>"); err != nil {
			return reportError(err)
		}
		return 0
	case scriptPath != "":
		src, err := os.ReadFile(scriptPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "lumen: %v\n", err)
			return 1
		}
		if _, err := rt.EvaluateSource(string(src), scriptPath); err != nil {
			return reportError(err)
		}
		if wantRepl {
			repl.Start(rt, os.Stdin, os.Stdout)
		}
		return 0
	case wantRepl, len(args) == 0:
		repl.Start(rt, os.Stdin, os.Stdout)
		return 0
	default:
		fmt.Fprintln(os.Stderr, "usage: lumen [--enable-logs] [script [args...]] | -e \"code\" | -i")
		return 2
	}
}

func reportError(err error) int {
	if le, ok := err.(*errors.LumenError); ok {
		fmt.Fprintln(os.Stderr, le.Error())
		if le.Kind == errors.SyntaxError {
			return 2
		}
		return 1
	}
	fmt.Fprintln(os.Stderr, err)
	return 1
}

// scriptArgsValue builds the `arg` global (arg[1], arg[2], ... for the
// words following the script path on the command line), the
// conventional way a Lua-family CLI hands argv to a script.
func scriptArgsValue(args []string) value.Value {
	t := value.NewTable()
	for i, a := range args {
		_ = t.Set(value.Int(int64(i+1)), value.Str(a))
	}
	return value.FromRef(value.KindTable, t)
}
