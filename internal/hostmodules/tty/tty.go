// Package tty answers "is stdin a terminal" for the REPL's prompt
// coloring decision, wiring github.com/mattn/go-isatty the way the
// teacher's cmd/sentra/main.go conditionally formats output depending
// on whether it's talking to a human or a pipe.
package tty

import (
	"os"

	"github.com/mattn/go-isatty"
)

// IsInteractive reports whether stdin is a terminal.
func IsInteractive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}
