// Package repl implements the line-oriented REPL of spec.md §6
// (`interp -i`): read a line, auto-print the value of a bare
// expression statement, keep going until EOF or "exit". Grounded on
// the teacher's internal/repl/repl.go read/eval loop shape
// (bufio.Scanner over stdin, a persistent evaluator reused across
// lines) and cmd/sentra/main.go's conditional-formatting style,
// generalized from a bytecode VM reset-with-chunk loop to re-running
// the shared Runtime's global frame against each parsed line.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"lumen/internal/errors"
	"lumen/internal/hostmodules/tty"
	"lumen/internal/interp"
	"lumen/internal/parser"
	"lumen/internal/value"
)

// Start runs the REPL against rt, reading lines from in and writing
// prompts/output to out.
func Start(rt *interp.Runtime, in io.Reader, out io.Writer) {
	prompt := ">>> "
	if tty.IsInteractive() {
		prompt = "\033[36m>>> \033[0m"
	}
	fmt.Fprintln(out, "Lumen REPL | Ctrl-D or 'exit' to quit")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" {
			return
		}
		evalLine(rt, line, out)
	}
}

// evalLine parses line as a chunk; a line that's a single expression
// is wrapped as `return <expr>` first so the REPL can auto-print it,
// matching the common expectation that typing a bare expression at
// the prompt shows its value without an explicit print().
func evalLine(rt *interp.Runtime, line string, out io.Writer) {
	if prog, err := parser.Parse("return "+line, "<repl>"); err == nil {
		if results, err := rt.Evaluate(prog, "<repl>"); err == nil {
			printResults(rt, results, out)
			return
		}
	}

	prog, err := parser.Parse(line, "<repl>")
	if err != nil {
		fmt.Fprintln(out, err)
		return
	}
	results, err := rt.Evaluate(prog, "<repl>")
	if err != nil {
		if le, ok := err.(*errors.LumenError); ok {
			fmt.Fprintln(out, le.Error())
		} else {
			fmt.Fprintln(out, err)
		}
		return
	}
	printResults(rt, results, out)
}

func printResults(rt *interp.Runtime, results []value.Value, out io.Writer) {
	if len(results) == 0 {
		return
	}
	parts := make([]string, len(results))
	for i, v := range results {
		parts[i] = rt.ToDisplayString(v)
	}
	fmt.Fprintln(out, strings.Join(parts, "\t"))
}
