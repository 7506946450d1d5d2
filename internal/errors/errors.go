// Package errors implements the host-boundary error taxonomy of
// spec.md §6, grounded on the teacher's internal/errors/errors.go
// (SentraError/ErrorType/StackFrame), extended with the kinds the
// spec's boundary contract names and with github.com/pkg/errors-based
// cause wrapping for errors that originate outside the evaluator
// (module loader I/O, host-module driver errors).
package errors

import (
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Kind is the host-visible error taxonomy from spec.md §6.
type Kind string

const (
	SyntaxError       Kind = "SyntaxError"
	TypeError         Kind = "TypeError"
	ArithError        Kind = "ArithError"
	IndexError        Kind = "IndexError"
	CallError         Kind = "CallError"
	ConstViolation    Kind = "ConstViolation"
	CoroutineError    Kind = "CoroutineError"
	FinalizationError Kind = "FinalizationError"
	ModuleError       Kind = "ModuleError"
)

// SourceLocation represents a location in source code.
type SourceLocation struct {
	File   string
	Line   int
	Column int
}

func (s SourceLocation) String() string {
	if s.File == "" {
		return ""
	}
	if s.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
	}
	return fmt.Sprintf("%s:%d", s.File, s.Line)
}

// StackFrame is a single frame in a captured call stack.
type StackFrame struct {
	Function string
	File     string
	Line     int
	Column   int
}

func (f StackFrame) String() string {
	name := f.Function
	if name == "" {
		return fmt.Sprintf("%s:%d", f.File, f.Line)
	}
	return fmt.Sprintf("%s (%s:%d)", name, f.File, f.Line)
}

// LumenError is the error type every host-boundary API returns. Value
// carries the raw, possibly non-string value raised by `error()`
// (spec.md §4.4/§7); Message is always a renderable summary.
type LumenError struct {
	Kind    Kind
	Message string
	Value   interface{}
	Loc     SourceLocation
	Trace   []StackFrame
	cause   error
}

func New(kind Kind, message string) *LumenError {
	return &LumenError{Kind: kind, Message: message, Value: message}
}

func NewAt(kind Kind, message string, loc SourceLocation) *LumenError {
	return &LumenError{Kind: kind, Message: message, Value: message, Loc: loc}
}

// NewValue wraps an arbitrary raised value (e.g. a table) the way
// `error(v)` does when v isn't a string.
func NewValue(kind Kind, value interface{}, message string) *LumenError {
	return &LumenError{Kind: kind, Message: message, Value: value}
}

// Wrap attaches a LumenError kind to a foreign error (driver errors
// from host modules, I/O errors from the module loader), preserving
// the cause via github.com/pkg/errors the way the rest of the corpus
// wraps foreign errors — the teacher's own error type has no cause
// chain, so this is where Lumen reaches for the ecosystem library
// instead of inventing its own Wrap/Unwrap pair.
func Wrap(kind Kind, err error, message string) *LumenError {
	wrapped := pkgerrors.Wrap(err, message)
	return &LumenError{Kind: kind, Message: wrapped.Error(), Value: wrapped.Error(), cause: wrapped}
}

// Error implements the error interface.
func (e *LumenError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if loc := e.Loc.String(); loc != "" {
		sb.WriteString(" (")
		sb.WriteString(loc)
		sb.WriteString(")")
	}
	return sb.String()
}

func (e *LumenError) Unwrap() error { return e.cause }

func (e *LumenError) Cause() error {
	if e.cause != nil {
		return pkgerrors.Cause(e.cause)
	}
	return e
}

// WithTrace attaches a captured call-stack trace, deduplicating
// consecutive identical frames and capping at 10 plus an overflow
// note, per spec.md §4.4.
func (e *LumenError) WithTrace(frames []StackFrame) *LumenError {
	e.Trace = dedupeFrames(frames)
	return e
}

func dedupeFrames(frames []StackFrame) []StackFrame {
	if len(frames) == 0 {
		return nil
	}
	var out []StackFrame
	repeat := 0
	flushRepeat := func() {
		if repeat > 0 {
			out = append(out, StackFrame{Function: fmt.Sprintf("... repeated %d more times", repeat)})
			repeat = 0
		}
	}
	for i, f := range frames {
		if i > 0 && f == frames[i-1] {
			repeat++
			continue
		}
		flushRepeat()
		out = append(out, f)
		if len(out) >= 10 {
			flushRepeat()
			if i < len(frames)-1 {
				out = append(out, StackFrame{Function: "... (stack trace truncated)"})
			}
			break
		}
	}
	flushRepeat()
	return out
}

// Traceback renders the frame list the way debug.traceback would.
func (e *LumenError) Traceback() string {
	var sb strings.Builder
	sb.WriteString(e.Error())
	for _, f := range e.Trace {
		sb.WriteString("\n\t")
		sb.WriteString(f.String())
	}
	return sb.String()
}
