// Package util wires uuid_new, fmt_bytes, fmt_duration and
// time_strftime onto a Runtime — small formatting/identifier helpers
// that give github.com/google/uuid, github.com/dustin/go-humanize and
// github.com/ncruces/go-strftime concrete homes among SPEC_FULL.md's
// host modules. Grounded on the ad hoc ID-generation and
// human-readable-size formatting scattered across the teacher's
// internal/siem/parsers.go and internal/build/builder.go, consolidated
// here behind real libraries instead of the teacher's hand-rolled
// string math.
package util

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/ncruces/go-strftime"

	"lumen/internal/value"
)

type Exposer interface {
	Expose(name string, fn func([]value.Value) ([]value.Value, error))
}

// Register installs uuid_new, fmt_bytes, fmt_duration and
// time_strftime as globals.
func Register(rt Exposer) {
	rt.Expose("uuid_new", func(args []value.Value) ([]value.Value, error) {
		return []value.Value{value.Str(uuid.NewString())}, nil
	})

	rt.Expose("fmt_bytes", func(args []value.Value) ([]value.Value, error) {
		if len(args) == 0 || !args[0].IsNumber() {
			return nil, errArg("fmt.bytes(n)", "number")
		}
		n := args[0].AsNumber()
		return []value.Value{value.Str(humanize.Bytes(uint64(n)))}, nil
	})

	rt.Expose("fmt_duration", func(args []value.Value) ([]value.Value, error) {
		if len(args) == 0 || !args[0].IsNumber() {
			return nil, errArg("fmt.duration(seconds)", "number")
		}
		d := time.Duration(args[0].AsNumber() * float64(time.Second))
		return []value.Value{value.Str(humanize.RelTime(time.Now().Add(-d), time.Now(), "ago", "from now"))}, nil
	})

	rt.Expose("time_strftime", func(args []value.Value) ([]value.Value, error) {
		if len(args) < 2 || !args[0].IsString() || !args[1].IsNumber() {
			return nil, errArg("time.strftime(fmt, unixSeconds)", "string, number")
		}
		t := time.Unix(int64(args[1].AsNumber()), 0).UTC()
		out := strftime.Format(args[0].AsString(), t)
		return []value.Value{value.Str(out)}, nil
	})
}

type argError string

func (e argError) Error() string { return string(e) }

func errArg(sig, want string) error {
	return argError("bad argument to '" + sig + "' (" + want + " expected)")
}
