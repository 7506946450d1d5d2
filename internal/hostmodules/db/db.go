// Package db wires a database/sql-backed db_open/db_query/db_exec/db_close
// builtin family onto a Runtime via runtime.expose, giving the
// teacher's SQL driver stack a concrete home in the core's host
// embedding surface (spec.md §6). Grounded on the teacher's
// internal/database/database.go (a DBConnection map keyed by an id,
// driver selected by a type string), trimmed of its security-scanning
// fields — SPEC_FULL.md's hostmodules are a demonstration of the
// embedding API, not a security tool.
package db

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"lumen/internal/value"
)

// driverName maps the friendly names a script passes to db_open into
// the database/sql driver name actually registered, since two of the
// wired drivers (mattn's cgo sqlite3 and modernc's pure-Go sqlite)
// both serve "sqlite" but register under different names.
var driverName = map[string]string{
	"mysql":     "mysql",
	"postgres":  "postgres",
	"sqlite":    "sqlite",  // modernc.org/sqlite, no cgo
	"sqlite3":   "sqlite3", // github.com/mattn/go-sqlite3, cgo
	"sqlserver": "sqlserver",
}

type registry struct {
	mu   sync.Mutex
	next int
	conn map[int]*sql.DB
}

func newRegistry() *registry { return &registry{conn: make(map[int]*sql.DB)} }

func (r *registry) store(db *sql.DB) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.conn[r.next] = db
	return r.next
}

func (r *registry) get(handle int) (*sql.DB, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	db, ok := r.conn[handle]
	return db, ok
}

// Exposer is the subset of *interp.Runtime needed to install natives;
// satisfied by Runtime.Expose without this package importing interp
// back (hostmodules are leaves wired in by cmd/lumen).
type Exposer interface {
	Expose(name string, fn func([]value.Value) ([]value.Value, error))
}

// Register installs db_open, db_query, db_exec, db_close as globals.
// Handles are returned as opaque integers boxed in a userdata-free
// form (an int Value) since the core Value model has no dedicated
// host-resource tag; SPEC_FULL.md treats them as small integers the
// script never needs to introspect beyond passing back to db_*.
func Register(rt Exposer) {
	reg := newRegistry()

	rt.Expose("db_open", func(args []value.Value) ([]value.Value, error) {
		if len(args) < 2 || !args[0].IsString() || !args[1].IsString() {
			return nil, fmt.Errorf("db.open(driver, dsn): string arguments expected")
		}
		drv, ok := driverName[args[0].AsString()]
		if !ok {
			return nil, fmt.Errorf("db.open: unknown driver %q", args[0].AsString())
		}
		conn, err := sql.Open(drv, args[1].AsString())
		if err != nil {
			return nil, fmt.Errorf("db.open: %w", err)
		}
		handle := reg.store(conn)
		return []value.Value{value.Int(int64(handle))}, nil
	})

	rt.Expose("db_exec", func(args []value.Value) ([]value.Value, error) {
		conn, query, rest, err := resolve(reg, args)
		if err != nil {
			return nil, err
		}
		res, err := conn.Exec(query, rest...)
		if err != nil {
			return nil, fmt.Errorf("db.exec: %w", err)
		}
		rows, _ := res.RowsAffected()
		return []value.Value{value.Int(rows)}, nil
	})

	rt.Expose("db_query", func(args []value.Value) ([]value.Value, error) {
		conn, query, rest, err := resolve(reg, args)
		if err != nil {
			return nil, err
		}
		rows, err := conn.Query(query, rest...)
		if err != nil {
			return nil, fmt.Errorf("db.query: %w", err)
		}
		defer rows.Close()
		cols, err := rows.Columns()
		if err != nil {
			return nil, err
		}
		result := value.NewTable()
		rowIdx := int64(0)
		for rows.Next() {
			scanTargets := make([]interface{}, len(cols))
			scanVals := make([]interface{}, len(cols))
			for i := range scanTargets {
				scanTargets[i] = &scanVals[i]
			}
			if err := rows.Scan(scanTargets...); err != nil {
				return nil, fmt.Errorf("db.query: scan: %w", err)
			}
			rowIdx++
			rowTable := value.NewTable()
			for i, col := range cols {
				_ = rowTable.Set(value.Str(col), sqlToValue(scanVals[i]))
			}
			_ = result.Set(value.Int(rowIdx), value.FromRef(value.KindTable, rowTable))
		}
		return []value.Value{value.FromRef(value.KindTable, result)}, nil
	})

	rt.Expose("db_close", func(args []value.Value) ([]value.Value, error) {
		if len(args) == 0 || !args[0].IsInt() {
			return nil, fmt.Errorf("db.close(handle): integer expected")
		}
		conn, ok := reg.get(int(args[0].AsInt()))
		if !ok {
			return nil, fmt.Errorf("db.close: unknown handle")
		}
		return nil, conn.Close()
	})
}

func resolve(reg *registry, args []value.Value) (*sql.DB, string, []interface{}, error) {
	if len(args) < 2 || !args[0].IsInt() || !args[1].IsString() {
		return nil, "", nil, fmt.Errorf("db.query/exec(handle, sql, ...): handle+string expected")
	}
	conn, ok := reg.get(int(args[0].AsInt()))
	if !ok {
		return nil, "", nil, fmt.Errorf("db.query/exec: unknown handle")
	}
	rest := make([]interface{}, 0, len(args)-2)
	for _, a := range args[2:] {
		switch {
		case a.IsString():
			rest = append(rest, a.AsString())
		case a.IsInt():
			rest = append(rest, a.AsInt())
		case a.IsFloat():
			rest = append(rest, a.AsFloat())
		case a.IsBool():
			rest = append(rest, a.AsBool())
		default:
			rest = append(rest, nil)
		}
	}
	return conn, args[1].AsString(), rest, nil
}

func sqlToValue(v interface{}) value.Value {
	switch t := v.(type) {
	case nil:
		return value.Nil
	case int64:
		return value.Int(t)
	case float64:
		return value.Float(t)
	case []byte:
		return value.Str(string(t))
	case string:
		return value.Str(t)
	case bool:
		return value.Bool(t)
	default:
		return value.Str(fmt.Sprint(t))
	}
}
