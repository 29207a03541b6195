// Package dblib provides the sql module: SQLite access for embedded
// code through projected connection objects.
package dblib

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/chazu/deneb/bridge"
	"github.com/chazu/deneb/vm"
)

// Conn is the payload behind a connection object. The db field goes
// nil once the connection closes; every entry point checks it.
type Conn struct {
	db   *sql.DB
	path string
}

// ConnType projects connections into the machine. Closing is
// idempotent and a finalizer closes connections that leak to state
// teardown.
var ConnType = bridge.DefType[*Conn]("sql.Conn",
	bridge.Property("path", "database file behind the connection", bridge.PushText,
		func(c *Conn) string { return c.path }),
	bridge.Method("query", "query(stmt, params…) - rows as a sequence of column mappings", query),
	bridge.Method("exec", "exec(stmt, params…) - run a statement, return the affected row count", exec),
	bridge.Method("close", "close() - release the connection", closeConn),
	bridge.Stringify(func(c *Conn) string { return "sql.Conn " + c.path }),
	bridge.Finalizer(func(c *Conn) {
		if c.db != nil {
			c.db.Close()
			c.db = nil
		}
	}),
)

// Module is the sql module. Installing it defines a global "sql"
// table.
var Module = bridge.Module{
	Name: "sql",
	Doc:  "SQLite database access",
	Funcs: []bridge.Fn{
		{Name: "open", Doc: "open(path) - open or create a database file", F: open},
	},
}

func open(ctx *bridge.Context) (int, error) {
	path, err := bridge.PeekText(ctx, 1)
	if err != nil {
		return 0, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return 0, fmt.Errorf("opening database: %w", err)
	}
	// Serialize writers instead of failing fast on a locked file.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return 0, fmt.Errorf("setting busy timeout: %w", err)
	}
	ConnType.Push(ctx, &Conn{db: db, path: path})
	return 1, nil
}

func query(ctx *bridge.Context, c *Conn) (int, error) {
	if c.db == nil {
		return 0, errors.New("connection is closed")
	}
	stmt, err := bridge.PeekText(ctx, 2)
	if err != nil {
		return 0, err
	}
	args, err := peekParams(ctx, 3)
	if err != nil {
		return 0, err
	}
	rows, err := c.db.Query(stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return pushRows(ctx, rows)
}

func exec(ctx *bridge.Context, c *Conn) (int, error) {
	if c.db == nil {
		return 0, errors.New("connection is closed")
	}
	stmt, err := bridge.PeekText(ctx, 2)
	if err != nil {
		return 0, err
	}
	args, err := peekParams(ctx, 3)
	if err != nil {
		return 0, err
	}
	res, err := c.db.Exec(stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	bridge.PushInteger(ctx, affected)
	return 1, nil
}

func closeConn(ctx *bridge.Context, c *Conn) (int, error) {
	if c.db == nil {
		return 0, nil
	}
	err := c.db.Close()
	c.db = nil
	if err != nil {
		return 0, fmt.Errorf("closing database: %w", err)
	}
	return 0, nil
}

// peekParams collects bind parameters from stack position from up to
// the top. Only scalars bind.
func peekParams(ctx *bridge.Context, from int) ([]any, error) {
	s := ctx.S
	var args []any
	for idx := from; idx <= s.Top(); idx++ {
		switch s.TypeOf(idx) {
		case vm.TypeNil:
			args = append(args, nil)
		case vm.TypeBoolean:
			args = append(args, s.ToBoolean(idx))
		case vm.TypeNumber:
			if s.IsInteger(idx) {
				n, _ := s.ToInteger(idx)
				args = append(args, n)
			} else {
				f, _ := s.ToNumber(idx)
				args = append(args, f)
			}
		case vm.TypeString:
			str, _ := s.ToString(idx)
			args = append(args, str)
		default:
			return nil, fmt.Errorf("parameter %d: cannot bind a %s", idx-from+1, s.TypeOf(idx))
		}
	}
	return args, nil
}

// pushRows drains a result set into a sequence of row tables. Row
// fields land in column order, so iteration mirrors the select list.
func pushRows(ctx *bridge.Context, rows *sql.Rows) (int, error) {
	s := ctx.S
	cols, err := rows.Columns()
	if err != nil {
		return 0, fmt.Errorf("reading columns: %w", err)
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	s.NewTable()
	var n int64
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			s.Pop(1)
			return 0, fmt.Errorf("scanning row: %w", err)
		}
		s.NewTable()
		for i, col := range cols {
			pushScanned(ctx, vals[i])
			s.RawSetField(-2, col)
		}
		n++
		s.RawSetIndex(-2, n)
	}
	if err := rows.Err(); err != nil {
		s.Pop(1)
		return 0, fmt.Errorf("reading rows: %w", err)
	}
	return 1, nil
}

func pushScanned(ctx *bridge.Context, v any) {
	s := ctx.S
	switch x := v.(type) {
	case nil:
		s.PushNil()
	case bool:
		s.PushBoolean(x)
	case int64:
		s.PushInteger(x)
	case float64:
		s.PushNumber(x)
	case []byte:
		s.PushString(string(x))
	case string:
		s.PushString(x)
	default:
		s.PushString(fmt.Sprintf("%v", x))
	}
}
