package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/soyeahso/maestro/internal/query"
)

// KnowledgeTables are the tables exposed to the query pipeline, in the
// order the schema descriptor lists them.
var KnowledgeTables = []string{"chords", "scales", "techniques", "jazz_standards", "guitar_history"}

var tableDescriptions = map[string]string{
	"chords":         "chord definitions; category is jazz, altered, basic or blues",
	"scales":         "scales and modes; category is major_modes, melodic_minor_modes, symmetric, bebop or pentatonic",
	"techniques":     "playing techniques; category is picking, fretting, articulation or harmony",
	"jazz_standards": "jazz standard tunes with form and key",
	"guitar_history": "guitar history entries about luthiers, instruments and innovations",
}

// Describe introspects the knowledge tables into a query.Schema.
func (db *DB) Describe(ctx context.Context) (query.Schema, error) {
	var schema query.Schema
	for _, name := range KnowledgeTables {
		rows, err := db.sql.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info("%s")`, name))
		if err != nil {
			return query.Schema{}, fmt.Errorf("describe %s: %w", name, err)
		}

		table := query.Table{Name: name, Description: tableDescriptions[name]}
		for rows.Next() {
			var (
				cid     int
				col     string
				typ     string
				notnull int
				dflt    sql.NullString
				pk      int
			)
			if err := rows.Scan(&cid, &col, &typ, &notnull, &dflt, &pk); err != nil {
				rows.Close()
				return query.Schema{}, fmt.Errorf("describe %s: %w", name, err)
			}
			table.Columns = append(table.Columns, query.Column{Name: col, Type: columnType(typ)})
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return query.Schema{}, fmt.Errorf("describe %s: %w", name, err)
		}
		schema.Tables = append(schema.Tables, table)
	}
	return schema, nil
}

func columnType(declared string) query.ColumnType {
	switch strings.ToUpper(declared) {
	case "INTEGER", "INT":
		return query.TypeInteger
	case "REAL", "FLOAT", "DOUBLE":
		return query.TypeReal
	case "JSON":
		return query.TypeList
	default:
		return query.TypeText
	}
}

// KnowledgeExecutor runs validated plans against the knowledge tables.
type KnowledgeExecutor struct {
	db *DB
}

// NewKnowledgeExecutor creates an executor over db.
func NewKnowledgeExecutor(db *DB) *KnowledgeExecutor {
	return &KnowledgeExecutor{db: db}
}

// Execute compiles and runs a single statement on a connection held in
// query_only mode.
func (e *KnowledgeExecutor) Execute(ctx context.Context, p query.Plan) ([][]any, error) {
	stmt, err := query.Compile(p)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(stmt.SQL, "SELECT ") {
		return nil, fmt.Errorf("refusing non-select statement")
	}

	var out [][]any
	err = e.db.readOnly(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			values := make([]any, len(p.Columns))
			ptrs := make([]any, len(values))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return err
			}
			out = append(out, values)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	e.db.log.Debug().Str("table", p.Table).Int("rows", len(out)).Msg("knowledge query")
	return out, nil
}

// readOnly runs fn on a pooled connection with PRAGMA query_only set, and
// clears it before the connection goes back to the pool. A connection
// whose reset fails is discarded.
func (db *DB) readOnly(ctx context.Context, fn func(*sql.Conn) error) error {
	conn, err := db.sql.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return fmt.Errorf("enter query_only: %w", err)
	}
	runErr := fn(conn)

	if _, err := conn.ExecContext(context.WithoutCancel(ctx), "PRAGMA query_only = OFF"); err != nil {
		db.log.Warn().Err(err).Msg("query_only reset failed, discarding connection")
		conn.Raw(func(any) error { return driver.ErrBadConn })
	}
	return runErr
}

// searchColumns are the free-text columns Search matches per table.
var searchColumns = map[string][]string{
	"chords":         {"name", "chord_type", "description", "tags"},
	"scales":         {"name", "scale_type", "character", "description", "tags"},
	"techniques":     {"name", "category", "description", "tags"},
	"jazz_standards": {"title", "composer", "key_concepts", "tags"},
	"guitar_history": {"title", "summary", "content", "key_figures", "instruments", "materials", "tags"},
}

// Entry is a search hit with every column of its row.
type Entry map[string]any

// Search does a case-insensitive substring search over a knowledge table's
// descriptive columns.
func (db *DB) Search(ctx context.Context, table, term string, limit int) ([]Entry, error) {
	cols, ok := searchColumns[table]
	if !ok {
		return nil, fmt.Errorf("search: unknown table %q", table)
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	conds := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		conds[i] = fmt.Sprintf(`instr(lower("%s"), lower(?)) > 0`, c)
		args = append(args, term)
	}
	args = append(args, limit)

	q := fmt.Sprintf(`SELECT * FROM "%s" WHERE %s ORDER BY id LIMIT ?`, table, strings.Join(conds, " OR "))
	rows, err := db.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", table, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Entry
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("search %s: %w", table, err)
		}
		e := make(Entry, len(names))
		for i, n := range names {
			if b, ok := values[i].([]byte); ok {
				values[i] = string(b)
			}
			e[n] = values[i]
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Counts returns the row count of every knowledge table.
func (db *DB) Counts(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int, len(KnowledgeTables))
	for _, t := range KnowledgeTables {
		var n int
		if err := db.sql.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, t)).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", t, err)
		}
		out[t] = n
	}
	return out, nil
}
