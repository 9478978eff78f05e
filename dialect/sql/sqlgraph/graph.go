package sqlgraph

// Row is the minimal capability a payload exposes to the write-graph
// engine: its table and its public column/value surface. The engine never
// inspects a payload beyond this interface.
type Row interface {
	// Table returns the table the row belongs to.
	Table() string
	// Columns returns the column names, in a stable order.
	Columns() []string
	// Values returns the column values, aligned with Columns.
	Values() []any
}

// Keyer is implemented by result types that expose their identifying key.
// The executor reads the key only through this accessor when resolving the
// root key from a returning insert.
type Keyer interface {
	Key() any
}

// Binder is implemented by payloads that can receive a foreign-key value.
// Bind returns an updated payload; the receiver is left unchanged.
//
// The returned row should keep the payload's capabilities: a plan that
// binds several foreign keys into the same row binds the returned value
// again. The engine reads conflict targets from the original payload
// before any Bind, and a re-bind on a row that lost the Binder capability
// fails with a validation error. Record preserves all capabilities across
// Bind.
type Binder interface {
	Row
	Bind(column string, value any) Row
}

// Conflicter is implemented by payloads that carry a conflict target,
// making them eligible for upsert writes.
type Conflicter interface {
	Row
	ConflictColumns() []string
}

// ScanFunc scans one returned row into R. The scan argument follows
// (*sql.Rows).Scan semantics over the plan's returning columns.
type ScanFunc[R any] func(scan func(dest ...any) error) (R, error)

// rowValue returns the value of the named column, if the row carries it.
func rowValue(r Row, column string) (any, bool) {
	cols, vals := r.Columns(), r.Values()
	for i, c := range cols {
		if c == column && i < len(vals) {
			return vals[i], true
		}
	}
	return nil, false
}

// containsColumn reports whether cols contains name.
func containsColumn(cols []string, name string) bool {
	for _, c := range cols {
		if c == name {
			return true
		}
	}
	return false
}

// Record is a ready-made Row implementation backed by an ordered
// column/value list. It satisfies Binder and Conflicter, so it can be used
// as a root, parent or child payload in any plan, including upsert and
// diff policies once a conflict target is set.
type Record struct {
	table    string
	columns  []string
	values   []any
	conflict []string
}

// NewRecord returns an empty Record for the given table.
func NewRecord(table string) *Record {
	return &Record{table: table}
}

// Set sets the value of a column, replacing any previous value, and
// returns the receiver for chaining.
func (r *Record) Set(column string, v any) *Record {
	for i, c := range r.columns {
		if c == column {
			r.values[i] = v
			return r
		}
	}
	r.columns = append(r.columns, column)
	r.values = append(r.values, v)
	return r
}

// OnConflict sets the conflict target used for upsert writes and returns
// the receiver for chaining.
func (r *Record) OnConflict(columns ...string) *Record {
	r.conflict = columns
	return r
}

// Table implements Row.
func (r *Record) Table() string { return r.table }

// Columns implements Row.
func (r *Record) Columns() []string { return r.columns }

// Values implements Row.
func (r *Record) Values() []any { return r.values }

// ConflictColumns implements Conflicter.
func (r *Record) ConflictColumns() []string { return r.conflict }

// Bind implements Binder. It returns a copy of the record with the column
// set, leaving the receiver unchanged.
func (r *Record) Bind(column string, value any) Row {
	nr := &Record{
		table:    r.table,
		columns:  append([]string(nil), r.columns...),
		values:   append([]any(nil), r.values...),
		conflict: append([]string(nil), r.conflict...),
	}
	return nr.Set(column, value)
}

var (
	_ Row        = (*Record)(nil)
	_ Binder     = (*Record)(nil)
	_ Conflicter = (*Record)(nil)
)
