package sqlgraph

import "github.com/syssam/pgraph/dialect"

// Strategy selects how an update-graph child policy reconciles the stored
// child set with the desired one.
type Strategy int

const (
	// StrategyReplace deletes every child in the foreign-key scope, then
	// inserts the provided set.
	StrategyReplace Strategy = iota
	// StrategyAppend inserts the provided set without deleting anything.
	StrategyAppend
	// StrategyUpsert insert-or-updates the provided set.
	StrategyUpsert
	// StrategyDiff makes the stored set exactly match the desired set:
	// one combined statement upserts the batch and deletes every
	// existing child whose key columns do not match a provided row.
	StrategyDiff
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyReplace:
		return "replace"
	case StrategyAppend:
		return "append"
	case StrategyUpsert:
		return "upsert"
	case StrategyDiff:
		return "diff"
	default:
		return "unknown"
	}
}

// relState is the tag of the tri-state RelValue.
type relState int

const (
	relUntouched relState = iota
	relClear
	relSet
)

// RelValue is the tri-state value of a child collection in an update
// graph. The three states are distinct on purpose: "the caller did not
// mention this collection" (Untouched), "the caller explicitly cleared
// it" (Clear), and "the caller provided values" (SetRows). None of them
// is inferred from a nil slice.
type RelValue struct {
	state relState
	rows  []Row
}

// Untouched returns the value for a collection the caller did not mention.
// It is always a no-op: no statement, no step report.
func Untouched() RelValue {
	return RelValue{state: relUntouched}
}

// Clear returns the explicit-empty value.
func Clear() RelValue {
	return RelValue{state: relClear}
}

// SetRows returns the explicit-values state. Providing zero rows is
// equivalent to Clear.
func SetRows(rows ...Row) RelValue {
	return RelValue{state: relSet, rows: rows}
}

// Touched reports whether the caller mentioned the collection at all.
func (v RelValue) Touched() bool { return v.state != relUntouched }

// Rows returns the provided rows, nil for Untouched and Clear.
func (v RelValue) Rows() []Row { return v.rows }

// ChildUpdate is an update-graph child policy: a tri-state collection
// value, the child's foreign-key column, a reconciliation strategy, and,
// for diff only, the key columns that identify a child row within the
// foreign-key scope.
type ChildUpdate struct {
	// Table is the child table. It must be set even for Clear policies,
	// where no payload is available to derive it from.
	Table string
	// Column is the foreign-key column in the child table.
	Column string
	// Rel is the tri-state collection value.
	Rel RelValue
	// Strategy selects the reconciliation behavior.
	Strategy Strategy
	// KeyColumns identify a child row within the foreign-key scope.
	// Required by StrategyDiff, ignored otherwise. Key columns must be
	// unique within the scope and non-null: the reconciliation compares
	// them with NOT IN, and SQL null semantics exempt a stored row with a
	// null key column from the delete. Both are preconditions the
	// database enforces, not the engine.
	KeyColumns []string
}

// childUpdateStep is a validated child policy with its report kind.
type childUpdateStep struct {
	kind string // kindHasOne or kindHasMany
	ChildUpdate
}

// fieldChange is one root-column assignment, in declaration order.
type fieldChange struct {
	column string
	value  any
}

// Patch is a declarative, validated description of one update-graph
// operation: root field changes plus child policies. Like Plan, it is
// immutable after Build and executed exactly once.
type Patch struct {
	dialect   string
	table     string
	keyColumn string
	fields    []fieldChange
	returning []string
	before    []SideEffect
	children  []childUpdateStep
	after     []SideEffect
}

// hasTouchedChildren reports whether any child policy is explicit.
func (p *Patch) hasTouchedChildren() bool {
	for _, ch := range p.children {
		if ch.Rel.Touched() {
			return true
		}
	}
	return false
}

// PatchBuilder assembles a Patch. Build validates eagerly; a patch that
// would issue no statement at all is rejected here rather than silently
// succeeding at execution time.
type PatchBuilder struct {
	patch Patch
}

// NewPatch starts a patch against the given root table.
func NewPatch(table string) *PatchBuilder {
	return &PatchBuilder{patch: Patch{
		table:     table,
		dialect:   dialect.Postgres,
		keyColumn: "id",
	}}
}

// Dialect sets the SQL dialect the patch is executed against.
// Defaults to Postgres.
func (b *PatchBuilder) Dialect(name string) *PatchBuilder {
	b.patch.dialect = name
	return b
}

// KeyColumn sets the root's key column. Defaults to "id".
func (b *PatchBuilder) KeyColumn(column string) *PatchBuilder {
	b.patch.keyColumn = column
	return b
}

// Set adds a root-column change. Setting the same column twice keeps the
// later value in the original position.
func (b *PatchBuilder) Set(column string, v any) *PatchBuilder {
	for i := range b.patch.fields {
		if b.patch.fields[i].column == column {
			b.patch.fields[i].value = v
			return b
		}
	}
	b.patch.fields = append(b.patch.fields, fieldChange{column: column, value: v})
	return b
}

// Returning sets the columns fetched for the typed root result. Required
// by ExecuteUpdateGraphReturning, ignored otherwise.
func (b *PatchBuilder) Returning(columns ...string) *PatchBuilder {
	b.patch.returning = columns
	return b
}

// Before appends a side-effect step that runs ahead of the root update.
func (b *PatchBuilder) Before(step SideEffect) *PatchBuilder {
	b.patch.before = append(b.patch.before, step)
	return b
}

// After appends a side-effect step that runs after all child policies.
func (b *PatchBuilder) After(step SideEffect) *PatchBuilder {
	b.patch.after = append(b.patch.after, step)
	return b
}

// HasOneUpdate appends a single-child policy.
func (b *PatchBuilder) HasOneUpdate(cu ChildUpdate) *PatchBuilder {
	b.patch.children = append(b.patch.children, childUpdateStep{kind: kindHasOne, ChildUpdate: cu})
	return b
}

// HasManyUpdate appends a child-collection policy. Policies execute in
// overall declaration order.
func (b *PatchBuilder) HasManyUpdate(cu ChildUpdate) *PatchBuilder {
	b.patch.children = append(b.patch.children, childUpdateStep{kind: kindHasMany, ChildUpdate: cu})
	return b
}

// Build validates the patch and freezes it.
func (b *PatchBuilder) Build() (*Patch, error) {
	p := b.patch
	if p.table == "" {
		return nil, verr("table", "missing root table")
	}
	if p.keyColumn == "" {
		return nil, verr("key_column", "empty key column")
	}
	for i := range p.children {
		if err := checkChildUpdate(&p.children[i], p.dialect); err != nil {
			return nil, err
		}
	}
	for _, st := range p.before {
		if st.Run == nil {
			return nil, verr("before", "side-effect step %q has no Run function", st.Tag)
		}
	}
	for _, st := range p.after {
		if st.Run == nil {
			return nil, verr("after", "side-effect step %q has no Run function", st.Tag)
		}
	}
	if len(p.fields) == 0 && !p.hasTouchedChildren() && len(p.before) == 0 && len(p.after) == 0 {
		return nil, verr(p.table, "no operations to perform")
	}
	return &p, nil
}

// checkChildUpdate validates one child policy.
func checkChildUpdate(ch *childUpdateStep, dialectName string) error {
	if ch.Table == "" {
		return verr(ch.kind, "missing child table")
	}
	if ch.Column == "" {
		return verr(ch.Table, "missing foreign-key column")
	}
	if ch.Strategy == StrategyDiff {
		if len(ch.KeyColumns) == 0 {
			return verr(ch.Table, "diff strategy requires key columns")
		}
		// The combined upsert+delete statement relies on data-modifying
		// CTEs, which only Postgres supports.
		if dialectName != dialect.Postgres {
			return verr(ch.Table, "diff strategy is not supported on dialect %q", dialectName)
		}
	}
	if !ch.Rel.Touched() {
		return nil
	}
	rows := ch.Rel.Rows()
	if ch.kind == kindHasOne && len(rows) > 1 {
		return verr(ch.Table, "has_one policy carries %d rows", len(rows))
	}
	for i, r := range rows {
		if r == nil {
			return verr(ch.Table, "nil child row at index %d", i)
		}
		if err := checkRow(ch.Table, r); err != nil {
			return err
		}
		if r.Table() != ch.Table {
			return verr(ch.Table, "child row targets table %q", r.Table())
		}
		if _, ok := r.(Binder); !ok {
			return verr(ch.Table, "child row %T cannot receive a foreign key (missing Bind)", r)
		}
		if !equalColumns(r.Columns(), rows[0].Columns()) {
			return verr(ch.Table, "child rows have mismatched columns")
		}
		if ch.Strategy == StrategyUpsert {
			if err := checkConflicter(ch.Table, r); err != nil {
				return err
			}
		}
	}
	return nil
}

// diffConflictTarget returns the conflict target for a diff upsert: the
// row's own conflict columns when configured, otherwise the foreign-key
// column plus the policy's key columns, which is the uniqueness scope
// diff already requires.
func (ch *childUpdateStep) diffConflictTarget(first Row) []string {
	if c, ok := first.(Conflicter); ok && len(c.ConflictColumns()) > 0 {
		return c.ConflictColumns()
	}
	target := make([]string, 0, len(ch.KeyColumns)+1)
	target = append(target, ch.Column)
	target = append(target, ch.KeyColumns...)
	return target
}
