package sqlgraph

import (
	"context"
	"fmt"

	"github.com/syssam/pgraph"
	"github.com/syssam/pgraph/dialect"
)

// Mode selects how a payload write resolves conflicts.
type Mode int

const (
	// ModeInsert issues a plain insert.
	ModeInsert Mode = iota
	// ModeUpsert issues an insert with conflict resolution. Payloads
	// written in this mode must carry a conflict target (Conflicter).
	ModeUpsert
)

// BelongsTo describes a precondition write to a parent entity the root
// references by foreign key. Exactly one of Payload and Value may be set;
// when the root's foreign-key slot already carries a value, the step is
// skipped entirely.
type BelongsTo struct {
	// Payload is the parent row to write. Mutually exclusive with Value.
	Payload Row
	// Value is an already-resolved parent key, bound into the root's
	// foreign-key slot without any parent write.
	Value any
	// Column is the foreign-key column on the root row.
	Column string
	// KeyColumn is the parent's key column read back after the write.
	// Defaults to "id".
	KeyColumn string
	// Mode selects insert or upsert for the parent write.
	Mode Mode
	// Required makes validation fail when neither a payload, a value,
	// nor a pre-populated foreign-key slot is available.
	Required bool
	// Table overrides the table name used in the step report tag when no
	// payload is present. Defaults to the payload's table, or Column.
	Table string
}

// tagTable returns the table name used in this step's report tag.
func (bt BelongsTo) tagTable() string {
	switch {
	case bt.Table != "":
		return bt.Table
	case bt.Payload != nil:
		return bt.Payload.Table()
	default:
		return bt.Column
	}
}

// SideEffect is a tagged statement callback bracketing the root write.
// Before-steps run ahead of the root and never see its key; after-steps
// run last and receive the resolved root key when NeedsKey is set.
type SideEffect struct {
	// Tag fills the table slot of the step report tag.
	Tag string
	// NeedsKey triggers root-key resolution for after-steps. Ignored on
	// before-steps.
	NeedsKey bool
	// Run executes the side effect and returns its affected-row count.
	Run func(ctx context.Context, conn dialect.ExecQuerier, rootKey any) (int64, error)
}

// childStep is a validated has-one or has-many insert step.
type childStep struct {
	kind   string // kindHasOne or kindHasMany
	table  string // for the report tag; derived at build time
	rows   []Row
	column string
	mode   Mode
}

// Plan is a declarative, validated description of one insert-graph
// operation. It is immutable after Build, executed exactly once, and owns
// no state across calls.
type Plan struct {
	dialect   string
	root      Row
	keyColumn string
	keyField  string
	returning []string
	belongsTo []BelongsTo
	before    []SideEffect
	children  []childStep
	after     []SideEffect
}

// needsRootKey reports whether any step after the root write requires the
// resolved root key.
func (p *Plan) needsRootKey() bool {
	for _, ch := range p.children {
		if len(ch.rows) > 0 {
			return true
		}
	}
	for _, st := range p.after {
		if st.NeedsKey {
			return true
		}
	}
	return false
}

// PlanBuilder assembles a Plan. Build validates eagerly so configuration
// mistakes surface before any statement is issued.
type PlanBuilder struct {
	plan Plan
}

// NewPlan starts a plan for inserting the given root row.
func NewPlan(root Row) *PlanBuilder {
	return &PlanBuilder{plan: Plan{
		root:      root,
		dialect:   dialect.Postgres,
		keyColumn: "id",
	}}
}

// Dialect sets the SQL dialect the plan is executed against.
// Defaults to Postgres.
func (b *PlanBuilder) Dialect(name string) *PlanBuilder {
	b.plan.dialect = name
	return b
}

// KeyColumn sets the root's key column, used for the internal returning
// fetch when a later step needs the root key. Defaults to "id".
func (b *PlanBuilder) KeyColumn(column string) *PlanBuilder {
	b.plan.keyColumn = column
	return b
}

// KeyFromInput configures the root key to be taken from the named column
// of the root payload instead of a returning fetch. An explicit input key
// always wins over a derived one.
func (b *PlanBuilder) KeyFromInput(column string) *PlanBuilder {
	b.plan.keyField = column
	return b
}

// Returning sets the columns fetched for the typed root result. Required
// by ExecuteInsertGraphReturning, ignored otherwise.
func (b *PlanBuilder) Returning(columns ...string) *PlanBuilder {
	b.plan.returning = columns
	return b
}

// BelongsTo appends a parent step. Parents execute first, in declaration
// order.
func (b *PlanBuilder) BelongsTo(bt BelongsTo) *PlanBuilder {
	b.plan.belongsTo = append(b.plan.belongsTo, bt)
	return b
}

// Before appends a side-effect step that runs after the parents and ahead
// of the root write.
func (b *PlanBuilder) Before(step SideEffect) *PlanBuilder {
	b.plan.before = append(b.plan.before, step)
	return b
}

// After appends a side-effect step that runs after all child steps.
func (b *PlanBuilder) After(step SideEffect) *PlanBuilder {
	b.plan.after = append(b.plan.after, step)
	return b
}

// HasOne appends a single-child step written after the root.
func (b *PlanBuilder) HasOne(row Row, fkColumn string, mode Mode) *PlanBuilder {
	b.plan.children = append(b.plan.children, childStep{
		kind:   kindHasOne,
		rows:   []Row{row},
		column: fkColumn,
		mode:   mode,
	})
	return b
}

// HasMany appends a child collection step written after the root. Child
// steps execute in overall declaration order, interleaved with HasOne
// steps.
func (b *PlanBuilder) HasMany(rows []Row, fkColumn string, mode Mode) *PlanBuilder {
	b.plan.children = append(b.plan.children, childStep{
		kind:   kindHasMany,
		rows:   rows,
		column: fkColumn,
		mode:   mode,
	})
	return b
}

// Build validates the plan and freezes it. No statement is issued here or
// by any later validation failure.
func (b *PlanBuilder) Build() (*Plan, error) {
	p := b.plan
	if p.root == nil {
		return nil, verr("root", "missing root row")
	}
	if err := checkRow("root", p.root); err != nil {
		return nil, err
	}
	if p.keyColumn == "" {
		return nil, verr("key_column", "empty key column")
	}
	if p.keyField != "" {
		v, ok := rowValue(p.root, p.keyField)
		if !ok || v == nil {
			return nil, verr(p.keyField, "explicit key field configured but absent on the root row")
		}
	}
	for i := range p.belongsTo {
		bt := &p.belongsTo[i]
		if bt.Column == "" {
			return nil, verr("belongs_to", "missing foreign-key column")
		}
		if bt.Payload != nil && bt.Value != nil {
			return nil, verr(bt.Column, "belongs_to payload and value are mutually exclusive")
		}
		if bt.KeyColumn == "" {
			bt.KeyColumn = "id"
		}
		if bt.Payload != nil {
			if err := checkRow(bt.Column, bt.Payload); err != nil {
				return nil, err
			}
			if bt.Mode == ModeUpsert {
				if err := checkConflicter(bt.Column, bt.Payload); err != nil {
					return nil, err
				}
			}
		}
		if bt.Payload == nil && bt.Value == nil && bt.Required {
			if v, ok := rowValue(p.root, bt.Column); !ok || v == nil {
				return nil, verr(bt.Column, "required belongs_to has neither a payload, a value, nor a pre-populated foreign key")
			}
		}
		if _, ok := p.root.(Binder); !ok && (bt.Payload != nil || bt.Value != nil) {
			return nil, verr("root", "root row %T cannot receive a foreign key (missing Bind)", p.root)
		}
	}
	for i := range p.children {
		ch := &p.children[i]
		if err := checkChildStep(ch); err != nil {
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
	return &p, nil
}

// checkChildStep validates one insert-side child step and derives its tag
// table.
func checkChildStep(ch *childStep) error {
	if ch.column == "" {
		return verr(ch.kind, "missing foreign-key column")
	}
	ch.table = ch.column
	for i, r := range ch.rows {
		if r == nil {
			return verr(ch.column, "nil child row at index %d", i)
		}
		if err := checkRow(ch.column, r); err != nil {
			return err
		}
		if _, ok := r.(Binder); !ok {
			return verr(ch.column, "child row %T cannot receive a foreign key (missing Bind)", r)
		}
		if i == 0 {
			ch.table = r.Table()
		} else if r.Table() != ch.rows[0].Table() {
			return verr(ch.column, "child rows span tables %q and %q", ch.rows[0].Table(), r.Table())
		}
		if !equalColumns(r.Columns(), ch.rows[0].Columns()) {
			return verr(ch.column, "child rows of %q have mismatched columns", r.Table())
		}
		if ch.mode == ModeUpsert {
			if err := checkConflicter(ch.column, r); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkRow validates the basic Row invariants.
func checkRow(name string, r Row) error {
	if r.Table() == "" {
		return verr(name, "row %T has no table", r)
	}
	if len(r.Columns()) != len(r.Values()) {
		return verr(name, "row of %q has %d columns but %d values", r.Table(), len(r.Columns()), len(r.Values()))
	}
	return nil
}

// checkConflicter validates that a row is eligible for upsert writes.
func checkConflicter(name string, r Row) error {
	c, ok := r.(Conflicter)
	if !ok || len(c.ConflictColumns()) == 0 {
		return verr(name, "upsert requires a conflict target on rows of %q", r.Table())
	}
	return nil
}

// equalColumns reports whether two column lists are identical.
func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// verr builds a plan-validation error.
func verr(name, format string, args ...any) error {
	return pgraph.NewValidationError(name, fmt.Errorf(format, args...))
}
