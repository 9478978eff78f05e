package sqlgraph

// Step kinds, used in step report tags of the shape graph:<kind>:<table>.
const (
	kindBelongsTo = "belongs_to"
	kindBefore    = "before"
	kindRoot      = "root"
	kindHasOne    = "has_one"
	kindHasMany   = "has_many"
	kindAfter     = "after"
)

// stepTag builds the stable tag for a step report.
func stepTag(kind, table string) string {
	return "graph:" + kind + ":" + table
}

// StepReport records the outcome of a single executed step.
type StepReport struct {
	// Tag is a stable identifier of the shape graph:<kind>:<table>.
	Tag string
	// Affected is the number of rows the step accounted for.
	Affected int64
}

// WriteReport is the result of a completed write-graph execution: the
// total affected-row count, one report per executed step in execution
// order, and the typed root result when one was requested.
//
// A failed execution never produces a partial WriteReport; callers get an
// error instead and are expected to roll back the ambient transaction.
type WriteReport[R any] struct {
	// Affected is the sum of the step affected counts.
	Affected int64
	// Steps holds one report per executed step, in execution order.
	Steps []StepReport
	// Root is the typed root result, if the returning variant was used.
	Root *R
}

// record appends a step report and adds its count to the running total.
func (r *WriteReport[R]) record(tag string, affected int64) {
	r.Steps = append(r.Steps, StepReport{Tag: tag, Affected: affected})
	r.Affected += affected
}

// Tags returns the step tags in execution order. Mostly a test and
// debugging convenience.
func (r *WriteReport[R]) Tags() []string {
	tags := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		tags[i] = s.Tag
	}
	return tags
}
