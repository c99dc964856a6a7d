package handlers

import (
	"fmt"
	"strings"
)

// ConditionSet is an ordered list of SQL predicate fragments plus the
// parameter values bound to them. Placeholders are numbered in append order,
// so the Nth placeholder across the joined fragments always refers to the Nth
// parameter. That pairing is the load-bearing invariant of query building
// here: predicates and parameters are only ever appended together.
type ConditionSet struct {
	Conditions []string
	Params     []any
}

// add appends a predicate and its bound value in one step. template must
// contain a single %d verb for the placeholder number.
func (cs *ConditionSet) add(template string, value any) {
	cs.Conditions = append(cs.Conditions, fmt.Sprintf(template, len(cs.Params)+1))
	cs.Params = append(cs.Params, value)
}

// addBare appends a predicate that binds no parameter.
func (cs *ConditionSet) addBare(condition string) {
	cs.Conditions = append(cs.Conditions, condition)
}

// Empty reports whether no predicates were produced.
func (cs ConditionSet) Empty() bool {
	return len(cs.Conditions) == 0
}

// Join concatenates the predicates with AND.
func (cs ConditionSet) Join() string {
	return strings.Join(cs.Conditions, " AND ")
}

// NextPlaceholder returns the placeholder number for the next parameter
// appended after the condition set, e.g. a trailing LIMIT.
func (cs ConditionSet) NextPlaceholder() int {
	return len(cs.Params) + 1
}

// conditionRule declares how one logical filter field turns into a predicate.
// The template yields a fragment with a %d verb for the placeholder number;
// the extractor yields the bound value, or ok=false when the field is not set
// and contributes nothing.
type conditionRule struct {
	field    string
	template func(f FilterSelection) string
	value    func(f FilterSelection) (any, bool)
}

func staticTemplate(fragment string) func(FilterSelection) string {
	return func(FilterSelection) string { return fragment }
}

func stringValue(get func(FilterSelection) string) func(FilterSelection) (any, bool) {
	return func(f FilterSelection) (any, bool) {
		v := get(f)
		if v == "" {
			return nil, false
		}
		return v, true
	}
}

// dutRules are the rules shared by both query variants, parameterized by the
// column qualifier ("" against dut directly, "d." against the joined alias).
func dutRules(qualifier string) []conditionRule {
	return []conditionRule{
		{
			field:    "productLine",
			template: staticTemplate(qualifier + "product_line = $%d"),
			value:    stringValue(func(f FilterSelection) string { return f.ProductLine }),
		},
		{
			field:    "project",
			template: staticTemplate(qualifier + "project = $%d"),
			value:    stringValue(func(f FilterSelection) string { return f.Project }),
		},
		{
			field: "device",
			template: func(f FilterSelection) string {
				return qualifier + string(f.DeviceColumn) + " = $%d"
			},
			value: func(f FilterSelection) (any, bool) {
				// Both halves of the selection are required.
				if f.DeviceColumn == "" || f.DeviceValue == "" {
					return nil, false
				}
				return f.DeviceValue, true
			},
		},
	}
}

// performanceRules extends the dut rules with the measurement-table fields.
// Start and end bounds are independent predicates, never a BETWEEN, so either
// may be supplied alone.
var performanceRules = append(dutRules("d."), []conditionRule{
	{
		field:    "standard",
		template: staticTemplate("p.standard = $%d"),
		value:    stringValue(func(f FilterSelection) string { return f.Standard }),
	},
	{
		field:    "band",
		template: staticTemplate("p.band = $%d"),
		value:    stringValue(func(f FilterSelection) string { return f.Band }),
	},
	{
		field:    "bandwidth",
		template: staticTemplate("p.bandwidth_mhz = $%d"),
		value: func(f FilterSelection) (any, bool) {
			if f.BandwidthMHz == nil {
				return nil, false
			}
			return *f.BandwidthMHz, true
		},
	},
	{
		field:    "startDate",
		template: staticTemplate("p.created_at >= $%d"),
		value: func(f FilterSelection) (any, bool) {
			if f.StartDate == nil {
				return nil, false
			}
			return *f.StartDate, true
		},
	},
	{
		field:    "endDate",
		template: staticTemplate("p.created_at <= $%d"),
		value: func(f FilterSelection) (any, bool) {
			if f.EndDate == nil {
				return nil, false
			}
			return *f.EndDate, true
		},
	},
}...)

// BuildOptions controls a single condition build.
type BuildOptions struct {
	// Exclude lists logical field names whose rules are skipped for this
	// invocation. Excluding a dimension from its own option query is what
	// makes the cascading filter behavior work.
	Exclude []string
	// IncludeBase prepends the non-null measurement predicates
	// (performance variant only). They bind no parameters.
	IncludeBase bool
}

func (o BuildOptions) excluded(field string) bool {
	for _, f := range o.Exclude {
		if f == field {
			return true
		}
	}
	return false
}

func buildConditions(rules []conditionRule, f FilterSelection, opts BuildOptions) ConditionSet {
	var cs ConditionSet
	if opts.IncludeBase {
		cs.addBare("p.path_loss_db IS NOT NULL")
		cs.addBare("p.throughput_avg_mbps IS NOT NULL")
	}
	for _, rule := range rules {
		if opts.excluded(rule.field) {
			continue
		}
		value, ok := rule.value(f)
		if !ok {
			continue
		}
		cs.add(rule.template(f), value)
	}
	return cs
}

// BuildDUTConditions builds predicates against the dut table directly
// (productLine, project, device).
func BuildDUTConditions(f FilterSelection, opts BuildOptions) ConditionSet {
	opts.IncludeBase = false
	return buildConditions(dutRules(""), f, opts)
}

// BuildPerformanceConditions builds predicates for the performance query,
// with dut fields going through the joined d alias and measurement fields
// through p.
func BuildPerformanceConditions(f FilterSelection, opts BuildOptions) ConditionSet {
	return buildConditions(performanceRules, f, opts)
}
