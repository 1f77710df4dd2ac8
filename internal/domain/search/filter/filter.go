package filter

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/kailas-cloud/dirsearch/internal/domain/catalog"
	"github.com/kailas-cloud/dirsearch/internal/domain/catalog/field"
	"github.com/kailas-cloud/dirsearch/internal/domain/record"
)

// Filter limits.
const (
	MaxFields         = 16
	MaxValuesPerField = 32
	MaxValueLength    = 256
	maxFieldName      = 64
)

// Set is a validated structured filter: every condition must hold (AND),
// values inside one condition are alternatives (any-of).
type Set struct {
	conditions []Condition
}

// Condition restricts one field to a set of accepted values.
type Condition struct {
	field  string
	values []string
}

// New validates caller-supplied filters. Conditions are ordered by field name.
func New(raw map[string][]string) (Set, error) {
	if len(raw) > MaxFields {
		return Set{}, fmt.Errorf("too many filters (max %d)", MaxFields)
	}
	conds := make([]Condition, 0, len(raw))
	for name, values := range raw {
		c, err := NewCondition(name, values)
		if err != nil {
			return Set{}, err
		}
		conds = append(conds, c)
	}
	sort.Slice(conds, func(i, j int) bool { return conds[i].field < conds[j].field })
	return Set{conditions: conds}, nil
}

// NewCondition validates a single field condition. Values are trimmed and deduplicated.
func NewCondition(name string, values []string) (Condition, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Condition{}, fmt.Errorf("filter field name is required")
	}
	if len(name) > maxFieldName {
		return Condition{}, fmt.Errorf("filter field name too long (max %d)", maxFieldName)
	}
	if len(values) == 0 {
		return Condition{}, fmt.Errorf("filter %q needs at least one value", name)
	}
	if len(values) > MaxValuesPerField {
		return Condition{}, fmt.Errorf("filter %q has too many values (max %d)", name, MaxValuesPerField)
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			return Condition{}, fmt.Errorf("filter %q has an empty value", name)
		}
		if len(v) > MaxValueLength {
			return Condition{}, fmt.Errorf("filter %q value too long (max %d chars)", name, MaxValueLength)
		}
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return Condition{field: name, values: out}, nil
}

// Conditions returns the conditions ordered by field name.
func (s Set) Conditions() []Condition { return s.conditions }

// IsEmpty reports whether the set has no conditions.
func (s Set) IsEmpty() bool { return len(s.conditions) == 0 }

// Fields returns the filtered field names (safe to log; values are not).
func (s Set) Fields() []string {
	out := make([]string, len(s.conditions))
	for i, c := range s.conditions {
		out[i] = c.field
	}
	return out
}

// MatchCount returns how many requested filter values the record satisfies:
// the overlap size for the array field, 1 for a satisfied scalar or path condition.
func (s Set) MatchCount(r record.Record, l catalog.List) int {
	n := 0
	for _, c := range s.conditions {
		f, ok := l.FieldByName(c.field)
		if !ok {
			continue
		}
		n += c.matches(r, f)
	}
	return n
}

// MatchedFields returns the names of the conditions the record satisfies.
func (s Set) MatchedFields(r record.Record, l catalog.List) []string {
	var out []string
	for _, c := range s.conditions {
		f, ok := l.FieldByName(c.field)
		if ok && c.matches(r, f) > 0 {
			out = append(out, c.field)
		}
	}
	return out
}

// Field returns the filtered field name.
func (c Condition) Field() string { return c.field }

// Values returns the accepted values.
func (c Condition) Values() []string { return c.values }

func (c Condition) matches(r record.Record, f field.Field) int {
	switch {
	case f.Kind() == field.Array:
		n := 0
		for _, t := range r.Tags() {
			if slices.Contains(c.values, t) {
				n++
			}
		}
		return n
	case f.Name() == field.Name:
		return boolToInt(slices.Contains(c.values, r.Name()))
	case f.Name() == field.Status:
		return boolToInt(slices.Contains(c.values, string(r.Status())))
	case f.Kind() == field.Payload:
		v, ok := r.PayloadValue(f.Path())
		if !ok {
			return 0
		}
		return boolToInt(slices.Contains(c.values, record.FormatValue(v)))
	default:
		return 0
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
