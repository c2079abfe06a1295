// Package query provides the composable filter-predicate model shared by the
// store backends and the reference-breadth expansion.
package query

import (
	"fmt"
	"strings"
)

// Operator represents a comparison operator
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpIn
	OpIsNull
	OpIsNotNull
)

// String returns the string representation of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpIn:
		return "IN"
	case OpIsNull:
		return "IS NULL"
	case OpIsNotNull:
		return "IS NOT NULL"
	default:
		return "UNKNOWN"
	}
}

// Condition is a flat comparison against one field of the candidate record.
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// Step is one hop of a relation path. Reverse hops match records of Kind
// whose Field points back at the current record; forward hops follow the
// current record's Field to a record of Kind.
type Step struct {
	Kind    string
	Field   string
	Reverse bool
}

// RelationPredicate matches records reachable from a predicate-matching
// record through a declared relation path. This is how breadth expansion
// expresses "codelist whose enumeration is used by a concept in the matched
// concept schemes".
type RelationPredicate struct {
	Steps []Step
	Pred  *PredicateGroup
}

// PredicateGroup combines conditions, relation predicates and nested groups.
// Or selects the combinator for the group's own members.
type PredicateGroup struct {
	Conditions []*Condition
	Relations  []*RelationPredicate
	Groups     []*PredicateGroup
	Or         bool
}

// NewPredicateGroup creates a new predicate group
func NewPredicateGroup(or bool) *PredicateGroup {
	return &PredicateGroup{Or: or}
}

// AddCondition adds a flat condition to the group.
func (pg *PredicateGroup) AddCondition(cond *Condition) *PredicateGroup {
	pg.Conditions = append(pg.Conditions, cond)
	return pg
}

// Where is shorthand for AddCondition.
func (pg *PredicateGroup) Where(field string, op Operator, value interface{}) *PredicateGroup {
	return pg.AddCondition(&Condition{Field: field, Operator: op, Value: value})
}

// AddRelation adds a relation predicate to the group.
func (pg *PredicateGroup) AddRelation(rel *RelationPredicate) *PredicateGroup {
	pg.Relations = append(pg.Relations, rel)
	return pg
}

// AddGroup adds a nested group.
func (pg *PredicateGroup) AddGroup(group *PredicateGroup) *PredicateGroup {
	pg.Groups = append(pg.Groups, group)
	return pg
}

// Empty reports whether the group constrains nothing.
func (pg *PredicateGroup) Empty() bool {
	return pg == nil || (len(pg.Conditions) == 0 && len(pg.Relations) == 0 && len(pg.Groups) == 0)
}

// TableForKind maps a record kind to its backing table name
// ("codelist.Codelist" -> "codelist_codelist").
func TableForKind(kind string) string {
	return strings.ToLower(strings.ReplaceAll(kind, ".", "_"))
}

// ToSQL renders the group as a parameterized WHERE fragment for the table
// aliased as alias. paramCounter numbers placeholders $1..$n across the
// whole statement; args accumulates their values.
func (pg *PredicateGroup) ToSQL(alias string, paramCounter *int, args *[]interface{}) (string, error) {
	if pg.Empty() {
		return "", nil
	}

	parts := make([]string, 0, len(pg.Conditions)+len(pg.Relations)+len(pg.Groups))

	for _, cond := range pg.Conditions {
		sql, err := conditionToSQL(cond, alias, paramCounter, args)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}

	for _, rel := range pg.Relations {
		sql, err := relationToSQL(rel, alias, paramCounter, args)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}

	for _, group := range pg.Groups {
		sql, err := group.ToSQL(alias, paramCounter, args)
		if err != nil {
			return "", err
		}
		if sql != "" {
			parts = append(parts, fmt.Sprintf("(%s)", sql))
		}
	}

	sep := " AND "
	if pg.Or {
		sep = " OR "
	}
	return strings.Join(parts, sep), nil
}

func conditionToSQL(cond *Condition, alias string, paramCounter *int, args *[]interface{}) (string, error) {
	column := fmt.Sprintf("%s.%s", alias, cond.Field)

	switch cond.Operator {
	case OpEqual, OpNotEqual:
		placeholder := fmt.Sprintf("$%d", *paramCounter)
		*paramCounter++
		*args = append(*args, cond.Value)
		return fmt.Sprintf("%s %s %s", column, cond.Operator, placeholder), nil
	case OpIn:
		values, ok := cond.Value.([]interface{})
		if !ok {
			return "", fmt.Errorf("IN operator requires []interface{}, got %T", cond.Value)
		}
		if len(values) == 0 {
			return "FALSE", nil
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = fmt.Sprintf("$%d", *paramCounter)
			*paramCounter++
			*args = append(*args, v)
		}
		return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")), nil
	case OpIsNull, OpIsNotNull:
		return fmt.Sprintf("%s %s", column, cond.Operator), nil
	default:
		return "", fmt.Errorf("unsupported operator: %d", cond.Operator)
	}
}

// relationToSQL renders a relation path as nested EXISTS subqueries.
// Foreign-key fields map to "<field>_id" columns.
func relationToSQL(rel *RelationPredicate, alias string, paramCounter *int, args *[]interface{}) (string, error) {
	if len(rel.Steps) == 0 {
		return "", fmt.Errorf("relation predicate with no steps")
	}
	return stepToSQL(rel.Steps, rel.Pred, alias, 0, paramCounter, args)
}

func stepToSQL(steps []Step, pred *PredicateGroup, outerAlias string, depth int, paramCounter *int, args *[]interface{}) (string, error) {
	step := steps[0]
	alias := fmt.Sprintf("r%d", depth)
	table := TableForKind(step.Kind)

	var link string
	if step.Reverse {
		link = fmt.Sprintf("%s.%s_id = %s.id", alias, step.Field, outerAlias)
	} else {
		link = fmt.Sprintf("%s.%s_id = %s.id", outerAlias, step.Field, alias)
	}

	var inner string
	var err error
	if len(steps) > 1 {
		inner, err = stepToSQL(steps[1:], pred, alias, depth+1, paramCounter, args)
	} else {
		inner, err = pred.ToSQL(alias, paramCounter, args)
	}
	if err != nil {
		return "", err
	}
	if inner != "" {
		inner = " AND " + inner
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM %s %s WHERE %s%s)", table, alias, link, inner), nil
}
