package config

import (
	"fmt"

	"github.com/casperlundberg/asrtm/pkg/constraint"
	"github.com/casperlundberg/asrtm/pkg/dataaware"
	"github.com/casperlundberg/asrtm/pkg/evaluator"
	"github.com/casperlundberg/asrtm/pkg/op"
	"github.com/casperlundberg/asrtm/pkg/rank"
)

func fieldID(index int, metric bool) op.FieldID {
	if metric {
		return op.FieldID{Segment: op.SegmentMetrics, Index: index}
	}
	return op.FieldID{Segment: op.SegmentConfiguration, Index: index}
}

func parseMode(s string) evaluator.Mode {
	switch s {
	case "linear":
		return evaluator.Linear
	case "geometric":
		return evaluator.Geometric
	default:
		return evaluator.Single
	}
}

func parseComparator(s string) (constraint.Comparator, error) {
	switch s {
	case "gt":
		return constraint.GreaterThan, nil
	case "gte":
		return constraint.GreaterOrEqual, nil
	case "lt":
		return constraint.LessThan, nil
	case "lte":
		return constraint.LessOrEqual, nil
	default:
		return 0, fmt.Errorf("config: unknown comparator %q", s)
	}
}

// BuildConstraints constructs one constraint.Constraint per ConstraintSpec,
// keyed by priority, alongside the field each constraint's goal should be
// rescaled by when its spec set adaptor_field (nil for those that didn't).
func (d *Descriptor) BuildConstraints() (map[int]*constraint.Constraint, map[int]*op.FieldID, error) {
	out := make(map[int]*constraint.Constraint, len(d.Constraints))
	adaptorFields := make(map[int]*op.FieldID, len(d.Constraints))
	for _, cs := range d.Constraints {
		field := fieldID(cs.FieldIndex, cs.MetricField)
		cmp, err := parseComparator(cs.Comparator)
		if err != nil {
			return nil, nil, err
		}
		eval := evaluator.New(parseMode(cs.Mode), cmp.BoundFor(), []evaluator.Term{
			{Field: field, Sigma: cs.Sigma, Coefficient: 1},
		})
		out[cs.Priority] = constraint.New(eval, cmp, cs.Goal)
		if cs.AdaptorField {
			boundField := field
			adaptorFields[cs.Priority] = &boundField
		}
	}
	return out, adaptorFields, nil
}

func parseComparison(s string) (dataaware.Comparison, error) {
	switch s {
	case "le":
		return dataaware.LessOrEqual, nil
	case "ge":
		return dataaware.GreaterOrEqual, nil
	case "dontcare":
		return dataaware.DontCare, nil
	default:
		return 0, fmt.Errorf("config: unknown comparison %q", s)
	}
}

// BuildDataAware constructs a *dataaware.DataAwareASRTM from the
// descriptor's DataAwareSpec, pre-populated with every declared cluster.
// Returns nil, nil if the descriptor declares no data-aware layer.
func (d *Descriptor) BuildDataAware() (*dataaware.DataAwareASRTM, error) {
	if d.DataAware == nil {
		return nil, nil
	}

	comparisons := make([]dataaware.Comparison, len(d.DataAware.Comparisons))
	for i, s := range d.DataAware.Comparisons {
		cmp, err := parseComparison(s)
		if err != nil {
			return nil, err
		}
		comparisons[i] = cmp
	}

	da := dataaware.New(d.NumConfigFields(), d.NumMetricFields(), comparisons, d.DataAware.Normalize)
	for _, cluster := range d.DataAware.Clusters {
		da.AddCluster(cluster.Key)
	}
	return da, nil
}

// BuildRank constructs the rank described by the descriptor's RankSpec.
func (d *Descriptor) BuildRank() *rank.Rank {
	field := fieldID(d.Rank.FieldIndex, d.Rank.MetricField)
	direction := rank.Minimize
	if d.Rank.Direction == "maximize" {
		direction = rank.Maximize
	}
	bound := op.BoundLower
	if direction == rank.Maximize {
		bound = op.BoundUpper
	}
	eval := evaluator.New(evaluator.Single, bound, []evaluator.Term{
		{Field: field, Sigma: d.Rank.Sigma, Coefficient: 1},
	})
	return rank.New(eval, direction)
}
