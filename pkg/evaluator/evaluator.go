// Package evaluator computes a scalar score from an Operating Point: the
// building block constraints and ranks use to order/bound OPs.
package evaluator

import (
	"math"

	"github.com/casperlundberg/asrtm/pkg/op"
)

// Mode selects how an Evaluator combines its terms into one scalar.
type Mode int

const (
	// Single returns the bound of exactly one term; only the first term is
	// used. Constructors should pass exactly one term for this mode.
	Single Mode = iota
	// Linear sums coefficient*bound over every term.
	Linear
	// Geometric multiplies bound^coefficient over every term (each base
	// promoted to floating point before exponentiation).
	Geometric
)

// Term is one (field, sigma, coefficient) contribution to an evaluator's
// score (spec's "small typed enumeration... constructed at runtime" in
// place of the original's compile-time template composition).
type Term struct {
	Field       op.FieldID
	Sigma       float64
	Coefficient float64
}

// Evaluator is a pure function of one Operating Point, fixed at
// construction: a combination mode, a bound direction (lower/upper,
// determined by the comparator of whatever constraint owns it, or chosen
// freely by a rank), and an ordered list of terms.
type Evaluator struct {
	mode  Mode
	bound op.BoundType
	terms []Term
}

// New constructs an Evaluator. The terms slice is used in the given order;
// callers must supply exactly one term for Single mode.
func New(mode Mode, bound op.BoundType, terms []Term) *Evaluator {
	return &Evaluator{mode: mode, bound: bound, terms: append([]Term(nil), terms...)}
}

// Mode returns the evaluator's combination mode.
func (e *Evaluator) Mode() Mode { return e.mode }

// Bound returns the evaluator's fixed bound direction.
func (e *Evaluator) Bound() op.BoundType { return e.bound }

// Terms returns the evaluator's fixed term list, in construction order.
func (e *Evaluator) Terms() []Term { return e.terms }

// Score computes the evaluator's scalar value for o.
func (e *Evaluator) Score(o *op.OperatingPoint) float64 {
	switch e.mode {
	case Single:
		if len(e.terms) == 0 {
			return 0
		}
		t := e.terms[0]
		return o.Bound(t.Field, e.bound, t.Sigma)
	case Geometric:
		product := 1.0
		for _, t := range e.terms {
			base := o.Bound(t.Field, e.bound, t.Sigma)
			product *= math.Pow(base, t.Coefficient)
		}
		return product
	default: // Linear
		var sum float64
		for _, t := range e.terms {
			sum += t.Coefficient * o.Bound(t.Field, e.bound, t.Sigma)
		}
		return sum
	}
}
