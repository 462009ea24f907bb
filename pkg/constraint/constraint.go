// Package constraint implements one prioritized filter of the constrained
// optimization problem: an evaluator-derived bound compared against a
// mutable goal, with the set of Operating Points it currently rules out.
package constraint

import (
	"github.com/casperlundberg/asrtm/pkg/adaptor"
	"github.com/casperlundberg/asrtm/pkg/evaluator"
	"github.com/casperlundberg/asrtm/pkg/op"
)

// Comparator is the relational kind a constraint enforces between an OP's
// evaluator score and its effective threshold.
type Comparator int

const (
	GreaterThan Comparator = iota
	GreaterOrEqual
	LessThan
	LessOrEqual
)

// BoundFor returns the bound direction an evaluator backing this comparator
// must extract: lower for "greater" goals, upper for "less" goals, matching
// spec.md §3's constraint definition.
func (c Comparator) BoundFor() op.BoundType {
	if c == GreaterThan || c == GreaterOrEqual {
		return op.BoundLower
	}
	return op.BoundUpper
}

// maximizes reports whether a higher evaluator score is "more satisfying"
// for this comparator (true for greater* constraints, false for less*).
func (c Comparator) maximizes() bool {
	return c == GreaterThan || c == GreaterOrEqual
}

func (c Comparator) satisfies(score, threshold float64) bool {
	switch c {
	case GreaterThan:
		return score > threshold
	case GreaterOrEqual:
		return score >= threshold
	case LessThan:
		return score < threshold
	default: // LessOrEqual
		return score <= threshold
	}
}

// Constraint is one priority-ordered filter: an evaluator bound compared
// against a goal (optionally rescaled by a field adaptor's error
// coefficient), the set of OPs it currently blocks, and a score-ordered
// view over every OP it has ever been told about.
type Constraint struct {
	eval       *evaluator.Evaluator
	comparator Comparator
	goal       float64

	adaptorField   *op.FieldID
	knowledgeAdapt *adaptor.KnowledgeAdaptor

	threshold float64

	view    *op.ScoreIndex
	blocked map[string]*op.OperatingPoint
}

// New constructs a constraint with the given evaluator, comparator and
// initial goal. The field adaptor binding is optional and is made
// separately with SetAdaptor; without one the effective threshold equals
// the goal.
func New(eval *evaluator.Evaluator, comparator Comparator, goal float64) *Constraint {
	c := &Constraint{
		eval:       eval,
		comparator: comparator,
		goal:       goal,
		blocked:    make(map[string]*op.OperatingPoint),
	}
	c.view = op.NewScoreIndex(c.score)
	c.refreshThreshold()
	return c
}

func (c *Constraint) score(o *op.OperatingPoint) float64 { return c.eval.Score(o) }

// Threshold returns the constraint's last-computed effective threshold
// (goal x error coefficient).
func (c *Constraint) Threshold() float64 { return c.threshold }

// Goal returns the constraint's current (mutable) goal value.
func (c *Constraint) Goal() float64 { return c.goal }

// SetGoal changes the constraint's goal. The new effective threshold is
// not computed until the next Update call.
func (c *Constraint) SetGoal(goal float64) { c.goal = goal }

// SetAdaptor binds (or unbinds, with field == nil) the field adaptor this
// constraint rescales its goal by.
func (c *Constraint) SetAdaptor(field *op.FieldID, ka *adaptor.KnowledgeAdaptor) {
	c.adaptorField = field
	c.knowledgeAdapt = ka
}

// AdaptorField returns the field this constraint's goal is rescaled by, if
// any.
func (c *Constraint) AdaptorField() *op.FieldID { return c.adaptorField }

// Comparator returns the constraint's comparison kind.
func (c *Constraint) Comparator() Comparator { return c.comparator }

// Evaluator returns the constraint's evaluator.
func (c *Constraint) Evaluator() *evaluator.Evaluator { return c.eval }

// Sibling returns a structurally identical, freshly constructed constraint
// -- same evaluator, comparator and goal, but an empty view/blocked set and
// no adaptor binding (the caller rebinds it to the sibling's own adaptor).
// Mirrors the original source's create_sibling mechanism, generalized from
// rank.Rank.Sibling to constraints (spec.md §4.9 "same constraints, with
// their goals").
func (c *Constraint) Sibling() *Constraint {
	return New(c.eval, c.comparator, c.goal)
}

func (c *Constraint) coefficient() float64 {
	if c.adaptorField == nil || c.knowledgeAdapt == nil {
		return 1.0
	}
	return c.knowledgeAdapt.Coefficient(*c.adaptorField)
}

func (c *Constraint) refreshThreshold() {
	c.threshold = c.goal * c.coefficient()
}

func (c *Constraint) satisfies(o *op.OperatingPoint) bool {
	return c.comparator.satisfies(c.score(o), c.threshold)
}

// Set rebuilds the constraint's view from scratch over every OP in kb,
// discarding any prior view contents (blocked set is left untouched: it is
// expected to be empty when Set is used, at construction time).
func (c *Constraint) Set(kb *op.Knowledge) {
	c.view.Clear()
	for _, o := range kb.Enumerate() {
		c.view.Add(o)
	}
}

// Add inserts o into the constraint's view. It does not decide membership
// in the blocked set; callers drive that via InitialFilter/AddFilter.
func (c *Constraint) Add(o *op.OperatingPoint) {
	c.view.Add(o)
}

// Remove drops o from both the view and the blocked set.
func (c *Constraint) Remove(o *op.OperatingPoint) {
	c.view.Remove(o)
	delete(c.blocked, o.ConfigKey())
}

// Clear empties the view and the blocked set.
func (c *Constraint) Clear() {
	c.view.Clear()
	c.blocked = make(map[string]*op.OperatingPoint)
}

// Blocked reports whether o is currently in this constraint's blocked set.
func (c *Constraint) Blocked(o *op.OperatingPoint) bool {
	_, ok := c.blocked[o.ConfigKey()]
	return ok
}

// BlockedOPs returns every OP currently blocked by this constraint. No
// ordering is defined.
func (c *Constraint) BlockedOPs() []*op.OperatingPoint {
	out := make([]*op.OperatingPoint, 0, len(c.blocked))
	for _, o := range c.blocked {
		out = append(out, o)
	}
	return out
}

// InitialFilter partitions input into this constraint's blocked set,
// returning the OPs that failed (and were absorbed).
func (c *Constraint) InitialFilter(input []*op.OperatingPoint) []*op.OperatingPoint {
	var invalidated []*op.OperatingPoint
	for _, o := range input {
		if !c.satisfies(o) {
			c.blocked[o.ConfigKey()] = o
			invalidated = append(invalidated, o)
		}
	}
	return invalidated
}

// AddFilter blocks whichever of input fails the constraint, passing the
// rest through.
func (c *Constraint) AddFilter(input []*op.OperatingPoint) []*op.OperatingPoint {
	var passing []*op.OperatingPoint
	for _, o := range input {
		if c.satisfies(o) {
			passing = append(passing, o)
		} else {
			c.blocked[o.ConfigKey()] = o
		}
	}
	return passing
}

// RemoveFilter unblocks whichever of input this constraint currently
// blocks, passing through whatever it was not already blocking.
func (c *Constraint) RemoveFilter(input []*op.OperatingPoint) []*op.OperatingPoint {
	var passing []*op.OperatingPoint
	for _, o := range input {
		key := o.ConfigKey()
		if _, ok := c.blocked[key]; ok {
			delete(c.blocked, key)
		} else {
			passing = append(passing, o)
		}
	}
	return passing
}

// Update recomputes the effective threshold from the current goal and
// adaptor coefficient. If the threshold worsened (harder to satisfy), it
// returns the view's OPs between the old and new threshold as invalidated
// -- candidates the caller must re-run through AddFilter to actually block.
// If it improved, Update itself releases from its own blocked set every OP
// that now passes, returning them as released.
func (c *Constraint) Update() (invalidated, released []*op.OperatingPoint) {
	old := c.threshold
	c.refreshThreshold()
	updated := c.threshold
	if old == updated {
		return nil, nil
	}

	worsened := c.comparator.maximizes() == (updated > old)
	if worsened {
		candidates := c.view.Between(old, updated)
		for _, o := range candidates {
			if !c.satisfies(o) {
				invalidated = append(invalidated, o)
			}
		}
		return invalidated, nil
	}

	for key, o := range c.blocked {
		if c.satisfies(o) {
			delete(c.blocked, key)
			released = append(released, o)
		}
	}
	return nil, released
}

// Closest returns the blocked OPs whose evaluator score is nearest the
// current effective threshold -- all ties, never an arbitrary singleton.
func (c *Constraint) Closest() []*op.OperatingPoint {
	blocked := c.BlockedOPs()
	return op.ClosestToAmong(blocked, c.score, c.threshold)
}

// Narrow returns, of the input, the ones that satisfy this constraint; if
// none do, it returns those tied on the best evaluator score in whichever
// direction this constraint favors.
func (c *Constraint) Narrow(input []*op.OperatingPoint) []*op.OperatingPoint {
	var valid []*op.OperatingPoint
	for _, o := range input {
		if c.satisfies(o) {
			valid = append(valid, o)
		}
	}
	if len(valid) > 0 {
		return valid
	}
	return c.bestOf(input)
}

func (c *Constraint) bestOf(input []*op.OperatingPoint) []*op.OperatingPoint {
	if len(input) == 0 {
		return nil
	}
	maximize := c.comparator.maximizes()
	best := c.score(input[0])
	for _, o := range input[1:] {
		s := c.score(o)
		if (maximize && s > best) || (!maximize && s < best) {
			best = s
		}
	}
	var out []*op.OperatingPoint
	for _, o := range input {
		if c.score(o) == best {
			out = append(out, o)
		}
	}
	return out
}

// ToStream returns every OP in the constraint's view, in ascending
// evaluator-score order.
func (c *Constraint) ToStream() []*op.OperatingPoint {
	return c.view.Stream()
}

// AppendTo adds every OP currently blocked by this constraint into target.
func (c *Constraint) AppendTo(target *op.ScoreIndex) {
	for _, o := range c.blocked {
		target.Add(o)
	}
}
