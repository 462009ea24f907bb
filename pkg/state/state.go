// Package state implements one constrained multi-objective optimization
// problem: a priority-ordered chain of constraints feeding a rank, with
// constraint relaxation as a fallback when nothing satisfies every
// constraint outright.
package state

import (
	"sort"

	"github.com/casperlundberg/asrtm/pkg/adaptor"
	"github.com/casperlundberg/asrtm/pkg/constraint"
	"github.com/casperlundberg/asrtm/pkg/op"
	"github.com/casperlundberg/asrtm/pkg/rank"
)

// State is the constraint chain plus rank for one named optimization
// problem (C7). It is not self-locking: the owning AS-RTM serializes all
// access to it under its own single mutex.
type State struct {
	kb *op.Knowledge
	ka *adaptor.KnowledgeAdaptor

	constraints map[int]*constraint.Constraint
	order       []int // priorities, ascending: lowest number = highest logical priority

	rank *rank.Rank

	cachedBest *op.OperatingPoint
	dirty      bool
}

// New creates a State bound to kb and ka (used to seed new constraints'
// views and adaptor bindings) with r as its rank.
func New(kb *op.Knowledge, ka *adaptor.KnowledgeAdaptor, r *rank.Rank) *State {
	return &State{
		kb:          kb,
		ka:          ka,
		constraints: make(map[int]*constraint.Constraint),
		rank:        r,
		dirty:       true,
	}
}

func (s *State) insertOrder(priority int) {
	for _, p := range s.order {
		if p == priority {
			return
		}
	}
	s.order = append(s.order, priority)
	sort.Ints(s.order)
}

func (s *State) removeOrder(priority int) {
	for i, p := range s.order {
		if p == priority {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// AddConstraint inserts c at priority, replacing any existing constraint at
// that priority (spec.md §4.7 "Adding a constraint").
func (s *State) AddConstraint(priority int, c *constraint.Constraint) {
	var gathered []*op.OperatingPoint
	gathered = append(gathered, s.rank.ToStream()...)
	for _, p := range s.order {
		if p >= priority {
			gathered = append(gathered, s.constraints[p].BlockedOPs()...)
		}
	}

	c.Set(s.kb)
	s.constraints[priority] = c
	s.insertOrder(priority)

	invalidated := c.InitialFilter(gathered)
	for _, p := range s.order {
		if p <= priority {
			continue
		}
		s.constraints[p].RemoveFilter(invalidated)
	}
	for _, o := range invalidated {
		s.rank.Remove(o)
	}
	s.dirty = true
}

// RemoveConstraint deletes the constraint at priority, cascading what it
// was blocking down through every lower-priority constraint and, whatever
// survives, into the rank.
func (s *State) RemoveConstraint(priority int) {
	c, ok := s.constraints[priority]
	if !ok {
		return
	}
	current := c.BlockedOPs()
	delete(s.constraints, priority)
	s.removeOrder(priority)

	for _, p := range s.order {
		if p <= priority {
			continue
		}
		current = s.constraints[p].AddFilter(current)
	}
	for _, o := range current {
		s.rank.Add(o)
	}
	s.dirty = true
}

// Constraint returns the constraint registered at priority, if any.
func (s *State) Constraint(priority int) (*constraint.Constraint, bool) {
	c, ok := s.constraints[priority]
	return c, ok
}

// Constraints returns every registered constraint keyed by priority.
func (s *State) Constraints() map[int]*constraint.Constraint {
	out := make(map[int]*constraint.Constraint, len(s.constraints))
	for p, c := range s.constraints {
		out[p] = c
	}
	return out
}

// AddOPs inserts every OP new to the knowledge base, fans it into every
// constraint's view, cascades it through the constraint chain, and puts
// whatever survives into the rank. Returns the count actually added.
func (s *State) AddOPs(ops []*op.OperatingPoint) int {
	var added []*op.OperatingPoint
	for _, o := range ops {
		if shared := s.kb.Add(o); shared != nil {
			added = append(added, shared)
		}
	}
	if len(added) == 0 {
		return 0
	}
	for _, p := range s.order {
		for _, o := range added {
			s.constraints[p].Add(o)
		}
	}
	current := added
	for _, p := range s.order {
		current = s.constraints[p].AddFilter(current)
	}
	for _, o := range current {
		s.rank.Add(o)
	}
	s.dirty = true
	return len(added)
}

// RemoveOPs removes every OP from the knowledge base, every constraint's
// view and blocked set, and the rank. Returns the count actually removed.
func (s *State) RemoveOPs(ops []*op.OperatingPoint) int {
	count := 0
	for _, o := range ops {
		if removed := s.kb.Remove(o.ConfigKey()); removed != nil {
			count++
			for _, p := range s.order {
				s.constraints[p].Remove(removed)
			}
			s.rank.Remove(removed)
		}
	}
	if count > 0 {
		s.dirty = true
	}
	return count
}

// ClearOPs empties every constraint's view/blocked set and the rank,
// without touching the knowledge base itself (the caller is expected to
// clear/replace that separately) -- used on wholesale model replacement.
func (s *State) ClearOPs() {
	for _, p := range s.order {
		s.constraints[p].Clear()
	}
	s.rank.Clear()
	s.dirty = true
}

// SetRank replaces the rank, re-inserting whatever was valid under the old
// one.
func (s *State) SetRank(r *rank.Rank) {
	old := s.rank
	valid := old.ToStream()
	s.rank = r
	for _, o := range valid {
		s.rank.Add(o)
	}
	s.dirty = true
}

// Rank returns the state's current rank.
func (s *State) Rank() *rank.Rank { return s.rank }

// updatePass recomputes every constraint's effective threshold, high to low
// priority, propagating newly-blocked or newly-released OPs accordingly.
func (s *State) updatePass() {
	var processed []int
	for _, p := range s.order {
		c := s.constraints[p]
		invalidated, released := c.Update()

		if len(invalidated) > 0 {
			var survivors []*op.OperatingPoint
			for _, o := range invalidated {
				blockedElsewhere := false
				for _, hp := range processed {
					if s.constraints[hp].Blocked(o) {
						blockedElsewhere = true
						break
					}
				}
				if !blockedElsewhere {
					survivors = append(survivors, o)
				}
			}
			c.AddFilter(survivors)
			for _, lp := range s.order {
				if lp <= p {
					continue
				}
				s.constraints[lp].RemoveFilter(survivors)
			}
			for _, o := range survivors {
				s.rank.Remove(o)
			}
			s.dirty = true
		}

		if len(released) > 0 {
			current := released
			for _, lp := range s.order {
				if lp <= p {
					continue
				}
				current = s.constraints[lp].AddFilter(current)
			}
			for _, o := range current {
				s.rank.Add(o)
			}
			s.dirty = true
		}

		processed = append(processed, p)
	}
}

// Solve recomputes and returns the best OP, or nil if none is available. It
// first runs the update pass, then returns the memoized best unchanged if
// nothing is dirty, otherwise tries the rank and falls back to relaxing
// constraints from lowest priority upward.
func (s *State) Solve() *op.OperatingPoint {
	s.updatePass()
	if !s.dirty {
		return s.cachedBest
	}
	s.dirty = false

	if best := s.rank.Best(); best != nil {
		s.cachedBest = best
		return best
	}

	for i := len(s.order) - 1; i >= 1; i-- {
		if winner := s.tryRelax(i); winner != nil {
			s.cachedBest = winner
			return winner
		}
	}
	if len(s.order) > 0 {
		if winner := s.tryRelax(0); winner != nil {
			s.cachedBest = winner
			return winner
		}
	}

	s.cachedBest = nil
	return nil
}

func (s *State) tryRelax(i int) *op.OperatingPoint {
	if i < 0 || i >= len(s.order) {
		return nil
	}
	c := s.constraints[s.order[i]]
	closest := c.Closest()
	if len(closest) == 0 {
		return nil
	}
	narrowed := closest
	for j := i + 1; j < len(s.order); j++ {
		narrowed = s.constraints[s.order[j]].Narrow(narrowed)
	}
	switch len(narrowed) {
	case 0:
		return nil
	case 1:
		return narrowed[0]
	default:
		return s.rank.BestOf(narrowed)
	}
}

// Invalidate forces the next Solve to recompute even if nothing changed.
func (s *State) Invalidate() { s.dirty = true }
