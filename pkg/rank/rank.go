// Package rank implements the objective function: an ordered multiset of
// currently-valid Operating Points, kept in evaluator-score order so the
// best one is always a front/back lookup.
package rank

import (
	"github.com/casperlundberg/asrtm/pkg/evaluator"
	"github.com/casperlundberg/asrtm/pkg/op"
)

// Direction selects whether a lower or higher evaluator score is "better".
type Direction int

const (
	Minimize Direction = iota
	Maximize
)

// Rank is a score-ordered multiset of valid Operating Points (C6).
type Rank struct {
	eval      *evaluator.Evaluator
	direction Direction
	index     *op.ScoreIndex
}

// New constructs an empty rank over eval, ordered per direction.
func New(eval *evaluator.Evaluator, direction Direction) *Rank {
	r := &Rank{eval: eval, direction: direction}
	r.index = op.NewScoreIndex(eval.Score)
	return r
}

// Sibling returns a structurally identical, but empty, rank: same
// evaluator definition and direction, no managed OPs. Used when a
// data-feature cluster is created from an existing one (spec.md §4.9
// "same rank definitions") and mirrors the original source's
// create_sibling mechanism for ranks.
func (r *Rank) Sibling() *Rank {
	return New(r.eval, r.direction)
}

// Direction returns the rank's optimization direction.
func (r *Rank) Direction() Direction { return r.direction }

// Add inserts o into the rank, if not already present.
func (r *Rank) Add(o *op.OperatingPoint) { r.index.Add(o) }

// Remove drops o from the rank, if present.
func (r *Rank) Remove(o *op.OperatingPoint) { r.index.Remove(o) }

// Clear empties the rank.
func (r *Rank) Clear() { r.index.Clear() }

// Len returns the number of OPs currently in the rank.
func (r *Rank) Len() int { return r.index.Len() }

// ToStream returns every OP in the rank, ordered from best to worst.
func (r *Rank) ToStream() []*op.OperatingPoint {
	if r.direction == Maximize {
		return reversed(r.index.Stream())
	}
	return r.index.Stream()
}

// Best returns the rank's current best OP, or nil if the rank is empty.
func (r *Rank) Best() *op.OperatingPoint {
	if r.direction == Maximize {
		return r.index.Back()
	}
	return r.index.Front()
}

// BestOf returns the best element of an externally supplied, non-empty
// stream, using this rank's evaluator and direction -- used while
// relaxing constraints to break a tie among several surviving candidates.
func (r *Rank) BestOf(stream []*op.OperatingPoint) *op.OperatingPoint {
	if len(stream) == 0 {
		return nil
	}
	best := stream[0]
	bestScore := r.eval.Score(best)
	for _, o := range stream[1:] {
		s := r.eval.Score(o)
		better := s < bestScore
		if r.direction == Maximize {
			better = s > bestScore
		}
		if better {
			best, bestScore = o, s
		}
	}
	return best
}

func reversed(in []*op.OperatingPoint) []*op.OperatingPoint {
	out := make([]*op.OperatingPoint, len(in))
	for i, o := range in {
		out[len(in)-1-i] = o
	}
	return out
}
