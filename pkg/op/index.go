package op

import "sort"

// scoreEntry is one OP tracked by a ScoreIndex, tagged with its evaluator
// score and the order in which it was inserted.
type scoreEntry struct {
	op    *OperatingPoint
	score float64
	seq   uint64
}

// ScoreIndex keeps a set of Operating Points ordered by a scalar score,
// breaking ties by insertion order (spec.md §4.5 "Tie-breaking and
// ordering"). It backs both a constraint's view (C5) and a rank's valid-OP
// multiset (C6); both need to add/remove OPs, enumerate them in score
// order, and query score ranges efficiently enough for a knowledge base of
// realistic size (spec.md §9 notes the per-OP evaluation cost dominates,
// not the ordering).
type ScoreIndex struct {
	scorer  func(*OperatingPoint) float64
	entries map[string]*scoreEntry
	nextSeq uint64
}

// NewScoreIndex creates an index ordered by the given scoring function.
func NewScoreIndex(scorer func(*OperatingPoint) float64) *ScoreIndex {
	return &ScoreIndex{
		scorer:  scorer,
		entries: make(map[string]*scoreEntry),
	}
}

// Add inserts o if not already present, computing and caching its score.
func (idx *ScoreIndex) Add(o *OperatingPoint) {
	key := o.ConfigKey()
	if _, ok := idx.entries[key]; ok {
		return
	}
	idx.nextSeq++
	idx.entries[key] = &scoreEntry{op: o, score: idx.scorer(o), seq: idx.nextSeq}
}

// Remove drops o from the index, if present.
func (idx *ScoreIndex) Remove(o *OperatingPoint) {
	delete(idx.entries, o.ConfigKey())
}

// Has reports whether o is currently tracked by the index.
func (idx *ScoreIndex) Has(o *OperatingPoint) bool {
	_, ok := idx.entries[o.ConfigKey()]
	return ok
}

// Clear empties the index.
func (idx *ScoreIndex) Clear() {
	idx.entries = make(map[string]*scoreEntry)
}

// Len returns the number of tracked OPs.
func (idx *ScoreIndex) Len() int { return len(idx.entries) }

// Score returns o's cached score if tracked, otherwise computes it fresh.
func (idx *ScoreIndex) Score(o *OperatingPoint) float64 {
	if e, ok := idx.entries[o.ConfigKey()]; ok {
		return e.score
	}
	return idx.scorer(o)
}

func (idx *ScoreIndex) sorted() []*scoreEntry {
	out := make([]*scoreEntry, 0, len(idx.entries))
	for _, e := range idx.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score < out[j].score
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// Stream returns every tracked OP in ascending-score, insertion-tie-broken
// order.
func (idx *ScoreIndex) Stream() []*OperatingPoint {
	entries := idx.sorted()
	out := make([]*OperatingPoint, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.op)
	}
	return out
}

// Between returns the tracked OPs whose score lies in [lo, hi] (lo/hi may be
// given in either order), in ascending-score, insertion-tie-broken order.
func (idx *ScoreIndex) Between(lo, hi float64) []*OperatingPoint {
	if lo > hi {
		lo, hi = hi, lo
	}
	var out []*OperatingPoint
	for _, e := range idx.sorted() {
		if e.score >= lo && e.score <= hi {
			out = append(out, e.op)
		}
	}
	return out
}

// Front returns the first OP in ascending-score order (the minimum), or nil
// if the index is empty.
func (idx *ScoreIndex) Front() *OperatingPoint {
	entries := idx.sorted()
	if len(entries) == 0 {
		return nil
	}
	return entries[0].op
}

// Back returns the last OP in ascending-score order (the maximum), or nil if
// the index is empty.
func (idx *ScoreIndex) Back() *OperatingPoint {
	entries := idx.sorted()
	if len(entries) == 0 {
		return nil
	}
	return entries[len(entries)-1].op
}

// ClosestTo returns the tracked OPs whose score is nearest to target,
// breaking ties by including every OP at the minimal distance (never
// collapsing to a single arbitrary winner).
func (idx *ScoreIndex) ClosestTo(target float64) []*OperatingPoint {
	entries := idx.sorted()
	if len(entries) == 0 {
		return nil
	}
	best := absDiff(entries[0].score, target)
	for _, e := range entries[1:] {
		if d := absDiff(e.score, target); d < best {
			best = d
		}
	}
	var out []*OperatingPoint
	for _, e := range entries {
		if absDiff(e.score, target) == best {
			out = append(out, e.op)
		}
	}
	return out
}

func absDiff(a, b float64) float64 {
	if a < b {
		return b - a
	}
	return a - b
}

// ClosestToAmong returns, among the given candidate OPs (scored externally
// via scorer), those nearest to target -- used by Constraint.Closest to pick
// the blocked OPs nearest the constraint's effective threshold.
func ClosestToAmong(ops []*OperatingPoint, scorer func(*OperatingPoint) float64, target float64) []*OperatingPoint {
	if len(ops) == 0 {
		return nil
	}
	best := absDiff(scorer(ops[0]), target)
	for _, o := range ops[1:] {
		if d := absDiff(scorer(o), target); d < best {
			best = d
		}
	}
	var out []*OperatingPoint
	for _, o := range ops {
		if absDiff(scorer(o), target) == best {
			out = append(out, o)
		}
	}
	return out
}
