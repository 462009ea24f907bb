// Package dataaware implements the data-feature-aware AS-RTM: a keyed
// collection of AS-RTM siblings, one per input-feature cluster, with the
// closest-cluster selection that makes the engine adapt to the
// application's current workload shape (C9).
package dataaware

import (
	"math"
	"sync"

	"github.com/casperlundberg/asrtm/pkg/adaptor"
	"github.com/casperlundberg/asrtm/pkg/asrtm"
	"github.com/casperlundberg/asrtm/pkg/constraint"
	"github.com/casperlundberg/asrtm/pkg/op"
	"github.com/casperlundberg/asrtm/pkg/rank"
)

// Comparison is the per-field relational kind a stored cluster key must
// satisfy against a runtime key for the cluster to be a valid candidate.
type Comparison int

const (
	LessOrEqual Comparison = iota
	GreaterOrEqual
	DontCare
)

func (c Comparison) satisfies(stored, runtime float64) bool {
	switch c {
	case LessOrEqual:
		return stored <= runtime
	case GreaterOrEqual:
		return stored >= runtime
	default:
		return true
	}
}

type cluster struct {
	key    []float64
	engine *asrtm.ASRTM
}

// DataAwareASRTM owns an insertion-ordered collection of (feature-key,
// AS-RTM) pairs and the currently selected one.
type DataAwareASRTM struct {
	mu sync.RWMutex

	numConfigFields int
	numMetricFields int

	comparisons []Comparison
	normalize   bool

	clusters []*cluster
	active   int // index into clusters, -1 if none
}

// New creates an empty data-aware AS-RTM. comparisons fixes, per field, how
// a stored cluster key must relate to a runtime key to be valid; normalize
// selects per-axis min-max normalized Euclidean distance over plain
// Euclidean distance.
func New(numConfigFields, numMetricFields int, comparisons []Comparison, normalize bool) *DataAwareASRTM {
	return &DataAwareASRTM{
		numConfigFields: numConfigFields,
		numMetricFields: numMetricFields,
		comparisons:     append([]Comparison(nil), comparisons...),
		normalize:       normalize,
		active:          -1,
	}
}

// AddCluster inserts a new cluster at key. The first cluster gets a fresh,
// default-constructed AS-RTM; every subsequent one is a sibling of the
// first (same named states, rank definitions, constraints with their
// goals, monitor registrations) with an empty knowledge base and reset
// adaptor windows.
func (d *DataAwareASRTM) AddCluster(key []float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var engine *asrtm.ASRTM
	if len(d.clusters) == 0 {
		engine = asrtm.New(d.numConfigFields, d.numMetricFields)
	} else {
		engine = d.clusters[0].engine.Sibling()
	}
	d.clusters = append(d.clusters, &cluster{key: append([]float64(nil), key...), engine: engine})
	if d.active == -1 {
		d.active = 0
	}
}

// RemoveCluster deletes the cluster stored at key. Forbidden on the active
// cluster.
func (d *DataAwareASRTM) RemoveCluster(key []float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, c := range d.clusters {
		if !equalKey(c.key, key) {
			continue
		}
		if i == d.active {
			return false
		}
		d.clusters = append(d.clusters[:i], d.clusters[i+1:]...)
		if i < d.active {
			d.active--
		}
		return true
	}
	return false
}

func equalKey(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SelectCluster picks the cluster whose stored key is valid for runtimeKey
// (every field satisfies its fixed comparison) and, among valid ones, is
// closest by distance; if none is valid, it falls back to the closest
// cluster overall. Ties are broken by first-inserted. Switching the active
// cluster resets the newly active AS-RTM's status/application
// configuration (spec.md §4.9).
func (d *DataAwareASRTM) SelectCluster(runtimeKey []float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.clusters) == 0 {
		return
	}

	var pool []int
	for i, c := range d.clusters {
		if d.valid(c.key, runtimeKey) {
			pool = append(pool, i)
		}
	}
	if len(pool) == 0 {
		for i := range d.clusters {
			pool = append(pool, i)
		}
	}

	ranges := d.fieldRanges()
	best := -1
	var bestDist float64
	for _, i := range pool {
		dist := d.distance(d.clusters[i].key, runtimeKey, ranges)
		if best == -1 || dist < bestDist {
			best, bestDist = i, dist
		}
	}

	if best != d.active {
		d.active = best
		d.clusters[best].engine.ResetOnClusterSwitch()
	}
}

func (d *DataAwareASRTM) valid(stored, runtime []float64) bool {
	for i, cmp := range d.comparisons {
		if i >= len(stored) || i >= len(runtime) {
			break
		}
		if !cmp.satisfies(stored[i], runtime[i]) {
			return false
		}
	}
	return true
}

func (d *DataAwareASRTM) fieldRanges() []struct{ min, max float64 } {
	if !d.normalize || len(d.clusters) == 0 {
		return nil
	}
	arity := len(d.clusters[0].key)
	ranges := make([]struct{ min, max float64 }, arity)
	for i := range ranges {
		ranges[i] = struct{ min, max float64 }{math.Inf(1), math.Inf(-1)}
	}
	for _, c := range d.clusters {
		for i, v := range c.key {
			if v < ranges[i].min {
				ranges[i].min = v
			}
			if v > ranges[i].max {
				ranges[i].max = v
			}
		}
	}
	return ranges
}

func (d *DataAwareASRTM) distance(stored, runtime []float64, ranges []struct{ min, max float64 }) float64 {
	var sum float64
	for i := range stored {
		if i >= len(runtime) {
			break
		}
		s, r := stored[i], runtime[i]
		if ranges != nil {
			span := ranges[i].max - ranges[i].min
			if span > 0 {
				s = (s - ranges[i].min) / span
				r = (r - ranges[i].min) / span
			} else {
				s, r = 0, 0
			}
		}
		diff := s - r
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

func (d *DataAwareASRTM) activeEngine() *asrtm.ASRTM {
	if d.active == -1 {
		return nil
	}
	return d.clusters[d.active].engine
}

// Active returns the currently selected AS-RTM, if any.
func (d *DataAwareASRTM) Active() *asrtm.ASRTM {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.activeEngine()
}

// GetSelectedFeature returns the i-th field of the active cluster's stored
// key.
func (d *DataAwareASRTM) GetSelectedFeature(i int) (float64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.active == -1 || i < 0 || i >= len(d.clusters[d.active].key) {
		return 0, false
	}
	return d.clusters[d.active].key[i], true
}

// broadcast runs fn against every cluster's AS-RTM so every optimization
// problem stays structurally identical (spec.md §4.9 "Forwarding").
func (d *DataAwareASRTM) broadcast(fn func(*asrtm.ASRTM)) {
	d.mu.RLock()
	engines := make([]*asrtm.ASRTM, len(d.clusters))
	for i, c := range d.clusters {
		engines[i] = c.engine
	}
	d.mu.RUnlock()
	for _, e := range engines {
		fn(e)
	}
}

// AddOPs broadcasts an OP insertion to every cluster and reports how many
// were added to the active cluster's knowledge base.
func (d *DataAwareASRTM) AddOPs(ops []*op.OperatingPoint) int {
	n := 0
	d.broadcast(func(e *asrtm.ASRTM) {
		added := e.AddOPs(ops)
		if e == d.Active() {
			n = added
		}
	})
	return n
}

// RemoveOPs broadcasts an OP removal to every cluster and reports how many
// were removed from the active cluster's knowledge base.
func (d *DataAwareASRTM) RemoveOPs(ops []*op.OperatingPoint) int {
	n := 0
	d.broadcast(func(e *asrtm.ASRTM) {
		removed := e.RemoveOPs(ops)
		if e == d.Active() {
			n = removed
		}
	})
	return n
}

// Size reports the active cluster's knowledge base size, 0 if none is
// selected.
func (d *DataAwareASRTM) Size() int {
	if e := d.Active(); e != nil {
		return e.Size()
	}
	return 0
}

// Empty reports whether the active cluster's knowledge base is empty,
// true if no cluster is selected.
func (d *DataAwareASRTM) Empty() bool {
	if e := d.Active(); e != nil {
		return e.Empty()
	}
	return true
}

// WhichActiveState reports the active cluster's active state name, "" if no
// cluster is selected.
func (d *DataAwareASRTM) WhichActiveState() string {
	if e := d.Active(); e != nil {
		return e.WhichActiveState()
	}
	return ""
}

// Status reports the active cluster's ApplicationStatus, UNDEFINED if no
// cluster is selected.
func (d *DataAwareASRTM) Status() asrtm.ApplicationStatus {
	if e := d.Active(); e != nil {
		return e.Status()
	}
	return asrtm.UNDEFINED
}

// ApplicationConfiguration targets only the active cluster.
func (d *DataAwareASRTM) ApplicationConfiguration() *op.OperatingPoint {
	if e := d.Active(); e != nil {
		return e.ApplicationConfiguration()
	}
	return nil
}

// ProposedBest targets only the active cluster.
func (d *DataAwareASRTM) ProposedBest() *op.OperatingPoint {
	if e := d.Active(); e != nil {
		return e.ProposedBest()
	}
	return nil
}

// CreateState broadcasts a named-state creation to every cluster.
func (d *DataAwareASRTM) CreateState(name string, makeRank func() *rank.Rank) {
	d.broadcast(func(e *asrtm.ASRTM) { e.CreateState(name, makeRank()) })
}

// RemoveState broadcasts a named-state removal to every cluster.
func (d *DataAwareASRTM) RemoveState(name string) {
	d.broadcast(func(e *asrtm.ASRTM) { _ = e.RemoveState(name) })
}

// ChangeActiveState broadcasts an active-state switch to every cluster.
func (d *DataAwareASRTM) ChangeActiveState(name string) {
	d.broadcast(func(e *asrtm.ASRTM) { _ = e.ChangeActiveState(name) })
}

// AddConstraint broadcasts a constraint registration to every cluster. Each
// cluster gets its own constraint instance (sibling of c) so mutation in
// one does not leak into another. adaptorField, when non-nil, binds the
// constraint's goal to each cluster's own knowledge adaptor for that field.
func (d *DataAwareASRTM) AddConstraint(priority int, c *constraint.Constraint, adaptorField *op.FieldID) {
	d.broadcast(func(e *asrtm.ASRTM) { e.AddConstraint(priority, c.Sibling(), adaptorField) })
}

// RemoveConstraint broadcasts a constraint removal to every cluster.
func (d *DataAwareASRTM) RemoveConstraint(priority int) {
	d.broadcast(func(e *asrtm.ASRTM) { e.RemoveConstraint(priority) })
}

// SetRank broadcasts a rank replacement to every cluster, giving each its
// own sibling of r.
func (d *DataAwareASRTM) SetRank(r *rank.Rank) {
	d.broadcast(func(e *asrtm.ASRTM) { e.SetRank(r.Sibling()) })
}

// RegisterMonitorForField broadcasts a monitor registration to every
// cluster.
func (d *DataAwareASRTM) RegisterMonitorForField(field op.FieldID, inertia int, source adaptor.Source, clear func()) {
	d.broadcast(func(e *asrtm.ASRTM) { e.RegisterMonitorForField(field, inertia, source, clear) })
}

// FindBestConfiguration solves only the active cluster.
func (d *DataAwareASRTM) FindBestConfiguration() {
	if e := d.Active(); e != nil {
		e.FindBestConfiguration()
	}
}

// GetBestConfiguration targets only the active cluster.
func (d *DataAwareASRTM) GetBestConfiguration() (*op.OperatingPoint, bool) {
	if e := d.Active(); e != nil {
		return e.GetBestConfiguration()
	}
	return nil, false
}

// ConfigurationApplied targets only the active cluster.
func (d *DataAwareASRTM) ConfigurationApplied() {
	if e := d.Active(); e != nil {
		e.ConfigurationApplied()
	}
}

// ConfigurationRejected targets only the active cluster.
func (d *DataAwareASRTM) ConfigurationRejected() {
	if e := d.Active(); e != nil {
		e.ConfigurationRejected()
	}
}

// GetMean targets only the active cluster.
func (d *DataAwareASRTM) GetMean(field op.FieldID) (float64, bool) {
	if e := d.Active(); e != nil {
		return e.GetMean(field)
	}
	return 0, false
}

// ReplaceKnowledge broadcasts a wholesale knowledge-base replacement to
// every cluster (spec.md §4.10 /explore: "replace the knowledge base of
// every cluster with that one OP").
func (d *DataAwareASRTM) ReplaceKnowledge(ops []*op.OperatingPoint, newStatus asrtm.ApplicationStatus, resetAdaptor bool) {
	d.broadcast(func(e *asrtm.ASRTM) { e.ReplaceKnowledge(ops, newStatus, resetAdaptor) })
}

// ReplaceModel reorganizes the whole cluster collection: takes a sibling of
// the current active AS-RTM as a template, discards every existing cluster,
// and inserts one new cluster per entry of keys, each seeded with the OPs at
// the same index of opsByCluster.
// The current cluster becomes the first inserted; the next SelectCluster
// call re-chooses (spec.md §4.10 /model).
func (d *DataAwareASRTM) ReplaceModel(keys [][]float64, opsByCluster [][]*op.OperatingPoint) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.clusters) == 0 || len(keys) == 0 {
		return
	}
	template := d.clusters[d.active].engine

	newClusters := make([]*cluster, 0, len(keys))
	for i, key := range keys {
		e := template.Sibling()
		var ops []*op.OperatingPoint
		if i < len(opsByCluster) {
			ops = opsByCluster[i]
		}
		e.ReplaceKnowledge(ops, asrtm.WITH_MODEL, true)
		newClusters = append(newClusters, &cluster{key: append([]float64(nil), key...), engine: e})
	}
	d.clusters = newClusters
	d.active = 0
}
