// Package adaptor implements the runtime knowledge adaptor: it rescales
// constraint thresholds using live monitor observations compared against
// an Operating Point's expected values.
package adaptor

import "github.com/casperlundberg/asrtm/pkg/op"

// bandSigma is the fixed band width used to decide whether an observed
// value counts as "matching" an OP's expectation before contributing an
// error coefficient. The source is inconsistent about whether this should
// reuse the owning constraint's sigma; resolved here as sigma=1 per the
// documented open question.
const bandSigma = 1.0

// Source reads the current value of whatever backs a field adaptor (a
// monitor's mean, typically) and reports whether that value is presently
// valid to use.
type Source func() (value float64, valid bool)

// FieldAdaptor tracks the error coefficient for one field: a short sliding
// window of previously computed per-observation coefficients, each near
// 1.0, exposed as their arithmetic mean (1.0 when the window is empty).
type FieldAdaptor struct {
	source Source
	window []float64
	size   int
	next   int
	count  int
}

// newFieldAdaptor creates a field adaptor with the given inertia (window
// size), bound to source.
func newFieldAdaptor(inertia int, source Source) *FieldAdaptor {
	if inertia <= 0 {
		inertia = 1
	}
	return &FieldAdaptor{source: source, window: make([]float64, inertia), size: inertia}
}

// Coefficient returns the arithmetic mean of the currently retained error
// coefficients, defaulting to 1.0 when none have been recorded yet.
func (f *FieldAdaptor) Coefficient() float64 {
	if f.count == 0 {
		return 1.0
	}
	var sum float64
	for i := 0; i < f.count; i++ {
		sum += f.window[i]
	}
	return sum / float64(f.count)
}

// push records a newly computed error coefficient, evicting the oldest
// once the window is full.
func (f *FieldAdaptor) push(value float64) {
	f.window[f.next] = value
	f.next = (f.next + 1) % f.size
	if f.count < f.size {
		f.count++
	}
}

// reset empties the field adaptor's window without unbinding its source.
func (f *FieldAdaptor) reset() {
	f.next, f.count = 0, 0
}

// evaluate reads the source and, given the current OP's expectation for
// this field, computes and records this round's error coefficient.
// expected is the OP's mean/stddev for the bound field.
func (f *FieldAdaptor) evaluate(expected op.Value) {
	value, valid := f.source()
	if !valid {
		return
	}
	lower := expected.Bound(op.BoundLower, bandSigma)
	upper := expected.Bound(op.BoundUpper, bandSigma)
	if value >= lower && value <= upper {
		f.push(1.0)
		return
	}
	if value == 0 {
		return
	}
	f.push(expected.Mean / value)
}

// KnowledgeAdaptor is a dense array of field adaptors indexed by global
// field id (C4): the engine's single map from "which OP field" to "which
// monitor rescales it".
type KnowledgeAdaptor struct {
	numConfigFields int
	slots           []*FieldAdaptor
	fields          []op.FieldID
}

// New creates a knowledge adaptor sized for numConfigFields configuration
// fields and numMetricFields metric fields (global ids run 0..numConfigFields
// for configuration, then continue for metrics).
func New(numConfigFields, numMetricFields int) *KnowledgeAdaptor {
	total := numConfigFields + numMetricFields
	return &KnowledgeAdaptor{
		numConfigFields: numConfigFields,
		slots:           make([]*FieldAdaptor, total),
		fields:          make([]op.FieldID, total),
	}
}

// Register binds a field adaptor for the given field id to source, with the
// given inertia (window size). Replaces any previous binding at that field
// id (spec.md §4.4 "replaces any previous binding").
func (k *KnowledgeAdaptor) Register(field op.FieldID, inertia int, source Source) {
	idx := field.Global(k.numConfigFields)
	k.slots[idx] = newFieldAdaptor(inertia, source)
	k.fields[idx] = field
}

// Unregister removes the field adaptor bound to field, if any.
func (k *KnowledgeAdaptor) Unregister(field op.FieldID) {
	idx := field.Global(k.numConfigFields)
	k.slots[idx] = nil
}

// Get returns the field adaptor bound to field, if any.
func (k *KnowledgeAdaptor) Get(field op.FieldID) (*FieldAdaptor, bool) {
	idx := field.Global(k.numConfigFields)
	fa := k.slots[idx]
	return fa, fa != nil
}

// Clear unbinds every field adaptor.
func (k *KnowledgeAdaptor) Clear() {
	for i := range k.slots {
		k.slots[i] = nil
	}
}

// ResetObservations empties every bound field adaptor's window without
// unbinding any of them.
func (k *KnowledgeAdaptor) ResetObservations() {
	for _, fa := range k.slots {
		if fa != nil {
			fa.reset()
		}
	}
}

// EvaluateError refreshes every bound field adaptor's error coefficient
// against currentOP's expected values for that field.
func (k *KnowledgeAdaptor) EvaluateError(currentOP *op.OperatingPoint) {
	for i, fa := range k.slots {
		if fa == nil {
			continue
		}
		fa.evaluate(currentOP.Field(k.fields[i]))
	}
}

// Coefficient returns the current error coefficient for field: the bound
// field adaptor's mean, or 1.0 if none is bound.
func (k *KnowledgeAdaptor) Coefficient(field op.FieldID) float64 {
	if fa, ok := k.Get(field); ok {
		return fa.Coefficient()
	}
	return 1.0
}

// Each invokes fn once for every field currently bound to a field adaptor,
// with its inertia (window size) and source, so a caller can reproduce the
// same monitor bindings on another KnowledgeAdaptor (used by pkg/asrtm's
// Sibling() to carry monitor registrations over to a new cluster).
func (k *KnowledgeAdaptor) Each(fn func(field op.FieldID, inertia int, source Source)) {
	for i, fa := range k.slots {
		if fa == nil {
			continue
		}
		fn(k.fields[i], fa.size, fa.source)
	}
}
