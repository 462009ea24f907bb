// Package op defines the Operating Point (OP) data model: the immutable
// configuration/metrics pair the rest of the engine selects among.
package op

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
)

// Segment distinguishes the two halves of an Operating Point.
type Segment int

const (
	SegmentConfiguration Segment = iota
	SegmentMetrics
)

func (s Segment) String() string {
	if s == SegmentMetrics {
		return "metrics"
	}
	return "configuration"
}

// BoundType selects which side of the mean +/- sigma*stddev band an
// evaluator extracts.
type BoundType int

const (
	BoundLower BoundType = iota
	BoundUpper
)

// FieldID identifies one field within an Operating Point: a segment plus an
// index into that segment's value tuple. Fields are globally numbered with
// every configuration field before every metric field.
type FieldID struct {
	Segment Segment
	Index   int
}

// Global returns the dense, cross-segment field number given how many
// configuration fields an Operating Point carries.
func (f FieldID) Global(numConfigFields int) int {
	if f.Segment == SegmentConfiguration {
		return f.Index
	}
	return numConfigFields + f.Index
}

func (f FieldID) String() string {
	return fmt.Sprintf("%s[%d]", f.Segment, f.Index)
}

// Value is one knob or metric reading: a mean with an optional standard
// deviation capturing measurement/prediction uncertainty.
type Value struct {
	Mean   float64
	StdDev float64
}

// Bound returns mean-sigma*stddev (BoundLower) or mean+sigma*stddev (BoundUpper).
func (v Value) Bound(bound BoundType, sigma float64) float64 {
	if bound == BoundLower {
		return v.Mean - sigma*v.StdDev
	}
	return v.Mean + sigma*v.StdDev
}

// OperatingPoint pairs a configuration segment with a metrics segment.
// The configuration segment is the OP's identity: two Operating Points
// compare equal iff every configuration mean is elementwise equal.
// Operating Points are logically immutable once constructed and are meant
// to be shared by reference (as *OperatingPoint) across every container
// that references them.
type OperatingPoint struct {
	Configuration []Value
	Metrics       []Value

	configKey string
	hash      uint64
}

// New constructs an Operating Point and precomputes its identity key and
// hash from the configuration segment's means.
func New(configuration, metrics []Value) *OperatingPoint {
	o := &OperatingPoint{
		Configuration: configuration,
		Metrics:       metrics,
	}
	o.configKey, o.hash = computeIdentity(configuration)
	return o
}

func computeIdentity(configuration []Value) (string, uint64) {
	h := fnv.New64a()
	buf := make([]byte, 8)
	for _, v := range configuration {
		binary.BigEndian.PutUint64(buf, math.Float64bits(v.Mean))
		_, _ = h.Write(buf)
	}
	sum := h.Sum64()
	key := make([]byte, 0, len(configuration)*8)
	for _, v := range configuration {
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, math.Float64bits(v.Mean))
		key = append(key, b...)
	}
	return string(key), sum
}

// ConfigKey returns the canonical identity key of the OP's configuration
// segment, suitable as a map key for de-duplication and equality.
func (o *OperatingPoint) ConfigKey() string { return o.configKey }

// Hash returns the precomputed hash of the configuration segment's means.
func (o *OperatingPoint) Hash() uint64 { return o.hash }

// Equal reports whether two Operating Points share the same configuration
// identity (mean values elementwise equal).
func (o *OperatingPoint) Equal(other *OperatingPoint) bool {
	if o == other {
		return true
	}
	if o == nil || other == nil {
		return false
	}
	return o.hash == other.hash && o.configKey == other.configKey
}

// Field returns the Value stored at the given field identifier. Panics if
// the index is out of range: an out-of-range field id is a caller
// precondition violation (spec: detected only in debug builds, undefined in
// release), so Go's native index-out-of-range panic is the faithful
// translation.
func (o *OperatingPoint) Field(id FieldID) Value {
	if id.Segment == SegmentConfiguration {
		return o.Configuration[id.Index]
	}
	return o.Metrics[id.Index]
}

// Bound extracts the lower or upper confidence bound of one field.
func (o *OperatingPoint) Bound(id FieldID, bound BoundType, sigma float64) float64 {
	return o.Field(id).Bound(bound, sigma)
}
