package op

// Knowledge is the canonical set of Operating Points keyed by configuration
// identity (C1, the OP store). It performs no locking of its own: every
// caller in this module (State, ASRTM, DataAwareASRTM) serializes access to
// it under their own single mutex, matching the concurrency model of
// spec.md §5.
type Knowledge struct {
	ops map[string]*OperatingPoint
}

// NewKnowledge creates an empty OP store.
func NewKnowledge() *Knowledge {
	return &Knowledge{ops: make(map[string]*OperatingPoint)}
}

// Add inserts the OP if its configuration key is new. Returns the shared OP
// on success, or nil if an OP with the same configuration already exists
// (insertion is idempotent).
func (k *Knowledge) Add(o *OperatingPoint) *OperatingPoint {
	if _, exists := k.ops[o.ConfigKey()]; exists {
		return nil
	}
	k.ops[o.ConfigKey()] = o
	return o
}

// Remove deletes and returns the OP stored under configKey, or nil if absent.
func (k *Knowledge) Remove(configKey string) *OperatingPoint {
	o, ok := k.ops[configKey]
	if !ok {
		return nil
	}
	delete(k.ops, configKey)
	return o
}

// Get returns the OP stored under configKey, if any.
func (k *Knowledge) Get(configKey string) (*OperatingPoint, bool) {
	o, ok := k.ops[configKey]
	return o, ok
}

// Enumerate returns every OP currently in the store. No ordering is defined.
func (k *Knowledge) Enumerate() []*OperatingPoint {
	out := make([]*OperatingPoint, 0, len(k.ops))
	for _, o := range k.ops {
		out = append(out, o)
	}
	return out
}

// Size returns the number of OPs in the store.
func (k *Knowledge) Size() int { return len(k.ops) }

// Empty reports whether the store holds no OPs.
func (k *Knowledge) Empty() bool { return len(k.ops) == 0 }

// Clear removes every OP from the store.
func (k *Knowledge) Clear() { k.ops = make(map[string]*OperatingPoint) }
