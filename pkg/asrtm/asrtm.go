// Package asrtm implements the Application-Specific Runtime Manager: the
// single-mutex-guarded owner of the knowledge base, the knowledge adaptor,
// the registered monitors, the named optimization states, and the
// application's configuration lifecycle (C8).
package asrtm

import (
	"fmt"
	"sync"

	"github.com/casperlundberg/asrtm/pkg/adaptor"
	"github.com/casperlundberg/asrtm/pkg/constraint"
	"github.com/casperlundberg/asrtm/pkg/op"
	"github.com/casperlundberg/asrtm/pkg/rank"
	"github.com/casperlundberg/asrtm/pkg/state"
)

// ApplicationStatus tracks where the application sits relative to the
// AS-RTM's proposed best configuration.
type ApplicationStatus int

const (
	// UNDEFINED: the application may not yet be running the proposed best.
	UNDEFINED ApplicationStatus = iota
	// TUNED: the application is confirmed running the proposed best.
	TUNED
	// DSE: design-space exploration in progress; monitor-derived runtime
	// adaptation is suppressed.
	DSE
	// WITH_MODEL: a model was just installed; the next applied transitions
	// out of DSE.
	WITH_MODEL
)

func (s ApplicationStatus) String() string {
	switch s {
	case TUNED:
		return "TUNED"
	case DSE:
		return "DSE"
	case WITH_MODEL:
		return "WITH_MODEL"
	default:
		return "UNDEFINED"
	}
}

// ASRTM owns, under one mutex, everything spec.md §3 assigns to an
// AS-RTM instance: the knowledge base, the knowledge adaptor, monitor
// buffer clearers, named states, the active state, the application's
// current configuration and the most recently computed proposed best.
type ASRTM struct {
	mu sync.RWMutex

	numConfigFields int
	numMetricFields int

	kb *op.Knowledge
	ka *adaptor.KnowledgeAdaptor

	clearers []func()

	states       map[string]*state.State
	activeName   string

	applicationConfiguration *op.OperatingPoint
	proposedBest             *op.OperatingPoint

	status ApplicationStatus
}

// New creates an empty ASRTM for OPs with the given configuration/metrics
// field counts.
func New(numConfigFields, numMetricFields int) *ASRTM {
	return &ASRTM{
		numConfigFields: numConfigFields,
		numMetricFields: numMetricFields,
		kb:              op.NewKnowledge(),
		ka:              adaptor.New(numConfigFields, numMetricFields),
		states:          make(map[string]*state.State),
		status:          UNDEFINED,
	}
}

// Status returns the current ApplicationStatus.
func (a *ASRTM) Status() ApplicationStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// AddOPs inserts every new OP into the knowledge base and propagates the
// insertion into the active state. Returns the count actually added.
func (a *ASRTM) AddOPs(ops []*op.OperatingPoint) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.active()
	if st == nil {
		count := 0
		for _, o := range ops {
			if a.kb.Add(o) != nil {
				count++
			}
		}
		return count
	}
	return st.AddOPs(ops)
}

// RemoveOPs removes the given OPs from the knowledge base and the active
// state. Returns the count actually removed.
func (a *ASRTM) RemoveOPs(ops []*op.OperatingPoint) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st := a.active(); st != nil {
		return st.RemoveOPs(ops)
	}
	count := 0
	for _, o := range ops {
		if a.kb.Remove(o.ConfigKey()) != nil {
			count++
		}
	}
	return count
}

// ClearOPs empties the knowledge base wholesale (model replacement).
func (a *ASRTM) ClearOPs() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kb.Clear()
}

// Size returns the number of OPs currently in the knowledge base.
func (a *ASRTM) Size() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.kb.Size()
}

// Empty reports whether the knowledge base holds no OPs.
func (a *ASRTM) Empty() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.kb.Empty()
}

// CreateState registers a new named, empty-constraint state with the given
// rank. Does nothing if the name is already taken.
func (a *ASRTM) CreateState(name string, r *rank.Rank) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.states[name]; exists {
		return
	}
	st := state.New(a.kb, a.ka, r)
	for _, o := range a.kb.Enumerate() {
		st.AddOPs([]*op.OperatingPoint{o})
	}
	a.states[name] = st
	if a.activeName == "" {
		a.activeName = name
	}
}

// RemoveState deletes the named state. Disallowed on the active state
// (spec.md §3 "the active state cannot be destroyed").
func (a *ASRTM) RemoveState(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if name == a.activeName {
		return fmt.Errorf("asrtm: cannot remove active state %q", name)
	}
	delete(a.states, name)
	return nil
}

// ChangeActiveState switches the active state to name, if it exists.
func (a *ASRTM) ChangeActiveState(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.states[name]; !ok {
		return fmt.Errorf("asrtm: unknown state %q", name)
	}
	a.activeName = name
	return nil
}

// WhichActiveState returns the name of the currently active state.
func (a *ASRTM) WhichActiveState() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.activeName
}

func (a *ASRTM) active() *state.State {
	return a.states[a.activeName]
}

// RegisterMonitorForField binds a field adaptor for field to source (with
// the given inertia) and appends a buffer-clearer so configuration
// switches reset it.
func (a *ASRTM) RegisterMonitorForField(field op.FieldID, inertia int, source adaptor.Source, clear func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ka.Register(field, inertia, source)
	if clear != nil {
		a.clearers = append(a.clearers, clear)
	}
}

// ClearMonitors invokes every registered buffer-clearer.
func (a *ASRTM) ClearMonitors() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, clear := range a.clearers {
		clear()
	}
}

// AddConstraint registers a constraint on the active state at priority.
// adaptorField, when non-nil, binds the constraint's goal to the knowledge
// adaptor's error coefficient for that field (spec.md §4.4/§4.5/§4.8); pass
// nil for a constraint with no adaptor rescaling.
func (a *ASRTM) AddConstraint(priority int, c *constraint.Constraint, adaptorField *op.FieldID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st := a.active(); st != nil {
		c.SetAdaptor(adaptorField, a.ka)
		st.AddConstraint(priority, c)
	}
}

// RemoveConstraint removes the constraint at priority from the active
// state.
func (a *ASRTM) RemoveConstraint(priority int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st := a.active(); st != nil {
		st.RemoveConstraint(priority)
	}
}

// SetRank replaces the active state's rank.
func (a *ASRTM) SetRank(r *rank.Rank) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st := a.active(); st != nil {
		st.SetRank(r)
	}
}

// FindBestConfiguration refreshes the knowledge adaptor's error
// coefficients (when TUNED) and re-solves the active state, storing its
// result as the proposed best.
func (a *ASRTM) FindBestConfiguration() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status == TUNED && a.applicationConfiguration != nil {
		a.ka.EvaluateError(a.applicationConfiguration)
	}

	st := a.active()
	if st == nil {
		a.proposedBest = nil
		return
	}
	a.proposedBest = st.Solve()
}

// GetBestConfiguration returns the proposed best's configuration and
// whether it differs from the currently applied one. A difference demotes
// the status to UNDEFINED unless the application is in DSE or WITH_MODEL.
func (a *ASRTM) GetBestConfiguration() (*op.OperatingPoint, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.proposedBest == nil {
		return nil, false
	}
	changed := !a.proposedBest.Equal(a.applicationConfiguration)
	if changed && a.status != DSE && a.status != WITH_MODEL {
		a.status = UNDEFINED
	}
	return a.proposedBest, changed
}

// ConfigurationApplied commits the proposed best as the application
// configuration, invoking every buffer-clearer if it actually changed
// (and the application was not mid-exploration), and transitions status to
// TUNED unless DSE.
func (a *ASRTM) ConfigurationApplied() {
	a.mu.Lock()
	defer a.mu.Unlock()

	changed := !a.proposedBest.Equal(a.applicationConfiguration)
	if changed && a.status != DSE && a.status != WITH_MODEL {
		for _, clear := range a.clearers {
			clear()
		}
	}
	a.applicationConfiguration = a.proposedBest
	if a.status != DSE {
		a.status = TUNED
	}
}

// ConfigurationRejected reverts the proposed best back to the currently
// applied configuration.
func (a *ASRTM) ConfigurationRejected() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.proposedBest = a.applicationConfiguration
}

// GetMean returns the mean of the given field in the currently-applied OP.
// ok is false if no configuration is applied yet.
func (a *ASRTM) GetMean(field op.FieldID) (value float64, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.applicationConfiguration == nil {
		return 0, false
	}
	return a.applicationConfiguration.Field(field).Mean, true
}

// GetParameterValue aliases GetMean for symmetry with the original API
// surface (spec.md §6 Introspection).
func (a *ASRTM) GetParameterValue(field op.FieldID) (float64, bool) {
	return a.GetMean(field)
}

// SetStatus forcibly sets the ApplicationStatus -- used by the
// remote-learning liaison (C10) to enter DSE/WITH_MODEL.
func (a *ASRTM) SetStatus(s ApplicationStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
}

// ClearProposedBest clears the most recently computed proposed best
// without touching the applied configuration.
func (a *ASRTM) ClearProposedBest() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.proposedBest = nil
}

// Knowledge exposes the underlying knowledge base without taking the lock.
func (a *ASRTM) Knowledge() *op.Knowledge { return a.kb }

// Adaptor exposes the underlying knowledge adaptor.
func (a *ASRTM) Adaptor() *adaptor.KnowledgeAdaptor { return a.ka }

// Lock/Unlock expose the ASRTM's mutex. Every public method above acquires
// the same mutex itself, so none of them may be called while it is held.
func (a *ASRTM) Lock()   { a.mu.Lock() }
func (a *ASRTM) Unlock() { a.mu.Unlock() }

// States returns every named state, keyed by name.
func (a *ASRTM) States() map[string]*state.State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]*state.State, len(a.states))
	for k, v := range a.states {
		out[k] = v
	}
	return out
}

// NumConfigFields returns how many configuration fields OPs in this AS-RTM
// carry.
func (a *ASRTM) NumConfigFields() int { return a.numConfigFields }

// NumMetricFields returns how many metric fields OPs in this AS-RTM carry.
func (a *ASRTM) NumMetricFields() int { return a.numMetricFields }

// ApplicationConfiguration returns the OP the application is currently
// running, if any.
func (a *ASRTM) ApplicationConfiguration() *op.OperatingPoint {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.applicationConfiguration
}

// ProposedBest returns the most recently computed proposed best, if any.
func (a *ASRTM) ProposedBest() *op.OperatingPoint {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.proposedBest
}

// ResetOnClusterSwitch clears the application configuration and resets
// status to UNDEFINED (unless currently DSE) -- used by the data-aware
// AS-RTM when the active cluster changes (spec.md §4.9).
func (a *ASRTM) ResetOnClusterSwitch() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applicationConfiguration = nil
	if a.status != DSE {
		a.status = UNDEFINED
	}
}

// ReplaceKnowledge atomically clears the knowledge base and active state,
// then inserts the given OPs, setting status to newStatus and clearing the
// proposed best -- the mechanism the remote-learning liaison (C10) uses for
// /explore and as a building block for /model. Also resets the knowledge
// adaptor's windows when resetAdaptor is set (spec.md §4.10 /model).
func (a *ASRTM) ReplaceKnowledge(ops []*op.OperatingPoint, newStatus ApplicationStatus, resetAdaptor bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.kb.Clear()
	for _, st := range a.states {
		st.ClearOPs()
	}
	st := a.active()
	if st != nil {
		st.AddOPs(ops)
	} else {
		for _, o := range ops {
			a.kb.Add(o)
		}
	}
	if resetAdaptor {
		a.ka.ResetObservations()
	}
	a.status = newStatus
	a.proposedBest = nil
}

// Sibling returns a structurally identical AS-RTM: same named states, same
// rank definitions, same constraints with their goals, same monitor
// registrations -- but an empty knowledge base and reset adaptor windows
// (spec.md §4.9's `add_cluster`). Monitor registrations are carried over by
// re-registering the same sources against the sibling's own adaptor; the
// original's buffer-clearers are shared since they close over the actual
// monitor, not over either AS-RTM.
func (a *ASRTM) Sibling() *ASRTM {
	a.mu.RLock()
	defer a.mu.RUnlock()

	sib := New(a.numConfigFields, a.numMetricFields)
	sib.clearers = append(sib.clearers, a.clearers...)
	a.ka.Each(func(field op.FieldID, inertia int, source adaptor.Source) {
		sib.ka.Register(field, inertia, source)
	})

	for name, st := range a.states {
		r := st.Rank().Sibling()
		newSt := state.New(sib.kb, sib.ka, r)
		for priority, c := range st.Constraints() {
			nc := c.Sibling()
			nc.SetAdaptor(c.AdaptorField(), sib.ka)
			newSt.AddConstraint(priority, nc)
		}
		sib.states[name] = newSt
	}
	sib.activeName = a.activeName
	return sib
}
