// Package liaison implements the remote-learning message contract: how an
// AS-RTM/data-aware AS-RTM responds to messages from an external learning
// service. The wire transport (MQTT in the source system) is an external
// collaborator -- Channel is the boundary this package depends on, never a
// concrete client, mirroring the teacher's own ColonyOSAPI pattern of
// declaring a collaborator as an interface.
package liaison

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/casperlundberg/asrtm/pkg/asrtm"
	"github.com/casperlundberg/asrtm/pkg/op"
)

// Topic identifies one inbound message kind.
type Topic int

const (
	TopicExplore Topic = iota
	TopicModel
	TopicInfo
	TopicWelcome
)

// Message is one inbound item from the external learning service.
type Message struct {
	Topic   Topic
	Payload []byte
}

// Channel is the transport boundary: Recv blocks for the next inbound
// message, returning ok=false once the channel has disconnected (the
// liaison loop then exits cleanly); Send emits an outbound message on the
// given full topic (margot/<app>/observation, margot/<app>/welcome,
// margot/<app>/info).
type Channel interface {
	Recv() (Message, bool)
	Send(topic string, payload []byte) error
}

// Decoder turns a raw /model or /explore payload into Operating Points.
// The wire token format is caller-supplied (spec.md §6 "the token format
// is caller-supplied through an injected decoder").
type Decoder interface {
	DecodeOP(payload []byte) (*op.OperatingPoint, error)
	DecodeModel(payload []byte) (map[string][]*op.OperatingPoint, error)
}

// Liaison drives one AS-RTM (or, through the same Engine interface, one
// data-aware AS-RTM) from a Channel's inbound messages.
type Liaison struct {
	engine   Engine
	channel  Channel
	decoder  Decoder
	clientID string
	appName  string
}

// Engine is the subset of asrtm.ASRTM / dataaware.DataAwareASRTM operations
// the liaison needs. Both concrete types satisfy it.
type Engine interface {
	ReplaceKnowledge(ops []*op.OperatingPoint, newStatus asrtm.ApplicationStatus, resetAdaptor bool)
	GetMean(field op.FieldID) (float64, bool)
}

// New creates a Liaison with a freshly generated client id.
func New(engine Engine, channel Channel, decoder Decoder, appName string) *Liaison {
	return &Liaison{
		engine:   engine,
		channel:  channel,
		decoder:  decoder,
		clientID: uuid.NewString(),
		appName:  appName,
	}
}

// ClientID returns the liaison's generated client identifier.
func (l *Liaison) ClientID() string { return l.clientID }

// Run drains the channel until it disconnects, dispatching each message to
// its handler. It never blocks holding the engine's lock across I/O
// (spec.md §5): each handler performs its own bounded amount of engine
// mutation, then control returns to Recv.
func (l *Liaison) Run() {
	for {
		msg, ok := l.channel.Recv()
		if !ok {
			return
		}
		l.dispatch(msg)
	}
}

func (l *Liaison) dispatch(msg Message) {
	switch msg.Topic {
	case TopicExplore:
		l.handleExplore(msg.Payload)
	case TopicModel:
		l.handleModel(msg.Payload)
	case TopicInfo:
		l.handleInfo(msg.Payload)
	case TopicWelcome:
		l.handleWelcome()
	}
}

// handleExplore interprets payload as a single OP and atomically replaces
// the knowledge base with it, entering DSE.
func (l *Liaison) handleExplore(payload []byte) {
	o, err := l.decoder.DecodeOP(payload)
	if err != nil {
		return
	}
	l.engine.ReplaceKnowledge([]*op.OperatingPoint{o}, asrtm.DSE, false)
}

// ModelReplacer is the richer entry point a data-aware engine satisfies:
// /model reorganizes the whole cluster collection rather than flattening
// every feature key's OPs into one knowledge base.
type ModelReplacer interface {
	ReplaceModel(keys [][]float64, opsByCluster [][]*op.OperatingPoint)
}

// handleModel interprets payload as a map from feature-key to OPs. Against
// a data-aware engine it reorganizes the cluster collection one cluster
// per feature key (spec.md §4.10); against a plain AS-RTM, which has no
// clusters, it takes the union of every feature key's OPs.
func (l *Liaison) handleModel(payload []byte) {
	byKey, err := l.decoder.DecodeModel(payload)
	if err != nil {
		return
	}

	if replacer, ok := l.engine.(ModelReplacer); ok {
		names := make([]string, 0, len(byKey))
		for name := range byKey {
			names = append(names, name)
		}
		sort.Strings(names)

		keys := make([][]float64, 0, len(names))
		opsByCluster := make([][]*op.OperatingPoint, 0, len(names))
		for _, name := range names {
			key, err := parseFeatureKey(name)
			if err != nil {
				continue
			}
			keys = append(keys, key)
			opsByCluster = append(opsByCluster, byKey[name])
		}
		replacer.ReplaceModel(keys, opsByCluster)
		return
	}

	var all []*op.OperatingPoint
	for _, ops := range byKey {
		all = append(all, ops...)
	}
	l.engine.ReplaceKnowledge(all, asrtm.WITH_MODEL, true)
}

// parseFeatureKey parses a comma-separated feature-key string (the wire
// encoding this package uses for a cluster key) into its float64 tuple.
func parseFeatureKey(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("liaison: invalid feature key %q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}

// handleInfo replies with a caller-supplied description string.
func (l *Liaison) handleInfo(description []byte) {
	_ = l.channel.Send("margot/"+l.appName+"/info", description)
}

// handleWelcome replies with the liaison's own client id.
func (l *Liaison) handleWelcome() {
	_ = l.channel.Send("margot/"+l.appName+"/welcome", []byte(l.clientID))
}

// Observation is the decoded form of an outbound /observation message
// (spec.md §6's payload grammar).
type Observation struct {
	Timestamp time.Time
	ClientID  string
	Knobs     []float64
	Features  []float64
	Metrics   []float64
}

// Encode renders an Observation per spec.md §6:
// "<seconds>,<nanoseconds> <client-id> <knobs> [<features>] <metrics>".
func (o Observation) Encode() []byte {
	s := fmt.Sprintf("%d,%d %s %s",
		o.Timestamp.Unix(), o.Timestamp.Nanosecond(), o.ClientID, joinCSV(o.Knobs))
	if len(o.Features) > 0 {
		s += " " + joinCSV(o.Features)
	}
	s += " " + joinCSV(o.Metrics)
	return []byte(s)
}

func joinCSV(values []float64) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%g", v)
	}
	return out
}

// SendObservation builds and emits an /observation message for the given
// Operating Point (knobs from its configuration segment, metrics from its
// metrics segment) with an optional feature vector.
func (l *Liaison) SendObservation(current *op.OperatingPoint, features []float64, now time.Time) error {
	obs := Observation{
		Timestamp: now,
		ClientID:  l.clientID,
		Knobs:     meansOf(current.Configuration),
		Features:  features,
		Metrics:   meansOf(current.Metrics),
	}
	return l.channel.Send("margot/"+l.appName+"/observation", obs.Encode())
}

func meansOf(values []op.Value) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v.Mean
	}
	return out
}
