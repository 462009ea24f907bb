package liaison_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/casperlundberg/asrtm/pkg/asrtm"
	"github.com/casperlundberg/asrtm/pkg/evaluator"
	"github.com/casperlundberg/asrtm/pkg/liaison"
	"github.com/casperlundberg/asrtm/pkg/op"
	"github.com/casperlundberg/asrtm/pkg/rank"
)

func testRank() *rank.Rank {
	eval := evaluator.New(evaluator.Single, op.BoundLower, []evaluator.Term{
		{Field: op.FieldID{Segment: op.SegmentMetrics, Index: 0}, Sigma: 0},
	})
	return rank.New(eval, rank.Maximize)
}

type fakeChannel struct {
	inbound  []liaison.Message
	sent     map[string][]byte
	recvPos  int
}

func newFakeChannel(msgs ...liaison.Message) *fakeChannel {
	return &fakeChannel{inbound: msgs, sent: make(map[string][]byte)}
}

func (f *fakeChannel) Recv() (liaison.Message, bool) {
	if f.recvPos >= len(f.inbound) {
		return liaison.Message{}, false
	}
	m := f.inbound[f.recvPos]
	f.recvPos++
	return m, true
}

func (f *fakeChannel) Send(topic string, payload []byte) error {
	f.sent[topic] = payload
	return nil
}

type fakeDecoder struct {
	op        *op.OperatingPoint
	model     map[string][]*op.OperatingPoint
	decodeErr error
}

func (f *fakeDecoder) DecodeOP(payload []byte) (*op.OperatingPoint, error) {
	if f.decodeErr != nil {
		return nil, f.decodeErr
	}
	return f.op, nil
}

func (f *fakeDecoder) DecodeModel(payload []byte) (map[string][]*op.OperatingPoint, error) {
	if f.decodeErr != nil {
		return nil, f.decodeErr
	}
	return f.model, nil
}

type LiaisonTestSuite struct {
	suite.Suite
}

func TestLiaisonTestSuite(t *testing.T) {
	suite.Run(t, new(LiaisonTestSuite))
}

func (s *LiaisonTestSuite) TestClientIDIsGenerated() {
	a := asrtm.New(1, 1)
	l := liaison.New(a, newFakeChannel(), &fakeDecoder{}, "myapp")
	s.NotEmpty(l.ClientID())
}

func (s *LiaisonTestSuite) TestExploreReplacesKnowledgeAndEntersDSE() {
	a := asrtm.New(1, 1)
	a.CreateState("default", testRank())
	explored := op.New([]op.Value{{Mean: 1}}, []op.Value{{Mean: 1}})
	decoder := &fakeDecoder{op: explored}
	ch := newFakeChannel(liaison.Message{Topic: liaison.TopicExplore, Payload: []byte("x")})

	l := liaison.New(a, ch, decoder, "myapp")
	l.Run()

	s.Equal(asrtm.DSE, a.Status())
	s.Equal(1, a.Size())
}

func (s *LiaisonTestSuite) TestExploreWithDecodeErrorIsIgnored() {
	a := asrtm.New(1, 1)
	decoder := &fakeDecoder{decodeErr: errors.New("bad payload")}
	ch := newFakeChannel(liaison.Message{Topic: liaison.TopicExplore, Payload: []byte("x")})

	l := liaison.New(a, ch, decoder, "myapp")
	l.Run()

	s.Equal(asrtm.UNDEFINED, a.Status())
}

func (s *LiaisonTestSuite) TestWelcomeRepliesWithClientID() {
	a := asrtm.New(1, 1)
	ch := newFakeChannel(liaison.Message{Topic: liaison.TopicWelcome})
	l := liaison.New(a, ch, &fakeDecoder{}, "myapp")
	l.Run()

	s.Equal(l.ClientID(), string(ch.sent["margot/myapp/welcome"]))
}

func (s *LiaisonTestSuite) TestInfoEchoesPayloadOnInfoTopic() {
	a := asrtm.New(1, 1)
	ch := newFakeChannel(liaison.Message{Topic: liaison.TopicInfo, Payload: []byte("hello")})
	l := liaison.New(a, ch, &fakeDecoder{}, "myapp")
	l.Run()

	s.Equal("hello", string(ch.sent["margot/myapp/info"]))
}

func (s *LiaisonTestSuite) TestModelWithPlainEngineFlattensAllOPs() {
	a := asrtm.New(1, 1)
	a.CreateState("default", testRank())
	o1 := op.New([]op.Value{{Mean: 1}}, []op.Value{{Mean: 1}})
	o2 := op.New([]op.Value{{Mean: 2}}, []op.Value{{Mean: 2}})
	decoder := &fakeDecoder{model: map[string][]*op.OperatingPoint{
		"0,0": {o1},
		"1,1": {o2},
	}}
	ch := newFakeChannel(liaison.Message{Topic: liaison.TopicModel})

	l := liaison.New(a, ch, decoder, "myapp")
	l.Run()

	s.Equal(asrtm.WITH_MODEL, a.Status())
	s.Equal(2, a.Size())
}

func (s *LiaisonTestSuite) TestObservationEncodeMatchesGrammar() {
	now := time.Unix(100, 5)
	obs := liaison.Observation{
		Timestamp: now,
		ClientID:  "c1",
		Knobs:     []float64{1, 2},
		Features:  []float64{3},
		Metrics:   []float64{4, 5},
	}
	s.Equal("100,5 c1 1,2 3 4,5", string(obs.Encode()))
}

func (s *LiaisonTestSuite) TestObservationEncodeOmitsFeaturesWhenEmpty() {
	now := time.Unix(0, 0)
	obs := liaison.Observation{
		Timestamp: now,
		ClientID:  "c1",
		Knobs:     []float64{1},
		Metrics:   []float64{2},
	}
	s.Equal("0,0 c1 1 2", string(obs.Encode()))
}

func (s *LiaisonTestSuite) TestSendObservationEmitsOnObservationTopic() {
	a := asrtm.New(1, 1)
	ch := newFakeChannel()
	l := liaison.New(a, ch, &fakeDecoder{}, "myapp")

	current := op.New([]op.Value{{Mean: 1}}, []op.Value{{Mean: 2}})
	err := l.SendObservation(current, nil, time.Unix(1, 0))

	s.NoError(err)
	s.Contains(string(ch.sent["margot/myapp/observation"]), l.ClientID())
}
