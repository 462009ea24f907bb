package adaptor_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/casperlundberg/asrtm/pkg/adaptor"
	"github.com/casperlundberg/asrtm/pkg/op"
)

type AdaptorTestSuite struct {
	suite.Suite
	field op.FieldID
	ka    *adaptor.KnowledgeAdaptor
}

func TestAdaptorTestSuite(t *testing.T) {
	suite.Run(t, new(AdaptorTestSuite))
}

func (s *AdaptorTestSuite) SetupTest() {
	s.field = op.FieldID{Segment: op.SegmentMetrics, Index: 0}
	s.ka = adaptor.New(1, 1)
}

func (s *AdaptorTestSuite) TestUnboundFieldDefaultsToUnitCoefficient() {
	s.Equal(1.0, s.ka.Coefficient(s.field))
	_, ok := s.ka.Get(s.field)
	s.False(ok)
}

func (s *AdaptorTestSuite) TestValueWithinBandContributesUnitCoefficient() {
	reading := 10.0
	s.ka.Register(s.field, 2, func() (float64, bool) { return reading, true })

	expectedOP := op.New(nil, []op.Value{{Mean: 10, StdDev: 1}})
	s.ka.EvaluateError(expectedOP) // reading=10 is within [9,11]

	s.Equal(1.0, s.ka.Coefficient(s.field))
}

func (s *AdaptorTestSuite) TestValueOutsideBandContributesRatio() {
	reading := 20.0
	s.ka.Register(s.field, 2, func() (float64, bool) { return reading, true })

	expectedOP := op.New(nil, []op.Value{{Mean: 10, StdDev: 1}})
	s.ka.EvaluateError(expectedOP) // reading=20 is well outside [9,11]

	s.InDelta(10.0/20.0, s.ka.Coefficient(s.field), 1e-9)
}

func (s *AdaptorTestSuite) TestInvalidSourceLeavesCoefficientUnchanged() {
	s.ka.Register(s.field, 2, func() (float64, bool) { return 0, false })

	expectedOP := op.New(nil, []op.Value{{Mean: 10, StdDev: 1}})
	s.ka.EvaluateError(expectedOP)

	s.Equal(1.0, s.ka.Coefficient(s.field))
}

func (s *AdaptorTestSuite) TestResetObservationsClearsWindowButKeepsBinding() {
	calls := 0
	s.ka.Register(s.field, 2, func() (float64, bool) { calls++; return 20, true })

	expectedOP := op.New(nil, []op.Value{{Mean: 10, StdDev: 1}})
	s.ka.EvaluateError(expectedOP)
	s.NotEqual(1.0, s.ka.Coefficient(s.field))

	s.ka.ResetObservations()
	s.Equal(1.0, s.ka.Coefficient(s.field), "reset empties the window back to the default mean")

	_, ok := s.ka.Get(s.field)
	s.True(ok, "reset must not unbind the field adaptor")
}

func (s *AdaptorTestSuite) TestUnregisterRemovesBinding() {
	s.ka.Register(s.field, 2, func() (float64, bool) { return 10, true })
	s.ka.Unregister(s.field)

	_, ok := s.ka.Get(s.field)
	s.False(ok)
	s.Equal(1.0, s.ka.Coefficient(s.field))
}

func (s *AdaptorTestSuite) TestClearUnbindsEveryField() {
	other := op.FieldID{Segment: op.SegmentConfiguration, Index: 0}
	s.ka.Register(s.field, 2, func() (float64, bool) { return 10, true })
	s.ka.Register(other, 2, func() (float64, bool) { return 10, true })

	s.ka.Clear()

	_, ok1 := s.ka.Get(s.field)
	_, ok2 := s.ka.Get(other)
	s.False(ok1)
	s.False(ok2)
}
