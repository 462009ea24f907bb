package evaluator_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/casperlundberg/asrtm/pkg/evaluator"
	"github.com/casperlundberg/asrtm/pkg/op"
)

type EvaluatorTestSuite struct {
	suite.Suite
	point *op.OperatingPoint
}

func TestEvaluatorTestSuite(t *testing.T) {
	suite.Run(t, new(EvaluatorTestSuite))
}

func (s *EvaluatorTestSuite) SetupTest() {
	s.point = op.New(
		[]op.Value{{Mean: 4, StdDev: 1}},
		[]op.Value{{Mean: 10, StdDev: 2}, {Mean: 5, StdDev: 1}},
	)
}

func (s *EvaluatorTestSuite) TestSingleReturnsBoundOfFirstTerm() {
	e := evaluator.New(evaluator.Single, op.BoundUpper, []evaluator.Term{
		{Field: op.FieldID{Segment: op.SegmentMetrics, Index: 0}, Sigma: 1},
	})
	s.InDelta(12.0, e.Score(s.point), 1e-9)
}

func (s *EvaluatorTestSuite) TestSingleWithNoTermsIsZero() {
	e := evaluator.New(evaluator.Single, op.BoundUpper, nil)
	s.Zero(e.Score(s.point))
}

func (s *EvaluatorTestSuite) TestLinearSumsCoefficientTimesBound() {
	e := evaluator.New(evaluator.Linear, op.BoundLower, []evaluator.Term{
		{Field: op.FieldID{Segment: op.SegmentMetrics, Index: 0}, Sigma: 1, Coefficient: 2},
		{Field: op.FieldID{Segment: op.SegmentMetrics, Index: 1}, Sigma: 1, Coefficient: 1},
	})
	// bound0 = 10-2=8, bound1 = 5-1=4 -> 2*8 + 1*4 = 20
	s.InDelta(20.0, e.Score(s.point), 1e-9)
}

func (s *EvaluatorTestSuite) TestGeometricMultipliesPoweredBounds() {
	e := evaluator.New(evaluator.Geometric, op.BoundUpper, []evaluator.Term{
		{Field: op.FieldID{Segment: op.SegmentMetrics, Index: 0}, Sigma: 1, Coefficient: 1},
		{Field: op.FieldID{Segment: op.SegmentMetrics, Index: 1}, Sigma: 1, Coefficient: 1},
	})
	// bound0 = 12, bound1 = 6 -> 12^1 * 6^1 = 72
	s.InDelta(72.0, e.Score(s.point), 1e-9)
}

func (s *EvaluatorTestSuite) TestTermsPreservesConstructionOrder() {
	terms := []evaluator.Term{
		{Field: op.FieldID{Segment: op.SegmentConfiguration, Index: 0}, Sigma: 1, Coefficient: 1},
		{Field: op.FieldID{Segment: op.SegmentMetrics, Index: 0}, Sigma: 1, Coefficient: 2},
	}
	e := evaluator.New(evaluator.Linear, op.BoundLower, terms)
	got := e.Terms()
	s.Require().Len(got, 2)
	s.Equal(terms[0].Field, got[0].Field)
	s.Equal(terms[1].Field, got[1].Field)
}
