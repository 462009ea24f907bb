package constraint_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/casperlundberg/asrtm/pkg/constraint"
	"github.com/casperlundberg/asrtm/pkg/evaluator"
	"github.com/casperlundberg/asrtm/pkg/op"
)

type ConstraintTestSuite struct {
	suite.Suite
	eval *evaluator.Evaluator
}

func TestConstraintTestSuite(t *testing.T) {
	suite.Run(t, new(ConstraintTestSuite))
}

func (s *ConstraintTestSuite) SetupTest() {
	s.eval = evaluator.New(evaluator.Single, op.BoundLower, []evaluator.Term{
		{Field: op.FieldID{Segment: op.SegmentMetrics, Index: 0}, Sigma: 0},
	})
}

func metricOP(v float64) *op.OperatingPoint {
	return op.New(nil, []op.Value{{Mean: v}})
}

func (s *ConstraintTestSuite) TestInitialFilterBlocksFailingOPs() {
	c := constraint.New(s.eval, constraint.GreaterOrEqual, 5)
	ops := []*op.OperatingPoint{metricOP(3), metricOP(5), metricOP(9)}

	invalidated := c.InitialFilter(ops)
	s.Len(invalidated, 1)
	s.True(c.Blocked(ops[0]))
	s.False(c.Blocked(ops[1]))
	s.False(c.Blocked(ops[2]))
}

func (s *ConstraintTestSuite) TestAddFilterPartitionsPassingFromBlocked() {
	c := constraint.New(s.eval, constraint.LessOrEqual, 5)
	passing := c.AddFilter([]*op.OperatingPoint{metricOP(3), metricOP(9)})

	s.Len(passing, 1)
	s.InDelta(3.0, passing[0].Metrics[0].Mean, 1e-9)
}

func (s *ConstraintTestSuite) TestRemoveFilterUnblocksAndPassesRest() {
	c := constraint.New(s.eval, constraint.LessOrEqual, 5)
	blockedOP := metricOP(9)
	unrelatedOP := metricOP(3)
	c.InitialFilter([]*op.OperatingPoint{blockedOP, unrelatedOP})

	passing := c.RemoveFilter([]*op.OperatingPoint{blockedOP, unrelatedOP})
	s.Len(passing, 1, "only the OP this constraint was not already blocking passes through")
	s.False(c.Blocked(blockedOP))
}

func (s *ConstraintTestSuite) TestUpdateWorsenedReturnsInvalidatedWithoutBlocking() {
	c := constraint.New(s.eval, constraint.GreaterOrEqual, 5)
	mid := metricOP(6)
	c.Add(mid)

	c.SetGoal(8)
	invalidated, released := c.Update()

	s.Len(invalidated, 1)
	s.Nil(released)
	s.False(c.Blocked(mid), "Update alone does not block; caller must AddFilter the invalidated set")
}

func (s *ConstraintTestSuite) TestUpdateImprovedReleasesFromBlockedDirectly() {
	c := constraint.New(s.eval, constraint.GreaterOrEqual, 8)
	low := metricOP(6)
	c.InitialFilter([]*op.OperatingPoint{low})
	s.True(c.Blocked(low))

	c.SetGoal(5)
	invalidated, released := c.Update()

	s.Nil(invalidated)
	s.Len(released, 1)
	s.False(c.Blocked(low), "improved Update mutates blocked directly")
}

func (s *ConstraintTestSuite) TestClosestConsidersOnlyBlockedOPs() {
	c := constraint.New(s.eval, constraint.GreaterOrEqual, 10)
	a := metricOP(6)  // distance 4, fails -> blocked
	b := metricOP(14) // distance 4, but satisfies -> not blocked
	c.InitialFilter([]*op.OperatingPoint{a, b})

	closest := c.Closest()
	s.Require().Len(closest, 1)
	s.Equal(a, closest[0])
}

func (s *ConstraintTestSuite) TestNarrowPrefersSatisfyingOPs() {
	c := constraint.New(s.eval, constraint.GreaterOrEqual, 5)
	ok1, ok2, fail := metricOP(6), metricOP(7), metricOP(3)

	narrowed := c.Narrow([]*op.OperatingPoint{ok1, ok2, fail})
	s.ElementsMatch([]*op.OperatingPoint{ok1, ok2}, narrowed)
}

func (s *ConstraintTestSuite) TestNarrowFallsBackToBestWhenNoneSatisfy() {
	c := constraint.New(s.eval, constraint.GreaterOrEqual, 100)
	worse, better := metricOP(3), metricOP(9)

	narrowed := c.Narrow([]*op.OperatingPoint{worse, better})
	s.Require().Len(narrowed, 1)
	s.Equal(better, narrowed[0])
}

func (s *ConstraintTestSuite) TestSiblingIsEmptyButSameDefinition() {
	c := constraint.New(s.eval, constraint.GreaterOrEqual, 5)
	c.InitialFilter([]*op.OperatingPoint{metricOP(1)})

	sib := c.Sibling()
	s.Equal(c.Goal(), sib.Goal())
	s.Equal(c.Comparator(), sib.Comparator())
	s.Empty(sib.BlockedOPs())
}
