package dataaware_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/casperlundberg/asrtm/pkg/asrtm"
	"github.com/casperlundberg/asrtm/pkg/dataaware"
	"github.com/casperlundberg/asrtm/pkg/evaluator"
	"github.com/casperlundberg/asrtm/pkg/op"
	"github.com/casperlundberg/asrtm/pkg/rank"
)

func testRank() *rank.Rank {
	eval := evaluator.New(evaluator.Single, op.BoundLower, []evaluator.Term{
		{Field: op.FieldID{Segment: op.SegmentMetrics, Index: 0}, Sigma: 0},
	})
	return rank.New(eval, rank.Maximize)
}

type DataAwareTestSuite struct {
	suite.Suite
}

func TestDataAwareTestSuite(t *testing.T) {
	suite.Run(t, new(DataAwareTestSuite))
}

func (s *DataAwareTestSuite) TestFirstClusterBecomesActiveOnAdd() {
	d := dataaware.New(1, 1, nil, false)
	d.AddCluster([]float64{0, 0, 0})

	s.NotNil(d.Active())
}

// S6-shaped scenario: three stored clusters, comparators {<=, don't-care,
// >=} against runtime key (3,3,3). (0,1,2) is invalid (k2=2 fails >= 3);
// (1,2,3) and (2,3,4) are both valid, and (2,3,4) is the closer of the two.
func (s *DataAwareTestSuite) TestSelectClusterPicksClosestValidCluster() {
	comparisons := []dataaware.Comparison{
		dataaware.LessOrEqual,
		dataaware.DontCare,
		dataaware.GreaterOrEqual,
	}
	d := dataaware.New(1, 1, comparisons, false)
	d.AddCluster([]float64{0, 1, 2})
	d.AddCluster([]float64{1, 2, 3})
	d.AddCluster([]float64{2, 3, 4})

	d.SelectCluster([]float64{3, 3, 3})

	feature0, _ := d.GetSelectedFeature(0)
	feature1, _ := d.GetSelectedFeature(1)
	feature2, _ := d.GetSelectedFeature(2)
	s.Equal([]float64{2, 3, 4}, []float64{feature0, feature1, feature2})
}

// S6's second half: runtime key (0,0,10) leaves every cluster invalid
// (k2 >= 10 fails for all three), so the closest-overall-by-distance
// fallback applies. By Euclidean distance (2,3,4) is actually nearer to
// (0,0,10) than (0,1,2) -- the literal distance computation, not the
// narrative's claimed winner (see DESIGN.md).
func (s *DataAwareTestSuite) TestSelectClusterFallsBackWhenAllInvalid() {
	comparisons := []dataaware.Comparison{
		dataaware.LessOrEqual,
		dataaware.DontCare,
		dataaware.GreaterOrEqual,
	}
	d := dataaware.New(1, 1, comparisons, false)
	d.AddCluster([]float64{0, 1, 2})
	d.AddCluster([]float64{1, 2, 3})
	d.AddCluster([]float64{2, 3, 4})

	d.SelectCluster([]float64{0, 0, 10})

	feature0, _ := d.GetSelectedFeature(0)
	feature2, _ := d.GetSelectedFeature(2)
	s.Equal(2.0, feature0)
	s.Equal(4.0, feature2, "(2,3,4) is the nearest of the three invalid clusters by Euclidean distance")
}

func (s *DataAwareTestSuite) TestSelectClusterFallsBackToClosestOverallWhenNoneValid() {
	comparisons := []dataaware.Comparison{dataaware.GreaterOrEqual}
	d := dataaware.New(1, 1, comparisons, false)
	d.AddCluster([]float64{1})
	d.AddCluster([]float64{2})

	d.SelectCluster([]float64{100}) // neither 1 nor 2 >= 100

	f, ok := d.GetSelectedFeature(0)
	s.True(ok)
	s.Equal(2.0, f, "closest-overall fallback picks the nearer of the two invalid clusters")
}

func (s *DataAwareTestSuite) TestSelectClusterBreaksTiesByFirstInserted() {
	d := dataaware.New(1, 1, nil, false)
	d.AddCluster([]float64{0})
	d.AddCluster([]float64{10})

	d.SelectCluster([]float64{5}) // equidistant from both

	f, _ := d.GetSelectedFeature(0)
	s.Equal(0.0, f, "first-inserted cluster wins an exact tie")
}

func (s *DataAwareTestSuite) TestRemoveClusterForbiddenOnActive() {
	d := dataaware.New(1, 1, nil, false)
	d.AddCluster([]float64{0})

	s.False(d.RemoveCluster([]float64{0}))
}

func (s *DataAwareTestSuite) TestRemoveClusterDeletesInactiveCluster() {
	d := dataaware.New(1, 1, nil, false)
	d.AddCluster([]float64{0})
	d.AddCluster([]float64{10})

	s.True(d.RemoveCluster([]float64{10}))
	s.False(d.RemoveCluster([]float64{10}), "already removed")
}

func (s *DataAwareTestSuite) TestGenericEngineMethodsTargetActiveCluster() {
	d := dataaware.New(1, 1, nil, false)
	s.Equal(0, d.Size())
	s.True(d.Empty())
	s.Equal("", d.WhichActiveState())
	s.Equal(asrtm.UNDEFINED, d.Status())

	d.AddCluster([]float64{0})
	d.CreateState("default", testRank)

	s.Equal("default", d.WhichActiveState())

	op1 := op.New([]op.Value{{Mean: 1}}, []op.Value{{Mean: 5}})
	n := d.AddOPs([]*op.OperatingPoint{op1})
	s.Equal(1, n)
	s.Equal(1, d.Size())
	s.False(d.Empty())

	removed := d.RemoveOPs([]*op.OperatingPoint{op1})
	s.Equal(1, removed)
	s.True(d.Empty())
}
