package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/casperlundberg/asrtm/internal/config"
	"github.com/casperlundberg/asrtm/pkg/constraint"
	"github.com/casperlundberg/asrtm/pkg/op"
	"github.com/casperlundberg/asrtm/pkg/rank"
)

const sampleDescriptor = `
application:
  name: demo
config_fields:
  - name: threads
metric_fields:
  - name: throughput
  - name: power
constraints:
  - priority: 1
    field_index: 1
    metric_field: true
    mode: single
    comparator: lte
    goal: 100
    sigma: 0
    adaptor_field: true
rank:
  field_index: 0
  metric_field: true
  sigma: 0
  direction: maximize
monitors:
  - field_index: 1
    metric_field: true
    inertia: 8
api:
  port: "8080"
audit:
  database_path: ./audit.db
`

type ConfigTestSuite struct {
	suite.Suite
	path string
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (s *ConfigTestSuite) SetupTest() {
	s.path = filepath.Join(s.T().TempDir(), "descriptor.yaml")
	s.Require().NoError(os.WriteFile(s.path, []byte(sampleDescriptor), 0o644))
}

func (s *ConfigTestSuite) TestLoadParsesAndValidatesDescriptor() {
	d, err := config.Load(s.path)
	s.Require().NoError(err)
	s.Equal("demo", d.Application.Name)
	s.Equal(1, d.NumConfigFields())
	s.Equal(2, d.NumMetricFields())
}

func (s *ConfigTestSuite) TestLoadRejectsMissingRequiredFields() {
	bad := filepath.Join(s.T().TempDir(), "bad.yaml")
	s.Require().NoError(os.WriteFile(bad, []byte("application:\n  name: demo\n"), 0o644))

	_, err := config.Load(bad)
	s.Error(err)
}

func (s *ConfigTestSuite) TestBuildConstraintsProducesOneConstraintPerSpec() {
	d, err := config.Load(s.path)
	s.Require().NoError(err)

	constraints, adaptorFields, err := d.BuildConstraints()
	s.Require().NoError(err)
	s.Require().Contains(constraints, 1)
	s.Require().NotNil(adaptorFields[1])
	s.Equal(op.FieldID{Segment: op.SegmentMetrics, Index: 1}, *adaptorFields[1])

	c := constraints[1]
	s.NotNil(c)
	_ = constraint.LessOrEqual
}

func (s *ConfigTestSuite) TestBuildRankUsesMaximizeDirection() {
	d, err := config.Load(s.path)
	s.Require().NoError(err)

	r := d.BuildRank()
	s.Equal(rank.Maximize, r.Direction())
}

func (s *ConfigTestSuite) TestBuildDataAwareReturnsNilWithoutSpec() {
	d, err := config.Load(s.path)
	s.Require().NoError(err)

	da, err := d.BuildDataAware()
	s.Require().NoError(err)
	s.Nil(da)
}

func (s *ConfigTestSuite) TestBuildDataAwarePopulatesClusters() {
	withClusters := sampleDescriptor + `
data_aware:
  comparisons: [le, dontcare]
  normalize: false
  clusters:
    - key: [0, 0]
    - key: [10, 10]
`
	path := filepath.Join(s.T().TempDir(), "clustered.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(withClusters), 0o644))

	d, err := config.Load(path)
	s.Require().NoError(err)

	da, err := d.BuildDataAware()
	s.Require().NoError(err)
	s.Require().NotNil(da)
	s.NotNil(da.Active())
}
