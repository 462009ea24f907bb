// Package config loads the YAML descriptor that wires one AS-RTM (or
// data-aware AS-RTM): OP field shape, constraints, rank, monitor
// registrations and, for a data-aware deployment, cluster keys. It
// replaces the teacher's JSON-based pkg/colonyos/config_loader.go with the
// same nested-struct-mirrors-the-document idiom, using YAML instead.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FieldSpec describes one configuration or metric field by name, used only
// for human-readable config documents; the engine itself addresses fields
// by (segment, index).
type FieldSpec struct {
	Name string `yaml:"name" validate:"required"`
}

// ConstraintSpec describes one constraint to register at a given priority.
type ConstraintSpec struct {
	Priority     int     `yaml:"priority"`
	FieldIndex   int     `yaml:"field_index" validate:"gte=0"`
	MetricField  bool    `yaml:"metric_field"`
	Mode         string  `yaml:"mode" validate:"oneof=single linear geometric"`
	Comparator   string  `yaml:"comparator" validate:"oneof=gt gte lt lte"`
	Goal         float64 `yaml:"goal"`
	Sigma        float64 `yaml:"sigma"`
	AdaptorField bool    `yaml:"adaptor_field"`
}

// RankSpec describes the objective function's evaluator and direction.
type RankSpec struct {
	FieldIndex  int    `yaml:"field_index" validate:"gte=0"`
	MetricField bool   `yaml:"metric_field"`
	Sigma       float64 `yaml:"sigma"`
	Direction   string `yaml:"direction" validate:"oneof=minimize maximize"`
}

// MonitorSpec describes a field-adaptor registration: which field it
// rescales and how wide its error-coefficient window is.
type MonitorSpec struct {
	FieldIndex  int  `yaml:"field_index" validate:"gte=0"`
	MetricField bool `yaml:"metric_field"`
	Inertia     int  `yaml:"inertia" validate:"gt=0"`
}

// ClusterSpec describes one data-feature cluster's key, for a data-aware
// deployment.
type ClusterSpec struct {
	Key []float64 `yaml:"key" validate:"required"`
}

// DataAwareSpec configures the data-aware AS-RTM layer. Nil means a plain
// single AS-RTM is used instead.
type DataAwareSpec struct {
	Comparisons []string      `yaml:"comparisons" validate:"dive,oneof=le ge dontcare"`
	Normalize   bool          `yaml:"normalize"`
	Clusters    []ClusterSpec `yaml:"clusters" validate:"required,min=1,dive"`
}

// Descriptor is the top-level AS-RTM deployment document.
type Descriptor struct {
	Application struct {
		Name string `yaml:"name" validate:"required"`
	} `yaml:"application"`

	ConfigFields []FieldSpec `yaml:"config_fields" validate:"required,min=1,dive"`
	MetricFields []FieldSpec `yaml:"metric_fields" validate:"required,min=1,dive"`

	Constraints []ConstraintSpec `yaml:"constraints" validate:"dive"`
	Rank        RankSpec         `yaml:"rank"`
	Monitors    []MonitorSpec    `yaml:"monitors" validate:"dive"`

	DataAware *DataAwareSpec `yaml:"data_aware"`

	API struct {
		Port string `yaml:"port" validate:"required"`
	} `yaml:"api"`

	Audit struct {
		DatabasePath string `yaml:"database_path" validate:"required"`
	} `yaml:"audit"`
}

// Load reads and validates a deployment descriptor from path.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	if err := validator.New().Struct(&d); err != nil {
		return nil, fmt.Errorf("config: invalid descriptor %s: %w", path, err)
	}

	return &d, nil
}

// NumConfigFields returns how many configuration fields the descriptor
// declares.
func (d *Descriptor) NumConfigFields() int { return len(d.ConfigFields) }

// NumMetricFields returns how many metric fields the descriptor declares.
func (d *Descriptor) NumMetricFields() int { return len(d.MetricFields) }
