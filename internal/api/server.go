// Package api exposes one ASRTM's operations over HTTP: the library
// surface described by the solver is otherwise untouched by network I/O,
// so this is an operator-facing shell around it, not part of the solver
// itself.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/casperlundberg/asrtm/internal/audit"
	"github.com/casperlundberg/asrtm/pkg/adaptor"
	"github.com/casperlundberg/asrtm/pkg/asrtm"
	"github.com/casperlundberg/asrtm/pkg/constraint"
	"github.com/casperlundberg/asrtm/pkg/dataaware"
	"github.com/casperlundberg/asrtm/pkg/evaluator"
	"github.com/casperlundberg/asrtm/pkg/op"
	"github.com/casperlundberg/asrtm/pkg/rank"
)

// Engine is the surface both *asrtm.ASRTM and *dataaware.DataAwareASRTM
// satisfy, letting Server run its generic routes over either a single
// engine or a data-aware cluster collection (spec.md §4.9) without caring
// which.
type Engine interface {
	AddOPs(ops []*op.OperatingPoint) int
	RemoveOPs(ops []*op.OperatingPoint) int
	Size() int
	Empty() bool
	CreateState(name string, r *rank.Rank)
	RemoveState(name string) error
	ChangeActiveState(name string) error
	WhichActiveState() string
	RegisterMonitorForField(field op.FieldID, inertia int, source adaptor.Source, clear func())
	AddConstraint(priority int, c *constraint.Constraint, adaptorField *op.FieldID)
	RemoveConstraint(priority int)
	SetRank(r *rank.Rank)
	FindBestConfiguration()
	GetBestConfiguration() (*op.OperatingPoint, bool)
	ConfigurationApplied()
	ConfigurationRejected()
	ApplicationConfiguration() *op.OperatingPoint
	ProposedBest() *op.OperatingPoint
	Status() asrtm.ApplicationStatus
}

// Server is the HTTP surface over an Engine: either a single *asrtm.ASRTM,
// or (when dataAware is set) a *dataaware.DataAwareASRTM additionally
// exposing feature-cluster routes.
type Server struct {
	router    *gin.Engine
	engine    Engine
	dataAware *dataaware.DataAwareASRTM
	log       *audit.Log
	port      string
}

// NewServer creates a new API server over engine. log may be nil, in which
// case applied/rejected/constraint events are silently not recorded.
func NewServer(engine *asrtm.ASRTM, log *audit.Log, port string) *Server {
	return newServer(engine, nil, log, port)
}

// NewDataAwareServer creates a new API server over a data-aware cluster
// collection, additionally exposing feature-cluster routes
// (add/remove/select cluster, get selected feature).
func NewDataAwareServer(engine *dataaware.DataAwareASRTM, log *audit.Log, port string) *Server {
	return newServer(engine, engine, log, port)
}

func newServer(engine Engine, dataAware *dataaware.DataAwareASRTM, log *audit.Log, port string) *Server {
	router := gin.Default()

	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(cfg))

	s := &Server{router: router, engine: engine, dataAware: dataAware, log: log, port: port}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.Group("/v1")

	v1.POST("/ops", s.addOPs)
	v1.DELETE("/ops", s.removeOPs)
	v1.GET("/ops", s.listOPs)

	v1.POST("/states", s.createState)
	v1.DELETE("/states/:name", s.removeState)
	v1.PUT("/states/active", s.changeActiveState)

	v1.POST("/constraints", s.addConstraint)
	v1.DELETE("/constraints/:priority", s.removeConstraint)
	v1.PUT("/rank", s.setRank)
	v1.POST("/monitors", s.registerMonitor)

	v1.POST("/solve", s.solve)
	v1.POST("/apply", s.apply)
	v1.POST("/reject", s.reject)

	v1.GET("/status", s.status)

	if s.dataAware != nil {
		v1.POST("/clusters", s.addCluster)
		v1.DELETE("/clusters", s.removeCluster)
		v1.PUT("/clusters/active", s.selectCluster)
		v1.GET("/clusters/feature/:index", s.getSelectedFeature)
	}
}

// Start runs the HTTP server, blocking until it errors out.
func (s *Server) Start() error {
	return s.router.Run(":" + s.port)
}

// Router exposes the underlying gin.Engine so tests can drive requests
// through it directly without binding a real listener.
func (s *Server) Router() *gin.Engine { return s.router }

func (s *Server) record(eventType, stateName, details string) {
	if s.log == nil {
		return
	}
	_ = s.log.Record(eventType, stateName, details)
}

// opPayload is the wire shape of one Operating Point.
type opPayload struct {
	Configuration []op.Value `json:"configuration" binding:"required"`
	Metrics       []op.Value `json:"metrics" binding:"required"`
}

func (p opPayload) toOP() *op.OperatingPoint {
	return op.New(p.Configuration, p.Metrics)
}

func (s *Server) addOPs(c *gin.Context) {
	var payloads []opPayload
	if err := c.ShouldBindJSON(&payloads); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ops := make([]*op.OperatingPoint, len(payloads))
	for i, p := range payloads {
		ops[i] = p.toOP()
	}
	n := s.engine.AddOPs(ops)
	c.JSON(http.StatusOK, gin.H{"added": n})
}

func (s *Server) removeOPs(c *gin.Context) {
	var payloads []opPayload
	if err := c.ShouldBindJSON(&payloads); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ops := make([]*op.OperatingPoint, len(payloads))
	for i, p := range payloads {
		ops[i] = p.toOP()
	}
	n := s.engine.RemoveOPs(ops)
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

func (s *Server) listOPs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"size": s.engine.Size(), "empty": s.engine.Empty()})
}

type rankRequest struct {
	FieldIndex  int     `json:"field_index"`
	MetricField bool    `json:"metric_field"`
	Sigma       float64 `json:"sigma"`
	Direction   string  `json:"direction" binding:"required,oneof=minimize maximize"`
}

func rankField(req rankRequest) (op.FieldID, evaluator.Term, rank.Direction, op.BoundType) {
	field := op.FieldID{Segment: op.SegmentConfiguration, Index: req.FieldIndex}
	if req.MetricField {
		field.Segment = op.SegmentMetrics
	}
	direction := rank.Minimize
	bound := op.BoundLower
	if req.Direction == "maximize" {
		direction = rank.Maximize
		bound = op.BoundUpper
	}
	return field, evaluator.Term{Field: field, Sigma: req.Sigma, Coefficient: 1}, direction, bound
}

type createStateRequest struct {
	Name string `json:"name" binding:"required"`
	rankRequest
}

func (s *Server) createState(c *gin.Context) {
	var req createStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, term, direction, bound := rankField(req.rankRequest)
	eval := evaluator.New(evaluator.Single, bound, []evaluator.Term{term})
	s.engine.CreateState(req.Name, rank.New(eval, direction))
	s.record(audit.EventStateChanged, req.Name, "state created")
	c.JSON(http.StatusCreated, gin.H{"name": req.Name})
}

func (s *Server) removeState(c *gin.Context) {
	name := c.Param("name")
	if err := s.engine.RemoveState(name); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": name})
}

func (s *Server) changeActiveState(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.engine.ChangeActiveState(req.Name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	s.record(audit.EventStateChanged, req.Name, "active state switched")
	c.JSON(http.StatusOK, gin.H{"active": req.Name})
}

type constraintRequest struct {
	Priority     int     `json:"priority"`
	FieldIndex   int     `json:"field_index"`
	MetricField  bool    `json:"metric_field"`
	Mode         string  `json:"mode" binding:"omitempty,oneof=single linear geometric"`
	Comparator   string  `json:"comparator" binding:"required,oneof=gt gte lt lte"`
	Goal         float64 `json:"goal"`
	Sigma        float64 `json:"sigma"`
	AdaptorField bool    `json:"adaptor_field"`
}

func parseMode(s string) evaluator.Mode {
	switch s {
	case "linear":
		return evaluator.Linear
	case "geometric":
		return evaluator.Geometric
	default:
		return evaluator.Single
	}
}

func parseComparator(s string) (constraint.Comparator, bool) {
	switch s {
	case "gt":
		return constraint.GreaterThan, true
	case "gte":
		return constraint.GreaterOrEqual, true
	case "lt":
		return constraint.LessThan, true
	case "lte":
		return constraint.LessOrEqual, true
	default:
		return 0, false
	}
}

func (s *Server) addConstraint(c *gin.Context) {
	var req constraintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmp, ok := parseComparator(req.Comparator)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown comparator"})
		return
	}
	field := op.FieldID{Segment: op.SegmentConfiguration, Index: req.FieldIndex}
	if req.MetricField {
		field.Segment = op.SegmentMetrics
	}
	eval := evaluator.New(parseMode(req.Mode), cmp.BoundFor(), []evaluator.Term{{Field: field, Sigma: req.Sigma, Coefficient: 1}})
	var adaptorField *op.FieldID
	if req.AdaptorField {
		adaptorField = &field
	}
	s.engine.AddConstraint(req.Priority, constraint.New(eval, cmp, req.Goal), adaptorField)
	s.record(audit.EventConstraintAdded, s.engine.WhichActiveState(), "constraint added")
	c.JSON(http.StatusCreated, gin.H{"priority": req.Priority})
}

func (s *Server) removeConstraint(c *gin.Context) {
	priority, err := strconv.Atoi(c.Param("priority"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid priority"})
		return
	}
	s.engine.RemoveConstraint(priority)
	s.record(audit.EventConstraintRemoved, s.engine.WhichActiveState(), "constraint removed")
	c.JSON(http.StatusOK, gin.H{"removed": priority})
}

func (s *Server) setRank(c *gin.Context) {
	var req rankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	_, term, direction, bound := rankField(req)
	eval := evaluator.New(evaluator.Single, bound, []evaluator.Term{term})
	s.engine.SetRank(rank.New(eval, direction))
	c.JSON(http.StatusOK, gin.H{"rank": "updated"})
}

func (s *Server) registerMonitor(c *gin.Context) {
	var req struct {
		FieldIndex  int     `json:"field_index"`
		MetricField bool    `json:"metric_field"`
		Inertia     int     `json:"inertia" binding:"required,gt=0"`
		Value       float64 `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	field := op.FieldID{Segment: op.SegmentConfiguration, Index: req.FieldIndex}
	if req.MetricField {
		field.Segment = op.SegmentMetrics
	}
	s.engine.RegisterMonitorForField(field, req.Inertia, func() (float64, bool) { return req.Value, true }, nil)
	c.JSON(http.StatusCreated, gin.H{"registered": true})
}

func (s *Server) solve(c *gin.Context) {
	s.engine.FindBestConfiguration()
	best, changed := s.engine.GetBestConfiguration()
	c.JSON(http.StatusOK, gin.H{"best": best, "changed": changed})
}

func (s *Server) apply(c *gin.Context) {
	s.engine.ConfigurationApplied()
	s.record(audit.EventConfigurationApplied, s.engine.WhichActiveState(), "configuration applied")
	c.JSON(http.StatusOK, gin.H{"applied": s.engine.ApplicationConfiguration()})
}

func (s *Server) reject(c *gin.Context) {
	s.engine.ConfigurationRejected()
	s.record(audit.EventConfigurationRejected, s.engine.WhichActiveState(), "configuration rejected")
	c.JSON(http.StatusOK, gin.H{"proposed": s.engine.ProposedBest()})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       s.engine.Status().String(),
		"active_state": s.engine.WhichActiveState(),
		"size":         s.engine.Size(),
	})
}

type clusterKeyRequest struct {
	Key []float64 `json:"key" binding:"required"`
}

func (s *Server) addCluster(c *gin.Context) {
	var req clusterKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.dataAware.AddCluster(req.Key)
	c.JSON(http.StatusCreated, gin.H{"key": req.Key})
}

func (s *Server) removeCluster(c *gin.Context) {
	var req clusterKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.dataAware.RemoveCluster(req.Key) {
		c.JSON(http.StatusConflict, gin.H{"error": "cannot remove the active cluster, or no such cluster"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": req.Key})
}

func (s *Server) selectCluster(c *gin.Context) {
	var req clusterKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.dataAware.SelectCluster(req.Key)
	s.record(audit.EventClusterSwitch, s.engine.WhichActiveState(), "cluster switched")
	c.JSON(http.StatusOK, gin.H{"active_state": s.engine.WhichActiveState()})
}

func (s *Server) getSelectedFeature(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid index"})
		return
	}
	value, ok := s.dataAware.GetSelectedFeature(index)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active cluster or index out of range"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"index": index, "value": value})
}
