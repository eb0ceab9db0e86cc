package surface

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/notargets/BEMKernel/config"
	"github.com/notargets/BEMKernel/geometry"
	"github.com/notargets/BEMKernel/kernel"
	"github.com/notargets/BEMKernel/precond"
	"github.com/notargets/BEMKernel/quadrature"
	"github.com/notargets/BEMKernel/tree"
	"github.com/notargets/BEMKernel/utils"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// Sorted holds the per-panel arrays in tree order. GaussPoints is strided:
// sorted panel k owns GaussPoints[k*K : (k+1)*K].
type Sorted struct {
	Centroids   []r3.Vec
	Normals     []r3.Vec
	Areas       []float64
	Triangles   [][3]int // indices into the mesh vertices
	Vertices    [][3]r3.Vec
	GaussPoints []r3.Vec
	SglIntInt   []float64
	SglIntExt   []float64
	TwigCenters []r3.Vec
	TwigOf      []int
}

// State is one surface after setup. Nothing in it is modified afterwards.
type State[T precond.Scalar] struct {
	Boundary precond.Boundary
	EHat     T

	// mesh order
	Panels   []geometry.Panel
	Interior []kernel.Diagonal // nil for boundaries without an interior medium
	Exterior []kernel.Diagonal

	Center r3.Vec
	Radius float64
	Tree   *tree.Tree
	Layout tree.TwigLayout
	Perm   utils.Permutation

	// tree order
	Sorted  Sorted
	Precond *precond.Preconditioner[T]

	K    int
	Far  quadrature.Rule
	Edge quadrature.Line
	Fine quadrature.Rule

	TotalArea   float64
	SortElapsed time.Duration

	// EnergyScale converts q²/(ε r) in e and Å to kcal/mol
	EnergyScale float64
}

// N returns the number of panels
func (s *State[T]) N() int {
	return len(s.Panels)
}

// Unsort maps a tree-ordered vector back to mesh order. Vectors of length
// 2N are treated as two stacked blocks, as produced by a 2x2 system.
func (s *State[T]) Unsort(values []T) ([]T, error) {
	n := s.N()
	switch len(values) {
	case n:
		return utils.Restore(s.Perm, values), nil
	case 2 * n:
		out := make([]T, 0, 2*n)
		out = append(out, utils.Restore(s.Perm, values[:n])...)
		return append(out, utils.Restore(s.Perm, values[n:])...), nil
	}
	return nil, fmt.Errorf("vector length %d does not match %d panels", len(values), n)
}

// Sort maps a mesh-ordered vector into tree order
func (s *State[T]) Sort(values []T) ([]T, error) {
	n := s.N()
	switch len(values) {
	case n:
		return utils.Apply(s.Perm, values), nil
	case 2 * n:
		out := make([]T, 0, 2*n)
		out = append(out, utils.Apply(s.Perm, values[:n])...)
		return append(out, utils.Apply(s.Perm, values[n:])...), nil
	}
	return nil, fmt.Errorf("vector length %d does not match %d panels", len(values), n)
}

type options struct {
	ctx    context.Context
	logger *slog.Logger
}

// Option configures Setup
type Option func(*options)

// WithLogger sends stage diagnostics to logger at Debug level
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithContext bounds the parallel stages of Setup
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		o.ctx = ctx
	}
}

func newOptions(opts []Option) options {
	o := options{
		ctx:    context.Background(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Setup derives everything the solver needs for one surface: panels, gauss
// points, tree and twig layout, quadrature rules, diagonal integrals and
// preconditioner, with every per-panel array sorted into tree order.
// Each call returns a fresh State.
func Setup[T precond.Scalar](m geometry.Mesh, b precond.Boundary, ehat T, cfg config.Config,
	opts ...Option) (*State[T], error) {
	o := newOptions(opts)
	log := o.logger

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := precond.ValidateBoundary(b); err != nil {
		return nil, err
	}

	panels, err := geometry.NewPanels(m)
	if err != nil {
		return nil, err
	}
	s := &State[T]{
		Boundary:    b,
		EHat:        ehat,
		Panels:      panels,
		K:           cfg.K,
		EnergyScale: cfg.Constants.EnergyScale(),
	}
	areas := make([]float64, len(panels))
	for i := range panels {
		areas[i] = panels[i].Area
	}
	s.TotalArea = floats.Sum(areas)
	log.Debug("panels", "n", len(panels), "area", s.TotalArea)

	s.Far = quadrature.MustFar(cfg.K)
	gauss, err := quadrature.GaussPoints(panels, cfg.K)
	if err != nil {
		return nil, err
	}

	centroids := geometry.Centroids(panels)
	s.Center, s.Radius = geometry.BoundingSphere(centroids)
	if s.Radius == 0 {
		// a single panel, or panels sharing one centroid
		s.Radius = 1
	}
	if s.Tree, err = tree.Build(centroids, s.Center, s.Radius, cfg.TreeOptions()); err != nil {
		return nil, err
	}
	if err = s.Tree.Validate(); err != nil {
		return nil, fmt.Errorf("tree: %w", err)
	}
	s.Layout = s.Tree.Layout()
	if s.Perm, err = s.Tree.Permutation(); err != nil {
		return nil, err
	}
	log.Debug("tree", "boxes", len(s.Tree.Boxes), "twigs", s.Layout.NumTwigs(),
		"depth", s.Tree.Depth(), "maxTwigSize", s.Layout.MaxTwigSize)

	if s.Edge, err = quadrature.GaussLegendre(cfg.Nk); err != nil {
		return nil, err
	}
	if s.Fine, err = quadrature.Fine(cfg.KFine); err != nil {
		return nil, err
	}

	res, err := precond.New(kernel.NewIntegrator(s.Edge), ehat, cfg.Workers).Build(o.ctx, panels, b)
	if err != nil {
		return nil, err
	}
	s.Interior, s.Exterior = res.Interior, res.Exterior
	log.Debug("preconditioner", "boundary", b.Name(), "kind", res.Preconditioner.Kind)

	start := time.Now()
	s.Sorted = Sorted{
		Centroids:   utils.Apply(s.Perm, centroids),
		Areas:       utils.Apply(s.Perm, areas),
		Triangles:   utils.Apply(s.Perm, m.Triangles),
		GaussPoints: utils.ApplyStrided(s.Perm, gauss, cfg.K),
		SglIntInt:   utils.Apply(s.Perm, res.SglIntInt),
		SglIntExt:   utils.Apply(s.Perm, res.SglIntExt),
		TwigCenters: s.Tree.TwigCenters(),
		TwigOf:      s.Layout.TwigOf,
	}
	s.Sorted.Normals = make([]r3.Vec, len(panels))
	s.Sorted.Vertices = make([][3]r3.Vec, len(panels))
	for k, orig := range s.Perm.Sort {
		s.Sorted.Normals[k] = panels[orig].Normal
		s.Sorted.Vertices[k] = panels[orig].Vertices
	}
	s.Precond = res.Preconditioner.Permute(s.Perm)
	s.SortElapsed = time.Since(start)
	log.Debug("sorted", "elapsed", s.SortElapsed)

	return s, nil
}

// SetupConfig runs Setup with the surface type, media and E_hat of cfg
func SetupConfig(m geometry.Mesh, cfg config.Config, opts ...Option) (*State[float64], error) {
	b, err := cfg.Boundary()
	if err != nil {
		return nil, err
	}
	return Setup(m, b, cfg.EHat, cfg, opts...)
}
