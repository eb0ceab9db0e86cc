package surface

import (
	"context"
	"fmt"
	"slices"

	"github.com/notargets/BEMKernel/config"
	"github.com/notargets/BEMKernel/geometry"
	"github.com/notargets/BEMKernel/kernel"
	"github.com/notargets/BEMKernel/precond"
	"github.com/notargets/BEMKernel/utils"
)

// Region is a dielectric volume bounded by surfaces. Parent is the surface
// enclosing it (-1 for the unbounded solvent) and Children the surfaces
// directly inside it.
type Region[T precond.Scalar] struct {
	Name         string
	Permittivity T
	Kappa        float64
	Kernel       kernel.Kind
	Parent       int
	Children     []int
}

// Medium returns the kernel and screening of the region
func (r Region[T]) Medium() precond.Medium {
	return precond.Medium{Kind: r.Kernel, Kappa: r.Kappa}
}

// Surface names a mesh and its surf_type
type Surface struct {
	Name string
	Type string
}

// Model is the containment graph of regions and surfaces
type Model[T precond.Scalar] struct {
	Regions  []Region[T]
	Surfaces []Surface
}

// Sides returns the regions inside and outside surface s
func (m *Model[T]) Sides(s int) (interior, exterior int, err error) {
	interior, exterior = -1, -1
	for i, r := range m.Regions {
		if r.Parent == s {
			if interior >= 0 {
				return -1, -1, utils.ConfigErrorf("surface %d: regions %d and %d are both inside", s, interior, i)
			}
			interior = i
		}
		if slices.Contains(r.Children, s) {
			if exterior >= 0 {
				return -1, -1, utils.ConfigErrorf("surface %d: regions %d and %d are both outside", s, exterior, i)
			}
			exterior = i
		}
	}
	switch {
	case interior < 0:
		return -1, -1, utils.ConfigErrorf("surface %d has no interior region", s)
	case exterior < 0:
		return -1, -1, utils.ConfigErrorf("surface %d has no exterior region", s)
	case interior == exterior:
		return -1, -1, utils.ConfigErrorf("surface %d: region %d is on both sides", s, interior)
	}
	return interior, exterior, nil
}

// Validate checks the region graph: surface indices are in range and every
// surface has exactly one interior and one exterior region
func (m *Model[T]) Validate() error {
	ns := len(m.Surfaces)
	for i, r := range m.Regions {
		if r.Parent < -1 || r.Parent >= ns {
			return utils.ConfigErrorf("region %d (%s): parent surface %d out of range", i, r.Name, r.Parent)
		}
		for _, c := range r.Children {
			if c < 0 || c >= ns {
				return utils.ConfigErrorf("region %d (%s): child surface %d out of range", i, r.Name, c)
			}
		}
		if !r.Kernel.Valid() {
			return utils.ConfigErrorf("region %d (%s): unknown kernel %v", i, r.Name, r.Kernel)
		}
	}
	for s := range m.Surfaces {
		if _, _, err := m.Sides(s); err != nil {
			return err
		}
	}
	return nil
}

// Boundary returns the boundary variant and permittivity ratio of surface s
func (m *Model[T]) Boundary(s int) (precond.Boundary, T, error) {
	var zero T
	in, out, err := m.Sides(s)
	if err != nil {
		return nil, zero, err
	}
	interior, exterior := m.Regions[in], m.Regions[out]
	b, err := precond.ParseBoundary(m.Surfaces[s].Type, interior.Medium(), exterior.Medium())
	if err != nil {
		return nil, zero, err
	}
	if exterior.Permittivity == zero {
		return nil, zero, utils.ConfigErrorf("region %d (%s) has zero permittivity", out, exterior.Name)
	}
	return b, interior.Permittivity / exterior.Permittivity, nil
}

// SetupAll sets up every surface in order and stops at the first failure.
// The kernel and screening of each side come from the regions; cfg supplies
// the quadrature and tree options.
func (m *Model[T]) SetupAll(ctx context.Context, meshes []geometry.Mesh, cfg config.Config,
	opts ...Option) ([]*State[T], error) {
	if len(meshes) != len(m.Surfaces) {
		return nil, utils.ConfigErrorf("%d meshes for %d surfaces", len(meshes), len(m.Surfaces))
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	opts = append(opts[:len(opts):len(opts)], WithContext(ctx))

	states := make([]*State[T], len(meshes))
	for s := range meshes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, ehat, err := m.Boundary(s)
		if err == nil {
			states[s], err = Setup(meshes[s], b, ehat, cfg, opts...)
		}
		if err != nil {
			return nil, fmt.Errorf("surface %d (%s): %w", s, m.Surfaces[s].Name, err)
		}
	}
	return states, nil
}
