package precond

import (
	"math"

	"github.com/notargets/BEMKernel/kernel"
	"github.com/notargets/BEMKernel/utils"
)

// Medium is the dielectric on one side of a surface
type Medium struct {
	Kind  kernel.Kind
	Kappa float64 // inverse Debye length, 0 for unscreened media
}

func (m Medium) validate(side string) error {
	if !m.Kind.Valid() {
		return utils.ConfigErrorf("%s medium: unknown kernel %v", side, m.Kind)
	}
	if m.Kappa < 0 || math.IsNaN(m.Kappa) || math.IsInf(m.Kappa, 0) {
		return utils.ConfigErrorf("%s medium: kappa must be finite and non-negative, got %g", side, m.Kappa)
	}
	return nil
}

// Boundary is the closed set of surface types. Each variant carries only the
// media its preconditioner block depends on.
type Boundary interface {
	// Name returns the surf_type name of the variant
	Name() string
	media() (interior, exterior *Medium)
}

// InternalCavity is a solute cavity inside the solvent
type InternalCavity struct {
	Interior, Exterior Medium
}

// DielectricInterface separates two dielectrics, e.g. a Stern layer
type DielectricInterface struct {
	Interior, Exterior Medium
}

// DirichletSurface has a prescribed potential
type DirichletSurface struct {
	Exterior Medium
}

// NeumannSurface has a prescribed normal derivative
type NeumannSurface struct {
	Exterior Medium
}

// AscSurface is a pure surface-charge (apparent surface charge) boundary
type AscSurface struct {
	Exterior Medium
}

func (InternalCavity) Name() string      { return "internal_cavity" }
func (DielectricInterface) Name() string { return "dielectric_interface" }
func (DirichletSurface) Name() string    { return "dirichlet_surface" }
func (NeumannSurface) Name() string      { return "neumann_surface" }
func (AscSurface) Name() string          { return "asc_surface" }

func (b InternalCavity) media() (*Medium, *Medium)      { return &b.Interior, &b.Exterior }
func (b DielectricInterface) media() (*Medium, *Medium) { return &b.Interior, &b.Exterior }
func (b DirichletSurface) media() (*Medium, *Medium)    { return nil, &b.Exterior }
func (b NeumannSurface) media() (*Medium, *Medium)      { return nil, &b.Exterior }
func (b AscSurface) media() (*Medium, *Medium)          { return nil, &b.Exterior }

// ParseBoundary maps a surf_type name onto its variant. Variants without an
// interior medium ignore in.
func ParseBoundary(name string, in, out Medium) (Boundary, error) {
	switch name {
	case "internal_cavity":
		return InternalCavity{Interior: in, Exterior: out}, nil
	case "dielectric_interface", "stern_layer":
		return DielectricInterface{Interior: in, Exterior: out}, nil
	case "dirichlet_surface":
		return DirichletSurface{Exterior: out}, nil
	case "neumann_surface":
		return NeumannSurface{Exterior: out}, nil
	case "asc_surface":
		return AscSurface{Exterior: out}, nil
	}
	return nil, utils.ConfigErrorf("unknown surf_type %q", name)
}

// ValidateBoundary checks the media of b
func ValidateBoundary(b Boundary) error {
	if b == nil {
		return utils.ConfigErrorf("missing boundary type")
	}
	in, out := b.media()
	if in != nil {
		if err := in.validate("interior"); err != nil {
			return err
		}
	}
	return out.validate("exterior")
}
