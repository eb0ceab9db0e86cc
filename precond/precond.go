package precond

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/notargets/BEMKernel/geometry"
	"github.com/notargets/BEMKernel/kernel"
	"github.com/notargets/BEMKernel/utils"
)

// Scalar is the numeric domain of the preconditioner
type Scalar interface {
	float64 | complex128
}

// Kind tells whether a preconditioner couples the potential and its normal
// derivative (Full2x2) or acts on a single unknown (Scalar)
type Kind uint8

const (
	Full2x2 Kind = iota
	ScalarBlock
)

func (k Kind) String() string {
	switch k {
	case Full2x2:
		return "2x2"
	case ScalarBlock:
		return "scalar"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Tiny is the smallest magnitude accepted for a pivot of the block inverse
const Tiny = 1e-14

// Block is the inverse of one panel's local 2x2 operator, stored
//
//	| TL TR |
//	| BL BR |
//
// Scalar preconditioners use TL only.
type Block[T Scalar] struct {
	TL, TR, BL, BR T
}

// Preconditioner holds one block per panel
type Preconditioner[T Scalar] struct {
	Kind   Kind
	Blocks []Block[T]
}

// Len returns the number of panels
func (p *Preconditioner[T]) Len() int {
	return len(p.Blocks)
}

// Unknowns returns the length of the vector the preconditioner acts on
func (p *Preconditioner[T]) Unknowns() int {
	if p.Kind == Full2x2 {
		return 2 * len(p.Blocks)
	}
	return len(p.Blocks)
}

// Apply returns P*x. For Full2x2 the layout of x is [phi_0..phi_N-1,
// dphi_0..dphi_N-1].
func (p *Preconditioner[T]) Apply(x []T) ([]T, error) {
	if len(x) != p.Unknowns() {
		return nil, fmt.Errorf("vector length %d != preconditioner unknowns %d", len(x), p.Unknowns())
	}
	y := make([]T, len(x))
	n := len(p.Blocks)
	for i, b := range p.Blocks {
		if p.Kind == ScalarBlock {
			y[i] = b.TL * x[i]
			continue
		}
		y[i] = b.TL*x[i] + b.TR*x[n+i]
		y[n+i] = b.BL*x[i] + b.BR*x[n+i]
	}
	return y, nil
}

// Permute returns a new preconditioner with the blocks in sorted order
func (p *Preconditioner[T]) Permute(perm utils.Permutation) *Preconditioner[T] {
	return &Preconditioner[T]{Kind: p.Kind, Blocks: utils.Apply(perm, p.Blocks)}
}

// Rows returns the blocks as four contiguous arrays TL, TR, BL, BR
func (p *Preconditioner[T]) Rows() [4][]T {
	var rows [4][]T
	for r := range rows {
		rows[r] = make([]T, len(p.Blocks))
	}
	for i, b := range p.Blocks {
		rows[0][i], rows[1][i], rows[2][i], rows[3][i] = b.TL, b.TR, b.BL, b.BR
	}
	return rows
}

// Result is the output of Assembler.Build in mesh order
type Result[T Scalar] struct {
	Preconditioner *Preconditioner[T]

	// Single layer self integrals through each side, zero when the boundary
	// has no interior medium
	SglIntInt, SglIntExt []float64

	// Interior is nil when the boundary has no interior medium
	Interior, Exterior []kernel.Diagonal
}

// Assembler builds block preconditioners from panel self interactions
type Assembler[T Scalar] struct {
	Integrator *kernel.Integrator
	EHat       T // interior over exterior permittivity
	Workers    int
}

// New creates an Assembler. workers <= 0 uses every CPU.
func New[T Scalar](integrator *kernel.Integrator, ehat T, workers int) *Assembler[T] {
	return &Assembler[T]{
		Integrator: integrator,
		EHat:       ehat,
		Workers:    workers,
	}
}

// Build computes the diagonal integrals of every panel on each side of the
// boundary and inverts the local operator
func (a *Assembler[T]) Build(ctx context.Context, panels []geometry.Panel, b Boundary) (*Result[T], error) {
	if err := ValidateBoundary(b); err != nil {
		return nil, err
	}
	if isNaN(a.EHat) {
		return nil, utils.ConfigErrorf("E_hat is NaN")
	}
	in, out := b.media()
	n := len(panels)

	var err error
	res := &Result[T]{
		SglIntInt: make([]float64, n),
		SglIntExt: make([]float64, n),
	}
	if in != nil {
		if res.Interior, err = a.Integrator.DiagonalAll(ctx, panels, in.Kappa, a.Workers); err != nil {
			return nil, fmt.Errorf("interior diagonal: %w", err)
		}
		if err = singleLayer(res.SglIntInt, res.Interior, in.Kind); err != nil {
			return nil, err
		}
	}
	if res.Exterior, err = a.Integrator.DiagonalAll(ctx, panels, out.Kappa, a.Workers); err != nil {
		return nil, fmt.Errorf("exterior diagonal: %w", err)
	}
	if err = singleLayer(res.SglIntExt, res.Exterior, out.Kind); err != nil {
		return nil, err
	}

	p := &Preconditioner[T]{Blocks: make([]Block[T], n)}
	switch b.(type) {
	case InternalCavity, DielectricInterface:
		p.Kind = Full2x2
		err = utils.ForEachIndex(ctx, n, a.Workers, func(i int) error {
			intr, _ := res.Interior[i].Select(in.Kind)
			extr, _ := res.Exterior[i].Select(out.Kind)
			blk, err := a.interfaceBlock(i, intr, extr)
			if err != nil {
				return err
			}
			p.Blocks[i] = blk
			return nil
		})
	case DirichletSurface:
		p.Kind = ScalarBlock
		for i := range p.Blocks {
			v := res.Exterior[i].Yukawa.V
			if math.Abs(v) < Tiny {
				return nil, utils.InstabilityErrorf(i, "vanishing single layer self integral %g", v)
			}
			p.Blocks[i].TL = fromReal[T](1 / v)
		}
	case NeumannSurface, AscSurface:
		p.Kind = ScalarBlock
		for i := range p.Blocks {
			p.Blocks[i].TL = fromReal[T](1 / (2 * math.Pi))
		}
	default:
		return nil, utils.ConfigErrorf("unsupported boundary %T", b)
	}
	if err != nil {
		return nil, err
	}
	res.Preconditioner = p
	return res, nil
}

// interfaceBlock inverts
//
//	| K_int    -V_int      |
//	| K_ext    EHat*V_ext  |
//
// by block elimination on the first pivot
func (a *Assembler[T]) interfaceBlock(i int, in, ext kernel.Potentials) (Block[T], error) {
	dX11 := fromReal[T](in.K)
	dX12 := fromReal[T](-in.V)
	dX21 := fromReal[T](ext.K)
	dX22 := a.EHat * fromReal[T](ext.V)

	if abs(dX11) < Tiny {
		return Block[T]{}, utils.InstabilityErrorf(i, "vanishing double layer pivot %g", abs(dX11))
	}
	den := dX22 - dX21*dX12/dX11
	if abs(den) < Tiny {
		return Block[T]{}, utils.InstabilityErrorf(i, "vanishing Schur complement %g", abs(den))
	}
	dAux := 1 / den
	return Block[T]{
		TL: 1/dX11 + 1/dX11*dX12*dAux*dX21/dX11,
		TR: -1 / dX11 * dX12 * dAux,
		BL: -dAux * dX21 / dX11,
		BR: dAux,
	}, nil
}

func singleLayer(dst []float64, diag []kernel.Diagonal, kind kernel.Kind) error {
	for i := range diag {
		phi, err := diag[i].Select(kind)
		if err != nil {
			return err
		}
		dst[i] = phi.V
	}
	return nil
}

func fromReal[T Scalar](x float64) T {
	var z T
	switch p := any(&z).(type) {
	case *float64:
		*p = x
	case *complex128:
		*p = complex(x, 0)
	}
	return z
}

func abs[T Scalar](x T) float64 {
	switch v := any(x).(type) {
	case float64:
		return math.Abs(v)
	case complex128:
		return cmplx.Abs(v)
	}
	return math.NaN()
}

func isNaN[T Scalar](x T) bool {
	switch v := any(x).(type) {
	case float64:
		return math.IsNaN(v)
	case complex128:
		return cmplx.IsNaN(v)
	}
	return true
}
