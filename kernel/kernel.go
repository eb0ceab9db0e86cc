package kernel

import (
	"context"
	"fmt"
	"math"

	"github.com/notargets/BEMKernel/geometry"
	"github.com/notargets/BEMKernel/quadrature"
	"github.com/notargets/BEMKernel/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// Kind selects the Green's function of a dielectric region
type Kind uint8

const (
	Laplace Kind = iota + 1 // G = 1/r
	Yukawa                  // G = exp(-kappa r)/r
)

func (k Kind) String() string {
	switch k {
	case Laplace:
		return "laplace"
	case Yukawa:
		return "yukawa"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Valid reports whether k is one of the supported kernels
func (k Kind) Valid() bool {
	return k == Laplace || k == Yukawa
}

// ParseKind maps a configuration name to a Kind
func ParseKind(name string) (Kind, error) {
	switch name {
	case "laplace", "Laplace", "1":
		return Laplace, nil
	case "yukawa", "Yukawa", "2":
		return Yukawa, nil
	}
	return 0, utils.ConfigErrorf("unknown kernel %q, want laplace or yukawa", name)
}

const (
	// KDiag is the solid angle jump of the double layer at the panel itself
	KDiag = 2 * math.Pi
	// VDiag is the single layer correction at the panel itself
	VDiag = 0.

	// heights below zTiny are treated as in-plane
	zTiny = 1e-10
	// below this kappa*R the Yukawa integrand is replaced by its Laplace limit
	kappaRTiny = 1e-10
)

// Potentials holds single layer (V) and double layer (K) values
type Potentials struct {
	V, K float64
}

// Diagonal is the self interaction of a panel under both kernels
type Diagonal struct {
	Laplace, Yukawa Potentials
}

// Select returns the potentials of the requested kernel
func (d Diagonal) Select(kind Kind) (Potentials, error) {
	switch kind {
	case Laplace:
		return d.Laplace, nil
	case Yukawa:
		return d.Yukawa, nil
	}
	return Potentials{}, utils.ConfigErrorf("unknown kernel %v", kind)
}

// Integrator evaluates panel potentials semi-analytically: the surface
// integral is reduced to one angular line integral per edge, each computed
// with the Edge Gauss–Legendre rule.
type Integrator struct {
	Edge  quadrature.Line
	KDiag float64
	VDiag float64
}

// NewIntegrator creates an Integrator with the standard diagonal corrections
func NewIntegrator(edge quadrature.Line) *Integrator {
	return &Integrator{
		Edge:  edge,
		KDiag: KDiag,
		VDiag: VDiag,
	}
}

// Evaluate returns the potentials of panel p at point x. The triangle must
// have nonzero area; this is not checked.
func (in *Integrator) Evaluate(p geometry.Panel, x r3.Vec, kappa float64, kind Kind) Potentials {
	v, z := toPanelPlane(p.Vertices, x)

	var phi Potentials
	for e := 0; e < 3; e++ {
		in.integrateSide(&phi, v[e], v[(e+1)%3], z, kappa, kind)
	}
	return phi
}

// Self returns the potentials of p at its own centroid, including the
// diagonal correction
func (in *Integrator) Self(p geometry.Panel, kappa float64, kind Kind) Potentials {
	phi := in.Evaluate(p, p.Centroid, kappa, kind)
	phi.K += in.KDiag
	phi.V += in.VDiag
	return phi
}

// Diagonal returns the self interaction of p under both kernels
func (in *Integrator) Diagonal(p geometry.Panel, kappa float64) Diagonal {
	return Diagonal{
		Laplace: in.Self(p, kappa, Laplace),
		Yukawa:  in.Self(p, kappa, Yukawa),
	}
}

// DiagonalAll computes Diagonal for every panel on workers goroutines
func (in *Integrator) DiagonalAll(ctx context.Context, panels []geometry.Panel, kappa float64,
	workers int) ([]Diagonal, error) {
	if kappa < 0 || math.IsNaN(kappa) || math.IsInf(kappa, 0) {
		return nil, utils.ConfigErrorf("kappa must be finite and non-negative, got %g", kappa)
	}
	out := make([]Diagonal, len(panels))
	err := utils.ForEachIndex(ctx, len(panels), workers, func(i int) error {
		d := in.Diagonal(panels[i], kappa)
		for _, phi := range []Potentials{d.Laplace, d.Yukawa} {
			if !isFinite(phi.V) || !isFinite(phi.K) {
				return utils.InstabilityErrorf(i, "non-finite self potential V=%g K=%g", phi.V, phi.K)
			}
		}
		out[i] = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// toPanelPlane rotates the triangle into its own plane (z=0) with the
// projection of x at the origin. It returns the in-plane vertices and the
// height of x above the plane.
func toPanelPlane(tri [3]r3.Vec, x r3.Vec) (v [3]r3.Vec, z float64) {
	e1 := r3.Sub(tri[1], tri[0])
	e2 := r3.Sub(tri[2], tri[0])
	f := frame{
		x: r3.Unit(e1),
		z: r3.Unit(r3.Cross(e1, e2)),
	}
	f.y = r3.Cross(f.z, f.x)

	xp := f.apply(r3.Sub(x, tri[0]))
	v[0] = r3.Vec{X: -xp.X, Y: -xp.Y}
	for i, e := range []r3.Vec{e1, e2} {
		q := f.apply(e)
		v[i+1] = r3.Vec{X: q.X - xp.X, Y: q.Y - xp.Y}
	}
	return v, xp.Z
}

// frame holds the rows of an orthonormal rotation
type frame struct {
	x, y, z r3.Vec
}

func (f frame) apply(v r3.Vec) r3.Vec {
	return r3.Vec{X: r3.Dot(f.x, v), Y: r3.Dot(f.y, v), Z: r3.Dot(f.z, v)}
}

// integrateSide accumulates the contribution of the edge v1->v2. The edge is
// rotated so it lies on the line x = d > 0; if its endpoints straddle y = 0
// the angular integral is split there.
func (in *Integrator) integrateSide(phi *Potentials, v1, v2 r3.Vec, z, kappa float64, kind Kind) {
	t := r3.Unit(r3.Sub(v2, v1))
	n := r3.Vec{X: -t.Y, Y: t.X}

	d := r3.Dot(n, v1)
	if d < 0 {
		n = r3.Scale(-1, n)
		t = r3.Scale(-1, t)
		d = -d
	}
	y1 := r3.Dot(t, v1)
	y2 := r3.Dot(t, v2)

	if (y1 > 0 && y2 < 0) || (y1 < 0 && y2 > 0) {
		a := in.lineIntegral(z, d, 0, y1, kappa, kind)
		b := in.lineIntegral(z, d, y2, 0, kappa, kind)
		phi.K += a.K + b.K
		phi.V += a.V + b.V
		return
	}
	a := in.lineIntegral(z, d, y1, y2, kappa, kind)
	phi.K -= a.K
	phi.V -= a.V
}

// lineIntegral integrates over the angle subtended by the segment x = d,
// y in [ya, yb] as seen from the origin, at height z
func (in *Integrator) lineIntegral(z, d, ya, yb, kappa float64, kind Kind) Potentials {
	theta1 := math.Atan2(ya, d)
	theta2 := math.Atan2(yb, d)
	dtheta := (theta2 - theta1) / 2
	thetam := (theta2 + theta1) / 2

	absZ := math.Abs(z)
	var signZ float64
	if absZ >= zTiny {
		signZ = z / absZ
	}
	expKz := math.Exp(-kappa * absZ)

	var phi Potentials
	for i, xk := range in.Edge.X {
		wk := in.Edge.W[i] * dtheta
		rTheta := d / math.Cos(dtheta*xk+thetam)
		R := math.Sqrt(rTheta*rTheta + z*z)

		if kind == Laplace || kappa*R < kappaRTiny {
			phi.V += wk * (R - absZ)
			phi.K += wk * (z/R - signZ)
			continue
		}
		// exp(-kR) - exp(-k|z|) = exp(-k|z|) * expm1(-k(R-|z|)) avoids cancellation
		phi.V -= wk * expKz * math.Expm1(-kappa*(R-absZ)) / kappa
		phi.K += wk * (z/R*math.Exp(-kappa*R) - expKz*signZ)
	}
	return phi
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
