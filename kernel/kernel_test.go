package kernel

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/notargets/BEMKernel/geometry"
	"github.com/notargets/BEMKernel/quadrature"
	"github.com/notargets/BEMKernel/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func newTestIntegrator(t *testing.T, nk int) *Integrator {
	edge, err := quadrature.GaussLegendre(nk)
	require.NoError(t, err)
	return NewIntegrator(edge)
}

// selfPotentialExact is ∫∫ 1/|y-x| dA for x in the plane of the triangle and
// inside it: the sum over edges of h*(asinh(t2/h) - asinh(t1/h)), where h is
// the distance from x to the edge line and t1, t2 the tangential coordinates
// of the edge ends measured from the foot of the perpendicular.
func selfPotentialExact(tri [3]r3.Vec, x r3.Vec) float64 {
	var v float64
	for e := 0; e < 3; e++ {
		a, b := tri[e], tri[(e+1)%3]
		u := r3.Unit(r3.Sub(b, a))
		ta := r3.Dot(r3.Sub(a, x), u)
		tb := r3.Dot(r3.Sub(b, x), u)
		foot := r3.Add(a, r3.Scale(-ta, u))
		h := r3.Norm(r3.Sub(foot, x))
		v += h * (math.Asinh(tb/h) - math.Asinh(ta/h))
	}
	return v
}

func equilateral() geometry.Panel {
	return geometry.NewPanel(
		r3.Vec{},
		r3.Vec{X: 1},
		r3.Vec{X: 0.5, Y: math.Sqrt(3) / 2},
	)
}

func TestSelf_EquilateralUnitTriangle(t *testing.T) {
	in := newTestIntegrator(t, 12)
	phi := in.Self(equilateral(), 0, Laplace)

	assert.InDelta(t, 2*math.Pi, phi.K, 1e-12)
	expected := math.Sqrt(3) * math.Log(2+math.Sqrt(3))
	assert.InEpsilon(t, expected, phi.V, 1e-8)
}

func TestSelf_UnitRightTriangle(t *testing.T) {
	in := newTestIntegrator(t, 20)
	p := geometry.NewPanel(r3.Vec{}, r3.Vec{X: 1}, r3.Vec{Y: 1})

	phi := in.Self(p, 0, Laplace)
	assert.InEpsilon(t, selfPotentialExact(p.Vertices, p.Centroid), phi.V, 1e-6)
	assert.InDelta(t, 2*math.Pi, phi.K, 1e-12)

	// winding order does not change the potentials
	q := geometry.NewPanel(r3.Vec{}, r3.Vec{Y: 1}, r3.Vec{X: 1})
	phiQ := in.Self(q, 0, Laplace)
	assert.InDelta(t, phi.V, phiQ.V, 1e-12)
}

func randomTriangle(rng *rand.Rand, scale float64) geometry.Panel {
	for {
		var v [3]r3.Vec
		for i := range v {
			v[i] = r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
			v[i] = r3.Scale(scale, v[i])
		}
		p := geometry.NewPanel(v[0], v[1], v[2])
		longest := math.Max(r3.Norm2(r3.Sub(v[1], v[0])),
			math.Max(r3.Norm2(r3.Sub(v[2], v[1])), r3.Norm2(r3.Sub(v[0], v[2]))))
		// keep reasonably shaped panels
		if p.Area > 0.15*longest {
			return p
		}
	}
}

func TestSelf_FinitePositive(t *testing.T) {
	in := newTestIntegrator(t, 20)
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 50; i++ {
		p := randomTriangle(rng, 0.5+rng.Float64())
		for _, kappa := range []float64{0, 0.125, 1, 5} {
			for _, kind := range []Kind{Laplace, Yukawa} {
				phi := in.Self(p, kappa, kind)
				require.True(t, isFinite(phi.V) && isFinite(phi.K), "panel %d kappa %g %v", i, kappa, kind)
				assert.Greater(t, phi.V, 0.)
				assert.InDelta(t, 2*math.Pi, phi.K, 1e-9)
			}
			assert.InEpsilon(t, selfPotentialExact(p.Vertices, p.Centroid),
				in.Self(p, kappa, Laplace).V, 1e-6)
		}
	}
}

func TestYukawa_LaplaceLimit(t *testing.T) {
	in := newTestIntegrator(t, 9)
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		p := randomTriangle(rng, 1)
		lap := in.Self(p, 0, Laplace)

		// kappa = 0 takes the closed Laplace branch exactly
		assert.Equal(t, lap, in.Self(p, 0, Yukawa))

		for _, kappa := range []float64{1e-12, 1e-9, 1e-6} {
			yuk := in.Self(p, kappa, Yukawa)
			// leading correction of exp(-kr)/r is -kappa per unit area
			assert.InDelta(t, lap.V, yuk.V, 2*kappa*p.Area+1e-12, "kappa=%g", kappa)
			assert.InDelta(t, lap.K, yuk.K, 1e-12)
		}

		// screening reduces the single layer
		assert.Less(t, in.Self(p, 2, Yukawa).V, lap.V)
	}
}

func rotate(v, axis r3.Vec, angle float64) r3.Vec {
	k := r3.Unit(axis)
	c, s := math.Cos(angle), math.Sin(angle)
	// Rodrigues' rotation formula
	return r3.Add(r3.Add(r3.Scale(c, v), r3.Scale(s, r3.Cross(k, v))),
		r3.Scale(r3.Dot(k, v)*(1-c), k))
}

func TestEvaluate_RigidMotionInvariance(t *testing.T) {
	in := newTestIntegrator(t, 12)
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 20; i++ {
		p := randomTriangle(rng, 1)
		x := r3.Add(p.Centroid, r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()})

		axis := r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
		angle := 2 * math.Pi * rng.Float64()
		shift := r3.Vec{X: 10 * rng.NormFloat64(), Y: 10 * rng.NormFloat64(), Z: 10 * rng.NormFloat64()}
		move := func(v r3.Vec) r3.Vec { return r3.Add(rotate(v, axis, angle), shift) }

		q := geometry.NewPanel(move(p.Vertices[0]), move(p.Vertices[1]), move(p.Vertices[2]))
		for _, kind := range []Kind{Laplace, Yukawa} {
			a := in.Evaluate(p, x, 0.7, kind)
			b := in.Evaluate(q, move(x), 0.7, kind)
			assert.InDelta(t, a.V, b.V, 1e-9*math.Abs(a.V)+1e-12, "V %v", kind)
			assert.InDelta(t, a.K, b.K, 1e-9*math.Abs(a.K)+1e-12, "K %v", kind)

			sa := in.Self(p, 0.7, kind)
			sb := in.Self(q, 0.7, kind)
			assert.InDelta(t, sa.V, sb.V, 1e-10*sa.V)
		}
	}
}

func TestEvaluate_OffPanelMatchesQuadrature(t *testing.T) {
	in := newTestIntegrator(t, 20)
	fine, err := quadrature.Fine(49)
	require.NoError(t, err)

	p := geometry.NewPanel(r3.Vec{}, r3.Vec{X: 1}, r3.Vec{X: 0.2, Y: 0.9})
	n := r3.Unit(r3.Cross(r3.Sub(p.Vertices[1], p.Vertices[0]), r3.Sub(p.Vertices[2], p.Vertices[0])))

	for _, h := range []float64{2, -1.5} {
		x := r3.Add(r3.Add(p.Centroid, r3.Scale(h, n)), r3.Vec{X: 0.1, Y: -0.05})
		for _, kappa := range []float64{0, 0.5} {
			t.Run(fmt.Sprintf("h=%g/kappa=%g", h, kappa), func(t *testing.T) {
				vRef := fine.Integrate(p, func(y r3.Vec) float64 {
					r := r3.Norm(r3.Sub(y, x))
					return math.Exp(-kappa*r) / r
				})
				kRef := -fine.Integrate(p, func(y r3.Vec) float64 {
					r := r3.Norm(r3.Sub(y, x))
					z := r3.Dot(r3.Sub(x, y), n)
					return z * (1 + kappa*r) * math.Exp(-kappa*r) / (r * r * r)
				})

				kind := Laplace
				if kappa > 0 {
					kind = Yukawa
				}
				phi := in.Evaluate(p, x, kappa, kind)
				assert.InEpsilon(t, vRef, phi.V, 1e-6)
				assert.InEpsilon(t, kRef, phi.K, 1e-6)
			})
		}
	}
}

func TestDiagonalAll(t *testing.T) {
	in := newTestIntegrator(t, 9)
	rng := rand.New(rand.NewSource(9))
	panels := make([]geometry.Panel, 64)
	for i := range panels {
		panels[i] = randomTriangle(rng, 1)
	}

	diag, err := in.DiagonalAll(context.Background(), panels, 0.3, 4)
	require.NoError(t, err)
	require.Len(t, diag, len(panels))
	for i, d := range diag {
		assert.Equal(t, in.Diagonal(panels[i], 0.3), d)

		lap, err := d.Select(Laplace)
		require.NoError(t, err)
		assert.Equal(t, d.Laplace, lap)
	}

	_, err = in.DiagonalAll(context.Background(), panels, -1, 4)
	assert.ErrorIs(t, err, utils.ErrConfiguration)
	_, err = diag[0].Select(Kind(7))
	assert.ErrorIs(t, err, utils.ErrConfiguration)
}

func TestDiagonalAll_NonFinite(t *testing.T) {
	in := newTestIntegrator(t, 9)
	panels := []geometry.Panel{
		equilateral(),
		geometry.NewPanel(r3.Vec{}, r3.Vec{X: math.Inf(1)}, r3.Vec{Y: 1}),
	}
	_, err := in.DiagonalAll(context.Background(), panels, 0, 1)
	assert.ErrorIs(t, err, utils.ErrNumericalInstability)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("yukawa")
	require.NoError(t, err)
	assert.Equal(t, Yukawa, k)
	assert.Equal(t, "laplace", Laplace.String())
	assert.False(t, Kind(0).Valid())

	_, err = ParseKind("coulomb")
	assert.ErrorIs(t, err, utils.ErrConfiguration)
}
