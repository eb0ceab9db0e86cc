package quadrature

import (
	"math"

	"github.com/notargets/BEMKernel/geometry"
	"github.com/notargets/BEMKernel/utils"
	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/spatial/r3"
)

// Rule is a triangle quadrature rule in barycentric coordinates. Weights sum
// to one, so integrals are Area * sum(w_i f(x_i)).
type Rule struct {
	Bary    [][3]float64
	Weights []float64
}

// Line is a 1D Gauss–Legendre rule on [-1, 1]
type Line struct {
	X, W []float64
}

// Len returns the number of points in the rule
func (r Rule) Len() int {
	return len(r.Weights)
}

// Points maps the rule onto a triangle
func (r Rule) Points(tri [3]r3.Vec) []r3.Vec {
	pts := make([]r3.Vec, len(r.Bary))
	for i, b := range r.Bary {
		pts[i] = r3.Add(r3.Add(r3.Scale(b[0], tri[0]), r3.Scale(b[1], tri[1])), r3.Scale(b[2], tri[2]))
	}
	return pts
}

// Integrate evaluates the rule for f over a panel
func (r Rule) Integrate(p geometry.Panel, f func(x r3.Vec) float64) float64 {
	var sum float64
	for i, x := range r.Points(p.Vertices) {
		sum += r.Weights[i] * f(x)
	}
	return p.Area * sum
}

// Symmetric rules for the far field
const (
	dunavantA1 = .797426985353087
	dunavantB1 = .101286507323456
	dunavantA2 = .059715871789770
	dunavantB2 = .470142064105115
	dunavantW1 = .125939180544827
	dunavantW2 = .132394152788506
)

// Far returns the symmetric far-field rule with K points, K in {1, 3, 4, 7}
func Far(K int) (Rule, error) {
	switch K {
	case 1:
		return Rule{
			Bary:    [][3]float64{{1. / 3., 1. / 3., 1. / 3.}},
			Weights: []float64{1},
		}, nil
	case 3:
		return Rule{
			Bary: [][3]float64{
				{0.5, 0.5, 0.},
				{0., 0.5, 0.5},
				{0.5, 0., 0.5},
			},
			Weights: []float64{1. / 3., 1. / 3., 1. / 3.},
		}, nil
	case 4:
		return Rule{
			Bary: [][3]float64{
				{1. / 3., 1. / 3., 1. / 3.},
				{3. / 5., 1. / 5., 1. / 5.},
				{1. / 5., 3. / 5., 1. / 5.},
				{1. / 5., 1. / 5., 3. / 5.},
			},
			Weights: []float64{-27. / 48., 25. / 48., 25. / 48., 25. / 48.},
		}, nil
	case 7:
		return Rule{
			Bary: [][3]float64{
				{1. / 3., 1. / 3., 1. / 3.},
				{dunavantA1, dunavantB1, dunavantB1},
				{dunavantB1, dunavantA1, dunavantB1},
				{dunavantB1, dunavantB1, dunavantA1},
				{dunavantA2, dunavantB2, dunavantB2},
				{dunavantB2, dunavantA2, dunavantB2},
				{dunavantB2, dunavantB2, dunavantA2},
			},
			Weights: []float64{0.225,
				dunavantW1, dunavantW1, dunavantW1,
				dunavantW2, dunavantW2, dunavantW2},
		}, nil
	}
	return Rule{}, utils.ConfigErrorf("unsupported far-field quadrature order K=%d, want 1, 3, 4 or 7", K)
}

// MustFar is Far for orders known at compile time
func MustFar(K int) Rule {
	r, err := Far(K)
	if err != nil {
		panic(err)
	}
	return r
}

// GaussPoints returns the K far-field source points of every panel, grouped
// per panel: panel i owns [i*K, (i+1)*K)
func GaussPoints(panels []geometry.Panel, K int) ([]r3.Vec, error) {
	rule, err := Far(K)
	if err != nil {
		return nil, err
	}
	pts := make([]r3.Vec, 0, len(panels)*K)
	for i := range panels {
		pts = append(pts, rule.Points(panels[i].Vertices)...)
	}
	return pts, nil
}

// GaussLegendre returns the n-point Gauss–Legendre rule on [-1, 1]
func GaussLegendre(n int) (Line, error) {
	if n < 1 {
		return Line{}, utils.ConfigErrorf("edge quadrature needs at least one point, got Nk=%d", n)
	}
	l := Line{X: make([]float64, n), W: make([]float64, n)}
	quad.Legendre{}.FixedLocations(l.X, l.W, -1, 1)
	return l, nil
}

// Fine returns the near-field rule used for near-singular integrals. Orders
// 1, 3, 4 and 7 reuse the symmetric rules, larger orders use a collapsed
// Gauss–Legendre product rule with ceil(sqrt(n))^2 points.
func Fine(n int) (Rule, error) {
	switch {
	case n < 1:
		return Rule{}, utils.ConfigErrorf("fine quadrature needs at least one point, got K_fine=%d", n)
	case n == 1 || n == 3 || n == 4 || n == 7:
		return Far(n)
	}
	m := int(math.Ceil(math.Sqrt(float64(n))))
	x := make([]float64, m)
	w := make([]float64, m)
	quad.Legendre{}.FixedLocations(x, w, 0, 1)

	r := Rule{
		Bary:    make([][3]float64, 0, m*m),
		Weights: make([]float64, 0, m*m),
	}
	for i := 0; i < m; i++ {
		u := x[i]
		for j := 0; j < m; j++ {
			v := x[j] * (1 - u)
			r.Bary = append(r.Bary, [3]float64{1 - u - v, u, v})
			// reference triangle has area 1/2, so the Duffy jacobian (1-u) doubles
			r.Weights = append(r.Weights, 2*w[i]*w[j]*(1-u))
		}
	}
	return r, nil
}
