package tree

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/notargets/BEMKernel/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func uniformPoints(rng *rand.Rand, n int) []r3.Vec {
	pts := make([]r3.Vec, n)
	for i := range pts {
		pts[i] = r3.Vec{X: 2*rng.Float64() - 1, Y: 2*rng.Float64() - 1, Z: 2*rng.Float64() - 1}
	}
	return pts
}

func spherePoints(rng *rand.Rand, n int) []r3.Vec {
	pts := make([]r3.Vec, n)
	for i := range pts {
		pts[i] = r3.Unit(r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()})
	}
	return pts
}

func clusteredPoints(rng *rand.Rand, n int) []r3.Vec {
	pts := make([]r3.Vec, n)
	for i := range pts {
		c := r3.Vec{X: float64(i % 3), Y: 0, Z: 0}
		pts[i] = r3.Add(c, r3.Scale(1e-3, r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}))
	}
	return pts
}

func checkTree(t *testing.T, tr *Tree, pts []r3.Vec) {
	t.Helper()
	require.NoError(t, tr.Validate())

	total := 0
	for _, id := range tr.Twigs {
		b := tr.Boxes[id]
		assert.True(t, b.IsTwig())
		if b.Level < tr.MaxLevel {
			assert.LessOrEqual(t, b.Count, tr.NCRIT)
		}
		// every panel of a twig lies in its box octant path
		for k := b.Start; k < b.Start+b.Count; k++ {
			p := pts[tr.Order[k]]
			for id := id; tr.Boxes[id].Parent >= 0; id = tr.Boxes[id].Parent {
				parent := tr.Boxes[tr.Boxes[id].Parent]
				assert.Equal(t, id, parent.Children[octant(p, parent.Center)])
			}
		}
		total += b.Count
	}
	assert.Equal(t, len(pts), total)

	layout := tr.Layout()
	require.NoError(t, layout.Validate())
	assert.Equal(t, len(tr.Twigs), layout.NumTwigs())
	for tw := range tr.Twigs {
		start, end := layout.TwigRange(tw)
		for k := start; k < end; k++ {
			assert.Equal(t, tw, layout.TwigOf[k])
		}
	}
}

func TestBuild_Distributions(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	dists := map[string][]r3.Vec{
		"uniform":   uniformPoints(rng, 2000),
		"sphere":    spherePoints(rng, 1500),
		"clustered": clusteredPoints(rng, 600),
	}
	for name, pts := range dists {
		for _, ncrit := range []int{1, 8, 64, 300} {
			t.Run(fmt.Sprintf("%s/NCRIT=%d", name, ncrit), func(t *testing.T) {
				center, radius := r3.Vec{X: 1}, 3.
				tr, err := Build(pts, center, radius, Options{NCRIT: ncrit, MaxLevel: DefaultMaxLevel})
				require.NoError(t, err)
				checkTree(t, tr, pts)
				assert.Less(t, tr.Depth(), DefaultMaxLevel)
			})
		}
	}
}

func TestBuild_CoincidentPoints(t *testing.T) {
	pts := make([]r3.Vec, 50)
	for i := range pts {
		pts[i] = r3.Vec{X: 0.25, Y: 0.25, Z: 0.25}
	}
	pts = append(pts, r3.Vec{X: -0.5}, r3.Vec{Y: -0.5})

	tr, err := Build(pts, r3.Vec{}, 1, Options{NCRIT: 4, MaxLevel: 6})
	require.NoError(t, err)
	checkTree(t, tr, pts)
	assert.Equal(t, 6, tr.Depth())

	// only the max depth twig may exceed NCRIT
	for _, id := range tr.Twigs {
		b := tr.Boxes[id]
		if b.Count > 4 {
			assert.Equal(t, 6, b.Level)
			assert.Equal(t, 50, b.Count)
		}
	}
}

func TestBuild_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	pts := uniformPoints(rng, 777)
	a, err := Build(pts, r3.Vec{}, 1, Options{NCRIT: 10, MaxLevel: DefaultMaxLevel})
	require.NoError(t, err)
	b, err := Build(pts, r3.Vec{}, 1, Options{NCRIT: 10, MaxLevel: DefaultMaxLevel})
	require.NoError(t, err)
	assert.Equal(t, a.Order, b.Order)
	assert.Equal(t, a.Twigs, b.Twigs)
	assert.Equal(t, a.Boxes, b.Boxes)
}

func TestBuild_SortRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	pts := spherePoints(rng, 400)
	tr, err := Build(pts, r3.Vec{}, 1, Options{NCRIT: 16, MaxLevel: DefaultMaxLevel})
	require.NoError(t, err)

	perm, err := tr.Permutation()
	require.NoError(t, err)
	sorted := utils.Apply(perm, pts)
	assert.Equal(t, pts, utils.Restore(perm, sorted))

	// sorted points of a twig sit inside the twig box
	centers := tr.TwigCenters()
	layout := tr.Layout()
	for k, p := range sorted {
		b := tr.Boxes[tr.Twigs[layout.TwigOf[k]]]
		assert.Equal(t, b.Center, centers[k])
		d := r3.Sub(p, b.Center)
		for _, c := range []float64{d.X, d.Y, d.Z} {
			assert.LessOrEqual(t, c, b.Radius+1e-15)
			assert.GreaterOrEqual(t, c, -b.Radius-1e-15)
		}
	}
}

func TestBuild_SmallInputs(t *testing.T) {
	tr, err := Build(nil, r3.Vec{}, 0, Options{NCRIT: 4})
	require.NoError(t, err)
	assert.Empty(t, tr.Twigs)
	assert.Equal(t, 0, tr.Layout().NumTwigs())
	assert.NoError(t, tr.Layout().Validate())

	pts := []r3.Vec{{X: 1}, {X: 2}}
	tr, err = Build(pts, r3.Vec{X: 1.5}, 0.5, Options{NCRIT: 4, MaxLevel: DefaultMaxLevel})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, tr.Twigs)
	assert.Equal(t, []int{0, 1}, tr.Order)
	start, end := tr.Layout().TwigRange(0)
	assert.Equal(t, 0, start)
	assert.Equal(t, 2, end)
}

func TestBuild_Rejects(t *testing.T) {
	pts := []r3.Vec{{X: 1}}
	_, err := Build(pts, r3.Vec{}, 1, Options{NCRIT: 0})
	assert.ErrorIs(t, err, utils.ErrConfiguration)
	_, err = Build(pts, r3.Vec{}, 1, Options{NCRIT: 2, MaxLevel: -1})
	assert.ErrorIs(t, err, utils.ErrConfiguration)
	_, err = Build(pts, r3.Vec{}, 0, Options{NCRIT: 2})
	assert.ErrorIs(t, err, utils.ErrConfiguration)
}

func TestLayout_Validate(t *testing.T) {
	l := TwigLayout{Offsets: []int{0, 2, 5}, Sizes: []int{2, 3}, MaxTwigSize: 3}
	assert.NoError(t, l.Validate())
	l.MaxTwigSize = 2
	assert.Error(t, l.Validate())
	l = TwigLayout{Offsets: []int{0, 2, 5}, Sizes: []int{2, 2}, MaxTwigSize: 2}
	assert.Error(t, l.Validate())
	s, e := l.TwigRange(5)
	assert.Equal(t, 0, s)
	assert.Equal(t, 0, e)
}
