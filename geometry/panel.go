package geometry

import (
	"math"

	"github.com/notargets/BEMKernel/utils"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

// AreaTolerance is the smallest accepted ratio of panel area to the square of
// its longest edge. Slivers below it are rejected as degenerate.
const AreaTolerance = 1e-12

// Mesh is the raw surface triangulation supplied by a mesh collaborator
type Mesh struct {
	Vertices  []r3.Vec
	Triangles [][3]int
}

// Panel is a planar triangular boundary element with its derived attributes
type Panel struct {
	Vertices [3]r3.Vec
	Centroid r3.Vec
	Normal   r3.Vec // unit normal, cross(v1-v0, v0-v2) orientation
	Area     float64
}

// NewPanel derives centroid, normal and area without validating the triangle
func NewPanel(a, b, c r3.Vec) Panel {
	l0 := r3.Sub(b, a)
	l2 := r3.Sub(a, c)
	n := r3.Cross(l0, l2)
	twiceArea := r3.Norm(n)

	p := Panel{
		Vertices: [3]r3.Vec{a, b, c},
		Centroid: r3.Scale(1./3., r3.Add(r3.Add(a, b), c)),
		Area:     0.5 * twiceArea,
	}
	if twiceArea > 0 {
		p.Normal = r3.Scale(1/twiceArea, n)
	}
	return p
}

// NewPanels validates the mesh and derives one Panel per triangle
func NewPanels(m Mesh) ([]Panel, error) {
	nv := len(m.Vertices)
	for i, v := range m.Vertices {
		if !finite(v) {
			return nil, utils.GeometryErrorf(-1, "vertex %d has non-finite coordinates %v", i, v)
		}
	}

	panels := make([]Panel, len(m.Triangles))
	for k, tri := range m.Triangles {
		for _, vi := range tri {
			if vi < 0 || vi >= nv {
				return nil, utils.GeometryErrorf(k, "vertex index %d out of range [0,%d)", vi, nv)
			}
		}
		if tri[0] == tri[1] || tri[1] == tri[2] || tri[0] == tri[2] {
			return nil, utils.GeometryErrorf(k, "repeated vertex in triangle %v", tri)
		}
		a, b, c := m.Vertices[tri[0]], m.Vertices[tri[1]], m.Vertices[tri[2]]
		p := NewPanel(a, b, c)
		longest := math.Max(r3.Norm2(r3.Sub(b, a)), math.Max(r3.Norm2(r3.Sub(c, b)), r3.Norm2(r3.Sub(a, c))))
		if !(p.Area > AreaTolerance*longest) {
			return nil, utils.GeometryErrorf(k, "degenerate triangle, area %g", p.Area)
		}
		panels[k] = p
	}
	return panels, nil
}

// Centroids returns the panel centroids in panel order
func Centroids(panels []Panel) []r3.Vec {
	c := make([]r3.Vec, len(panels))
	for i := range panels {
		c[i] = panels[i].Centroid
	}
	return c
}

// BoundingSphere returns the mean of the points and the largest distance
// from it. The tree root box is built from these.
func BoundingSphere(points []r3.Vec) (center r3.Vec, radius float64) {
	if len(points) == 0 {
		return r3.Vec{}, 0
	}
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	zs := make([]float64, len(points))
	for i, p := range points {
		xs[i], ys[i], zs[i] = p.X, p.Y, p.Z
	}
	center = r3.Vec{X: stat.Mean(xs, nil), Y: stat.Mean(ys, nil), Z: stat.Mean(zs, nil)}
	for _, p := range points {
		radius = math.Max(radius, r3.Norm(r3.Sub(p, center)))
	}
	return center, radius
}

func finite(v r3.Vec) bool {
	for _, x := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
