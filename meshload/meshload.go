package meshload

import (
	"fmt"
	"sort"

	"github.com/notargets/BEMKernel/geometry"
	"github.com/notargets/BEMKernel/utils"
	"github.com/notargets/gocfd/DG3D/mesh"
	"github.com/notargets/gocfd/DG3D/mesh/readers"
	gutils "github.com/notargets/gocfd/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// ReadSurface reads a mesh file in any format gocfd understands and returns
// its surface triangulation
func ReadSurface(path string) (geometry.Mesh, error) {
	msh, err := readers.ReadMeshFile(path)
	if err != nil {
		return geometry.Mesh{}, fmt.Errorf("reading %s: %w", path, err)
	}
	m, err := FromMesh(msh)
	if err != nil {
		return geometry.Mesh{}, fmt.Errorf("%s: %w", path, err)
	}
	fmt.Printf("Meshfile: %s has %d surface panels...\n", path, len(m.Triangles))
	return m, nil
}

// FromMesh extracts the surface of a gocfd mesh. Triangle elements are taken
// as the surface when present, otherwise the boundary faces of the
// tetrahedra are used.
func FromMesh(msh *mesh.Mesh) (geometry.Mesh, error) {
	dims := make([]int, msh.NumElements)
	for i := 0; i < msh.NumElements; i++ {
		dims[i] = msh.ElementTypes[i].GetDimension()
		if dims[i] == 3 && msh.ElementTypes[i] != gutils.Tet && msh.ElementTypes[i] != gutils.Tet10 {
			return geometry.Mesh{}, utils.GeometryErrorf(-1,
				"element %d is not tetrahedral (type=%v)", i, msh.ElementTypes[i])
		}
	}
	return fromElements(msh.Vertices, msh.EtoV[:msh.NumElements], dims)
}

func fromElements(coords [][]float64, elements [][]int, dims []int) (geometry.Mesh, error) {
	vertices := make([]r3.Vec, len(coords))
	for i, c := range coords {
		if len(c) < 3 {
			return geometry.Mesh{}, utils.GeometryErrorf(-1, "vertex %d has %d coordinates", i, len(c))
		}
		vertices[i] = r3.Vec{X: c[0], Y: c[1], Z: c[2]}
	}

	var (
		tris [][3]int
		tets [][4]int
	)
	for i, nodes := range elements {
		switch {
		case dims[i] == 2 && (len(nodes) == 3 || len(nodes) == 6):
			tris = append(tris, [3]int{nodes[0], nodes[1], nodes[2]})
		case dims[i] == 3 && len(nodes) >= 4:
			// Tet10 carries the corners first
			tets = append(tets, [4]int{nodes[0], nodes[1], nodes[2], nodes[3]})
		}
	}
	for _, tri := range tris {
		for _, v := range tri {
			if v < 0 || v >= len(vertices) {
				return geometry.Mesh{}, utils.GeometryErrorf(-1, "vertex index %d out of range", v)
			}
		}
	}
	for _, tet := range tets {
		for _, v := range tet {
			if v < 0 || v >= len(vertices) {
				return geometry.Mesh{}, utils.GeometryErrorf(-1, "vertex index %d out of range", v)
			}
		}
	}

	if len(tris) == 0 {
		tris = BoundaryFaces(vertices, tets)
	}
	if len(tris) == 0 {
		return geometry.Mesh{}, utils.GeometryErrorf(-1, "mesh has no triangles or tetrahedra")
	}
	return Compact(vertices, tris), nil
}

// tetFaces lists the faces of a tetrahedron with the opposite vertex last
var tetFaces = [4][4]int{
	{0, 1, 2, 3},
	{0, 1, 3, 2},
	{1, 2, 3, 0},
	{0, 2, 3, 1},
}

// BoundaryFaces returns the faces that belong to exactly one tetrahedron,
// ordered so panel normals point out of the volume. Faces are returned in
// tetrahedron then face order.
func BoundaryFaces(vertices []r3.Vec, tets [][4]int) [][3]int {
	count := make(map[[3]int]int, 4*len(tets))
	for _, tet := range tets {
		for _, f := range tetFaces {
			count[faceKey(tet[f[0]], tet[f[1]], tet[f[2]])]++
		}
	}

	var faces [][3]int
	for _, tet := range tets {
		for _, f := range tetFaces {
			a, b, c, d := tet[f[0]], tet[f[1]], tet[f[2]], tet[f[3]]
			if count[faceKey(a, b, c)] != 1 {
				continue
			}
			// cross(b-a, c-a) must point into the tetrahedron, since panel
			// normals use the opposite orientation
			n := r3.Cross(r3.Sub(vertices[b], vertices[a]), r3.Sub(vertices[c], vertices[a]))
			if r3.Dot(n, r3.Sub(vertices[d], vertices[a])) < 0 {
				b, c = c, b
			}
			faces = append(faces, [3]int{a, b, c})
		}
	}
	return faces
}

func faceKey(a, b, c int) [3]int {
	k := []int{a, b, c}
	sort.Ints(k)
	return [3]int{k[0], k[1], k[2]}
}

// Compact keeps only the vertices referenced by tris, numbered in order of
// first use
func Compact(vertices []r3.Vec, tris [][3]int) geometry.Mesh {
	index := make(map[int]int)
	m := geometry.Mesh{Triangles: make([][3]int, len(tris))}
	for t, tri := range tris {
		for j, v := range tri {
			id, ok := index[v]
			if !ok {
				id = len(m.Vertices)
				index[v] = id
				m.Vertices = append(m.Vertices, vertices[v])
			}
			m.Triangles[t][j] = id
		}
	}
	return m
}
