package device

import (
	"fmt"
	"sort"
	"unsafe"

	"github.com/notargets/BEMKernel/precond"
	"github.com/notargets/BEMKernel/surface"
	"github.com/notargets/gocca"
	"gonum.org/v1/gonum/spatial/r3"
)

// DataType of a mirrored array
type DataType uint8

const (
	Float64 DataType = iota
	Int32
)

func (d DataType) size() int64 {
	if d == Int32 {
		return 4
	}
	return 8
}

type array struct {
	mem      *gocca.OCCAMemory // nil for empty arrays
	length   int
	dataType DataType
}

// Mirror holds device copies of the sorted surface arrays, keyed by name
type Mirror struct {
	Device *gocca.OCCADevice
	arrays map[string]array
}

// New creates an empty mirror on dev
func New(dev *gocca.OCCADevice) *Mirror {
	return &Mirror{
		Device: dev,
		arrays: make(map[string]array),
	}
}

// Upload allocates device memory for data and copies it. An existing array
// with the same name is replaced.
func (m *Mirror) Upload(name string, data interface{}) error {
	var (
		ptr unsafe.Pointer
		a   array
	)
	switch d := data.(type) {
	case []float64:
		a = array{length: len(d), dataType: Float64}
		if len(d) > 0 {
			ptr = unsafe.Pointer(&d[0])
		}
	case []int32:
		a = array{length: len(d), dataType: Int32}
		if len(d) > 0 {
			ptr = unsafe.Pointer(&d[0])
		}
	default:
		return fmt.Errorf("unsupported type for %s: %T", name, data)
	}

	m.release(name)
	if a.length > 0 {
		bytes := int64(a.length) * a.dataType.size()
		a.mem = m.Device.Malloc(bytes, nil, nil)
		if a.mem == nil {
			return fmt.Errorf("failed to allocate %d bytes for %s", bytes, name)
		}
		a.mem.CopyFrom(ptr, bytes)
	}
	m.arrays[name] = a
	return nil
}

func (m *Mirror) lookup(name string, want DataType) (array, error) {
	a, ok := m.arrays[name]
	if !ok {
		return array{}, fmt.Errorf("no device memory allocated for %s", name)
	}
	if a.dataType != want {
		return array{}, fmt.Errorf("%s is not of the requested type", name)
	}
	return a, nil
}

// Float64s copies a float64 array back from the device
func (m *Mirror) Float64s(name string) ([]float64, error) {
	a, err := m.lookup(name, Float64)
	if err != nil {
		return nil, err
	}
	out := make([]float64, a.length)
	if a.length > 0 {
		m.Device.Finish()
		a.mem.CopyTo(unsafe.Pointer(&out[0]), int64(a.length)*8)
	}
	return out, nil
}

// Int32s copies an int32 array back from the device
func (m *Mirror) Int32s(name string) ([]int32, error) {
	a, err := m.lookup(name, Int32)
	if err != nil {
		return nil, err
	}
	out := make([]int32, a.length)
	if a.length > 0 {
		m.Device.Finish()
		a.mem.CopyTo(unsafe.Pointer(&out[0]), int64(a.length)*4)
	}
	return out, nil
}

// Memory returns the device memory of name, nil when absent or empty
func (m *Mirror) Memory(name string) *gocca.OCCAMemory {
	return m.arrays[name].mem
}

// Len returns the element count of name
func (m *Mirror) Len(name string) int {
	return m.arrays[name].length
}

// Names lists the mirrored arrays
func (m *Mirror) Names() []string {
	names := make([]string, 0, len(m.arrays))
	for name := range m.arrays {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Mirror) release(name string) {
	if a, ok := m.arrays[name]; ok && a.mem != nil {
		a.mem.Free()
	}
	delete(m.arrays, name)
}

// Free releases all device memory. The device itself is owned by the caller.
func (m *Mirror) Free() {
	for name := range m.arrays {
		m.release(name)
	}
}

// UploadState mirrors every sorted array of s. Vectors are split into x, y,
// z components, gauss points keep their per-panel stride and complex
// preconditioner entries are interleaved (re, im).
func UploadState[T precond.Scalar](m *Mirror, s *surface.State[T]) error {
	sorted := &s.Sorted
	uploads := map[string]interface{}{
		"area":       sorted.Areas,
		"sglInt_int": sorted.SglIntInt,
		"sglInt_ext": sorted.SglIntExt,
		"xk":         s.Edge.X,
		"wk":         s.Edge.W,
		"twigOf":     toInt32(sorted.TwigOf),
		"offTwig":    toInt32(s.Layout.Offsets),
		"sizeTwig":   toInt32(s.Layout.Sizes),
	}
	addVec := func(prefix string, v []r3.Vec) {
		x, y, z := components(v)
		uploads[prefix+"x"], uploads[prefix+"y"], uploads[prefix+"z"] = x, y, z
	}
	addVec("centroid_", sorted.Centroids)
	addVec("normal_", sorted.Normals)
	addVec("gauss_", sorted.GaussPoints)
	addVec("twigCenter_", sorted.TwigCenters)

	vertices := make([]float64, 0, 9*len(sorted.Vertices))
	for _, tri := range sorted.Vertices {
		for _, v := range tri {
			vertices = append(vertices, v.X, v.Y, v.Z)
		}
	}
	uploads["vertex"] = vertices

	for r, row := range s.Precond.Rows() {
		uploads[fmt.Sprintf("precond_%d", r)] = interleave(row)
	}

	names := make([]string, 0, len(uploads))
	for name := range uploads {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := m.Upload(name, uploads[name]); err != nil {
			return fmt.Errorf("failed to mirror %s: %w", name, err)
		}
	}
	return nil
}

func components(v []r3.Vec) (x, y, z []float64) {
	x = make([]float64, len(v))
	y = make([]float64, len(v))
	z = make([]float64, len(v))
	for i, p := range v {
		x[i], y[i], z[i] = p.X, p.Y, p.Z
	}
	return x, y, z
}

func toInt32(v []int) []int32 {
	out := make([]int32, len(v))
	for i, x := range v {
		out[i] = int32(x)
	}
	return out
}

// interleave flattens a real or complex row into float64 values
func interleave[T precond.Scalar](row []T) []float64 {
	switch r := any(row).(type) {
	case []float64:
		return r
	case []complex128:
		out := make([]float64, 0, 2*len(r))
		for _, c := range r {
			out = append(out, real(c), imag(c))
		}
		return out
	}
	return nil
}
