package tree

import (
	"fmt"

	"github.com/notargets/BEMKernel/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultMaxLevel bounds the recursion for clusters of coincident points
const DefaultMaxLevel = 24

// Options controls the partition
type Options struct {
	NCRIT    int // Maximum panels per twig
	MaxLevel int // Deepest level a box may be split to
}

// Box is an axis-aligned cube of the octree. It owns the contiguous range
// Order[Start : Start+Count] of the sorted panel ordering.
type Box struct {
	Center   r3.Vec
	Radius   float64 // half the side length
	Level    int
	Parent   int    // -1 for the root
	Children [8]int // box index per octant, -1 when the octant is empty
	NChild   uint8  // bit o set when octant o has a child
	Start    int
	Count    int
}

// IsTwig reports whether the box is a leaf
func (b *Box) IsTwig() bool {
	return b.NChild == 0
}

// Tree is an octree over panel centroids. Order is the sort permutation
// (Order[k] is the original index of the k-th sorted panel) and Twigs lists
// the leaf boxes in sorted order.
type Tree struct {
	Boxes    []Box
	Order    []int
	Twigs    []int
	NCRIT    int
	MaxLevel int
}

// Build partitions points into boxes holding at most NCRIT points each. The
// root box is centered at center with half side radius. Children are
// reserved in octant order before descending, so the result depends only on
// the input.
func Build(points []r3.Vec, center r3.Vec, radius float64, opt Options) (*Tree, error) {
	if opt.NCRIT < 1 {
		return nil, utils.ConfigErrorf("NCRIT must be positive, got %d", opt.NCRIT)
	}
	if opt.MaxLevel < 0 {
		return nil, utils.ConfigErrorf("MaxLevel must be non-negative, got %d", opt.MaxLevel)
	}
	if len(points) > 0 && !(radius > 0) {
		return nil, utils.ConfigErrorf("root radius must be positive, got %g", radius)
	}

	t := &Tree{
		Order:    make([]int, len(points)),
		NCRIT:    opt.NCRIT,
		MaxLevel: opt.MaxLevel,
	}
	for i := range t.Order {
		t.Order[i] = i
	}
	t.Boxes = append(t.Boxes, Box{
		Center: center,
		Radius: radius,
		Parent: -1,
		Count:  len(points),
	})
	clearChildren(&t.Boxes[0])

	scratch := make([]int, len(points))
	t.split(0, points, scratch)
	t.findTwigs(0)
	return t, nil
}

func clearChildren(b *Box) {
	for o := range b.Children {
		b.Children[o] = -1
	}
}

// octant returns the child octant of p relative to c
func octant(p, c r3.Vec) int {
	o := 0
	if p.X > c.X {
		o |= 1
	}
	if p.Y > c.Y {
		o |= 2
	}
	if p.Z > c.Z {
		o |= 4
	}
	return o
}

func (t *Tree) split(id int, points []r3.Vec, scratch []int) {
	box := t.Boxes[id]
	if box.Count <= t.NCRIT || box.Level >= t.MaxLevel {
		return
	}

	// stable bucket of the box range by octant
	idx := t.Order[box.Start : box.Start+box.Count]
	var counts [8]int
	for _, i := range idx {
		counts[octant(points[i], box.Center)]++
	}
	var offsets [8]int
	for o := 1; o < 8; o++ {
		offsets[o] = offsets[o-1] + counts[o-1]
	}
	buf := scratch[box.Start : box.Start+box.Count]
	fill := offsets
	for _, i := range idx {
		o := octant(points[i], box.Center)
		buf[fill[o]] = i
		fill[o]++
	}
	copy(idx, buf)

	// reserve child slots before recursing
	half := box.Radius / 2
	var children []int
	for o := 0; o < 8; o++ {
		if counts[o] == 0 {
			continue
		}
		child := Box{
			Center: r3.Vec{
				X: box.Center.X + sign(o&1)*half,
				Y: box.Center.Y + sign(o&2)*half,
				Z: box.Center.Z + sign(o&4)*half,
			},
			Radius: half,
			Level:  box.Level + 1,
			Parent: id,
			Start:  box.Start + offsets[o],
			Count:  counts[o],
		}
		clearChildren(&child)
		cid := len(t.Boxes)
		t.Boxes = append(t.Boxes, child)
		t.Boxes[id].Children[o] = cid
		t.Boxes[id].NChild |= 1 << o
		children = append(children, cid)
	}

	for _, cid := range children {
		t.split(cid, points, scratch)
	}
}

func sign(bit int) float64 {
	if bit != 0 {
		return 1
	}
	return -1
}

// findTwigs collects the leaves depth first, which is sorted order
func (t *Tree) findTwigs(id int) {
	b := &t.Boxes[id]
	if b.IsTwig() {
		if b.Count > 0 {
			t.Twigs = append(t.Twigs, id)
		}
		return
	}
	for _, cid := range b.Children {
		if cid >= 0 {
			t.findTwigs(cid)
		}
	}
}

// Permutation returns the sort permutation with its inverse
func (t *Tree) Permutation() (utils.Permutation, error) {
	return utils.NewPermutation(t.Order)
}

// Depth returns the deepest level in the tree
func (t *Tree) Depth() int {
	depth := 0
	for i := range t.Boxes {
		if t.Boxes[i].Level > depth {
			depth = t.Boxes[i].Level
		}
	}
	return depth
}

// Validate checks that Order is a bijection, child ranges tile their parent
// without overlap, and twigs respect NCRIT below MaxLevel
func (t *Tree) Validate() error {
	if _, err := t.Permutation(); err != nil {
		return fmt.Errorf("invalid sort order: %w", err)
	}
	for id := range t.Boxes {
		b := &t.Boxes[id]
		if b.IsTwig() {
			if b.Count > t.NCRIT && b.Level < t.MaxLevel {
				return fmt.Errorf("twig %d holds %d panels > NCRIT %d at level %d",
					id, b.Count, t.NCRIT, b.Level)
			}
			continue
		}
		next := b.Start
		for o, cid := range b.Children {
			if cid < 0 {
				continue
			}
			c := &t.Boxes[cid]
			if c.Parent != id {
				return fmt.Errorf("box %d octant %d: child %d has parent %d", id, o, cid, c.Parent)
			}
			if c.Start != next {
				return fmt.Errorf("box %d: child %d starts at %d, expected %d", id, cid, c.Start, next)
			}
			next += c.Count
		}
		if next != b.Start+b.Count {
			return fmt.Errorf("box %d: children cover [%d,%d), expected [%d,%d)",
				id, b.Start, next, b.Start, b.Start+b.Count)
		}
	}
	return nil
}
