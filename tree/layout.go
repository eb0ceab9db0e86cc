package tree

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// TwigLayout describes how the sorted panels are grouped into twigs, the unit
// of work for direct (P2P) interaction lists
type TwigLayout struct {
	// Twig t owns sorted panels [Offsets[t], Offsets[t+1])
	Offsets []int
	Sizes   []int

	// MaxTwigSize is max(Sizes), the padded inner loop length for devices
	MaxTwigSize int

	// TwigOf[k] is the twig holding sorted panel k
	TwigOf []int
}

// Layout builds the twig layout of the tree
func (t *Tree) Layout() TwigLayout {
	l := TwigLayout{
		Offsets: make([]int, len(t.Twigs)+1),
		Sizes:   make([]int, len(t.Twigs)),
		TwigOf:  make([]int, len(t.Order)),
	}
	for tw, id := range t.Twigs {
		b := &t.Boxes[id]
		l.Offsets[tw] = b.Start
		l.Sizes[tw] = b.Count
		if b.Count > l.MaxTwigSize {
			l.MaxTwigSize = b.Count
		}
		for k := b.Start; k < b.Start+b.Count; k++ {
			l.TwigOf[k] = tw
		}
	}
	l.Offsets[len(t.Twigs)] = len(t.Order)
	return l
}

// NumTwigs returns the number of twigs
func (l TwigLayout) NumTwigs() int {
	return len(l.Sizes)
}

// TwigRange returns the sorted panel range of twig tw
func (l TwigLayout) TwigRange(tw int) (start, end int) {
	if tw < 0 || tw >= len(l.Sizes) {
		return 0, 0
	}
	return l.Offsets[tw], l.Offsets[tw+1]
}

// Validate checks that the twigs tile the sorted panels
func (l TwigLayout) Validate() error {
	if len(l.Offsets) != len(l.Sizes)+1 {
		return fmt.Errorf("offsets length %d != twigs %d + 1", len(l.Offsets), len(l.Sizes))
	}
	actualMax := 0
	for tw, size := range l.Sizes {
		if l.Offsets[tw]+size != l.Offsets[tw+1] {
			return fmt.Errorf("twig %d: offset %d + size %d != next offset %d",
				tw, l.Offsets[tw], size, l.Offsets[tw+1])
		}
		if size > actualMax {
			actualMax = size
		}
	}
	if actualMax != l.MaxTwigSize {
		return fmt.Errorf("computed MaxTwigSize %d != stored MaxTwigSize %d", actualMax, l.MaxTwigSize)
	}
	return nil
}

// TwigCenters returns, per sorted panel, the center of the twig box holding it
func (t *Tree) TwigCenters() []r3.Vec {
	centers := make([]r3.Vec, len(t.Order))
	for _, id := range t.Twigs {
		b := &t.Boxes[id]
		for k := b.Start; k < b.Start+b.Count; k++ {
			centers[k] = b.Center
		}
	}
	return centers
}
