package significance

import (
	"github.com/cockroachdb/errors"

	"github.com/ironsheep/mtobjects/internal/maxtree"
)

// Stats are cumulative statistics of a node's component: its own pixels and
// those of every descendant.
type Stats[T maxtree.Scalar] struct {
	// Area is the pixel count.
	Area int

	// Flux is the sum of intensities.
	Flux T

	// Mean is the running mean intensity.
	Mean T

	// M2 is the sum of squared deviations from Mean.
	M2 T

	// Peak is the most extreme intensity in flooding direction.
	Peak T
}

// Add folds one intensity into the statistics (Welford's update).
func (s *Stats[T]) Add(v T, dir maxtree.Direction) {
	if s.Area == 0 || maxtree.Beyond(dir, v, s.Peak) {
		s.Peak = v
	}
	s.Area++
	s.Flux += v
	delta := v - s.Mean
	s.Mean += delta / T(s.Area)
	s.M2 += delta * (v - s.Mean)
}

// Merge folds another component's statistics into s (Chan et al. pairwise
// combination).
func (s *Stats[T]) Merge(o Stats[T], dir maxtree.Direction) {
	if o.Area == 0 {
		return
	}
	if s.Area == 0 {
		*s = o
		return
	}
	if maxtree.Beyond(dir, o.Peak, s.Peak) {
		s.Peak = o.Peak
	}
	na, nb := T(s.Area), T(o.Area)
	n := na + nb
	delta := o.Mean - s.Mean
	s.Mean += delta * nb / n
	s.M2 += o.M2 + delta*delta*na*nb/n
	s.Flux += o.Flux
	s.Area += o.Area
}

// Variance returns the population variance.
func (s Stats[T]) Variance() T {
	if s.Area < 2 {
		return 0
	}
	return s.M2 / T(s.Area)
}

// PowerAbout returns Σ(x − ref)² over the component.
func (s Stats[T]) PowerAbout(ref T) T {
	d := s.Mean - ref
	return s.M2 + T(s.Area)*d*d
}

// Accumulate computes cumulative statistics for every node of tree over the
// intensities of img. Nodes are visited children first, so each node's
// statistics are final before they are merged into its parent.
func Accumulate[T maxtree.Scalar](tree *maxtree.Tree[T], img *maxtree.Image[T]) ([]Stats[T], error) {
	if img.Width != tree.Width || img.Height != tree.Height || img.Len() != len(tree.Canonical) {
		return nil, errors.Wrapf(maxtree.ErrInvalidInput,
			"image %dx%d does not match tree %dx%d", img.Width, img.Height, tree.Width, tree.Height)
	}
	stats := make([]Stats[T], tree.Len())
	for i := range tree.Nodes {
		n := int32(i)
		for _, p := range tree.OwnPixels(n) {
			stats[i].Add(img.Pix[p], tree.Direction)
		}
		if parent := tree.Parent(n); parent != maxtree.NoNode {
			stats[parent].Merge(stats[i], tree.Direction)
		}
	}
	return stats, nil
}
