package significance

import (
	"math"

	"github.com/cockroachdb/errors"

	"github.com/ironsheep/mtobjects/internal/maxtree"
)

// Params are the significance-test knobs.
type Params struct {
	// Method selects the test.
	Method Method

	// Sigma is the background noise standard deviation, in intensity units.
	Sigma float64

	// SigmaMultiplier is k of the AreaScaled test.
	SigmaMultiplier float64

	// AreaExponent is β of the AreaScaled test.
	AreaExponent float64

	// Alpha is the false-positive rate of the ChiSquared test.
	Alpha float64

	// MinArea is the smallest cumulative area a significant node may have.
	MinArea int

	// Floor is the distance, in units of Sigma beyond Sky, a node's level
	// must exceed before it can be significant. Without a floor the large
	// components just above the sky would absorb every source they hold.
	// Zero disables the floor; evidence is then relative to the parent only.
	Floor float64

	// Sky is the level Floor is measured from: zero for
	// background-subtracted images, the background mean otherwise.
	Sky float64

	// MoveFactor moves an object's region up its main branch until the
	// level clears background + MoveFactor·σ. Zero keeps the accepted node.
	MoveFactor float64

	// Deblend lets significant nodes that branch off an object's main
	// branch become nested objects.
	Deblend bool
}

// DefaultParams returns the documented defaults: a 5σ area-scaled test with
// β = 0.5, α = 1e-6 for the χ² test, and deblending on.
func DefaultParams() Params {
	return Params{
		Method:          AreaScaled,
		Sigma:           1,
		SigmaMultiplier: 5,
		AreaExponent:    0.5,
		Alpha:           1e-6,
		MinArea:         1,
		Deblend:         true,
	}
}

// Validate rejects parameter sets the tests cannot use.
func (p Params) Validate() error {
	switch {
	case p.Method != AreaScaled && p.Method != ChiSquared:
		return errors.Wrapf(maxtree.ErrInvalidInput, "unknown method %d", int(p.Method))
	case p.Sigma < 0 || math.IsNaN(p.Sigma) || math.IsInf(p.Sigma, 0):
		return errors.Wrapf(maxtree.ErrInvalidInput, "sigma must be finite and non-negative, got %v", p.Sigma)
	case p.SigmaMultiplier < 0 || math.IsNaN(p.SigmaMultiplier):
		return errors.Wrapf(maxtree.ErrInvalidInput, "sigma multiplier must be non-negative, got %v", p.SigmaMultiplier)
	case math.IsNaN(p.AreaExponent) || math.IsInf(p.AreaExponent, 0):
		return errors.Wrapf(maxtree.ErrInvalidInput, "area exponent must be finite, got %v", p.AreaExponent)
	case p.Method == ChiSquared && !(p.Alpha > 0 && p.Alpha < 1):
		return errors.Wrapf(maxtree.ErrInvalidInput, "alpha must be in (0, 1), got %v", p.Alpha)
	case p.MinArea < 0:
		return errors.Wrapf(maxtree.ErrInvalidInput, "min area must be non-negative, got %d", p.MinArea)
	case p.Floor < 0 || math.IsNaN(p.Floor) || math.IsInf(p.Floor, 0):
		return errors.Wrapf(maxtree.ErrInvalidInput, "floor must be finite and non-negative, got %v", p.Floor)
	case math.IsNaN(p.Sky) || math.IsInf(p.Sky, 0):
		return errors.Wrapf(maxtree.ErrInvalidInput, "sky must be finite, got %v", p.Sky)
	case p.MoveFactor < 0 || math.IsNaN(p.MoveFactor):
		return errors.Wrapf(maxtree.ErrInvalidInput, "move factor must be non-negative, got %v", p.MoveFactor)
	}
	return nil
}

// Decision is the tester's verdict on one node.
type Decision struct {
	Status   Status   `json:"status"`
	Evidence Evidence `json:"evidence"`

	// Owner is the accepted node whose object covers this node, or NoNode.
	// For accepted nodes it is the node itself.
	Owner int32 `json:"owner"`
}

// Result is the outcome of one Tester run.
type Result[T maxtree.Scalar] struct {
	Tree      *maxtree.Tree[T]
	Stats     []Stats[T]
	Decisions []Decision

	// Objects lists accepted nodes in discovery order (top-down).
	Objects []Object[T]

	// Labels maps every pixel to an object ID, or 0 for background and
	// masked pixels.
	Labels []int32
}

// Tester runs the attribute and significance passes over trees.
//
// A Tester holds only its parameters; each Run allocates its own state, so
// one Tester may be used from several goroutines.
type Tester[T maxtree.Scalar] struct {
	params Params
}

// NewTester validates p and returns a tester.
func NewTester[T maxtree.Scalar](p Params) (*Tester[T], error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Tester[T]{params: p}, nil
}

// Params returns the tester's parameters.
func (t *Tester[T]) Params() Params { return t.params }

// Run accumulates statistics over img, decides every node of tree and
// extracts the accepted objects.
//
// Returns:
//   - *Result[T]: Per-node statistics and decisions, objects and the label
//     map. An empty tree yields an empty result.
//   - error: ErrInvalidInput if img does not match tree,
//     ErrInvariantViolation if a node's state machine would move backwards.
func (t *Tester[T]) Run(tree *maxtree.Tree[T], img *maxtree.Image[T]) (*Result[T], error) {
	if tree == nil || img == nil {
		return nil, errors.Wrap(maxtree.ErrInvalidInput, "nil tree or image")
	}
	stats, err := Accumulate(tree, img)
	if err != nil {
		return nil, err
	}

	n := tree.Len()
	r := &Result[T]{
		Tree:      tree,
		Stats:     stats,
		Decisions: make([]Decision, n),
	}
	for i := range r.Decisions {
		r.Decisions[i].Owner = maxtree.NoNode
		if r.Decisions[i].Status, err = advance(int32(i), Unvisited, StatisticsComputed); err != nil {
			return nil, err
		}
	}

	if err := t.decide(r); err != nil {
		return nil, err
	}
	r.extract(img, t.params, t.regionRoots(r))
	return r, nil
}

// mainChildren returns, per node, the child with the largest flux above the
// node's level, or NoNode for leaves. Ties go to the lower node index.
func mainChildren[T maxtree.Scalar](tree *maxtree.Tree[T], stats []Stats[T]) []int32 {
	sign := T(1)
	if tree.Direction == maxtree.Dark {
		sign = -1
	}
	main := make([]int32, tree.Len())
	for i := range main {
		main[i] = maxtree.NoNode
		level := tree.Level(int32(i))
		var best T
		for _, c := range tree.Children(int32(i)) {
			s := stats[c]
			volume := sign * (s.Mean - level) * T(s.Area)
			if main[i] == maxtree.NoNode || volume > best || (volume == best && c < main[i]) {
				main[i], best = c, volume
			}
		}
	}
	return main
}

// decide runs the top-down pass. Node indices ascend children-first, so a
// descending sweep sees every parent before its children.
func (t *Tester[T]) decide(r *Result[T]) error {
	tree := r.Tree
	crit := newCriterion[T](t.params, tree.Direction)
	main := mainChildren(tree, r.Stats)
	useFloor := t.params.Floor > 0
	offset := t.params.Floor * t.params.Sigma
	if tree.Direction == maxtree.Dark {
		offset = -offset
	}
	floor := T(t.params.Sky + offset)

	// onMain marks nodes on the main branch of their owning object.
	onMain := make([]bool, tree.Len())

	for i := tree.Len() - 1; i >= 0; i-- {
		n := int32(i)
		d := &r.Decisions[i]
		parent := tree.Parent(n)

		var next Status
		if parent == maxtree.NoNode {
			next = Rejected
		} else {
			d.Evidence = crit.Evaluate(r.Stats[i], tree.Level(parent))
			if useFloor && !maxtree.Beyond(tree.Direction, tree.Level(n), floor) {
				d.Evidence.Significant = false
			}
			owner := r.Decisions[parent].Owner
			if owner != maxtree.NoNode {
				onMain[i] = main[parent] == n && (parent == owner || onMain[parent])
			}
			switch {
			case d.Evidence.Significant && owner == maxtree.NoNode:
				next = Accepted
			case d.Evidence.Significant && t.params.Deblend && !onMain[i]:
				next = Accepted
			case owner != maxtree.NoNode:
				next = Merged
				d.Owner = owner
			default:
				next = Rejected
			}
		}
		if next == Accepted {
			d.Owner = n
			onMain[i] = false
		}
		var err error
		if d.Status, err = advance(n, d.Status, next); err != nil {
			return err
		}
	}
	return nil
}

// regionRoots returns, per accepted node, the node whose subtree forms the
// object's region after moving up the main branch.
func (t *Tester[T]) regionRoots(r *Result[T]) map[int32]int32 {
	tree := r.Tree
	roots := make(map[int32]int32)
	var main []int32
	for i := tree.Len() - 1; i >= 0; i-- {
		n := int32(i)
		if r.Decisions[i].Status != Accepted {
			continue
		}
		root := n
		if t.params.MoveFactor > 0 {
			if main == nil {
				main = mainChildren(tree, r.Stats)
			}
			sign := T(1)
			if tree.Direction == maxtree.Dark {
				sign = -1
			}
			target := tree.Level(tree.Parent(n)) + sign*T(t.params.MoveFactor*t.params.Sigma)
			for maxtree.Beyond(tree.Direction, target, tree.Level(root)) && main[root] != maxtree.NoNode {
				root = main[root]
			}
		}
		roots[n] = root
	}
	return roots
}
