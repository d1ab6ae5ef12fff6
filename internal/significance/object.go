package significance

import (
	"github.com/ironsheep/mtobjects/internal/maxtree"
)

// Object is one detected source.
type Object[T maxtree.Scalar] struct {
	// ID is the object's label, counting from 1 in discovery order.
	ID int32

	// Node is the accepted max-tree node.
	Node int32

	// RegionNode is the node whose component delimits the object after
	// moving up; it equals Node when no move is configured.
	RegionNode int32

	// Parent is the ID of the enclosing object, or 0.
	Parent int32

	// Stats cover the pixels labelled with ID only, so nested objects
	// are not counted twice.
	Stats Stats[T]

	// Evidence is the accepted node's test result.
	Evidence Evidence

	// Level is the RegionNode's level; Background is the level of the
	// accepted node's parent.
	Level      T
	Background T

	// Pixels are the labelled pixel indices in ascending order.
	Pixels []int32
}

// Area returns the number of labelled pixels.
func (o *Object[T]) Area() int { return len(o.Pixels) }

// extract labels the tree top-down and collects the objects.
func (r *Result[T]) extract(img *maxtree.Image[T], p Params, roots map[int32]int32) {
	tree := r.Tree
	n := tree.Len()
	nodeLabel := make([]int32, n)
	pending := make(map[int32]int32)
	var next int32

	for i := n - 1; i >= 0; i-- {
		node := int32(i)
		var inherited int32
		if parent := tree.Parent(node); parent != maxtree.NoNode {
			inherited = nodeLabel[parent]
		}
		if id, ok := pending[node]; ok {
			nodeLabel[i] = id
			continue
		}
		nodeLabel[i] = inherited
		if r.Decisions[i].Status != Accepted {
			continue
		}

		next++
		region := roots[node]
		obj := Object[T]{
			ID:         next,
			Node:       node,
			RegionNode: region,
			Parent:     inherited,
			Evidence:   r.Decisions[i].Evidence,
			Level:      tree.Level(region),
			Background: tree.Level(tree.Parent(node)),
		}
		r.Objects = append(r.Objects, obj)
		if region == node {
			nodeLabel[i] = next
		} else {
			pending[region] = next
		}
	}

	r.Labels = make([]int32, len(tree.Canonical))
	for p, c := range tree.Canonical {
		if c == maxtree.NoNode {
			continue
		}
		id := nodeLabel[c]
		r.Labels[p] = id
		if id == 0 {
			continue
		}
		obj := &r.Objects[id-1]
		obj.Pixels = append(obj.Pixels, int32(p))
		obj.Stats.Add(img.Pix[p], tree.Direction)
	}
}

// ObjectAt returns the object covering pixel p, or nil.
func (r *Result[T]) ObjectAt(p int) *Object[T] {
	if p < 0 || p >= len(r.Labels) || r.Labels[p] == 0 {
		return nil
	}
	return &r.Objects[r.Labels[p]-1]
}

// Counts tallies the final node statuses.
func (r *Result[T]) Counts() map[Status]int {
	counts := make(map[Status]int, 3)
	for _, d := range r.Decisions {
		counts[d.Status]++
	}
	return counts
}
