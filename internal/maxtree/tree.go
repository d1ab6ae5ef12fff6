package maxtree

// NoNode marks the absence of a node: the parent of a root, or the
// canonical node of a masked pixel.
const NoNode int32 = -1

// Node is one connected component at one intensity level.
type Node[T Scalar] struct {
	// Level is the intensity at which the component is formed.
	Level T

	// Parent is the enclosing component one level less extreme, or NoNode.
	Parent int32

	// Area counts the pixels whose canonical node is this node. Pixels of
	// descendants are not included; see CumulativeAreas.
	Area int

	// Pixel is a representative pixel of the node: the one that opened it.
	Pixel int32
}

// Tree is an immutable max-tree (or min-tree) of an image.
//
// Nodes are numbered children-before-parents. All methods are safe for
// concurrent use.
type Tree[T Scalar] struct {
	Width        int
	Height       int
	Direction    Direction
	Connectivity Connectivity

	// Nodes is the node arena.
	Nodes []Node[T]

	// Canonical maps every pixel to the node that absorbed it, or NoNode for
	// masked pixels.
	Canonical []int32

	// Roots lists one root per connected region of valid pixels, in
	// ascending order of their first pixel.
	Roots []int32

	childStart []int32
	childList  []int32
	pixelStart []int32
	pixelList  []int32
}

// index builds the child and pixel indexes from Nodes and Canonical.
func (t *Tree[T]) index() {
	// Child index: counting sort on the parent.
	t.childStart = make([]int32, len(t.Nodes)+1)
	for _, n := range t.Nodes {
		if n.Parent != NoNode {
			t.childStart[n.Parent+1]++
		}
	}
	for i := 1; i < len(t.childStart); i++ {
		t.childStart[i] += t.childStart[i-1]
	}
	t.childList = make([]int32, t.childStart[len(t.Nodes)])
	fill := append([]int32(nil), t.childStart[:len(t.Nodes)]...)
	for i, n := range t.Nodes {
		if n.Parent != NoNode {
			t.childList[fill[n.Parent]] = int32(i)
			fill[n.Parent]++
		}
	}

	// Pixel index: counting sort on the canonical node.
	t.pixelStart = make([]int32, len(t.Nodes)+1)
	for i, n := range t.Nodes {
		t.pixelStart[i+1] = t.pixelStart[i] + int32(n.Area)
	}
	t.pixelList = make([]int32, t.pixelStart[len(t.Nodes)])
	copy(fill, t.pixelStart[:len(t.Nodes)])
	for p, c := range t.Canonical {
		if c != NoNode {
			t.pixelList[fill[c]] = int32(p)
			fill[c]++
		}
	}
}

// Len returns the number of nodes.
func (t *Tree[T]) Len() int { return len(t.Nodes) }

// Empty reports whether the tree has no nodes, as built from an empty or
// fully masked buffer.
func (t *Tree[T]) Empty() bool { return len(t.Nodes) == 0 }

// Root returns the first root, or NoNode for an empty tree.
func (t *Tree[T]) Root() int32 {
	if len(t.Roots) == 0 {
		return NoNode
	}
	return t.Roots[0]
}

// IsRoot reports whether node i has no parent.
func (t *Tree[T]) IsRoot(i int32) bool { return t.Nodes[i].Parent == NoNode }

// Level returns node i's level.
func (t *Tree[T]) Level(i int32) T { return t.Nodes[i].Level }

// Parent returns node i's parent, or NoNode.
func (t *Tree[T]) Parent(i int32) int32 { return t.Nodes[i].Parent }

// Children returns the children of node i. The slice aliases tree storage
// and must not be modified.
func (t *Tree[T]) Children(i int32) []int32 {
	return t.childList[t.childStart[i]:t.childStart[i+1]]
}

// OwnPixels returns the pixels whose canonical node is i, ascending. The
// slice aliases tree storage and must not be modified.
func (t *Tree[T]) OwnPixels(i int32) []int32 {
	return t.pixelList[t.pixelStart[i]:t.pixelStart[i+1]]
}

// Pixels returns every pixel of node i's component: its own pixels and
// those of all descendants.
func (t *Tree[T]) Pixels(i int32) []int32 {
	var out []int32
	t.Walk(i, func(n int32) bool {
		out = append(out, t.OwnPixels(n)...)
		return true
	})
	return out
}

// Walk visits node i and its descendants depth-first, parents before
// children. Returning false from fn skips the subtree below that node.
func (t *Tree[T]) Walk(i int32, fn func(n int32) bool) {
	stack := []int32{i}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(n) {
			continue
		}
		stack = append(stack, t.Children(n)...)
	}
}

// CumulativeAreas returns, per node, the pixel count of the node and all its
// descendants.
func (t *Tree[T]) CumulativeAreas() []int {
	areas := make([]int, len(t.Nodes))
	for i, n := range t.Nodes {
		areas[i] += n.Area
		if n.Parent != NoNode {
			areas[n.Parent] += areas[i]
		}
	}
	return areas
}

// Summary describes the shape of a tree.
type Summary struct {
	Nodes    int `json:"nodes"`
	Roots    int `json:"roots"`
	Leaves   int `json:"leaves"`
	MaxDepth int `json:"max_depth"`
	Pixels   int `json:"pixels"`
	Masked   int `json:"masked"`
}

// Summarize computes node, leaf and depth counts.
func (t *Tree[T]) Summarize() Summary {
	s := Summary{Nodes: len(t.Nodes), Roots: len(t.Roots), Pixels: len(t.Canonical)}
	depth := make([]int, len(t.Nodes))
	for i := len(t.Nodes) - 1; i >= 0; i-- {
		if p := t.Nodes[i].Parent; p != NoNode {
			depth[i] = depth[p] + 1
		}
		if depth[i] > s.MaxDepth {
			s.MaxDepth = depth[i]
		}
		if t.childStart[i] == t.childStart[i+1] {
			s.Leaves++
		}
	}
	for _, c := range t.Canonical {
		if c == NoNode {
			s.Masked++
		}
	}
	return s
}

// Validate checks the structural invariants of the tree: node order, level
// ordering along every edge, canonical assignment, area bookkeeping, unsplit
// plateaus and connected node regions.
func (t *Tree[T]) Validate() error {
	counted := make([]int, len(t.Nodes))
	for p, c := range t.Canonical {
		if c == NoNode {
			continue
		}
		if c < 0 || int(c) >= len(t.Nodes) {
			return invariantViolationf("pixel %d has canonical node %d of %d", p, c, len(t.Nodes))
		}
		counted[c]++
	}
	roots := 0
	for i, n := range t.Nodes {
		if counted[i] != n.Area {
			return invariantViolationf("node %d has area %d but owns %d pixels", i, n.Area, counted[i])
		}
		if n.Area == 0 {
			return invariantViolationf("node %d owns no pixels", i)
		}
		if t.Canonical[n.Pixel] != int32(i) {
			return invariantViolationf("representative pixel %d of node %d belongs to node %d",
				n.Pixel, i, t.Canonical[n.Pixel])
		}
		if n.Parent == NoNode {
			roots++
			continue
		}
		if int(n.Parent) <= i {
			return invariantViolationf("node %d precedes its parent %d", i, n.Parent)
		}
		if !Beyond(t.Direction, n.Level, t.Nodes[n.Parent].Level) {
			return invariantViolationf("node %d level %v is not beyond parent %d level %v",
				i, n.Level, n.Parent, t.Nodes[n.Parent].Level)
		}
	}
	if roots != len(t.Roots) {
		return invariantViolationf("%d parentless nodes but %d roots", roots, len(t.Roots))
	}
	if err := t.checkPlateaus(); err != nil {
		return err
	}
	return t.checkConnected()
}

// checkPlateaus verifies that adjacent pixels with equal levels share a
// canonical node. A pixel's canonical node is formed at the pixel's own
// intensity, so equal node levels mean equal intensities.
func (t *Tree[T]) checkPlateaus() error {
	var buf [8]int32
	for p, c := range t.Canonical {
		if c == NoNode {
			continue
		}
		for _, q := range t.Connectivity.neighbours(int32(p), t.Width, t.Height, buf[:]) {
			d := t.Canonical[q]
			if d == NoNode || d == c {
				continue
			}
			if t.Nodes[d].Level == t.Nodes[c].Level {
				return invariantViolationf("plateau at level %v split between nodes %d and %d",
					t.Nodes[c].Level, c, d)
			}
		}
	}
	return nil
}

// checkConnected verifies that every node's region, its own pixels and those
// of its descendants, is one connected component, and that pixels touching a
// node from outside its region are less extreme than the node. Nodes are
// visited children first while a union-find over pixels joins each node's
// own pixels to their neighbours inside the region; comps counts the
// disjoint sets left in each region.
func (t *Tree[T]) checkConnected() error {
	sets := make([]int32, len(t.Canonical))
	for i := range sets {
		sets[i] = int32(i)
	}
	find := func(p int32) int32 {
		for sets[p] != p {
			sets[p] = sets[sets[p]]
			p = sets[p]
		}
		return p
	}

	comps := make([]int, len(t.Nodes))
	var buf [8]int32
	for i := range t.Nodes {
		n := int32(i)
		comps[i] += t.Nodes[i].Area
		for _, p := range t.OwnPixels(n) {
			for _, q := range t.Connectivity.neighbours(p, t.Width, t.Height, buf[:]) {
				d := t.Canonical[q]
				if d == NoNode {
					continue
				}
				if !t.within(d, n) {
					if !Beyond(t.Direction, t.Nodes[i].Level, t.Nodes[d].Level) {
						return invariantViolationf("pixel %d of node %d at level %v lies outside node %d at level %v",
							q, d, t.Nodes[d].Level, n, t.Nodes[i].Level)
					}
					continue
				}
				if a, b := find(p), find(q); a != b {
					sets[a] = b
					comps[i]--
				}
			}
		}
		if comps[i] != 1 {
			return invariantViolationf("node %d at level %v spans %d disconnected regions",
				n, t.Nodes[i].Level, comps[i])
		}
		if parent := t.Nodes[i].Parent; parent != NoNode {
			comps[parent]++
		}
	}
	return nil
}

// within reports whether node d is n or one of its descendants. Levels
// strictly decrease in extremity towards the root, so the walk stops as soon
// as it passes n's level.
func (t *Tree[T]) within(d, n int32) bool {
	for d != n {
		if d == NoNode || !Beyond(t.Direction, t.Nodes[d].Level, t.Nodes[n].Level) {
			return false
		}
		d = t.Nodes[d].Parent
	}
	return true
}
