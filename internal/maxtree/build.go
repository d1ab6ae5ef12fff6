package maxtree

// Options configures a build.
type Options struct {
	// Direction selects a max-tree (Bright) or a min-tree (Dark).
	Direction Direction

	// Connectivity is Four or Eight; zero selects Four.
	Connectivity Connectivity

	// MaxPixels bounds the image size; zero selects DefaultMaxPixels.
	MaxPixels int
}

func (o Options) normalized() (Options, error) {
	if o.Direction != Bright && o.Direction != Dark {
		return o, invalidInputf("unknown direction %d", int(o.Direction))
	}
	c, err := ParseConnectivity(int(o.Connectivity))
	if err != nil {
		return o, err
	}
	o.Connectivity = c
	if o.MaxPixels <= 0 || o.MaxPixels > DefaultMaxPixels {
		o.MaxPixels = DefaultMaxPixels
	}
	return o, nil
}

// Build constructs the tree of img.
//
// Parameters:
//   - img: The pixel buffer. It is only read.
//   - opts: Flooding direction, connectivity and size limit.
//
// Returns:
//   - *Tree[T]: The finished tree. For an empty buffer the tree is empty.
//   - error: ErrInvalidInput for malformed buffers or options,
//     ErrResourceExhausted for oversized images, ErrInvariantViolation if
//     construction breaks the level ordering. No tree is returned on error.
func Build[T Scalar](img *Image[T], opts Options) (*Tree[T], error) {
	if img == nil {
		return nil, invalidInputf("nil image")
	}
	opts, err := opts.normalized()
	if err != nil {
		return nil, err
	}
	if err := img.Validate(opts.MaxPixels); err != nil {
		return nil, err
	}

	b := newBuilder(img, opts)
	for p := range b.status {
		if b.status[p] != Unvisited {
			continue
		}
		if err := b.flood(int32(p)); err != nil {
			return nil, err
		}
	}
	return b.finish()
}

type builder[T Scalar] struct {
	img       *Image[T]
	opts      Options
	status    StatusMap
	queue     *Queue[T]
	stack     *Stack[T]
	nodes     []Node[T]
	canonical []int32

	// closed lists nodes in the order their frames were closed; children
	// are always closed before their parents.
	closed []int32
	roots  []int32
	nbuf   [8]int32
}

func newBuilder[T Scalar](img *Image[T], opts Options) *builder[T] {
	b := &builder[T]{
		img:       img,
		opts:      opts,
		status:    NewStatusMap(img),
		queue:     NewQueue[T](opts.Direction, 1024),
		stack:     NewStack[T](),
		canonical: make([]int32, img.Len()),
	}
	for i := range b.canonical {
		b.canonical[i] = NoNode
	}
	return b
}

func (b *builder[T]) newNode(pixel int32, level T) int32 {
	b.nodes = append(b.nodes, Node[T]{Level: level, Parent: NoNode, Pixel: pixel})
	return int32(len(b.nodes) - 1)
}

// flood grows the tree of the connected region containing seed.
//
// The current pixel is explored before it is absorbed. A neighbour more
// extreme than the current level interrupts the exploration: the current
// pixel goes back to the queue, a frame opens at the neighbour's level and
// flooding continues from the neighbour. New frames therefore only open next
// to the component being grown, and the queue never holds a pixel more
// extreme than the top frame.
func (b *builder[T]) flood(seed int32) error {
	b.status[seed] = Queued
	b.open(seed)
	current := seed

	for {
		if q, ok := b.explore(current); ok {
			b.enqueue(current)
			b.open(q)
			current = q
			continue
		}
		if err := b.absorb(current); err != nil {
			return err
		}

		pixel, level, ok := b.queue.Pop()
		if !ok {
			break
		}
		if level != b.stack.Top().Level {
			if err := b.descend(pixel, level); err != nil {
				return err
			}
		}
		top := b.stack.Top()
		if top.Frontier == 0 {
			return invariantViolationf("pixel %d dequeued at level %v with an exhausted frame", pixel, level)
		}
		top.Frontier--
		current = pixel
	}

	for b.stack.Len() > 1 {
		child := b.stack.Pop()
		if err := b.attach(child.Node, b.stack.Fold(child)); err != nil {
			return err
		}
	}
	root := b.stack.Pop()
	if root.Frontier != 0 {
		return invariantViolationf("flood from pixel %d ended with %d pixels queued", seed, root.Frontier)
	}
	b.closed = append(b.closed, root.Node)
	b.roots = append(b.roots, root.Node)
	return nil
}

// open pushes a frame for a new node at pixel's level.
func (b *builder[T]) open(pixel int32) {
	level := b.img.Pix[pixel]
	b.stack.Push(Frame[T]{Node: b.newNode(pixel, level), Level: level})
}

// enqueue queues pixel on the top frame's frontier.
func (b *builder[T]) enqueue(pixel int32) {
	b.queue.Push(pixel, b.img.Pix[pixel])
	b.stack.Top().Frontier++
}

// explore queues the undiscovered neighbours of pixel. It stops at the first
// neighbour more extreme than pixel and returns it unqueued; the neighbours
// after it are left for when pixel is dequeued again.
func (b *builder[T]) explore(pixel int32) (int32, bool) {
	level := b.img.Pix[pixel]
	for _, q := range b.opts.Connectivity.neighbours(pixel, b.img.Width, b.img.Height, b.nbuf[:]) {
		if b.status[q] != Unvisited {
			continue
		}
		b.status[q] = Queued
		if Beyond(b.opts.Direction, b.img.Pix[q], level) {
			return q, true
		}
		b.enqueue(q)
	}
	return 0, false
}

// absorb assigns a fully explored pixel to the top frame's node.
func (b *builder[T]) absorb(pixel int32) error {
	top := b.stack.Top()
	if v := b.img.Pix[pixel]; v != top.Level {
		return invariantViolationf("pixel %d at level %v absorbed into node %d at level %v",
			pixel, v, top.Node, top.Level)
	}
	b.status[pixel] = Absorbed
	b.canonical[pixel] = top.Node
	b.nodes[top.Node].Area++
	return nil
}

// descend closes frames until the top frame sits at level, the level of the
// dequeued pixel. When no open frame sits at that level one is opened, so
// each closed node gets a parent at the right level.
func (b *builder[T]) descend(pixel int32, level T) error {
	for {
		child := b.stack.Pop()
		if below := b.stack.Top(); below == nil || Beyond(b.opts.Direction, level, below.Level) {
			b.stack.Push(Frame[T]{Node: b.newNode(pixel, level), Level: level})
		}
		if err := b.attach(child.Node, b.stack.Fold(child)); err != nil {
			return err
		}
		if b.stack.Top().Level == level {
			return nil
		}
	}
}

func (b *builder[T]) attach(child, parent int32) error {
	c, p := &b.nodes[child], b.nodes[parent]
	if !Beyond(b.opts.Direction, c.Level, p.Level) {
		return invariantViolationf("node %d at level %v attached below node %d at level %v",
			child, c.Level, parent, p.Level)
	}
	if c.Area == 0 {
		return invariantViolationf("node %d at level %v closed without pixels", child, c.Level)
	}
	c.Parent = parent
	b.closed = append(b.closed, child)
	return nil
}

// finish renumbers nodes in closing order and builds the child and pixel
// indexes.
func (b *builder[T]) finish() (*Tree[T], error) {
	if len(b.closed) != len(b.nodes) {
		return nil, invariantViolationf("%d nodes created but %d closed", len(b.nodes), len(b.closed))
	}
	remap := make([]int32, len(b.nodes))
	for newID, oldID := range b.closed {
		remap[oldID] = int32(newID)
	}

	t := &Tree[T]{
		Width:        b.img.Width,
		Height:       b.img.Height,
		Direction:    b.opts.Direction,
		Connectivity: b.opts.Connectivity,
		Nodes:        make([]Node[T], len(b.nodes)),
		Canonical:    b.canonical,
		Roots:        make([]int32, len(b.roots)),
	}
	for newID, oldID := range b.closed {
		n := b.nodes[oldID]
		if n.Parent != NoNode {
			n.Parent = remap[n.Parent]
		}
		t.Nodes[newID] = n
	}
	for i, r := range b.roots {
		t.Roots[i] = remap[r]
	}
	for p, c := range t.Canonical {
		if c != NoNode {
			t.Canonical[p] = remap[c]
		}
	}

	t.index()
	return t, nil
}
