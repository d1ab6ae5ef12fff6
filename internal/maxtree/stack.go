package maxtree

// PixelStatus is the per-pixel flooding state.
type PixelStatus uint8

const (
	// Unvisited pixels have not been discovered yet.
	Unvisited PixelStatus = iota
	// Queued pixels sit in the pixel queue.
	Queued
	// Absorbed pixels belong to a node. They are never revisited.
	Absorbed
	// Excluded pixels are masked out and never flooded.
	Excluded
)

// StatusMap holds one PixelStatus per pixel. Every query is O(1).
type StatusMap []PixelStatus

// NewStatusMap returns a map for img with masked pixels pre-set to Excluded.
func NewStatusMap[T Scalar](img *Image[T]) StatusMap {
	s := make(StatusMap, img.Len())
	if img.Mask != nil {
		for i, m := range img.Mask {
			if m {
				s[i] = Excluded
			}
		}
	}
	return s
}

// Absorbed reports whether pixel p already belongs to a node.
func (s StatusMap) Absorbed(p int32) bool { return s[p] == Absorbed }

// Discovered reports whether pixel p was queued, absorbed or excluded.
func (s StatusMap) Discovered(p int32) bool { return s[p] != Unvisited }

// Frame is one open level of the flood: the node being grown at Level and
// its frontier, the number of queued pixels it discovered that are not yet
// absorbed. Every dequeued pixel is charged to the top frame, so a frame
// asked for a pixel with an empty frontier means the flood went wrong; a
// flood ends with the root's frontier exhausted.
type Frame[T Scalar] struct {
	Node     int32
	Level    T
	Frontier int
}

// Stack is the connectivity stack. Levels strictly increase in extremity
// from bottom to top, so its depth never exceeds the number of distinct
// intensity levels in the image.
type Stack[T Scalar] struct {
	frames []Frame[T]
}

// NewStack returns an empty stack.
func NewStack[T Scalar]() *Stack[T] {
	return &Stack[T]{frames: make([]Frame[T], 0, 64)}
}

// Len returns the number of open frames.
func (s *Stack[T]) Len() int { return len(s.frames) }

// Push opens a frame.
func (s *Stack[T]) Push(f Frame[T]) { s.frames = append(s.frames, f) }

// Top returns the most recently opened frame, or nil when empty.
func (s *Stack[T]) Top() *Frame[T] {
	if len(s.frames) == 0 {
		return nil
	}
	return &s.frames[len(s.frames)-1]
}

// Pop closes the top frame and returns it. The stack must not be empty.
func (s *Stack[T]) Pop() Frame[T] {
	n := len(s.frames) - 1
	f := s.frames[n]
	s.frames = s.frames[:n]
	return f
}

// Fold merges a closed frame into the current top frame: the pixels still
// queued on the closed frame's frontier are less extreme than its level and
// now wait on the top frame. It returns the top frame's node, which is the
// parent of child.Node.
func (s *Stack[T]) Fold(child Frame[T]) int32 {
	top := s.Top()
	top.Frontier += child.Frontier
	return top.Node
}
