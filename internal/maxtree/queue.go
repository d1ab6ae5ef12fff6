package maxtree

// queueEntry is one queued pixel with its intensity.
type queueEntry[T Scalar] struct {
	level T
	pixel int32
}

// Queue is the ordered pixel queue: a binary heap that yields the most
// extreme queued pixel first (highest for Bright, lowest for Dark). Equal
// levels are yielded in ascending pixel index order, which makes trees
// reproducible across runs.
//
// The zero value is not usable; create queues with NewQueue.
type Queue[T Scalar] struct {
	dir   Direction
	items []queueEntry[T]
}

// NewQueue returns an empty queue ordered for dir. capacity is a size hint.
func NewQueue[T Scalar](dir Direction, capacity int) *Queue[T] {
	return &Queue[T]{dir: dir, items: make([]queueEntry[T], 0, capacity)}
}

// Len returns the number of queued pixels.
func (q *Queue[T]) Len() int { return len(q.items) }

// Empty reports whether nothing is queued. An empty queue marks the end of
// a flood; it is not an error.
func (q *Queue[T]) Empty() bool { return len(q.items) == 0 }

// Push queues pixel at level.
func (q *Queue[T]) Push(pixel int32, level T) {
	q.items = append(q.items, queueEntry[T]{level: level, pixel: pixel})
	q.up(len(q.items) - 1)
}

// Peek returns the extremal entry without removing it. ok is false when the
// queue is empty.
func (q *Queue[T]) Peek() (pixel int32, level T, ok bool) {
	if len(q.items) == 0 {
		return 0, level, false
	}
	return q.items[0].pixel, q.items[0].level, true
}

// Pop removes and returns the extremal entry. ok is false when the queue is
// empty.
func (q *Queue[T]) Pop() (pixel int32, level T, ok bool) {
	n := len(q.items) - 1
	if n < 0 {
		return 0, level, false
	}
	top := q.items[0]
	q.items[0] = q.items[n]
	q.items = q.items[:n]
	if n > 0 {
		q.down(0)
	}
	return top.pixel, top.level, true
}

// before reports whether entry i must leave the queue before entry j.
func (q *Queue[T]) before(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.level == b.level {
		return a.pixel < b.pixel
	}
	return Beyond(q.dir, a.level, b.level)
}

func (q *Queue[T]) up(j int) {
	for j > 0 {
		i := (j - 1) / 2
		if !q.before(j, i) {
			break
		}
		q.items[i], q.items[j] = q.items[j], q.items[i]
		j = i
	}
}

func (q *Queue[T]) down(i int) {
	n := len(q.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		j := l
		if r := l + 1; r < n && q.before(r, l) {
			j = r
		}
		if !q.before(j, i) {
			return
		}
		q.items[i], q.items[j] = q.items[j], q.items[i]
		i = j
	}
}
