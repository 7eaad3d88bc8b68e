package vector

import "container/heap"

// candidateQueue is a max-heap of candidates keyed by (distance, slot), so the
// root is always the worst of the current top k.
type candidateQueue []Neighbor

func (q candidateQueue) Len() int { return len(q) }

func (q candidateQueue) Less(i, j int) bool { return worse(q[i], q[j]) }

func (q candidateQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *candidateQueue) Push(x any) {
	*q = append(*q, x.(Neighbor))
}

func (q *candidateQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// offer keeps the k best candidates seen so far.
func (q *candidateQueue) offer(c Neighbor, k int) {
	if q.Len() < k {
		heap.Push(q, c)
		return
	}
	if worse((*q)[0], c) {
		(*q)[0] = c
		heap.Fix(q, 0)
	}
}

// drain empties the queue into a slice ordered best first.
func (q *candidateQueue) drain() []Neighbor {
	out := make([]Neighbor, q.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(q).(Neighbor)
	}
	return out
}

// worse reports whether a ranks after b: larger distance, or equal distance
// and a later slot.
func worse(a, b Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance > b.Distance
	}
	return a.Slot > b.Slot
}
