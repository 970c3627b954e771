package service

import "github.com/Wyydra/yacall/internal/core/domain"

// candidateQueue holds remote ICE candidates that arrived before the remote
// description. Order of arrival is preserved.
type candidateQueue struct {
	items []domain.ICECandidate
}

func (q *candidateQueue) push(c domain.ICECandidate) {
	q.items = append(q.items, c)
}

// drain empties the queue and returns its content in arrival order.
func (q *candidateQueue) drain() []domain.ICECandidate {
	out := q.items
	q.items = nil
	return out
}

func (q *candidateQueue) len() int {
	return len(q.items)
}

func (q *candidateQueue) clear() {
	q.items = nil
}
