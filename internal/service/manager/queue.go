package manager

// queue is the ordered set of item ids awaiting admission. FIFO for bulk
// enqueue; PushFront serves the explicit "download now" action. Not safe for
// concurrent use: the manager's mutex guards it.
type queue struct {
	ids []int64
}

func (q *queue) Len() int {
	return len(q.ids)
}

func (q *queue) PushBack(id int64) {
	q.ids = append(q.ids, id)
}

func (q *queue) PushFront(id int64) {
	q.ids = append([]int64{id}, q.ids...)
}

func (q *queue) PopFront() (int64, bool) {
	if len(q.ids) == 0 {
		return 0, false
	}

	id := q.ids[0]
	q.ids = q.ids[1:]

	return id, true
}

func (q *queue) Contains(id int64) bool {
	for _, v := range q.ids {
		if v == id {
			return true
		}
	}

	return false
}

func (q *queue) Remove(id int64) bool {
	for i, v := range q.ids {
		if v == id {
			q.ids = append(q.ids[:i], q.ids[i+1:]...)

			return true
		}
	}

	return false
}
