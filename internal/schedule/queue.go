package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// timer is a pending entry in the executor's timer queue.
type timer struct {
	// executeAt is when the timer becomes due
	executeAt time.Time

	// seq breaks ties between timers due at the same instant (FIFO)
	seq uint64

	// ctx scopes the timer; a done context drops it at fire time
	ctx context.Context

	fn func()

	// interval is non-zero for periodic timers
	interval time.Duration

	cancelled atomic.Bool

	// index is the heap index, -1 once popped
	index int
}

func (t *timer) dead() bool {
	return t.cancelled.Load() || t.ctx.Err() != nil
}

func (t *timer) before(o *timer) bool {
	if t.executeAt.Equal(o.executeAt) {
		return t.seq < o.seq
	}
	return t.executeAt.Before(o.executeAt)
}

// timerQueue is a binary min-heap of timers ordered by due time.
// Cancelled timers are skipped lazily and compacted periodically.
type timerQueue struct {
	mu   sync.Mutex
	heap []*timer
	seq  uint64
}

func newTimerQueue() *timerQueue {
	return &timerQueue{heap: make([]*timer, 0, 32)}
}

// Push adds a timer, compacting dead entries every 100 pushes.
func (q *timerQueue) Push(t *timer) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) >= 100 && len(q.heap)%100 == 0 {
		q.compact()
	}

	q.seq++
	t.seq = q.seq
	t.index = len(q.heap)
	q.heap = append(q.heap, t)
	q.up(t.index)
}

// PopDue removes and returns live timers with executeAt <= now, in order.
func (q *timerQueue) PopDue(now time.Time) []*timer {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []*timer
	for len(q.heap) > 0 && !q.heap[0].executeAt.After(now) {
		t := q.pop()
		if !t.dead() {
			due = append(due, t)
		}
	}
	return due
}

// Peek returns the earliest due time.
func (q *timerQueue) Peek() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return time.Time{}, false
	}
	return q.heap[0].executeAt, true
}

// Len returns the number of queued timers, dead ones included.
func (q *timerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// compact removes dead timers and restores the heap. Caller must hold lock.
func (q *timerQueue) compact() {
	write := 0
	for read := 0; read < len(q.heap); read++ {
		if !q.heap[read].dead() {
			q.heap[write] = q.heap[read]
			q.heap[write].index = write
			write++
		}
	}
	for i := write; i < len(q.heap); i++ {
		q.heap[i] = nil
	}
	q.heap = q.heap[:write]

	for i := len(q.heap)/2 - 1; i >= 0; i-- {
		q.down(i, len(q.heap))
	}
}

// pop removes the minimum timer. Caller must hold lock.
func (q *timerQueue) pop() *timer {
	n := len(q.heap) - 1
	q.swap(0, n)
	q.down(0, n)
	t := q.heap[n]
	q.heap[n] = nil
	q.heap = q.heap[:n]
	t.index = -1
	return t
}

func (q *timerQueue) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !q.heap[i].before(q.heap[parent]) {
			break
		}
		q.swap(i, parent)
		i = parent
	}
}

func (q *timerQueue) down(i, n int) {
	for {
		left := 2*i + 1
		if left >= n || left < 0 {
			break
		}
		j := left
		if right := left + 1; right < n && q.heap[right].before(q.heap[left]) {
			j = right
		}
		if !q.heap[j].before(q.heap[i]) {
			break
		}
		q.swap(i, j)
		i = j
	}
}

func (q *timerQueue) swap(i, j int) {
	q.heap[i], q.heap[j] = q.heap[j], q.heap[i]
	q.heap[i].index = i
	q.heap[j].index = j
}

// Handle allows cancelling a scheduled timer.
type Handle struct {
	t *timer
}

// Cancel stops the timer; it is safe to call more than once and on nil.
func (h *Handle) Cancel() {
	if h != nil && h.t != nil {
		h.t.cancelled.Store(true)
	}
}

// Active reports whether the timer can still fire.
func (h *Handle) Active() bool {
	if h == nil || h.t == nil {
		return false
	}
	if h.t.dead() {
		return false
	}
	// One-shot timers are finished once popped.
	return h.t.interval > 0 || h.t.index >= 0
}

// Due returns when the timer is next scheduled to fire.
func (h *Handle) Due() time.Time {
	if h == nil || h.t == nil {
		return time.Time{}
	}
	return h.t.executeAt
}
