// Package wait provides a keyed multimap of pending tasks with stable
// tokens and O(1) unlink, used by the I/O readiness layer to park
// waiters against a key.
package wait

import "github.com/jangala-dev/fibers/sched"

type node[K comparable] struct {
	key        K
	task       sched.Task
	prev, next *node[K]
	set        *Set[K]
}

type bucket[K comparable] struct {
	head, tail *node[K]
}

// Set maps keys to ordered lists of waiting tasks. Iteration and
// delivery follow insertion order per key.
type Set[K comparable] struct {
	buckets map[K]*bucket[K]
	size    int
}

// NewSet creates an empty Set.
func NewSet[K comparable]() *Set[K] {
	return &Set[K]{buckets: make(map[K]*bucket[K])}
}

// Token is a stable handle for a parked task, usable from abort paths.
type Token[K comparable] struct {
	n *node[K]
}

// Add parks task under key and returns its token.
func (s *Set[K]) Add(key K, task sched.Task) *Token[K] {
	b := s.buckets[key]
	if b == nil {
		b = &bucket[K]{}
		s.buckets[key] = b
	}
	n := &node[K]{key: key, task: task, set: s}
	if b.tail == nil {
		b.head, b.tail = n, n
	} else {
		n.prev = b.tail
		b.tail.next = n
		b.tail = n
	}
	s.size++
	return &Token[K]{n: n}
}

// Unlink removes the parked task. It is idempotent and reports whether
// this call emptied the key's bucket, so the caller can demote any
// external interest keyed on it.
func (t *Token[K]) Unlink() bool {
	n := t.n
	if n == nil || n.set == nil {
		return false
	}
	return n.set.unlink(n)
}

func (s *Set[K]) unlink(n *node[K]) bool {
	b := s.buckets[n.key]
	if b == nil {
		return false
	}
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		b.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		b.tail = n.prev
	}
	n.prev, n.next, n.set = nil, nil, nil
	s.size--
	if b.head == nil {
		delete(s.buckets, n.key)
		return true
	}
	return false
}

// TakeOne removes and returns the oldest task parked under key.
func (s *Set[K]) TakeOne(key K) (sched.Task, bool) {
	b := s.buckets[key]
	if b == nil || b.head == nil {
		return nil, false
	}
	n := b.head
	s.unlink(n)
	return n.task, true
}

// TakeAll removes and returns every task parked under key, in
// insertion order.
func (s *Set[K]) TakeAll(key K) []sched.Task {
	b := s.buckets[key]
	if b == nil {
		return nil
	}
	var tasks []sched.Task
	for b.head != nil {
		n := b.head
		s.unlink(n)
		tasks = append(tasks, n.task)
	}
	return tasks
}

// NotifyOne schedules the oldest task parked under key, if any.
func (s *Set[K]) NotifyOne(key K, sc *sched.Scheduler) bool {
	task, ok := s.TakeOne(key)
	if !ok {
		return false
	}
	sc.Schedule(task)
	return true
}

// NotifyAll schedules every task parked under key and reports how many
// were woken.
func (s *Set[K]) NotifyAll(key K, sc *sched.Scheduler) int {
	tasks := s.TakeAll(key)
	for _, task := range tasks {
		sc.Schedule(task)
	}
	return len(tasks)
}

// ClearKey drops every task parked under key without scheduling them,
// cancelling those that support it.
func (s *Set[K]) ClearKey(key K, reason error) int {
	tasks := s.TakeAll(key)
	for _, task := range tasks {
		if c, ok := task.(sched.TaskCanceller); ok {
			c.Cancel(reason)
		}
	}
	return len(tasks)
}

// ClearAll drops every parked task, cancelling those that support it.
func (s *Set[K]) ClearAll(reason error) int {
	total := 0
	for key := range s.buckets {
		total += s.ClearKey(key, reason)
	}
	return total
}

// HasKey reports whether any task is parked under key.
func (s *Set[K]) HasKey(key K) bool {
	_, ok := s.buckets[key]
	return ok
}

// Keys returns the keys that currently have parked tasks.
func (s *Set[K]) Keys() []K {
	keys := make([]K, 0, len(s.buckets))
	for k := range s.buckets {
		keys = append(keys, k)
	}
	return keys
}

// Empty reports whether no task is parked.
func (s *Set[K]) Empty() bool { return s.size == 0 }

// Size reports the number of parked tasks.
func (s *Set[K]) Size() int { return s.size }
