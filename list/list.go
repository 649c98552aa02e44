// Package list implements an intrusive doubly linked list.
//
// Unlike container/list, nodes are embedded in the element they link, so
// inserting and removing never allocates. That matters in the scheduler:
// a thread moves between the ready list, the sleep list and a semaphore's
// waiter list from interrupt context, where allocation is off the table.
//
// The cost of the embedded node is an aliasing rule: an Elem may be
// linked into at most one list at any instant. The scheduler maintains
// this by disciplined enqueue/dequeue pairing; Remove unlinks the node so
// a stale membership is detectable with Linked.
//
// Lists use sentinel head and tail nodes, so Front/Back/Next/Prev return
// nil only at the ends and Remove needs no reference to the list.
package list

// Elem is a link node embedded in the element it belongs to. The zero
// value is unlinked; Init must set the owning item before first use.
type Elem[T any] struct {
	prev, next *Elem[T]
	item       T
}

// Init associates e with its owning item. Called once, when the owner is
// initialized.
func (e *Elem[T]) Init(item T) {
	e.item = item
}

// Item returns the element this node is embedded in.
func (e *Elem[T]) Item() T {
	return e.item
}

// Linked reports whether e is currently in a list.
func (e *Elem[T]) Linked() bool {
	return e.prev != nil
}

// Next returns the following node, or nil at the back of the list.
func (e *Elem[T]) Next() *Elem[T] {
	if e.next == nil || e.next.next == nil {
		return nil
	}
	return e.next
}

// Prev returns the preceding node, or nil at the front of the list.
func (e *Elem[T]) Prev() *Elem[T] {
	if e.prev == nil || e.prev.prev == nil {
		return nil
	}
	return e.prev
}

// List is an intrusive doubly linked list of Elem[T] nodes. Must be
// initialized with Init before use.
type List[T any] struct {
	head Elem[T]
	tail Elem[T]
}

// Init makes l an empty list.
func (l *List[T]) Init() {
	l.head.prev = nil
	l.head.next = &l.tail
	l.tail.prev = &l.head
	l.tail.next = nil
}

// Empty reports whether l has no elements.
func (l *List[T]) Empty() bool {
	return l.head.next == &l.tail
}

// Len counts the elements in l. O(n); the scheduler keeps its own
// aggregate counters where the length is hot.
func (l *List[T]) Len() int {
	n := 0
	for e := l.Front(); e != nil; e = e.Next() {
		n++
	}
	return n
}

// Front returns the first node, or nil if l is empty.
func (l *List[T]) Front() *Elem[T] {
	if l.Empty() {
		return nil
	}
	return l.head.next
}

// Back returns the last node, or nil if l is empty.
func (l *List[T]) Back() *Elem[T] {
	if l.Empty() {
		return nil
	}
	return l.tail.prev
}

// insertBefore links e immediately before pos.
func insertBefore[T any](pos, e *Elem[T]) {
	e.prev = pos.prev
	e.next = pos
	pos.prev.next = e
	pos.prev = e
}

// PushFront inserts e at the front of l. e must not be in any list.
func (l *List[T]) PushFront(e *Elem[T]) {
	insertBefore(l.head.next, e)
}

// PushBack inserts e at the back of l. e must not be in any list.
func (l *List[T]) PushBack(e *Elem[T]) {
	insertBefore(&l.tail, e)
}

// InsertOrdered inserts e before the first node x for which less(e's
// item, x's item) holds, so equal elements keep insertion order. less
// must be a strict ordering.
func (l *List[T]) InsertOrdered(e *Elem[T], less func(a, b T) bool) {
	pos := l.head.next
	for pos != &l.tail && !less(e.item, pos.item) {
		pos = pos.next
	}
	insertBefore(pos, e)
}

// Remove unlinks e from whatever list contains it and returns its item.
// The sentinel links make the owning list unnecessary.
func Remove[T any](e *Elem[T]) T {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev = nil
	e.next = nil
	return e.item
}

// PopFront removes and returns the first node. The list must not be
// empty.
func (l *List[T]) PopFront() *Elem[T] {
	e := l.head.next
	Remove(e)
	return e
}

// Max returns the node whose item is greatest under less, or nil if l is
// empty. Earlier nodes win ties.
func (l *List[T]) Max(less func(a, b T) bool) *Elem[T] {
	max := l.Front()
	if max == nil {
		return nil
	}
	for e := max.Next(); e != nil; e = e.Next() {
		if less(max.item, e.item) {
			max = e
		}
	}
	return max
}
