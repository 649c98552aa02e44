package kernel

import (
	"github.com/KosalSout1234/pintos/list"
)

// Synchronization primitives built on the interrupt gate: counting
// semaphores, locks with priority donation, and condition variables.

// Semaphore is a counting semaphore: a nonnegative value plus Down
// (wait until the value is positive, then decrement) and Up (increment
// and wake the best waiter).
type Semaphore struct {
	value   int
	waiters list.List[*Thread]
}

// Init initializes s with the given initial value.
func (s *Semaphore) Init(value int) {
	kernelAssert(value >= 0, "Semaphore.Init: negative value")
	s.value = value
	s.waiters.Init()
}

// Down waits for s's value to become positive and atomically decrements
// it. May block; must not be called from an interrupt handler.
//
// Waiters queue in effective-priority order so the highest-priority
// waiter wakes first. The loop re-checks the value after waking because
// another thread can take the semaphore between the Up and this thread
// getting the CPU.
func (s *Semaphore) Down() {
	kernelAssert(!IntrContext(), "Semaphore.Down from interrupt context")

	old := IntrDisable()
	cur := Current()
	for s.value == 0 {
		s.waiters.InsertOrdered(&cur.elem, byEffectivePriority)
		Block()
	}
	s.value--
	IntrSetLevel(old)
}

// TryDown decrements s's value if it is positive, without blocking.
// Reports whether the decrement happened.
func (s *Semaphore) TryDown() bool {
	old := IntrDisable()
	ok := s.value > 0
	if ok {
		s.value--
	}
	IntrSetLevel(old)
	return ok
}

// Up increments s's value and wakes the waiter with the highest
// effective priority, if any. Safe to call from an interrupt handler.
//
// The waiters list is kept priority-ordered at insert, but donations
// arriving while a thread sits in the list can reorder it in place, so
// the wake-up scans for the current maximum. If the woken thread
// outranks the running one, the CPU is given up: directly, or via
// yield-on-return from interrupt context.
func (s *Semaphore) Up() {
	old := IntrDisable()
	var woken *Thread
	if e := s.waiters.Max(byEffectivePriorityAsc); e != nil {
		woken = list.Remove(e)
		Unblock(woken)
	}
	s.value++
	IntrSetLevel(old)

	if woken == nil || woken.EffectivePriority() <= Current().EffectivePriority() {
		return
	}
	if IntrContext() {
		intrYieldOnReturn()
	} else {
		Yield()
	}
}

// byEffectivePriorityAsc is the ordering Max uses to find the
// highest-priority waiter; the earliest of tied waiters wins.
func byEffectivePriorityAsc(a, b *Thread) bool {
	return a.EffectivePriority() < b.EffectivePriority()
}

// Lock is a mutual-exclusion lock: a binary semaphore that remembers
// its holder. Only the holder may release it, and acquiring feeds the
// priority-donation chain: a contended acquire donates the waiter's
// effective priority to the holder, transitively through whatever locks
// the holder is itself waiting on.
type Lock struct {
	holder *Thread
	sema   Semaphore
	elem   list.Elem[*Lock] // in the holder's ownedLocks
}

// Init initializes l as a free lock.
func (l *Lock) Init() {
	l.holder = nil
	l.sema.Init(1)
	l.elem.Init(l)
}

// HeldByCurrent reports whether the running thread holds l.
func (l *Lock) HeldByCurrent() bool {
	return l.holder == Current()
}

// Acquire acquires l, blocking until it is available. A thread may not
// re-acquire a lock it holds; that rule is also what guarantees the
// donation walk terminates.
func (l *Lock) Acquire() {
	kernelAssert(!IntrContext(), "Lock.Acquire from interrupt context")
	kernelAssert(!l.HeldByCurrent(), "Lock.Acquire: already held by this thread")

	old := IntrDisable()
	cur := Current()
	if l.holder != nil {
		// Record what we are about to wait on before blocking, so
		// donors can walk through us, then boost the holder chain.
		cur.blocked.reason = BlockWaitingOnLock
		cur.blocked.lock = l
		if !threadMLFQS {
			donatePriority(l.holder, cur.EffectivePriority())
		}
	}
	l.sema.Down()
	l.holder = cur
	cur.ownedLocks.PushBack(&l.elem)
	IntrSetLevel(old)
}

// TryAcquire acquires l without blocking and reports whether it
// succeeded.
func (l *Lock) TryAcquire() bool {
	kernelAssert(!l.HeldByCurrent(), "Lock.TryAcquire: already held by this thread")

	old := IntrDisable()
	ok := l.sema.TryDown()
	if ok {
		cur := Current()
		l.holder = cur
		cur.ownedLocks.PushBack(&l.elem)
	}
	IntrSetLevel(old)
	return ok
}

// Release releases l, which the running thread must hold. The releasing
// thread's donated priority is recomputed from the waiters of the locks
// it still holds, then the highest-priority waiter of l is woken (and
// may preempt us).
func (l *Lock) Release() {
	kernelAssert(l.HeldByCurrent(), "Lock.Release: not held by this thread")

	old := IntrDisable()
	cur := Current()
	list.Remove(&l.elem)
	l.holder = nil
	if !threadMLFQS {
		cur.donatedPriority = calculateDonatedPriority(cur)
	}
	l.sema.Up()
	IntrSetLevel(old)
}

// condWaiter is one thread waiting on a condition variable: a private
// semaphore the waiter sleeps on, plus the waiting thread so Signal can
// pick the highest-priority one.
type condWaiter struct {
	sema   Semaphore
	waiter *Thread
	elem   list.Elem[*condWaiter]
}

// Cond is a condition variable: threads wait on it for a state change
// announced by Signal or Broadcast, with an associated Lock protecting
// the state.
type Cond struct {
	waiters list.List[*condWaiter]
}

// Init initializes c.
func (c *Cond) Init() {
	c.waiters.Init()
}

// Wait atomically releases l and waits for c to be signaled, then
// re-acquires l before returning. The monitor state must be re-checked
// by the caller: a signal means the state changed at some point, not
// that it still holds.
func (c *Cond) Wait(l *Lock) {
	kernelAssert(!IntrContext(), "Cond.Wait from interrupt context")
	kernelAssert(l.HeldByCurrent(), "Cond.Wait without holding the lock")

	var w condWaiter
	w.sema.Init(0)
	w.waiter = Current()
	w.elem.Init(&w)
	c.waiters.PushBack(&w.elem)

	l.Release()
	w.sema.Down()
	l.Acquire()
}

// Signal wakes the highest-priority thread waiting on c, if any. The
// caller must hold l.
func (c *Cond) Signal(l *Lock) {
	kernelAssert(!IntrContext(), "Cond.Signal from interrupt context")
	kernelAssert(l.HeldByCurrent(), "Cond.Signal without holding the lock")

	e := c.waiters.Max(func(a, b *condWaiter) bool {
		return a.waiter.EffectivePriority() < b.waiter.EffectivePriority()
	})
	if e != nil {
		list.Remove(e).sema.Up()
	}
}

// Broadcast wakes every thread waiting on c. The caller must hold l.
func (c *Cond) Broadcast(l *Lock) {
	for !c.waiters.Empty() {
		c.Signal(l)
	}
}
