// Package kernel implements the thread scheduler of a small preemptive
// kernel on a simulated single CPU.
//
// Each kernel thread is backed by a goroutine, but the goroutines never
// run concurrently: the context switch hands a baton from the running
// goroutine to the next, so the package behaves exactly like one CPU
// with interrupts as the only synchronization primitive. Time is
// virtual; the timer interrupt is delivered by whatever the CPU is doing
// (a thread consuming CPU via Spin, or the idle thread halting until the
// next tick), which makes every schedule deterministic and testable.
//
// Two scheduling disciplines are supported, selected once at boot: a
// strict priority scheduler with priority donation, and a multi-level
// feedback queue driven by per-thread CPU usage and a system-wide load
// average.
package kernel

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/KosalSout1234/pintos/fixedpoint"
	"github.com/KosalSout1234/pintos/list"
	"github.com/KosalSout1234/pintos/palloc"
)

// Thread priorities.
const (
	PriMin     = 0  // lowest priority
	PriDefault = 31 // default priority
	PriMax     = 63 // highest priority
)

// Nice value range for the MLFQ scheduler.
const (
	NiceMin = -20
	NiceMax = 20
)

// threadMagic detects corruption of a thread descriptor. See Current.
const threadMagic = 0xcd6abf4b

// nameMax is the longest thread name kept, in bytes.
const nameMax = 15

// TID identifies a thread.
type TID int

// TIDError is returned by Create when no thread could be created.
const TIDError TID = -1

// ErrNoMemory is returned by Create when the page allocator is out of
// pages.
var ErrNoMemory = errors.New("kernel: out of pages")

// Status is a thread's life-cycle state.
type Status int32

const (
	StatusRunning Status = iota // on the CPU
	StatusReady                 // ready to run, in a ready structure
	StatusBlocked               // waiting for an event
	StatusDying                 // descheduled for the last time
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "RUNNING"
	case StatusReady:
		return "READY"
	case StatusBlocked:
		return "BLOCKED"
	case StatusDying:
		return "DYING"
	}
	return "UNKNOWN"
}

// BlockReason records why a blocked thread is blocked.
type BlockReason int

const (
	BlockUnknown       BlockReason = iota // blocked by a caller that keeps its own bookkeeping
	BlockSleeping                         // on the sleep list until a wake-up tick
	BlockWaitingOnLock                    // waiting to acquire a lock
)

// blockedRecord is the tagged record describing a blocked thread. The
// lock back-reference is what lets priority donation walk holder chains.
type blockedRecord struct {
	reason             BlockReason
	sleepingWakeupTime int64
	lock               *Lock
}

// ThreadFunc is the body of a kernel thread.
type ThreadFunc func(aux any)

// Thread is a kernel thread descriptor. In the running system it is
// tied to one kernel stack page, handed out at creation and freed by
// the successor thread after death; the initial thread is the sole
// exception and owns no page.
//
// The general link elem is shared between the ready list, the sleep
// list and semaphore waiter lists; those uses are mutually exclusive,
// so a thread's elem is linked into at most one list at any instant.
type Thread struct {
	tid             TID
	name            string
	status          Status
	priority        int // base priority
	donatedPriority int // highest donation received; 0 if none
	nice            int
	recentCPU       fixedpoint.FP
	blocked         blockedRecord

	ownedLocks list.List[*Lock]

	elem     list.Elem[*Thread] // ready list, sleep list, or waiter list
	allelem  list.Elem[*Thread] // all-threads list
	mlfqElem list.Elem[*Thread] // per-priority MLFQ queue

	page   *palloc.Page  // kernel stack page; nil for the initial thread
	resume chan struct{} // context-switch parking, see switch.go

	magic uint32
}

// Tid returns t's thread identifier.
func (t *Thread) Tid() TID {
	return t.tid
}

// Name returns t's name.
func (t *Thread) Name() string {
	return t.name
}

// EffectivePriority returns the priority the scheduler ranks t by: the
// maximum of the base priority and the current donated priority.
func (t *Thread) EffectivePriority() int {
	if t.donatedPriority > t.priority {
		return t.donatedPriority
	}
	return t.priority
}

// isThread reports whether t appears to be a valid thread descriptor.
func isThread(t *Thread) bool {
	return t != nil && t.magic == threadMagic
}

// runningThread returns the thread occupying the CPU. The switch path
// keeps this current; see switch.go.
func runningThread() *Thread {
	return currentThread
}

// Current returns the running thread, with sanity checks: a failed
// magic check means the thread's stack page overflowed into its
// descriptor.
func Current() *Thread {
	t := runningThread()
	kernelAssert(isThread(t), "stack overflow clobbered the thread descriptor")
	kernelAssert(t.status == StatusRunning, "current thread is not running")
	return t
}

// initThread does basic initialization of t as a blocked thread named
// name.
func initThread(t *Thread, name string, priority int) {
	kernelAssert(t != nil, "initThread: nil thread")
	kernelAssert(priority >= PriMin && priority <= PriMax, "initThread: priority out of range")

	if len(name) > nameMax {
		name = name[:nameMax]
	}
	t.name = name
	t.status = StatusBlocked
	t.blocked = blockedRecord{reason: BlockUnknown}
	t.priority = priority
	t.donatedPriority = 0
	t.magic = threadMagic
	t.ownedLocks.Init()
	t.elem.Init(t)
	t.allelem.Init(t)
	t.mlfqElem.Init(t)
	t.resume = make(chan struct{})

	old := IntrDisable()
	allList.PushBack(&t.allelem)
	IntrSetLevel(old)
}

// allocateTid returns a tid to use for a new thread.
func allocateTid() TID {
	tidLock.Acquire()
	tid := nextTid
	nextTid++
	tidLock.Release()
	return tid
}

// Create creates a new kernel thread named name with the given initial
// priority, which executes fn passing aux as the argument, and adds it
// to the ready queue. It returns the new thread's identifier, or
// TIDError and an error if creation fails.
//
// The new thread inherits the creator's recent CPU usage and nice
// value. In priority mode, if the new thread's priority beats the
// creator's effective priority, the creator yields at once so the
// highest-priority ready thread is the one running. The initial
// priority is ignored by the MLFQ scheduler.
func Create(name string, priority int, fn ThreadFunc, aux any) (TID, error) {
	kernelAssert(fn != nil, "Create: nil thread function")

	page := palloc.GetPage(palloc.Zero)
	if page == nil {
		return TIDError, ErrNoMemory
	}

	t := new(Thread)
	t.page = page
	initThread(t, name, priority)
	t.recentCPU = Current().recentCPU
	t.nice = Current().nice
	t.tid = allocateTid()

	prepareStack(t, fn, aux)

	log.WithFields(log.Fields{"tid": t.tid, "name": t.name, "priority": priority}).
		Debug("thread created")

	Unblock(t)

	if !threadMLFQS && priority > Current().EffectivePriority() {
		Yield()
	}
	return t.tid, nil
}

// Block puts the current thread to sleep. It will not be scheduled
// again until awoken by Unblock. Must be called with interrupts off and
// outside interrupt context; the caller is expected to have placed the
// thread on whatever wait list will be used to find it again.
func Block() {
	kernelAssert(!IntrContext(), "Block from interrupt context")
	kernelAssert(IntrGetLevel() == IntrOff, "Block with interrupts enabled")

	runningThread().status = StatusBlocked
	schedule()
}

// Unblock transitions blocked thread t to ready. It is an error if t is
// not blocked. The running thread is not preempted: callers that need
// the "highest-priority ready thread runs" invariant re-established do
// so explicitly, which lets a caller holding interrupts off atomically
// unblock a thread and update other state.
func Unblock(t *Thread) {
	kernelAssert(isThread(t), "Unblock: not a thread")

	old := IntrDisable()
	kernelAssert(t.status == StatusBlocked, "Unblock: thread not blocked")
	if threadMLFQS {
		mlfqAdd(t)
	} else {
		readyList.InsertOrdered(&t.elem, byEffectivePriority)
	}
	t.status = StatusReady
	t.blocked = blockedRecord{reason: BlockUnknown}
	IntrSetLevel(old)
}

// Exit deschedules the current thread and destroys it. Never returns.
// The successor thread frees the dying thread's stack page; see
// threadScheduleTail.
func Exit() {
	kernelAssert(!IntrContext(), "Exit from interrupt context")

	if ProcessExit != nil {
		ProcessExit()
	}

	IntrDisable()
	cur := Current()
	log.WithFields(log.Fields{"tid": cur.tid, "name": cur.name}).Debug("thread exiting")
	list.Remove(&cur.allelem)
	cur.status = StatusDying
	schedule()
	throw("schedule returned to a dying thread")
}

// Yield gives up the CPU. The current thread stays ready and may be
// scheduled again immediately.
func Yield() {
	cur := Current()
	kernelAssert(!IntrContext(), "Yield from interrupt context")

	old := IntrDisable()
	if cur != idleThread {
		if threadMLFQS {
			mlfqAdd(cur)
		} else {
			readyList.InsertOrdered(&cur.elem, byEffectivePriority)
		}
	}
	cur.status = StatusReady
	schedule()
	IntrSetLevel(old)
}

// Foreach invokes fn on every live thread. Must be called with
// interrupts off.
func Foreach(fn func(*Thread)) {
	kernelAssert(IntrGetLevel() == IntrOff, "Foreach with interrupts enabled")
	for e := allList.Front(); e != nil; e = e.Next() {
		fn(e.Item())
	}
}

// SetPriority sets the current thread's base priority and yields so the
// scheduling decision is re-run. The yield is unconditional: even a
// raised priority goes back through the scheduler, which re-picks the
// same thread at worst.
func SetPriority(priority int) {
	kernelAssert(priority >= PriMin && priority <= PriMax, "SetPriority: priority out of range")
	Current().priority = priority
	Yield()
}

// GetPriority returns the current thread's effective priority.
func GetPriority() int {
	return Current().EffectivePriority()
}

// SetNice sets the current thread's nice value, clamped to
// [NiceMin, NiceMax]. Only the MLFQ scheduler consults it.
func SetNice(nice int) {
	if nice > NiceMax {
		nice = NiceMax
	} else if nice < NiceMin {
		nice = NiceMin
	}
	old := IntrDisable()
	Current().nice = nice
	IntrSetLevel(old)
}

// GetNice returns the current thread's nice value.
func GetNice() int {
	return Current().nice
}

// GetLoadAvg returns 100 times the system load average, rounded.
func GetLoadAvg() int {
	old := IntrDisable()
	avg := loadAvg
	IntrSetLevel(old)
	return avg.MulInt(100).Round()
}

// GetRecentCPU returns 100 times the current thread's recent CPU
// usage, rounded.
func GetRecentCPU() int {
	return Current().recentCPU.MulInt(100).Round()
}

// byEffectivePriority orders threads so higher effective priority sorts
// first; insertion order breaks ties.
func byEffectivePriority(a, b *Thread) bool {
	return a.EffectivePriority() > b.EffectivePriority()
}

// receiveDonatedPriority raises t's donated priority to priority if that
// is an increase, re-sorting t within the ready list if it is queued.
func receiveDonatedPriority(t *Thread, priority int) {
	if priority <= t.donatedPriority {
		return
	}
	t.donatedPriority = priority
	if t.status == StatusReady {
		list.Remove(&t.elem)
		readyList.InsertOrdered(&t.elem, byEffectivePriority)
	}
}

// donatePriority donates priority to receiver, and transitively to the
// holder of whatever lock receiver is waiting on, until the chain ends
// at a thread that is not waiting on a lock. Called with interrupts off
// by the lock-acquire path; a scheduling decision is expected to follow
// shortly. The walk terminates because a thread cannot wait on a lock
// it holds.
func donatePriority(receiver *Thread, priority int) {
	receiveDonatedPriority(receiver, priority)
	for receiver.status == StatusBlocked && receiver.blocked.reason == BlockWaitingOnLock {
		receiver = receiver.blocked.lock.holder
		receiveDonatedPriority(receiver, priority)
	}
}

// calculateDonatedPriority recomputes t's donated priority from
// scratch: the maximum effective priority across the waiters of every
// lock t still holds, zero if there are none. Called with interrupts
// off when t releases a lock.
func calculateDonatedPriority(t *Thread) int {
	max := 0
	for e := t.ownedLocks.Front(); e != nil; e = e.Next() {
		l := e.Item()
		for we := l.sema.waiters.Front(); we != nil; we = we.Next() {
			if p := we.Item().EffectivePriority(); p > max {
				max = p
			}
		}
	}
	return max
}
