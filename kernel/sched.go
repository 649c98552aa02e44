package kernel

import (
	log "github.com/sirupsen/logrus"

	"github.com/KosalSout1234/pintos/fixedpoint"
	"github.com/KosalSout1234/pintos/list"
	"github.com/KosalSout1234/pintos/palloc"
)

// TimeSlice is the number of timer ticks each thread gets before the
// tick handler requests preemption.
const TimeSlice = 4

// mlfqQueues is the number of per-priority FIFO queues.
const mlfqQueues = PriMax - PriMin + 1

var (
	// readyList holds READY threads in priority mode, ordered by
	// effective priority descending, ties oldest first.
	readyList list.List[*Thread]

	// allList holds every live thread, linked through allelem.
	allList list.List[*Thread]

	// sleepList holds BLOCKED threads with reason BlockSleeping, in
	// ascending wake-up time order.
	sleepList list.List[*Thread]

	// mlfq holds READY threads in MLFQ mode: one FIFO queue per
	// priority, with an aggregate size so the empty check is O(1).
	mlfq struct {
		size   int
		queues [mlfqQueues]list.List[*Thread]
	}

	idleThread    *Thread
	initialThread *Thread
	currentThread *Thread

	// threadMLFQS selects the scheduling discipline. Set once at boot;
	// runtime switching is not supported.
	threadMLFQS bool

	// loadAvg estimates the number of threads ready to run over the
	// past minute. MLFQ mode only.
	loadAvg fixedpoint.FP

	// threadTicks counts timer ticks since the last context switch.
	threadTicks int

	nextTid TID
	tidLock Lock

	idleTicks   int64 // timer ticks spent in the idle thread
	kernelTicks int64 // timer ticks spent in kernel threads
)

// threadInit initializes the threading system by transforming the code
// that is currently running into the initial thread. Interrupts must be
// off. The page allocator must be initialized before the first Create.
func threadInit(mlfqs bool) {
	kernelAssert(IntrGetLevel() == IntrOff, "threadInit with interrupts enabled")

	threadMLFQS = mlfqs
	readyList.Init()
	allList.Init()
	sleepList.Init()
	for i := range mlfq.queues {
		mlfq.queues[i].Init()
	}
	mlfq.size = 0
	loadAvg = 0
	threadTicks = 0
	idleTicks = 0
	kernelTicks = 0
	idleThread = nil
	switchPrev = nil
	nextTid = 1
	tidLock.Init()

	initialThread = new(Thread)
	initThread(initialThread, "main", PriDefault)
	initialThread.status = StatusRunning
	initialThread.recentCPU = 0
	initialThread.nice = 0
	currentThread = initialThread
	initialThread.tid = allocateTid()
}

// threadStart starts preemptive scheduling: it creates the idle thread
// and opens the interrupt gate, then waits for the idle thread to
// finish initializing itself.
func threadStart() {
	var idleStarted Semaphore
	idleStarted.Init(0)
	if _, err := Create("idle", PriMin, idle, &idleStarted); err != nil {
		throw("could not create the idle thread")
	}

	IntrEnable()

	idleStarted.Down()
}

// idle is the body of the idle thread. It runs when no other thread is
// ready: it blocks itself, is re-picked by nextThreadToRun as the
// fallback, and halts the CPU until the next timer interrupt. It is
// never on a ready structure after startup.
func idle(idleStarted any) {
	idleThread = Current()
	idleStarted.(*Semaphore).Up()

	for {
		// Let someone else run.
		IntrDisable()
		Block()

		// Re-enable interrupts and wait for the next one. On real
		// hardware this is an atomic enable-and-halt; here the halt is
		// what advances the virtual clock.
		IntrEnable()
		halt()
	}
}

// mlfqPriority computes t's MLFQ priority from its recent CPU usage and
// nice value, clamped to [PriMin, PriMax].
func mlfqPriority(t *Thread) int {
	p := PriMax - t.recentCPU.DivInt(4).Round() - t.nice*2
	if p > PriMax {
		return PriMax
	}
	if p < PriMin {
		return PriMin
	}
	return p
}

// mlfqAdd enqueues t on the queue matching its priority right now. The
// queue index may lag the formula until the next periodic recomputation
// moves the thread. Interrupts must be off.
func mlfqAdd(t *Thread) {
	mlfq.size++
	mlfq.queues[mlfqPriority(t)].PushBack(&t.mlfqElem)
}

// mlfqUpdate re-derives every queued thread's priority and moves the
// ones whose queue no longer matches, appending at the tail of the new
// queue. Runs once per second from the tick handler.
func mlfqUpdate() {
	for i := PriMin; i <= PriMax; i++ {
		e := mlfq.queues[i].Front()
		for e != nil {
			next := e.Next()
			t := e.Item()
			if p := mlfqPriority(t); p != i {
				list.Remove(e)
				mlfq.queues[p].PushBack(e)
			}
			e = next
		}
	}
}

// nextThreadToRun chooses and dequeues the next thread to schedule,
// falling back to the idle thread when nothing is ready.
func nextThreadToRun() *Thread {
	if threadMLFQS {
		if mlfq.size == 0 {
			return idleThread
		}
		for i := PriMax; i >= PriMin; i-- {
			if !mlfq.queues[i].Empty() {
				mlfq.size--
				return mlfq.queues[i].PopFront().Item()
			}
		}
		throw("mlfq size out of sync with its queues")
	}
	if readyList.Empty() {
		return idleThread
	}
	return readyList.PopFront().Item()
}

// schedule switches to the next thread. At entry, interrupts must be
// off and the running thread must already have been moved out of the
// RUNNING state (to READY, BLOCKED or DYING) by the caller.
func schedule() {
	cur := runningThread()
	next := nextThreadToRun()

	kernelAssert(IntrGetLevel() == IntrOff, "schedule with interrupts enabled")
	kernelAssert(cur.status != StatusRunning, "schedule from a RUNNING thread")
	kernelAssert(isThread(next), "run queue produced a corrupt thread")

	var prev *Thread
	if cur != next {
		prev = switchThreads(cur, next)
	}
	threadScheduleTail(prev)
}

// threadScheduleTail completes a thread switch: it marks the new
// current thread RUNNING, starts its time slice, activates its address
// space if user programs are compiled in, and destroys the previous
// thread's stack page if it is dying. The destruction must happen here,
// on the successor, because the dying thread executes on that page
// until the switch completes; the initial thread's memory was never
// page-allocated and is left alone.
//
// Called with interrupts still off, both on the normal switch return
// path and from the first-run trampoline of a new thread.
func threadScheduleTail(prev *Thread) {
	cur := runningThread()

	kernelAssert(IntrGetLevel() == IntrOff, "threadScheduleTail with interrupts enabled")

	cur.status = StatusRunning
	threadTicks = 0

	if ProcessActivate != nil {
		ProcessActivate()
	}

	if prev != nil && prev.status == StatusDying && prev != initialThread {
		kernelAssert(prev != cur, "dying thread rescheduled itself")
		palloc.FreePage(prev.page)
		prev.page = nil
	}
}

// threadTick is the timer tick handler. It runs in external interrupt
// context on every tick: it updates statistics and CPU accounting, does
// the once-per-second MLFQ recomputation, wakes expired sleepers, and
// requests preemption when the running thread's time slice is used up.
func threadTick() {
	t := Current()

	if t == idleThread {
		idleTicks++
	} else {
		kernelTicks++
		t.recentCPU = t.recentCPU.AddInt(1)
	}

	if ticks%TimerFreq == 0 && threadMLFQS {
		ready := mlfq.size
		if t != idleThread {
			// The current thread is also ready to run.
			ready++
		}
		loadAvg = fixedpoint.Frac(59, 60).Mul(loadAvg).
			Add(fixedpoint.Frac(1, 60).Mul(fixedpoint.Int(ready)))

		// Once per second, decay every thread's recent CPU usage.
		scale := fixedpoint.Int(2).Mul(loadAvg).
			Div(fixedpoint.Int(2).Mul(loadAvg).AddInt(1))
		for e := allList.Front(); e != nil; e = e.Next() {
			it := e.Item()
			if it == idleThread {
				continue
			}
			it.recentCPU = scale.Mul(it.recentCPU).AddInt(it.nice)
		}

		mlfqUpdate()
	}

	wakeSleepers()

	threadTicks++
	if threadTicks >= TimeSlice {
		intrYieldOnReturn()
	}
}

// wakeSleepers unblocks every sleeping thread whose wake-up time has
// arrived. The sleep list is sorted by ascending wake-up time, so the
// walk stops at the first unexpired entry.
func wakeSleepers() {
	for !sleepList.Empty() {
		t := sleepList.Front().Item()
		if t.blocked.sleepingWakeupTime > ticks {
			return
		}
		// Pop before unblocking: the thread's general link must leave
		// the sleep list before Unblock links it into a ready
		// structure.
		sleepList.PopFront()
		Unblock(t)
	}
}

// bySleepingWakeupTime orders sleeping threads by ascending wake-up
// time; insertion order breaks ties.
func bySleepingWakeupTime(a, b *Thread) bool {
	return a.blocked.sleepingWakeupTime < b.blocked.sleepingWakeupTime
}

// sleepUntil blocks the current thread until the timer reaches wake.
// A wake time already in the past is allowed; the thread is woken on
// the next tick. The idle thread never sleeps on the list.
func sleepUntil(wake int64) {
	cur := Current()
	kernelAssert(!IntrContext(), "sleep from interrupt context")

	old := IntrDisable()
	cur.status = StatusBlocked
	cur.blocked.reason = BlockSleeping
	cur.blocked.sleepingWakeupTime = wake
	if cur != idleThread {
		sleepList.InsertOrdered(&cur.elem, bySleepingWakeupTime)
	}
	schedule()
	IntrSetLevel(old)
}

// PrintStats logs thread statistics accumulated since boot.
func PrintStats() {
	log.WithFields(log.Fields{
		"idle_ticks":   idleTicks,
		"kernel_ticks": kernelTicks,
	}).Info("thread statistics")
}
