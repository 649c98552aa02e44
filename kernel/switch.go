package kernel

import (
	"runtime"

	log "github.com/sirupsen/logrus"
)

// Context switch.
//
// Every thread is backed by a goroutine parked on its resume channel.
// The switch hands the CPU baton over: the outgoing goroutine wakes the
// incoming one and immediately parks itself, so at most one goroutine
// executes kernel code at a time and the interrupt gate keeps its
// single-CPU semantics. The unbuffered channel send doubles as the
// happens-before edge carrying all scheduler state to the next thread.
//
// switchPrev plays the role of the register that the low-level switch
// routine hands back: it is written by the outgoing side immediately
// before the wake-up, and read by the incoming side before anything
// else can run.

var switchPrev *Thread

// switchThreads switches from cur, which must not be RUNNING, to next,
// and returns the thread we later switch back from. A DYING cur never
// returns: its goroutine ends once the successor has the CPU.
func switchThreads(cur, next *Thread) *Thread {
	if log.IsLevelEnabled(log.TraceLevel) {
		log.WithFields(log.Fields{
			"from":        cur.name,
			"from_status": cur.status.String(),
			"to":          next.name,
		}).Trace("context switch")
	}

	// cur's status must not be consulted after the wake-up: the
	// successor runs from that point on and may mutate it.
	dying := cur.status == StatusDying

	switchPrev = cur
	currentThread = next
	next.resume <- struct{}{}

	if dying {
		runtime.Goexit()
	}

	<-cur.resume
	return switchPrev
}

// prepareStack lays out t's first run: a parked goroutine whose resume
// takes the place of a prepared stack's switch frames. When first
// scheduled, the goroutine completes the switch it arrived through,
// then enters the thread's function via kernelThread.
func prepareStack(t *Thread, fn ThreadFunc, aux any) {
	go func() {
		<-t.resume
		kernelThread(fn, aux)
	}()
}

// kernelThread is the basis for a kernel thread: it finishes the
// in-flight context switch, opens the interrupt gate (the scheduler
// runs with it closed), executes the thread's function and exits the
// thread if the function returns.
func kernelThread(fn ThreadFunc, aux any) {
	kernelAssert(fn != nil, "kernelThread: nil thread function")

	threadScheduleTail(switchPrev)
	IntrEnable()
	fn(aux)
	Exit()
}
