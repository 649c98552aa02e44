package kernel

// Virtual timer device.
//
// The hardware timer would raise an interrupt TimerFreq times a second;
// here the clock is virtual and a tick is delivered by whatever the CPU
// is doing: a thread consuming CPU through Spin, or the idle thread
// halting until "the next interrupt". Tick semantics are identical to a
// periodic device — the handler runs in interrupt context with the gate
// closed, and only when the gate was open — but every run of the system
// is deterministic.

// TimerFreq is the number of timer ticks per second.
const TimerFreq = 100

// ticks counts timer ticks since boot.
var ticks int64

func timerInit() {
	ticks = 0
}

// Ticks returns the number of timer ticks since boot.
func Ticks() int64 {
	old := IntrDisable()
	t := ticks
	IntrSetLevel(old)
	return t
}

// Elapsed returns the number of ticks since then, which should be a
// value once returned by Ticks.
func Elapsed(then int64) int64 {
	return Ticks() - then
}

// Sleep suspends execution for approximately d timer ticks.
func Sleep(d int64) {
	start := Ticks()
	kernelAssert(IntrGetLevel() == IntrOn, "Sleep with interrupts disabled")
	SleepUntil(start + d)
}

// SleepUntil suspends execution until the timer reaches the absolute
// tick wake. A wake time in the past means the thread is woken on the
// next tick.
func SleepUntil(wake int64) {
	sleepUntil(wake)
}

// Spin keeps the CPU busy for n timer ticks. This is how a thread's
// computation spends simulated time; the thread can be preempted at
// every tick boundary and resumes the remainder when rescheduled.
func Spin(n int64) {
	for i := int64(0); i < n; i++ {
		timerInterrupt()
	}
}

// halt waits for the next timer interrupt. Idle thread only.
func halt() {
	timerInterrupt()
}

// timerInterrupt delivers one timer interrupt to the running thread.
func timerInterrupt() {
	intrHandle(func() {
		ticks++
		threadTick()
	})
}
