package kernel

// Interrupt gate. Disabling interrupts is the only synchronization
// primitive available inside the scheduler: every mutation of scheduler
// state happens between IntrDisable and the matching IntrSetLevel.
//
// The simulated CPU accepts an external interrupt (the timer) only while
// the gate is open. Handlers run with the gate closed and may not block;
// a handler that wants the current thread off the CPU sets the
// yield-on-return flag instead, and the interrupt exit path performs the
// yield once the handler frame is gone.

// IntrLevel is the state of the interrupt gate.
type IntrLevel bool

const (
	// IntrOff means external interrupts are masked.
	IntrOff IntrLevel = false
	// IntrOn means external interrupts are delivered.
	IntrOn IntrLevel = true
)

func (l IntrLevel) String() string {
	if l == IntrOn {
		return "on"
	}
	return "off"
}

var (
	intrLevel      IntrLevel
	inExternalIntr bool
	yieldOnReturn  bool
)

// IntrGetLevel returns the current interrupt level.
func IntrGetLevel() IntrLevel {
	return intrLevel
}

// IntrDisable closes the gate and returns the previous level.
func IntrDisable() IntrLevel {
	old := intrLevel
	intrLevel = IntrOff
	return old
}

// IntrEnable opens the gate and returns the previous level. Handlers
// cannot enable interrupts: preemption of an interrupt handler is not
// supported.
func IntrEnable() IntrLevel {
	kernelAssert(!IntrContext(), "IntrEnable from interrupt handler")
	old := intrLevel
	intrLevel = IntrOn
	return old
}

// IntrSetLevel sets the gate to level and returns the previous level.
// The usual pattern is old := IntrDisable(); ...; IntrSetLevel(old).
func IntrSetLevel(level IntrLevel) IntrLevel {
	if level == IntrOn {
		return IntrEnable()
	}
	return IntrDisable()
}

// IntrContext reports whether an external interrupt handler is running.
func IntrContext() bool {
	return inExternalIntr
}

// intrYieldOnReturn asks the interrupt exit path to yield the CPU on the
// current thread's behalf. Only valid inside a handler, which cannot
// call Yield itself.
func intrYieldOnReturn() {
	kernelAssert(IntrContext(), "yield-on-return outside interrupt handler")
	yieldOnReturn = true
}

// intrHandle delivers one external interrupt: it closes the gate, runs
// handler in interrupt context, and on return performs any yield the
// handler requested. Delivering an interrupt while the gate is closed
// is a contract violation and halts the kernel; the simulated devices
// never do that.
func intrHandle(handler func()) {
	kernelAssert(intrLevel == IntrOn, "interrupt delivered while masked")
	kernelAssert(!IntrContext(), "nested external interrupt")

	old := IntrDisable()
	inExternalIntr = true
	handler()
	inExternalIntr = false

	yield := yieldOnReturn
	yieldOnReturn = false
	IntrSetLevel(old)

	if yield {
		Yield()
	}
}

// throw halts the kernel. Contract violations are not recoverable: the
// scheduler is the mechanism any recovery would need.
func throw(msg string) {
	panic("kernel: " + msg)
}

func kernelAssert(cond bool, msg string) {
	if !cond {
		throw(msg)
	}
}
