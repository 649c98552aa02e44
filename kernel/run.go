package kernel

import (
	log "github.com/sirupsen/logrus"

	"github.com/KosalSout1234/pintos/palloc"
)

// DefaultPages is the size of the kernel page pool when Config.Pages is
// not set. Each thread's stack takes one page, so this bounds the
// number of live threads.
const DefaultPages = 256

// Config selects boot-time options. There is no runtime reconfiguration;
// the values are read once by Run.
type Config struct {
	// MLFQS selects the multi-level feedback queue scheduler instead of
	// the default priority scheduler (kernel command line "-o mlfqs").
	MLFQS bool

	// Pages is the number of pages in the allocator pool; 0 means
	// DefaultPages.
	Pages int
}

// Hooks into the user-program layer, nil unless user programs are
// compiled in. ProcessActivate is called on every context switch to
// activate the incoming thread's address space; ProcessExit is called
// when a thread exits, before the scheduler tears it down.
var (
	ProcessActivate func()
	ProcessExit     func()
)

// Run boots the kernel and executes main as the body of the initial
// thread, returning when main does. Boot order matters and is fixed:
// the timer and page allocator come up first, then the thread system
// transforms the caller into the initial thread, then preemptive
// scheduling starts with the creation of the idle thread.
//
// When main returns the machine powers off: interrupts are disabled and
// any remaining threads simply never run again. The initial thread must
// not call Exit.
func Run(cfg Config, main func()) {
	if cfg.Pages <= 0 {
		cfg.Pages = DefaultPages
	}

	intrLevel = IntrOff
	inExternalIntr = false
	yieldOnReturn = false

	timerInit()
	palloc.Init(cfg.Pages)
	threadInit(cfg.MLFQS)

	log.WithFields(log.Fields{
		"mlfqs": cfg.MLFQS,
		"pages": cfg.Pages,
	}).Info("kernel booting")

	threadStart()

	main()

	IntrDisable()
	log.WithField("ticks", ticks).Debug("kernel powering off")
}
