// Command pintos boots the simulated kernel and runs a small workload
// under the selected scheduler.
//
// Usage:
//
//	pintos            # priority scheduler demo (lock contention + donation)
//	pintos -o mlfqs   # MLFQ demo (load average and nice bias)
package main

import (
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/KosalSout1234/pintos/kernel"
)

func main() {
	opts := flag.String("o", "", `kernel options; "mlfqs" selects the MLFQ scheduler`)
	pages := flag.Int("pages", kernel.DefaultPages, "pages in the kernel page pool")
	verbose := flag.Bool("v", false, "debug-level kernel logging")
	flag.Parse()

	mlfqs := false
	switch *opts {
	case "":
	case "mlfqs":
		mlfqs = true
	default:
		fmt.Fprintf(os.Stderr, "unknown option %q\n", *opts)
		os.Exit(1)
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	cfg := kernel.Config{MLFQS: mlfqs, Pages: *pages}
	if mlfqs {
		kernel.Run(cfg, mlfqsDemo)
	} else {
		kernel.Run(cfg, priorityDemo)
	}
}

// priorityDemo reproduces the classic priority-inversion setup: a
// low-priority thread takes a lock a high-priority thread needs, with a
// CPU-bound middle thread trying to starve them both. Priority donation
// lets the low thread finish its critical section first.
func priorityDemo() {
	var lock kernel.Lock
	lock.Init()

	say := func(aux any) {
		fmt.Printf("[tick %3d] %s\n", kernel.Ticks(), aux.(string))
	}

	kernel.Create("low", 10, func(any) {
		lock.Acquire()
		say("low: acquired the lock")
		kernel.Spin(20)
		say("low: releasing the lock")
		lock.Release()
	}, nil)
	kernel.Sleep(1)

	kernel.Create("mid", 20, func(any) {
		say("mid: got the CPU")
		kernel.Spin(10)
	}, nil)
	kernel.Create("high", 30, func(any) {
		lock.Acquire()
		say("high: acquired the lock")
		lock.Release()
	}, nil)

	kernel.Sleep(100)
	kernel.PrintStats()
}

// mlfqsDemo runs competing CPU-bound threads at different nice values
// and reports their CPU shares and the load average.
func mlfqsDemo() {
	stop := false
	shares := make([]int64, 3)
	for i, nice := range []int{0, 5, 10} {
		i, nice := i, nice
		name := fmt.Sprintf("nice%d", nice)
		kernel.Create(name, kernel.PriDefault, func(any) {
			kernel.SetNice(nice)
			for !stop {
				kernel.Spin(1)
				shares[i]++
			}
		}, nil)
	}

	kernel.Sleep(30 * kernel.TimerFreq)
	stop = true

	fmt.Printf("after %d ticks: load_avg=%d.%02d\n",
		kernel.Ticks(), kernel.GetLoadAvg()/100, kernel.GetLoadAvg()%100)
	for i, nice := range []int{0, 5, 10} {
		fmt.Printf("  nice %2d ran for %d ticks\n", nice, shares[i])
	}
	kernel.PrintStats()
}
