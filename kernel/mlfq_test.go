package kernel

import (
	"testing"

	"github.com/KosalSout1234/pintos/fixedpoint"
)

func TestMLFQPriorityFormula(t *testing.T) {
	tests := []struct {
		name      string
		recentCPU fixedpoint.FP
		nice      int
		want      int
	}{
		{"fresh thread", fixedpoint.Int(0), 0, PriMax},
		{"some cpu", fixedpoint.Int(40), 0, PriMax - 10},
		{"rounds the quotient", fixedpoint.Int(50), 0, PriMax - 13}, // 50/4 = 12.5 rounds to 13
		{"nice penalty", fixedpoint.Int(0), 5, PriMax - 10},
		{"negative nice bonus clamps high", fixedpoint.Int(0), -20, PriMax},
		{"clamps low", fixedpoint.Int(400), 20, PriMin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := &Thread{recentCPU: tt.recentCPU, nice: tt.nice}
			if got := mlfqPriority(th); got != tt.want {
				t.Errorf("mlfqPriority = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSetNiceClamps(t *testing.T) {
	Run(Config{MLFQS: true}, func() {
		SetNice(100)
		if got := GetNice(); got != NiceMax {
			t.Errorf("GetNice after SetNice(100) = %d, want %d", got, NiceMax)
		}
		SetNice(-100)
		if got := GetNice(); got != NiceMin {
			t.Errorf("GetNice after SetNice(-100) = %d, want %d", got, NiceMin)
		}
		SetNice(3)
		if got := GetNice(); got != 3 {
			t.Errorf("GetNice after SetNice(3) = %d, want 3", got)
		}
	})
}

// A lone CPU-bound thread's recent CPU usage rises by one unit every
// tick, and its derived priority only falls, until the first
// once-per-second decay.
func TestMLFQRecentCPURises(t *testing.T) {
	Run(Config{MLFQS: true}, func() {
		cur := Current()
		prevCPU := cur.recentCPU
		prevPri := mlfqPriority(cur)
		for i := 0; i < 90; i++ {
			Spin(1)
			if cur.recentCPU <= prevCPU {
				t.Fatalf("tick %d: recent_cpu %v did not increase from %v",
					i, cur.recentCPU, prevCPU)
			}
			if p := mlfqPriority(cur); p > prevPri {
				t.Fatalf("tick %d: priority rose from %d to %d", i, prevPri, p)
			} else {
				prevPri = p
			}
			prevCPU = cur.recentCPU
		}

		// After enough whole seconds the decay balances the per-tick
		// increment and the priority settles near the bottom.
		Spin(30000)
		if p := mlfqPriority(Current()); p > 15 {
			t.Errorf("steady-state priority = %d, want settled low", p)
		}
		if GetRecentCPU() <= 0 {
			t.Errorf("GetRecentCPU() = %d, want positive", GetRecentCPU())
		}
	})
}

// With k constantly ready threads the load average converges to k.
func TestMLFQLoadAverageConvergence(t *testing.T) {
	if testing.Short() {
		t.Skip("long virtual run")
	}
	Run(Config{MLFQS: true}, func() {
		stop := false
		spinner := func(any) {
			for !stop {
				Spin(1)
			}
		}
		mustCreate(t, "spin1", PriDefault, spinner, nil)
		mustCreate(t, "spin2", PriDefault, spinner, nil)

		if got := GetLoadAvg(); got != 0 {
			t.Errorf("boot load average = %d, want 0", got)
		}

		// Three CPU-bound threads total; several virtual minutes.
		Spin(7000)

		if got := GetLoadAvg(); got < 260 || got > 300 {
			t.Errorf("load average = %d/100 with 3 ready threads, want near 300", got)
		}
		stop = true
	})
}

// A nicer thread receives strictly less CPU than an equally busy
// thread at nice 0.
func TestMLFQNiceFairness(t *testing.T) {
	if testing.Short() {
		t.Skip("long virtual run")
	}
	Run(Config{MLFQS: true}, func() {
		stop := false
		var ticks0, ticks5 int64
		mustCreate(t, "nice0", PriDefault, func(any) {
			for !stop {
				Spin(1)
				ticks0++
			}
		}, nil)
		mustCreate(t, "nice5", PriDefault, func(any) {
			SetNice(5)
			for !stop {
				Spin(1)
				ticks5++
			}
		}, nil)

		Sleep(1000) // ten seconds of the two competing
		stop = true

		if ticks5 == 0 {
			t.Fatal("nice-5 thread never ran")
		}
		if ticks0 <= ticks5 {
			t.Errorf("CPU share: nice0=%d nice5=%d, want nice0 strictly greater", ticks0, ticks5)
		}
	})
}

// Queue moves happen at the periodic recomputation: a queued thread
// whose formula priority changed is appended to its new queue.
func TestMLFQQueueMoves(t *testing.T) {
	Run(Config{MLFQS: true}, func() {
		stop := false
		mustCreate(t, "busy", PriDefault, func(any) {
			for !stop {
				Spin(1)
			}
		}, nil)

		// Let both threads accumulate CPU across a recomputation.
		Spin(150)

		old := IntrDisable()
		var busy *Thread
		Foreach(func(th *Thread) {
			if th.name == "busy" {
				busy = th
			}
		})
		if busy == nil {
			t.Fatal("busy thread not found")
		}
		if busy.status == StatusReady {
			want := mlfqPriority(busy)
			found := -1
			for i := PriMin; i <= PriMax; i++ {
				for e := mlfq.queues[i].Front(); e != nil; e = e.Next() {
					if e.Item() == busy {
						found = i
					}
				}
			}
			// busy last re-entered its queue after the most recent
			// recomputation and has not run since, so the queue index
			// matches the formula exactly here.
			if found != want {
				t.Errorf("busy queued at priority %d, formula says %d", found, want)
			}
		}
		IntrSetLevel(old)
		stop = true
	})
}
