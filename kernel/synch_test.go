package kernel

import "testing"

// Up wakes the highest-priority waiter first, regardless of the order
// the waiters went to sleep.
func TestSemaphoreWakesHighestPriority(t *testing.T) {
	var order []int
	var sema Semaphore

	Run(Config{}, func() {
		sema.Init(0)

		waiter := func(aux any) {
			sema.Down()
			order = append(order, aux.(int))
		}
		mustCreate(t, "w10", 10, waiter, 10)
		mustCreate(t, "w20", 20, waiter, 20)
		mustCreate(t, "w15", 15, waiter, 15)

		SetPriority(PriMin) // let every waiter run up to its Down

		for i := 0; i < 3; i++ {
			sema.Up()
		}
		SetPriority(PriDefault)

		want := []int{20, 15, 10}
		if len(order) != 3 {
			t.Fatalf("woke %d waiters, want 3: %v", len(order), order)
		}
		for i := range want {
			if order[i] != want[i] {
				t.Fatalf("wake order = %v, want %v", order, want)
			}
		}
	})
}

func TestSemaphoreTryDown(t *testing.T) {
	var sema Semaphore
	Run(Config{}, func() {
		sema.Init(1)
		if !sema.TryDown() {
			t.Fatal("TryDown failed on a semaphore with value 1")
		}
		if sema.TryDown() {
			t.Fatal("TryDown succeeded on a semaphore with value 0")
		}
		sema.Up()
		if !sema.TryDown() {
			t.Fatal("TryDown failed after Up")
		}
	})
}

func TestLockMutualExclusion(t *testing.T) {
	var lock Lock
	Run(Config{}, func() {
		lock.Init()

		inside := 0
		maxInside := 0
		body := func(any) {
			for i := 0; i < 3; i++ {
				lock.Acquire()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				Spin(2) // invite preemption inside the critical section
				inside--
				lock.Release()
				Spin(1)
			}
		}
		mustCreate(t, "a", 30, body, nil)
		mustCreate(t, "b", 30, body, nil)

		Sleep(100)

		if maxInside != 1 {
			t.Fatalf("critical section held by %d threads at once", maxInside)
		}
	})
}

func TestLockTryAcquire(t *testing.T) {
	var lock Lock
	Run(Config{}, func() {
		lock.Init()
		if !lock.TryAcquire() {
			t.Fatal("TryAcquire failed on a free lock")
		}
		if !lock.HeldByCurrent() {
			t.Fatal("TryAcquire succeeded but lock not held")
		}

		got := false
		mustCreate(t, "contender", 40, func(any) { got = lock.TryAcquire() }, nil)
		if got {
			t.Fatal("TryAcquire succeeded on a held lock")
		}
		lock.Release()
	})
}

// Release by a thread that does not hold the lock is a contract
// violation.
func TestLockReleaseByNonHolderPanics(t *testing.T) {
	var recovered any
	var lock Lock
	Run(Config{}, func() {
		lock.Init()
		func() {
			defer func() { recovered = recover() }()
			lock.Release()
		}()
	})
	if recovered == nil {
		t.Fatal("Release of an unheld lock did not panic")
	}
}

func TestCondSignal(t *testing.T) {
	var lock Lock
	var cond Cond
	Run(Config{}, func() {
		lock.Init()
		cond.Init()

		ready := false
		consumed := false
		mustCreate(t, "consumer", 20, func(any) {
			lock.Acquire()
			for !ready {
				cond.Wait(&lock)
			}
			consumed = true
			lock.Release()
		}, nil)

		SetPriority(PriMin) // consumer runs and waits
		if consumed {
			t.Fatal("consumer proceeded before the signal")
		}

		lock.Acquire()
		ready = true
		cond.Signal(&lock)
		lock.Release()

		SetPriority(PriDefault)
		if !consumed {
			t.Fatal("consumer never woke from the signal")
		}
	})
}

// Broadcast wakes every waiter; they drain in priority order.
func TestCondBroadcast(t *testing.T) {
	var lock Lock
	var cond Cond
	var order []int
	Run(Config{}, func() {
		lock.Init()
		cond.Init()

		released := false
		waiter := func(aux any) {
			lock.Acquire()
			for !released {
				cond.Wait(&lock)
			}
			order = append(order, aux.(int))
			lock.Release()
		}
		mustCreate(t, "w5", 5, waiter, 5)
		mustCreate(t, "w25", 25, waiter, 25)
		mustCreate(t, "w15", 15, waiter, 15)

		SetPriority(PriMin) // all three wait
		lock.Acquire()
		released = true
		cond.Broadcast(&lock)
		lock.Release()
		SetPriority(PriDefault)

		want := []int{25, 15, 5}
		if len(order) != 3 {
			t.Fatalf("woke %d waiters, want 3: %v", len(order), order)
		}
		for i := range want {
			if order[i] != want[i] {
				t.Fatalf("wake order = %v, want %v", order, want)
			}
		}
	})
}
