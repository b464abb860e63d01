package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/sentinelcore/sentinelcore/internal/httpserver"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPool_SubmitAndDrain(t *testing.T) {
	var woke atomic.Int32
	p := New(Config{Workers: 2, QueueDepth: 8, Wake: func() { woke.Add(1) }})

	var wg sync.WaitGroup
	results := make([]int, 4)
	for i := 0; i < 4; i++ {
		i := i
		wg.Add(1)
		accepted := p.Submit(func() *httpserver.Response {
			return httpserver.NewResponse(200+i, nil)
		}, func(resp *httpserver.Response) {
			results[i] = resp.Status
			wg.Done()
		})
		if !accepted {
			t.Fatalf("submit %d rejected unexpectedly", i)
		}
	}

	deadline := time.After(2 * time.Second)
	done := make(chan struct{})
	go func() {
		for {
			p.Drain()
			select {
			case <-deadline:
				close(done)
				return
			default:
			}
			time.Sleep(time.Millisecond)
			allDone := true
			for i := range results {
				if results[i] == 0 {
					allDone = false
				}
			}
			if allDone {
				close(done)
				return
			}
		}
	}()
	<-done
	wg.Wait()

	for i, status := range results {
		if status != 200+i {
			t.Fatalf("result %d: got status %d", i, status)
		}
	}
	if woke.Load() == 0 {
		t.Fatal("expected wake to be called at least once")
	}

	p.Shutdown()
}

func TestPool_SetWakerInstallsLateCallback(t *testing.T) {
	var woke atomic.Int32
	p := New(Config{Workers: 2, QueueDepth: 8})

	p.SetWaker(func() { woke.Add(1) })

	var wg sync.WaitGroup
	wg.Add(1)
	accepted := p.Submit(func() *httpserver.Response {
		return httpserver.NewResponse(200, nil)
	}, func(*httpserver.Response) { wg.Done() })
	if !accepted {
		t.Fatal("submit rejected unexpectedly")
	}

	deadline := time.After(2 * time.Second)
	for woke.Load() == 0 {
		p.Drain()
		select {
		case <-deadline:
			t.Fatal("waker never invoked after SetWaker")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	wg.Wait()
	p.Shutdown()
}

func TestPool_RejectsWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	p := New(Config{Workers: 1, QueueDepth: 1, Wake: func() {}})

	accepted1 := p.Submit(func() *httpserver.Response {
		<-block
		return httpserver.NewResponse(200, nil)
	}, func(*httpserver.Response) {})
	if !accepted1 {
		t.Fatal("first submit should be accepted")
	}

	var rejected bool
	for i := 0; i < 10; i++ {
		if !p.Submit(func() *httpserver.Response { return httpserver.NewResponse(200, nil) }, func(*httpserver.Response) {}) {
			rejected = true
			break
		}
	}
	close(block)
	p.Shutdown()

	if !rejected {
		t.Fatal("expected at least one rejection once backlog filled")
	}
	if p.Rejected() == 0 {
		t.Fatal("expected Rejected() to be non-zero")
	}
}
