package parallel

import (
	"sync/atomic"
	"testing"
)

func TestExecuteAll(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	var sum atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		i := i
		work[i] = func() { sum.Add(int64(i)) }
	}
	p.ExecuteAll(work)

	if got := sum.Load(); got != 4950 {
		t.Fatalf("sum = %d; want 4950", got)
	}
}

func TestExecuteAllEmpty(t *testing.T) {
	p := NewPool(2)
	defer p.Close()
	p.ExecuteAll(nil)
}

func TestDefaultWorkerCount(t *testing.T) {
	p := NewPool(0)
	defer p.Close()
	if p.Workers() < 1 {
		t.Fatalf("Workers = %d; want >= 1", p.Workers())
	}
}

func TestExecuteAfterCloseRunsInline(t *testing.T) {
	p := NewPool(2)
	p.Close()

	var ran atomic.Int32
	p.ExecuteAll([]func(){
		func() { ran.Add(1) },
		func() { ran.Add(1) },
	})
	if ran.Load() != 2 {
		t.Fatalf("ran %d tasks after Close; want 2", ran.Load())
	}
}

func TestCloseIdempotent(t *testing.T) {
	p := NewPool(2)
	p.Close()
	p.Close()
}
