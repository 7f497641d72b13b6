package queue

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestFIFOOrder(t *testing.T) {
	q := New[int]()
	for i := 1; i <= 3; i++ {
		q.Enqueue(i)
	}
	for want := 1; want <= 3; want++ {
		got, ok := q.Dequeue()
		if !ok || got != want {
			t.Fatalf("expected %d, got %d (ok=%v)", want, got, ok)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d items", q.Len())
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("expected dequeue on empty queue to fail")
	}
}

func TestWaitBlocksUntilEnqueue(t *testing.T) {
	q := New[string]()
	got := make(chan string, 1)
	go func() {
		item, _ := q.Wait(context.Background())
		got <- item
	}()

	time.Sleep(20 * time.Millisecond)
	q.Enqueue("hello")

	select {
	case item := <-got:
		if item != "hello" {
			t.Fatalf("expected hello, got %q", item)
		}
	case <-time.After(time.Second):
		t.Fatal("expected Wait to return after Enqueue")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := q.Wait(ctx); ok {
		t.Fatal("expected Wait to fail on cancelled context")
	}
}

func TestCloseDrainsThenStops(t *testing.T) {
	q := New[int]()
	q.Enqueue(1)
	q.Close()

	if q.Enqueue(2) {
		t.Fatal("expected Enqueue after Close to fail")
	}
	if item, ok := q.Wait(context.Background()); !ok || item != 1 {
		t.Fatalf("expected queued item before close, got %d (ok=%v)", item, ok)
	}
	if _, ok := q.Wait(context.Background()); ok {
		t.Fatal("expected Wait on closed empty queue to fail")
	}
}

func TestConcurrentProducers(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Enqueue(i)
			}
		}()
	}
	wg.Wait()
	if q.Len() != 800 {
		t.Fatalf("expected 800 items, got %d", q.Len())
	}
	if dropped := q.Clear(); dropped != 800 || q.Len() != 0 {
		t.Fatalf("expected Clear to drop 800 items, got %d", dropped)
	}
}
