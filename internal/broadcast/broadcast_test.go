package broadcast

import (
	"sync"
	"testing"
)

func TestSubscribe_ReceivesLastValueImmediately(t *testing.T) {
	b := New[int]()
	b.Publish(7)
	ch, cancel := b.Subscribe(1)
	defer cancel()
	select {
	case v := <-ch:
		if v != 7 {
			t.Fatalf("got=%d want=7", v)
		}
	default:
		t.Fatalf("expected replay of last value")
	}
}

func TestPublish_DoesNotBlockOnFullSubscriber(t *testing.T) {
	b := New[int]()
	ch, cancel := b.Subscribe(1)
	defer cancel()
	for i := 0; i < 10; i++ {
		b.Publish(i)
	}
	if v := <-ch; v != 0 {
		t.Fatalf("got=%d want=0 (first buffered)", v)
	}
	if last, ok := b.Last(); !ok || last != 9 {
		t.Fatalf("last=%d ok=%v want 9", last, ok)
	}
}

func TestCancel_ClosesChannelAndIsIdempotent(t *testing.T) {
	b := New[string]()
	ch, cancel := b.Subscribe(2)
	if b.Subscribers() != 1 {
		t.Fatalf("subscribers=%d want 1", b.Subscribers())
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	if b.Subscribers() != 0 {
		t.Fatalf("subscribers=%d want 0", b.Subscribers())
	}
	// Publishing after cancel must not panic.
	b.Publish("x")
}

func TestClose_ClosesAllSubscribers(t *testing.T) {
	b := New[int]()
	ch1, cancel1 := b.Subscribe(1)
	ch2, _ := b.Subscribe(1)
	b.Close()
	for _, ch := range []<-chan int{ch1, ch2} {
		if _, ok := <-ch; ok {
			t.Fatalf("expected closed channel")
		}
	}
	cancel1()
	b.Publish(1)
	ch3, _ := b.Subscribe(1)
	if _, ok := <-ch3; ok {
		t.Fatalf("subscribe after close should yield closed channel")
	}
}

func TestConcurrentPublishAndCancel(t *testing.T) {
	b := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ch, cancel := b.Subscribe(1)
				b.Publish(j)
				<-ch
				cancel()
			}
		}()
	}
	wg.Wait()
	if b.Subscribers() != 0 {
		t.Fatalf("subscribers=%d want 0", b.Subscribers())
	}
}
