package rotation

import (
	"sync"
	"testing"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := newKeyedMutex()
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.lock("shared")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("expected 50 increments, got %d", counter)
	}
}

func TestKeyedMutexEvictsIdleKeys(t *testing.T) {
	km := newKeyedMutex()
	unlockA := km.lock("a")
	unlockB := km.lock("b")
	if km.size() != 2 {
		t.Fatalf("expected 2 tracked keys, got %d", km.size())
	}
	unlockA()
	unlockB()
	if km.size() != 0 {
		t.Fatalf("expected idle keys evicted, got %d", km.size())
	}
}

func TestKeyedMutexIndependentKeysDoNotBlock(t *testing.T) {
	km := newKeyedMutex()
	unlockA := km.lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := km.lock("b")
		unlockB()
		close(done)
	}()
	<-done
	unlockA()
}
