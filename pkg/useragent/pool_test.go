package useragent

import (
	"sync"
	"testing"
)

func TestPool_DefaultFallback(t *testing.T) {
	p := NewPool(nil)
	if len(p.GetAll()) != len(DefaultPool) {
		t.Fatalf("expected default pool of %d, got %d", len(DefaultPool), len(p.GetAll()))
	}
}

func TestPool_Sequential(t *testing.T) {
	uas := []string{"a", "b", "c"}
	p := NewPool(uas)

	for i := 0; i < 6; i++ {
		got := p.GetSequential()
		want := uas[i%3]
		if got != want {
			t.Errorf("call %d: expected %q, got %q", i, want, got)
		}
	}
}

func TestPool_Random(t *testing.T) {
	uas := []string{"a", "b"}
	p := NewPool(uas)

	for i := 0; i < 10; i++ {
		got := p.GetRandom()
		if got != "a" && got != "b" {
			t.Fatalf("unexpected value %q", got)
		}
	}
}

func TestPool_ConcurrentSequential(t *testing.T) {
	p := NewPool([]string{"a", "b", "c", "d"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p.GetSequential() == "" {
				t.Error("got empty user agent")
			}
		}()
	}
	wg.Wait()
}

func TestPool_CopyOnConstruct(t *testing.T) {
	uas := []string{"a", "b"}
	p := NewPool(uas)
	uas[0] = "mutated"

	if p.GetSequential() != "a" {
		t.Error("pool should not observe external mutation")
	}
}
