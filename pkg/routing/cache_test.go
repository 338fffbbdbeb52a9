package routing

import (
	"fmt"
	"testing"
	"time"
)

func TestDecisionCache_SetGet(t *testing.T) {
	cache := NewDecisionCache(time.Minute, 0)
	defer cache.Close()

	key := cacheKey("s1", "chat", Estimate{InputUnits: 100, OutputUnits: 50})
	cache.Set(key, Decision{Backend: "large-model", EstimatedCost: 1.5, CacheHit: true})

	got, ok := cache.Get(key)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Backend != "large-model" || got.EstimatedCost != 1.5 {
		t.Errorf("got %+v", got)
	}
	if got.CacheHit {
		t.Error("the stored decision must not carry the CacheHit flag")
	}
}

func TestDecisionCache_MissOnDifferentEstimate(t *testing.T) {
	cache := NewDecisionCache(time.Minute, 0)
	defer cache.Close()

	cache.Set(cacheKey("s1", "chat", Estimate{InputUnits: 100}), Decision{Backend: "m"})

	if _, ok := cache.Get(cacheKey("s1", "chat", Estimate{InputUnits: 200})); ok {
		t.Error("different estimate must be a different key")
	}
	if _, ok := cache.Get(cacheKey("s2", "chat", Estimate{InputUnits: 100})); ok {
		t.Error("different scope must be a different key")
	}
}

func TestDecisionCache_TTLExpiry(t *testing.T) {
	cache := NewDecisionCache(30*time.Millisecond, 0)
	defer cache.Close()

	key := cacheKey("s1", "chat", Estimate{})
	cache.Set(key, Decision{Backend: "m"})

	if _, ok := cache.Get(key); !ok {
		t.Fatal("entry must be readable before TTL")
	}

	time.Sleep(60 * time.Millisecond)
	if _, ok := cache.Get(key); ok {
		t.Error("entry must expire after TTL")
	}
}

func TestDecisionCache_LRUEviction(t *testing.T) {
	cache := NewDecisionCache(time.Minute, 2)
	defer cache.Close()

	k1 := cacheKey("s1", "op1", Estimate{})
	k2 := cacheKey("s1", "op2", Estimate{})
	k3 := cacheKey("s1", "op3", Estimate{})

	cache.Set(k1, Decision{Backend: "a"})
	time.Sleep(2 * time.Millisecond)
	cache.Set(k2, Decision{Backend: "b"})
	time.Sleep(2 * time.Millisecond)

	// Touch k1 so k2 is the least recently used.
	cache.Get(k1)
	time.Sleep(2 * time.Millisecond)

	cache.Set(k3, Decision{Backend: "c"})

	if _, ok := cache.Get(k2); ok {
		t.Error("least recently used entry must be evicted")
	}
	if _, ok := cache.Get(k1); !ok {
		t.Error("recently accessed entry must survive")
	}
	if _, ok := cache.Get(k3); !ok {
		t.Error("new entry must be present")
	}
	if cache.Size() != 2 {
		t.Errorf("Size = %d, want 2", cache.Size())
	}
}

func TestDecisionCache_InvalidateRoute(t *testing.T) {
	cache := NewDecisionCache(time.Minute, 0)
	defer cache.Close()

	for i := 0; i < 5; i++ {
		cache.Set(cacheKey("s1", "chat", Estimate{InputUnits: int64(i)}), Decision{Backend: "m"})
	}
	cache.Set(cacheKey("s1", "summarize", Estimate{}), Decision{Backend: "m"})
	cache.Set(cacheKey("s2", "chat", Estimate{}), Decision{Backend: "m"})

	cache.InvalidateRoute("s1", "chat")

	for i := 0; i < 5; i++ {
		if _, ok := cache.Get(cacheKey("s1", "chat", Estimate{InputUnits: int64(i)})); ok {
			t.Fatalf("estimate variant %d survived invalidation", i)
		}
	}
	if _, ok := cache.Get(cacheKey("s1", "summarize", Estimate{})); !ok {
		t.Error("other operations in the scope must survive")
	}
	if _, ok := cache.Get(cacheKey("s2", "chat", Estimate{})); !ok {
		t.Error("the same operation in other scopes must survive")
	}
}

func TestDecisionCache_Clear(t *testing.T) {
	cache := NewDecisionCache(time.Minute, 0)
	defer cache.Close()

	for i := 0; i < 10; i++ {
		cache.Set(cacheKey("s1", fmt.Sprintf("op%d", i), Estimate{}), Decision{})
	}
	cache.Clear()
	if cache.Size() != 0 {
		t.Errorf("Size = %d after Clear, want 0", cache.Size())
	}
}

func TestDecisionCache_ConcurrentAccess(t *testing.T) {
	cache := NewDecisionCache(time.Minute, 100)
	defer cache.Close()

	done := make(chan struct{})
	for w := 0; w < 8; w++ {
		go func(w int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 200; i++ {
				key := cacheKey("s1", fmt.Sprintf("op%d", i%20), Estimate{InputUnits: int64(w)})
				cache.Set(key, Decision{Backend: "m"})
				cache.Get(key)
				if i%50 == 0 {
					cache.InvalidateRoute("s1", fmt.Sprintf("op%d", i%20))
				}
			}
		}(w)
	}
	for w := 0; w < 8; w++ {
		<-done
	}
}
