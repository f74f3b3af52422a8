package testing

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dCoord/lib/props"
)

// StoreFactory is a function that creates a new, empty property store
type StoreFactory func() props.IPropertyStore

// RunPropertyStoreTests runs the conformance suite for a property store implementation.
func RunPropertyStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("ListKeys", func(t *testing.T) {
			testListKeys(t, factory())
		})

		t.Run("SetIfUnset", func(t *testing.T) {
			testSetIfUnset(t, factory())
		})

		t.Run("ConcurrentSetIfUnset", func(t *testing.T) {
			testConcurrentSetIfUnset(t, factory())
		})

		t.Run("ConcurrentWrites", func(t *testing.T) {
			testConcurrentWrites(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// requireConditional skips the test if the store has no native conditional write
func requireConditional(t testing.TB, store props.IPropertyStore) props.IConditionalStore {
	c, ok := props.AsConditional(store)
	if !ok {
		t.Skip("store does not implement SetIfUnset")
	}
	return c
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, store props.IPropertyStore) {
	if err := store.Set("test-key", "value-1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, found, err := store.Get("test-key")
	if err != nil || !found {
		t.Fatalf("Expected key to exist after Set, found=%v err=%v", found, err)
	}
	if value != "value-1" {
		t.Errorf("Expected value-1, got %s", value)
	}

	if err := store.Set("test-key", "value-2"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, _, _ = store.Get("test-key")
	if value != "value-2" {
		t.Errorf("Expected overwrite to value-2, got %s", value)
	}

	_, found, err = store.Get("nonexistent-key")
	if err != nil {
		t.Fatalf("Get of missing key returned error: %v", err)
	}
	if found {
		t.Errorf("Expected nonexistent key to return found=false")
	}
}

func testDelete(t *testing.T, store props.IPropertyStore) {
	_ = store.Set("a", "1")
	_ = store.Set("b", "2")

	if err := store.Delete("a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, found, _ := store.Get("a"); found {
		t.Errorf("Key a should be deleted")
	}
	if _, found, _ := store.Get("b"); !found {
		t.Errorf("Key b should still exist")
	}

	// deleting a missing key is a no-op
	if err := store.Delete("never-set"); err != nil {
		t.Errorf("Delete of missing key returned error: %v", err)
	}
}

func testListKeys(t *testing.T, store props.IPropertyStore) {
	want := []string{"LOCK_project_1", "LOCK_project_2", "other"}
	for _, k := range want {
		if err := store.Set(k, "x"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	keys, err := store.ListKeys()
	if err != nil {
		t.Fatalf("ListKeys failed: %v", err)
	}
	sort.Strings(keys)
	if fmt.Sprint(keys) != fmt.Sprint(want) {
		t.Errorf("Expected keys %v, got %v", want, keys)
	}

	locks, err := props.ListKeysWithPrefix(store, "LOCK_")
	if err != nil {
		t.Fatalf("ListKeysWithPrefix failed: %v", err)
	}
	if len(locks) != 2 {
		t.Errorf("Expected 2 lock keys, got %v", locks)
	}
}

func testSetIfUnset(t *testing.T, store props.IPropertyStore) {
	c := requireConditional(t, store)

	stored, err := c.SetIfUnset("k", "first")
	if err != nil || !stored {
		t.Fatalf("Expected first SetIfUnset to store, stored=%v err=%v", stored, err)
	}

	stored, err = c.SetIfUnset("k", "second")
	if err != nil {
		t.Fatalf("SetIfUnset failed: %v", err)
	}
	if stored {
		t.Errorf("Expected second SetIfUnset to be rejected")
	}

	value, _, _ := c.Get("k")
	if value != "first" {
		t.Errorf("Expected value to remain first, got %s", value)
	}
}

func testConcurrentSetIfUnset(t *testing.T, store props.IPropertyStore) {
	c := requireConditional(t, store)

	numWorkers := 16
	var wg sync.WaitGroup
	var winners int32
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()
			stored, err := c.SetIfUnset("contended", fmt.Sprintf("worker-%d", workerId))
			if err != nil {
				t.Errorf("SetIfUnset failed: %v", err)
				return
			}
			if stored {
				atomic.AddInt32(&winners, 1)
			}
		}(w)
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("Expected exactly one winner, got %d", winners)
	}
}

func testConcurrentWrites(t *testing.T, store props.IPropertyStore) {
	numWorkers := 8
	perWorker := 100
	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("w%d-k%d", workerId, i)
				if err := store.Set(key, key); err != nil {
					t.Errorf("Set failed: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	keys, err := store.ListKeys()
	if err != nil {
		t.Fatalf("ListKeys failed: %v", err)
	}
	if len(keys) != numWorkers*perWorker {
		t.Errorf("Expected %d keys, got %d", numWorkers*perWorker, len(keys))
	}
}
