package rhmap

import (
	"runtime"
	"sync"
	"testing"
)

func TestMap_BasicOperations(t *testing.T) {
	m := NewMap[string, int]()
	if _, ok := m.Find("a"); ok {
		t.Fatalf("expected empty map")
	}
	if !m.Insert("a", 1) {
		t.Fatalf("expected fresh insert to succeed")
	}
	if m.Insert("a", 2) {
		t.Fatalf("expected duplicate insert to be rejected")
	}
	v, ok := m.Find("a")
	if !ok || v != 1 {
		t.Fatalf("Find got (%v, %v), want (1, true)", v, ok)
	}
	if !m.Contains("a") {
		t.Fatalf("expected Contains(a) true")
	}
	if m.Count("a") != 1 {
		t.Fatalf("expected Count(a) == 1")
	}
	if m.Count("missing") != 0 {
		t.Fatalf("expected Count(missing) == 0")
	}
	if m.Size() != 1 {
		t.Fatalf("Size = %d, want 1", m.Size())
	}
	if m.Empty() {
		t.Fatalf("expected non-empty map")
	}
	if !m.Erase("a") {
		t.Fatalf("expected erase to succeed")
	}
	if !m.Empty() {
		t.Fatalf("expected empty map after erase")
	}
}

func TestMap_InsertOrAssign(t *testing.T) {
	m := NewMap[int, int]()
	if !m.InsertOrAssign(1, 10) {
		t.Fatalf("expected fresh InsertOrAssign to report true")
	}
	if m.InsertOrAssign(1, 20) {
		t.Fatalf("expected overwrite to report false")
	}
	v, _ := m.Find(1)
	if v != 20 {
		t.Fatalf("Find = %d, want 20", v)
	}
}

func TestMap_TryEmplace(t *testing.T) {
	m := NewMap[int, int]()
	calls := 0
	if !m.TryEmplace(1, func() int { calls++; return 5 }) {
		t.Fatalf("expected first TryEmplace to insert")
	}
	if m.TryEmplace(1, func() int { calls++; return 9 }) {
		t.Fatalf("expected second TryEmplace on same key to fail")
	}
	if calls != 1 {
		t.Fatalf("factory invoked %d times, want 1", calls)
	}
}

func TestMap_GetOrSetAndGetOrSetFunc(t *testing.T) {
	m := NewMap[string, int]()
	if v := m.GetOrSet("k", 1); v != 1 {
		t.Fatalf("GetOrSet on absent key = %d, want 1", v)
	}
	if v := m.GetOrSet("k", 2); v != 1 {
		t.Fatalf("GetOrSet on present key = %d, want existing 1", v)
	}
	calls := 0
	if v := m.GetOrSetFunc("f", func() int { calls++; return 7 }); v != 7 {
		t.Fatalf("GetOrSetFunc on absent key = %d, want 7", v)
	}
	if v := m.GetOrSetFunc("f", func() int { calls++; return 8 }); v != 7 {
		t.Fatalf("GetOrSetFunc on present key = %d, want 7", v)
	}
	if calls != 1 {
		t.Fatalf("factory invoked %d times, want 1", calls)
	}
}

func TestMap_ClearAndReserve(t *testing.T) {
	m := NewMap[int, int](WithShardBits(2))
	m.Reserve(1000)
	for i := 0; i < 500; i++ {
		m.Insert(i, i)
	}
	if m.Size() != 500 {
		t.Fatalf("Size = %d, want 500", m.Size())
	}
	m.Clear()
	if !m.Empty() {
		t.Fatalf("expected empty map after Clear")
	}
	for i := 0; i < 500; i++ {
		if m.Contains(i) {
			t.Fatalf("key %d should be gone after Clear", i)
		}
	}
}

func TestMap_Stats(t *testing.T) {
	m := NewMap[int, int](WithShardBits(2))
	for i := 0; i < 40; i++ {
		m.Insert(i, i)
	}
	stats := m.Stats()
	if len(stats) != 4 {
		t.Fatalf("expected 4 shards with WithShardBits(2), got %d", len(stats))
	}
	total := 0
	for _, s := range stats {
		total += s.Size
	}
	if total != 40 {
		t.Fatalf("sum of shard sizes = %d, want 40", total)
	}
}

func TestMap_CustomHasherAndEqual(t *testing.T) {
	calls := 0
	m := NewMapWithHasher[int, string](
		func(k int, seed uint64) uint64 {
			calls++
			return uint64(k) ^ seed
		},
		func(a, b int) bool { return a == b },
	)
	m.Insert(1, "one")
	if _, ok := m.Find(1); !ok {
		t.Fatalf("expected to find key inserted with custom hasher")
	}
	if calls == 0 {
		t.Fatalf("expected custom hasher to be invoked")
	}
}

func TestMap_InsertManyAndResize(t *testing.T) {
	m := NewMap[int, int](WithShardBits(2))
	const n = 2000
	for i := 0; i < n; i++ {
		if !m.Insert(i, i*2) {
			t.Fatalf("insert(%d) failed", i)
		}
	}
	if m.Size() != n {
		t.Fatalf("Size = %d, want %d", m.Size(), n)
	}
	for i := 0; i < n; i++ {
		v, ok := m.Find(i)
		if !ok || v != i*2 {
			t.Fatalf("Find(%d) = (%v, %v), want (%d, true)", i, v, ok, i*2)
		}
	}
}

func TestMap_InsertThenEraseKeepsSurvivors(t *testing.T) {
	m := NewMap[int, int](WithShardBits(1))
	const n = 200
	for i := 0; i < n; i++ {
		m.Insert(i, i)
	}
	for i := 0; i < n-10; i++ {
		if !m.Erase(i) {
			t.Fatalf("erase(%d) failed", i)
		}
	}
	if m.Size() != 10 {
		t.Fatalf("Size = %d, want 10", m.Size())
	}
	for i := n - 10; i < n; i++ {
		if !m.Contains(i) {
			t.Fatalf("surviving key %d missing", i)
		}
	}
}

func TestMap_ConcurrentGetOrSetFunc_FactoryOnce(t *testing.T) {
	m := NewMap[int, int]()
	var calls int64
	var mu sync.Mutex
	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	results := make([]int, n)
	for i := 0; i < n; i++ {
		go func(idx int) {
			defer wg.Done()
			results[idx] = m.GetOrSetFunc(7, func() int {
				mu.Lock()
				calls++
				mu.Unlock()
				return 4321
			})
		}(i)
	}
	wg.Wait()
	if calls != 1 {
		t.Fatalf("factory invoked %d times across %d goroutines, want 1", calls, n)
	}
	for i, v := range results {
		if v != 4321 {
			t.Fatalf("goroutine %d observed %d, want 4321", i, v)
		}
	}
}

func TestMap_ConcurrentDisjointInserts(t *testing.T) {
	m := NewMap[int, int]()
	n := runtime.GOMAXPROCS(0) * 2
	if n < 16 {
		n = 16
	}
	const perWorker = 1000
	var wg sync.WaitGroup
	wg.Add(n)
	for w := 0; w < n; w++ {
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := base*perWorker + i
				if !m.Insert(key, key*3) {
					t.Errorf("insert(%d) unexpectedly rejected", key)
				}
			}
		}(w)
	}
	wg.Wait()

	if want := n * perWorker; m.Size() != want {
		t.Fatalf("Size = %d, want %d", m.Size(), want)
	}
	for w := 0; w < n; w++ {
		for i := 0; i < perWorker; i++ {
			key := w*perWorker + i
			v, ok := m.Find(key)
			if !ok || v != key*3 {
				t.Fatalf("Find(%d) = (%v, %v), want (%d, true)", key, v, ok, key*3)
			}
		}
	}
}

func TestMap_ConcurrentReadWriteDuringResize(t *testing.T) {
	m := NewMap[int, int](WithShardBits(0))
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			m.InsertOrAssign(i%5000, i)
		}
	}()

	for i := 0; i < 50000; i++ {
		m.Find(i % 5000)
	}
	close(stop)
	wg.Wait()
}

func TestMapWithMutex_UsesStdlibMutex(t *testing.T) {
	m := NewMapWithMutex[string, int, sync.Mutex, *sync.Mutex]()
	if !m.Insert("a", 1) {
		t.Fatalf("expected insert to succeed")
	}
	v, ok := m.Find("a")
	if !ok || v != 1 {
		t.Fatalf("Find got (%v, %v), want (1, true)", v, ok)
	}
}

func TestMap_NoCopyDoesNotPreventUseByPointer(t *testing.T) {
	m := NewMap[int, int]()
	use := func(mm *Map[int, int]) {
		mm.Insert(1, 1)
	}
	use(m)
	if !m.Contains(1) {
		t.Fatalf("expected insert through pointer helper to be visible")
	}
}
