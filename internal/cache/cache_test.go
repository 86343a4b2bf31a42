package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/bonusledger/internal/domain"
)

func TestLRUCache(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(100)
	defer cache.Close()

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, "key1", []byte("value1"), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected value1, got %s", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil, got %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)
		if err := cache.Delete(ctx, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, "expiring", []byte("value"), 50*time.Millisecond)

		val, _ := cache.Get(ctx, "expiring")
		if val == nil {
			t.Fatal("expected value before expiration")
		}

		time.Sleep(100 * time.Millisecond)

		val, _ = cache.Get(ctx, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3)
		defer smallCache.Close()

		_ = smallCache.Set(ctx, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, "c", []byte("3"), time.Minute)

		// Access 'a' to make it recently used
		_, _ = smallCache.Get(ctx, "a")

		// Add 'd', should evict 'b' (least recently used)
		_ = smallCache.Set(ctx, "d", []byte("4"), time.Minute)

		if val, _ := smallCache.Get(ctx, "a"); val == nil {
			t.Error("expected 'a' to still exist")
		}
		if val, _ := smallCache.Get(ctx, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
	})

	t.Run("RequiresKey", func(t *testing.T) {
		if err := cache.Set(ctx, "", []byte("value"), time.Minute); err == nil {
			t.Error("expected error for empty key")
		}
		if _, err := cache.Get(ctx, ""); err == nil {
			t.Error("expected error for empty key")
		}
	})

	t.Run("Stats", func(t *testing.T) {
		statsCache := NewLRUCache(50)
		_ = statsCache.Set(ctx, "k1", []byte("v1"), time.Minute)
		_ = statsCache.Set(ctx, "k2", []byte("v2"), time.Minute)

		size, capacity := statsCache.Stats()
		if size != 2 {
			t.Errorf("expected size 2, got %d", size)
		}
		if capacity != 50 {
			t.Errorf("expected capacity 50, got %d", capacity)
		}
	})

	t.Run("Close", func(t *testing.T) {
		testCache := NewLRUCache(10)
		_ = testCache.Set(ctx, "k", []byte("v"), time.Minute)

		if err := testCache.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}

		val, _ := testCache.Get(ctx, "k")
		if val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func finishedBatch(id string) *domain.ProcessingBatch {
	finished := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &domain.ProcessingBatch{
		ID:         id,
		Filename:   "export.csv",
		Status:     domain.BatchCompleted,
		AsOf:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:  finished.Add(-time.Minute),
		FinishedAt: &finished,
		Report: &domain.BatchReport{
			RowsRead:         4,
			StandardCreated:  2,
			ReversalsCreated: 1,
		},
	}
}

func TestBatchCache(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(10)
	defer cache.Close()

	t.Run("RoundTrip", func(t *testing.T) {
		if err := cache.SetBatch(ctx, finishedBatch("b-1"), time.Minute); err != nil {
			t.Fatalf("SetBatch failed: %v", err)
		}

		got, err := cache.GetBatch(ctx, "b-1")
		if err != nil {
			t.Fatalf("GetBatch failed: %v", err)
		}
		if got == nil {
			t.Fatal("expected cached batch")
		}
		if got.Status != domain.BatchCompleted {
			t.Errorf("expected COMPLETED, got %s", got.Status)
		}
		if got.Report == nil || got.Report.TransactionsCreated() != 3 {
			t.Errorf("expected report with 3 transactions, got %+v", got.Report)
		}
	})

	t.Run("Miss", func(t *testing.T) {
		got, err := cache.GetBatch(ctx, "unknown")
		if err != nil {
			t.Fatalf("GetBatch failed: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})

	t.Run("RejectsRunningBatch", func(t *testing.T) {
		b := finishedBatch("b-2")
		b.Status = domain.BatchRunning
		b.FinishedAt = nil

		if err := cache.SetBatch(ctx, b, time.Minute); err == nil {
			t.Error("expected error caching a running batch")
		}
		if got, _ := cache.GetBatch(ctx, "b-2"); got != nil {
			t.Error("running batch must not be cached")
		}
	})
}

func TestTwoPhaseCache(t *testing.T) {
	ctx := context.Background()

	t.Run("ReadThroughPopulatesL1", func(t *testing.T) {
		local := NewLRUCache(10)
		remote := NewLRUCache(10)
		cache := NewTwoPhaseCache(local, remote, time.Minute)
		defer cache.Close()

		_ = remote.Set(ctx, "shared", []byte("from-l2"), time.Minute)

		val, err := cache.Get(ctx, "shared")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "from-l2" {
			t.Errorf("expected from-l2, got %s", string(val))
		}

		if l1, _ := local.Get(ctx, "shared"); string(l1) != "from-l2" {
			t.Error("expected L1 to be populated after L2 hit")
		}
	})

	t.Run("WritesBothLevels", func(t *testing.T) {
		local := NewLRUCache(10)
		remote := NewLRUCache(10)
		cache := NewTwoPhaseCache(local, remote, time.Minute)
		defer cache.Close()

		if err := cache.SetBatch(ctx, finishedBatch("b-3"), time.Hour); err != nil {
			t.Fatalf("SetBatch failed: %v", err)
		}

		for name, level := range map[string]*LRUCache{"L1": local, "L2": remote} {
			got, err := level.GetBatch(ctx, "b-3")
			if err != nil || got == nil {
				t.Errorf("%s: expected cached batch, got %v (err %v)", name, got, err)
			}
		}

		if err := cache.Delete(ctx, batchKey("b-3")); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if got, _ := cache.GetBatch(ctx, "b-3"); got != nil {
			t.Error("expected batch removed from both levels")
		}
	})

	t.Run("L1TTLCapped", func(t *testing.T) {
		local := NewLRUCache(10)
		remote := NewLRUCache(10)
		cache := NewTwoPhaseCache(local, remote, 50*time.Millisecond)
		defer cache.Close()

		_ = cache.Set(ctx, "k", []byte("v"), time.Minute)
		time.Sleep(100 * time.Millisecond)

		if l1, _ := local.Get(ctx, "k"); l1 != nil {
			t.Error("expected L1 entry to expire first")
		}
		if val, _ := cache.Get(ctx, "k"); string(val) != "v" {
			t.Error("expected value served from L2")
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cfg := domain.CacheConfig{
			Type:         "memory",
			LocalMaxSize: 100,
		}

		cache, err := New(cfg)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		if _, ok := cache.(*LRUCache); !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		cfg := domain.CacheConfig{
			Type: "memcached",
		}

		if _, err := New(cfg); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func BenchmarkLRUCacheGet(b *testing.B) {
	ctx := context.Background()
	cache := NewLRUCache(10000)
	for i := 0; i < 1000; i++ {
		_ = cache.Set(ctx, fmt.Sprintf("key%d", i), []byte("value"), time.Minute)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = cache.Get(ctx, fmt.Sprintf("key%d", i%1000))
	}
}
