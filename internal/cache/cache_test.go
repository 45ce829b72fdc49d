package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/riskscore/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

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
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)

		err := cache.Delete(ctx, "key2")
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		clocked := NewLRUCache(10)
		clocked.now = func() time.Time { return now }

		_ = clocked.Set(ctx, "expiring", []byte("temp"), 10*time.Second)

		// Should be available immediately
		val, _ := clocked.Get(ctx, "expiring")
		if val == nil {
			t.Error("expected value before expiration")
		}

		now = now.Add(11 * time.Second)

		val, _ = clocked.Get(ctx, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3)

		_ = smallCache.Set(ctx, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, "c", []byte("3"), time.Minute)

		// Access 'a' to make it recently used
		_, _ = smallCache.Get(ctx, "a")

		// Add 'd' - should evict 'b' (oldest accessed)
		_ = smallCache.Set(ctx, "d", []byte("4"), time.Minute)

		// 'b' should be evicted
		val, _ := smallCache.Get(ctx, "b")
		if val != nil {
			t.Error("expected 'b' to be evicted")
		}

		// 'a' should still be there
		val, _ = smallCache.Get(ctx, "a")
		if val == nil {
			t.Error("expected 'a' to still exist")
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

	t.Run("HistoryCache", func(t *testing.T) {
		lastSeen := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
		h := &domain.HistoryAggregate{
			ClientID:      "client-001",
			BeneficiaryID: "bene-001",
			AvgAmount:     decimal.NewNullDecimal(decimal.RequireFromString("1000.50")),
			LastSeen:      &lastSeen,
		}

		if err := cache.SetHistory(ctx, h, time.Minute); err != nil {
			t.Fatalf("SetHistory failed: %v", err)
		}

		retrieved, err := cache.GetHistory(ctx, "client-001", "bene-001")
		if err != nil {
			t.Fatalf("GetHistory failed: %v", err)
		}
		if retrieved == nil {
			t.Fatal("expected cached aggregate")
		}
		if !retrieved.AvgAmount.Decimal.Equal(h.AvgAmount.Decimal) {
			t.Errorf("expected avg %s, got %s", h.AvgAmount.Decimal, retrieved.AvgAmount.Decimal)
		}
		if retrieved.LastSeen == nil || !retrieved.LastSeen.Equal(lastSeen) {
			t.Errorf("expected last seen %v, got %v", lastSeen, retrieved.LastSeen)
		}

		miss, err := cache.GetHistory(ctx, "client-001", "bene-999")
		if err != nil || miss != nil {
			t.Errorf("expected miss, got %v, %v", miss, err)
		}
	})

	t.Run("HistoryNullAverage", func(t *testing.T) {
		h := &domain.HistoryAggregate{ClientID: "client-002", BeneficiaryID: "bene-002"}
		if err := cache.SetHistory(ctx, h, time.Minute); err != nil {
			t.Fatalf("SetHistory failed: %v", err)
		}
		retrieved, err := cache.GetHistory(ctx, "client-002", "bene-002")
		if err != nil {
			t.Fatalf("GetHistory failed: %v", err)
		}
		if retrieved.AvgAmount.Valid {
			t.Error("expected null average to survive the round trip")
		}
	})

	t.Run("HistoryRequiresIDs", func(t *testing.T) {
		if err := cache.SetHistory(ctx, &domain.HistoryAggregate{ClientID: "c"}, time.Minute); err == nil {
			t.Error("expected error for missing beneficiary ID")
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

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("Close", func(t *testing.T) {
		testCache := NewLRUCache(10)
		_ = testCache.Set(ctx, "k", []byte("v"), time.Minute)

		err := testCache.Close()
		if err != nil {
			t.Errorf("Close failed: %v", err)
		}

		// Cache should be empty after close
		val, _ := testCache.Get(ctx, "k")
		if val != nil {
			t.Error("expected cache to be cleared after close")
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

		_, ok := cache.(*LRUCache)
		if !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		cfg := domain.CacheConfig{
			Type: "memcached",
		}

		_, err := New(cfg)
		if err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestTwoPhaseCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis-backed test")
	}

	c, err := NewTwoPhaseCache(domain.CacheConfig{
		RedisAddr:    addr,
		LocalMaxSize: 10,
		LocalTTL:     time.Second,
	})
	if err != nil {
		t.Fatalf("NewTwoPhaseCache failed: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	h := &domain.HistoryAggregate{
		ClientID:      "client-tp",
		BeneficiaryID: "bene-tp",
		AvgAmount:     decimal.NewNullDecimal(decimal.NewFromInt(42)),
	}
	if err := c.SetHistory(ctx, h, time.Minute); err != nil {
		t.Fatalf("SetHistory failed: %v", err)
	}
	defer c.Delete(ctx, historyKey(h.ClientID, h.BeneficiaryID))

	// Drop L1 so the read has to come from Redis
	_ = c.local.Delete(ctx, historyKey(h.ClientID, h.BeneficiaryID))

	got, err := c.GetHistory(ctx, "client-tp", "bene-tp")
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if got == nil || !got.AvgAmount.Decimal.Equal(decimal.NewFromInt(42)) {
		t.Fatalf("unexpected aggregate %+v", got)
	}

	if size, _ := c.Stats(); size != 1 {
		t.Errorf("expected L2 hit to repopulate L1, size %d", size)
	}
}

func TestTwoPhaseLocalTTL(t *testing.T) {
	c := newTwoPhase(NewLRUCache(10), nil, 5*time.Second)

	if got := c.localTTL(time.Second); got != time.Second {
		t.Errorf("expected shorter caller TTL to win, got %v", got)
	}
	if got := c.localTTL(time.Minute); got != 5*time.Second {
		t.Errorf("expected L1 TTL cap, got %v", got)
	}
}
