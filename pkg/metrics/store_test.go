package metrics

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"polaris-ai/polaris/pkg/catalog"
)

func newTestStore(t *testing.T) *SQLiteBucketStore {
	t.Helper()
	store, err := NewSQLiteBucketStore(filepath.Join(t.TempDir(), "metrics.db"))
	if err != nil {
		t.Fatalf("NewSQLiteBucketStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testKey(window time.Time) BucketKey {
	return BucketKey{
		ProviderID:   "provider-a",
		LogicalModel: "chat-large",
		Transport:    catalog.TransportHTTP,
		IsStream:     false,
		WindowStart:  window,
	}
}

func TestSQLiteBucketStore_UpsertAccumulates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	window := time.Now().UTC().Truncate(time.Minute)
	key := testKey(window)

	outcomes := []struct {
		kind    OutcomeKind
		latency int64
	}{
		{OutcomeSuccess, 100},
		{OutcomeSuccess, 200},
		{OutcomeError, 50},
		{OutcomeCancelled, 0},
	}
	for _, out := range outcomes {
		if err := store.Upsert(ctx, key, out.kind, out.latency, 200, 200); err != nil {
			t.Fatalf("Upsert(%s) error = %v", out.kind, err)
		}
	}

	buckets, err := store.History(ctx, key.ProviderID, key.LogicalModel, window.Add(-time.Minute))
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(buckets) != 1 {
		t.Fatalf("History() = %d buckets, want 1 (same key accumulates)", len(buckets))
	}

	b := buckets[0]
	if b.SuccessRequests != 2 || b.ErrorRequests != 1 || b.CancelledRequests != 1 {
		t.Errorf("counters = (s=%d, e=%d, c=%d), want (2, 1, 1)",
			b.SuccessRequests, b.ErrorRequests, b.CancelledRequests)
	}
	// Cancelled attempts do not count toward totals.
	if b.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", b.TotalRequests)
	}
	if b.SuccessRequests+b.ErrorRequests != b.TotalRequests {
		t.Errorf("success+error = %d, want TotalRequests %d",
			b.SuccessRequests+b.ErrorRequests, b.TotalRequests)
	}
}

func TestSQLiteBucketStore_ConcurrentUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	window := time.Now().UTC().Truncate(time.Minute)
	key := testKey(window)

	const workers = 10
	const perWorker = 20

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				kind := OutcomeSuccess
				if (n+j)%2 == 1 {
					kind = OutcomeError
				}
				if err := store.Upsert(ctx, key, kind, 10, 10, 10); err != nil {
					t.Errorf("Upsert() error = %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	buckets, err := store.History(ctx, key.ProviderID, key.LogicalModel, window.Add(-time.Minute))
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(buckets) != 1 {
		t.Fatalf("History() = %d buckets, want 1", len(buckets))
	}

	b := buckets[0]
	if b.TotalRequests != workers*perWorker {
		t.Errorf("TotalRequests = %d, want %d (every increment reflected exactly once)",
			b.TotalRequests, workers*perWorker)
	}
	if b.SuccessRequests+b.ErrorRequests != b.TotalRequests {
		t.Errorf("success+error = %d, want TotalRequests %d",
			b.SuccessRequests+b.ErrorRequests, b.TotalRequests)
	}
}

func TestSQLiteBucketStore_DistinctKeysDistinctBuckets(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	window := time.Now().UTC().Truncate(time.Minute)

	base := testKey(window)
	variants := []BucketKey{
		base,
		{ProviderID: base.ProviderID, LogicalModel: base.LogicalModel, Transport: base.Transport, IsStream: true, WindowStart: window},
		{ProviderID: base.ProviderID, LogicalModel: base.LogicalModel, Transport: base.Transport, UserID: "u1", WindowStart: window},
		{ProviderID: base.ProviderID, LogicalModel: base.LogicalModel, Transport: base.Transport, WindowStart: window.Add(time.Minute)},
	}
	for _, key := range variants {
		if err := store.Upsert(ctx, key, OutcomeSuccess, 5, 5, 5); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	buckets, err := store.History(ctx, base.ProviderID, base.LogicalModel, window.Add(-time.Minute))
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(buckets) != len(variants) {
		t.Errorf("History() = %d buckets, want %d (one per distinct key)", len(buckets), len(variants))
	}
}

func TestSQLiteBucketStore_TrailingCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Minute)

	recent := testKey(now)
	old := testKey(now.Add(-30 * time.Minute))

	for i := 0; i < 4; i++ {
		if err := store.Upsert(ctx, recent, OutcomeError, 10, 10, 10); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}
	if err := store.Upsert(ctx, recent, OutcomeSuccess, 10, 10, 10); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := store.Upsert(ctx, old, OutcomeError, 10, 10, 10); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	total, errored, err := store.TrailingCounts(ctx, "provider-a", now.Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("TrailingCounts() error = %v", err)
	}
	if total != 5 || errored != 4 {
		t.Errorf("TrailingCounts() = (%d, %d), want (5, 4); old buckets excluded", total, errored)
	}
}

func TestSQLiteBucketStore_Prune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Minute)

	old := testKey(now.Add(-100 * time.Hour))
	recent := testKey(now)

	if err := store.Upsert(ctx, old, OutcomeSuccess, 10, 10, 10); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := store.Upsert(ctx, recent, OutcomeSuccess, 10, 10, 10); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	deleted, err := store.Prune(ctx, now.Add(-72*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("Prune() deleted = %d, want 1", deleted)
	}

	buckets, err := store.History(ctx, "provider-a", "chat-large", now.Add(-200*time.Hour))
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(buckets) != 1 || !buckets[0].WindowStart.Equal(recent.WindowStart) {
		t.Errorf("post-prune buckets = %d, want only the recent window", len(buckets))
	}
}
