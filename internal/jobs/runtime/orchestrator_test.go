package runtime

import (
	"context"
	"testing"
	"time"

	"proxypool/internal/config"
	"proxypool/internal/domain"
	"proxypool/internal/reputation"
	"proxypool/internal/store"
)

func TestStoreConfirmedUpsertsAtCompositeScore(t *testing.T) {
	ctx := context.Background()
	poolStore := store.NewMemoryStore(10)
	orchestrator := NewOrchestrator(config.Config{}, poolStore, nil, nil, nil, nil)

	fresh := healthyRecord(t, 1)
	unprobed, err := domain.NewRecord("10.0.0.2", 8080, domain.ProtocolHTTP, "test")
	if err != nil {
		t.Fatalf("NewRecord returned error: %v", err)
	}

	stored := orchestrator.StoreConfirmed(ctx, []*domain.Record{fresh, unprobed})
	if stored != 2 {
		t.Fatalf("StoreConfirmed stored %d records, want 2", stored)
	}

	score, ok := poolStore.Score(fresh.Key())
	if !ok {
		t.Fatal("confirmed record missing from the pool")
	}
	want := reputation.Score(fresh, time.Now())
	if diff := score - want; diff > 1 || diff < -1 {
		t.Fatalf("stored score is %v, want about %v", score, want)
	}

	// Upserts are unconditional; even a never-probed record lands, at zero.
	if score, _ := poolStore.Score(unprobed.Key()); score != 0 {
		t.Fatalf("unprobed record stored at %v, want 0", score)
	}
}

func TestSleepContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if sleepContext(ctx, time.Minute) {
		t.Fatal("sleepContext reported a full sleep under a cancelled context")
	}

	if !sleepContext(context.Background(), time.Millisecond) {
		t.Fatal("sleepContext reported cancellation for an uncancelled sleep")
	}
}
