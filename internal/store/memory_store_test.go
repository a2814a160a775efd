package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"proxypool/internal/domain"
)

func testRecord(t *testing.T, ip string, port uint16) *domain.Record {
	t.Helper()
	record, err := domain.NewRecord(ip, port, domain.ProtocolHTTP, "test")
	if err != nil {
		t.Fatalf("NewRecord returned error: %v", err)
	}
	return record
}

func TestAddIdentityUsesInitialScore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10)

	id := domain.Identity{IP: "10.0.0.1", Port: 8080, Protocol: domain.ProtocolHTTP}
	if !s.AddIdentity(ctx, id) {
		t.Fatal("AddIdentity returned false for a new identity")
	}

	score, ok := s.Score("10.0.0.1:8080")
	if !ok || score != 10 {
		t.Fatalf("stored score is %v (present=%v), want the initial score 10", score, ok)
	}

	if s.AddIdentity(ctx, id) {
		t.Fatal("AddIdentity overwrote an existing pool slot")
	}
}

func TestUnvalidatedIdentityStaysBelowDrawFloor(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10)

	s.AddIdentity(ctx, domain.Identity{IP: "203.0.113.5", Port: 8080, Protocol: domain.ProtocolHTTP})
	if count := s.Count(ctx); count != 1 {
		t.Fatalf("Count returned %d, want 1", count)
	}

	if _, ok := s.RandomProxy(ctx, 50); ok {
		t.Fatal("RandomProxy returned a never-validated identity above floor 50")
	}

	got, ok := s.RandomProxy(ctx, 0)
	if !ok {
		t.Fatal("RandomProxy found nothing with floor 0")
	}
	if got.Key() != "203.0.113.5:8080" {
		t.Fatalf("RandomProxy returned %s, want 203.0.113.5:8080", got.Key())
	}
}

func TestAddDoesNotOverwriteExistingEntry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10)

	record := testRecord(t, "10.0.0.1", 8080)
	record.UpdateStats(true, 100*time.Millisecond, 200)
	if !s.Add(ctx, record) {
		t.Fatal("Add returned false for a new record")
	}
	score, _ := s.Score(record.Key())
	if score != record.SuccessRate*100 {
		t.Fatalf("add score is %v, want success_rate*100 = %v", score, record.SuccessRate*100)
	}

	later := testRecord(t, "10.0.0.1", 8080)
	if s.Add(ctx, later) {
		t.Fatal("Add accepted a duplicate identity")
	}
	if after, _ := s.Score(record.Key()); after != score {
		t.Fatalf("duplicate Add changed the score from %v to %v", score, after)
	}
}

func TestUpdateScoreUpserts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10)

	record := testRecord(t, "10.0.0.1", 8080)
	record.UpdateStats(true, 100*time.Millisecond, 200)

	if !s.UpdateScore(ctx, record, 87.5) {
		t.Fatal("UpdateScore returned false")
	}
	if score, _ := s.Score(record.Key()); score != 87.5 {
		t.Fatalf("score after UpdateScore is %v, want 87.5", score)
	}

	got, ok := s.RandomProxy(ctx, 80)
	if !ok {
		t.Fatal("RandomProxy found nothing above the floor")
	}
	if got.TotalRequests != 1 {
		t.Fatalf("hydrated record has %d requests, want the stored detail", got.TotalRequests)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10)

	record := testRecord(t, "10.0.0.1", 8080)
	s.Add(ctx, record)

	if !s.Remove(ctx, record.Key()) {
		t.Fatal("Remove returned false for a pooled key")
	}
	if s.Remove(ctx, record.Key()) {
		t.Fatal("Remove returned true for a non-member")
	}
	if count := s.Count(ctx); count != 0 {
		t.Fatalf("Count returned %d after removal, want 0", count)
	}
}

func TestRandomProxyRespectsFloor(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10)

	weak := testRecord(t, "10.0.0.1", 8080)
	strong := testRecord(t, "10.0.0.2", 8080)
	s.UpdateScore(ctx, weak, 15)
	s.UpdateScore(ctx, strong, 85)

	for i := 0; i < 20; i++ {
		got, ok := s.RandomProxy(ctx, 50)
		if !ok {
			t.Fatal("RandomProxy found nothing above floor 50")
		}
		if got.Key() != strong.Key() {
			t.Fatalf("RandomProxy returned %s, want only entries scoring >= 50", got.Key())
		}
	}

	if _, ok := s.RandomProxy(ctx, 90); ok {
		t.Fatal("RandomProxy returned an entry above floor 90")
	}
}

func TestGetByScoreRange(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10)

	for i, score := range []float64{10, 40, 70, 95} {
		record := testRecord(t, fmt.Sprintf("10.0.0.%d", i+1), 8080)
		s.UpdateScore(ctx, record, score)
	}

	got := s.GetByScoreRange(ctx, 30, 80)
	if len(got) != 2 {
		t.Fatalf("GetByScoreRange returned %d records, want 2", len(got))
	}
}

func TestBatchAddSkipsExisting(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10)

	first := testRecord(t, "10.0.0.1", 8080)
	s.Add(ctx, first)

	batch := []*domain.Record{
		testRecord(t, "10.0.0.1", 8080),
		testRecord(t, "10.0.0.2", 8080),
		testRecord(t, "10.0.0.3", 8080),
	}
	if added := s.BatchAdd(ctx, batch); added != 2 {
		t.Fatalf("BatchAdd returned %d, want 2 new entries", added)
	}
	if count := s.Count(ctx); count != 3 {
		t.Fatalf("Count returned %d after batch add, want 3", count)
	}
}

func TestDecayScores(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10)

	record := testRecord(t, "10.0.0.1", 8080)
	s.UpdateScore(ctx, record, 80)

	if touched := s.DecayScores(ctx, 0.5); touched != 1 {
		t.Fatalf("DecayScores touched %d entries, want 1", touched)
	}
	if score, _ := s.Score(record.Key()); score != 40 {
		t.Fatalf("score after decay is %v, want 40", score)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10)

	s.Add(ctx, testRecord(t, "10.0.0.1", 8080))
	s.Add(ctx, testRecord(t, "10.0.0.2", 8080))

	if !s.Clear(ctx) {
		t.Fatal("Clear returned false")
	}
	if count := s.Count(ctx); count != 0 {
		t.Fatalf("Count returned %d after Clear, want 0", count)
	}
}

func TestDetailLessMemberDegradesToBareRecord(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10)

	id := domain.Identity{IP: "10.0.0.1", Port: 8080, Protocol: domain.ProtocolSocks5}
	s.AddIdentity(ctx, id)

	all := s.GetAll(ctx)
	if len(all) != 1 {
		t.Fatalf("GetAll returned %d records, want 1", len(all))
	}
	got := all[0]
	if got.Key() != "10.0.0.1:8080" {
		t.Fatalf("hydrated key is %s, want 10.0.0.1:8080", got.Key())
	}
	// Without a detail entry hydration falls back to zeroed statistics and
	// the http default.
	if got.TotalRequests != 0 || got.Protocol != domain.ProtocolHTTP {
		t.Fatalf("bare hydration produced %s, want zeroed http record", got)
	}
}
