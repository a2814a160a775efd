package store

import (
	"context"
	"math/rand"
	"sync"

	"github.com/charmbracelet/log"

	"proxypool/internal/domain"
)

// MemoryStore is the redis-less Store used by tests and by processes run
// without a backend. It keeps the same score/detail pair semantics,
// including graceful degradation for detail-less members.
type MemoryStore struct {
	mu           sync.RWMutex
	scores       map[string]float64
	details      map[string]string
	initialScore float64
}

func NewMemoryStore(initialScore float64) *MemoryStore {
	return &MemoryStore{
		scores:       make(map[string]float64),
		details:      make(map[string]string),
		initialScore: initialScore,
	}
}

func (s *MemoryStore) Add(_ context.Context, record *domain.Record) bool {
	detail, err := record.Serialize()
	if err != nil {
		log.Error("failed to serialize record", "key", record.Key(), "error", err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addIfAbsentLocked(record.Key(), defaultAddScore(record), detail)
}

func (s *MemoryStore) AddIdentity(_ context.Context, id domain.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addIfAbsentLocked(id.Key(), s.initialScore, "")
}

func (s *MemoryStore) addIfAbsentLocked(key string, score float64, detail string) bool {
	if _, ok := s.scores[key]; ok {
		return false
	}
	s.scores[key] = score
	if detail != "" {
		s.details[key] = detail
	}
	return true
}

func (s *MemoryStore) UpdateScore(_ context.Context, record *domain.Record, score float64) bool {
	detail, err := record.Serialize()
	if err != nil {
		log.Error("failed to serialize record", "key", record.Key(), "error", err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[record.Key()] = score
	s.details[record.Key()] = detail
	return true
}

func (s *MemoryStore) UpdateIdentityScore(_ context.Context, id domain.Identity, score float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[id.Key()] = score
	return true
}

func (s *MemoryStore) Remove(_ context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.scores[key]
	delete(s.scores, key)
	delete(s.details, key)
	return ok
}

func (s *MemoryStore) RandomProxy(_ context.Context, minScore float64) (*domain.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	eligible := make([]string, 0, len(s.scores))
	for key, score := range s.scores {
		if score >= minScore {
			eligible = append(eligible, key)
		}
	}
	if len(eligible) == 0 {
		return nil, false
	}

	key := eligible[rand.Intn(len(eligible))]
	return hydrate(key, s.details[key])
}

func (s *MemoryStore) GetAll(_ context.Context) []*domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*domain.Record, 0, len(s.scores))
	for key := range s.scores {
		if record, ok := hydrate(key, s.details[key]); ok {
			records = append(records, record)
		}
	}
	return records
}

func (s *MemoryStore) GetByScoreRange(_ context.Context, min, max float64) []*domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*domain.Record, 0, len(s.scores))
	for key, score := range s.scores {
		if score < min || score > max {
			continue
		}
		if record, ok := hydrate(key, s.details[key]); ok {
			records = append(records, record)
		}
	}
	return records
}

func (s *MemoryStore) Count(_ context.Context) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.scores))
}

func (s *MemoryStore) BatchAdd(ctx context.Context, records []*domain.Record) int {
	added := 0
	for _, record := range records {
		if s.Add(ctx, record) {
			added++
		}
	}
	return added
}

func (s *MemoryStore) DecayScores(_ context.Context, factor float64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, score := range s.scores {
		decayed := score * factor
		if decayed < 0 {
			decayed = 0
		}
		s.scores[key] = decayed
	}
	return int64(len(s.scores))
}

func (s *MemoryStore) Clear(_ context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores = make(map[string]float64)
	s.details = make(map[string]string)
	return true
}

// Score reports the indexed score of a pool key, for tests.
func (s *MemoryStore) Score(key string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	score, ok := s.scores[key]
	return score, ok
}
