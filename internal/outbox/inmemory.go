package outbox

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore реализация Store в памяти для тестирования и разработки
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string
}

// NewInMemoryStore создает новое in-memory хранилище outbox
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]*Record),
	}
}

// Enqueue добавляет записи в outbox
func (s *InMemoryStore) Enqueue(ctx context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range records {
		rec := records[i]
		if rec.Status == "" {
			rec.Status = StatusPending
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}
		if _, exists := s.records[rec.EventID]; exists {
			continue
		}
		s.records[rec.EventID] = &rec
		s.order = append(s.order, rec.EventID)
	}
	return nil
}

// FetchPending возвращает pending-записи, готовые к доставке
func (s *InMemoryStore) FetchPending(ctx context.Context, limit int, now time.Time) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Record
	for _, id := range s.order {
		rec := s.records[id]
		if rec.Status != StatusPending {
			continue
		}
		if rec.NextAttemptAt.After(now) {
			continue
		}
		result = append(result, *rec)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// MarkDelivered помечает запись доставленной
func (s *InMemoryStore) MarkDelivered(ctx context.Context, eventID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, exists := s.records[eventID]
	if !exists {
		return ErrRecordNotFound
	}
	rec.Status = StatusDelivered
	rec.DeliveredAt = &at
	return nil
}

// MarkAttemptFailed фиксирует неудачную попытку доставки
func (s *InMemoryStore) MarkAttemptFailed(ctx context.Context, eventID string, attempt int, nextAttemptAt time.Time, lastError string, final bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, exists := s.records[eventID]
	if !exists {
		return ErrRecordNotFound
	}
	rec.Attempts = attempt
	rec.NextAttemptAt = nextAttemptAt
	rec.LastError = lastError
	if final {
		rec.Status = StatusFailed
	}
	return nil
}

// Get возвращает запись по ID события (для тестов)
func (s *InMemoryStore) Get(eventID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, exists := s.records[eventID]
	if !exists {
		return Record{}, false
	}
	return *rec, true
}
