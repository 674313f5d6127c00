package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pawhaven/sustainer/internal/app/service/billing"
	models "github.com/pawhaven/sustainer/internal/models"
	"github.com/pawhaven/sustainer/pkg/types"
)

// MemoryStore is an in-memory billing.Store with the same atomicity
// contract as the postgres implementation, for tests.
type MemoryStore struct {
	mu     sync.Mutex
	subs   map[string]*models.Subscription
	events []*models.PaymentEvent
	keys   map[string]*models.PaymentEvent
	logs   []*models.SubscriptionLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs: make(map[string]*models.Subscription),
		keys: make(map[string]*models.PaymentEvent),
	}
}

func (s *MemoryStore) GetSubscription(_ context.Context, id string) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, billing.ErrSubscriptionNotFound
	}
	return sub.Clone(), nil
}

func (s *MemoryStore) CreateSubscription(_ context.Context, sub *models.Subscription, log *models.SubscriptionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ID] = sub.Clone()
	if log != nil {
		s.logs = append(s.logs, log)
	}
	return nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, w *billing.Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.Subscription != nil {
		current, ok := s.subs[w.Subscription.ID]
		if !ok {
			return billing.ErrSubscriptionNotFound
		}
		if current.Version != w.ExpectedVersion {
			return billing.ErrVersionConflict
		}
	}
	for _, ev := range w.Events {
		if _, exists := s.keys[ev.IdempotencyKey]; exists {
			return billing.ErrDuplicateEvent
		}
	}

	if w.Subscription != nil {
		next := w.Subscription.Clone()
		next.Version = w.ExpectedVersion + 1
		s.subs[next.ID] = next
		w.Subscription.Version = next.Version
	}
	for _, ev := range w.Events {
		cp := *ev
		s.events = append(s.events, &cp)
		s.keys[ev.IdempotencyKey] = &cp
	}
	for _, ev := range w.UpdateEvents {
		if stored, ok := s.keys[ev.IdempotencyKey]; ok {
			stored.Outcome = ev.Outcome
			stored.ExternalTransactionID = ev.ExternalTransactionID
			stored.FailureReason = ev.FailureReason
			stored.NextRetryAt = ev.NextRetryAt
		}
	}
	if w.Log != nil {
		s.logs = append(s.logs, w.Log)
	}
	return nil
}

func (s *MemoryStore) EventsByCycle(_ context.Context, subscriptionID, cycleID string) ([]*models.PaymentEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.PaymentEvent
	for _, ev := range s.events {
		if ev.SubscriptionID == subscriptionID && ev.CycleID == cycleID {
			cp := *ev
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out, nil
}

func (s *MemoryStore) EventByIdempotencyKey(_ context.Context, key string) (*models.PaymentEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.keys[key]
	if !ok {
		return nil, nil
	}
	cp := *ev
	return &cp, nil
}

func (s *MemoryStore) ListEvents(_ context.Context, subscriptionID string) ([]*models.PaymentEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.PaymentEvent
	for _, ev := range s.events {
		if ev.SubscriptionID == subscriptionID {
			cp := *ev
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledDate.Equal(out[j].ScheduledDate) {
			return out[i].ScheduledDate.Before(out[j].ScheduledDate)
		}
		return out[i].AttemptNumber < out[j].AttemptNumber
	})
	return out, nil
}

func (s *MemoryStore) ListActiveDue(_ context.Context, now time.Time) ([]*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Subscription
	for _, sub := range s.subs {
		if sub.Status != types.SubscriptionStatusActive {
			continue
		}
		if sub.NextDueDate == nil || !sub.NextDueDate.After(now) {
			out = append(out, sub.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListActive(_ context.Context) ([]*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Subscription
	for _, sub := range s.subs {
		if sub.Status == types.SubscriptionStatusActive {
			out = append(out, sub.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Logs returns the recorded audit entries.
func (s *MemoryStore) Logs() []*models.SubscriptionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.SubscriptionLog{}, s.logs...)
}

// Events returns every recorded payment event.
func (s *MemoryStore) Events() []*models.PaymentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.PaymentEvent, 0, len(s.events))
	for _, ev := range s.events {
		cp := *ev
		out = append(out, &cp)
	}
	return out
}

var _ billing.Store = (*MemoryStore)(nil)
