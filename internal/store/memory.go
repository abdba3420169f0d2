package store

import (
	"context"
	"sync"
	"time"

	"github.com/marketloop/marketloop/internal/models"
	"github.com/sirupsen/logrus"
)

// MemoryStore keeps reset records in a process-local map. A background
// sweeper reaps records past their expiry so identities that never retry
// don't accumulate forever. Expiry is still checked at verification time;
// the sweep only reclaims memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.ResetRecord
	logger  *logrus.Logger

	stop chan struct{}
	done chan struct{}
}

func NewMemoryStore(sweepInterval time.Duration, logger *logrus.Logger) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]models.ResetRecord),
		logger:  logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.sweepLoop(sweepInterval)
	return s
}

func (s *MemoryStore) Set(ctx context.Context, rec models.ResetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Identity] = rec
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, identity string) (*models.ResetRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[identity]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) Delete(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, identity)
	return nil
}

// Close stops the background sweeper.
func (s *MemoryStore) Close() {
	close(s.stop)
	<-s.done
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now())
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for identity, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, identity)
			removed++
		}
	}
	if removed > 0 && s.logger != nil {
		s.logger.WithField("removed", removed).Debug("Swept expired reset records")
	}
}
