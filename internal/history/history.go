// Package history provides the transaction history lookup used by the
// dependency-bearing rules.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/riskscore/internal/domain"
)

// Store is the persistent source of history aggregates.
type Store interface {
	FindHistory(ctx context.Context, clientID, beneficiaryID string) (*domain.HistoryAggregate, error)
}

// Service reads history through an optional cache. Only found aggregates
// are cached, so a pair's first transaction is visible once the store has it.
type Service struct {
	store Store
	cache domain.Cache
	ttl   time.Duration
}

// NewService creates a history lookup. cache may be nil; a ttl of zero
// disables caching.
func NewService(store Store, cache domain.Cache, ttl time.Duration) *Service {
	return &Service{
		store: store,
		cache: cache,
		ttl:   ttl,
	}
}

// Find implements domain.HistoryLookup. An unknown pair yields nil, nil;
// errors come only from the store.
func (s *Service) Find(ctx context.Context, clientID, beneficiaryID string) (*domain.HistoryAggregate, error) {
	if clientID == "" || beneficiaryID == "" {
		return nil, fmt.Errorf("clientID and beneficiaryID are required")
	}

	if s.cachingEnabled() {
		h, err := s.cache.GetHistory(ctx, clientID, beneficiaryID)
		if err != nil {
			slog.Warn("history cache read failed, falling through to store",
				"client_id", clientID,
				"beneficiary_id", beneficiaryID,
				"error", err,
			)
		} else if h != nil {
			return h, nil
		}
	}

	h, err := s.store.FindHistory(ctx, clientID, beneficiaryID)
	if err != nil {
		return nil, fmt.Errorf("find history: %w", err)
	}

	if h != nil && s.cachingEnabled() {
		if err := s.cache.SetHistory(ctx, h, s.ttl); err != nil {
			slog.Warn("history cache write failed",
				"client_id", clientID,
				"beneficiary_id", beneficiaryID,
				"error", err,
			)
		}
	}

	return h, nil
}

func (s *Service) cachingEnabled() bool {
	return s.cache != nil && s.ttl > 0
}

var _ domain.HistoryLookup = (*Service)(nil)
