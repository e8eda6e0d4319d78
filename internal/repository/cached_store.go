package repository

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Store is the persistence a CachedStore fronts.
type Store interface {
	Load(ctx context.Context, locationID int64) ([]CachedChangeList, error)
	Replace(ctx context.Context, locationID int64, lists []EncodedChangeList) error
}

// CachedStore keeps the most recently loaded locations in memory.
type CachedStore struct {
	store Store
	cache *lru.Cache[int64, []CachedChangeList]
}

func NewCachedStore(store Store, size int) (*CachedStore, error) {
	if size < 1 {
		size = 1
	}
	cache, err := lru.New[int64, []CachedChangeList](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{store: store, cache: cache}, nil
}

func (s *CachedStore) Load(ctx context.Context, locationID int64) ([]CachedChangeList, error) {
	if lists, ok := s.cache.Get(locationID); ok {
		return lists, nil
	}
	lists, err := s.store.Load(ctx, locationID)
	if err != nil {
		return nil, err
	}
	s.cache.Add(locationID, lists)
	return lists, nil
}

func (s *CachedStore) Replace(ctx context.Context, locationID int64, lists []EncodedChangeList) error {
	s.cache.Remove(locationID)
	return s.store.Replace(ctx, locationID, lists)
}
