// Package memory provides process-local repositories used by local runs and tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	domain "github.com/deskhub/api/internal/domain"
	"github.com/deskhub/api/internal/repositories"
)

// SpaceRepository keeps spaces in a map.
type SpaceRepository struct {
	mu     sync.RWMutex
	spaces map[string]domain.Space
}

var _ repositories.SpaceRepository = (*SpaceRepository)(nil)

// NewSpaceRepository seeds the repository with the given spaces.
func NewSpaceRepository(seed ...domain.Space) *SpaceRepository {
	r := &SpaceRepository{spaces: make(map[string]domain.Space, len(seed))}
	for _, s := range seed {
		r.spaces[s.ID] = s
	}
	return r
}

// Put inserts or replaces a space.
func (r *SpaceRepository) Put(space domain.Space) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spaces[space.ID] = space
}

func (r *SpaceRepository) FindByID(_ context.Context, spaceID string) (domain.Space, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	space, ok := r.spaces[strings.TrimSpace(spaceID)]
	if !ok {
		return domain.Space{}, repositories.NewNotFoundError("spaces.find", "space "+spaceID+" not found")
	}
	space.Schedule.Weekdays = append([]time.Weekday(nil), space.Schedule.Weekdays...)
	return space, nil
}
