// Package prefs persists the small amount of client-side state that lives
// outside the remote store: the community-pact consent flag, the
// onboarding-tour completion flag and a fallback copy of the user's
// cultural shelf. Everything is keyed by user id and survives restarts.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/pulseout/pulse-service/internal/types"
)

// Key patterns
const (
	PactKey  = "prefs:pact:%s"  // prefs:pact:userID
	TourKey  = "prefs:tour:%s"  // prefs:tour:userID
	ShelfKey = "prefs:shelf:%s" // prefs:shelf:userID
)

// Service stores per-user preference flags in Redis
type Service struct {
	redis *redis.Client
}

// NewService creates a new prefs service
func NewService(redisClient *redis.Client) *Service {
	return &Service{redis: redisClient}
}

// AcceptPact records that the user accepted the community pact.
func (s *Service) AcceptPact(ctx context.Context, userID string) error {
	return s.redis.Set(ctx, fmt.Sprintf(PactKey, userID), "true", 0).Err()
}

// HasAcceptedPact reports whether the user accepted the community pact.
func (s *Service) HasAcceptedPact(ctx context.Context, userID string) (bool, error) {
	return s.getFlag(ctx, fmt.Sprintf(PactKey, userID))
}

// CompleteTour records that the user finished the onboarding tour.
func (s *Service) CompleteTour(ctx context.Context, userID string) error {
	return s.redis.Set(ctx, fmt.Sprintf(TourKey, userID), "true", 0).Err()
}

// HasCompletedTour reports whether the user finished the onboarding tour.
func (s *Service) HasCompletedTour(ctx context.Context, userID string) (bool, error) {
	return s.getFlag(ctx, fmt.Sprintf(TourKey, userID))
}

func (s *Service) getFlag(ctx context.Context, key string) (bool, error) {
	val, err := s.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == "true", nil
}

// SaveShelf stores the user's shelf as the local fallback copy.
func (s *Service) SaveShelf(ctx context.Context, userID string, shelf []types.ShelfItem) error {
	data, err := json.Marshal(shelf)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, fmt.Sprintf(ShelfKey, userID), data, 0).Err()
}

// LoadShelf returns the stored shelf copy, or an empty shelf when none
// was saved or the stored copy cannot be parsed.
func (s *Service) LoadShelf(ctx context.Context, userID string) ([]types.ShelfItem, error) {
	val, err := s.redis.Get(ctx, fmt.Sprintf(ShelfKey, userID)).Result()
	if err == redis.Nil {
		return []types.ShelfItem{}, nil
	}
	if err != nil {
		return nil, err
	}

	var shelf []types.ShelfItem
	if err := json.Unmarshal([]byte(val), &shelf); err != nil {
		return []types.ShelfItem{}, nil
	}
	return shelf, nil
}

// Clear removes all stored preferences for the user.
func (s *Service) Clear(ctx context.Context, userID string) error {
	keys := []string{
		fmt.Sprintf(PactKey, userID),
		fmt.Sprintf(TourKey, userID),
		fmt.Sprintf(ShelfKey, userID),
	}
	return s.redis.Del(ctx, keys...).Err()
}
