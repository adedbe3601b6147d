package prefs

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/pulseout/pulse-service/internal/types"
)

// setupTestRedis creates an in-memory Redis server for testing
func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
		DB:   0,
	})

	_, err = redisClient.Ping(context.Background()).Result()
	if err != nil {
		t.Fatalf("Failed to connect to test Redis: %v", err)
	}

	cleanup := func() {
		redisClient.Close()
		mr.Close()
	}

	return redisClient, cleanup
}

func TestService_PactFlag(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewService(redisClient)
	ctx := context.Background()

	accepted, err := svc.HasAcceptedPact(ctx, "user-a")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if accepted {
		t.Fatal("Expected pact not accepted initially")
	}

	if err := svc.AcceptPact(ctx, "user-a"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	accepted, err = svc.HasAcceptedPact(ctx, "user-a")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !accepted {
		t.Fatal("Expected pact accepted after AcceptPact")
	}

	// Flags are per user.
	accepted, _ = svc.HasAcceptedPact(ctx, "user-b")
	if accepted {
		t.Fatal("Expected other user's pact flag untouched")
	}
}

func TestService_TourFlag(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewService(redisClient)
	ctx := context.Background()

	if err := svc.CompleteTour(ctx, "user-a"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	done, err := svc.HasCompletedTour(ctx, "user-a")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !done {
		t.Fatal("Expected tour marked complete")
	}
}

func TestService_ShelfRoundTrip(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewService(redisClient)
	ctx := context.Background()

	shelf := []types.ShelfItem{
		{ID: "1", Category: "BOOK", Title: "Meditations", Author: "Marcus Aurelius"},
		{ID: "2", Category: "SHOW", Title: "The Matrix", Author: "Wachowski"},
	}

	if err := svc.SaveShelf(ctx, "user-a", shelf); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	loaded, err := svc.LoadShelf(ctx, "user-a")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(loaded) != 2 || loaded[0].Title != "Meditations" || loaded[1].Category != "SHOW" {
		t.Fatalf("Expected shelf round trip, got %+v", loaded)
	}
}

func TestService_LoadShelfMissing(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewService(redisClient)

	shelf, err := svc.LoadShelf(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(shelf) != 0 {
		t.Fatalf("Expected empty shelf, got %+v", shelf)
	}
}

func TestService_Clear(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	svc := NewService(redisClient)
	ctx := context.Background()

	svc.AcceptPact(ctx, "user-a")
	svc.CompleteTour(ctx, "user-a")
	svc.SaveShelf(ctx, "user-a", []types.ShelfItem{{ID: "1", Category: "MUSIC", Title: "Kind of Blue", Author: "Miles Davis"}})

	if err := svc.Clear(ctx, "user-a"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if accepted, _ := svc.HasAcceptedPact(ctx, "user-a"); accepted {
		t.Fatal("Expected pact flag cleared")
	}
	if done, _ := svc.HasCompletedTour(ctx, "user-a"); done {
		t.Fatal("Expected tour flag cleared")
	}
	if shelf, _ := svc.LoadShelf(ctx, "user-a"); len(shelf) != 0 {
		t.Fatalf("Expected shelf cleared, got %+v", shelf)
	}
}
