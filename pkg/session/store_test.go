package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestStore_SaveGetDelete(t *testing.T) {
	store := NewStore(setupTestRedis(t), zerolog.Nop())
	ctx := context.Background()
	key := Key("https://bi.example.com/lib", "admin")

	if _, err := store.Get(ctx, key); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Get on empty store = %v, want ErrNoSession", err)
	}

	state := &State{
		AuthToken:  "tok-1",
		Cookies:    []Cookie{{Name: "JSESSIONID", Value: "abc"}},
		ExpiresAt:  time.Now().Add(time.Minute),
		LastUpdate: time.Now(),
	}
	if err := store.Save(ctx, key, state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.AuthToken != "tok-1" || len(got.Cookies) != 1 {
		t.Errorf("Get() = %+v", got)
	}

	if err := store.Touch(ctx, key, 10*time.Minute); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	got, _ = store.Get(ctx, key)
	if got.TimeUntilExpiry() < 9*time.Minute {
		t.Errorf("Touch did not extend expiry: %v", got.TimeUntilExpiry())
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, ErrNoSession) {
		t.Errorf("Get after Delete = %v, want ErrNoSession", err)
	}
}

func TestStore_SaveExpiredIsNoop(t *testing.T) {
	client := setupTestRedis(t)
	store := NewStore(client, zerolog.Nop())
	ctx := context.Background()

	state := &State{AuthToken: "old", ExpiresAt: time.Now().Add(-time.Minute)}
	if err := store.Save(ctx, "mstr:session:h:u", state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if n := client.Exists(ctx, "mstr:session:h:u").Val(); n != 0 {
		t.Errorf("expired session was stored")
	}
	if err := store.Save(ctx, "k", nil); err == nil {
		t.Error("Save(nil) should fail")
	}
}
