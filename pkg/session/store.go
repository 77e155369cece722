package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNoSession is returned when no live session is stored for a key.
var ErrNoSession = errors.New("no stored session")

var (
	sessionLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mstr_session_lookups_total",
		Help: "Total session store lookups by result",
	}, []string{"result"}) // hit, miss, expired

	sessionSavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mstr_session_saves_total",
		Help: "Total number of sessions written to the store",
	})

	sessionTTLSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mstr_session_ttl_seconds",
		Help: "Remaining lifetime of the most recently saved session",
	})
)

// Store keeps session state in Redis.
type Store struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewStore creates a session store.
func NewStore(redisClient *redis.Client, logger zerolog.Logger) *Store {
	return &Store{
		redis:  redisClient,
		logger: logger,
	}
}

// Get returns the live session stored under key.
func (s *Store) Get(ctx context.Context, key string) (*State, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		sessionLookupsTotal.WithLabelValues("miss").Inc()
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}

	if state.IsExpired() {
		sessionLookupsTotal.WithLabelValues("expired").Inc()
		s.logger.Debug().Str("key", key).Msg("Stored session expired")
		return nil, ErrNoSession
	}

	sessionLookupsTotal.WithLabelValues("hit").Inc()
	return &state, nil
}

// Save stores state under key until it expires. The save timestamp is kept
// next to it for diagnostics.
func (s *Store) Save(ctx context.Context, key string, state *State) error {
	if state == nil {
		return fmt.Errorf("session state cannot be nil")
	}
	ttl := state.TimeUntilExpiry()
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := s.redis.Pipeline()
	pipe.Set(ctx, key, data, ttl)
	pipe.Set(ctx, key+":last_update", state.LastUpdate.Unix(), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store session in redis: %w", err)
	}

	sessionSavesTotal.Inc()
	sessionTTLSeconds.Set(ttl.Seconds())

	s.logger.Debug().
		Str("key", key).
		Time("expires_at", state.ExpiresAt).
		Msg("Session stored")

	return nil
}

// Touch extends a stored session after it was used.
func (s *Store) Touch(ctx context.Context, key string, ttl time.Duration) error {
	state, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	state.Extend(ttl)
	return s.Save(ctx, key, state)
}

// Delete removes a stored session.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, key, key+":last_update").Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
