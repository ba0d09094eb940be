package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JuhanV/Sleep-Game/internal/domain/oauth"
	"github.com/JuhanV/Sleep-Game/internal/repository"
)

const loginStatePrefix = "oauth:state:"

// RedisStateStore keeps pending Oura logins between the authorize redirect
// and the callback. Each entry can be consumed once.
type RedisStateStore struct {
	client redis.UniversalClient
}

var _ repository.OAuthStateStore = (*RedisStateStore)(nil)

func NewRedisStateStore(client redis.UniversalClient) *RedisStateStore {
	return &RedisStateStore{client: client}
}

// SaveState records a pending login under its state value until ttl passes.
func (s *RedisStateStore) SaveState(ctx context.Context, state oauth.State, ttl time.Duration) error {
	if strings.TrimSpace(state.State) == "" {
		return fmt.Errorf("save login state: empty state value")
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode login state: %w", err)
	}
	if err := s.client.Set(ctx, loginStateKey(state.State), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save login state: %w", err)
	}
	return nil
}

// ConsumeState returns the pending login and removes it in one GETDEL, so two
// callbacks racing on the same state cannot both succeed. Unknown or expired
// states yield nil.
func (s *RedisStateStore) ConsumeState(ctx context.Context, value string) (*oauth.State, error) {
	raw, err := s.client.GetDel(ctx, loginStateKey(value)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("consume login state: %w", err)
	}
	var state oauth.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode login state: %w", err)
	}
	return &state, nil
}

func loginStateKey(value string) string {
	return loginStatePrefix + strings.TrimSpace(value)
}
