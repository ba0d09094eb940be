package repository

import (
	"context"
	"time"

	"github.com/JuhanV/Sleep-Game/internal/domain"
	"github.com/JuhanV/Sleep-Game/internal/domain/oauth"
)

// ProfileRepository exposes persistence for registered Oura accounts.
type ProfileRepository interface {
	GetByID(ctx context.Context, id int64) (domain.Profile, error)
	GetByOuraUserID(ctx context.Context, ouraUserID string) (domain.Profile, error)
	GetByEmail(ctx context.Context, email string) (domain.Profile, error)
	List(ctx context.Context) ([]domain.Profile, error)
	Leaderboard(ctx context.Context) ([]domain.PublicProfile, error)
	Create(ctx context.Context, profile domain.Profile) (domain.Profile, error)
	UpdateLogin(ctx context.Context, profile domain.Profile) (domain.Profile, error)
	UpdateTokens(ctx context.Context, id int64, record string) error
	UpdateSleepScores(ctx context.Context, id int64, summary domain.SleepSummary) error
	SetAdmin(ctx context.Context, id int64, isAdmin bool) error
	PromoteByEmail(ctx context.Context, email string) (int64, error)
}

// FriendshipRepository manages the directed user -> friend links.
type FriendshipRepository interface {
	Exists(ctx context.Context, userID, friendID int64) (bool, error)
	Create(ctx context.Context, friendship domain.Friendship) error
	Delete(ctx context.Context, userID, friendID int64) error
	ListFriends(ctx context.Context, userID int64) ([]domain.Friend, error)
}

// OAuthStateStore holds pending logins. ConsumeState is single-use and
// returns nil for unknown or expired values.
type OAuthStateStore interface {
	SaveState(ctx context.Context, state oauth.State, ttl time.Duration) error
	ConsumeState(ctx context.Context, value string) (*oauth.State, error)
}

// MetricsCache memoizes upstream metric pages. A miss returns false.
type MetricsCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}
