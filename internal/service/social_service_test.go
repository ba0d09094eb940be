package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JuhanV/Sleep-Game/internal/domain"
)

func newSocialHarness(t *testing.T) (*SocialService, *memoryFriendRepo) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	profiles := newMemoryProfileRepo(
		domain.Profile{ID: 1, DisplayName: "jane", Email: "jane@example.com", AvgSleepScore: floatPtr(70)},
		domain.Profile{ID: 2, DisplayName: "bob", Email: "Bob@Example.com", AvgSleepScore: floatPtr(88.5)},
		domain.Profile{ID: 3, DisplayName: "amy"},
		domain.Profile{ID: 4, DisplayName: "cat", AvgSleepScore: floatPtr(70)},
	)
	friends := &memoryFriendRepo{profiles: profiles}
	return NewSocialService(profiles, friends, node, zap.NewNop()), friends
}

func TestLeaderboard_RanksWithNullsLast(t *testing.T) {
	svc, _ := newSocialHarness(t)

	board, err := svc.Leaderboard(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, board, 4)

	names := make([]string, 0, len(board))
	for i, e := range board {
		require.Equal(t, i+1, e.Rank)
		names = append(names, e.DisplayName)
	}
	require.Equal(t, []string{"bob", "cat", "jane", "amy"}, names)
	require.True(t, board[1].IsCurrentUser)
	require.False(t, board[0].IsCurrentUser)
}

func TestAddFriend(t *testing.T) {
	svc, friends := newSocialHarness(t)
	ctx := context.Background()

	friend, err := svc.AddFriend(ctx, 1, "  bob@example.com ")
	require.NoError(t, err)
	require.Equal(t, int64(2), friend.ID)
	require.Equal(t, "bob", friend.DisplayName)
	require.InDelta(t, 88.5, *friend.AvgSleepScore, 0.001)

	exists, err := friends.Exists(ctx, 1, 2)
	require.NoError(t, err)
	require.True(t, exists)

	reverse, err := friends.Exists(ctx, 2, 1)
	require.NoError(t, err)
	require.False(t, reverse)

	list, err := svc.ListFriends(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestAddFriend_Rejections(t *testing.T) {
	svc, friends := newSocialHarness(t)
	ctx := context.Background()

	_, err := svc.AddFriend(ctx, 1, " ")
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.AddFriend(ctx, 1, "jane@example.com")
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.AddFriend(ctx, 1, "nobody@example.com")
	require.ErrorIs(t, err, domain.ErrProfileNotFound)

	_, err = svc.AddFriend(ctx, 1, "bob@example.com")
	require.NoError(t, err)
	_, err = svc.AddFriend(ctx, 1, "bob@example.com")
	require.ErrorIs(t, err, domain.ErrAlreadyFriends)
	require.Len(t, friends.links, 1)
}

func TestRemoveFriend(t *testing.T) {
	svc, _ := newSocialHarness(t)
	ctx := context.Background()

	_, err := svc.AddFriend(ctx, 1, "bob@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.RemoveFriend(ctx, 1, 2))
	list, err := svc.ListFriends(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, list)
	require.Empty(t, list)

	require.NoError(t, svc.RemoveFriend(ctx, 1, 2))
	require.ErrorIs(t, svc.RemoveFriend(ctx, 1, 0), domain.ErrInvalidInput)
}
