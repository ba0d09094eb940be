package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/JuhanV/Sleep-Game/internal/domain"
	"github.com/JuhanV/Sleep-Game/internal/repository"
)

// SocialService covers the leaderboard and friends list.
type SocialService struct {
	profiles repository.ProfileRepository
	friends  repository.FriendshipRepository
	ids      *snowflake.Node
	logger   *zap.Logger
}

// NewSocialService wires dependencies.
func NewSocialService(
	profiles repository.ProfileRepository,
	friends repository.FriendshipRepository,
	ids *snowflake.Node,
	logger *zap.Logger,
) *SocialService {
	return &SocialService{profiles: profiles, friends: friends, ids: ids, logger: logger}
}

// Leaderboard ranks every profile by average sleep score.
func (s *SocialService) Leaderboard(ctx context.Context, currentUserID int64) ([]domain.LeaderboardEntry, error) {
	board, err := s.profiles.Leaderboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	return domain.RankProfiles(board, currentUserID), nil
}

// ListFriends returns the caller's friends with their public scores.
func (s *SocialService) ListFriends(ctx context.Context, userID int64) ([]domain.Friend, error) {
	friends, err := s.friends.ListFriends(ctx, userID)
	if err != nil {
		return nil, err
	}
	return nonNil(friends), nil
}

// AddFriend links the caller to the profile registered under email.
func (s *SocialService) AddFriend(ctx context.Context, userID int64, email string) (domain.Friend, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.Friend{}, fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}

	friend, err := s.profiles.GetByEmail(ctx, email)
	if err != nil {
		return domain.Friend{}, err
	}
	if friend.ID == userID {
		return domain.Friend{}, fmt.Errorf("%w: cannot add yourself", domain.ErrInvalidInput)
	}

	exists, err := s.friends.Exists(ctx, userID, friend.ID)
	if err != nil {
		return domain.Friend{}, err
	}
	if exists {
		return domain.Friend{}, domain.ErrAlreadyFriends
	}

	link := domain.Friendship{
		ID:       s.ids.Generate().Int64(),
		UserID:   userID,
		FriendID: friend.ID,
	}
	if err := s.friends.Create(ctx, link); err != nil {
		if errors.Is(err, domain.ErrAlreadyFriends) {
			return domain.Friend{}, err
		}
		return domain.Friend{}, fmt.Errorf("add friend: %w", err)
	}
	s.log().Info("friend added", zap.Int64("user_id", userID), zap.Int64("friend_id", friend.ID))

	friends, err := s.friends.ListFriends(ctx, userID)
	if err != nil {
		return domain.Friend{}, err
	}
	for _, f := range friends {
		if f.ID == friend.ID {
			return f, nil
		}
	}
	return domain.Friend{PublicProfile: friend.Public()}, nil
}

// RemoveFriend unlinks friendID. Removing a missing friendship succeeds.
func (s *SocialService) RemoveFriend(ctx context.Context, userID, friendID int64) error {
	if friendID == 0 {
		return fmt.Errorf("%w: friend id is required", domain.ErrInvalidInput)
	}
	if err := s.friends.Delete(ctx, userID, friendID); err != nil {
		return err
	}
	s.log().Info("friend removed", zap.Int64("user_id", userID), zap.Int64("friend_id", friendID))
	return nil
}

func (s *SocialService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
