package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrProfileNotFound signals that no profile matches the lookup.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrProfileExists means another profile already holds the Oura user id.
	ErrProfileExists   = errors.New("profile already exists")
	// ErrAlreadyFriends indicates the friendship already exists.
	ErrAlreadyFriends  = errors.New("already friends")
	// ErrInvalidInput indicates caller input validation errors.
	ErrInvalidInput    = errors.New("invalid input")
	// ErrForbidden indicates the caller lacks the admin flag.
	ErrForbidden       = errors.New("forbidden")
)

var validate = validator.New()

// Profile is one registered Oura account.
type Profile struct {
	ID             int64      `validate:"required"`
	OuraUserID     string     `validate:"required,max=128"`
	Email          string     `validate:"omitempty,email,max=320"`
	DisplayName    string     `validate:"required,max=100"`
	OuraTokens     string     `validate:"required"`
	AvgSleepScore  *float64   `validate:"omitempty,gte=0,lte=100"`
	LastSleepScore *int       `validate:"omitempty,gte=0,lte=100"`
	IsAdmin        bool
	LastLogin      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks the record shape before it is written.
func (p Profile) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// Public strips everything but the fields other users may see.
func (p Profile) Public() PublicProfile {
	return PublicProfile{
		ID:             p.ID,
		DisplayName:    p.DisplayName,
		AvgSleepScore:  p.AvgSleepScore,
		LastSleepScore: p.LastSleepScore,
	}
}

// PublicProfile is the view of a profile shared with other users.
type PublicProfile struct {
	ID             int64    `json:"id,string"`
	DisplayName    string   `json:"display_name"`
	AvgSleepScore  *float64 `json:"avg_sleep_score"`
	LastSleepScore *int     `json:"last_sleep_score"`
}

// Friendship links a user to another profile.
type Friendship struct {
	ID        int64
	UserID    int64
	FriendID  int64
	CreatedAt time.Time
}

// Friend is a friendship joined with the friend's public profile.
type Friend struct {
	PublicProfile
	Since time.Time `json:"since"`
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank int `json:"rank"`
	PublicProfile
	IsCurrentUser bool `json:"is_current_user"`
}

// RankProfiles assigns 1-based ranks to profiles already ordered by score.
func RankProfiles(profiles []PublicProfile, currentUserID int64) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(profiles))
	for i, p := range profiles {
		entries = append(entries, LeaderboardEntry{
			Rank:          i + 1,
			PublicProfile: p,
			IsCurrentUser: p.ID == currentUserID,
		})
	}
	return entries
}
