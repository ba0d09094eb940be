package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JuhanV/Sleep-Game/internal/domain"
	"github.com/JuhanV/Sleep-Game/internal/domain/oauth"
	"github.com/JuhanV/Sleep-Game/internal/repository"
)

// TokenStatus describes a stored bundle without revealing any token value.
type TokenStatus struct {
	Readable            bool       `json:"readable"`
	AccessTokenPresent  bool       `json:"access_token_present"`
	RefreshTokenPresent bool       `json:"refresh_token_present"`
	TokenType           string     `json:"token_type,omitempty"`
	ExpiresIn           int64      `json:"expires_in,omitempty"`
	Expiry              *time.Time `json:"expiry,omitempty"`
}

// AdminProfileView is one row of the admin profile list.
type AdminProfileView struct {
	ProfileView
	OuraUserID string      `json:"oura_user_id"`
	CreatedAt  time.Time   `json:"created_at"`
	Tokens     TokenStatus `json:"tokens"`
}

// BundleOpener decrypts a profile's token record. *TokenProvider implements it.
type BundleOpener interface {
	Bundle(profile domain.Profile) (oauth.TokenBundle, error)
}

// AdminService exposes the operator views. Every call re-reads the caller's
// profile and requires its admin flag.
type AdminService struct {
	profiles  repository.ProfileRepository
	bundles   BundleOpener
	dashboard *DashboardService
	logger    *zap.Logger
}

// NewAdminService wires dependencies.
func NewAdminService(
	profiles repository.ProfileRepository,
	bundles BundleOpener,
	dashboard *DashboardService,
	logger *zap.Logger,
) *AdminService {
	return &AdminService{profiles: profiles, bundles: bundles, dashboard: dashboard, logger: logger}
}

// TokenStatus reports on the caller's own stored tokens.
func (s *AdminService) TokenStatus(ctx context.Context, profileID int64) (TokenStatus, error) {
	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return TokenStatus{}, err
	}
	return s.tokenStatus(profile), nil
}

// ListProfiles returns every profile with its token status.
func (s *AdminService) ListProfiles(ctx context.Context, callerID int64) ([]AdminProfileView, error) {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return nil, err
	}
	profiles, err := s.profiles.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]AdminProfileView, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, AdminProfileView{
			ProfileView: NewProfileView(p),
			OuraUserID:  p.OuraUserID,
			CreatedAt:   p.CreatedAt,
			Tokens:      s.tokenStatus(p),
		})
	}
	return out, nil
}

// ProfileMetrics loads another user's recent data.
func (s *AdminService) ProfileMetrics(ctx context.Context, callerID, targetID int64) (ProfileView, *MetricsView, error) {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return ProfileView{}, nil, err
	}
	target, err := s.profiles.GetByID(ctx, targetID)
	if err != nil {
		return ProfileView{}, nil, err
	}
	view, err := s.dashboard.Metrics(ctx, target)
	if err != nil {
		return ProfileView{}, nil, err
	}
	target.AvgSleepScore, target.LastSleepScore = view.Summary.Average, view.Summary.Last
	return NewProfileView(target), view, nil
}

// GrantAdmin sets the admin flag on targetID.
func (s *AdminService) GrantAdmin(ctx context.Context, callerID, targetID int64) error {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return err
	}
	if err := s.profiles.SetAdmin(ctx, targetID, true); err != nil {
		return err
	}
	s.log().Info("admin granted", zap.Int64("by", callerID), zap.Int64("profile_id", targetID))
	return nil
}

func (s *AdminService) requireAdmin(ctx context.Context, callerID int64) error {
	caller, err := s.profiles.GetByID(ctx, callerID)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			return domain.ErrForbidden
		}
		return err
	}
	if !caller.IsAdmin {
		return domain.ErrForbidden
	}
	return nil
}

func (s *AdminService) tokenStatus(p domain.Profile) TokenStatus {
	bundle, err := s.bundles.Bundle(p)
	if err != nil {
		return TokenStatus{}
	}
	status := TokenStatus{
		Readable:            true,
		AccessTokenPresent:  bundle.AccessToken() != "",
		RefreshTokenPresent: bundle.RefreshToken() != "",
		TokenType:           bundle.TokenType(),
		ExpiresIn:           bundle.ExpiresIn(),
	}
	if exp := bundle.Expiry(); !exp.IsZero() {
		status.Expiry = &exp
	}
	return status
}

func (s *AdminService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
