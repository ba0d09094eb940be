package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/JuhanV/Sleep-Game/internal/domain"
	"github.com/JuhanV/Sleep-Game/internal/domain/oauth"
	"github.com/JuhanV/Sleep-Game/internal/metrics"
	"github.com/JuhanV/Sleep-Game/internal/repository"
)

// TokenCipher seals and opens stored token records.
type TokenCipher interface {
	Encrypt(bundle oauth.TokenBundle) (string, error)
	Decrypt(record string) (oauth.TokenBundle, error)
}

// TokenProvider builds authenticated HTTP clients from a profile's stored
// tokens. Refreshed tokens are re-encrypted and written back to the profile.
type TokenProvider struct {
	cipher   TokenCipher
	oauth2   *oauth2.Config
	profiles repository.ProfileRepository
	base     *http.Client
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewTokenProvider constructs a TokenProvider. base may be nil.
func NewTokenProvider(
	cipher TokenCipher,
	provider oauth.ProviderConfig,
	profiles repository.ProfileRepository,
	base *http.Client,
	m *metrics.Metrics,
	logger *zap.Logger,
) *TokenProvider {
	return &TokenProvider{
		cipher:   cipher,
		oauth2:   provider.OAuth2(),
		profiles: profiles,
		base:     base,
		metrics:  m,
		logger:   logger,
	}
}

// Bundle decrypts the profile's stored record.
func (p *TokenProvider) Bundle(profile domain.Profile) (oauth.TokenBundle, error) {
	bundle, err := p.cipher.Decrypt(profile.OuraTokens)
	if err != nil {
		p.metrics.ObserveDecryptFailure()
		p.log().Warn("stored oura tokens unreadable", zap.Int64("profile_id", profile.ID))
		return nil, oauth.ErrDecryptionFailure
	}
	return bundle, nil
}

// Client returns an *http.Client that authorizes requests as the profile.
func (p *TokenProvider) Client(ctx context.Context, profile domain.Profile) (*http.Client, error) {
	bundle, err := p.Bundle(profile)
	if err != nil {
		return nil, err
	}
	if p.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.base)
	}
	initial := bundle.Token()
	src := &persistentTokenSource{
		base:      p.oauth2.TokenSource(ctx, initial),
		bundle:    bundle,
		last:      initial.AccessToken,
		profileID: profile.ID,
		provider:  p,
	}
	return oauth2.NewClient(ctx, src), nil
}

func (p *TokenProvider) persist(ctx context.Context, profileID int64, bundle oauth.TokenBundle) error {
	record, err := p.cipher.Encrypt(bundle)
	if err != nil {
		return fmt.Errorf("encrypt refreshed tokens: %w", err)
	}
	if err := p.profiles.UpdateTokens(ctx, profileID, record); err != nil {
		return fmt.Errorf("persist refreshed tokens: %w", err)
	}
	return nil
}

func (p *TokenProvider) log() *zap.Logger {
	if p != nil && p.logger != nil {
		return p.logger
	}
	return zap.L()
}

// persistentTokenSource writes a refreshed token back once per change.
type persistentTokenSource struct {
	base      oauth2.TokenSource
	profileID int64
	provider  *TokenProvider

	mu     sync.Mutex
	bundle oauth.TokenBundle
	last   string
}

var _ oauth2.TokenSource = (*persistentTokenSource)(nil)

func (s *persistentTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, fmt.Errorf("oura token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken == s.last {
		return tok, nil
	}

	merged := s.bundle.Merge(tok)
	// oauth2.TokenSource has no context parameter.
	if err := s.provider.persist(context.Background(), s.profileID, merged); err != nil {
		s.provider.log().Error("failed to persist refreshed oura tokens",
			zap.Int64("profile_id", s.profileID), zap.Error(err))
		return tok, nil
	}
	s.bundle = merged
	s.last = tok.AccessToken
	s.provider.log().Info("oura tokens refreshed", zap.Int64("profile_id", s.profileID))
	return tok, nil
}
