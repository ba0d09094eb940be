package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/JuhanV/Sleep-Game/internal/domain"
	domainoauth "github.com/JuhanV/Sleep-Game/internal/domain/oauth"
	"github.com/JuhanV/Sleep-Game/internal/jwt"
	"github.com/JuhanV/Sleep-Game/internal/repository"
)

// CodeExchanger resolves an authorization code. *Exchanger implements it.
type CodeExchanger interface {
	Exchange(ctx context.Context, code string) (*domainoauth.Resolution, error)
}

// TokenSealer encrypts token bundles for storage.
type TokenSealer interface {
	Encrypt(bundle domainoauth.TokenBundle) (string, error)
}

// OAuthService defines the Oura login flow.
type OAuthService interface {
	StartAuthorization(ctx context.Context, in StartAuthorizationInput) (*StartAuthorizationOutput, error)
	HandleCallback(ctx context.Context, in OAuthCallbackInput) (*OAuthSession, error)
}

// StartAuthorizationInput contains parameters for constructing authorization URLs.
type StartAuthorizationInput struct {
	ReturnTo string
}

// StartAuthorizationOutput returns the prepared authorization URL.
type StartAuthorizationOutput struct {
	AuthorizationURL string
	State            string
}

// OAuthCallbackInput captures callback query parameters.
type OAuthCallbackInput struct {
	Code  string
	State string
}

// OAuthSession is the signed-in result of a callback.
type OAuthSession struct {
	Profile      domain.Profile
	Created      bool
	SessionToken string
	ExpiresIn    time.Duration
	ReturnTo     string
}

// OAuthServiceConfig holds the non-injected settings of the login flow.
type OAuthServiceConfig struct {
	Provider   domainoauth.ProviderConfig
	AdminEmail string
}

type oauthService struct {
	stateStore repository.OAuthStateStore
	exchanger  CodeExchanger
	sealer     TokenSealer
	profiles   repository.ProfileRepository
	ids        *snowflake.Node
	jwt        *jwt.Generator
	oauth2     *oauth2.Config
	adminEmail string
	now        func() time.Time
	logger     *zap.Logger
}

// NewOAuthService wires the OAuth service implementation.
func NewOAuthService(
	stateStore repository.OAuthStateStore,
	exchanger CodeExchanger,
	sealer TokenSealer,
	profiles repository.ProfileRepository,
	ids *snowflake.Node,
	jwtGenerator *jwt.Generator,
	cfg OAuthServiceConfig,
	logger *zap.Logger,
) OAuthService {
	return &oauthService{
		stateStore: stateStore,
		exchanger:  exchanger,
		sealer:     sealer,
		profiles:   profiles,
		ids:        ids,
		jwt:        jwtGenerator,
		oauth2:     cfg.Provider.OAuth2(),
		adminEmail: strings.ToLower(strings.TrimSpace(cfg.AdminEmail)),
		now:        time.Now,
		logger:     logger,
	}
}

const stateTTL = 5 * time.Minute

func (s *oauthService) StartAuthorization(ctx context.Context, in StartAuthorizationInput) (*StartAuthorizationOutput, error) {
	state, err := secureRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}

	payload := domainoauth.State{
		State:     state,
		ReturnTo:  safeReturnTo(in.ReturnTo),
		CreatedAt: s.now().UTC(),
	}
	if err := s.stateStore.SaveState(ctx, payload, stateTTL); err != nil {
		return nil, fmt.Errorf("persist state: %w", err)
	}

	return &StartAuthorizationOutput{
		AuthorizationURL: s.oauth2.AuthCodeURL(state),
		State:            state,
	}, nil
}

func (s *oauthService) HandleCallback(ctx context.Context, in OAuthCallbackInput) (*OAuthSession, error) {
	if strings.TrimSpace(in.Code) == "" {
		return nil, &domainoauth.MissingCodeError{}
	}

	state, err := s.consumeState(ctx, in.State)
	if err != nil {
		return nil, err
	}

	resolution, err := s.exchanger.Exchange(ctx, in.Code)
	if err != nil {
		return nil, err
	}

	profile, created, err := s.saveProfile(ctx, resolution)
	if err != nil {
		return nil, err
	}

	token, err := s.jwt.GenerateSessionToken(profile)
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	s.log().Info("oura login",
		zap.Int64("profile_id", profile.ID),
		zap.Bool("created", created),
		zap.Bool("is_admin", profile.IsAdmin),
	)

	return &OAuthSession{
		Profile:      profile,
		Created:      created,
		SessionToken: token,
		ExpiresIn:    s.jwt.TTL(),
		ReturnTo:     state.ReturnTo,
	}, nil
}

// consumeState takes the pending login so the state cannot be replayed.
func (s *oauthService) consumeState(ctx context.Context, raw string) (*domainoauth.State, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, domainoauth.ErrInvalidState
	}
	state, err := s.stateStore.ConsumeState(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if state == nil || state.State != raw {
		return nil, domainoauth.ErrInvalidState
	}
	return state, nil
}

func (s *oauthService) saveProfile(ctx context.Context, res *domainoauth.Resolution) (domain.Profile, bool, error) {
	now := s.now().UTC()
	record, err := s.sealer.Encrypt(res.Tokens.WithExpiry(now))
	if err != nil {
		return domain.Profile{}, false, fmt.Errorf("encrypt tokens: %w", err)
	}

	email := strings.ToLower(strings.TrimSpace(res.Email))
	isAdmin := s.adminEmail != "" && email == s.adminEmail

	existing, err := s.profiles.GetByOuraUserID(ctx, res.RemoteUserID)
	switch {
	case err == nil:
		return s.updateLogin(ctx, existing, email, res.DisplayName, record, isAdmin, now)
	case errors.Is(err, domain.ErrProfileNotFound):
	default:
		return domain.Profile{}, false, fmt.Errorf("get profile: %w", err)
	}

	created, err := s.profiles.Create(ctx, domain.Profile{
		ID:          s.ids.Generate().Int64(),
		OuraUserID:  res.RemoteUserID,
		Email:       email,
		DisplayName: res.DisplayName,
		OuraTokens:  record,
		IsAdmin:     isAdmin,
		LastLogin:   &now,
	})
	switch {
	case err == nil:
		return created, true, nil
	case errors.Is(err, domain.ErrProfileExists):
		// A concurrent first login inserted the row after our lookup.
		existing, err := s.profiles.GetByOuraUserID(ctx, res.RemoteUserID)
		if err != nil {
			return domain.Profile{}, false, fmt.Errorf("get profile: %w", err)
		}
		return s.updateLogin(ctx, existing, email, res.DisplayName, record, isAdmin, now)
	default:
		return domain.Profile{}, false, fmt.Errorf("create profile: %w", err)
	}
}

func (s *oauthService) updateLogin(
	ctx context.Context,
	existing domain.Profile,
	email, displayName, record string,
	isAdmin bool,
	now time.Time,
) (domain.Profile, bool, error) {
	existing.Email = email
	existing.DisplayName = displayName
	existing.OuraTokens = record
	existing.IsAdmin = existing.IsAdmin || isAdmin
	existing.LastLogin = &now
	updated, err := s.profiles.UpdateLogin(ctx, existing)
	if err != nil {
		return domain.Profile{}, false, fmt.Errorf("update profile: %w", err)
	}
	return updated, false, nil
}

func (s *oauthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

// safeReturnTo only allows local absolute paths.
func safeReturnTo(path string) string {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") || strings.Contains(path, "\\") {
		return "/"
	}
	return path
}

func secureRandomString(size int) (string, error) {
	if size <= 0 {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
