package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/JuhanV/Sleep-Game/internal/domain"
)

const (
	sessionAudience = "sleepboard"
	sessionKeyID    = "session"
)

// ErrInvalidSession indicates a missing, expired or forged session token.
var ErrInvalidSession = errors.New("jwt: invalid session")

// Generator signs and validates session JWTs with one shared HS256 secret.
type Generator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewGenerator constructs a session JWT generator.
func NewGenerator(secret []byte, issuer string, ttl time.Duration) (*Generator, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwt: session secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Generator{secret: append([]byte(nil), secret...), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// TTL is the lifetime applied to new session tokens.
func (g *Generator) TTL() time.Duration { return g.ttl }

// SessionClaims represent the custom JWT payload for session tokens.
type SessionClaims struct {
	Name string `json:"name"`
}

// Session is a validated session token.
type Session struct {
	ProfileID int64
	Name      string
	ExpiresAt time.Time
}

// GenerateSessionToken produces a signed JWT for the profile.
func (g *Generator) GenerateSessionToken(profile domain.Profile) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: g.secret},
		(&gojose.SignerOptions{}).WithType("JWT").WithHeader("kid", sessionKeyID),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := g.now().UTC()
	stdClaims := gojwt.Claims{
		Subject:   strconv.FormatInt(profile.ID, 10),
		Audience:  gojwt.Audience{sessionAudience},
		Issuer:    g.issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(now.Add(g.ttl)),
		NotBefore: gojwt.NewNumericDate(now),
	}

	token, err := gojwt.Signed(signer).Claims(stdClaims).Claims(SessionClaims{Name: profile.DisplayName}).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize jwt: %w", err)
	}
	return token, nil
}

// ValidateSessionToken verifies the signature and standard claims.
func (g *Generator) ValidateSessionToken(token string) (*Session, error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrInvalidSession, err)
	}

	var std gojwt.Claims
	var custom SessionClaims
	if err := parsed.Claims(g.secret, &std, &custom); err != nil {
		return nil, fmt.Errorf("%w: verify: %v", ErrInvalidSession, err)
	}

	expected := gojwt.Expected{
		Issuer:      g.issuer,
		AnyAudience: gojwt.Audience{sessionAudience},
		Time:        g.now(),
	}
	if err := std.ValidateWithLeeway(expected, 0); err != nil {
		return nil, fmt.Errorf("%w: claims: %v", ErrInvalidSession, err)
	}

	id, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("%w: subject", ErrInvalidSession)
	}

	session := &Session{ProfileID: id, Name: custom.Name}
	if std.Expiry != nil {
		session.ExpiresAt = std.Expiry.Time()
	}
	return session, nil
}
