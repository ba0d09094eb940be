package jwt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JuhanV/Sleep-Game/internal/domain"
)

var testSecret = []byte(strings.Repeat("s", 32))

func TestGeneratorRoundTrip(t *testing.T) {
	generator, err := NewGenerator(testSecret, "http://localhost:8080", time.Hour)
	require.NoError(t, err)

	profile := domain.Profile{ID: 99, DisplayName: "jane"}
	token, err := generator.GenerateSessionToken(profile)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	session, err := generator.ValidateSessionToken(token)
	require.NoError(t, err)
	require.Equal(t, int64(99), session.ProfileID)
	require.Equal(t, "jane", session.Name)
	require.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, 5*time.Second)
}

func TestNewGeneratorRejectsShortSecret(t *testing.T) {
	_, err := NewGenerator([]byte("short"), "issuer", time.Hour)
	require.Error(t, err)
}

func TestValidateRejectsOtherSecret(t *testing.T) {
	a, err := NewGenerator(testSecret, "issuer", time.Hour)
	require.NoError(t, err)
	b, err := NewGenerator([]byte(strings.Repeat("x", 32)), "issuer", time.Hour)
	require.NoError(t, err)

	token, err := a.GenerateSessionToken(domain.Profile{ID: 1, DisplayName: "a"})
	require.NoError(t, err)

	_, err = b.ValidateSessionToken(token)
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	generator, err := NewGenerator(testSecret, "issuer", time.Minute)
	require.NoError(t, err)
	generator.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := generator.GenerateSessionToken(domain.Profile{ID: 1, DisplayName: "a"})
	require.NoError(t, err)

	generator.now = time.Now
	_, err = generator.ValidateSessionToken(token)
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestValidateRejectsOtherIssuer(t *testing.T) {
	a, err := NewGenerator(testSecret, "https://a.example", time.Hour)
	require.NoError(t, err)
	b, err := NewGenerator(testSecret, "https://b.example", time.Hour)
	require.NoError(t, err)

	token, err := a.GenerateSessionToken(domain.Profile{ID: 1, DisplayName: "a"})
	require.NoError(t, err)

	_, err = b.ValidateSessionToken(token)
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestValidateRejectsGarbage(t *testing.T) {
	generator, err := NewGenerator(testSecret, "issuer", time.Hour)
	require.NoError(t, err)

	for _, token := range []string{"", "abc", "a.b.c"} {
		_, err := generator.ValidateSessionToken(token)
		require.ErrorIs(t, err, ErrInvalidSession)
	}
}
