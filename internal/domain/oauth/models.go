package oauth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// ProviderConfig describes the external OAuth2 provider (Oura).
type ProviderConfig struct {
	Name         string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	IdentityURL  string
	RedirectURI  string
	Scopes       []string
}

// OAuth2 returns the x/oauth2 view of the provider used for URLs and refreshes.
func (p ProviderConfig) OAuth2() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURI,
		Scopes:       append([]string(nil), p.Scopes...),
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.AuthURL,
			TokenURL:  p.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// State is persisted between the authorize redirect and the callback.
type State struct {
	State     string    `json:"state"`
	ReturnTo  string    `json:"return_to,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenBundle is the JSON object returned by the token endpoint. Unknown
// keys are kept as-is.
//
// Bundles compare as JSON documents: values read back from storage are
// JSON-decoded types (string, bool, json.Number, []any, map[string]any, nil),
// so a bundle built with Go ints or typed slices equals its Normalize form,
// not itself, after a round trip.
type TokenBundle map[string]any

// Bundle keys with a defined meaning.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyTokenType    = "token_type"
	KeyExpiresIn    = "expires_in"
	KeyExpiry       = "expiry"
)

// DecodeTokenBundle parses a JSON object, keeping numbers as json.Number so
// re-encoding yields the same document.
func DecodeTokenBundle(data []byte) (TokenBundle, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var bundle TokenBundle
	if err := dec.Decode(&bundle); err != nil {
		return nil, err
	}
	if bundle == nil {
		return nil, fmt.Errorf("token bundle is not a JSON object")
	}
	return bundle, nil
}

// Normalize re-decodes the bundle through JSON so its values carry the same
// types a stored bundle is read back with.
func (b TokenBundle) Normalize() (TokenBundle, error) {
	if b == nil {
		b = TokenBundle{}
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode token bundle: %w", err)
	}
	return DecodeTokenBundle(data)
}

func (b TokenBundle) AccessToken() string  { return stringValue(b[KeyAccessToken]) }
func (b TokenBundle) RefreshToken() string { return stringValue(b[KeyRefreshToken]) }
func (b TokenBundle) TokenType() string    { return stringValue(b[KeyTokenType]) }

// ExpiresIn is the lifetime in seconds reported by the provider, or 0.
func (b TokenBundle) ExpiresIn() int64 { return int64Value(b[KeyExpiresIn]) }

// Expiry returns the stamped absolute expiry, zero when unknown.
func (b TokenBundle) Expiry() time.Time {
	raw := stringValue(b[KeyExpiry])
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Clone returns a shallow copy.
func (b TokenBundle) Clone() TokenBundle {
	out := make(TokenBundle, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// WithExpiry stamps the absolute expiry derived from expires_in relative to now.
// Bundles without expires_in are returned unchanged.
func (b TokenBundle) WithExpiry(now time.Time) TokenBundle {
	out := b.Clone()
	if secs := b.ExpiresIn(); secs > 0 {
		out[KeyExpiry] = now.UTC().Add(time.Duration(secs) * time.Second).Format(time.RFC3339)
	}
	return out
}

// Token converts the bundle into an oauth2.Token for refresh-aware clients.
func (b TokenBundle) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  b.AccessToken(),
		RefreshToken: b.RefreshToken(),
		TokenType:    b.TokenType(),
		Expiry:       b.Expiry(),
	}
	return tok.WithExtra(map[string]any(b))
}

// Merge overlays a refreshed token onto the bundle. The refresh token is kept
// when the provider does not rotate it.
func (b TokenBundle) Merge(tok *oauth2.Token) TokenBundle {
	out := b.Clone()
	out[KeyAccessToken] = tok.AccessToken
	if tok.RefreshToken != "" {
		out[KeyRefreshToken] = tok.RefreshToken
	}
	if tok.TokenType != "" {
		out[KeyTokenType] = tok.TokenType
	}
	if !tok.Expiry.IsZero() {
		out[KeyExpiry] = tok.Expiry.UTC().Format(time.RFC3339)
		if secs := int64(time.Until(tok.Expiry).Seconds()); secs > 0 {
			out[KeyExpiresIn] = json.Number(strconv.FormatInt(secs, 10))
		}
	}
	return out
}

// Identity is the remote account returned by the identity endpoint.
type Identity struct {
	ID    string
	Email string
	Raw   map[string]any
}

// Resolution is the outcome of a completed authorization code exchange.
type Resolution struct {
	RemoteUserID string
	Email        string
	DisplayName  string
	Tokens       TokenBundle
}

// DisplayNameFor derives the public name: the email local part, or a
// timestamp-based name when no email is known.
func DisplayNameFor(email string, now time.Time) string {
	email = strings.TrimSpace(email)
	if email != "" {
		local, _, _ := strings.Cut(email, "@")
		if local != "" {
			return local
		}
	}
	return "User_" + now.Format("060102150405")
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

func int64Value(input any) int64 {
	switch v := input.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return int64(f)
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
