package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainoauth "github.com/JuhanV/Sleep-Game/internal/domain/oauth"
)

const maxBodyBytes = 1 << 20

// ProviderClient encapsulates outbound HTTP calls to the OAuth provider.
type ProviderClient interface {
	ExchangeCode(ctx context.Context, provider domainoauth.ProviderConfig, code string) (domainoauth.TokenBundle, error)
	FetchIdentity(ctx context.Context, provider domainoauth.ProviderConfig, accessToken string) (*domainoauth.Identity, error)
}

// HTTPProviderClient is the default HTTP implementation.
type HTTPProviderClient struct {
	httpClient *http.Client
}

var _ ProviderClient = (*HTTPProviderClient)(nil)

// NewHTTPProviderClient constructs the default ProviderClient.
func NewHTTPProviderClient(client *http.Client) *HTTPProviderClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProviderClient{httpClient: client}
}

// ExchangeCode performs the authorization code exchange. Every failure is a
// *TokenExchangeError.
func (c *HTTPProviderClient) ExchangeCode(ctx context.Context, provider domainoauth.ProviderConfig, code string) (domainoauth.TokenBundle, error) {
	if strings.TrimSpace(provider.TokenURL) == "" {
		return nil, &domainoauth.TokenExchangeError{Err: errors.New("token url missing")}
	}
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", provider.RedirectURI)
	data.Set("client_id", provider.ClientID)
	if provider.ClientSecret != "" {
		data.Set("client_secret", provider.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, &domainoauth.TokenExchangeError{Err: fmt.Errorf("build token request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return nil, &domainoauth.TokenExchangeError{StatusCode: status, Err: err}
	}
	if status < 200 || status >= 300 {
		return nil, &domainoauth.TokenExchangeError{StatusCode: status, Body: string(body)}
	}

	bundle, err := domainoauth.DecodeTokenBundle(body)
	if err != nil {
		return nil, &domainoauth.TokenExchangeError{StatusCode: status, Body: string(body), Err: fmt.Errorf("decode token response: %w", err)}
	}
	if bundle.AccessToken() == "" {
		return nil, &domainoauth.TokenExchangeError{StatusCode: status, Err: errors.New("token response has no access_token")}
	}
	return bundle, nil
}

// FetchIdentity loads the account behind an access token. Every failure is an
// *IdentityFetchError.
func (c *HTTPProviderClient) FetchIdentity(ctx context.Context, provider domainoauth.ProviderConfig, accessToken string) (*domainoauth.Identity, error) {
	if strings.TrimSpace(provider.IdentityURL) == "" {
		return nil, &domainoauth.IdentityFetchError{Err: errors.New("identity url missing")}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.IdentityURL, nil)
	if err != nil {
		return nil, &domainoauth.IdentityFetchError{Err: fmt.Errorf("build identity request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return nil, &domainoauth.IdentityFetchError{StatusCode: status, Err: err}
	}
	if status < 200 || status >= 300 {
		return nil, &domainoauth.IdentityFetchError{StatusCode: status, Body: string(body)}
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &domainoauth.IdentityFetchError{StatusCode: status, Body: string(body), Err: fmt.Errorf("decode identity: %w", err)}
	}
	id := stringValue(coalesce(raw["id"], raw["user_id"]))
	if id == "" {
		return nil, &domainoauth.IdentityFetchError{StatusCode: status, Err: errors.New("identity response has no id")}
	}

	return &domainoauth.Identity{
		ID:    id,
		Email: strings.TrimSpace(stringValue(raw["email"])),
		Raw:   raw,
	}, nil
}

func (c *HTTPProviderClient) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case json.Number:
		return v.String()
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

func coalesce(values ...any) any {
	for _, v := range values {
		switch val := v.(type) {
		case string:
			if strings.TrimSpace(val) != "" {
				return v
			}
		case nil:
			continue
		default:
			return v
		}
	}
	return nil
}
