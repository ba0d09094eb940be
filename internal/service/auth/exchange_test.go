package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	oauthadapter "github.com/JuhanV/Sleep-Game/internal/adapter/oauth"
	domainoauth "github.com/JuhanV/Sleep-Game/internal/domain/oauth"
	"github.com/JuhanV/Sleep-Game/internal/metrics"
)

type fakeOura struct {
	srv            *httptest.Server
	tokenCalls     atomic.Int32
	identityCalls  atomic.Int32
	tokenStatus    int
	tokenBody      string
	identityStatus int
	identityBody   string
	lastForm       atomic.Value
	lastAuth       atomic.Value
}

func newFakeOura(t *testing.T) *fakeOura {
	f := &fakeOura{
		tokenStatus:    http.StatusOK,
		tokenBody:      `{"access_token":"AT1","refresh_token":"RT1","token_type":"bearer","expires_in":86400}`,
		identityStatus: http.StatusOK,
		identityBody:   `{"id":"U1","email":"jane@example.com","age":30}`,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		_ = r.ParseForm()
		f.lastForm.Store(r.PostForm)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.tokenStatus)
		_, _ = w.Write([]byte(f.tokenBody))
	})
	mux.HandleFunc("/v2/usercollection/personal_info", func(w http.ResponseWriter, r *http.Request) {
		f.identityCalls.Add(1)
		f.lastAuth.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.identityStatus)
		_, _ = w.Write([]byte(f.identityBody))
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeOura) provider() domainoauth.ProviderConfig {
	return domainoauth.ProviderConfig{
		Name:         "oura",
		ClientID:     "client",
		ClientSecret: "secret",
		AuthURL:      f.srv.URL + "/oauth/authorize",
		TokenURL:     f.srv.URL + "/oauth/token",
		IdentityURL:  f.srv.URL + "/v2/usercollection/personal_info",
		RedirectURI:  "http://localhost:8080/auth/oura/callback",
		Scopes:       []string{"email", "personal", "daily"},
	}
}

func (f *fakeOura) exchanger(opts ...ExchangerOption) *Exchanger {
	client := oauthadapter.NewHTTPProviderClient(f.srv.Client())
	opts = append([]ExchangerOption{WithExchangeLogger(zap.NewNop())}, opts...)
	return NewExchanger(client, f.provider(), opts...)
}

func TestExchange_MissingCodeMakesNoRequests(t *testing.T) {
	f := newFakeOura(t)
	m := metrics.New()
	ex := f.exchanger(WithExchangeMetrics(m))

	for _, code := range []string{"", "   "} {
		res, err := ex.Exchange(context.Background(), code)
		require.Nil(t, res)
		require.True(t, domainoauth.IsMissingCode(err))
	}
	require.Zero(t, f.tokenCalls.Load())
	require.Zero(t, f.identityCalls.Load())
	require.Equal(t, 2.0, testutil.ToFloat64(m.OAuthExchangeTotal.WithLabelValues(resultMissingCode)))
}

func TestExchange_HappyPath(t *testing.T) {
	f := newFakeOura(t)
	m := metrics.New()
	ex := f.exchanger(WithExchangeMetrics(m))

	res, err := ex.Exchange(context.Background(), "C1")
	require.NoError(t, err)
	require.Equal(t, "U1", res.RemoteUserID)
	require.Equal(t, "jane@example.com", res.Email)
	require.Equal(t, "jane", res.DisplayName)
	require.Equal(t, "AT1", res.Tokens.AccessToken())
	require.Equal(t, "RT1", res.Tokens.RefreshToken())
	require.Equal(t, int64(86400), res.Tokens.ExpiresIn())

	require.Equal(t, int32(1), f.tokenCalls.Load())
	require.Equal(t, int32(1), f.identityCalls.Load())
	require.Equal(t, "Bearer AT1", f.lastAuth.Load())

	form := f.lastForm.Load().(url.Values)
	require.Equal(t, []string{"authorization_code"}, form["grant_type"])
	require.Equal(t, []string{"C1"}, form["code"])
	require.Equal(t, []string{"client"}, form["client_id"])
	require.Equal(t, []string{"secret"}, form["client_secret"])
	require.Equal(t, []string{"http://localhost:8080/auth/oura/callback"}, form["redirect_uri"])

	require.Equal(t, 1.0, testutil.ToFloat64(m.OAuthExchangeTotal.WithLabelValues(metrics.ResultSuccess)))
}

func TestExchange_PreservesUnknownBundleFields(t *testing.T) {
	f := newFakeOura(t)
	f.tokenBody = `{"access_token":"AT1","scope":"daily","x_custom":{"nested":true}}`

	res, err := f.exchanger().Exchange(context.Background(), "C1")
	require.NoError(t, err)
	require.Equal(t, "daily", res.Tokens["scope"])
	require.Equal(t, map[string]any{"nested": true}, res.Tokens["x_custom"])
}

func TestExchange_NoEmailUsesTimestampName(t *testing.T) {
	f := newFakeOura(t)
	f.identityBody = `{"id":"U2"}`
	fixed := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

	res, err := f.exchanger(WithClock(func() time.Time { return fixed })).Exchange(context.Background(), "C1")
	require.NoError(t, err)
	require.Equal(t, "U2", res.RemoteUserID)
	require.Empty(t, res.Email)
	require.Equal(t, "User_240309140507", res.DisplayName)
}

func TestExchange_TokenEndpointRejects(t *testing.T) {
	f := newFakeOura(t)
	f.tokenStatus = http.StatusBadRequest
	f.tokenBody = `{"error":"invalid_grant"}`

	res, err := f.exchanger().Exchange(context.Background(), "C1")
	require.Nil(t, res)

	var exErr *domainoauth.TokenExchangeError
	require.ErrorAs(t, err, &exErr)
	require.Equal(t, http.StatusBadRequest, exErr.StatusCode)
	require.JSONEq(t, `{"error":"invalid_grant"}`, exErr.Body)
	require.Zero(t, f.identityCalls.Load())
}

func TestExchange_TokenResponseWithoutAccessToken(t *testing.T) {
	f := newFakeOura(t)
	f.tokenBody = `{"token_type":"bearer"}`

	_, err := f.exchanger().Exchange(context.Background(), "C1")
	require.True(t, domainoauth.IsTokenExchange(err))
	require.Zero(t, f.identityCalls.Load())
}

func TestExchange_TokenTransportFailure(t *testing.T) {
	f := newFakeOura(t)
	ex := f.exchanger()
	f.srv.Close()

	_, err := ex.Exchange(context.Background(), "C1")
	var exErr *domainoauth.TokenExchangeError
	require.ErrorAs(t, err, &exErr)
	require.Zero(t, exErr.StatusCode)
	require.Error(t, exErr.Unwrap())
}

func TestExchange_IdentityFailure(t *testing.T) {
	f := newFakeOura(t)
	f.identityStatus = http.StatusUnauthorized
	f.identityBody = `{"detail":"bad token"}`
	m := metrics.New()

	res, err := f.exchanger(WithExchangeMetrics(m)).Exchange(context.Background(), "C1")
	require.Nil(t, res)

	var idErr *domainoauth.IdentityFetchError
	require.ErrorAs(t, err, &idErr)
	require.Equal(t, http.StatusUnauthorized, idErr.StatusCode)
	require.Equal(t, int32(1), f.tokenCalls.Load())
	require.Equal(t, int32(1), f.identityCalls.Load())
	require.Equal(t, 1.0, testutil.ToFloat64(m.OAuthExchangeTotal.WithLabelValues(resultIdentity)))
}

func TestExchange_IdentityWithoutID(t *testing.T) {
	f := newFakeOura(t)
	f.identityBody = `{"email":"jane@example.com"}`

	_, err := f.exchanger().Exchange(context.Background(), "C1")
	require.True(t, domainoauth.IsIdentityFetch(err))
}

func TestExchange_IdentityUndecodable(t *testing.T) {
	f := newFakeOura(t)
	f.identityBody = `<html>oops</html>`

	_, err := f.exchanger().Exchange(context.Background(), "C1")
	require.True(t, domainoauth.IsIdentityFetch(err))
}

func TestDisplayNameFor(t *testing.T) {
	now := time.Date(2023, 12, 31, 23, 59, 58, 0, time.UTC)
	cases := map[string]string{
		"jane@example.com": "jane",
		"a.b+c@x.io":       "a.b+c",
		"":                 "User_231231235958",
		"@example.com":     "User_231231235958",
		"noatsign":         "noatsign",
	}
	for email, want := range cases {
		require.Equal(t, want, domainoauth.DisplayNameFor(email, now), email)
	}
}

func TestTokenBundleJSONNumbersSurvive(t *testing.T) {
	bundle, err := domainoauth.DecodeTokenBundle([]byte(`{"access_token":"a","expires_in":86400}`))
	require.NoError(t, err)
	out, err := json.Marshal(bundle)
	require.NoError(t, err)
	require.JSONEq(t, `{"access_token":"a","expires_in":86400}`, string(out))
	require.Equal(t, json.Number("86400"), bundle["expires_in"])
}
