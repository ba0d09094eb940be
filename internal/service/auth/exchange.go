package auth

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	oauthadapter "github.com/JuhanV/Sleep-Game/internal/adapter/oauth"
	domainoauth "github.com/JuhanV/Sleep-Game/internal/domain/oauth"
	"github.com/JuhanV/Sleep-Game/internal/metrics"
)

// Exchange outcome labels.
const (
	resultMissingCode   = "missing_code"
	resultTokenExchange = "token_exchange"
	resultIdentity      = "identity_fetch"
)

// Exchanger turns an authorization code into a resolved remote identity.
// Each Exchange makes at most one token request and one identity request.
type Exchanger struct {
	client   oauthadapter.ProviderClient
	provider domainoauth.ProviderConfig
	now      func() time.Time
	metrics  *metrics.Metrics
	logger   *zap.Logger
	tracer   trace.Tracer
}

// ExchangerOption customises an Exchanger.
type ExchangerOption func(*Exchanger)

// WithClock overrides the clock used for fallback display names.
func WithClock(now func() time.Time) ExchangerOption {
	return func(e *Exchanger) { e.now = now }
}

// WithExchangeMetrics records exchange outcomes.
func WithExchangeMetrics(m *metrics.Metrics) ExchangerOption {
	return func(e *Exchanger) { e.metrics = m }
}

// WithExchangeLogger sets the logger.
func WithExchangeLogger(logger *zap.Logger) ExchangerOption {
	return func(e *Exchanger) { e.logger = logger }
}

// NewExchanger builds an Exchanger for the given provider.
func NewExchanger(client oauthadapter.ProviderClient, provider domainoauth.ProviderConfig, opts ...ExchangerOption) *Exchanger {
	e := &Exchanger{
		client:   client,
		provider: provider,
		now:      time.Now,
		tracer:   otel.Tracer("github.com/JuhanV/Sleep-Game/internal/service/auth"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Exchange runs code -> token bundle -> identity. A blank code fails with
// *MissingCodeError before any request is made.
func (e *Exchanger) Exchange(ctx context.Context, code string) (*domainoauth.Resolution, error) {
	ctx, span := e.tracer.Start(ctx, "Exchanger.Exchange")
	defer span.End()

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, e.fail(span, resultMissingCode, &domainoauth.MissingCodeError{})
	}

	tokens, err := e.client.ExchangeCode(ctx, e.provider, code)
	if err != nil {
		return nil, e.fail(span, resultTokenExchange, err)
	}

	identity, err := e.client.FetchIdentity(ctx, e.provider, tokens.AccessToken())
	if err != nil {
		return nil, e.fail(span, resultIdentity, err)
	}

	span.SetAttributes(attribute.Bool("oauth.identity.has_email", identity.Email != ""))
	e.metrics.ObserveExchange(metrics.ResultSuccess)
	return &domainoauth.Resolution{
		RemoteUserID: identity.ID,
		Email:        identity.Email,
		DisplayName:  domainoauth.DisplayNameFor(identity.Email, e.now()),
		Tokens:       tokens,
	}, nil
}

func (e *Exchanger) fail(span trace.Span, result string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, result)
	e.metrics.ObserveExchange(result)
	e.log().Warn("oauth exchange failed", zap.String("stage", result), zap.Error(err))
	return err
}

func (e *Exchanger) log() *zap.Logger {
	if e != nil && e.logger != nil {
		return e.logger
	}
	return zap.L()
}
