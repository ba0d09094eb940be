package oauth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState indicates the OAuth state is unknown, expired or already used.
	ErrInvalidState = errors.New("oauth: invalid state")
	// ErrDecryptionFailure is the only error a stored token record fails with.
	ErrDecryptionFailure = errors.New("oauth: token record cannot be decrypted")
)

// MissingCodeError is returned when the callback carries no authorization code.
type MissingCodeError struct{}

func (e *MissingCodeError) Error() string {
	return "oauth: authorization code missing"
}

// TokenExchangeError reports a failed call to the token endpoint. StatusCode
// is zero when no HTTP response was received.
type TokenExchangeError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TokenExchangeError) Error() string {
	return upstreamMessage("token exchange failed", e.StatusCode, e.Err)
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

// IdentityFetchError reports a failed call to the identity endpoint.
type IdentityFetchError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *IdentityFetchError) Error() string {
	return upstreamMessage("identity fetch failed", e.StatusCode, e.Err)
}

func (e *IdentityFetchError) Unwrap() error { return e.Err }

// IsMissingCode reports whether err is a MissingCodeError.
func IsMissingCode(err error) bool {
	var target *MissingCodeError
	return errors.As(err, &target)
}

// IsTokenExchange reports whether err is a TokenExchangeError.
func IsTokenExchange(err error) bool {
	var target *TokenExchangeError
	return errors.As(err, &target)
}

// IsIdentityFetch reports whether err is an IdentityFetchError.
func IsIdentityFetch(err error) bool {
	var target *IdentityFetchError
	return errors.As(err, &target)
}

func upstreamMessage(prefix string, status int, cause error) string {
	switch {
	case status > 0 && cause != nil:
		return fmt.Sprintf("oauth: %s: status=%d: %v", prefix, status, cause)
	case status > 0:
		return fmt.Sprintf("oauth: %s: status=%d", prefix, status)
	case cause != nil:
		return fmt.Sprintf("oauth: %s: %v", prefix, cause)
	default:
		return "oauth: " + prefix
	}
}
