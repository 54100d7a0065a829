package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	headerAuthorization = "Authorization"
	headerAPIKey        = "X-Api-Key"
	bearerPrefix        = "bearer "
)

// Kind identifies how the caller presented its credential
type Kind string

const (
	KindBearer Kind = "bearer"
	KindAPIKey Kind = "api_key"
)

// Credential is the raw inbound credential
type Credential struct {
	Kind  Kind
	Value string
}

// UnauthorizedError is returned for every authentication failure. Detail is
// safe to show to the caller.
type UnauthorizedError struct {
	Detail string
	Cause  error
}

func (e *UnauthorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("unauthorized: %s: %v", e.Detail, e.Cause)
	}
	return "unauthorized: " + e.Detail
}

func (e *UnauthorizedError) Unwrap() error { return e.Cause }

// Unauthorized creates an UnauthorizedError
func Unauthorized(detail string, cause error) error {
	return &UnauthorizedError{Detail: detail, Cause: cause}
}

// IsUnauthorized reports whether err is an UnauthorizedError
func IsUnauthorized(err error) bool {
	var ue *UnauthorizedError
	return errors.As(err, &ue)
}

// ExtractCredential reads the bearer token or API key from h. A bearer token
// takes precedence over an API key when both are present.
func ExtractCredential(h http.Header) (Credential, error) {
	auth := strings.TrimSpace(h.Get(headerAuthorization))
	lower := strings.ToLower(auth)
	isBearer := lower == strings.TrimSpace(bearerPrefix) || strings.HasPrefix(lower, bearerPrefix)
	if isBearer && len(auth) > len(bearerPrefix) {
		if token := strings.TrimSpace(auth[len(bearerPrefix):]); token != "" {
			return Credential{Kind: KindBearer, Value: token}, nil
		}
	}

	if key := strings.TrimSpace(h.Get(headerAPIKey)); key != "" {
		return Credential{Kind: KindAPIKey, Value: key}, nil
	}

	if auth != "" && !isBearer {
		return Credential{}, Unauthorized("invalid authorization scheme", nil)
	}
	return Credential{}, Unauthorized("Missing authorization token", nil)
}
