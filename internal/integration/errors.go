package integration

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means no valid caller principal was presented.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrOrganizationUnresolved means the caller has no organization and the
	// integration type does not allow the individual fallback.
	ErrOrganizationUnresolved = errors.New("organization not resolved for caller")
	// ErrMalformedState means an OAuth state parameter failed to decode.
	ErrMalformedState = errors.New("malformed oauth state")
	// ErrUnknownProvider means the requested provider is not registered.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrInvalidToken means a provider token payload is unusable.
	ErrInvalidToken = errors.New("invalid provider token")
)

// UpstreamError wraps a store or provider failure with the failing operation.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Upstream wraps err as an UpstreamError unless it is nil.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Op: op, Err: err}
}
