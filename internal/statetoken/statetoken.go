// Package statetoken encodes the OAuth state parameter that correlates a
// provider callback with the user who started the connect flow.
package statetoken

import (
	"errors"
	"fmt"
	"strings"
)

// Delimiter separates the user and organization identifiers.
const Delimiter = ":"

var (
	// ErrMalformed is returned by Decode for any state it cannot split.
	ErrMalformed = errors.New("malformed state token")
	// ErrInvalidIdentifier is returned by Encode for identifiers that
	// would not survive a round trip.
	ErrInvalidIdentifier = errors.New("invalid state identifier")
)

// Encode returns "<userID>:<orgID>".
func Encode(userID, orgID string) (string, error) {
	if err := checkIdentifier("user", userID); err != nil {
		return "", err
	}
	if err := checkIdentifier("organization", orgID); err != nil {
		return "", err
	}
	return userID + Delimiter + orgID, nil
}

// Decode splits state on the first delimiter.
func Decode(state string) (userID, orgID string, err error) {
	userID, orgID, ok := strings.Cut(state, Delimiter)
	if !ok || userID == "" || orgID == "" {
		return "", "", ErrMalformed
	}
	return userID, orgID, nil
}

func checkIdentifier(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty %s id", ErrInvalidIdentifier, kind)
	}
	if strings.Contains(id, Delimiter) {
		return fmt.Errorf("%w: %s id contains %q", ErrInvalidIdentifier, kind, Delimiter)
	}
	return nil
}
