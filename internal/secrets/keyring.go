// Package secrets stores bearer tokens in the system keyring. Tokens are
// keyed by "{profile}:{uri}" under a fixed service namespace so multiple
// profiles and servers can hold independent credentials.
package secrets

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// Service is the keyring service namespace for all stored tokens.
const Service = "openwebui-cli"

// ErrNotFound is returned when no token is stored for the profile/URI pair.
// It is distinct from backend failures (no keyring installed, locked, etc.).
var ErrNotFound = errors.New("no token found")

func key(profile, uri string) string {
	return fmt.Sprintf("%s:%s", profile, uri)
}

// GetToken retrieves the token for a profile/URI pair.
func GetToken(profile, uri string) (string, error) {
	token, err := keyring.Get(Service, key(profile, uri))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("keyring unavailable: %w", err)
	}
	return token, nil
}

// SetToken stores the token for a profile/URI pair.
func SetToken(profile, uri, token string) error {
	if err := keyring.Set(Service, key(profile, uri), token); err != nil {
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}
	return nil
}

// DeleteToken removes the token for a profile/URI pair. Deleting a token
// that does not exist is not an error.
func DeleteToken(profile, uri string) error {
	if err := keyring.Delete(Service, key(profile, uri)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return nil
}
