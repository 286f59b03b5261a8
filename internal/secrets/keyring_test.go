package secrets

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestSetGetDelete(t *testing.T) {
	keyring.MockInit()

	require.NoError(t, SetToken("default", "http://localhost:8080", "tok-123"))

	token, err := GetToken("default", "http://localhost:8080")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)

	require.NoError(t, DeleteToken("default", "http://localhost:8080"))

	_, err = GetToken("default", "http://localhost:8080")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetToken_NotFound(t *testing.T) {
	keyring.MockInit()

	_, err := GetToken("default", "http://localhost:8080")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokensAreScopedByProfileAndURI(t *testing.T) {
	keyring.MockInit()

	require.NoError(t, SetToken("work", "https://work.example.com", "work-tok"))
	require.NoError(t, SetToken("work", "https://other.example.com", "other-tok"))
	require.NoError(t, SetToken("home", "https://work.example.com", "home-tok"))

	token, err := GetToken("work", "https://work.example.com")
	require.NoError(t, err)
	assert.Equal(t, "work-tok", token)

	token, err = GetToken("home", "https://work.example.com")
	require.NoError(t, err)
	assert.Equal(t, "home-tok", token)
}

func TestDeleteToken_MissingIsNotAnError(t *testing.T) {
	keyring.MockInit()
	assert.NoError(t, DeleteToken("default", "http://localhost:8080"))
}

func TestBackendFailureIsNotNotFound(t *testing.T) {
	keyring.MockInitWithError(errors.New("keyring locked"))

	_, err := GetToken("default", "http://localhost:8080")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "keyring unavailable")
}
