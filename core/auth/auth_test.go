package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	SetSecret("test-secret")

	tok, err := GenerateToken(42, "listener")
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	claims, err := ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "listener", claims.Username)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	SetSecret("test-secret")

	_, err := ParseToken("not.a.jwt")
	assert.Error(t, err)
}

func TestParseTokenRejectsTampered(t *testing.T) {
	SetSecret("test-secret")

	tok, err := GenerateToken(1, "a")
	require.NoError(t, err)

	_, err = ParseToken(tok + "x")
	assert.Error(t, err)
}
