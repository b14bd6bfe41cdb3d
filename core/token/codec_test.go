package token

import (
	"testing"
	"time"

	"github.com/M-Abd-ElBaset/hls-audio-service/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueValidateRoundTrip(t *testing.T) {
	codec, err := NewCodec("test-secret")
	require.NoError(t, err)

	tok, err := codec.Issue(42, KindTrack, 7, "203.0.113.9", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	payload, err := codec.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), payload.ResourceID)
	assert.Equal(t, KindTrack, payload.ResourceKind)
	assert.Equal(t, int64(7), payload.UserID)
	assert.Equal(t, "203.0.113.9", payload.IPClaim)
	assert.NotEmpty(t, payload.JTI)
	assert.Greater(t, payload.Exp, payload.IssuedAt)
}

func TestValidateExpiredToken(t *testing.T) {
	codec, err := NewCodec("test-secret")
	require.NoError(t, err)

	issued := time.Now()
	codec.now = func() time.Time { return issued }
	tok, err := codec.Issue(1, KindClip, 0, "", 30*time.Second)
	require.NoError(t, err)

	codec.now = func() time.Time { return issued.Add(31 * time.Second) }
	_, err = codec.Validate(tok)
	assert.ErrorIs(t, err, errs.ErrTokenExpired)
}

func TestValidateRejectsGarbage(t *testing.T) {
	codec, err := NewCodec("test-secret")
	require.NoError(t, err)

	for _, tok := range []string{"", "not-a-token", "AAAA", "%%%"} {
		_, err := codec.Validate(tok)
		assert.ErrorIs(t, err, errs.ErrInvalidToken, "token %q", tok)
	}
}

func TestValidateRejectsForeignKey(t *testing.T) {
	issuer, err := NewCodec("secret-a")
	require.NoError(t, err)
	verifier, err := NewCodec("secret-b")
	require.NoError(t, err)

	tok, err := issuer.Issue(9, KindTrack, 0, "", time.Hour)
	require.NoError(t, err)

	_, err = verifier.Validate(tok)
	assert.ErrorIs(t, err, errs.ErrInvalidToken)
}

func TestValidateRejectsTampering(t *testing.T) {
	codec, err := NewCodec("test-secret")
	require.NoError(t, err)

	tok, err := codec.Issue(9, KindTrack, 0, "", time.Hour)
	require.NoError(t, err)

	// Flip one character somewhere past the nonce.
	mangled := []byte(tok)
	i := len(mangled) / 2
	if mangled[i] == 'A' {
		mangled[i] = 'B'
	} else {
		mangled[i] = 'A'
	}

	_, err = codec.Validate(string(mangled))
	assert.ErrorIs(t, err, errs.ErrInvalidToken)
}

func TestNewCodecRequiresSecret(t *testing.T) {
	_, err := NewCodec("")
	assert.Error(t, err)
}
