package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMediaURLSignerRoundTrip(t *testing.T) {
	signer := NewMediaURLSigner("secret", time.Minute)

	token, expiresAt, err := signer.Generate("issue-1", "issues/issue-1/photo.jpg")
	require.NoError(t, err)
	require.True(t, expiresAt.After(time.Now()))

	issueID, key, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "issue-1", issueID)
	require.Equal(t, "issues/issue-1/photo.jpg", key)
	require.Equal(t, expiresAt.Unix(), parsedExpiry.Unix())
}

func TestMediaURLSignerRejectsTampering(t *testing.T) {
	signer := NewMediaURLSigner("secret", time.Minute)
	token, _, err := signer.Generate("issue-1", "issues/issue-1/photo.jpg")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token+"x", false)
	require.Error(t, err)

	other := NewMediaURLSigner("different", time.Minute)
	_, _, _, err = other.Parse(token, false)
	require.Error(t, err)
}

func TestMediaURLSignerExpiry(t *testing.T) {
	signer := &MediaURLSigner{secret: []byte("secret"), ttl: -time.Minute}
	token, _, err := signer.Generate("issue-1", "k")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token, false)
	require.Error(t, err)

	_, _, _, err = signer.Parse(token, true)
	require.NoError(t, err)
}
