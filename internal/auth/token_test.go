package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const secret = "test-secret-which-is-long-enough"

func TestVerifyRoundTrip(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken(secret, "u-42", "alice", time.Hour)
	req.NoError(err)

	claims, err := NewVerifier(secret).Verify(token)
	req.NoError(err)
	req.Equal("u-42", claims.UserID)
	req.Equal("alice", claims.Username)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	req := require.New(t)
	v := NewVerifier(secret)

	expired, err := GenerateToken(secret, "u-42", "alice", -time.Minute)
	req.NoError(err)
	_, err = v.Verify(expired)
	req.Error(err)

	wrongKey, err := GenerateToken("a-different-secret-entirely", "u-42", "alice", time.Hour)
	req.NoError(err)
	_, err = v.Verify(wrongKey)
	req.Error(err)

	_, err = v.Verify("not-a-token")
	req.Error(err)
}

func TestFromRequest(t *testing.T) {
	req := require.New(t)
	v := NewVerifier(secret)

	token, err := GenerateToken(secret, "u-7", "bob", time.Hour)
	req.NoError(err)

	r := httptest.NewRequest("GET", "/api/users/online", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	claims, err := v.FromRequest(r)
	req.NoError(err)
	req.Equal("u-7", claims.UserID)

	r = httptest.NewRequest("GET", "/ws?token="+token, nil)
	claims, err = v.FromRequest(r)
	req.NoError(err)
	req.Equal("u-7", claims.UserID)

	r = httptest.NewRequest("GET", "/ws", nil)
	_, err = v.FromRequest(r)
	req.ErrorIs(err, ErrNoToken)
}
