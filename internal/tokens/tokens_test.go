package tokens

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAccessRoundTrip(t *testing.T) {
	codec := New("access_secret", time.Hour)

	raw, err := codec.SignAccess("alice", []int{2001, 1984})
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	claims, err := codec.ParseAccess(raw)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.UserInfo.Username)
	require.Equal(t, []int{2001, 1984}, claims.UserInfo.Roles)
	require.WithinDuration(t, time.Now(), claims.IssuedAt.Time, 5*time.Second)
	require.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestRefreshRoundTrip(t *testing.T) {
	codec := New("refresh_secret", 24*time.Hour)

	raw, err := codec.SignRefresh("alice")
	require.NoError(t, err)

	claims, err := codec.ParseRefresh(raw)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Username)
}

func TestExpiredToken(t *testing.T) {
	codec := New("access_secret", -time.Minute)

	raw, err := codec.SignAccess("alice", []int{2001})
	require.NoError(t, err)

	_, err = codec.ParseAccess(raw)
	require.ErrorIs(t, err, ErrExpired)
}

func TestCrossSecretRejection(t *testing.T) {
	access := New("access_secret", time.Hour)
	refresh := New("refresh_secret", time.Hour)

	raw, err := access.SignAccess("alice", []int{2001})
	require.NoError(t, err)

	_, err = refresh.ParseAccess(raw)
	require.ErrorIs(t, err, ErrInvalid)

	rawRefresh, err := refresh.SignRefresh("alice")
	require.NoError(t, err)

	_, err = access.ParseRefresh(rawRefresh)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestMalformedToken(t *testing.T) {
	codec := New("access_secret", time.Hour)

	for _, raw := range []string{"", "garbage", "a.b.c"} {
		_, err := codec.ParseAccess(raw)
		require.ErrorIs(t, err, ErrInvalid)
	}
}
