package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	t.Run("rejects non-positive sizes", func(t *testing.T) {
		_, err := GenerateToken(0)
		require.Error(t, err)
		_, err = GenerateToken(-1)
		require.Error(t, err)
	})

	t.Run("produces unique values", func(t *testing.T) {
		seen := make(map[string]struct{})
		for range 100 {
			tok, err := GenerateToken(TokenSize256)
			require.NoError(t, err)
			_, dup := seen[tok]
			require.False(t, dup, "token collision")
			seen[tok] = struct{}{}
		}
	})

	t.Run("encodes to expected length", func(t *testing.T) {
		tok, err := GenerateToken(TokenSize128)
		require.NoError(t, err)
		require.Len(t, tok, 22)
	})
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	t.Run("deterministic", func(t *testing.T) {
		require.Equal(t,
			Fingerprint("client_credentials", "login.example.com", "client-1"),
			Fingerprint("client_credentials", "login.example.com", "client-1"),
		)
	})

	t.Run("field boundaries matter", func(t *testing.T) {
		// "ab"+"c" must not collide with "a"+"bc".
		require.NotEqual(t, Fingerprint("ab", "c"), Fingerprint("a", "bc"))
	})

	t.Run("differs per identity", func(t *testing.T) {
		require.NotEqual(t,
			Fingerprint("password", "login.example.com", "alice@example.com"),
			Fingerprint("password", "login.example.com", "bob@example.com"),
		)
	})
}
