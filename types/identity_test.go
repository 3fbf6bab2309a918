package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Identity(t *testing.T) {
	t.Run("derived from public key", func(t *testing.T) {
		key := make([]byte, 33)
		key[0] = 0x02
		id := NewIdentityFromKey(key)
		require.NoError(t, id.IsValid())
		require.Len(t, []byte(id), IdentityLength)
		require.True(t, id.Eq(NewIdentityFromKey(key)), "derivation is deterministic")

		key[1] = 0x01
		require.False(t, id.Eq(NewIdentityFromKey(key)))
	})

	t.Run("validity", func(t *testing.T) {
		require.ErrorContains(t, Identity(nil).IsValid(), "invalid identity length")
		require.ErrorContains(t, Identity(make([]byte, 31)).IsValid(), "invalid identity length")
		require.NoError(t, Identity(make([]byte, 32)).IsValid())
	})

	t.Run("text encoding round trip", func(t *testing.T) {
		id := NewIdentityFromKey([]byte{1, 2, 3})
		text, err := id.MarshalText()
		require.NoError(t, err)

		var decoded Identity
		require.NoError(t, decoded.UnmarshalText(text))
		require.True(t, id.Eq(decoded))
	})
}
