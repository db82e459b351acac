package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAPIKey(t *testing.T) {
	k1, err := GenerateAPIKey()
	require.NoError(t, err)
	k2, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(k1, APIKeyPrefix))
	assert.Len(t, k1, len(APIKeyPrefix)+APIKeyBytes*2)
	assert.NotEqual(t, k1, k2)

	lookup, ok := APIKeyLookup(k1)
	require.True(t, ok)
	assert.Len(t, lookup, APIKeyLookupLength)
	assert.True(t, strings.HasPrefix(k1, lookup))
}

func TestAPIKeyLookup_Malformed(t *testing.T) {
	for _, raw := range []string{"", "mk_short", "sk_0123456789abcdef"} {
		_, ok := APIKeyLookup(raw)
		assert.False(t, ok, raw)
	}
}
