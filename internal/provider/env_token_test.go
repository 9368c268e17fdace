package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvTokenSource_ReturnsCurrentEnvValue(t *testing.T) {
	t.Setenv("COREFETCH_TEST_TOKEN", "abc123")
	src := NewEnvTokenSource("COREFETCH_TEST_TOKEN")

	tok, err := src.Token(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "abc123", tok)
}

func TestEnvTokenSource_ErrorsWhenUnset(t *testing.T) {
	src := NewEnvTokenSource("COREFETCH_TEST_TOKEN_UNSET")
	_, err := src.Token(t.Context())
	assert.Error(t, err)
}
