package provider

import (
	"context"
	"fmt"
	"os"
)

// EnvTokenSource reads a Drive access token from an environment variable
// on every call. It is the simplest TokenSource that satisfies spec
// §6's "the core never speaks OAuth directly": actual token refresh is
// somebody else's job (a sidecar, a scheduled task) that keeps the
// variable current.
type EnvTokenSource struct {
	envVar string
}

// NewEnvTokenSource builds a TokenSource reading from envVar.
func NewEnvTokenSource(envVar string) *EnvTokenSource {
	return &EnvTokenSource{envVar: envVar}
}

func (s *EnvTokenSource) Token(ctx context.Context) (string, error) {
	tok := os.Getenv(s.envVar)
	if tok == "" {
		return "", fmt.Errorf("provider: %s is not set", s.envVar)
	}
	return tok, nil
}
