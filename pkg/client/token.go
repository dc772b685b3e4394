package client

import (
	"fmt"
	"os"
	"strings"
)

// DefaultTokenEnv is the environment variable holding the API token.
const DefaultTokenEnv = "WANIKANI_TOKEN"

// TokenSource supplies the bearer credential for each request.
type TokenSource interface {
	Token() (string, error)
}

// EnvToken reads the named environment variable every time a token is needed.
type EnvToken string

// Token implements TokenSource.
func (e EnvToken) Token() (string, error) {
	v := strings.TrimSpace(os.Getenv(string(e)))
	if v == "" {
		return "", fmt.Errorf("%w: environment variable %s is empty", ErrMissingToken, string(e))
	}
	return v, nil
}

// StaticToken is a fixed credential.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token() (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrMissingToken
	}
	return string(s), nil
}
