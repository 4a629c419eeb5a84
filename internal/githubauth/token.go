package githubauth

import (
	"errors"
	"os"
	"strings"

	"golang.org/x/oauth2"
)

// Environment variable names used by GitHub authentication helpers.
const (
	EnvGitHubCLIToken = "GH_TOKEN"
	EnvGitHubToken    = "GITHUB_TOKEN"
	EnvGitHubAPIToken = "GITHUB_API_TOKEN"
)

// TokenTypeConstant is the authorization scheme GitHub accepts for personal access tokens.
const TokenTypeConstant = "token"

const tokenMissingMessageConstant = "GitHub token not found; set GH_TOKEN, GITHUB_TOKEN, or GITHUB_API_TOKEN"

// ErrTokenNotFound indicates no token could be resolved from the environment.
var ErrTokenNotFound = errors.New(tokenMissingMessageConstant)

var tokenPreference = []string{
	EnvGitHubCLIToken,
	EnvGitHubToken,
	EnvGitHubAPIToken,
}

// ResolveToken returns the first non-empty GitHub authentication token observed
// in the provided environment map or the process environment.
func ResolveToken(environment map[string]string) (string, bool) {
	for _, key := range tokenPreference {
		if value, ok := lookup(environment, key); ok {
			return value, true
		}
	}
	for _, key := range tokenPreference {
		if value, ok := os.LookupEnv(key); ok {
			value = strings.TrimSpace(value)
			if len(value) > 0 {
				return value, true
			}
		}
	}
	return "", false
}

// RequireToken resolves a token like ResolveToken and fails with ErrTokenNotFound when none is set.
func RequireToken(environment map[string]string) (string, error) {
	token, found := ResolveToken(environment)
	if !found {
		return "", ErrTokenNotFound
	}
	return token, nil
}

// NewTokenSource wraps a static token so HTTP transports send it as
// "Authorization: token <value>".
func NewTokenSource(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: strings.TrimSpace(token),
		TokenType:   TokenTypeConstant,
	})
}

func lookup(environment map[string]string, key string) (string, bool) {
	if environment == nil {
		return "", false
	}
	value, exists := environment[key]
	if !exists {
		return "", false
	}
	value = strings.TrimSpace(value)
	if len(value) == 0 {
		return "", false
	}
	return value, true
}
