package githubauth_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/helmbump/internal/githubauth"
)

func TestResolveTokenPreference(t *testing.T) {
	t.Setenv(githubauth.EnvGitHubCLIToken, "")
	t.Setenv(githubauth.EnvGitHubToken, "")
	t.Setenv(githubauth.EnvGitHubAPIToken, "")

	testCases := []struct {
		name          string
		environment   map[string]string
		expectedToken string
		expectedFound bool
	}{
		{
			name: "CLITokenWins",
			environment: map[string]string{
				githubauth.EnvGitHubCLIToken: "cli",
				githubauth.EnvGitHubToken:    "github",
			},
			expectedToken: "cli",
			expectedFound: true,
		},
		{
			name: "BlankValuesSkipped",
			environment: map[string]string{
				githubauth.EnvGitHubCLIToken: "   ",
				githubauth.EnvGitHubAPIToken: " api ",
			},
			expectedToken: "api",
			expectedFound: true,
		},
		{
			name:          "NothingConfigured",
			environment:   map[string]string{},
			expectedFound: false,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			token, found := githubauth.ResolveToken(testCase.environment)
			require.Equal(t, testCase.expectedFound, found)
			require.Equal(t, testCase.expectedToken, token)
		})
	}
}

func TestResolveTokenFallsBackToProcessEnvironment(t *testing.T) {
	t.Setenv(githubauth.EnvGitHubCLIToken, "")
	t.Setenv(githubauth.EnvGitHubToken, "process-token")
	t.Setenv(githubauth.EnvGitHubAPIToken, "")

	token, err := githubauth.RequireToken(nil)
	require.NoError(t, err)
	require.Equal(t, "process-token", token)
}

func TestRequireTokenReportsMissingToken(t *testing.T) {
	t.Setenv(githubauth.EnvGitHubCLIToken, "")
	t.Setenv(githubauth.EnvGitHubToken, "")
	t.Setenv(githubauth.EnvGitHubAPIToken, "")

	_, err := githubauth.RequireToken(nil)
	require.ErrorIs(t, err, githubauth.ErrTokenNotFound)
}

func TestNewTokenSourceUsesTokenScheme(t *testing.T) {
	token, err := githubauth.NewTokenSource(" secret ").Token()
	require.NoError(t, err)

	request, requestError := http.NewRequest(http.MethodGet, "https://api.github.com/user", nil)
	require.NoError(t, requestError)
	token.SetAuthHeader(request)

	require.Equal(t, "token secret", request.Header.Get("Authorization"))
}
