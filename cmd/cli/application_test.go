package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/helmbump/cmd/cli"
	"github.com/temirov/helmbump/internal/pullrequests"
	"github.com/temirov/helmbump/internal/repos/shared"
	"github.com/temirov/helmbump/internal/upgrade"
	"github.com/temirov/helmbump/internal/utils"
)

const (
	testConfigurationContentConstant = `common:
  log_level: debug
github:
  settle_delay: 1s
upgrade:
  repository_owner: jupyterhub
  repository_name: mybinder.org-deploy
  manifest_file: mybinder/requirements.yaml
  labels: [dependencies]
`
	testPlanContentConstant = "charts_to_update: [binderhub]\nchart_info:\n  binderhub:\n    version: 0.2.0-n361\n"
)

type recordingRunner struct {
	runOptions     []upgrade.RunOptions
	cleanupTargets []shared.RepositoryName
	contextErrors  []error
}

func (runner *recordingRunner) Run(executionContext context.Context, options upgrade.RunOptions) (upgrade.RunResult, error) {
	runner.runOptions = append(runner.runOptions, options)
	runner.contextErrors = append(runner.contextErrors, executionContext.Err())
	if contextError := executionContext.Err(); contextError != nil {
		return upgrade.RunResult{}, contextError
	}
	return upgrade.RunResult{PullRequest: pullrequests.PullRequest{HTMLURL: "https://github.com/jupyterhub/mybinder.org-deploy/pull/42"}}, nil
}

func (runner *recordingRunner) Cleanup(executionContext context.Context, repositoryName shared.RepositoryName) error {
	runner.cleanupTargets = append(runner.cleanupTargets, repositoryName)
	runner.contextErrors = append(runner.contextErrors, executionContext.Err())
	return executionContext.Err()
}

type recordingResolver struct {
	runner         *recordingRunner
	configurations []upgrade.CommandConfiguration
}

func (resolver *recordingResolver) Resolve(_ *zap.Logger, configuration upgrade.CommandConfiguration) (upgrade.ResolvedService, error) {
	resolver.configurations = append(resolver.configurations, configuration)
	return upgrade.ResolvedService{Runner: resolver.runner}, nil
}

func newTestApplication(t *testing.T) (*cli.Application, *recordingResolver, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "helmbump.log")
	resolver := &recordingResolver{runner: &recordingRunner{}}
	application := cli.NewApplicationWithDependencies(cli.ApplicationDependencies{
		ServiceResolver: resolver,
		LoggerFactory:   utils.NewLoggerFactoryWithOutputs(logPath),
	})
	return application, resolver, logPath
}

func writeFile(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestApplicationUpgradeLayersConfiguration(t *testing.T) {
	t.Setenv("HELMBUMP_UPGRADE_TARGET_BRANCH", "env_branch")
	application, resolver, logPath := newTestApplication(t)

	output := &bytes.Buffer{}
	application.RootCommand().SetOut(output)
	application.RootCommand().SetArgs([]string{
		"--config", writeFile(t, "config.yaml", testConfigurationContentConstant),
		"upgrade",
		"--plan-file", writeFile(t, "plan.yaml", testPlanContentConstant),
		"--base-branch", "staging",
	})

	require.NoError(t, application.Execute())
	require.Equal(t, "https://github.com/jupyterhub/mybinder.org-deploy/pull/42\n", output.String())

	require.Len(t, resolver.configurations, 1)
	configuration := resolver.configurations[0]
	require.Equal(t, "HelmUpgradeBot", configuration.GitHub.BotAccount)
	require.Equal(t, time.Second, configuration.GitHub.SettleDelay)
	require.Equal(t, 2*time.Second, configuration.GitHub.PollInterval)

	require.Len(t, resolver.runner.runOptions, 1)
	options := resolver.runner.runOptions[0]
	require.Equal(t, "jupyterhub/mybinder.org-deploy", options.Upstream.FullName())
	require.Equal(t, "staging", options.BaseBranch.String())
	require.Equal(t, "env_branch", options.TargetBranch.String())
	require.Equal(t, "mybinder/requirements.yaml", options.ManifestFile)
	require.Equal(t, []string{"dependencies"}, options.Labels)
	require.Equal(t, []string{"binderhub"}, options.Plan.ChartsToUpdate)

	logContent, readError := os.ReadFile(logPath)
	require.NoError(t, readError)
	require.Contains(t, string(logContent), "configuration initialized")
}

func TestApplicationCleanupUsesRepositoryFlag(t *testing.T) {
	application, resolver, _ := newTestApplication(t)
	application.RootCommand().SetArgs([]string{"cleanup", "--repository", "jupyterhub/mybinder.org-deploy", "--log-format", "console"})

	require.NoError(t, application.Execute())
	require.Len(t, resolver.runner.cleanupTargets, 1)
	require.Equal(t, "mybinder.org-deploy", resolver.runner.cleanupTargets[0].String())
}

func TestApplicationExecuteContextReachesRunner(t *testing.T) {
	testCases := []struct {
		name          string
		arguments     func(*testing.T) []string
		cancel        bool
		expectedError error
	}{
		{
			name: "UpgradeLive",
			arguments: func(t *testing.T) []string {
				return []string{"--config", writeFile(t, "config.yaml", testConfigurationContentConstant), "upgrade", "--plan-file", writeFile(t, "plan.yaml", testPlanContentConstant)}
			},
		},
		{
			name: "UpgradeInterrupted",
			arguments: func(t *testing.T) []string {
				return []string{"--config", writeFile(t, "config.yaml", testConfigurationContentConstant), "upgrade", "--plan-file", writeFile(t, "plan.yaml", testPlanContentConstant)}
			},
			cancel:        true,
			expectedError: context.Canceled,
		},
		{
			name: "CleanupInterrupted",
			arguments: func(*testing.T) []string {
				return []string{"cleanup", "--repository", "jupyterhub/mybinder.org-deploy"}
			},
			cancel:        true,
			expectedError: context.Canceled,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			application, resolver, _ := newTestApplication(t)
			application.RootCommand().SetOut(&bytes.Buffer{})
			application.RootCommand().SetArgs(testCase.arguments(t))

			executionContext, cancel := context.WithCancel(context.Background())
			defer cancel()
			if testCase.cancel {
				cancel()
			}

			executionError := application.ExecuteContext(executionContext)
			require.Len(t, resolver.runner.contextErrors, 1)
			require.Equal(t, testCase.expectedError, resolver.runner.contextErrors[0])
			if testCase.expectedError == nil {
				require.NoError(t, executionError)
				return
			}
			require.ErrorIs(t, executionError, testCase.expectedError)
		})
	}
}

func TestApplicationRejectsInvalidLogging(t *testing.T) {
	testCases := []struct {
		name      string
		arguments []string
	}{
		{name: "LogLevel", arguments: []string{"--log-level", "verbose", "cleanup", "--repository", "o/r"}},
		{name: "LogFormat", arguments: []string{"--log-format", "xml", "cleanup", "--repository", "o/r"}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			application, resolver, _ := newTestApplication(t)
			application.RootCommand().SetArgs(testCase.arguments)

			require.Error(t, application.Execute())
			require.Empty(t, resolver.configurations)
		})
	}
}

func TestApplicationRejectsMissingConfigurationFile(t *testing.T) {
	application, _, _ := newTestApplication(t)
	application.RootCommand().SetArgs([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml"), "cleanup", "--repository", "o/r"})

	require.Error(t, application.Execute())
}

func TestApplicationVersionFlag(t *testing.T) {
	originalVersion := cli.Version
	cli.Version = "v1.4.0"
	t.Cleanup(func() { cli.Version = originalVersion })

	application, _, _ := newTestApplication(t)
	output := &bytes.Buffer{}
	application.RootCommand().SetOut(output)
	application.RootCommand().SetArgs([]string{"--version"})

	require.NoError(t, application.Execute())
	require.Equal(t, "helmbump version: v1.4.0\n", output.String())
}

func TestApplicationRegistersCommands(t *testing.T) {
	application, _, _ := newTestApplication(t)

	commandNames := make([]string, 0)
	for _, command := range application.RootCommand().Commands() {
		commandNames = append(commandNames, command.Name())
	}
	require.Subset(t, commandNames, []string{"upgrade", "cleanup"})
}
