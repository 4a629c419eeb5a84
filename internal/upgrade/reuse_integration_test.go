package upgrade_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/helmbump/internal/branches"
	"github.com/temirov/helmbump/internal/charts"
	"github.com/temirov/helmbump/internal/execshell"
	"github.com/temirov/helmbump/internal/upgrade"
	"github.com/temirov/helmbump/internal/workingcopy"
)

const (
	integrationForkDirectoryNameConstant = "fork.git"
	integrationManifestFileNameConstant  = "requirements.yaml"
	integrationBaseBranchConstant        = "main"
	integrationRemoteNameConstant        = "origin"
	integrationUpstreamURLConstant       = "https://github.com/jupyterhub/mybinder.org-deploy.git"
	integrationUserEmailConstant         = "helmupgradebot.github@gmail.com"
)

type listedBranchesAPI struct {
	names []string
}

func (api listedBranchesAPI) Get(_ context.Context, _ string, target any) error {
	payload := make([]map[string]string, 0, len(api.names))
	for _, name := range api.names {
		payload = append(payload, map[string]string{"name": name})
	}
	encoded, encodeError := json.Marshal(payload)
	if encodeError != nil {
		return encodeError
	}
	return json.Unmarshal(encoded, target)
}

func (api listedBranchesAPI) Post(context.Context, string, any, any) error {
	return errors.New("unexpected post")
}

func (api listedBranchesAPI) Delete(context.Context, string) error {
	return errors.New("unexpected delete")
}

type integrationGit struct {
	testInstance *testing.T
	executor     *execshell.ShellExecutor
}

func (runner integrationGit) run(workingDirectory string, arguments ...string) string {
	runner.testInstance.Helper()
	result, runError := runner.executor.ExecuteGit(context.Background(), execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: workingDirectory,
	})
	require.NoError(runner.testInstance, runError, strings.Join(arguments, " "))
	return result.StandardOutput
}

func (runner integrationGit) commitManifest(repositoryPath string, contents string, message string) {
	runner.testInstance.Helper()
	require.NoError(runner.testInstance, os.WriteFile(filepath.Join(repositoryPath, integrationManifestFileNameConstant), []byte(contents), 0o644))
	runner.run(repositoryPath, "add", integrationManifestFileNameConstant)
	runner.run(repositoryPath, "commit", "-m", message)
}

// A clone left on the pushed target branch by an earlier run is reused: the
// local branch is dropped before any fork call, then recreated from base.
func TestRunReusesCloneLeftOnTargetBranch(testInstance *testing.T) {
	if _, lookupError := exec.LookPath("git"); lookupError != nil {
		testInstance.Skip("git not available")
	}

	temporaryRoot := testInstance.TempDir()
	forkPath := filepath.Join(temporaryRoot, integrationForkDirectoryNameConstant)
	clonePath := filepath.Join(temporaryRoot, "mybinder.org-deploy")

	testInstance.Setenv("HOME", temporaryRoot)
	testInstance.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	testInstance.Setenv("GIT_CONFIG_COUNT", "1")
	testInstance.Setenv("GIT_CONFIG_KEY_0", "url."+forkPath+".insteadOf")
	testInstance.Setenv("GIT_CONFIG_VALUE_0", integrationUpstreamURLConstant)

	shellExecutor, executorError := execshell.NewShellExecutor(zap.NewNop(), execshell.NewOSCommandRunner())
	require.NoError(testInstance, executorError)
	git := integrationGit{testInstance: testInstance, executor: shellExecutor}

	git.run(temporaryRoot, "init", "--bare", forkPath)
	git.run(temporaryRoot, "init", clonePath)
	git.run(clonePath, "config", "user.name", testBotAccountConstant)
	git.run(clonePath, "config", "user.email", integrationUserEmailConstant)
	git.commitManifest(clonePath, "dependencies: []\n", "Initial commit")
	git.run(clonePath, "branch", "-M", integrationBaseBranchConstant)
	git.run(clonePath, "remote", "add", integrationRemoteNameConstant, forkPath)
	git.run(clonePath, "push", integrationRemoteNameConstant, integrationBaseBranchConstant)

	git.run(clonePath, "checkout", "-b", testTargetBranchConstant)
	git.commitManifest(clonePath, "dependencies:\n- name: binderhub\n", "Bump binderhub")
	git.run(clonePath, "push", integrationRemoteNameConstant, testTargetBranchConstant)
	baseCommit := strings.TrimSpace(git.run(clonePath, "rev-parse", integrationBaseBranchConstant))

	workingCopyService, workingCopyError := workingcopy.NewService(workingcopy.Configuration{BotAccount: testBotAccountConstant}, workingcopy.ServiceDependencies{GitExecutor: shellExecutor})
	require.NoError(testInstance, workingCopyError)

	testHarness := newHarness()
	branchService, branchError := branches.NewService(branches.Configuration{BotAccount: testBotAccountConstant}, branches.ServiceDependencies{
		GitExecutor:   shellExecutor,
		GitHubAPI:     listedBranchesAPI{names: []string{integrationBaseBranchConstant, testTargetBranchConstant}},
		ForkInspector: testHarness.forks,
	})
	require.NoError(testInstance, branchError)

	service, serviceError := upgrade.NewService(upgrade.Dependencies{
		Logger:      zap.NewNop(),
		Clock:       clockwork.NewFakeClock(),
		Forks:       testHarness.forks,
		Branches:    branchService,
		WorkingCopy: workingCopyService,
		ManifestEditor: upgrade.ManifestEditorFunc(func(string, charts.Plan) error {
			testHarness.log.record("manifest.apply")
			return nil
		}),
		Publisher:          testHarness.publisher,
		PullRequestCreator: testHarness.pullRequests,
	})
	require.NoError(testInstance, serviceError)

	options := buildOptions(testInstance)
	options.WorkingDirectory = temporaryRoot

	result, runError := service.Run(context.Background(), options)
	require.NoError(testInstance, runError)
	require.True(testInstance, result.BranchReleased)
	require.False(testInstance, result.Cloned)
	require.Equal(testInstance, branches.CheckoutResult{ForkExisted: true, StaleBranchDeleted: true, BasePulled: true}, result.Checkout)
	require.Equal(testInstance, []string{"fork.exists", "fork.exists", "manifest.apply", "publish", "pullrequest.create"}, testHarness.log.calls)

	currentBranch, currentBranchError := workingCopyService.CurrentBranch(clonePath)
	require.NoError(testInstance, currentBranchError)
	require.Equal(testInstance, testTargetBranchConstant, currentBranch)
	require.Equal(testInstance, baseCommit, strings.TrimSpace(git.run(clonePath, "rev-parse", "HEAD")))
	require.Empty(testInstance, strings.TrimSpace(git.run(clonePath, "ls-remote", "--heads", integrationRemoteNameConstant, testTargetBranchConstant)))
}
