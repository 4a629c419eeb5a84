package execshell

import (
	"fmt"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	commandLabelTemplateConstant            = "%s%s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	commandArgumentsJoinSeparatorConstant   = " "
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	defaultWorkingDirectoryLabelConstant    = "current directory"
	fallbackUnknownValueLabelConstant       = "unknown"
	flagPrefixConstant                      = "-"
)

const (
	gitAddSubcommandNameConstant      = "add"
	gitCommitSubcommandNameConstant   = "commit"
	gitPushSubcommandNameConstant     = "push"
	gitPullSubcommandNameConstant     = "pull"
	gitBranchSubcommandNameConstant   = "branch"
	gitCheckoutSubcommandNameConstant = "checkout"
	gitCloneSubcommandNameConstant    = "clone"
	gitConfigSubcommandNameConstant   = "config"
	gitMessageFlagConstant            = "-m"
	gitDeleteLongFlagConstant         = "--delete"
	gitDeleteShortFlagConstant        = "-d"
	gitForceDeleteShortFlagConstant   = "-D"
	gitCreateBranchFlagConstant       = "-b"
	gitGlobalFlagConstant             = "--global"
)

const (
	gitAddStartTemplateConstant                       = "Staging %s in %s"
	gitAddSuccessTemplateConstant                     = "Staged %s in %s"
	gitAddFailureTemplateConstant                     = "Failed to stage %s in %s (exit code %d%s)"
	gitAddExecutionFailureTemplateConstant            = "Unable to stage %s in %s: %s"
	gitCommitStartTemplateConstant                    = "Creating commit in %s with message %q"
	gitCommitSuccessTemplateConstant                  = "Created commit in %s with message %q"
	gitCommitFailureTemplateConstant                  = "Failed to create commit in %s with message %q (exit code %d%s)"
	gitCommitExecutionFailureTemplateConstant         = "Unable to create commit in %s with message %q: %s"
	gitPushStartTemplateConstant                      = "Pushing %s to %s from %s"
	gitPushSuccessTemplateConstant                    = "Pushed %s to %s from %s"
	gitPushFailureTemplateConstant                    = "Failed to push %s to %s from %s (exit code %d%s)"
	gitPushExecutionFailureTemplateConstant           = "Unable to push %s to %s from %s: %s"
	gitPushDeletionStartTemplateConstant              = "Deleting remote branch %s from %s in %s"
	gitPushDeletionSuccessTemplateConstant            = "Deleted remote branch %s from %s in %s"
	gitPushDeletionFailureTemplateConstant            = "Failed to delete remote branch %s from %s in %s (exit code %d%s)"
	gitPushDeletionExecutionFailureTemplateConstant   = "Unable to delete remote branch %s from %s in %s: %s"
	gitPullStartTemplateConstant                      = "Pulling %s from %s into %s"
	gitPullSuccessTemplateConstant                    = "Pulled %s from %s into %s"
	gitPullFailureTemplateConstant                    = "Failed to pull %s from %s into %s (exit code %d%s)"
	gitPullExecutionFailureTemplateConstant           = "Unable to pull %s from %s into %s: %s"
	gitBranchDeletionStartTemplateConstant            = "Removing local branch %s in %s"
	gitBranchDeletionSuccessTemplateConstant          = "Removed local branch %s in %s"
	gitBranchDeletionFailureTemplateConstant          = "Failed to remove local branch %s in %s (exit code %d%s)"
	gitBranchDeletionExecutionFailureTemplateConstant = "Unable to remove local branch %s in %s: %s"
	gitCheckoutCreateStartTemplateConstant            = "Creating and switching to branch %s in %s"
	gitCheckoutCreateSuccessTemplateConstant          = "%s now on new branch %s"
	gitCheckoutCreateFailureTemplateConstant          = "Failed to create branch %s in %s (exit code %d%s)"
	gitCheckoutCreateExecutionFailureTemplateConstant = "Unable to create branch %s in %s: %s"
	gitCloneStartTemplateConstant                     = "Cloning %s into %s"
	gitCloneSuccessTemplateConstant                   = "Cloned %s into %s"
	gitCloneFailureTemplateConstant                   = "Failed to clone %s into %s (exit code %d%s)"
	gitCloneExecutionFailureTemplateConstant          = "Unable to clone %s into %s: %s"
	gitConfigStartTemplateConstant                    = "Setting %s git configuration %s"
	gitConfigSuccessTemplateConstant                  = "Set %s git configuration %s"
	gitConfigFailureTemplateConstant                  = "Failed to set %s git configuration %s (exit code %d%s)"
	gitConfigExecutionFailureTemplateConstant         = "Unable to set %s git configuration %s: %s"
	gitConfigGlobalScopeLabelConstant                 = "global"
	gitConfigLocalScopeLabelConstant                  = "repository"
)

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	if command.Name != CommandGit || len(command.Details.Arguments) == 0 {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	switch strings.TrimSpace(command.Details.Arguments[0]) {
	case gitAddSubcommandNameConstant:
		return formatter.describeGitAddMessage(command, result, failure, stage)
	case gitCommitSubcommandNameConstant:
		return formatter.describeGitCommitMessage(command, result, failure, stage)
	case gitPushSubcommandNameConstant:
		return formatter.describeGitPushMessage(command, result, failure, stage)
	case gitPullSubcommandNameConstant:
		return formatter.describeGitPullMessage(command, result, failure, stage)
	case gitBranchSubcommandNameConstant:
		return formatter.describeGitBranchMessage(command, result, failure, stage)
	case gitCheckoutSubcommandNameConstant:
		return formatter.describeGitCheckoutMessage(command, result, failure, stage)
	case gitCloneSubcommandNameConstant:
		return formatter.describeGitCloneMessage(command, result, failure, stage)
	case gitConfigSubcommandNameConstant:
		return formatter.describeGitConfigMessage(command, result, failure, stage)
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitAddMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	paths := formatter.ensureValue(strings.Join(formatter.positionalArguments(command.Details.Arguments[1:]), ", "))
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitAddStartTemplateConstant, paths, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitAddSuccessTemplateConstant, paths, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitAddFailureTemplateConstant, paths, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(gitAddExecutionFailureTemplateConstant, paths, workingDirectory, formatter.describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) describeGitCommitMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	commitMessage := formatter.ensureValue(findFlagValue(command.Details.Arguments, gitMessageFlagConstant))
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitCommitStartTemplateConstant, workingDirectory, commitMessage)
	case messageStageSuccess:
		return fmt.Sprintf(gitCommitSuccessTemplateConstant, workingDirectory, commitMessage)
	case messageStageFailure:
		return fmt.Sprintf(gitCommitFailureTemplateConstant, workingDirectory, commitMessage, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(gitCommitExecutionFailureTemplateConstant, workingDirectory, commitMessage, formatter.describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) describeGitPushMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	arguments := command.Details.Arguments[1:]
	workingDirectory := formatter.describeWorkingDirectory(command)
	positional := formatter.positionalArguments(arguments)
	remote := formatter.ensureValue(RedactCredentials(formatter.argumentAtIndex(positional, 0)))

	if containsArgument(arguments, gitDeleteLongFlagConstant) {
		branch := formatter.ensureValue(formatter.argumentAtIndex(positional, 1))
		switch stage {
		case messageStageStart:
			return fmt.Sprintf(gitPushDeletionStartTemplateConstant, branch, remote, workingDirectory)
		case messageStageSuccess:
			return fmt.Sprintf(gitPushDeletionSuccessTemplateConstant, branch, remote, workingDirectory)
		case messageStageFailure:
			return fmt.Sprintf(gitPushDeletionFailureTemplateConstant, branch, remote, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
		default:
			return fmt.Sprintf(gitPushDeletionExecutionFailureTemplateConstant, branch, remote, workingDirectory, formatter.describeFailure(failure))
		}
	}

	references := formatter.ensureValue(strings.Join(positional[min(1, len(positional)):], ", "))
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitPushStartTemplateConstant, references, remote, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitPushSuccessTemplateConstant, references, remote, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitPushFailureTemplateConstant, references, remote, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(gitPushExecutionFailureTemplateConstant, references, remote, workingDirectory, formatter.describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) describeGitPullMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	positional := formatter.positionalArguments(command.Details.Arguments[1:])
	remote := formatter.ensureValue(RedactCredentials(formatter.argumentAtIndex(positional, 0)))
	reference := formatter.ensureValue(formatter.argumentAtIndex(positional, 1))
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitPullStartTemplateConstant, reference, remote, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitPullSuccessTemplateConstant, reference, remote, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitPullFailureTemplateConstant, reference, remote, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(gitPullExecutionFailureTemplateConstant, reference, remote, workingDirectory, formatter.describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) describeGitBranchMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	arguments := command.Details.Arguments[1:]
	deletion := containsArgument(arguments, gitDeleteShortFlagConstant) || containsArgument(arguments, gitDeleteLongFlagConstant) || containsArgument(arguments, gitForceDeleteShortFlagConstant)
	if !deletion {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	workingDirectory := formatter.describeWorkingDirectory(command)
	branch := formatter.ensureValue(formatter.argumentAtIndex(formatter.positionalArguments(arguments), 0))
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitBranchDeletionStartTemplateConstant, branch, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitBranchDeletionSuccessTemplateConstant, branch, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitBranchDeletionFailureTemplateConstant, branch, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(gitBranchDeletionExecutionFailureTemplateConstant, branch, workingDirectory, formatter.describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) describeGitCheckoutMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	arguments := command.Details.Arguments[1:]
	branch := findFlagValue(arguments, gitCreateBranchFlagConstant)
	if len(branch) == 0 {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	workingDirectory := formatter.describeWorkingDirectory(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitCheckoutCreateStartTemplateConstant, branch, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitCheckoutCreateSuccessTemplateConstant, workingDirectory, branch)
	case messageStageFailure:
		return fmt.Sprintf(gitCheckoutCreateFailureTemplateConstant, branch, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(gitCheckoutCreateExecutionFailureTemplateConstant, branch, workingDirectory, formatter.describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) describeGitCloneMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	source := formatter.ensureValue(RedactCredentials(formatter.argumentAtIndex(formatter.positionalArguments(command.Details.Arguments[1:]), 0)))
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitCloneStartTemplateConstant, source, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitCloneSuccessTemplateConstant, source, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitCloneFailureTemplateConstant, source, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(gitCloneExecutionFailureTemplateConstant, source, workingDirectory, formatter.describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) describeGitConfigMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	arguments := command.Details.Arguments[1:]
	scope := gitConfigLocalScopeLabelConstant
	if containsArgument(arguments, gitGlobalFlagConstant) {
		scope = gitConfigGlobalScopeLabelConstant
	}
	key := formatter.ensureValue(formatter.argumentAtIndex(formatter.positionalArguments(arguments), 0))
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitConfigStartTemplateConstant, scope, key)
	case messageStageSuccess:
		return fmt.Sprintf(gitConfigSuccessTemplateConstant, scope, key)
	case messageStageFailure:
		return fmt.Sprintf(gitConfigFailureTemplateConstant, scope, key, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(gitConfigExecutionFailureTemplateConstant, scope, key, formatter.describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	label := formatter.formatCommandLabel(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, label)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, label)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, label, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, label, formatter.describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) formatCommandLabel(command ShellCommand) string {
	return fmt.Sprintf(commandLabelTemplateConstant, describeCommand(command), formatter.formatWorkingDirectorySuffix(command))
}

func (formatter CommandMessageFormatter) formatWorkingDirectorySuffix(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(RedactCredentials(standardError))
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) describeWorkingDirectory(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return defaultWorkingDirectoryLabelConstant
	}
	return trimmedWorkingDirectory
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return RedactCredentials(failure.Error())
}

func (formatter CommandMessageFormatter) positionalArguments(arguments []string) []string {
	positional := make([]string, 0, len(arguments))
	for index := 0; index < len(arguments); index++ {
		trimmed := strings.TrimSpace(arguments[index])
		if len(trimmed) == 0 {
			continue
		}
		if trimmed == gitMessageFlagConstant || trimmed == gitCreateBranchFlagConstant {
			index++
			continue
		}
		if strings.HasPrefix(trimmed, flagPrefixConstant) {
			continue
		}
		positional = append(positional, trimmed)
	}
	return positional
}

func (formatter CommandMessageFormatter) argumentAtIndex(arguments []string, index int) string {
	if index < 0 || index >= len(arguments) {
		return emptyStringConstant
	}
	return arguments[index]
}

func (formatter CommandMessageFormatter) ensureValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) == 0 {
		return fallbackUnknownValueLabelConstant
	}
	return trimmed
}

func containsArgument(arguments []string, value string) bool {
	for _, argument := range arguments {
		if strings.TrimSpace(argument) == value {
			return true
		}
	}
	return false
}

func findFlagValue(arguments []string, flag string) string {
	for index := 0; index < len(arguments); index++ {
		if strings.TrimSpace(arguments[index]) == flag && index+1 < len(arguments) {
			return strings.TrimSpace(arguments[index+1])
		}
	}
	return emptyStringConstant
}
