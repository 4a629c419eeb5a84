package ui

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/helmbump/internal/execshell"
)

const (
	commandStartedMessageTemplateConstant          = "Running %s"
	commandCompletedMessageTemplateConstant        = "Completed %s"
	commandFailedExitCodeMessageTemplateConstant   = "%s failed with exit code %d"
	commandExecutionFailureMessageTemplateConstant = "%s failed: %s"
	stepCompletedMessageTemplateConstant           = "Step %s done in %s"
	stepFailedMessageTemplateConstant              = "Step %s failed after %s: %s"
	workingDirectorySuffixTemplateConstant         = " (in %s)"
	standardErrorSuffixTemplateConstant            = ": %s"
	commandArgumentsJoinSeparatorConstant          = " "
	unknownFailureMessageConstant                  = "unknown error"
	durationPrecisionConstant                      = time.Millisecond
)

// ProgressFormatter renders command and workflow step events as one-line
// messages. Credentials embedded in arguments or stderr are masked.
type ProgressFormatter struct{}

// CommandStarted describes a command about to run.
func (formatter ProgressFormatter) CommandStarted(command execshell.ShellCommand) string {
	return fmt.Sprintf(commandStartedMessageTemplateConstant, formatter.commandLabel(command))
}

// CommandSucceeded describes a command that exited with status zero.
func (formatter ProgressFormatter) CommandSucceeded(command execshell.ShellCommand) string {
	return fmt.Sprintf(commandCompletedMessageTemplateConstant, formatter.commandLabel(command))
}

// CommandFailed describes a command that exited non-zero, with its stderr when present.
func (formatter ProgressFormatter) CommandFailed(command execshell.ShellCommand, result execshell.ExecutionResult) string {
	message := fmt.Sprintf(commandFailedExitCodeMessageTemplateConstant, formatter.commandLabel(command), result.ExitCode)
	trimmedStandardError := strings.TrimSpace(result.StandardError)
	if len(trimmedStandardError) == 0 {
		return message
	}
	return message + fmt.Sprintf(standardErrorSuffixTemplateConstant, execshell.RedactCredentials(trimmedStandardError))
}

// CommandNotRun describes a command that could not be started.
func (formatter ProgressFormatter) CommandNotRun(command execshell.ShellCommand, failure error) string {
	failureMessage := unknownFailureMessageConstant
	if failure != nil {
		failureMessage = execshell.RedactCredentials(failure.Error())
	}
	return fmt.Sprintf(commandExecutionFailureMessageTemplateConstant, formatter.commandLabel(command), failureMessage)
}

// Step describes a finished workflow step.
func (formatter ProgressFormatter) Step(step string, duration time.Duration, failure error) string {
	roundedDuration := duration.Round(durationPrecisionConstant)
	if failure == nil {
		return fmt.Sprintf(stepCompletedMessageTemplateConstant, step, roundedDuration)
	}
	return fmt.Sprintf(stepFailedMessageTemplateConstant, step, roundedDuration, execshell.RedactCredentials(failure.Error()))
}

func (formatter ProgressFormatter) commandLabel(command execshell.ShellCommand) string {
	commandParts := []string{string(command.Name)}
	if len(command.Details.Arguments) > 0 {
		commandParts = append(commandParts, strings.Join(command.Details.Arguments, commandArgumentsJoinSeparatorConstant))
	}
	label := execshell.RedactCredentials(strings.Join(commandParts, commandArgumentsJoinSeparatorConstant))
	if trimmedDirectory := strings.TrimSpace(command.Details.WorkingDirectory); len(trimmedDirectory) > 0 {
		label += fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedDirectory)
	}
	return label
}

// ProgressLogger reports command lifecycle and step outcomes through a zap
// logger meant for console output. It satisfies execshell.CommandEventObserver
// and the upgrade step observer contract.
type ProgressLogger struct {
	logger    *zap.Logger
	formatter ProgressFormatter
}

// NewProgressLogger constructs a ProgressLogger; a nil logger discards output.
func NewProgressLogger(logger *zap.Logger) *ProgressLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressLogger{logger: logger}
}

// CommandStarted logs the command about to run.
func (progress *ProgressLogger) CommandStarted(command execshell.ShellCommand) {
	progress.logger.Info(progress.formatter.CommandStarted(command))
}

// CommandCompleted logs success at info level and a non-zero exit at warn level.
func (progress *ProgressLogger) CommandCompleted(command execshell.ShellCommand, result execshell.ExecutionResult) {
	if result.ExitCode == 0 {
		progress.logger.Info(progress.formatter.CommandSucceeded(command))
		return
	}
	progress.logger.Warn(progress.formatter.CommandFailed(command, result))
}

// CommandExecutionFailed logs a command that never ran.
func (progress *ProgressLogger) CommandExecutionFailed(command execshell.ShellCommand, failure error) {
	progress.logger.Error(progress.formatter.CommandNotRun(command, failure))
}

// ObserveStep logs a finished workflow step.
func (progress *ProgressLogger) ObserveStep(step string, duration time.Duration, failure error) {
	if failure != nil {
		progress.logger.Error(progress.formatter.Step(step, duration, failure))
		return
	}
	progress.logger.Info(progress.formatter.Step(step, duration, nil))
}
