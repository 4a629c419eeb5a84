package upgrade

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/helmbump/internal/charts"
	"github.com/temirov/helmbump/internal/pullrequests"
	"github.com/temirov/helmbump/internal/repos/shared"
)

const (
	upgradeCommandUseConstant               = "upgrade"
	upgradeCommandShortDescriptionConstant  = "Open a pull request bumping Helm chart dependencies"
	upgradeCommandLongDescriptionConstant   = "upgrade forks the repository, applies the chart plan to the manifest on a fresh branch, pushes it to the fork and opens a pull request upstream."
	cleanupCommandUseConstant               = "cleanup"
	cleanupCommandShortDescriptionConstant  = "Delete the bot's fork of the repository"
	cleanupCommandLongDescriptionConstant   = "cleanup removes the bot account's fork and waits until GitHub stops listing it."
	unexpectedArgumentsErrorMessageConstant = "command does not accept positional arguments"
	upgradeFailedErrorTemplateConstant      = "upgrade failed: %w"
	cleanupFailedErrorTemplateConstant      = "cleanup failed: %w"
	planLoadFailedErrorTemplateConstant     = "unable to load chart plan: %w"
	repositoryFlagNameConstant              = "repository"
	repositoryFlagDescriptionConstant       = "Upstream repository as owner/name"
	baseBranchFlagNameConstant              = "base-branch"
	baseBranchFlagDescriptionConstant       = "Upstream branch the pull request targets"
	targetBranchFlagNameConstant            = "target-branch"
	targetBranchFlagDescriptionConstant     = "Branch created on the fork for the update"
	manifestFileFlagNameConstant            = "manifest-file"
	manifestFileFlagDescriptionConstant     = "Manifest path relative to the repository root"
	planFileFlagNameConstant                = "plan-file"
	planFileFlagDescriptionConstant         = "Chart update plan (YAML or JSON)"
	labelsFlagNameConstant                  = "labels"
	labelsFlagDescriptionConstant           = "Labels to attach to the pull request"
	workingDirectoryFlagNameConstant        = "working-directory"
	workingDirectoryFlagDescriptionConstant = "Directory that holds the fork clone"
	recreateForkFlagNameConstant            = "recreate-fork"
	recreateForkFlagDescriptionConstant     = "Delete and recreate the fork before upgrading"
	metricsFileFlagNameConstant             = "metrics-file"
	metricsFileFlagDescriptionConstant      = "Write run metrics to this Prometheus textfile"
	repositoryOwnerFieldNameConstant        = "repository_owner"
	planFileFieldNameConstant               = "plan_file"
	pullRequestOutputTemplateConstant       = "%s\n"
	logMessageMetricsWriteFailedConstant    = "Unable to write metrics textfile"
	logMessageLabelsNotAttachedConstant     = "Pull request opened without labels"
	logFieldMetricsFileConstant             = "metrics_file"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider returns the current command configuration.
type ConfigurationProvider func() CommandConfiguration

// Runner is the part of Service the commands drive.
type Runner interface {
	Run(executionContext context.Context, options RunOptions) (RunResult, error)
	Cleanup(executionContext context.Context, repositoryName shared.RepositoryName) error
}

// MetricsWriter persists run metrics.
type MetricsWriter interface {
	WriteTextfile(path string) error
}

// ResolvedService bundles a runner with the metrics it feeds.
type ResolvedService struct {
	Runner  Runner
	Metrics MetricsWriter
}

// ServiceResolver builds the runner for a command invocation.
type ServiceResolver interface {
	Resolve(logger *zap.Logger, configuration CommandConfiguration) (ResolvedService, error)
}

// CommandBuilder assembles the upgrade and cleanup commands.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
	ServiceResolver       ServiceResolver
}

// Build constructs the upgrade and cleanup commands.
func (builder *CommandBuilder) Build() ([]*cobra.Command, error) {
	upgradeCommand := &cobra.Command{
		Use:   upgradeCommandUseConstant,
		Short: upgradeCommandShortDescriptionConstant,
		Long:  upgradeCommandLongDescriptionConstant,
		RunE:  builder.runUpgrade,
	}
	upgradeCommand.Flags().String(repositoryFlagNameConstant, "", repositoryFlagDescriptionConstant)
	upgradeCommand.Flags().String(baseBranchFlagNameConstant, "", baseBranchFlagDescriptionConstant)
	upgradeCommand.Flags().String(targetBranchFlagNameConstant, "", targetBranchFlagDescriptionConstant)
	upgradeCommand.Flags().String(manifestFileFlagNameConstant, "", manifestFileFlagDescriptionConstant)
	upgradeCommand.Flags().String(planFileFlagNameConstant, "", planFileFlagDescriptionConstant)
	upgradeCommand.Flags().StringSlice(labelsFlagNameConstant, nil, labelsFlagDescriptionConstant)
	upgradeCommand.Flags().String(workingDirectoryFlagNameConstant, "", workingDirectoryFlagDescriptionConstant)
	upgradeCommand.Flags().Bool(recreateForkFlagNameConstant, false, recreateForkFlagDescriptionConstant)
	upgradeCommand.Flags().String(metricsFileFlagNameConstant, "", metricsFileFlagDescriptionConstant)

	cleanupCommand := &cobra.Command{
		Use:   cleanupCommandUseConstant,
		Short: cleanupCommandShortDescriptionConstant,
		Long:  cleanupCommandLongDescriptionConstant,
		RunE:  builder.runCleanup,
	}
	cleanupCommand.Flags().String(repositoryFlagNameConstant, "", repositoryFlagDescriptionConstant)
	cleanupCommand.Flags().String(metricsFileFlagNameConstant, "", metricsFileFlagDescriptionConstant)

	return []*cobra.Command{upgradeCommand, cleanupCommand}, nil
}

func (builder *CommandBuilder) runUpgrade(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errors.New(unexpectedArgumentsErrorMessageConstant)
	}

	configuration, configurationError := builder.applyFlags(command, builder.resolveConfiguration())
	if configurationError != nil {
		return configurationError
	}
	options, optionsError := buildRunOptions(configuration)
	if optionsError != nil {
		return optionsError
	}

	logger := builder.resolveLogger()
	resolved, resolveError := builder.resolveServiceResolver().Resolve(logger, configuration)
	if resolveError != nil {
		return resolveError
	}

	result, runError := resolved.Runner.Run(command.Context(), options)
	writeMetrics(logger, resolved.Metrics, configuration.Run.MetricsFile)

	var labelError pullrequests.LabelAttachmentError
	if errors.As(runError, &labelError) {
		logger.Warn(logMessageLabelsNotAttachedConstant, zap.Error(labelError))
	}
	if len(result.PullRequest.HTMLURL) > 0 {
		fmt.Fprintf(command.OutOrStdout(), pullRequestOutputTemplateConstant, result.PullRequest.HTMLURL)
	}
	if runError != nil {
		return fmt.Errorf(upgradeFailedErrorTemplateConstant, runError)
	}
	return nil
}

func (builder *CommandBuilder) runCleanup(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errors.New(unexpectedArgumentsErrorMessageConstant)
	}

	configuration, configurationError := builder.applyFlags(command, builder.resolveConfiguration())
	if configurationError != nil {
		return configurationError
	}
	upstream, upstreamError := shared.NewRepositoryRef(configuration.Run.RepositoryOwner, configuration.Run.RepositoryName)
	if upstreamError != nil {
		return upstreamError
	}

	logger := builder.resolveLogger()
	resolved, resolveError := builder.resolveServiceResolver().Resolve(logger, configuration)
	if resolveError != nil {
		return resolveError
	}

	cleanupError := resolved.Runner.Cleanup(command.Context(), upstream.Name())
	writeMetrics(logger, resolved.Metrics, configuration.Run.MetricsFile)
	if cleanupError != nil {
		return fmt.Errorf(cleanupFailedErrorTemplateConstant, cleanupError)
	}
	return nil
}

// applyFlags overrides configuration with every flag the command defines and the user set.
func (builder *CommandBuilder) applyFlags(command *cobra.Command, configuration CommandConfiguration) (CommandConfiguration, error) {
	flags := command.Flags()

	if flags.Changed(repositoryFlagNameConstant) {
		repositoryValue, flagError := flags.GetString(repositoryFlagNameConstant)
		if flagError != nil {
			return configuration, flagError
		}
		upstream, parseError := shared.ParseRepositoryRef(repositoryValue)
		if parseError != nil {
			return configuration, parseError
		}
		configuration.Run.RepositoryOwner = upstream.Owner().String()
		configuration.Run.RepositoryName = upstream.Name().String()
	}

	stringOverrides := []struct {
		flagName string
		target   *string
	}{
		{flagName: baseBranchFlagNameConstant, target: &configuration.Run.BaseBranch},
		{flagName: targetBranchFlagNameConstant, target: &configuration.Run.TargetBranch},
		{flagName: manifestFileFlagNameConstant, target: &configuration.Run.ManifestFile},
		{flagName: planFileFlagNameConstant, target: &configuration.Run.PlanFile},
		{flagName: workingDirectoryFlagNameConstant, target: &configuration.Run.WorkingDirectory},
		{flagName: metricsFileFlagNameConstant, target: &configuration.Run.MetricsFile},
	}
	for _, override := range stringOverrides {
		if flags.Lookup(override.flagName) == nil || !flags.Changed(override.flagName) {
			continue
		}
		flagValue, flagError := flags.GetString(override.flagName)
		if flagError != nil {
			return configuration, flagError
		}
		*override.target = strings.TrimSpace(flagValue)
	}

	if flags.Lookup(labelsFlagNameConstant) != nil && flags.Changed(labelsFlagNameConstant) {
		labels, flagError := flags.GetStringSlice(labelsFlagNameConstant)
		if flagError != nil {
			return configuration, flagError
		}
		configuration.Run.Labels = labels
	}

	if flags.Lookup(recreateForkFlagNameConstant) != nil && flags.Changed(recreateForkFlagNameConstant) {
		recreate, flagError := flags.GetBool(recreateForkFlagNameConstant)
		if flagError != nil {
			return configuration, flagError
		}
		configuration.Run.RecreateFork = recreate
	}

	return configuration, nil
}

func buildRunOptions(configuration CommandConfiguration) (RunOptions, error) {
	upstream, upstreamError := shared.NewRepositoryRef(configuration.Run.RepositoryOwner, configuration.Run.RepositoryName)
	if upstreamError != nil {
		return RunOptions{}, InvalidInputError{FieldName: repositoryOwnerFieldNameConstant, Message: upstreamError.Error()}
	}
	baseBranch, baseError := shared.NewBranchName(configuration.Run.BaseBranch)
	if baseError != nil {
		return RunOptions{}, baseError
	}
	targetBranch, targetError := shared.NewBranchName(configuration.Run.TargetBranch)
	if targetError != nil {
		return RunOptions{}, targetError
	}
	if len(strings.TrimSpace(configuration.Run.PlanFile)) == 0 {
		return RunOptions{}, InvalidInputError{FieldName: planFileFieldNameConstant, Message: requiredValueMessageConstant}
	}
	plan, planError := charts.LoadPlan(configuration.Run.PlanFile)
	if planError != nil {
		return RunOptions{}, fmt.Errorf(planLoadFailedErrorTemplateConstant, planError)
	}

	return RunOptions{
		Upstream:         upstream,
		BaseBranch:       baseBranch,
		TargetBranch:     targetBranch,
		WorkingDirectory: configuration.Run.WorkingDirectory,
		ManifestFile:     configuration.Run.ManifestFile,
		Plan:             plan,
		Labels:           configuration.Run.Labels,
		Identity:         Identity{Name: configuration.GitHub.BotAccount, Email: configuration.GitHub.BotEmail},
		RecreateFork:     configuration.Run.RecreateFork,
	}, nil
}

func writeMetrics(logger *zap.Logger, metrics MetricsWriter, metricsFile string) {
	trimmedPath := strings.TrimSpace(metricsFile)
	if metrics == nil || len(trimmedPath) == 0 {
		return
	}
	if writeError := metrics.WriteTextfile(trimmedPath); writeError != nil {
		logger.Warn(logMessageMetricsWriteFailedConstant, zap.String(logFieldMetricsFileConstant, trimmedPath), zap.Error(writeError))
	}
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}

	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}

func (builder *CommandBuilder) resolveServiceResolver() ServiceResolver {
	if builder.ServiceResolver == nil {
		return &DefaultServiceResolver{}
	}
	return builder.ServiceResolver
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return DefaultCommandConfiguration()
	}
	return builder.ConfigurationProvider()
}
