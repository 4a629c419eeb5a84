package upgrade

import (
	"time"

	"github.com/temirov/helmbump/internal/forks"
)

const (
	defaultBotAccountConstant         = "HelmUpgradeBot"
	defaultBotEmailConstant           = "helmupgradebot.github@gmail.com"
	defaultAPIURLConstant             = "https://api.github.com/"
	defaultGitHostConstant            = "github.com"
	defaultRequestsPerSecondConstant  = 5.0
	defaultBaseBranchConstant         = "main"
	defaultTargetBranchConstant       = "helm_chart_bump"
	defaultWorkingDirectoryConstant   = "."
	githubConfigurationKeyConstant    = "github"
	runConfigurationKeyConstant       = "upgrade"
	configurationKeySeparatorConstant = "."
)

// GitHubConfiguration describes the bot account and how to reach GitHub.
type GitHubConfiguration struct {
	BotAccount        string        `mapstructure:"bot_account"`
	BotEmail          string        `mapstructure:"bot_email"`
	APIURL            string        `mapstructure:"api_url"`
	GitHost           string        `mapstructure:"git_host"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	PollAttempts      int           `mapstructure:"removal_poll_attempts"`
}

// RunConfiguration describes one upgrade target.
type RunConfiguration struct {
	RepositoryOwner  string   `mapstructure:"repository_owner"`
	RepositoryName   string   `mapstructure:"repository_name"`
	BaseBranch       string   `mapstructure:"base_branch"`
	TargetBranch     string   `mapstructure:"target_branch"`
	ManifestFile     string   `mapstructure:"manifest_file"`
	PlanFile         string   `mapstructure:"plan_file"`
	Labels           []string `mapstructure:"labels"`
	WorkingDirectory string   `mapstructure:"working_directory"`
	RecreateFork     bool     `mapstructure:"recreate_fork"`
	MetricsFile      string   `mapstructure:"metrics_file"`
}

// CommandConfiguration groups everything the upgrade and cleanup commands read.
// HumanReadableLogging adds console progress messages for commands and steps.
type CommandConfiguration struct {
	GitHub               GitHubConfiguration
	Run                  RunConfiguration
	HumanReadableLogging bool
}

// DefaultCommandConfiguration returns the built-in defaults.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		GitHub: GitHubConfiguration{
			BotAccount:        defaultBotAccountConstant,
			BotEmail:          defaultBotEmailConstant,
			APIURL:            defaultAPIURLConstant,
			GitHost:           defaultGitHostConstant,
			RequestsPerSecond: defaultRequestsPerSecondConstant,
			SettleDelay:       forks.DefaultSettleDelayConstant,
			PollInterval:      forks.DefaultPollIntervalConstant,
			PollAttempts:      forks.DefaultPollAttemptsConstant,
		},
		Run: RunConfiguration{
			BaseBranch:       defaultBaseBranchConstant,
			TargetBranch:     defaultTargetBranchConstant,
			WorkingDirectory: defaultWorkingDirectoryConstant,
		},
	}
}

// DefaultConfigurationValues flattens the defaults into configuration keys.
func DefaultConfigurationValues() map[string]any {
	defaults := DefaultCommandConfiguration()
	githubPrefix := githubConfigurationKeyConstant + configurationKeySeparatorConstant
	runPrefix := runConfigurationKeyConstant + configurationKeySeparatorConstant

	return map[string]any{
		githubPrefix + "bot_account":           defaults.GitHub.BotAccount,
		githubPrefix + "bot_email":             defaults.GitHub.BotEmail,
		githubPrefix + "api_url":               defaults.GitHub.APIURL,
		githubPrefix + "git_host":              defaults.GitHub.GitHost,
		githubPrefix + "requests_per_second":   defaults.GitHub.RequestsPerSecond,
		githubPrefix + "settle_delay":          defaults.GitHub.SettleDelay,
		githubPrefix + "poll_interval":         defaults.GitHub.PollInterval,
		githubPrefix + "removal_poll_attempts": defaults.GitHub.PollAttempts,
		runPrefix + "repository_owner":         defaults.Run.RepositoryOwner,
		runPrefix + "repository_name":          defaults.Run.RepositoryName,
		runPrefix + "base_branch":              defaults.Run.BaseBranch,
		runPrefix + "target_branch":            defaults.Run.TargetBranch,
		runPrefix + "manifest_file":            defaults.Run.ManifestFile,
		runPrefix + "plan_file":                defaults.Run.PlanFile,
		runPrefix + "labels":                   []string{},
		runPrefix + "working_directory":        defaults.Run.WorkingDirectory,
		runPrefix + "recreate_fork":            defaults.Run.RecreateFork,
		runPrefix + "metrics_file":             defaults.Run.MetricsFile,
	}
}
