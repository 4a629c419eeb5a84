package telemetry

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/temirov/helmbump/internal/execshell"
)

const (
	metricNamespaceConstant          = "helmbump"
	githubRequestsMetricNameConstant = "github_requests_total"
	githubRequestsMetricHelpConstant = "GitHub API requests issued, by status code and method."
	gitCommandsMetricNameConstant    = "git_commands_total"
	gitCommandsMetricHelpConstant    = "Git commands executed, by subcommand and outcome."
	stepDurationMetricNameConstant   = "step_duration_seconds"
	stepDurationMetricHelpConstant   = "Duration of upgrade workflow steps, by step and outcome."
	labelCodeConstant                = "code"
	labelMethodConstant              = "method"
	labelSubcommandConstant          = "subcommand"
	labelOutcomeConstant             = "outcome"
	labelStepConstant                = "step"
	unknownSubcommandConstant        = "unknown"
	flagPrefixConstant               = "-"
)

// Outcome labels shared by command and step metrics.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

var stepDurationBuckets = []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60}

// Recorder collects metrics for a single helmbump run in its own registry.
type Recorder struct {
	registry       *prometheus.Registry
	githubRequests *prometheus.CounterVec
	gitCommands    *prometheus.CounterVec
	stepDurations  *prometheus.HistogramVec
}

// NewRecorder registers the run metrics in a fresh registry.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()

	githubRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespaceConstant,
			Name:      githubRequestsMetricNameConstant,
			Help:      githubRequestsMetricHelpConstant,
		},
		[]string{labelCodeConstant, labelMethodConstant},
	)
	gitCommands := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespaceConstant,
			Name:      gitCommandsMetricNameConstant,
			Help:      gitCommandsMetricHelpConstant,
		},
		[]string{labelSubcommandConstant, labelOutcomeConstant},
	)
	stepDurations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricNamespaceConstant,
			Name:      stepDurationMetricNameConstant,
			Help:      stepDurationMetricHelpConstant,
			Buckets:   stepDurationBuckets,
		},
		[]string{labelStepConstant, labelOutcomeConstant},
	)

	registry.MustRegister(githubRequests, gitCommands, stepDurations)

	return &Recorder{
		registry:       registry,
		githubRequests: githubRequests,
		gitCommands:    gitCommands,
		stepDurations:  stepDurations,
	}
}

// Registry exposes the underlying registry.
func (recorder *Recorder) Registry() *prometheus.Registry {
	return recorder.registry
}

// InstrumentTransport counts every GitHub API round trip by status code and method.
func (recorder *Recorder) InstrumentTransport(next http.RoundTripper) http.RoundTripper {
	return promhttp.InstrumentRoundTripperCounter(recorder.githubRequests, next)
}

// CommandStarted satisfies execshell.CommandEventObserver.
func (recorder *Recorder) CommandStarted(execshell.ShellCommand) {}

// CommandCompleted counts a finished git command.
func (recorder *Recorder) CommandCompleted(command execshell.ShellCommand, result execshell.ExecutionResult) {
	outcome := OutcomeSuccess
	if result.ExitCode != 0 {
		outcome = OutcomeFailure
	}
	recorder.gitCommands.WithLabelValues(subcommandLabel(command), outcome).Inc()
}

// CommandExecutionFailed counts a git command that could not be run.
func (recorder *Recorder) CommandExecutionFailed(command execshell.ShellCommand, _ error) {
	recorder.gitCommands.WithLabelValues(subcommandLabel(command), OutcomeError).Inc()
}

// ObserveStep records how long a workflow step took and whether it failed.
func (recorder *Recorder) ObserveStep(step string, duration time.Duration, failure error) {
	outcome := OutcomeSuccess
	if failure != nil {
		outcome = OutcomeFailure
	}
	recorder.stepDurations.WithLabelValues(step, outcome).Observe(duration.Seconds())
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (recorder *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, recorder.registry)
}

func subcommandLabel(command execshell.ShellCommand) string {
	for _, argument := range command.Details.Arguments {
		trimmed := strings.TrimSpace(argument)
		if len(trimmed) == 0 || strings.HasPrefix(trimmed, flagPrefixConstant) {
			continue
		}
		return trimmed
	}
	return unknownSubcommandConstant
}
