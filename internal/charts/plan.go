package charts

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

const (
	planPathRequiredMessageConstant     = "chart plan path must be provided"
	planLoadErrorTemplateConstant       = "failed to load chart plan: %w"
	planParseErrorTemplateConstant      = "failed to parse chart plan: %w"
	planDecodeErrorTemplateConstant     = "failed to decode chart plan: %w"
	planEmptyMessageConstant            = "chart plan must list at least one chart to update"
	missingChartInfoTemplateConstant    = "chart %q has no entry in chart_info"
	missingChartVersionTemplateConstant = "chart %q has no version"
	duplicateChartTemplateConstant      = "chart %q listed more than once"
	yamlNullTagConstant                 = "!!null"
	planTagNameConstant                 = "mapstructure"
)

var (
	// ErrPlanPathRequired indicates LoadPlan was called without a path.
	ErrPlanPathRequired = errors.New(planPathRequiredMessageConstant)
	// ErrEmptyPlan indicates the plan names no charts.
	ErrEmptyPlan = errors.New(planEmptyMessageConstant)
)

// ChartInfo carries the resolved version of a chart and any other metadata the
// version resolver reported.
type ChartInfo struct {
	Version  string         `mapstructure:"version"`
	Metadata map[string]any `mapstructure:",remain"`
}

// Plan lists the charts to bump and their resolved versions.
type Plan struct {
	ChartsToUpdate []string             `mapstructure:"charts_to_update"`
	ChartInfo      map[string]ChartInfo `mapstructure:"chart_info"`
}

// PlanError reports an inconsistent plan.
type PlanError struct {
	Chart   string
	Message string
}

// Error describes the inconsistency.
func (planError PlanError) Error() string {
	return planError.Message
}

// LoadPlan reads a YAML or JSON plan file. Scalars are kept as written, so a
// version such as 1.10 is not reinterpreted as a number.
func LoadPlan(filePath string) (Plan, error) {
	trimmedPath := strings.TrimSpace(filePath)
	if len(trimmedPath) == 0 {
		return Plan{}, ErrPlanPathRequired
	}

	contentBytes, readError := os.ReadFile(trimmedPath)
	if readError != nil {
		return Plan{}, fmt.Errorf(planLoadErrorTemplateConstant, readError)
	}
	return ParsePlan(contentBytes)
}

// ParsePlan decodes and validates plan content.
func ParsePlan(contentBytes []byte) (Plan, error) {
	var document yaml.Node
	if unmarshalError := yaml.Unmarshal(contentBytes, &document); unmarshalError != nil {
		return Plan{}, fmt.Errorf(planParseErrorTemplateConstant, unmarshalError)
	}

	var plan Plan
	decoder, decoderError := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          planTagNameConstant,
		Result:           &plan,
		WeaklyTypedInput: true,
	})
	if decoderError != nil {
		return Plan{}, fmt.Errorf(planDecodeErrorTemplateConstant, decoderError)
	}
	if decodeError := decoder.Decode(nodeValue(&document)); decodeError != nil {
		return Plan{}, fmt.Errorf(planDecodeErrorTemplateConstant, decodeError)
	}

	for index, chartName := range plan.ChartsToUpdate {
		plan.ChartsToUpdate[index] = strings.TrimSpace(chartName)
	}
	if validationError := plan.Validate(); validationError != nil {
		return Plan{}, validationError
	}
	return plan, nil
}

// Validate checks that every listed chart appears once and has a version.
func (plan Plan) Validate() error {
	if len(plan.ChartsToUpdate) == 0 {
		return ErrEmptyPlan
	}
	seen := make(map[string]struct{}, len(plan.ChartsToUpdate))
	for _, chartName := range plan.ChartsToUpdate {
		if _, duplicate := seen[chartName]; duplicate {
			return PlanError{Chart: chartName, Message: fmt.Sprintf(duplicateChartTemplateConstant, chartName)}
		}
		seen[chartName] = struct{}{}

		info, exists := plan.ChartInfo[chartName]
		if !exists {
			return PlanError{Chart: chartName, Message: fmt.Sprintf(missingChartInfoTemplateConstant, chartName)}
		}
		if len(strings.TrimSpace(info.Version)) == 0 {
			return PlanError{Chart: chartName, Message: fmt.Sprintf(missingChartVersionTemplateConstant, chartName)}
		}
	}
	return nil
}

// Versions returns the versions of ChartsToUpdate in the same order.
func (plan Plan) Versions() []string {
	versions := make([]string, 0, len(plan.ChartsToUpdate))
	for _, chartName := range plan.ChartsToUpdate {
		versions = append(versions, strings.TrimSpace(plan.ChartInfo[chartName].Version))
	}
	return versions
}

func nodeValue(node *yaml.Node) any {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil
		}
		return nodeValue(node.Content[0])
	case yaml.MappingNode:
		mapping := make(map[string]any, len(node.Content)/2)
		for index := 0; index+1 < len(node.Content); index += 2 {
			mapping[node.Content[index].Value] = nodeValue(node.Content[index+1])
		}
		return mapping
	case yaml.SequenceNode:
		sequence := make([]any, 0, len(node.Content))
		for _, child := range node.Content {
			sequence = append(sequence, nodeValue(child))
		}
		return sequence
	case yaml.AliasNode:
		return nodeValue(node.Alias)
	default:
		if node.ShortTag() == yamlNullTagConstant {
			return nil
		}
		return node.Value
	}
}
