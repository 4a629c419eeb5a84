package charts

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	dependenciesKeyConstant             = "dependencies"
	dependencyNameKeyConstant           = "name"
	dependencyVersionKeyConstant        = "version"
	yamlStringTagConstant               = "!!str"
	manifestIndentConstant              = 2
	manifestPathRequiredMessageConstant = "manifest path must be provided"
	manifestNotMappingMessageConstant   = "manifest root is not a mapping"
	dependenciesMissingMessageConstant  = "manifest has no dependencies list"
	chartMissingTemplateConstant        = "chart %q is not a dependency in %s"
	manifestReadErrorTemplateConstant   = "failed to read manifest: %w"
	manifestParseErrorTemplateConstant  = "failed to parse manifest %s: %w"
	manifestEncodeErrorTemplateConstant = "failed to encode manifest: %w"
	manifestWriteErrorTemplateConstant  = "failed to write manifest: %w"
)

var (
	// ErrManifestPathRequired indicates ApplyPlan was called without a path.
	ErrManifestPathRequired = errors.New(manifestPathRequiredMessageConstant)
	// ErrDependenciesMissing indicates the manifest has no dependencies sequence.
	ErrDependenciesMissing = errors.New(dependenciesMissingMessageConstant)
)

// ChartNotFoundError reports a planned chart that the manifest does not declare.
type ChartNotFoundError struct {
	Chart        string
	ManifestPath string
}

// Error describes the missing chart.
func (notFound ChartNotFoundError) Error() string {
	return fmt.Sprintf(chartMissingTemplateConstant, notFound.Chart, notFound.ManifestPath)
}

// ApplyPlan rewrites dependencies[].version in a Helm requirements.yaml or
// Chart.yaml for every chart in the plan. The rest of the document, including
// comments and key order, is written back unchanged apart from indentation.
func ApplyPlan(manifestPath string, plan Plan) error {
	trimmedPath := strings.TrimSpace(manifestPath)
	if len(trimmedPath) == 0 {
		return ErrManifestPathRequired
	}
	if validationError := plan.Validate(); validationError != nil {
		return validationError
	}

	fileInfo, statError := os.Stat(trimmedPath)
	if statError != nil {
		return fmt.Errorf(manifestReadErrorTemplateConstant, statError)
	}
	contentBytes, readError := os.ReadFile(trimmedPath)
	if readError != nil {
		return fmt.Errorf(manifestReadErrorTemplateConstant, readError)
	}

	updatedBytes, updateError := UpdateManifest(contentBytes, plan)
	if updateError != nil {
		var notFound ChartNotFoundError
		if errors.As(updateError, &notFound) {
			notFound.ManifestPath = trimmedPath
			return notFound
		}
		return fmt.Errorf(manifestParseErrorTemplateConstant, trimmedPath, updateError)
	}

	if writeError := os.WriteFile(trimmedPath, updatedBytes, fileInfo.Mode().Perm()); writeError != nil {
		return fmt.Errorf(manifestWriteErrorTemplateConstant, writeError)
	}
	return nil
}

// UpdateManifest returns manifest content with planned versions applied.
func UpdateManifest(contentBytes []byte, plan Plan) ([]byte, error) {
	var document yaml.Node
	if unmarshalError := yaml.Unmarshal(contentBytes, &document); unmarshalError != nil {
		return nil, unmarshalError
	}
	if document.Kind != yaml.DocumentNode || len(document.Content) == 0 || document.Content[0].Kind != yaml.MappingNode {
		return nil, errors.New(manifestNotMappingMessageConstant)
	}

	dependencies := mappingValue(document.Content[0], dependenciesKeyConstant)
	if dependencies == nil || dependencies.Kind != yaml.SequenceNode {
		return nil, ErrDependenciesMissing
	}

	for _, chartName := range plan.ChartsToUpdate {
		version := strings.TrimSpace(plan.ChartInfo[chartName].Version)
		updated := false
		for _, dependency := range dependencies.Content {
			if dependency.Kind != yaml.MappingNode {
				continue
			}
			nameNode := mappingValue(dependency, dependencyNameKeyConstant)
			if nameNode == nil || nameNode.Value != chartName {
				continue
			}
			setVersion(dependency, version)
			updated = true
		}
		if !updated {
			return nil, ChartNotFoundError{Chart: chartName}
		}
	}

	var buffer bytes.Buffer
	encoder := yaml.NewEncoder(&buffer)
	encoder.SetIndent(manifestIndentConstant)
	if encodeError := encoder.Encode(&document); encodeError != nil {
		return nil, fmt.Errorf(manifestEncodeErrorTemplateConstant, encodeError)
	}
	if closeError := encoder.Close(); closeError != nil {
		return nil, fmt.Errorf(manifestEncodeErrorTemplateConstant, closeError)
	}
	return buffer.Bytes(), nil
}

func mappingValue(mapping *yaml.Node, key string) *yaml.Node {
	for index := 0; index+1 < len(mapping.Content); index += 2 {
		if mapping.Content[index].Value == key {
			return mapping.Content[index+1]
		}
	}
	return nil
}

func setVersion(dependency *yaml.Node, version string) {
	versionNode := mappingValue(dependency, dependencyVersionKeyConstant)
	if versionNode == nil {
		dependency.Content = append(dependency.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: yamlStringTagConstant, Value: dependencyVersionKeyConstant},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: yamlStringTagConstant, Value: version},
		)
		return
	}
	versionNode.Kind = yaml.ScalarNode
	versionNode.Tag = yamlStringTagConstant
	versionNode.Value = version
}
