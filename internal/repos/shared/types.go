package shared

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	ownerRepositorySeparatorConstant    = "/"
	valueErrorTemplateConstant          = "invalid %s %q: %s"
	emptyValueReasonConstant            = "value required"
	containsSlashReasonConstant         = "must not contain '/'"
	containsWhitespaceReasonConstant    = "must not contain whitespace"
	leadingDashReasonConstant           = "must not start with '-'"
	parentTraversalReasonConstant       = "must not contain '..'"
	ownerRepositoryFormatReasonConstant = "expected owner/repository"
	ownerSlugKindConstant               = "owner"
	repositoryNameKindConstant          = "repository name"
	branchNameKindConstant              = "branch name"
	ownerRepositoryKindConstant         = "repository reference"
	parentTraversalSequenceConstant     = ".."
	leadingDashConstant                 = "-"
	ownerRepositoryPartsCountConstant   = 2
)

// ValueError reports a rejected domain value.
type ValueError struct {
	Kind   string
	Value  string
	Reason string
}

// Error describes the rejected value.
func (valueError ValueError) Error() string {
	return fmt.Sprintf(valueErrorTemplateConstant, valueError.Kind, valueError.Value, valueError.Reason)
}

// OwnerSlug is a GitHub user or organization login.
type OwnerSlug struct {
	value string
}

// NewOwnerSlug trims and validates an owner login.
func NewOwnerSlug(raw string) (OwnerSlug, error) {
	trimmed, validationError := validateSegment(ownerSlugKindConstant, raw)
	if validationError != nil {
		return OwnerSlug{}, validationError
	}
	return OwnerSlug{value: trimmed}, nil
}

// String returns the login.
func (slug OwnerSlug) String() string {
	return slug.value
}

// RepositoryName is a repository name without its owner.
type RepositoryName struct {
	value string
}

// NewRepositoryName trims and validates a repository name.
func NewRepositoryName(raw string) (RepositoryName, error) {
	trimmed, validationError := validateSegment(repositoryNameKindConstant, raw)
	if validationError != nil {
		return RepositoryName{}, validationError
	}
	return RepositoryName{value: trimmed}, nil
}

// String returns the repository name.
func (name RepositoryName) String() string {
	return name.value
}

// BranchName is a git branch name safe to pass as a command argument.
type BranchName struct {
	value string
}

// NewBranchName trims and validates a branch name.
func NewBranchName(raw string) (BranchName, error) {
	trimmed := strings.TrimSpace(raw)
	switch {
	case len(trimmed) == 0:
		return BranchName{}, ValueError{Kind: branchNameKindConstant, Value: raw, Reason: emptyValueReasonConstant}
	case strings.IndexFunc(trimmed, unicode.IsSpace) >= 0:
		return BranchName{}, ValueError{Kind: branchNameKindConstant, Value: raw, Reason: containsWhitespaceReasonConstant}
	case strings.HasPrefix(trimmed, leadingDashConstant):
		return BranchName{}, ValueError{Kind: branchNameKindConstant, Value: raw, Reason: leadingDashReasonConstant}
	case strings.Contains(trimmed, parentTraversalSequenceConstant):
		return BranchName{}, ValueError{Kind: branchNameKindConstant, Value: raw, Reason: parentTraversalReasonConstant}
	}
	return BranchName{value: trimmed}, nil
}

// String returns the branch name.
func (name BranchName) String() string {
	return name.value
}

// RepositoryRef identifies a GitHub repository by owner and name.
type RepositoryRef struct {
	owner OwnerSlug
	name  RepositoryName
}

// NewRepositoryRef validates both parts of a repository reference.
func NewRepositoryRef(owner string, name string) (RepositoryRef, error) {
	ownerSlug, ownerError := NewOwnerSlug(owner)
	if ownerError != nil {
		return RepositoryRef{}, ownerError
	}
	repositoryName, nameError := NewRepositoryName(name)
	if nameError != nil {
		return RepositoryRef{}, nameError
	}
	return RepositoryRef{owner: ownerSlug, name: repositoryName}, nil
}

// ParseRepositoryRef parses an "owner/name" reference.
func ParseRepositoryRef(raw string) (RepositoryRef, error) {
	parts := strings.Split(strings.TrimSpace(raw), ownerRepositorySeparatorConstant)
	if len(parts) != ownerRepositoryPartsCountConstant {
		return RepositoryRef{}, ValueError{Kind: ownerRepositoryKindConstant, Value: raw, Reason: ownerRepositoryFormatReasonConstant}
	}
	return NewRepositoryRef(parts[0], parts[1])
}

// Owner returns the owning account.
func (reference RepositoryRef) Owner() OwnerSlug {
	return reference.owner
}

// Name returns the repository name.
func (reference RepositoryRef) Name() RepositoryName {
	return reference.name
}

// FullName renders the reference as "owner/name".
func (reference RepositoryRef) FullName() string {
	return reference.owner.String() + ownerRepositorySeparatorConstant + reference.name.String()
}

// IsZero reports whether the reference was never initialized.
func (reference RepositoryRef) IsZero() bool {
	return len(reference.owner.value) == 0 && len(reference.name.value) == 0
}

func validateSegment(kind string, raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	switch {
	case len(trimmed) == 0:
		return "", ValueError{Kind: kind, Value: raw, Reason: emptyValueReasonConstant}
	case strings.Contains(trimmed, ownerRepositorySeparatorConstant):
		return "", ValueError{Kind: kind, Value: raw, Reason: containsSlashReasonConstant}
	case strings.IndexFunc(trimmed, unicode.IsSpace) >= 0:
		return "", ValueError{Kind: kind, Value: raw, Reason: containsWhitespaceReasonConstant}
	}
	return trimmed, nil
}
