package shared

import "fmt"

const stepErrorTemplateConstant = "%s step failed: %v"

// StepName labels one fallible step of a multi-step workflow.
type StepName string

// StepError reports the step at which a workflow stopped. Earlier steps are
// not rolled back.
type StepError struct {
	Step  StepName
	Cause error
}

// Error describes the failed step.
func (stepError StepError) Error() string {
	return fmt.Sprintf(stepErrorTemplateConstant, stepError.Step, stepError.Cause)
}

// Unwrap exposes the underlying cause.
func (stepError StepError) Unwrap() error {
	return stepError.Cause
}
