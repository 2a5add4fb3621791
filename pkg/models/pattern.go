package models

// ValidationType describes how a pattern expects its checklist item to be
// proven.
type ValidationType string

const (
	ValidationFileExists ValidationType = "file_exists"
	ValidationCommandRun ValidationType = "command_run"
	ValidationCodeCheck  ValidationType = "code_check"
	ValidationCustom     ValidationType = "custom"
)

// ValidationDescriptor is the pattern's validation rule. The core uses it
// to synthesize a checklist item; file_exists and command_run validations
// demand structured evidence.
type ValidationDescriptor struct {
	Type   ValidationType `yaml:"type" json:"type"`
	Target string         `yaml:"target,omitempty" json:"target,omitempty"`
}

// Pattern is an externally-defined rule associated with one or more
// workflow states, contributing checklist items.
type Pattern struct {
	ID             string                `yaml:"id" json:"id"`
	Name           string                `yaml:"name" json:"name"`
	Description    string                `yaml:"description" json:"description"`
	RequiredStates []WorkflowState       `yaml:"required_states" json:"requiredStates"`
	Validation     *ValidationDescriptor `yaml:"validation,omitempty" json:"validation,omitempty"`
}

// AppliesTo reports whether the pattern gates the given workflow state.
func (p Pattern) AppliesTo(state WorkflowState) bool {
	for _, s := range p.RequiredStates {
		if s == state {
			return true
		}
	}
	return false
}

// PatternSet groups the patterns matched for a workflow state.
type PatternSet struct {
	Mandatory   []Pattern `yaml:"mandatory" json:"mandatory"`
	Recommended []Pattern `yaml:"recommended" json:"recommended"`
}
