package dto

// BindingsFile is the decoded form of a bindings document.
// It uses "mapstructure" tags so it can be filled from any generic map
// (YAML, viper, JSON).
type BindingsFile struct {
	// Transforms maps a symbol name to an inline snippet for the evaluator.
	Transforms map[string]string `json:"transforms" mapstructure:"transforms"`
	Bindings   []Binding         `json:"bindings" mapstructure:"bindings"`
}

// Binding ties the entity referenced by Left to the one referenced by Right
// through every clause of Spec.
type Binding struct {
	Name  string `json:"name,omitempty" mapstructure:"name"`
	Left  string `json:"left" mapstructure:"left"`
	Right string `json:"right" mapstructure:"right"`
	Spec  string `json:"spec" mapstructure:"spec"`
}

// Label names the binding in logs and diagnostics.
func (b Binding) Label() string {
	if b.Name != "" {
		return b.Name
	}
	return b.Left + " <-> " + b.Right
}
