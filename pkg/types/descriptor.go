package types

// Condition is the declarative form of a rule predicate as written in a
// descriptor file. It is compiled into a Predicate when the file is loaded.
type Condition struct {
	Field   ContextField   `json:"field" yaml:"field"`
	Equals  *bool          `json:"equals,omitempty" yaml:"equals,omitempty"`
	AtLeast *EngineVersion `json:"atLeast,omitempty" yaml:"atLeast,omitempty"`
	Below   *EngineVersion `json:"below,omitempty" yaml:"below,omitempty"`
	Negate  bool           `json:"negate,omitempty" yaml:"negate,omitempty"`
}

// RuleSpec is a conditional rule as written in a descriptor file
type RuleSpec struct {
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	When        Condition `json:"when" yaml:"when"`
	Public      []string  `json:"public,omitempty" yaml:"public,omitempty"`
	Private     []string  `json:"private,omitempty" yaml:"private,omitempty"`
}

// ModuleSpec is a module descriptor as written in a descriptor file
type ModuleSpec struct {
	Name             string          `json:"name" yaml:"name"`
	Public           []string        `json:"public,omitempty" yaml:"public,omitempty"`
	Private          []string        `json:"private,omitempty" yaml:"private,omitempty"`
	Rules            []RuleSpec      `json:"rules,omitempty" yaml:"rules,omitempty"`
	DefinitionPrefix string          `json:"definitionPrefix,omitempty" yaml:"definitionPrefix,omitempty"`
	VersionChecks    []EngineVersion `json:"versionChecks,omitempty" yaml:"versionChecks,omitempty"`
	PCHUsage         PCHUsageMode    `json:"pchUsage,omitempty" yaml:"pchUsage,omitempty"`
	WarningsAsErrors *bool           `json:"warningsAsErrors,omitempty" yaml:"warningsAsErrors,omitempty"`
	Enabled          *bool           `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the module takes part in resolution
func (m *ModuleSpec) IsEnabled() bool { return m.Enabled == nil || *m.Enabled }

// GetWarningsAsErrors returns the warnings-as-errors flag, default false
func (m *ModuleSpec) GetWarningsAsErrors() bool {
	return m.WarningsAsErrors != nil && *m.WarningsAsErrors
}

// GetPCHUsage returns the PCH mode, falling back to the default mode
func (m *ModuleSpec) GetPCHUsage() PCHUsageMode {
	if m.PCHUsage == "" {
		return PCHUsageDefault
	}
	return m.PCHUsage
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	File  string   `json:"file" yaml:"file"`
	Level LogLevel `json:"level" yaml:"level"`
}

// DescriptorSet is the top-level descriptor file
type DescriptorSet struct {
	Version string         `json:"version" yaml:"version"`
	Plugin  string         `json:"plugin" yaml:"plugin"`
	Modules []ModuleSpec   `json:"modules" yaml:"modules"`
	Logging *LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// EnabledModules returns the enabled modules in declaration order
func (s *DescriptorSet) EnabledModules() []ModuleSpec {
	out := make([]ModuleSpec, 0, len(s.Modules))
	for _, m := range s.Modules {
		if m.IsEnabled() {
			out = append(out, m)
		}
	}
	return out
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool { return &b }
