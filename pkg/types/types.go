// Package types provides the core types shared by the modrules packages
package types

import (
	"fmt"
	"sort"
)

// PCHUsageMode represents how a module consumes precompiled headers
type PCHUsageMode string

const (
	PCHUsageDefault                 PCHUsageMode = "Default"
	PCHUsageNoPCHs                  PCHUsageMode = "NoPCHs"
	PCHUsageNoSharedPCHs            PCHUsageMode = "NoSharedPCHs"
	PCHUsageUseSharedPCHs           PCHUsageMode = "UseSharedPCHs"
	PCHUsageUseExplicitOrSharedPCHs PCHUsageMode = "UseExplicitOrSharedPCHs"
)

// ContextField names a BuildContext field a condition may reference
type ContextField string

const (
	ContextFieldEditorBuild ContextField = "isEditorBuild"
	ContextFieldHostVersion ContextField = "hostVersion"
)

// LogLevel represents logging verbosity levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// DefaultDefinitionPrefix is used when a descriptor declares no prefix
const DefaultDefinitionPrefix = "MODRULES"

// EngineVersion is a (major, minor) engine version. It doubles as a
// version requirement.
type EngineVersion struct {
	Major int `json:"major" yaml:"major"`
	Minor int `json:"minor" yaml:"minor"`
}

func (v EngineVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// BuildContext holds the facts known about a build at configuration time
type BuildContext struct {
	IsEditorBuild bool          `json:"isEditorBuild" yaml:"isEditorBuild"`
	HostVersion   EngineVersion `json:"hostVersion" yaml:"hostVersion"`
}

// Predicate decides whether a conditional rule applies. It must depend on
// the BuildContext only.
type Predicate func(BuildContext) bool

// ConditionalRule adds dependencies when its predicate holds
type ConditionalRule struct {
	Description              string
	Predicate                Predicate
	ExtraPublicDependencies  []string
	ExtraPrivateDependencies []string
}

// ModuleDescriptor is the static configuration of a single module.
// Construct it with NewModuleDescriptor; nothing mutates it afterwards.
type ModuleDescriptor struct {
	Name                string
	PublicDependencies  []string
	PrivateDependencies []string
	ConditionalRules    []ConditionalRule
	DefinitionPrefix    string
	VersionRequirements []EngineVersion
	PCHUsage            PCHUsageMode
	WarningsAsErrors    bool
}

// DescriptorOption customises a descriptor at construction time
type DescriptorOption func(*ModuleDescriptor)

// WithPublic sets the public dependency list
func WithPublic(deps ...string) DescriptorOption {
	return func(d *ModuleDescriptor) { d.PublicDependencies = cloneStrings(deps) }
}

// WithPrivate sets the private dependency list
func WithPrivate(deps ...string) DescriptorOption {
	return func(d *ModuleDescriptor) { d.PrivateDependencies = cloneStrings(deps) }
}

// WithRule appends a conditional rule
func WithRule(rule ConditionalRule) DescriptorOption {
	return func(d *ModuleDescriptor) {
		d.ConditionalRules = append(d.ConditionalRules, ConditionalRule{
			Description:              rule.Description,
			Predicate:                rule.Predicate,
			ExtraPublicDependencies:  cloneStrings(rule.ExtraPublicDependencies),
			ExtraPrivateDependencies: cloneStrings(rule.ExtraPrivateDependencies),
		})
	}
}

// WithVersionCheck sets the definition prefix and the versions to gate on
func WithVersionCheck(prefix string, versions ...EngineVersion) DescriptorOption {
	return func(d *ModuleDescriptor) {
		d.DefinitionPrefix = prefix
		d.VersionRequirements = append([]EngineVersion(nil), versions...)
	}
}

// WithPCHUsage sets the precompiled header mode
func WithPCHUsage(mode PCHUsageMode) DescriptorOption {
	return func(d *ModuleDescriptor) { d.PCHUsage = mode }
}

// WithWarningsAsErrors marks the module as compiling warnings as errors
func WithWarningsAsErrors(enabled bool) DescriptorOption {
	return func(d *ModuleDescriptor) { d.WarningsAsErrors = enabled }
}

// NewModuleDescriptor creates a descriptor. Input slices are copied so the
// caller cannot change the descriptor later.
func NewModuleDescriptor(name string, opts ...DescriptorOption) ModuleDescriptor {
	d := ModuleDescriptor{
		Name:     name,
		PCHUsage: PCHUsageDefault,
	}
	for _, opt := range opts {
		opt(&d)
	}
	if d.DefinitionPrefix == "" {
		d.DefinitionPrefix = DefaultDefinitionPrefix
	}
	return d
}

// ConfigurationWarning reports a non-fatal problem found while resolving
type ConfigurationWarning struct {
	Module     string `json:"module" yaml:"module"`
	Dependency string `json:"dependency" yaml:"dependency"`
	Message    string `json:"message" yaml:"message"`
}

func (w ConfigurationWarning) String() string {
	return fmt.Sprintf("%s: %s: %s", w.Module, w.Dependency, w.Message)
}

// ResolvedModuleConfig is the evaluated form of a descriptor for one build
type ResolvedModuleConfig struct {
	Name                string                 `json:"name" yaml:"name"`
	PublicDependencies  []string               `json:"publicDependencies" yaml:"publicDependencies"`
	PrivateDependencies []string               `json:"privateDependencies" yaml:"privateDependencies"`
	Definitions         map[string]string      `json:"definitions" yaml:"definitions"`
	PCHUsage            PCHUsageMode           `json:"pchUsage" yaml:"pchUsage"`
	WarningsAsErrors    bool                   `json:"warningsAsErrors" yaml:"warningsAsErrors"`
	Warnings            []ConfigurationWarning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// DefinitionList renders the definitions as NAME=VALUE, sorted by name
func (c *ResolvedModuleConfig) DefinitionList() []string {
	names := make([]string, 0, len(c.Definitions))
	for name := range c.Definitions {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, name+"="+c.Definitions[name])
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
