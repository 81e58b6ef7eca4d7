// Package validation provides descriptor validation functionality
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/zakazane/modrules/pkg/rules"
	"github.com/zakazane/modrules/pkg/types"
	"github.com/zakazane/modrules/pkg/versiongate"
)

// SupportedVersion is the descriptor file format version
const SupportedVersion = "1.0"

var (
	definitionPrefixPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)
	moduleNamePattern       = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// IsModuleName reports whether name is a valid module identifier
func IsModuleName(name string) bool {
	return moduleNamePattern.MatchString(name)
}

var validPCHUsage = map[types.PCHUsageMode]bool{
	types.PCHUsageDefault:                 true,
	types.PCHUsageNoPCHs:                  true,
	types.PCHUsageNoSharedPCHs:            true,
	types.PCHUsageUseSharedPCHs:           true,
	types.PCHUsageUseExplicitOrSharedPCHs: true,
}

// DescriptorValidator validates descriptor sets before any module is resolved
type DescriptorValidator struct{}

// NewDescriptorValidator creates a new descriptor validator
func NewDescriptorValidator() *DescriptorValidator {
	return &DescriptorValidator{}
}

// ValidationError represents a validation error
type ValidationError struct {
	Module  string
	Field   string
	Message string
	Level   ValidationLevel
	Cause   error
}

// ValidationLevel represents error severity
type ValidationLevel string

const (
	ValidationLevelError   ValidationLevel = "error"
	ValidationLevelWarning ValidationLevel = "warning"
	ValidationLevelInfo    ValidationLevel = "info"
)

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s.%s: %s", e.Level, e.Module, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// ValidationResult contains validation results
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// AddError adds an error to the validation result
func (r *ValidationResult) AddError(module, field, message string, level ValidationLevel) {
	r.add(ValidationError{Module: module, Field: field, Message: message, Level: level})
}

func (r *ValidationResult) add(e ValidationError) {
	r.Errors = append(r.Errors, e)
	if e.Level == ValidationLevelError {
		r.Valid = false
	}
}

// Filter returns the entries at the given level
func (r *ValidationResult) Filter(level ValidationLevel) []ValidationError {
	var out []ValidationError
	for _, e := range r.Errors {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// Err returns nil for a valid result, otherwise an *Error holding every
// error-level entry
func (r *ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return &Error{Problems: r.Filter(ValidationLevelError)}
}

// Error is returned when a descriptor set fails validation
type Error struct {
	Problems []ValidationError
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for i := range e.Problems {
		msgs = append(msgs, e.Problems[i].Error())
	}
	return fmt.Sprintf("descriptor validation failed: %s", strings.Join(msgs, "; "))
}

// Unwrap exposes the individual problems to errors.Is and errors.As
func (e *Error) Unwrap() []error {
	out := make([]error, 0, len(e.Problems))
	for i := range e.Problems {
		out = append(out, &e.Problems[i])
	}
	return out
}

// ValidateSet validates a whole descriptor set
func (v *DescriptorValidator) ValidateSet(set *types.DescriptorSet) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if set.Version != SupportedVersion {
		result.AddError("config", "version", fmt.Sprintf("unsupported descriptor version: %q", set.Version), ValidationLevelError)
	}
	if set.Plugin == "" {
		result.AddError("config", "plugin", "plugin name is not set", ValidationLevelWarning)
	}
	if len(set.Modules) == 0 {
		result.AddError("config", "modules", "no modules defined", ValidationLevelError)
		return result
	}

	names := make(map[string]bool)
	enabled := make(map[string]bool)
	for _, m := range set.Modules {
		if m.Name != "" && names[m.Name] {
			result.AddError(m.Name, "name", "duplicate module name", ValidationLevelError)
		}
		names[m.Name] = true
		enabled[m.Name] = m.IsEnabled()
	}

	for i := range set.Modules {
		m := &set.Modules[i]
		moduleResult := v.ValidateModule(m)
		result.Errors = append(result.Errors, moduleResult.Errors...)
		if !moduleResult.Valid {
			result.Valid = false
		}

		if !m.IsEnabled() {
			continue
		}
		for _, dep := range allDependencies(m) {
			if names[dep] && !enabled[dep] {
				result.AddError(m.Name, "dependencies", fmt.Sprintf("depends on disabled module %s", dep), ValidationLevelInfo)
			}
		}
	}

	return result
}

// ValidateModule validates a single module
func (v *DescriptorValidator) ValidateModule(m *types.ModuleSpec) *ValidationResult {
	result := &ValidationResult{Valid: true}

	v.validateName(m, result)
	v.validateDependencies(m, result)
	v.validateRules(m, result)
	v.validateVersionChecks(m, result)
	v.validateSettings(m, result)

	return result
}

func (v *DescriptorValidator) validateName(m *types.ModuleSpec, result *ValidationResult) {
	if m.Name == "" {
		result.AddError("", "name", "module name is required", ValidationLevelError)
		return
	}
	if !IsModuleName(m.Name) {
		result.AddError(m.Name, "name", fmt.Sprintf("invalid module name %q: use letters, digits and underscores", m.Name), ValidationLevelError)
	}
}

func (v *DescriptorValidator) validateDependencies(m *types.ModuleSpec, result *ValidationResult) {
	check := func(field string, deps []string) {
		for _, dep := range deps {
			switch {
			case strings.TrimSpace(dep) == "":
				result.AddError(m.Name, field, "empty dependency name", ValidationLevelError)
			case strings.ContainsAny(dep, " \t"):
				result.AddError(m.Name, field, fmt.Sprintf("dependency name cannot contain spaces: %q", dep), ValidationLevelError)
			case dep == m.Name:
				result.AddError(m.Name, field, "module cannot depend on itself", ValidationLevelError)
			}
		}
	}

	check("public", m.Public)
	check("private", m.Private)
	for i, rule := range m.Rules {
		check(fmt.Sprintf("rules[%d].public", i), rule.Public)
		check(fmt.Sprintf("rules[%d].private", i), rule.Private)
	}

	public := make(map[string]bool, len(m.Public))
	for _, dep := range m.Public {
		public[dep] = true
	}
	for _, dep := range m.Private {
		if public[dep] {
			result.AddError(m.Name, "private", fmt.Sprintf("%s is also public and will be dropped from private", dep), ValidationLevelWarning)
		}
	}
}

func (v *DescriptorValidator) validateRules(m *types.ModuleSpec, result *ValidationResult) {
	for i, rule := range m.Rules {
		field := fmt.Sprintf("rules[%d]", i)
		if _, err := rules.Compile(rule.When); err != nil {
			result.add(ValidationError{
				Module:  m.Name,
				Field:   field + ".when",
				Message: err.Error(),
				Level:   ValidationLevelError,
				Cause:   err,
			})
		}
		if len(rule.Public) == 0 && len(rule.Private) == 0 {
			result.AddError(m.Name, field, "rule adds no dependencies", ValidationLevelWarning)
		}
	}
}

func (v *DescriptorValidator) validateVersionChecks(m *types.ModuleSpec, result *ValidationResult) {
	seen := make(map[types.EngineVersion]bool)
	for _, check := range m.VersionChecks {
		if err := versiongate.Validate(check); err != nil {
			result.add(ValidationError{
				Module:  m.Name,
				Field:   "versionChecks",
				Message: err.Error(),
				Level:   ValidationLevelError,
				Cause:   err,
			})
			continue
		}
		if seen[check] {
			result.AddError(m.Name, "versionChecks", fmt.Sprintf("duplicate version check %s", check), ValidationLevelError)
		}
		seen[check] = true
	}

	if m.DefinitionPrefix != "" && !definitionPrefixPattern.MatchString(m.DefinitionPrefix) {
		result.AddError(m.Name, "definitionPrefix", fmt.Sprintf("invalid definition prefix %q", m.DefinitionPrefix), ValidationLevelError)
	}
	if len(m.VersionChecks) == 0 && m.DefinitionPrefix != "" {
		result.AddError(m.Name, "definitionPrefix", "definition prefix set without version checks", ValidationLevelInfo)
	}
}

func (v *DescriptorValidator) validateSettings(m *types.ModuleSpec, result *ValidationResult) {
	if !validPCHUsage[m.GetPCHUsage()] {
		result.AddError(m.Name, "pchUsage", fmt.Sprintf("unknown PCH usage mode %q", m.PCHUsage), ValidationLevelError)
	}
}

// IsUnknownPredicateContext reports whether err came from a rule
// condition that references an unsupported context field
func IsUnknownPredicateContext(err error) bool {
	return errors.Is(err, rules.ErrUnknownPredicateContext)
}

func allDependencies(m *types.ModuleSpec) []string {
	deps := append([]string(nil), m.Public...)
	deps = append(deps, m.Private...)
	for _, rule := range m.Rules {
		deps = append(deps, rule.Public...)
		deps = append(deps, rule.Private...)
	}
	return deps
}
