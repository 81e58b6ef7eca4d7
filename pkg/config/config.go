// Package config handles descriptor file loading and management
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zakazane/modrules/pkg/rules"
	"github.com/zakazane/modrules/pkg/types"
	"github.com/zakazane/modrules/pkg/utils"
	"github.com/zakazane/modrules/pkg/validation"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the descriptor file looked up in the project root
const DefaultFileName = "modrules.config.json"

// Manager handles descriptor file operations
type Manager struct {
	validator *validation.DescriptorValidator
}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{validator: validation.NewDescriptorValidator()}
}

// LoadConfig loads and validates a descriptor set from a JSON or YAML file
func (m *Manager) LoadConfig(path string) (*types.DescriptorSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return m.ParseConfig(data)
}

// ParseConfig decodes and validates a descriptor set
func (m *Manager) ParseConfig(data []byte) (*types.DescriptorSet, error) {
	set, err := DecodeConfig(data)
	if err != nil {
		return nil, err
	}
	if err := m.ValidateConfig(set); err != nil {
		return nil, err
	}
	return set, nil
}

// DecodeConfig decodes a descriptor set without validating it
func DecodeConfig(data []byte) (*types.DescriptorSet, error) {
	var set types.DescriptorSet

	// JSON is a subset of YAML, so try the stricter format first
	if err := json.Unmarshal(data, &set); err != nil {
		set = types.DescriptorSet{}
		if yerr := yaml.Unmarshal(data, &set); yerr != nil {
			return nil, fmt.Errorf("failed to parse config as JSON or YAML: %w", yerr)
		}
	}
	return &set, nil
}

// ValidateConfig validates a descriptor set. Warnings do not fail validation.
func (m *Manager) ValidateConfig(set *types.DescriptorSet) error {
	return m.validator.ValidateSet(set).Err()
}

// Validate returns the full validation result, warnings included
func (m *Manager) Validate(set *types.DescriptorSet) *validation.ValidationResult {
	return m.validator.ValidateSet(set)
}

// SaveConfig writes a descriptor set, as YAML for .yaml/.yml paths and
// JSON otherwise
func (m *Manager) SaveConfig(path string, set *types.DescriptorSet) error {
	data, err := Marshal(set, formatForPath(path))
	if err != nil {
		return err
	}
	if err := utils.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Marshal encodes a descriptor set as "json" or "yaml"
func Marshal(set *types.DescriptorSet, format string) ([]byte, error) {
	switch format {
	case "yaml", "yml":
		data, err := yaml.Marshal(set)
		if err != nil {
			return nil, fmt.Errorf("failed to encode config as YAML: %w", err)
		}
		return data, nil
	case "json", "":
		data, err := json.MarshalIndent(set, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode config as JSON: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unsupported config format: %s", format)
	}
}

// Compile turns the enabled modules of a validated set into immutable
// descriptors, in declaration order
func (m *Manager) Compile(set *types.DescriptorSet) ([]types.ModuleDescriptor, error) {
	specs := set.EnabledModules()
	descriptors := make([]types.ModuleDescriptor, 0, len(specs))

	for _, spec := range specs {
		d, err := CompileModule(spec)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// CompileModule turns one module spec into a descriptor
func CompileModule(spec types.ModuleSpec) (types.ModuleDescriptor, error) {
	opts := []types.DescriptorOption{
		types.WithPublic(spec.Public...),
		types.WithPrivate(spec.Private...),
		types.WithVersionCheck(spec.DefinitionPrefix, spec.VersionChecks...),
		types.WithPCHUsage(spec.GetPCHUsage()),
		types.WithWarningsAsErrors(spec.GetWarningsAsErrors()),
	}

	for i, ruleSpec := range spec.Rules {
		rule, err := rules.CompileRule(ruleSpec)
		if err != nil {
			return types.ModuleDescriptor{}, fmt.Errorf("module '%s' rule %d: %w", spec.Name, i, err)
		}
		opts = append(opts, types.WithRule(rule))
	}

	return types.NewModuleDescriptor(spec.Name, opts...), nil
}

// FindConfig returns the first descriptor file found in root
func FindConfig(root string) (string, error) {
	candidates := []string{
		DefaultFileName,
		"modrules.config.yaml",
		"modrules.config.yml",
	}
	for _, name := range candidates {
		path := filepath.Join(root, name)
		if utils.FileExists(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("no descriptor file found in %s", root)
}

func formatForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}
