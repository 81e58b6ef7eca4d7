package config

import (
	"github.com/zakazane/modrules/pkg/types"
	"github.com/zakazane/modrules/pkg/validation"
)

// GetDefaultConfig returns the descriptor set of the ZakazaneUtilities
// plugin: its runtime, editor and test modules
func (m *Manager) GetDefaultConfig() *types.DescriptorSet {
	return &types.DescriptorSet{
		Version: validation.SupportedVersion,
		Plugin:  "ZakazaneUtilities",
		Modules: []types.ModuleSpec{
			{
				Name:    "ZakazaneUtilities",
				Public:  []string{"AssetRegistry", "Core", "CoreUObject", "Engine"},
				Private: []string{"Slate", "SlateCore"},
				Rules: []types.RuleSpec{
					{
						Description: "editor subsystem integrations",
						When:        types.Condition{Field: types.ContextFieldEditorBuild, Equals: types.BoolPtr(true)},
						Private:     []string{"UnrealEd", "SubobjectDataInterface", "EditorSubsystem", "MessageLog"},
					},
				},
				DefinitionPrefix: "ZAKAZANE_UTILITIES",
				VersionChecks:    []types.EngineVersion{{Major: 5, Minor: 5}},
				PCHUsage:         types.PCHUsageUseExplicitOrSharedPCHs,
				WarningsAsErrors: types.BoolPtr(true),
			},
			{
				Name:   "ZakazaneUtilitiesEditor",
				Public: []string{"Core", "AssetRegistry"},
				Private: []string{
					"CoreUObject", "Engine", "Slate", "SlateCore",
					"UnrealEd", "PropertyEditor", "ZakazaneUtilities",
				},
				PCHUsage:         types.PCHUsageUseExplicitOrSharedPCHs,
				WarningsAsErrors: types.BoolPtr(true),
			},
			{
				Name:   "ZakazaneUtilitiesTests",
				Public: []string{"Core"},
				Private: []string{
					"CoreUObject", "Engine", "Slate", "SlateCore",
					"ZakazaneUtilities", "ZakazaneTestUtilities",
				},
				PCHUsage: types.PCHUsageUseExplicitOrSharedPCHs,
			},
		},
	}
}
