package validation_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/zakazane/modrules/pkg/rules"
	"github.com/zakazane/modrules/pkg/types"
	"github.com/zakazane/modrules/pkg/validation"
	"github.com/zakazane/modrules/pkg/versiongate"
)

func validModule() types.ModuleSpec {
	return types.ModuleSpec{
		Name:    "ZakazaneUtilities",
		Public:  []string{"Core", "Engine"},
		Private: []string{"Slate"},
		Rules: []types.RuleSpec{{
			When:    types.Condition{Field: types.ContextFieldEditorBuild, Equals: types.BoolPtr(true)},
			Private: []string{"UnrealEd"},
		}},
		DefinitionPrefix: "ZAKAZANE_UTILITIES",
		VersionChecks:    []types.EngineVersion{{Major: 5, Minor: 5}},
	}
}

func TestDescriptorValidator_ValidateModule(t *testing.T) {
	validator := validation.NewDescriptorValidator()

	tests := []struct {
		name          string
		mutate        func(m *types.ModuleSpec)
		expectInvalid bool
		expectIssue   bool
		field         string
	}{
		{
			name:   "valid module",
			mutate: func(m *types.ModuleSpec) {},
		},
		{
			name:          "missing name",
			mutate:        func(m *types.ModuleSpec) { m.Name = "" },
			expectInvalid: true,
			expectIssue:   true,
			field:         "name",
		},
		{
			name:          "name with spaces",
			mutate:        func(m *types.ModuleSpec) { m.Name = "Zakazane Utilities" },
			expectInvalid: true,
			expectIssue:   true,
			field:         "name",
		},
		{
			name:          "name with path separators",
			mutate:        func(m *types.ModuleSpec) { m.Name = "../Outside" },
			expectInvalid: true,
			expectIssue:   true,
			field:         "name",
		},
		{
			name:          "name starting with a digit",
			mutate:        func(m *types.ModuleSpec) { m.Name = "5Utilities" },
			expectInvalid: true,
			expectIssue:   true,
			field:         "name",
		},
		{
			name:          "empty dependency",
			mutate:        func(m *types.ModuleSpec) { m.Public = append(m.Public, " ") },
			expectInvalid: true,
			expectIssue:   true,
			field:         "public",
		},
		{
			name:          "self dependency",
			mutate:        func(m *types.ModuleSpec) { m.Private = append(m.Private, m.Name) },
			expectInvalid: true,
			expectIssue:   true,
			field:         "private",
		},
		{
			name:          "unknown predicate context",
			mutate:        func(m *types.ModuleSpec) { m.Rules[0].When.Field = "platform" },
			expectInvalid: true,
			expectIssue:   true,
			field:         "rules[0].when",
		},
		{
			name:        "rule without dependencies",
			mutate:      func(m *types.ModuleSpec) { m.Rules[0].Private = nil },
			expectIssue: true,
			field:       "rules[0]",
		},
		{
			name:        "public and private overlap",
			mutate:      func(m *types.ModuleSpec) { m.Private = append(m.Private, "Core") },
			expectIssue: true,
			field:       "private",
		},
		{
			name:          "negative version check",
			mutate:        func(m *types.ModuleSpec) { m.VersionChecks = []types.EngineVersion{{Major: -1, Minor: 0}} },
			expectInvalid: true,
			expectIssue:   true,
			field:         "versionChecks",
		},
		{
			name: "duplicate version check",
			mutate: func(m *types.ModuleSpec) {
				m.VersionChecks = append(m.VersionChecks, types.EngineVersion{Major: 5, Minor: 5})
			},
			expectInvalid: true,
			expectIssue:   true,
			field:         "versionChecks",
		},
		{
			name:          "lowercase prefix",
			mutate:        func(m *types.ModuleSpec) { m.DefinitionPrefix = "zakazane" },
			expectInvalid: true,
			expectIssue:   true,
			field:         "definitionPrefix",
		},
		{
			name:          "unknown pch mode",
			mutate:        func(m *types.ModuleSpec) { m.PCHUsage = "Sometimes" },
			expectInvalid: true,
			expectIssue:   true,
			field:         "pchUsage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validModule()
			tt.mutate(&m)

			result := validator.ValidateModule(&m)

			if result.Valid == tt.expectInvalid {
				t.Errorf("expected valid=%v, got %v (%v)", !tt.expectInvalid, result.Valid, result.Errors)
			}
			if tt.expectIssue != (len(result.Errors) > 0) {
				t.Fatalf("expected issues=%v, got %v", tt.expectIssue, result.Errors)
			}
			if !tt.expectIssue {
				return
			}
			found := false
			for _, e := range result.Errors {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected an issue on field %s, got %v", tt.field, result.Errors)
			}
		})
	}
}

func TestDescriptorValidator_ValidateSet(t *testing.T) {
	validator := validation.NewDescriptorValidator()

	t.Run("valid set", func(t *testing.T) {
		set := &types.DescriptorSet{Version: "1.0", Plugin: "ZakazaneUtilities", Modules: []types.ModuleSpec{validModule()}}
		result := validator.ValidateSet(set)
		if !result.Valid || result.Err() != nil {
			t.Fatalf("expected valid set, got %v", result.Errors)
		}
	})

	t.Run("bad version and no modules", func(t *testing.T) {
		result := validator.ValidateSet(&types.DescriptorSet{Version: "2.0"})
		if result.Valid {
			t.Fatal("expected invalid set")
		}
		if len(result.Filter(validation.ValidationLevelError)) != 2 {
			t.Errorf("expected 2 errors, got %v", result.Errors)
		}
		if len(result.Filter(validation.ValidationLevelWarning)) != 1 {
			t.Errorf("expected a warning for the missing plugin name, got %v", result.Errors)
		}
	})

	t.Run("duplicate module names", func(t *testing.T) {
		set := &types.DescriptorSet{Version: "1.0", Plugin: "P", Modules: []types.ModuleSpec{validModule(), validModule()}}
		result := validator.ValidateSet(set)
		if result.Valid {
			t.Fatal("expected duplicate names to be rejected")
		}
		if !strings.Contains(result.Err().Error(), "duplicate module name") {
			t.Errorf("unexpected error: %v", result.Err())
		}
	})

	t.Run("dependency on disabled module", func(t *testing.T) {
		disabled := types.ModuleSpec{Name: "ZakazaneTestUtilities", Public: []string{"Core"}, Enabled: types.BoolPtr(false)}
		tests := types.ModuleSpec{Name: "ZakazaneUtilitiesTests", Private: []string{"ZakazaneTestUtilities"}}
		set := &types.DescriptorSet{Version: "1.0", Plugin: "P", Modules: []types.ModuleSpec{disabled, tests}}

		result := validator.ValidateSet(set)
		if !result.Valid {
			t.Fatalf("expected set to stay valid, got %v", result.Errors)
		}
		if len(result.Filter(validation.ValidationLevelInfo)) != 1 {
			t.Errorf("expected an info entry, got %v", result.Errors)
		}
	})
}

func TestValidationError_Unwrap(t *testing.T) {
	validator := validation.NewDescriptorValidator()

	m := validModule()
	m.Rules[0].When = types.Condition{Field: "targetPlatform", Equals: types.BoolPtr(true)}
	m.VersionChecks = []types.EngineVersion{{Major: 5, Minor: -1}}
	set := &types.DescriptorSet{Version: "1.0", Plugin: "P", Modules: []types.ModuleSpec{m}}

	err := validator.ValidateSet(set).Err()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !validation.IsUnknownPredicateContext(err) {
		t.Errorf("expected unknown predicate context, got %v", err)
	}
	if !errors.Is(err, rules.ErrUnknownPredicateContext) || !errors.Is(err, versiongate.ErrNegativeVersion) {
		t.Errorf("expected both causes to be reachable, got %v", err)
	}

	var verr *validation.Error
	if !errors.As(err, &verr) || len(verr.Problems) != 2 {
		t.Errorf("expected 2 problems, got %v", err)
	}
}
