package analyzers_test

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/zakazane/modrules/pkg/analyzers"
	"github.com/zakazane/modrules/pkg/config"
	"github.com/zakazane/modrules/pkg/types"
)

const runtimeRules = `// Copyright ZAKAZANE Studio. All Rights Reserved.

using UnrealBuildTool;

public class ZakazaneUtilities : ModuleRules
{
	public ZakazaneUtilities(ReadOnlyTargetRules Target) : base(Target)
	{
		PCHUsage = PCHUsageMode.UseExplicitOrSharedPCHs;
		bWarningsAsErrors = true;

		PublicDependencyModuleNames.AddRange(
			new[]
			{
				"AssetRegistry",
				"Core",
				"CoreUObject",
				"Engine"
			}
		);

		PrivateDependencyModuleNames.AddRange(
			new[]
			{
				"Slate",
				"SlateCore",
			}
		);

		if (Target.bBuildEditor)
		{
			PrivateDependencyModuleNames.AddRange(new[]
			{
				"UnrealEd",
				"SubobjectDataInterface",
				"EditorSubsystem",
				"MessageLog",
			});
		}

		AddUseEngineVersionDef(5, 5);
	}

	private void AddUseEngineVersionDef(int MajorVersion, int MinorVersion)
	{
		var isGivenVersionOrOver = Target.Version.MajorVersion > MajorVersion ||
		                           (Target.Version.MajorVersion == MajorVersion &&
		                            Target.Version.MinorVersion >= MinorVersion);

		// Must remain public due to being used in header file
		PublicDefinitions.Add(string.Format("ZAKAZANE_UTILITIES_USE_{0}_{1}={2}", MajorVersion, MinorVersion,
			isGivenVersionOrOver ? 1 : 0));
	}
}`

const editorRules = `using UnrealBuildTool;

public class ZakazaneUtilitiesEditor : ModuleRules
{
	public ZakazaneUtilitiesEditor(ReadOnlyTargetRules Target) : base(Target)
	{
		PCHUsage = PCHUsageMode.UseExplicitOrSharedPCHs;
		bWarningsAsErrors = true;

		PublicDependencyModuleNames.AddRange(new[] { "Core", "AssetRegistry" });
		PrivateDependencyModuleNames.AddRange(new string[] { "CoreUObject", "Engine" });
		PrivateDependencyModuleNames.Add("ZakazaneUtilities");
		/* PrivateDependencyModuleNames.Add("Commented"); */
	}
}`

const testRules = `using UnrealBuildTool;

public class ZakazaneUtilitiesTests : ModuleRules
{
	public ZakazaneUtilitiesTests(ReadOnlyTargetRules Target) : base(Target)
	{
		PublicDependencyModuleNames.AddRange(new[] { "Core" });
		PrivateDependencyModuleNames.AddRange(new[] { "ZakazaneUtilities", "ZakazaneTestUtilities" });

		if (!Target.bBuildEditor)
		{
			PrivateDependencyModuleNames.Add("RuntimeOnly");
		}
		if (Target.bIsShipping)
		{
			PrivateDependencyModuleNames.Add("ShippingOnly");
		}
	}
}`

func TestParseBuildRules_RuntimeModule(t *testing.T) {
	spec, notes := analyzers.ParseBuildRules(runtimeRules)

	if len(notes) != 0 {
		t.Errorf("expected no notes, got %v", notes)
	}
	if spec.Name != "ZakazaneUtilities" {
		t.Errorf("expected name ZakazaneUtilities, got %s", spec.Name)
	}
	if want := []string{"AssetRegistry", "Core", "CoreUObject", "Engine"}; !reflect.DeepEqual(spec.Public, want) {
		t.Errorf("expected public %v, got %v", want, spec.Public)
	}
	if want := []string{"Slate", "SlateCore"}; !reflect.DeepEqual(spec.Private, want) {
		t.Errorf("expected private %v, got %v", want, spec.Private)
	}
	if len(spec.Rules) != 1 {
		t.Fatalf("expected one rule, got %d", len(spec.Rules))
	}
	rule := spec.Rules[0]
	if rule.When.Field != types.ContextFieldEditorBuild || !*rule.When.Equals {
		t.Errorf("unexpected condition %+v", rule.When)
	}
	if want := []string{"UnrealEd", "SubobjectDataInterface", "EditorSubsystem", "MessageLog"}; !reflect.DeepEqual(rule.Private, want) {
		t.Errorf("expected editor deps %v, got %v", want, rule.Private)
	}
	if spec.DefinitionPrefix != "ZAKAZANE_UTILITIES" {
		t.Errorf("expected prefix ZAKAZANE_UTILITIES, got %s", spec.DefinitionPrefix)
	}
	if want := []types.EngineVersion{{Major: 5, Minor: 5}}; !reflect.DeepEqual(spec.VersionChecks, want) {
		t.Errorf("expected version checks %v, got %v", want, spec.VersionChecks)
	}
	if spec.PCHUsage != types.PCHUsageUseExplicitOrSharedPCHs || !spec.GetWarningsAsErrors() {
		t.Errorf("unexpected settings %+v", spec)
	}
}

func TestParseBuildRules_AddAndComments(t *testing.T) {
	spec, _ := analyzers.ParseBuildRules(editorRules)

	if want := []string{"Core", "AssetRegistry"}; !reflect.DeepEqual(spec.Public, want) {
		t.Errorf("expected public %v, got %v", want, spec.Public)
	}
	if want := []string{"CoreUObject", "Engine", "ZakazaneUtilities"}; !reflect.DeepEqual(spec.Private, want) {
		t.Errorf("expected private %v, got %v", want, spec.Private)
	}
}

func TestParseBuildRules_ConditionsAndNotes(t *testing.T) {
	spec, notes := analyzers.ParseBuildRules(testRules)

	if len(spec.Rules) != 1 || *spec.Rules[0].When.Equals {
		t.Fatalf("expected one non-editor rule, got %+v", spec.Rules)
	}
	if want := []string{"RuntimeOnly"}; !reflect.DeepEqual(spec.Rules[0].Private, want) {
		t.Errorf("expected %v, got %v", want, spec.Rules[0].Private)
	}
	for _, dep := range spec.Private {
		if dep == "ShippingOnly" || dep == "RuntimeOnly" {
			t.Errorf("conditional dependency %s leaked into the base list", dep)
		}
	}
	if len(notes) != 1 || !strings.Contains(notes[0], "bIsShipping") {
		t.Errorf("expected a note about bIsShipping, got %v", notes)
	}
	if spec.PCHUsage != "" || spec.WarningsAsErrors != nil {
		t.Errorf("expected unset settings, got %+v", spec)
	}
}

func TestParseBuildRules_ConditionForms(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantPrivate []string
		wantRules   map[bool][]string
		wantNote    string
	}{
		{
			name: "target type comparison",
			body: `if (Target.Type == TargetType.Editor)
		{
			PrivateDependencyModuleNames.Add("UnrealEd");
		}`,
			wantRules: map[bool][]string{true: {"UnrealEd"}},
		},
		{
			name: "explicit flag comparison",
			body: `if (Target.bBuildEditor == true)
		{
			PrivateDependencyModuleNames.AddRange(new[] { "MessageLog" });
		}`,
			wantRules: map[bool][]string{true: {"MessageLog"}},
		},
		{
			name:      "negated flag comparison",
			body:      `if (Target.bBuildEditor != true) { PrivateDependencyModuleNames.Add("RuntimeOnly"); }`,
			wantRules: map[bool][]string{false: {"RuntimeOnly"}},
		},
		{
			name:      "reversed type comparison without braces",
			body:      `if (TargetType.Editor != Target.Type) PrivateDependencyModuleNames.Add("RuntimeOnly");`,
			wantRules: map[bool][]string{false: {"RuntimeOnly"}},
		},
		{
			name:      "parenthesised negation",
			body:      `if (!(Target.bBuildEditor)) { PrivateDependencyModuleNames.Add("RuntimeOnly"); }`,
			wantRules: map[bool][]string{false: {"RuntimeOnly"}},
		},
		{
			name: "else branch",
			body: `if (Target.bBuildEditor)
		{
			PrivateDependencyModuleNames.Add("UnrealEd");
		}
		else
		{
			PrivateDependencyModuleNames.Add("RuntimeOnly");
		}`,
			wantRules: map[bool][]string{true: {"UnrealEd"}, false: {"RuntimeOnly"}},
		},
		{
			name: "compound condition",
			body: `if (Target.bBuildEditor && Target.Platform == UnrealTargetPlatform.Win64)
		{
			PrivateDependencyModuleNames.Add("WindowsEditorOnly");
		}`,
			wantRules: map[bool][]string{},
			wantNote:  "unsupported condition",
		},
		{
			name: "nested condition",
			body: `if (Target.bBuildEditor)
		{
			PrivateDependencyModuleNames.Add("UnrealEd");
			if (Target.bIsShipping) { PrivateDependencyModuleNames.Add("ShippingOnly"); }
		}`,
			wantRules: map[bool][]string{true: {"UnrealEd"}},
			wantNote:  "nested",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := `public class Sample : ModuleRules
{
	public Sample(ReadOnlyTargetRules Target) : base(Target)
	{
		PrivateDependencyModuleNames.Add("Slate");
		` + tt.body + `
	}
}`
			spec, notes := analyzers.ParseBuildRules(src)

			if want := []string{"Slate"}; !reflect.DeepEqual(spec.Private, want) {
				t.Errorf("expected base private %v, got %v", want, spec.Private)
			}

			got := map[bool][]string{}
			for _, rule := range spec.Rules {
				if rule.When.Field != types.ContextFieldEditorBuild || rule.When.Equals == nil {
					t.Fatalf("unexpected condition %+v", rule.When)
				}
				got[*rule.When.Equals] = append(got[*rule.When.Equals], rule.Private...)
			}
			if !reflect.DeepEqual(got, tt.wantRules) {
				t.Errorf("expected rules %v, got %v", tt.wantRules, got)
			}

			if tt.wantNote == "" {
				if len(notes) != 0 {
					t.Errorf("expected no notes, got %v", notes)
				}
				return
			}
			if len(notes) != 1 || !strings.Contains(notes[0], tt.wantNote) {
				t.Errorf("expected a note containing %q, got %v", tt.wantNote, notes)
			}
		})
	}
}

func TestBuildRulesAnalyzer_AnalyzeProject(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"Source/ZakazaneUtilities/ZakazaneUtilities.Build.cs":             runtimeRules,
		"Source/ZakazaneUtilitiesEditor/ZakazaneUtilitiesEditor.Build.cs": editorRules,
		"Source/ZakazaneUtilitiesTests/ZakazaneUtilitiesTests.Build.cs":   testRules,
		"Intermediate/Stale/Stale.Build.cs":                               runtimeRules,
		"ZakazaneUtilities.uplugin":                                       "{}",
	}
	for rel, content := range files {
		path := filepath.Join(root, rel)
		os.MkdirAll(filepath.Dir(path), 0755)
		os.WriteFile(path, []byte(content), 0644)
	}

	analyzer := analyzers.NewBuildRulesAnalyzer(root)
	set, notes, err := analyzer.GetRecommendedConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if set.Plugin != "ZakazaneUtilities" {
		t.Errorf("expected plugin name from .uplugin, got %s", set.Plugin)
	}
	if len(set.Modules) != 3 {
		t.Fatalf("expected 3 modules, got %d", len(set.Modules))
	}
	if set.Modules[0].Name != "ZakazaneUtilities" || set.Modules[2].Name != "ZakazaneUtilitiesTests" {
		t.Errorf("expected modules in path order, got %s..%s", set.Modules[0].Name, set.Modules[2].Name)
	}
	if len(notes) != 1 || !strings.HasPrefix(notes[0], "ZakazaneUtilitiesTests.Build.cs") {
		t.Errorf("expected note tagged with file name, got %v", notes)
	}

	if err := config.NewManager().ValidateConfig(set); err != nil {
		t.Errorf("imported set should validate: %v", err)
	}
}

func TestBuildRulesAnalyzer_NoFiles(t *testing.T) {
	if _, err := analyzers.NewBuildRulesAnalyzer(t.TempDir()).AnalyzeProject(); err == nil {
		t.Error("expected error for directory without rule files")
	}
}
