package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/zakazane/modrules/pkg/config"
	modctx "github.com/zakazane/modrules/pkg/context"
	"github.com/zakazane/modrules/pkg/evaluator"
	"github.com/zakazane/modrules/pkg/logger"
	"github.com/zakazane/modrules/pkg/types"
)

func defaultDescriptors(t *testing.T) []types.ModuleDescriptor {
	t.Helper()
	manager := config.NewManager()
	descriptors, err := manager.Compile(manager.GetDefaultConfig())
	if err != nil {
		t.Fatalf("failed to compile default config: %v", err)
	}
	return descriptors
}

func TestResolveAll_DefaultPlugin(t *testing.T) {
	var buf bytes.Buffer
	e := New(Options{Parallelism: 2, Logger: logger.CreateLoggerWithOutput("debug", &buf)})

	bctx := types.BuildContext{IsEditorBuild: true, HostVersion: types.EngineVersion{Major: 5, Minor: 5}}
	report, err := e.ResolveAll(context.Background(), defaultDescriptors(t), bctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.RunID == "" {
		t.Error("expected a run ID")
	}
	if report.Err() != nil {
		t.Fatalf("expected no module failures, got %v", report.Err())
	}

	names := make([]string, 0, len(report.Results))
	for _, res := range report.Results {
		names = append(names, res.Module)
	}
	want := []string{"ZakazaneUtilities", "ZakazaneUtilitiesEditor", "ZakazaneUtilitiesTests"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("expected results in descriptor order %v, got %v", want, names)
	}

	runtime, ok := report.Lookup("ZakazaneUtilities")
	if !ok {
		t.Fatal("expected runtime module result")
	}
	if runtime.Config.Definitions["ZAKAZANE_UTILITIES_USE_5_5"] != "1" {
		t.Errorf("unexpected definitions %v", runtime.Config.Definitions)
	}

	if !strings.Contains(buf.String(), "All modules resolved") {
		t.Errorf("expected success log, got:\n%s", buf.String())
	}
}

func TestResolveAll_FailureIsolated(t *testing.T) {
	descriptors := append(defaultDescriptors(t),
		types.NewModuleDescriptor("Broken",
			types.WithVersionCheck("BROKEN", types.EngineVersion{Major: 5, Minor: 1}, types.EngineVersion{Major: 5, Minor: 1}),
		),
	)

	var buf bytes.Buffer
	e := New(Options{Logger: logger.CreateLoggerWithOutput("info", &buf)})

	report, err := e.ResolveAll(context.Background(), descriptors, types.BuildContext{HostVersion: types.EngineVersion{Major: 5, Minor: 3}})
	if err != nil {
		t.Fatalf("module failure should not be returned as a run error: %v", err)
	}

	failed := report.Failed()
	if len(failed) != 1 || failed[0].Module != "Broken" {
		t.Fatalf("expected only Broken to fail, got %+v", failed)
	}
	if failed[0].Config != nil {
		t.Error("failed module must not carry a partial config")
	}
	if !errors.Is(report.Err(), evaluator.ErrDuplicateDefinitionKey) {
		t.Errorf("expected duplicate definition error, got %v", report.Err())
	}
	for _, res := range report.Results[:3] {
		if res.Err != nil || res.Config == nil {
			t.Errorf("sibling %s should resolve, got %v", res.Module, res.Err)
		}
	}

	if !strings.Contains(buf.String(), "[Broken] Resolution failed") {
		t.Errorf("expected module error log, got:\n%s", buf.String())
	}
}

func TestResolveAll_WarningsLoggedAndCounted(t *testing.T) {
	d := types.NewModuleDescriptor("Overlap",
		types.WithPublic("Core"),
		types.WithPrivate("Core", "Slate"),
	)

	var buf bytes.Buffer
	e := New(Options{Logger: logger.CreateLoggerWithOutput("info", &buf)})

	report, err := e.ResolveAll(context.Background(), []types.ModuleDescriptor{d}, types.BuildContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Warnings()) != 1 {
		t.Fatalf("expected one warning, got %v", report.Warnings())
	}
	if !strings.Contains(buf.String(), "WARN: [Overlap]") {
		t.Errorf("expected warning log, got:\n%s", buf.String())
	}

	families, err := e.Metrics().Gatherer().Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	var got float64
	for _, mf := range families {
		if mf.GetName() != "modrules_configuration_warnings_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			got += m.GetCounter().GetValue()
		}
	}
	if got != 1 {
		t.Errorf("expected warning counter 1, got %v", got)
	}
}

func TestResolveAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New(Options{})
	report, err := e.ResolveAll(ctx, defaultDescriptors(t), types.BuildContext{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	for _, res := range report.Results {
		if !errors.Is(res.Err, context.Canceled) {
			t.Errorf("expected %s to be cancelled, got %v", res.Module, res.Err)
		}
	}
}

func TestResolveAll_PanickingPredicate(t *testing.T) {
	d := types.NewModuleDescriptor("Panics",
		types.WithRule(types.ConditionalRule{
			Predicate: func(types.BuildContext) bool { panic("boom") },
		}),
	)

	e := New(Options{})
	report, err := e.ResolveAll(context.Background(), []types.ModuleDescriptor{d, types.NewModuleDescriptor("Fine")}, types.BuildContext{})
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	res, _ := report.Lookup("Panics")
	if !errors.Is(res.Err, ErrNotResolved) || !strings.Contains(res.Err.Error(), "boom") {
		t.Errorf("expected not-resolved error mentioning the panic, got %v", res.Err)
	}
	if fine, _ := report.Lookup("Fine"); fine.Err != nil {
		t.Errorf("expected sibling to resolve, got %v", fine.Err)
	}
}

func TestMetrics_WriteTextfile(t *testing.T) {
	e := New(Options{})
	if _, err := e.ResolveAll(context.Background(), defaultDescriptors(t), types.BuildContext{HostVersion: types.EngineVersion{Major: 5, Minor: 4}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "modrules.prom")
	if err := e.Metrics().WriteTextfile(path); err != nil {
		t.Fatalf("failed to write metrics: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read metrics: %v", err)
	}
	for _, want := range []string{
		`modrules_resolutions_total{module="ZakazaneUtilities",result="success"} 1`,
		`modrules_definition_value{definition="ZAKAZANE_UTILITIES_USE_5_5",module="ZakazaneUtilities"} 0`,
		`modrules_resolve_all_duration_seconds_count 1`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("expected %q in metrics:\n%s", want, data)
		}
	}
}

func TestResolveAll_RunIDFromContext(t *testing.T) {
	e := New(Options{})

	ctx := modctx.WithRunID(context.Background(), "run-42")
	report, err := e.ResolveAll(ctx, []types.ModuleDescriptor{types.NewModuleDescriptor("Plain")}, types.BuildContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.RunID != "run-42" {
		t.Errorf("expected run ID from context, got %q", report.RunID)
	}

	other, _ := e.ResolveAll(context.Background(), nil, types.BuildContext{})
	if other.RunID == "" || other.RunID == report.RunID {
		t.Errorf("expected a fresh run ID, got %q", other.RunID)
	}
}
