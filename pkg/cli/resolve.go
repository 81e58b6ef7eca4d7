package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/zakazane/modrules/internal/engine"
	"github.com/zakazane/modrules/internal/state"
	"github.com/zakazane/modrules/pkg/config"
	modctx "github.com/zakazane/modrules/pkg/context"
	"github.com/zakazane/modrules/pkg/logger"
	"github.com/zakazane/modrules/pkg/types"
	"github.com/zakazane/modrules/pkg/utils"
	"github.com/zakazane/modrules/pkg/versiongate"
	"gopkg.in/yaml.v3"
)

// DefaultEngineVersion is the host engine version assumed when none is given
const DefaultEngineVersion = "5.5"

type resolveOptions struct {
	format      string
	metricsFile string
	parallelism int
	watch       bool
	noState     bool
}

func (c *CLI) newResolveCmd() *cobra.Command {
	var opts resolveOptions

	cmd := &cobra.Command{
		Use:   "resolve [module|pattern...]",
		Short: "Resolve module descriptors for a build context",
		Long: `Evaluate every enabled module (or only those matching the given names
or glob patterns, e.g. 'Zakazane*') for the given build context and print dependency lists and compile definitions.

The build context can also be set with MODRULES_EDITOR and
MODRULES_ENGINE_VERSION.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runResolve(cmd.Context(), args, opts)
		},
	}

	cmd.Flags().Bool("editor", false, "resolve for an editor build")
	cmd.Flags().String("engine-version", DefaultEngineVersion, "host engine version (e.g. 5.4, 5.5.1)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "output format (text, json, yaml)")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file")
	cmd.Flags().IntVar(&opts.parallelism, "parallelism", 0, "maximum modules resolved at once (0 = unlimited)")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "re-resolve whenever the descriptor file changes")
	cmd.Flags().BoolVar(&opts.noState, "no-state", false, "do not record the outcome under .modrules/state")

	return cmd
}

func (c *CLI) buildContext() (types.BuildContext, error) {
	raw := c.viper.GetString("engine-version")
	if raw == "" {
		raw = DefaultEngineVersion
	}
	host, err := versiongate.ParseEngineVersion(raw)
	if err != nil {
		return types.BuildContext{}, fmt.Errorf("invalid engine version: %w", err)
	}
	return types.BuildContext{
		IsEditorBuild: c.viper.GetBool("editor"),
		HostVersion:   host,
	}, nil
}

func (c *CLI) runResolve(ctx context.Context, modules []string, opts resolveOptions) error {
	if err := checkFormat(opts.format); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	bctx, err := c.buildContext()
	if err != nil {
		return err
	}

	set, path, err := c.loadDescriptorSet()
	if err != nil {
		return err
	}

	eng := engine.New(engine.Options{
		Parallelism: opts.parallelism,
		Logger:      c.logger,
	})

	if !opts.watch {
		return c.resolveOnce(modctx.WithOperation(ctx, "resolve"), eng, set, modules, bctx, opts)
	}

	if path == "" {
		return fmt.Errorf("--watch needs a descriptor file; run 'modrules init' first")
	}
	return c.watchAndResolve(ctx, eng, path, set, modules, bctx, opts)
}

func (c *CLI) resolveOnce(ctx context.Context, eng *engine.Engine, set *types.DescriptorSet, modules []string, bctx types.BuildContext, opts resolveOptions) error {
	descriptors, err := c.manager.Compile(set)
	if err != nil {
		return fmt.Errorf("failed to compile descriptors: %w", err)
	}
	descriptors, err = selectModules(descriptors, modules)
	if err != nil {
		return err
	}

	report, err := eng.ResolveAll(modctx.WithRunID(ctx, ""), descriptors, bctx)
	if err != nil {
		return fmt.Errorf("resolution interrupted: %w", err)
	}

	if err := renderReport(c.output, report, opts.format); err != nil {
		return err
	}

	if !opts.noState {
		c.recordState(report)
	}

	if opts.metricsFile != "" {
		if err := eng.Metrics().WriteTextfile(opts.metricsFile); err != nil {
			return err
		}
		c.logger.Debug("Wrote metrics", logger.WithField("file", opts.metricsFile))
	}

	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d modules failed: %w", len(failed), len(report.Results), report.Err())
	}
	return nil
}

func (c *CLI) watchAndResolve(ctx context.Context, eng *engine.Engine, path string, set *types.DescriptorSet, modules []string, bctx types.BuildContext, opts resolveOptions) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = modctx.WithSessionID(ctx, "")

	if err := c.resolveOnce(modctx.WithOperation(ctx, "resolve"), eng, set, modules, bctx, opts); err != nil {
		c.printError(err.Error())
	}

	reload := config.NewReloadManager(path, c.logger)
	reload.AddCallback(func(updated *types.DescriptorSet, err error) {
		if err != nil {
			c.printError(fmt.Sprintf("Descriptor reload failed: %v", err))
			return
		}
		c.printInfo(fmt.Sprintf("%s changed, resolving again", path))
		if err := c.resolveOnce(modctx.WithOperation(ctx, "reload"), eng, updated, modules, bctx, opts); err != nil {
			c.printError(err.Error())
		}
	})

	if err := reload.StartWatching(ctx); err != nil {
		return err
	}
	defer reload.StopWatching()

	c.printInfo(fmt.Sprintf("Watching %s (Ctrl+C to stop)", path))
	<-ctx.Done()
	return nil
}

// recordState stores the report under the project root and logs the
// modules whose configuration changed since their last run
func (c *CLI) recordState(report *engine.Report) {
	changes, err := c.state.Record(report)
	if err != nil {
		c.logger.Warn("Failed to record resolution state", logger.WithField("error", err))
		return
	}
	for _, change := range changes {
		if change.Kind == state.ChangeChanged {
			c.logger.WithModule(change.Module).Info("Configuration changed since last run",
				logger.WithField("context", state.ContextKey(report.Context)))
		}
	}
}

// selectModules keeps the modules matching any name or glob pattern, in
// descriptor order. No patterns selects everything.
func selectModules(descriptors []types.ModuleDescriptor, patterns []string) ([]types.ModuleDescriptor, error) {
	if len(patterns) == 0 {
		return descriptors, nil
	}

	matcher, err := utils.NewNameMatcher(patterns)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		names = append(names, d.Name)
	}
	_, unused := matcher.Select(names)
	if len(unused) > 0 {
		return nil, fmt.Errorf("unknown module(s): %s", strings.Join(unused, ", "))
	}

	var out []types.ModuleDescriptor
	for _, d := range descriptors {
		if matcher.Match(d.Name) {
			out = append(out, d)
		}
	}
	return out, nil
}

func checkFormat(format string) error {
	switch format {
	case "text", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unsupported format %q (text, json, yaml)", format)
	}
}

type moduleOutput struct {
	Module string                      `json:"module" yaml:"module"`
	Config *types.ResolvedModuleConfig `json:"config,omitempty" yaml:"config,omitempty"`
	Error  string                      `json:"error,omitempty" yaml:"error,omitempty"`
}

type reportOutput struct {
	RunID   string             `json:"runId" yaml:"runId"`
	Context types.BuildContext `json:"context" yaml:"context"`
	Modules []moduleOutput     `json:"modules" yaml:"modules"`
}

func newReportOutput(report *engine.Report) reportOutput {
	out := reportOutput{
		RunID:   report.RunID,
		Context: report.Context,
		Modules: make([]moduleOutput, 0, len(report.Results)),
	}
	for _, res := range report.Results {
		m := moduleOutput{Module: res.Module, Config: res.Config}
		if res.Err != nil {
			m.Error = res.Err.Error()
		}
		out.Modules = append(out.Modules, m)
	}
	return out
}

func renderReport(w io.Writer, report *engine.Report, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(newReportOutput(report), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	case "yaml":
		data, err := yaml.Marshal(newReportOutput(report))
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return renderText(w, report)
	}
}

func renderText(w io.Writer, report *engine.Report) error {
	kind := "runtime"
	if report.Context.IsEditorBuild {
		kind = "editor"
	}
	fmt.Fprintf(w, "Build: %s, engine %s\n\n", kind, report.Context.HostVersion)

	bold := color.New(color.Bold)
	for _, res := range report.Results {
		if res.Err != nil {
			fmt.Fprintf(w, "%s %s\n", bold.Sprint(res.Module), color.RedString("FAILED"))
			fmt.Fprintf(w, "  %s\n\n", res.Err)
			continue
		}

		cfg := res.Config
		fmt.Fprintln(w, bold.Sprint(res.Module))

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "  public\t%s\n", joinOrDash(cfg.PublicDependencies))
		fmt.Fprintf(tw, "  private\t%s\n", joinOrDash(cfg.PrivateDependencies))
		fmt.Fprintf(tw, "  definitions\t%s\n", joinOrDash(cfg.DefinitionList()))
		fmt.Fprintf(tw, "  pch\t%s\n", cfg.PCHUsage)
		fmt.Fprintf(tw, "  warnings as errors\t%t\n", cfg.WarningsAsErrors)
		if err := tw.Flush(); err != nil {
			return err
		}

		for _, warning := range cfg.Warnings {
			fmt.Fprintf(w, "  %s %s: %s\n", color.YellowString("warning"), warning.Dependency, warning.Message)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
