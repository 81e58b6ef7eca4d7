package cli

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/zakazane/modrules/internal/state"
	"github.com/zakazane/modrules/pkg/config"
	"github.com/zakazane/modrules/pkg/validation"
)

func (c *CLI) newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the descriptor file",
		Long: `Check that the descriptor file parses, that every rule condition
compiles and that every module is well formed. Warnings and notes are
printed but do not fail validation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runValidate()
		},
	}
}

func (c *CLI) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configured modules",
		Long:  `List the modules of the descriptor file, or the built-in descriptors when there is no file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runList()
		},
	}
}

func (c *CLI) newStatusCmd() *cobra.Command {
	var prune bool

	cmd := &cobra.Command{
		Use:   "status [module...]",
		Short: "Show the last resolution of every module",
		Long: `Display the recorded outcome of the last resolve run for each module,
or the full record of the named modules.

With --prune, the state of modules that are no longer in the descriptor
set is removed first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prune {
				if err := c.pruneStates(); err != nil {
					return err
				}
			}
			if len(args) > 0 {
				return c.runStatusDetail(args)
			}
			return c.runStatus()
		},
	}

	cmd.Flags().BoolVar(&prune, "prune", false, "remove the state of modules no longer in the descriptor set")

	return cmd
}

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of modrules",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.output, "modrules v%s\n", c.config.Version)
		},
	}
}

func (c *CLI) runValidate() error {
	path := c.descriptorPath()
	if path == "" {
		return fmt.Errorf("no descriptor file found in %s", c.config.ProjectRoot)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	set, err := config.DecodeConfig(data)
	if err != nil {
		return err
	}

	result := c.manager.Validate(set)
	for _, e := range result.Errors {
		var level string
		switch e.Level {
		case validation.ValidationLevelError:
			level = color.RedString("error")
		case validation.ValidationLevelWarning:
			level = color.YellowString("warning")
		default:
			level = color.CyanString("info")
		}
		fmt.Fprintf(c.output, "  %s %s.%s: %s\n", level, e.Module, e.Field, e.Message)
	}

	if err := result.Err(); err != nil {
		c.printError(fmt.Sprintf("%s is invalid", path))
		return err
	}

	c.printSuccess(fmt.Sprintf("%s is valid (%d modules, %d enabled)", path, len(set.Modules), len(set.EnabledModules())))
	return nil
}

func (c *CLI) runList() error {
	set, path, err := c.loadDescriptorSet()
	if err != nil {
		return err
	}

	source := path
	if source == "" {
		source = "built-in descriptors"
	}
	c.printInfo(fmt.Sprintf("Plugin %s (%s)", set.Plugin, source))
	fmt.Fprintln(c.output)

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tENABLED\tPUBLIC\tPRIVATE\tRULES\tVERSION CHECKS\tPCH")
	fmt.Fprintln(w, "----\t-------\t------\t-------\t-----\t--------------\t---")

	for _, m := range set.Modules {
		enabled := "yes"
		if !m.IsEnabled() {
			enabled = "no"
		}

		checks := make([]string, 0, len(m.VersionChecks))
		for _, v := range m.VersionChecks {
			checks = append(checks, v.String())
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			m.Name,
			enabled,
			strconv.Itoa(len(m.Public)),
			strconv.Itoa(len(m.Private)),
			strconv.Itoa(len(m.Rules)),
			joinOrDash(checks),
			m.GetPCHUsage(),
		)
	}

	return w.Flush()
}

func (c *CLI) runStatus() error {
	states, err := c.state.Discover()
	if err != nil {
		return fmt.Errorf("failed to discover states: %w", err)
	}
	if len(states) == 0 {
		c.printInfo("No resolutions recorded yet. Run 'modrules resolve' first.")
		return nil
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODULE\tSTATUS\tCONTEXT\tLAST RESOLVED\tRESOLVES\tFAILURES")
	fmt.Fprintln(w, "------\t------\t-------\t-------------\t--------\t--------")

	for _, st := range states {
		status := string(st.Status)
		switch st.Status {
		case state.StatusResolved:
			status = color.GreenString(status)
		case state.StatusFailed:
			status = color.RedString(status)
		}

		lastResolved := "-"
		if !st.LastResolved.IsZero() {
			lastResolved = st.LastResolved.Format("2006-01-02 15:04:05")
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			st.Module,
			status,
			state.ContextKey(st.LastContext),
			lastResolved,
			st.ResolveCount,
			st.FailureCount,
		)
	}

	return w.Flush()
}

func (c *CLI) runStatusDetail(modules []string) error {
	for i, module := range modules {
		st, err := c.state.Read(module)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("no resolution recorded for %s", module)
			}
			return fmt.Errorf("failed to read state of %s: %w", module, err)
		}
		if i > 0 {
			fmt.Fprintln(c.output)
		}

		contexts := make([]string, 0, len(st.Fingerprints))
		for key := range st.Fingerprints {
			contexts = append(contexts, key)
		}
		sort.Strings(contexts)

		lastError := st.LastError
		if lastError == "" {
			lastError = "-"
		}

		w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Module:\t%s\n", st.Module)
		fmt.Fprintf(w, "Status:\t%s\n", st.Status)
		fmt.Fprintf(w, "Last run:\t%s\n", st.LastRunID)
		fmt.Fprintf(w, "Context:\t%s\n", state.ContextKey(st.LastContext))
		fmt.Fprintf(w, "Last resolved:\t%s\n", st.LastResolved.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "Resolves:\t%d\n", st.ResolveCount)
		fmt.Fprintf(w, "Failures:\t%d\n", st.FailureCount)
		fmt.Fprintf(w, "Last error:\t%s\n", lastError)
		fmt.Fprintf(w, "Contexts seen:\t%s\n", joinOrDash(contexts))
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// pruneStates removes the state of modules the descriptor set no longer
// declares. Disabled modules keep their state.
func (c *CLI) pruneStates() error {
	set, _, err := c.loadDescriptorSet()
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(set.Modules))
	for _, m := range set.Modules {
		known[m.Name] = true
	}

	states, err := c.state.Discover()
	if err != nil {
		return fmt.Errorf("failed to discover states: %w", err)
	}
	for _, st := range states {
		if known[st.Module] {
			continue
		}
		if err := c.state.Remove(st.Module); err != nil {
			return err
		}
		c.printInfo(fmt.Sprintf("Pruned state of %s", st.Module))
	}
	return nil
}
