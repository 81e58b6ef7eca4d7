package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zakazane/modrules/pkg/analyzers"
	"github.com/zakazane/modrules/pkg/logger"
	"github.com/zakazane/modrules/pkg/types"
)

func (c *CLI) newInitCmd() *cobra.Command {
	var fromSource string
	var format string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a descriptor file",
		Long: `Create a descriptor file in the project root. By default it holds the
built-in plugin descriptors; with --from-source it is imported from the
*.Build.cs module rule files found under the given directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInit(fromSource, strings.ToLower(format), force)
		},
	}

	cmd.Flags().StringVar(&fromSource, "from-source", "", "import descriptors from *.Build.cs files under this directory")
	cmd.Flags().StringVar(&format, "format", "json", "file format (json, yaml)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing descriptor file")

	return cmd
}

func (c *CLI) runInit(fromSource, format string, force bool) error {
	if format != "json" && format != "yaml" {
		return fmt.Errorf("unsupported format %q (json, yaml)", format)
	}

	configPath := c.defaultConfigPath(format)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration already exists at %s. Use --force to overwrite", configPath)
	}

	var set *types.DescriptorSet
	if fromSource != "" {
		imported, notes, err := analyzers.NewBuildRulesAnalyzer(fromSource).GetRecommendedConfig()
		if err != nil {
			return fmt.Errorf("failed to import module rules: %w", err)
		}
		for _, note := range notes {
			c.printWarning(note)
		}
		c.logger.Debug("Imported module rules",
			logger.WithField("source", fromSource),
			logger.WithField("modules", len(imported.Modules)))
		set = imported
	} else {
		set = c.manager.GetDefaultConfig()
	}

	if err := c.manager.ValidateConfig(set); err != nil {
		return fmt.Errorf("generated configuration is invalid: %w", err)
	}

	if err := c.manager.SaveConfig(configPath, set); err != nil {
		return err
	}

	c.printSuccess(fmt.Sprintf("Created configuration at %s (%d modules)", configPath, len(set.Modules)))
	return nil
}
