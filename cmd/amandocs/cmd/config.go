package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amandocs/configs"
	"github.com/Aman-CERP/amandocs/internal/config"
	"github.com/Aman-CERP/amandocs/internal/output"
)

// projectConfigName is the file written by 'config init'.
const projectConfigName = ".amandocs.yaml"

func newConfigCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage amandocs configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/amandocs/config.yaml)
  3. Project config (.amandocs.yaml, .amandocs.yml or .amandocs.toml)
  4. Project .env file
  5. Environment variables (AMANDOCS_*)`,
		Example: `  # Write the defaults to .amandocs.yaml
  amandocs config init

  # Show the effective configuration
  amandocs config show --json`,
	}

	cmd.AddCommand(newConfigInitCmd(g))
	cmd.AddCommand(newConfigShowCmd(g))
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd(g *globalOptions) *cobra.Command {
	var force, user bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the defaults",
		Long: `Write a commented .amandocs.yaml with the defaults to the project
directory, or the defaults to the user config file with --user.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())

			path := config.GetUserConfigPath()
			if !user {
				root, err := filepath.Abs(g.dir)
				if err != nil {
					return fmt.Errorf("failed to resolve %s: %w", g.dir, err)
				}
				path = filepath.Join(root, projectConfigName)
				if existing := config.ProjectConfigPath(root); existing != "" && !force {
					out.Warningf("Configuration already exists: %s", existing)
					out.Status("💡", "Use --force to overwrite")
					return nil
				}
			} else if fileExists(path) && !force {
				out.Warningf("Configuration already exists: %s", path)
				out.Status("💡", "Use --force to overwrite")
				return nil
			}

			if user {
				if err := config.NewConfig().WriteYAML(path); err != nil {
					return err
				}
			} else if err := os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
			out.Successf("Wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead of the project config")

	return cmd
}

func newConfigShowCmd(g *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  `Show the configuration after merging every source. API keys are masked.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, err := loadProject(g.dir)
			if err != nil {
				return err
			}

			if jsonOutput {
				data, err := cfg.JSON()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}

			masked := *cfg
			if masked.Embeddings.OpenAIAPIKey != "" {
				masked.Embeddings.OpenAIAPIKey = "********"
			}
			data, err := yaml.Marshal(&masked)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
