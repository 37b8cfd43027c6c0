package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/allyourbase/oraclone/internal/cli/ui"
	"github.com/allyourbase/oraclone/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [db]",
	Short: "Write a default oraclone.toml",
	Long: `Write a commented default configuration to ./oraclone.toml, or to
config/<db>/oraclone.toml when a db name is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		if path == "" {
			path = filepath.Join(config.Dir(dbArg(args)), config.DefaultFile)
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.GenerateDefault(path); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %s\n", ui.StyleSuccess.Render(ui.SymbolCheck), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show [db]",
	Short: "Print the resolved configuration with secrets masked",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, dbArg(args))
		if err != nil {
			return err
		}
		out, err := cfg.ToTOML()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
