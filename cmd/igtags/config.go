package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"igtags/pkg/config"
	"igtags/pkg/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage igtags configuration files.

Values are resolved from, highest priority first: command line flags,
environment variables, a .env file, the configuration file, defaults.`,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "Create a configuration file with the default values",
			Long: `Write every option with its default value to '.igtags.yaml', or to the
path given with --config.`,
			Args: cobra.NoArgs,
			RunE: runConfigInit,
		},
		&cobra.Command{
			Use:   "show",
			Short: "Show the resolved configuration with secrets masked",
			Args:  cobra.NoArgs,
			RunE:  runConfigShow,
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Validate the configuration and its companies file",
			Args:  cobra.NoArgs,
			RunE:  runConfigValidate,
		},
	)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = ".igtags.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, remove it first to regenerate", path)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + path)
	fmt.Print(`
Next steps:
  1. Point companies.file at your companies JSON or YAML file
  2. Check it with 'igtags config validate'
  3. Start with 'igtags run'
`)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg.Masked())
	if err != nil {
		return err
	}
	ui.PrintHighlight("Current Configuration\n")
	fmt.Print(string(out))
	return nil
}

// configReport collects what validate found.
type configReport struct {
	problems []string
	warnings []string
}

func (r *configReport) problem(format string, args ...interface{}) {
	r.problems = append(r.problems, fmt.Sprintf(format, args...))
}

func (r *configReport) warn(format string, args ...interface{}) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

func bullets(items []string) string {
	return "  - " + strings.Join(items, "\n  - ")
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	var r configReport
	if cfg.ValidateCredentials() != nil {
		r.warn("comments enabled but no login configured, stored credentials will be tried")
	}

	groups, unknown, err := config.LoadTagGroups(cfg.Companies.File, cfg.Companies.Selection)
	if err != nil {
		r.problem("%v", err)
	}
	for _, name := range unknown {
		r.warn("company %q not found in %s", name, cfg.Companies.File)
	}

	dirs := map[string]string{"output": cfg.Output.Directory}
	if cfg.Logging.File != "" {
		dirs["log"] = filepath.Dir(cfg.Logging.File)
	}
	for what, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			r.problem("cannot create %s directory: %v", what, err)
		}
	}

	if len(r.problems) > 0 {
		return errors.New("configuration has errors\n" + bullets(r.problems))
	}
	if len(r.warnings) > 0 {
		ui.PrintWarning("Configuration warnings")
		fmt.Println(bullets(r.warnings))
	}

	tags := 0
	for _, g := range groups {
		tags += len(g.Tags)
	}
	ui.PrintSuccess("Configuration is valid")
	ui.PrintInfo("Output directory", cfg.Output.Directory)
	ui.PrintInfo("Store format", cfg.Store.Format)
	ui.PrintInfo("Companies", fmt.Sprintf("%d (%d tags)", len(groups), tags))
	ui.PrintInfo("Phases", fmt.Sprintf("posts=%t images=%t comments=%t", cfg.Scrape.Posts, cfg.Scrape.Images, cfg.Scrape.Comments))
	ui.PrintInfo("Rate limit", fmt.Sprintf("%d requests/minute", cfg.RateLimit.RequestsPerMinute))
	ui.PrintInfo("Mirror", cfg.Mirror.Provider)
	ui.PrintInfo("Log level", cfg.Logging.Level)
	return nil
}
