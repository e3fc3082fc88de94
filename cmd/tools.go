package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ngld/devtasks/pkg"
	"github.com/ngld/devtasks/pkg/config"
	"github.com/ngld/devtasks/pkg/defaults"
	"github.com/ngld/devtasks/pkg/tools"
)

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// resolveManifest finds the tool manifest the same way the task command finds its script: cfg.Script
// (relative to dir) if set, otherwise the closest tasks.star. The manifest lives next to that script.
func resolveManifest(cfg *config.Config, dir string) (string, error) {
	if filepath.IsAbs(cfg.Tools) {
		return cfg.Tools, nil
	}

	script := cfg.Script
	if script != "" {
		if !filepath.IsAbs(script) {
			script = filepath.Join(dir, script)
		}
	} else {
		var err error
		script, err = pkg.FindUpwards(dir, defaults.ScriptName)
		if err != nil {
			return "", err
		}
	}

	if script == "" {
		return filepath.Join(dir, cfg.Tools), nil
	}

	return filepath.Join(filepath.Dir(script), cfg.Tools), nil
}

func loadToolConfig(cmd *cobra.Command) (*config.Config, []tools.Spec, error) {
	dir, err := cmd.Flags().GetString("directory")
	if err != nil {
		return nil, nil, err
	}

	cfgFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}

	if dir == "" {
		dir, err = os.Getwd()
		if err != nil {
			return nil, nil, eris.Wrap(err, "failed to retrieve the current working directory")
		}
	}

	if cfgFile == "" {
		cfgFile = filepath.Join(dir, config.FileName)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	manifest, err := resolveManifest(cfg, dir)
	if err != nil {
		return nil, nil, err
	}

	specs, err := tools.LoadManifest(manifest)
	if err != nil {
		return nil, nil, err
	}

	return cfg, specs, nil
}

var checkToolsCmd = &cobra.Command{
	Use:   "check-tools",
	Short: "Checks that Python and the lint, type and style checkers are installed",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, specs, err := loadToolConfig(cmd)
		if err != nil {
			return err
		}

		pkg.PrintTask("Checking tools")
		failures := 0
		for _, status := range tools.CheckAll(commandContext(cmd), specs) {
			switch {
			case !status.Found():
				failures++
				pkg.PrintError(fmt.Sprintf("%s: not found", status.Spec.Name))
			case status.Err != nil:
				failures++
				pkg.PrintError(fmt.Sprintf("%s (%s): %v", status.Spec.Name, status.Path, status.Err))
			default:
				pkg.PrintSubtask(fmt.Sprintf("%s (%s): %s", status.Spec.Name, status.Path, status.Version))
			}
		}

		if failures > 0 {
			return eris.Errorf("%d of %d tools are missing or broken, run install-tools to fix this", failures, len(specs))
		}

		return nil
	},
}

var installToolsCmd = &cobra.Command{
	Use:   "install-tools",
	Short: "Installs missing tools with pip",
	Long: `Installs the tools listed in TOOLS.yml (or the built-in list) which can't be found in PATH
by running "python -m pip install <package>" for each of them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, specs, err := loadToolConfig(cmd)
		if err != nil {
			return err
		}

		python, err := cmd.Flags().GetString("python")
		if err != nil {
			return err
		}

		if python == "" {
			python = cfg.Python
		}

		pkg.PrintTask("Installing tools")
		installed, err := tools.Install(commandContext(cmd), python, specs, os.Stdout, os.Stderr)
		if err != nil {
			return err
		}

		if len(installed) == 0 {
			pkg.PrintSubtask("Everything is already installed")
		}

		for _, spec := range installed {
			pkg.PrintSubtask("Installed " + spec.Package)
		}

		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{checkToolsCmd, installToolsCmd} {
		c.Flags().StringP("directory", "C", "", "run as if started in this directory")
		c.Flags().String("config", "", "config file (defaults to devtasks.toml in the working directory)")
		rootCmd.AddCommand(c)
	}

	installToolsCmd.Flags().String("python", "", "Python interpreter used to run pip (overrides the config)")
}
