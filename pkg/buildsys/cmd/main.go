// Package cmd implements the CLI for the buildsys package
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ngld/devtasks/pkg"
	"github.com/ngld/devtasks/pkg/buildsys"
	"github.com/ngld/devtasks/pkg/config"
	"github.com/ngld/devtasks/pkg/defaults"
)

var RootCmd = &cobra.Command{
	Use:   "task [task...] [option=value...]",
	Short: "Runs developer workflow tasks",
	Long: `This command parses the first tasks.star file it finds in the working directory or its parents
and executes the given tasks in order. Without a tasks.star file the built-in targets (lint, mypy,
style, test and test2) are used. Without any task names, the available tasks are listed.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, err := cmd.Flags().GetBool("dry")
		if err != nil {
			return err
		}

		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		noCache, err := cmd.Flags().GetBool("no-cache")
		if err != nil {
			return err
		}

		dir, err := cmd.Flags().GetString("directory")
		if err != nil {
			return err
		}

		cfgFile, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}

		if dir == "" {
			dir, err = os.Getwd()
			if err != nil {
				return eris.Wrap(err, "failed to retrieve the current working directory")
			}
		}

		if cfgFile == "" {
			cfgFile = filepath.Join(dir, config.FileName)
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		logger := NewLogger(cmd.ErrOrStderr(), cfg.LogLevel(), cfg.Log.JSON)
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx = buildsys.WithLogger(ctx, &logger)

		taskNames, options := splitArgs(args)
		if len(taskNames) == 0 {
			noCache = true
		}

		loaded, err := loadTasks(ctx, &logger, cfg, dir, options, noCache)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to parse tasks")
			return err
		}

		if len(taskNames) == 0 {
			printTaskList(cmd.OutOrStdout(), loaded)
			return nil
		}

		err = buildsys.RunTasks(ctx, loaded.projectRoot, taskNames, loaded.tasks, buildsys.RunOptions{
			DryRun: dryRun,
			Force:  force,
			Stdout: cmd.OutOrStdout(),
			Stderr: cmd.ErrOrStderr(),
		})
		if err != nil {
			logger.Error().Err(err).Msg("Failed")
			return err
		}

		return nil
	},
}

type loadedTasks struct {
	tasks       buildsys.TaskList
	options     map[string]buildsys.ScriptOption
	script      string
	projectRoot string
}

// splitArgs separates task names from key=value options.
func splitArgs(args []string) ([]string, map[string]string) {
	taskArgs := make([]string, 0, len(args))
	options := make(map[string]string)

	for _, part := range args {
		pos := strings.Index(part, "=")
		if pos > -1 {
			options[part[:pos]] = part[pos+1:]
		} else {
			taskArgs = append(taskArgs, part)
		}
	}

	return taskArgs, options
}

func loadTasks(ctx context.Context, logger *zerolog.Logger, cfg *config.Config, dir string, options map[string]string, noCache bool) (*loadedTasks, error) {
	script := cfg.Script
	if script != "" && !filepath.IsAbs(script) {
		script = filepath.Join(dir, script)
	}

	if script == "" {
		var err error
		script, err = pkg.FindUpwards(dir, defaults.ScriptName)
		if err != nil {
			return nil, err
		}
	}

	if script == "" {
		logger.Debug().Msg("no tasks.star found, using the built-in tasks")
		root, err := filepath.Abs(dir)
		if err != nil {
			return nil, err
		}

		tasks, declared, err := defaults.Tasks(ctx, root, options)
		if err != nil {
			return nil, err
		}

		return &loadedTasks{tasks: tasks, options: declared, projectRoot: root}, nil
	}

	result := &loadedTasks{
		script:      script,
		projectRoot: filepath.Dir(script),
	}
	logger.Debug().Str("path", result.script).Msgf("using %s", result.script)

	cacheFile := ""
	if cfg.Cache != "" && !noCache {
		cacheFile = filepath.Join(result.projectRoot, cfg.Cache)

		cached, err := buildsys.LoadCache(cacheFile, script, options)
		if err != nil {
			return nil, err
		}

		if cached != nil {
			result.tasks = cached
			return result, nil
		}
	}

	evaluated, err := buildsys.EvalFile(ctx, script, result.projectRoot, options, true)
	if err != nil {
		return nil, err
	}
	result.tasks = evaluated.Tasks
	result.options = evaluated.Options

	if cacheFile != "" {
		if evaluated.Inputs.Volatile {
			logger.Debug().Msgf("not caching the task list since %s executes commands", result.script)
			return result, nil
		}

		err = buildsys.WriteCache(cacheFile, options, evaluated.Inputs, evaluated.Tasks)
		if err != nil {
			logger.Warn().Err(err).Msgf("Failed to write %s", cacheFile)
		}
	}

	return result, nil
}

func printTaskList(out io.Writer, loaded *loadedTasks) {
	names := loaded.tasks.Names()
	maxNameLen := 0
	for _, name := range names {
		if len(name) > maxNameLen {
			maxNameLen = len(name)
		}
	}

	fmt.Fprintln(out, "Available tasks:")
	lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
	for _, name := range names {
		fmt.Fprintf(out, lineFmt, name+":", loaded.tasks[name].Desc)
	}

	if len(loaded.options) == 0 {
		return
	}

	optNames := make([]string, 0, len(loaded.options))
	for name := range loaded.options {
		optNames = append(optNames, name)
	}
	sort.Strings(optNames)

	fmt.Fprintln(out, "\nOptions:")
	for _, name := range optNames {
		opt := loaded.options[name]
		fmt.Fprintf(out, " * %s=%s\t%s\n", name, opt.Default(), opt.Help)
	}
}

func init() {
	RootCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	RootCmd.Flags().BoolP("force", "f", false, "force build; always execute the passed steps even if they don't have to run")
	RootCmd.Flags().Bool("no-cache", false, "always evaluate tasks.star instead of using the cached task list")
	RootCmd.Flags().StringP("directory", "C", "", "run as if started in this directory")
	RootCmd.Flags().String("config", "", "config file (defaults to devtasks.toml in the working directory)")
}
