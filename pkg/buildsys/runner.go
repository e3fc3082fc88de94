package buildsys

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// ExecFunc is called for every external program a task runs. args[0] is the program name as written in
// the task script.
type ExecFunc = interp.ExecHandlerFunc

// RunOptions controls how tasks are executed.
type RunOptions struct {
	// DryRun only logs the commands.
	DryRun bool
	// Force skips the skip_if_exists and input/output checks for the requested tasks.
	Force bool
	// Exec replaces the default exec handler.
	Exec   ExecFunc
	Stdout io.Writer
	Stderr io.Writer
}

type (
	runtimeCtxKey struct{}
	runtimeCtx    struct {
		runTasks    map[string]bool
		projectRoot string
		opts        RunOptions
	}
)

func getRuntimeCtx(ctx context.Context) *runtimeCtx {
	return ctx.Value(runtimeCtxKey{}).(*runtimeCtx)
}

func getTaskEnv(task *Task) expand.Environ {
	envVars := os.Environ()

	for name, value := range task.Env {
		envVars = append(envVars, fmt.Sprintf("%s=%s", name, value))
	}

	return expand.ListEnviron(envVars...)
}

var (
	defaultExecHandler = interp.DefaultExecHandler(2 * time.Second)
	defaultOpenHandler = interp.DefaultOpenHandler()
)

// HelperBinary is invoked in place of mv, rm and mkdir. It has to provide portable implementations of those
// commands as subcommands.
var HelperBinary = func() string {
	self, err := os.Executable()
	if err != nil {
		return "devtasks"
	}
	return self
}

func execHandler(ctx context.Context, args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "mv", "rm", "mkdir":
			// always use our cross-platform implementation for these operations to make sure
			// they behave consistently
			args = append([]string{HelperBinary()}, args...)
		}
	}

	return defaultExecHandler(ctx, args)
}

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

func shellReadDir(path string) ([]os.FileInfo, error) {
	if path == "" {
		path = "."
	}

	return ioutil.ReadDir(path)
}

func resolvePatternLists(ctx context.Context, base string, patterns []string) ([]string, error) {
	result := []string{}
	cfg := expand.Config{
		ReadDir:  shellReadDir,
		GlobStar: true,
	}

	parser := syntax.NewParser()
	pctx := &parserCtx{
		filepath:    filepath.Join(base, "tasks.star"),
		projectRoot: getRuntimeCtx(ctx).projectRoot,
	}

	for _, item := range patterns {
		item = filepath.ToSlash(normalizePath(pctx, item))

		words := make([]*syntax.Word, 0)
		err := parser.Words(strings.NewReader(item), func(w *syntax.Word) bool {
			words = append(words, w)
			return true
		})
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse pattern %s", item)
		}

		matches, err := expand.Fields(&cfg, words...)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve pattern %s", item)
		}

		for _, match := range matches {
			// If a pattern didn't match anything, it's returned as a result. Skip those results.
			if !strings.Contains(match, "*") {
				result = append(result, match)
			}
		}
	}
	return result, nil
}

// RunTask executes the given task
func RunTask(ctx context.Context, projectRoot, task string, tasks TaskList, opts RunOptions) error {
	return RunTasks(ctx, projectRoot, []string{task}, tasks, opts)
}

// RunTasks executes the given tasks in order and stops at the first failure. Dependencies shared between
// the tasks only run once.
func RunTasks(ctx context.Context, projectRoot string, names []string, tasks TaskList, opts RunOptions) error {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	rctx := runtimeCtx{
		projectRoot: projectRoot,
		runTasks:    make(map[string]bool),
		opts:        opts,
	}
	ctx = context.WithValue(ctx, runtimeCtxKey{}, &rctx)

	for _, name := range names {
		taskMeta, found := tasks[name]
		if !found {
			return eris.Errorf("Task %s not found", name)
		}

		err := runTaskInternal(ctx, taskMeta, tasks, opts.Force, true)
		if err != nil {
			return eris.Wrapf(err, "task %s failed", name)
		}
	}

	return nil
}

// upToDate checks the skip_if_exists list and compares input and output modification times.
func upToDate(ctx context.Context, task *Task) (bool, error) {
	skipList, err := resolvePatternLists(ctx, task.Base, task.SkipIfExists)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve skip_if_exists list")
	}

	found := 0
	for _, item := range skipList {
		_, err := os.Stat(item)
		if err == nil {
			found++
		} else if !eris.Is(err, os.ErrNotExist) {
			return false, eris.Wrapf(err, "failed to check %s", item)
		}
	}

	if found > 0 && found == len(skipList) {
		log(ctx).Info().
			Str("task", task.Short).
			Msg("skipped because all skip files exist")
		return true, nil
	}

	inputList, err := resolvePatternLists(ctx, task.Base, task.Inputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve inputs")
	}

	outputList, err := resolvePatternLists(ctx, task.Base, task.Outputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve output list")
	}

	var newestInput time.Time
	for _, item := range inputList {
		info, err := os.Stat(item)
		if err != nil {
			return false, eris.Wrapf(err, "failed to check input %s", item)
		}

		if info.ModTime().After(newestInput) {
			newestInput = info.ModTime()
		}
	}

	if newestInput.IsZero() || len(outputList) == 0 {
		return false, nil
	}

	var newestOutput time.Time
	oldestOutput := time.Now()
	for _, item := range outputList {
		info, err := os.Stat(item)
		if err != nil {
			if eris.Is(err, os.ErrNotExist) {
				// a missing output always means the task has to run
				return false, nil
			}
			return false, eris.Wrapf(err, "failed to check output %s", item)
		}

		mt := info.ModTime()
		if mt.After(newestOutput) {
			newestOutput = mt
		}

		if mt.Before(oldestOutput) {
			oldestOutput = mt
		}
	}

	if newestOutput.Sub(oldestOutput) > 10*time.Minute {
		log(ctx).Warn().
			Str("task", task.Short).
			Msgf("oldest output is %f minutes older than the newest output", newestOutput.Sub(oldestOutput).Minutes())
	}

	if oldestOutput.After(newestInput) {
		log(ctx).Info().
			Str("task", task.Short).
			Msgf("nothing to do (output is %f seconds newer)", oldestOutput.Sub(newestInput).Seconds())
		return true, nil
	}

	return false, nil
}

func runTaskInternal(ctx context.Context, task *Task, tasks TaskList, force, canSkip bool) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	rctx := getRuntimeCtx(ctx)
	status, ok := rctx.runTasks[task.Short]
	if ok {
		if status {
			log(ctx).Debug().Msgf("Task %s already run", task.Short)
			return nil
		}

		return eris.Errorf("Task %s was called recursively", task.Short)
	}

	rctx.runTasks[task.Short] = false

	for _, dep := range task.Deps {
		depTask, ok := tasks[dep]
		if !ok {
			return eris.Errorf("Task %s not found", dep)
		}

		err := runTaskInternal(ctx, depTask, tasks, false, true)
		if err != nil {
			return eris.Wrapf(err, "Task %s failed due to its dependency %s", task.Short, dep)
		}
	}

	if canSkip && !force {
		skip, err := upToDate(ctx, task)
		if err != nil {
			return err
		}

		if skip {
			rctx.runTasks[task.Short] = true
			return nil
		}
	}

	exec := execHandler
	if rctx.opts.Exec != nil {
		exec = rctx.opts.Exec
	}

	// With the skip and input/output checks done, we can finally start executing
	runner, err := interp.New(
		interp.Dir(task.Base),
		interp.Env(getTaskEnv(task)),
		interp.ExecHandler(exec),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, rctx.opts.Stdout, rctx.opts.Stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrap(err, "failed to initialize runner")
	}

	parser := syntax.NewParser()
	printer := syntax.NewPrinter(syntax.Minify(true))
	strBuffer := strings.Builder{}

	for _, item := range task.Cmds {
		stmts, err := item.ToShellStmts(parser)
		if err != nil {
			return eris.Wrap(err, "failed to parse shell script")
		}

		if stmts == nil {
			subTask, err := item.ToTask()
			if err != nil {
				return eris.Wrap(err, "failed to retrieve task ref")
			}

			if subTask == nil {
				return eris.Errorf("unexpected task command %+v", item)
			}

			err = runTaskInternal(ctx, subTask, tasks, force, true)
			if err != nil {
				return err
			}
			continue
		}

		for _, stm := range stmts {
			strBuffer.Reset()
			err = printer.Print(&strBuffer, stm)
			if err != nil {
				return eris.Wrap(err, "failed to print command")
			}

			log(ctx).Info().
				Str("task", task.Short).
				Bool("command", true).
				Msg(strBuffer.String())

			if rctx.opts.DryRun {
				continue
			}

			err = runner.Run(ctx, stm)
			if err != nil {
				return err
			}

			if runner.Exited() {
				rctx.runTasks[task.Short] = true
				return nil
			}
		}

		if err = ctx.Err(); err != nil {
			return err
		}
	}

	rctx.runTasks[task.Short] = true
	return nil
}

// ExitStatus extracts the exit status of the failed program from an error returned by RunTask.
func ExitStatus(err error) (uint8, bool) {
	if err == nil {
		return 0, false
	}

	return interp.IsExitStatus(eris.Cause(err))
}
