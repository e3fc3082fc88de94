package buildsys

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	calls [][]string
}

func (r *recorder) exec(ctx context.Context, args []string) error {
	r.calls = append(r.calls, append([]string(nil), args...))
	return nil
}

func testContext() context.Context {
	logger := zerolog.Nop()
	return WithLogger(context.Background(), &logger)
}

func writeScript(t *testing.T, content string) (string, string) {
	t.Helper()

	root := t.TempDir()
	script := filepath.Join(root, "tasks.star")
	require.NoError(t, ioutil.WriteFile(script, []byte(content), 0o600))
	return root, script
}

func parse(t *testing.T, content string, options map[string]string) (string, TaskList) {
	t.Helper()

	root, script := writeScript(t, content)
	tasks, _, err := RunScript(testContext(), script, root, options, true)
	require.NoError(t, err)
	return root, tasks
}

func TestArgumentListsKeepArgvBoundaries(t *testing.T) {
	root, tasks := parse(t, `
def configure():
    task(short = "quote", cmds = [
        ("show", "two words", "it's", "$HOME", "*.py", ""),
        ["report", "--format=%s"],
    ])
`, nil)

	rec := &recorder{}
	require.NoError(t, RunTask(testContext(), root, "quote", tasks, RunOptions{Exec: rec.exec}))

	assert.Equal(t, [][]string{
		{"show", "two words", "it's", "$HOME", "*.py", ""},
		{"report", "--format=%s"},
	}, rec.calls)
}

func TestLeadingAssignmentsBecomeCommandEnv(t *testing.T) {
	root, tasks := parse(t, `
def configure():
    task(short = "env", cmds = [("FOO=bar", "tool", "arg")])
`, nil)

	rec := &recorder{}
	require.NoError(t, RunTask(testContext(), root, "env", tasks, RunOptions{Exec: rec.exec}))
	assert.Equal(t, [][]string{{"tool", "arg"}}, rec.calls)
}

func TestStringCommandsAreShellScripts(t *testing.T) {
	root, tasks := parse(t, `
def configure():
    task(short = "script", env = {"TARGET": "world"}, cmds = ["greet hello $TARGET; greet again"])
`, nil)

	rec := &recorder{}
	require.NoError(t, RunTask(testContext(), root, "script", tasks, RunOptions{Exec: rec.exec}))
	assert.Equal(t, [][]string{{"greet", "hello", "world"}, {"greet", "again"}}, rec.calls)
}

func TestDependenciesRunOnce(t *testing.T) {
	root, tasks := parse(t, `
def configure():
    task(short = "base", cmds = [("base",)])
    task(short = "a", deps = ["base"], cmds = [("a",)])
    task(short = "b", deps = ["base", "a"], cmds = [("b",)])
`, nil)

	rec := &recorder{}
	require.NoError(t, RunTasks(testContext(), root, []string{"a", "b"}, tasks, RunOptions{Exec: rec.exec}))
	assert.Equal(t, [][]string{{"base"}, {"a"}, {"b"}}, rec.calls)
}

func TestRecursionIsDetected(t *testing.T) {
	root, tasks := parse(t, `
def configure():
    task(short = "a", deps = ["b"])
    task(short = "b", deps = ["a"])
`, nil)

	err := RunTask(testContext(), root, "a", tasks, RunOptions{Exec: (&recorder{}).exec})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "called recursively")
}

func TestUnknownTask(t *testing.T) {
	root, tasks := parse(t, `
def configure():
    task(short = "a", deps = ["missing"])
`, nil)

	err := RunTask(testContext(), root, "nope", tasks, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Task nope not found")

	err = RunTask(testContext(), root, "a", tasks, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Task missing not found")
}

func TestHiddenTasksAndReferences(t *testing.T) {
	root, tasks := parse(t, `
def configure():
    helper = task(cmds = [("helper",)])
    task(short = "main", cmds = [helper, ("main",)])
`, nil)

	assert.Equal(t, []string{"main"}, tasks.Names())

	rec := &recorder{}
	require.NoError(t, RunTask(testContext(), root, "main", tasks, RunOptions{Exec: rec.exec}))
	assert.Equal(t, [][]string{{"helper"}, {"main"}}, rec.calls)
}

func TestReservedAndDuplicateNames(t *testing.T) {
	_, script := writeScript(t, `
def configure():
    task(short = "configure")
`)
	_, _, err := RunScript(testContext(), script, filepath.Dir(script), nil, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")

	_, script = writeScript(t, `
def configure():
    task(short = "x")
    task(short = "x")
`)
	_, _, err = RunScript(testContext(), script, filepath.Dir(script), nil, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than once")
}

func TestMissingConfigure(t *testing.T) {
	_, script := writeScript(t, `x = 1`)
	_, _, err := RunScript(testContext(), script, filepath.Dir(script), nil, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not declare a configure function")

	tasks, options, err := RunScript(testContext(), script, filepath.Dir(script), nil, false)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Empty(t, options)
}

func TestOptionsAndEnvironment(t *testing.T) {
	root, tasks := parse(t, `
mode = option("mode", default = "fast", help = "speed")
setenv("DEVTASKS_TEST_MODE", mode)

def configure():
    task(short = "show", cmds = [("run", getenv("DEVTASKS_TEST_MODE"), getenv("DEVTASKS_UNSET", "fallback"))])
`, map[string]string{"mode": "slow"})

	assert.Equal(t, "slow", tasks["show"].Env["DEVTASKS_TEST_MODE"])

	rec := &recorder{}
	require.NoError(t, RunTask(testContext(), root, "show", tasks, RunOptions{Exec: rec.exec}))
	assert.Equal(t, [][]string{{"run", "slow", "fallback"}}, rec.calls)
}

func TestOptionOutsideInitPhase(t *testing.T) {
	_, script := writeScript(t, `
def configure():
    option("late")
`)
	_, _, err := RunScript(testContext(), script, filepath.Dir(script), nil, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init phase")
}

func TestReadYaml(t *testing.T) {
	root, script := writeScript(t, `
name = read_yaml("tools.yml", "tools.1.name")
missing = read_yaml("tools.yml", "tools.7.name", "none")

def configure():
    task(short = "yaml", cmds = [("report", name, missing)])
`)
	require.NoError(t, ioutil.WriteFile(filepath.Join(root, "tools.yml"), []byte(`
tools:
  - name: pylint
  - name: mypy
`), 0o600))

	tasks, _, err := RunScript(testContext(), script, root, nil, true)
	require.NoError(t, err)

	rec := &recorder{}
	require.NoError(t, RunTask(testContext(), root, "yaml", tasks, RunOptions{Exec: rec.exec}))
	assert.Equal(t, [][]string{{"report", "mypy", "none"}}, rec.calls)
}

func TestResolvePathAndFileChecks(t *testing.T) {
	root, script := writeScript(t, `
src = resolve_path("//src")
has_src = isdir("src")
has_file = isfile("src")

def configure():
    task(short = "paths", base = "src", cmds = [("ls", src, str(has_src), str(has_file))])
`)
	require.NoError(t, os.Mkdir(filepath.Join(root, "src"), 0o700))

	tasks, _, err := RunScript(testContext(), script, root, nil, true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "src"), tasks["paths"].Base)

	rec := &recorder{}
	require.NoError(t, RunTask(testContext(), root, "paths", tasks, RunOptions{Exec: rec.exec}))
	assert.Equal(t, [][]string{{"ls", ".", "True", "False"}}, rec.calls)
}

func TestSkipIfExists(t *testing.T) {
	root, tasks := parse(t, `
def configure():
    task(short = "gen", skip_if_exists = ["marker"], cmds = [("gen",)])
`, nil)

	rec := &recorder{}
	require.NoError(t, RunTask(testContext(), root, "gen", tasks, RunOptions{Exec: rec.exec}))
	assert.Len(t, rec.calls, 1)

	require.NoError(t, ioutil.WriteFile(filepath.Join(root, "marker"), nil, 0o600))
	require.NoError(t, RunTask(testContext(), root, "gen", tasks, RunOptions{Exec: rec.exec}))
	assert.Len(t, rec.calls, 1)

	require.NoError(t, RunTask(testContext(), root, "gen", tasks, RunOptions{Exec: rec.exec, Force: true}))
	assert.Len(t, rec.calls, 2)
}

func TestInputsOlderThanOutputs(t *testing.T) {
	root, tasks := parse(t, `
def configure():
    task(short = "build", inputs = ["in.txt"], outputs = ["out.txt"], cmds = [("build",)])
`, nil)

	input := filepath.Join(root, "in.txt")
	output := filepath.Join(root, "out.txt")
	require.NoError(t, ioutil.WriteFile(input, nil, 0o600))

	rec := &recorder{}
	require.NoError(t, RunTask(testContext(), root, "build", tasks, RunOptions{Exec: rec.exec}))
	assert.Len(t, rec.calls, 1)

	require.NoError(t, ioutil.WriteFile(output, nil, 0o600))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(input, past, past))

	require.NoError(t, RunTask(testContext(), root, "build", tasks, RunOptions{Exec: rec.exec}))
	assert.Len(t, rec.calls, 1)
}

func TestCacheRoundTrip(t *testing.T) {
	root, script := writeScript(t, `
def configure():
    helper = task(cmds = [("helper",)])
    task(short = "main", desc = "Main task", env = {"A": "b"}, cmds = [helper, ("main", "x y")])
`)
	options := map[string]string{"python": "python3"}
	result, err := EvalFile(testContext(), script, root, options, true)
	require.NoError(t, err)
	tasks := result.Tasks

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(script, past, past))

	cacheFile := filepath.Join(root, ".devtasks.cache")
	require.NoError(t, WriteCache(cacheFile, options, result.Inputs, tasks))

	cached, err := LoadCache(cacheFile, script, options)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "Main task", cached["main"].Desc)
	assert.Equal(t, "b", cached["main"].Env["A"])

	rec := &recorder{}
	require.NoError(t, RunTask(testContext(), root, "main", cached, RunOptions{Exec: rec.exec}))
	assert.Equal(t, [][]string{{"helper"}, {"main", "x y"}}, rec.calls)

	// different options invalidate the cache
	cached, err = LoadCache(cacheFile, script, map[string]string{"python": "python2"})
	require.NoError(t, err)
	assert.Nil(t, cached)

	// so does a newer script
	require.NoError(t, os.Chtimes(script, time.Now().Add(time.Hour), time.Now().Add(time.Hour)))
	cached, err = LoadCache(cacheFile, script, options)
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestCacheTracksScriptInputs(t *testing.T) {
	t.Setenv("TASK_TARGET", "alpha")

	root, script := writeScript(t, `
target = getenv("TASK_TARGET", "none")
version = read_yaml("versions.yml", "tool")
has_extra = isfile("extra.txt")

def configure():
    task(short = "show", cmds = [("show", target, version, str(has_extra))])
`)
	versions := filepath.Join(root, "versions.yml")
	require.NoError(t, ioutil.WriteFile(versions, []byte("tool: v1\n"), 0o600))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(script, past, past))
	require.NoError(t, os.Chtimes(versions, past, past))

	result, err := EvalFile(testContext(), script, root, nil, true)
	require.NoError(t, err)
	assert.False(t, result.Inputs.Volatile)
	assert.Equal(t, EnvValue{Value: "alpha", Set: true}, result.Inputs.Env["TASK_TARGET"])
	assert.Contains(t, result.Inputs.Files, versions)
	assert.Equal(t, FileState{}, result.Inputs.Files[filepath.Join(root, "extra.txt")])

	cacheFile := filepath.Join(root, ".devtasks.cache")
	require.NoError(t, WriteCache(cacheFile, nil, result.Inputs, result.Tasks))

	cached, err := LoadCache(cacheFile, script, nil)
	require.NoError(t, err)
	require.NotNil(t, cached)

	t.Run("env", func(t *testing.T) {
		t.Setenv("TASK_TARGET", "beta")
		cached, err := LoadCache(cacheFile, script, nil)
		require.NoError(t, err)
		assert.Nil(t, cached)
	})

	t.Run("yaml file", func(t *testing.T) {
		require.NoError(t, os.Chtimes(versions, time.Now(), time.Now()))
		defer func() { require.NoError(t, os.Chtimes(versions, past, past)) }()

		cached, err := LoadCache(cacheFile, script, nil)
		require.NoError(t, err)
		assert.Nil(t, cached)
	})

	t.Run("new file", func(t *testing.T) {
		extra := filepath.Join(root, "extra.txt")
		require.NoError(t, ioutil.WriteFile(extra, nil, 0o600))
		defer os.Remove(extra)

		cached, err := LoadCache(cacheFile, script, nil)
		require.NoError(t, err)
		assert.Nil(t, cached)
	})

	cached, err = LoadCache(cacheFile, script, nil)
	require.NoError(t, err)
	assert.NotNil(t, cached)
}

func TestExecuteMakesTheTaskListUncacheable(t *testing.T) {
	root, script := writeScript(t, `
out = execute("echo hello")

def configure():
    task(short = "x", cmds = [("show", out)])
`)

	result, err := EvalFile(testContext(), script, root, nil, true)
	require.NoError(t, err)
	assert.True(t, result.Inputs.Volatile)
	assert.Error(t, result.Inputs.Changed())

	assert.Error(t, WriteCache(filepath.Join(root, ".devtasks.cache"), nil, result.Inputs, result.Tasks))
	assert.NoFileExists(t, filepath.Join(root, ".devtasks.cache"))
}

func TestExecuteBuiltin(t *testing.T) {
	root, tasks := parse(t, `
out = execute("echo hello").strip()
data = execute("echo '{\"k\": [1, 2]}'", format = "json")
failed = execute("exit 3")

def configure():
    task(short = "x", cmds = [("show", out, str(data["k"][1] == 2), str(failed))])
`, nil)

	rec := &recorder{}
	require.NoError(t, RunTask(testContext(), root, "x", tasks, RunOptions{Exec: rec.exec}))
	assert.Equal(t, [][]string{{"show", "hello", "True", "False"}}, rec.calls)
}

func TestStarlarkValues(t *testing.T) {
	root, tasks := parse(t, `
a = resolve_path("//b")
b = resolve_path("//a")

def configure():
    helper = task(cmds = [("helper",)])
    visible = task(short = "visible", desc = "Shown", cmds = [("x",)])
    task(short = "values", cmds = [(
        "show",
        str(b < a),
        str(a == resolve_path("//b")),
        a[-1],
        a[-3:],
        str(len(a) > 0),
        type(a),
        type(visible),
        str(visible),
        str(helper).split(" ")[1],
    )])
`, nil)

	rec := &recorder{}
	require.NoError(t, RunTask(testContext(), root, "values", tasks, RunOptions{Exec: rec.exec}))
	require.Len(t, rec.calls, 1)
	assert.Equal(t, []string{
		"show", "True", "True", "b", filepath.Join(root, "b")[len(root)-1:], "True",
		"path", "task", "<Task visible: Shown>", "(hidden)",
	}, rec.calls[0])
}
