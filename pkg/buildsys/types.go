package buildsys

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	starsyntax "go.starlark.net/syntax"
	"mvdan.cc/sh/v3/syntax"
)

// TaskCmd is a single step of a task. A step is either a shell fragment or a reference to another task.
type TaskCmd interface {
	ToTask() (*Task, error)
	ToShellStmts(*syntax.Parser) ([]*syntax.Stmt, error)
}

// TaskCmdScript is a shell fragment. Argument lists passed to task() are converted to a quoted
// fragment while the script is evaluated so every entry ends up as exactly one argv element.
type TaskCmdScript struct {
	TaskName string
	Content  string
	Index    int
}

func (s TaskCmdScript) ToTask() (*Task, error) {
	return nil, nil
}

func (s TaskCmdScript) ToShellStmts(parser *syntax.Parser) ([]*syntax.Stmt, error) {
	result, err := parser.Parse(strings.NewReader(s.Content), fmt.Sprintf("%s:%d", s.TaskName, s.Index))
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse command %s", s.Content)
	}

	return result.Stmts, nil
}

// TaskCmdTaskRef runs another (usually hidden) task in place.
type TaskCmdTaskRef struct {
	Task *Task
}

func (t TaskCmdTaskRef) ToTask() (*Task, error) {
	return t.Task, nil
}

func (t TaskCmdTaskRef) ToShellStmts(*syntax.Parser) ([]*syntax.Stmt, error) {
	return nil, nil
}

// Task contains the processed values passed to task() by the task script
type Task struct {
	Env          map[string]string
	Short        string
	Desc         string
	Base         string
	Inputs       []string
	Deps         []string
	SkipIfExists []string
	Outputs      []string
	Cmds         []TaskCmd
	Hidden       bool
}

// TaskList maps short names to each relevant task
type TaskList map[string]*Task

// Names returns the sorted names of all tasks that aren't hidden.
func (l TaskList) Names() []string {
	names := make([]string, 0, len(l))
	for name, task := range l {
		if !task.Hidden {
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names
}

// ScriptOption is a key=value option declared through option() in the task script.
type ScriptOption struct {
	DefaultValue starlark.String
	Help         string
}

func (o ScriptOption) Default() string {
	return o.DefaultValue.GoString()
}

// *Task implements starlark.Value so task() can return it and the result can be used in another task's
// cmds list. Tasks are opaque to scripts: they can't be compared, hashed or changed.
var _ starlark.Value = (*Task)(nil)

func (t *Task) String() string {
	if t.Hidden {
		return fmt.Sprintf("<Task (hidden) %s>", t.Short)
	}
	return fmt.Sprintf("<Task %s: %s>", t.Short, t.Desc)
}

func (t *Task) Type() string         { return "task" }
func (t *Task) Freeze()              {}
func (t *Task) Truth() starlark.Bool { return starlark.True }

func (t *Task) Hash() (uint32, error) {
	return 0, eris.Errorf("unhashable type: %s", t.Type())
}

// StarlarkPath is what resolve_path() returns. It behaves like a read-only string in scripts; in a cmds list it
// is rewritten relative to the task's base directory.
type StarlarkPath string

var (
	_ starlark.Comparable = StarlarkPath("")
	_ starlark.Sliceable  = StarlarkPath("")
)

func (p StarlarkPath) str() starlark.String { return starlark.String(p) }

func (p StarlarkPath) String() string        { return p.str().String() }
func (p StarlarkPath) Type() string          { return "path" }
func (p StarlarkPath) Freeze()               {}
func (p StarlarkPath) Truth() starlark.Bool  { return p != "" }
func (p StarlarkPath) Hash() (uint32, error) { return p.str().Hash() }
func (p StarlarkPath) Len() int              { return len(p) }

func (p StarlarkPath) Index(i int) starlark.Value {
	return p.str().Index(i)
}

func (p StarlarkPath) Slice(start, end, step int) starlark.Value {
	return p.str().Slice(start, end, step)
}

func (p StarlarkPath) CompareSameType(op starsyntax.Token, other starlark.Value, depth int) (bool, error) {
	return p.str().CompareSameType(op, other.(StarlarkPath).str(), depth)
}
