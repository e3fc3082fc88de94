// Package defaults carries the task script used when a project doesn't provide its own tasks.star.
package defaults

import (
	"context"
	_ "embed"
	"path/filepath"

	"github.com/ngld/devtasks/pkg/buildsys"
)

// ScriptName is the file name the CLI searches for before falling back to the embedded script.
const ScriptName = "tasks.star"

//go:embed tasks.star
var script []byte

// Script returns the embedded task script.
func Script() []byte {
	return script
}

// Tasks evaluates the embedded task script as if it was located in projectRoot.
func Tasks(ctx context.Context, projectRoot string, options map[string]string) (buildsys.TaskList, map[string]buildsys.ScriptOption, error) {
	return buildsys.RunSource(ctx, filepath.Join(projectRoot, ScriptName), script, projectRoot, options, true)
}
