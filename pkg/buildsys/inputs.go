package buildsys

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
)

// EnvValue is an environment variable as getenv() saw it.
type EnvValue struct {
	Value string
	Set   bool
}

// FileState is what isfile(), isdir() or read_yaml() saw on disk.
type FileState struct {
	Exists  bool
	IsDir   bool
	ModTime int64
}

// ScriptInputs records everything outside of the script and its options that influenced the task list.
type ScriptInputs struct {
	Env   map[string]EnvValue
	Files map[string]FileState
	// Volatile is set once execute() ran. Its output can't be verified later so the task list must not be cached.
	Volatile bool
}

func (i *ScriptInputs) lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if i.Env == nil {
		i.Env = make(map[string]EnvValue)
	}
	i.Env[key] = EnvValue{Value: value, Set: ok}
	return value, ok
}

func (i *ScriptInputs) stat(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if i.Files == nil {
		i.Files = make(map[string]FileState)
	}
	i.Files[path] = fileState(info, err)
	return info, err
}

func fileState(info os.FileInfo, err error) FileState {
	if err != nil {
		return FileState{}
	}

	state := FileState{Exists: true, IsDir: info.IsDir()}
	// a directory's mtime changes with every entry, only its existence matters
	if !state.IsDir {
		state.ModTime = info.ModTime().UnixNano()
	}
	return state
}

// Changed returns an error describing the first input that no longer matches the recorded value, or nil
// if the task list built from these inputs is still valid.
func (i ScriptInputs) Changed() error {
	if i.Volatile {
		return eris.New("the script executes commands while it is evaluated")
	}

	keys := make([]string, 0, len(i.Env))
	for key := range i.Env {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value, ok := os.LookupEnv(key)
		if (EnvValue{Value: value, Set: ok}) != i.Env[key] {
			return eris.Errorf("environment variable %s changed", key)
		}
	}

	paths := make([]string, 0, len(i.Files))
	for path := range i.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if fileState(os.Stat(path)) != i.Files[path] {
			return eris.Errorf("%s changed", path)
		}
	}

	return nil
}
