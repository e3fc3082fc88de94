package buildsys

import (
	"encoding/gob"
	"os"
	"reflect"

	"github.com/rotisserie/eris"
)

func init() {
	gob.Register(TaskList{})
	gob.Register(Task{})
	gob.Register(TaskCmdScript{})
	gob.Register(TaskCmdTaskRef{})
}

type cacheEntry struct {
	Options map[string]string
	Inputs  ScriptInputs
	Tasks   TaskList
}

// WriteCache stores the parsed task list together with the options and inputs it was parsed with.
func WriteCache(file string, options map[string]string, inputs ScriptInputs, list TaskList) error {
	if inputs.Volatile {
		return eris.New("task lists from scripts that call execute() can't be cached")
	}

	handle, err := os.Create(file)
	if err != nil {
		return err
	}
	defer handle.Close()

	err = gob.NewEncoder(handle).Encode(cacheEntry{
		Options: options,
		Inputs:  inputs,
		Tasks:   list,
	})
	if err != nil {
		return err
	}

	return handle.Close()
}

func readCache(file string) (*cacheEntry, error) {
	handle, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	var entry cacheEntry
	err = gob.NewDecoder(handle).Decode(&entry)
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

// LoadCache returns the cached task list if the cache is newer than the script, was created with the same
// options and none of the environment variables or files the script looked at changed since. A nil list
// without an error means the script has to be evaluated again.
func LoadCache(file, script string, options map[string]string) (TaskList, error) {
	cacheInfo, err := os.Stat(file)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "failed to check %s", file)
	}

	scriptInfo, err := os.Stat(script)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to check %s", script)
	}

	if !cacheInfo.ModTime().After(scriptInfo.ModTime()) {
		return nil, nil
	}

	entry, err := readCache(file)
	if err != nil {
		// a broken cache is simply rebuilt
		return nil, nil
	}

	if len(entry.Options) != 0 || len(options) != 0 {
		if !reflect.DeepEqual(entry.Options, options) {
			return nil, nil
		}
	}

	if entry.Inputs.Changed() != nil {
		return nil, nil
	}

	return entry.Tasks, nil
}
