// Package tools checks for and installs the external programs the tasks dispatch to.
package tools

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"io"
	"io/ioutil"
	"os"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"gopkg.in/yaml.v3"
)

//go:embed TOOLS.yml
var defaultManifest []byte

// Spec describes a single external tool.
type Spec struct {
	Name string
	// Binary defaults to Name.
	Binary string `yaml:"binary,omitempty"`
	// Package is the pip requirement that provides the tool.
	Package     string
	VersionArgs []string `yaml:"versionArgs,omitempty"`
	// Manual tools can't be installed with pip (i.e. the interpreter itself).
	Manual bool `yaml:"manual,omitempty"`
}

type manifest struct {
	Tools []Spec
}

// Status is the result of Check.
type Status struct {
	Spec    Spec
	Path    string
	Version string
	Err     error
}

// Found reports whether the tool's binary was found in PATH.
func (s Status) Found() bool {
	return s.Path != ""
}

func (s Spec) binary() string {
	if s.Binary != "" {
		return s.Binary
	}
	return s.Name
}

// ParseManifest decodes a tool manifest.
func ParseManifest(data []byte) ([]Spec, error) {
	var m manifest
	err := yaml.Unmarshal(data, &m)
	if err != nil {
		return nil, eris.Wrap(err, "failed to parse tool manifest")
	}

	for idx, spec := range m.Tools {
		if spec.Name == "" {
			return nil, eris.Errorf("tool #%d has no name", idx)
		}

		if spec.Package == "" {
			m.Tools[idx].Package = spec.Name
		}
	}

	return m.Tools, nil
}

// LoadManifest reads the manifest at path. If the file doesn't exist, the built-in manifest is used.
func LoadManifest(path string) ([]Spec, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if !eris.Is(err, os.ErrNotExist) {
			return nil, eris.Wrapf(err, "could not open file %s", path)
		}
		data = defaultManifest
	}

	return ParseManifest(data)
}

// Check looks up the tool in PATH and retrieves its version.
func Check(ctx context.Context, spec Spec) Status {
	status := Status{Spec: spec}

	path, err := exec.LookPath(spec.binary())
	if err != nil {
		status.Err = err
		return status
	}
	status.Path = path

	if len(spec.VersionArgs) == 0 {
		return status
	}

	output, err := exec.CommandContext(ctx, path, spec.VersionArgs...).CombinedOutput()
	if err != nil {
		status.Err = eris.Wrapf(err, "failed to run %s %s", path, strings.Join(spec.VersionArgs, " "))
		return status
	}

	scanner := bufio.NewScanner(bytes.NewReader(output))
	if scanner.Scan() {
		status.Version = strings.TrimSpace(scanner.Text())
	}

	return status
}

// CheckAll runs Check for each spec.
func CheckAll(ctx context.Context, specs []Spec) []Status {
	result := make([]Status, len(specs))
	for idx, spec := range specs {
		result[idx] = Check(ctx, spec)
	}

	return result
}

func getProgressBar(length int, desc string, out io.Writer) *progressbar.ProgressBar {
	if os.Getenv("CI") == "true" {
		return progressbar.NewOptions(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.NewOptions(length,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(out),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			_, _ = io.WriteString(out, "\n")
		}),
	)
}

// Install runs "<python> -m pip install" for every spec that isn't already available. The installer's
// output goes to log. Nothing is installed if a manual tool is missing.
func Install(ctx context.Context, python string, specs []Spec, log io.Writer, progress io.Writer) ([]Spec, error) {
	missing := make([]Spec, 0, len(specs))
	manual := make([]string, 0)
	for _, status := range CheckAll(ctx, specs) {
		if status.Found() {
			continue
		}

		if status.Spec.Manual {
			manual = append(manual, status.Spec.Name)
		} else {
			missing = append(missing, status.Spec)
		}
	}

	if len(manual) > 0 {
		return nil, eris.Errorf("%s can't be installed with pip, please install it manually", strings.Join(manual, ", "))
	}

	if len(missing) == 0 {
		return missing, nil
	}

	bar := getProgressBar(len(missing), "Installing tools", progress)
	for _, spec := range missing {
		bar.Describe("Installing " + spec.Name)

		cmd := exec.CommandContext(ctx, python, "-m", "pip", "install", spec.Package)
		cmd.Stdout = log
		cmd.Stderr = log
		err := cmd.Run()
		if err != nil {
			return missing, eris.Wrapf(err, "failed to install %s", spec.Package)
		}

		err = bar.Add(1)
		if err != nil {
			return missing, err
		}
	}

	return missing, nil
}
