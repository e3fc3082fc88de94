package cmd

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngld/devtasks/pkg/config"
)

func TestResolveManifest(t *testing.T) {
	root := t.TempDir()
	project := filepath.Join(root, "project")
	nested := filepath.Join(project, "src", "pkg")
	scripts := filepath.Join(root, "scripts")
	require.NoError(t, makeDirs([]string{nested, scripts}, true))
	touch(t, filepath.Join(project, "tasks.star"))

	cfg := &config.Config{Tools: "TOOLS.yml"}

	manifest, err := resolveManifest(cfg, nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(project, "TOOLS.yml"), manifest)

	// an explicit script wins over the closest tasks.star
	cfg.Script = "../../../scripts/tasks.star"
	manifest, err = resolveManifest(cfg, nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(scripts, "TOOLS.yml"), manifest)

	cfg.Script = ""
	manifest, err = resolveManifest(cfg, scripts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(scripts, "TOOLS.yml"), manifest)

	cfg.Tools = filepath.Join(root, "elsewhere.yml")
	manifest, err = resolveManifest(cfg, nested)
	require.NoError(t, err)
	assert.Equal(t, cfg.Tools, manifest)
}

func TestLoadToolConfigUsesDirectory(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "tasks.star"))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "devtasks.toml"), []byte(`python = "python3.9"`), 0o600))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "TOOLS.yml"), []byte(`
tools:
  - name: fakelint
    package: fakelint==1.0
`), 0o600))

	require.NoError(t, checkToolsCmd.Flags().Set("directory", dir))
	t.Cleanup(func() {
		_ = checkToolsCmd.Flags().Set("directory", "")
	})

	cfg, specs, err := loadToolConfig(checkToolsCmd)
	require.NoError(t, err)
	assert.Equal(t, "python3.9", cfg.Python)
	require.Len(t, specs, 1)
	assert.Equal(t, "fakelint==1.0", specs[0].Package)
}
