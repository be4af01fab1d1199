package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetmanager/internal/core"
)

func TestTemplateBuilder_BuildManifest_SubstitutesNodeTag(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "worker.yaml"), []byte("tag: {{.NodeTag}}\nslots: 1\n"), 0644))

	b := NewTemplateBuilder(dir)
	out, err := b.BuildManifest("worker_3", core.TaskConfig{Tag: "worker", TemplateFile: "worker.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "tag: worker_3\nslots: 1\n", string(out))
}

func TestTemplateBuilder_BuildManifest_MissingFileErrors(t *testing.T) {
	b := NewTemplateBuilder(t.TempDir())
	_, err := b.BuildManifest("worker_1", core.TaskConfig{Tag: "worker", TemplateFile: "missing.yaml"})
	require.Error(t, err)
}
