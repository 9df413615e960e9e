package envtree

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presbrey/projectenv/hierarchy"
	"github.com/presbrey/projectenv/syncmap"
)

func writeEnv(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func hostEnv(env map[string]string) func() (map[string]string, error) {
	return func() (map[string]string, error) {
		return env, nil
	}
}

func quietLoader(host map[string]string) *Loader {
	return New(&Config{Silent: true, HostEnvironment: hostEnv(host)})
}

// tree creates <base>/root and <base>/root/child and returns their nodes
func tree(t *testing.T) (root, child *hierarchy.Project) {
	t.Helper()
	base := t.TempDir()
	rootDir := filepath.Join(base, "root")
	childDir := filepath.Join(rootDir, "child")
	require.NoError(t, os.MkdirAll(childDir, 0755))

	root = hierarchy.NewProject(rootDir, nil)
	return root, root.Child(childDir)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, []string{"env"}, config.Extensions)
	assert.False(t, config.Recursive)
	assert.False(t, config.Silent)
	assert.NotNil(t, config.HostEnvironment)
	assert.Empty(t, config.StopDir)
}

func TestNew(t *testing.T) {
	loader := New(nil)
	require.NotNil(t, loader)
	require.NotNil(t, loader.config)
	assert.NotNil(t, loader.Store())
	assert.Nil(t, loader.metrics)

	loader = New(&Config{Extensions: []string{"properties"}, Silent: true})
	assert.Equal(t, []string{"properties"}, loader.config.Extensions)
	assert.NotNil(t, loader.config.HostEnvironment)

	loader = New(&Config{Silent: true})
	assert.Equal(t, []string{"env"}, loader.config.Extensions)
}

func TestOSEnvironment(t *testing.T) {
	t.Setenv("ENVTREE_OS_TEST", "a=b")

	env, err := OSEnvironment()
	require.NoError(t, err)
	assert.Equal(t, "a=b", env["ENVTREE_OS_TEST"])
	_, hasEmpty := env[""]
	assert.False(t, hasEmpty)
}

func TestLoadChildOverridesRoot(t *testing.T) {
	root, child := tree(t)
	writeEnv(t, filepath.Join(root.Dir(), "app.env"), "MODE=prod\n")
	writeEnv(t, filepath.Join(child.Dir(), "app.env"), "MODE=dev\nDEBUG=true\n")

	host := map[string]string{"PATH": "/bin", "HOME": "/home/test"}
	loader := quietLoader(host)

	report, err := loader.Load(child)
	require.NoError(t, err)
	require.NoError(t, report.Err())

	env := loader.Store()
	assert.Equal(t, "dev", env.GetWithDefault("MODE", ""))
	assert.Equal(t, "true", env.GetWithDefault("DEBUG", ""))
	assert.Equal(t, len(host)+2, env.Size())

	require.Len(t, report.Layers, 2)
	assert.Equal(t, root.Dir(), report.Layers[0].Dir)
	assert.Equal(t, child.Dir(), report.Layers[1].Dir)
	assert.Equal(t, 2, report.Layers[1].Entries)
	assert.Equal(t, []string{
		filepath.Join(root.Dir(), "app.env"),
		filepath.Join(child.Dir(), "app.env"),
	}, report.Files())
	assert.Equal(t, 2, report.HostEntries)
	assert.NotEmpty(t, report.Session)
}

func TestLoadUnionOfDisjointLayers(t *testing.T) {
	root, child := tree(t)
	writeEnv(t, filepath.Join(root.Dir(), ".env"), "B1=root\nB2=root2\n")
	writeEnv(t, filepath.Join(child.Dir(), ".env"), "C1=child\n")

	loader := quietLoader(map[string]string{"A1": "host"})
	_, err := loader.Load(child)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"A1": "host",
		"B1": "root",
		"B2": "root2",
		"C1": "child",
	}, loader.Store().Snapshot())
}

func TestLoadFileOverridesHost(t *testing.T) {
	root, child := tree(t)
	writeEnv(t, filepath.Join(root.Dir(), "app.env"), "Y=file\n")

	loader := quietLoader(map[string]string{"Y": "host", "Z": "host"})
	_, err := loader.Load(child)
	require.NoError(t, err)

	assert.Equal(t, "file", loader.Store().GetWithDefault("Y", ""))
	assert.Equal(t, "host", loader.Store().GetWithDefault("Z", ""))
}

func TestLoadIdempotent(t *testing.T) {
	root, child := tree(t)
	writeEnv(t, filepath.Join(root.Dir(), "app.env"), "X=1\nSHARED=root\n")
	writeEnv(t, filepath.Join(child.Dir(), "app.env"), "SHARED=child\n")

	loader := quietLoader(map[string]string{"SHARED": "host"})
	_, err := loader.Load(child)
	require.NoError(t, err)
	first := loader.Store().Snapshot()

	_, err = loader.Load(child)
	require.NoError(t, err)
	assert.Equal(t, first, loader.Store().Snapshot())
}

func TestLoadMalformedFileIsolation(t *testing.T) {
	root, child := tree(t)
	badPath := filepath.Join(root.Dir(), "bad.env")
	writeEnv(t, badPath, "ROOT_OK=1\nBROKEN=\\uZZZZ\n")
	writeEnv(t, filepath.Join(child.Dir(), "good.env"), "LEAF=yes\n")

	loader := quietLoader(nil)
	report, err := loader.Load(child)
	require.NoError(t, err)

	env := loader.Store()
	assert.Equal(t, "yes", env.GetWithDefault("LEAF", ""))
	assert.False(t, env.ContainsKey("ROOT_OK"))
	assert.False(t, env.ContainsKey("BROKEN"))

	require.Len(t, report.Failures, 1)
	assert.Equal(t, badPath, report.Failures[0].Path)
	assert.Equal(t, KindParse, report.Failures[0].Kind)
	assert.Error(t, report.Err())
}

func TestLoadUnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	root, child := tree(t)
	locked := filepath.Join(root.Dir(), "locked.env")
	writeEnv(t, locked, "SECRET=1\n")
	require.NoError(t, os.Chmod(locked, 0000))

	loader := quietLoader(nil)
	report, err := loader.Load(child)
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, KindIO, report.Failures[0].Kind)
	assert.False(t, loader.Store().ContainsKey("SECRET"))
}

func TestLoadEmpty(t *testing.T) {
	node := hierarchy.NewProject(t.TempDir(), nil)

	loader := quietLoader(map[string]string{})
	report, err := loader.Load(node)
	require.NoError(t, err)

	assert.Equal(t, 0, loader.Store().Size())
	assert.Empty(t, report.Files())
	assert.NoError(t, report.Err())
}

func TestLoadMissingDirectoryIsNotAFailure(t *testing.T) {
	root := hierarchy.NewProject(filepath.Join(t.TempDir(), "gone"), nil)

	loader := quietLoader(map[string]string{"A": "1"})
	report, err := loader.Load(root)
	require.NoError(t, err)

	assert.Empty(t, report.Failures)
	assert.Equal(t, 1, loader.Store().Size())
}

func TestLoadSameDirectoryFilesApplyInNameOrder(t *testing.T) {
	root, _ := tree(t)
	writeEnv(t, filepath.Join(root.Dir(), "b.env"), "X=from-b\n")
	writeEnv(t, filepath.Join(root.Dir(), "a.env"), "X=from-a\n")

	loader := quietLoader(nil)
	_, err := loader.Load(root)
	require.NoError(t, err)

	assert.Equal(t, "from-b", loader.Store().GetWithDefault("X", ""))
}

func TestLoadIgnoresOtherExtensionsAndSubdirectories(t *testing.T) {
	root, child := tree(t)
	writeEnv(t, filepath.Join(root.Dir(), "app.env.example"), "EXAMPLE=1\n")
	writeEnv(t, filepath.Join(root.Dir(), "app.properties"), "PROPS=1\n")
	writeEnv(t, filepath.Join(root.Dir(), "nested", "deep.env"), "DEEP=1\n")
	writeEnv(t, filepath.Join(child.Dir(), "app.env"), "CHILD=1\n")

	loader := quietLoader(nil)
	_, err := loader.Load(root)
	require.NoError(t, err)

	assert.Equal(t, 0, loader.Store().Size())
}

func TestLoadRecursiveAndCustomExtensions(t *testing.T) {
	root, _ := tree(t)
	writeEnv(t, filepath.Join(root.Dir(), "app.properties"), "PROPS=1\n")
	writeEnv(t, filepath.Join(root.Dir(), "nested", "deep.env"), "DEEP=1\n")

	loader := New(&Config{
		Silent:          true,
		Recursive:       true,
		Extensions:      []string{"env", "properties"},
		HostEnvironment: hostEnv(nil),
	})
	_, err := loader.Load(root)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"PROPS": "1", "DEEP": "1"}, loader.Store().Snapshot())
}

func TestLoadHostEnvironmentFailure(t *testing.T) {
	root, _ := tree(t)
	boom := errors.New("environment unavailable")

	loader := New(&Config{
		Silent:          true,
		HostEnvironment: func() (map[string]string, error) { return nil, boom },
	})

	report, err := loader.Load(root)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, boom)
}

func TestLoadCycle(t *testing.T) {
	a := &cyclicNode{dir: t.TempDir()}
	b := &cyclicNode{dir: t.TempDir(), parent: a}
	a.parent = b

	loader := quietLoader(nil)
	_, err := loader.Load(b)

	var ce *hierarchy.CycleError
	assert.True(t, errors.As(err, &ce))
}

func TestLoadNilLeaf(t *testing.T) {
	loader := quietLoader(nil)
	_, err := loader.Load(nil)
	assert.Error(t, err)

	assert.Panics(t, func() { loader.MustLoad(nil) })
}

type cyclicNode struct {
	dir    string
	parent *cyclicNode
}

func (n *cyclicNode) Dir() string { return n.dir }

func (n *cyclicNode) Parent() hierarchy.Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func TestLoadMetrics(t *testing.T) {
	root, child := tree(t)
	writeEnv(t, filepath.Join(root.Dir(), "app.env"), "A=1\nB=2\n")
	writeEnv(t, filepath.Join(child.Dir(), "app.env"), "C=3\n")
	writeEnv(t, filepath.Join(child.Dir(), "bad.env"), "D=\\u00\n")

	reg := prometheus.NewRegistry()
	loader := New(&Config{Silent: true, HostEnvironment: hostEnv(nil), Registerer: reg})

	_, err := loader.Load(child)
	require.NoError(t, err)

	assert.Equal(t, float64(2), testutil.ToFloat64(loader.metrics.FilesLoaded))
	assert.Equal(t, float64(3), testutil.ToFloat64(loader.metrics.EntriesApplied))
	assert.Equal(t, float64(1), testutil.ToFloat64(loader.metrics.FileFailures.WithLabelValues(string(KindParse))))

	// A second loader on the same registry shares the collectors.
	other := New(&Config{Silent: true, HostEnvironment: hostEnv(nil), Registerer: reg})
	_, err = other.Load(root)
	require.NoError(t, err)
	assert.Equal(t, float64(3), testutil.ToFloat64(loader.metrics.FilesLoaded))
}

func TestLoadLogsSkippedFiles(t *testing.T) {
	root, _ := tree(t)
	bad := filepath.Join(root.Dir(), "bad.env")
	writeEnv(t, bad, "X=\\uQQQQ\n")

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	loader := New(&Config{Logger: &logger, HostEnvironment: hostEnv(nil)})

	_, err := loader.Load(root)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, bad)
	assert.Contains(t, out, `"session"`)
}

func TestSilentSuppressesLogger(t *testing.T) {
	root, _ := tree(t)
	writeEnv(t, filepath.Join(root.Dir(), "bad.env"), "X=\\uQQQQ\n")

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	loader := New(&Config{Logger: &logger, Silent: true, HostEnvironment: hostEnv(nil)})

	_, err := loader.Load(root)
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestPackageLoad(t *testing.T) {
	root, child := tree(t)
	writeEnv(t, filepath.Join(root.Dir(), "app.env"), "ENVTREE_PACKAGE_LOAD=root\n")
	writeEnv(t, filepath.Join(child.Dir(), "app.env"), "ENVTREE_PACKAGE_LOAD=child\n")

	store, err := Load(child)
	require.NoError(t, err)
	assert.Equal(t, "child", store.GetWithDefault("ENVTREE_PACKAGE_LOAD", ""))

	_, err = Load(nil)
	assert.Error(t, err)
}

func TestLoadWorkingDirectory(t *testing.T) {
	base := t.TempDir()
	leaf := filepath.Join(base, "svc")
	writeEnv(t, filepath.Join(base, "app.env"), "ENVTREE_WD_TEST=base\nENVTREE_WD_BASE=1\n")
	writeEnv(t, filepath.Join(leaf, "app.env"), "ENVTREE_WD_TEST=leaf\n")
	chdir(t, leaf)

	stop, err := os.Getwd()
	require.NoError(t, err)

	loader := New(&Config{Silent: true, StopDir: filepath.Dir(stop)})
	store, err := loader.LoadWorkingDirectory()
	require.NoError(t, err)

	assert.Equal(t, "leaf", store.GetWithDefault("ENVTREE_WD_TEST", ""))
	assert.Equal(t, "1", store.GetWithDefault("ENVTREE_WD_BASE", ""))
}

func TestLoadDefault(t *testing.T) {
	dir := t.TempDir()
	writeEnv(t, filepath.Join(dir, "app.env"), "ENVTREE_DEFAULT_TEST=yes\n")
	chdir(t, dir)

	store, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, "yes", store.GetWithDefault("ENVTREE_DEFAULT_TEST", ""))
}

func TestMustLoadDefault(t *testing.T) {
	chdir(t, t.TempDir())

	assert.NotPanics(t, func() {
		store := MustLoadDefault()
		assert.NotNil(t, store)
	})
}

func TestAutoLoad(t *testing.T) {
	dir := t.TempDir()
	writeEnv(t, filepath.Join(dir, ".env"), "ENVTREE_AUTOLOAD_TEST=1\n")
	chdir(t, dir)

	var store *syncmap.Map
	assert.NotPanics(t, func() {
		store = AutoLoad()
	})
	assert.Equal(t, "1", store.GetWithDefault("ENVTREE_AUTOLOAD_TEST", ""))
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	t.Setenv("PWD", abs)
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatalf("chdir back to %s: %v", old, err)
		}
	})
}
