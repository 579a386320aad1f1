package source

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClassifier() *Classifier {
	return NewClassifier(
		[]string{".go", ".py"},
		[]string{".yaml", ".json"},
		[]string{".md"},
		[]string{"vendor"},
	)
}

func TestClassifier_Kind(t *testing.T) {
	c := testClassifier()
	tests := []struct {
		path string
		want Kind
	}{
		{"/r/main.go", KindSource},
		{"/r/tool.PY", KindSource},
		{"/r/app.yaml", KindConfig},
		{"/r/README.md", KindOther},
		{"/r/Makefile", KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Kind(tt.path))
		})
	}
}

func TestClassifier_TrackedAndSkip(t *testing.T) {
	c := testClassifier()
	assert.True(t, c.Tracked("/r/README.md"))
	assert.False(t, c.Tracked("/r/image.png"))
	assert.True(t, c.SkipDir("vendor"))
	assert.True(t, c.SkipDir(".git"))
	assert.False(t, c.SkipDir("internal"))
}

func TestOSFileSystem_Walk(t *testing.T) {
	root := t.TempDir()
	write := func(rel, body string) {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	write("a.go", "package a")
	write("sub/b.py", "import os")
	write("vendor/c.go", "package c")
	write(".git/HEAD", "ref")
	write("img.png", "x")

	c := testClassifier()
	var got []string
	err := OSFileSystem{}.Walk(root, c.SkipDir, c.Tracked, func(p string) error {
		rel, _ := filepath.Rel(root, p)
		got = append(got, filepath.ToSlash(rel))
		return nil
	})
	require.NoError(t, err)
	sort.Strings(got)
	assert.Equal(t, []string{"a.go", "sub/b.py"}, got)
}

func TestOSFileSystem_ReadDirAndExists(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.go"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir"), 0o755))

	fsys := OSFileSystem{}
	files, err := fsys.ReadDir(root)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.go"), filepath.Join(root, "b.go")}, files)

	assert.True(t, Exists(fsys, filepath.Join(root, "a.go")))
	assert.False(t, Exists(fsys, filepath.Join(root, "dir")))
	assert.False(t, Exists(fsys, filepath.Join(root, "missing.go")))

	_, err = fsys.ReadFile(filepath.Join(root, "missing.go"))
	assert.True(t, IsNotExist(err))
}
