package graph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/codesweep/internal/source"
)

// makeTree writes each rel→content entry under a fresh temp root.
func makeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, body := range files {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return root
}

func newTestResolver(t *testing.T, files map[string]string, searchRoots ...string) (*Resolver, string) {
	t.Helper()
	root := makeTree(t, files)
	return NewResolver(source.OSFileSystem{}, root, searchRoots), root
}

func TestResolveTS(t *testing.T) {
	r, root := newTestResolver(t, map[string]string{
		"src/app.ts":         "",
		"src/utils.ts":       "",
		"src/lib/index.ts":   "",
		"shared/types.ts":    "",
		"vendor/ext/main.js": "",
	}, "vendor")
	from := filepath.Join(root, "src/app.ts")

	tests := []struct {
		spec string
		want string
	}{
		{"./utils", "src/utils.ts"},
		{"./lib", "src/lib/index.ts"},
		{"../shared/types", "shared/types.ts"},
		{"shared/types", "shared/types.ts"}, // project-root relative
		{"ext/main", "vendor/ext/main.js"},  // search root
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got := r.Resolve(tt.spec, from, LangTypeScript)
			assert.Equal(t, []string{filepath.Join(root, tt.want)}, got)
		})
	}

	assert.Nil(t, r.Resolve("react", from, LangTypeScript), "external packages are unresolved")
}

func TestResolveTS_RelativeBeatsRoot(t *testing.T) {
	r, root := newTestResolver(t, map[string]string{
		"src/app.ts":    "",
		"src/config.ts": "",
		"config.ts":     "",
	})
	got := r.Resolve("./config", filepath.Join(root, "src/app.ts"), LangTypeScript)
	assert.Equal(t, []string{filepath.Join(root, "src/config.ts")}, got)
}

func TestResolveGo(t *testing.T) {
	r, root := newTestResolver(t, map[string]string{
		"go.mod":                       "module github.com/acme/app\n\ngo 1.22\n",
		"internal/model/model.go":      "package model",
		"internal/model/model_test.go": "package model",
		"internal/model/a_test.go":     "package model",
		"cmd/app/main.go":              "package main",
		"third_party/x.io/lib/lib.go":  "package lib",
	}, "third_party")
	from := filepath.Join(root, "cmd/app/main.go")

	assert.Equal(t, []string{filepath.Join(root, "internal/model/model.go")},
		r.Resolve("github.com/acme/app/internal/model", from, LangGo))
	assert.Equal(t, []string{filepath.Join(root, "third_party/x.io/lib/lib.go")},
		r.Resolve("x.io/lib", from, LangGo))

	assert.Nil(t, r.Resolve("fmt", from, LangGo))
	assert.Nil(t, r.Resolve("github.com/acme/application/x", from, LangGo),
		"module prefix must end at a path boundary")
}

func TestResolveGo_MultiFilePackage(t *testing.T) {
	r, root := newTestResolver(t, map[string]string{
		"go.mod":          "module example.com/shop\n",
		"model/a.go":      "package model",
		"model/b.go":      "package model",
		"model/b_test.go": "package model",
		"model/README.md": "",
		"api/api.go":      "package api",
	})
	from := filepath.Join(root, "api/api.go")

	assert.Equal(t, []string{
		filepath.Join(root, "model/a.go"),
		filepath.Join(root, "model/b.go"),
	}, r.Resolve("example.com/shop/model", from, LangGo))

	got := r.ResolveAll([]string{"example.com/shop/model", "fmt"}, from, LangGo)
	assert.Equal(t, map[string]struct{}{
		filepath.Join(root, "model/a.go"): {},
		filepath.Join(root, "model/b.go"): {},
	}, got)
}

func TestIsGoPackageFile(t *testing.T) {
	assert.True(t, IsGoPackageFile("/p/model/a.go"))
	assert.False(t, IsGoPackageFile("/p/model/a_test.go"))
	assert.False(t, IsGoPackageFile("/p/model/a.ts"))
}

func TestResolveGo_NoGoMod(t *testing.T) {
	r, root := newTestResolver(t, map[string]string{"a/a.go": "package a"})
	assert.Nil(t, r.Resolve("example.com/m/a", filepath.Join(root, "main.go"), LangGo))
}

func TestResolvePython(t *testing.T) {
	r, root := newTestResolver(t, map[string]string{
		"app/__init__.py":      "",
		"app/models.py":        "",
		"app/api/__init__.py":  "",
		"app/api/views.py":     "",
		"app/api/helpers.py":   "",
		"app/core/__init__.py": "",
	})
	from := filepath.Join(root, "app/api/views.py")

	tests := []struct {
		spec string
		want string
	}{
		{".helpers", "app/api/helpers.py"},
		{".", "app/api/__init__.py"},
		{"..models", "app/models.py"},
		{"..core", "app/core/__init__.py"},
		{"helpers", "app/api/helpers.py"}, // sibling first
		{"app.models", "app/models.py"},   // project root
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got := r.Resolve(tt.spec, from, LangPython)
			assert.Equal(t, []string{filepath.Join(root, tt.want)}, got)
		})
	}

	assert.Nil(t, r.Resolve("os", from, LangPython))
}

func TestResolveRust(t *testing.T) {
	r, root := newTestResolver(t, map[string]string{
		"src/lib.rs":        "",
		"src/model.rs":      "",
		"src/db/mod.rs":     "",
		"src/db/pool.rs":    "",
		"src/api/routes.rs": "",
	})

	tests := []struct {
		name string
		spec string
		from string
		want string
	}{
		{"crate file", "crate::model::{User, Repo}", "src/lib.rs", "src/model.rs"},
		{"crate mod dir", "crate::db", "src/api/routes.rs", "src/db/mod.rs"},
		{"crate item", "crate::db::pool::Pool", "src/lib.rs", "src/db/pool.rs"},
		{"self mod decl", "self::model", "src/lib.rs", "src/model.rs"},
		{"super", "super::model", "src/api/routes.rs", "src/model.rs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(tt.spec, filepath.Join(root, tt.from), LangRust)
			assert.Equal(t, []string{filepath.Join(root, tt.want)}, got)
		})
	}

	assert.Nil(t, r.Resolve("std::collections::HashMap", filepath.Join(root, "src/lib.rs"), LangRust))
}

func TestResolveAll_DropsUnresolvedAndSelf(t *testing.T) {
	r, root := newTestResolver(t, map[string]string{
		"a.ts": "",
		"b.ts": "",
	})
	from := filepath.Join(root, "a.ts")

	got := r.ResolveAll([]string{"./b", "./a", "./missing", "lodash"}, from, LangTypeScript)
	assert.Equal(t, map[string]struct{}{filepath.Join(root, "b.ts"): {}}, got)
}

func TestResolve_UnknownLanguage(t *testing.T) {
	r, root := newTestResolver(t, map[string]string{"a.rb": ""})
	assert.Nil(t, r.Resolve("./a", filepath.Join(root, "b.rb"), Language("ruby")))
}
