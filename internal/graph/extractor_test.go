package graph

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/codesweep/internal/source"
)

// stubParser returns fixed imports per path.
type stubParser struct {
	imports map[string][]string
	err     error
}

func (s *stubParser) ParseImports(_ context.Context, path string, _ []byte, lang Language) (*ParseResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &ParseResult{Path: path, Language: lang, Imports: s.imports[path]}, nil
}
func (s *stubParser) SupportedLanguages() []Language { return SupportedLanguages }
func (s *stubParser) Close() error                   { return nil }

func TestExtractor_ShopFixture(t *testing.T) {
	root, err := filepath.Abs("../../testdata/fixtures/shop")
	require.NoError(t, err)

	fsys := source.OSFileSystem{}
	ex := NewExtractor(fsys, NewTreeSitterParser(), NewResolver(fsys, root, nil), nil)
	ctx := context.Background()

	deps, err := ex.AnalyzeDependencies(ctx, filepath.Join(root, "service/service.go"))
	require.NoError(t, err)
	assert.Equal(t, set(filepath.Join(root, "model/model.go")), deps, "fmt is dropped, model resolves")

	deps, err = ex.AnalyzeDependencies(ctx, filepath.Join(root, "api/api.go"))
	require.NoError(t, err)
	assert.Equal(t, set(filepath.Join(root, "service/service.go")), deps)

	deps, err = ex.AnalyzeDependencies(ctx, filepath.Join(root, "model/model.go"))
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestExtractor_NonSourceHasNoDependencies(t *testing.T) {
	fsys := source.OSFileSystem{}
	ex := NewExtractor(fsys, &stubParser{err: errors.New("must not be called")}, NewResolver(fsys, t.TempDir(), nil), nil)

	deps, err := ex.AnalyzeDependencies(context.Background(), "/nowhere/config.yaml")
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestExtractor_Errors(t *testing.T) {
	root := makeTree(t, map[string]string{"a.ts": "import './b'", "b.ts": ""})
	fsys := source.OSFileSystem{}

	ex := NewExtractor(fsys, &stubParser{err: errors.New("boom")}, NewResolver(fsys, root, nil), nil)
	_, err := ex.AnalyzeDependencies(context.Background(), filepath.Join(root, "a.ts"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = ex.AnalyzeDependencies(context.Background(), filepath.Join(root, "missing.ts"))
	require.Error(t, err)
	assert.True(t, source.IsNotExist(err))
}

func TestExtractor_StubParserResolution(t *testing.T) {
	root := makeTree(t, map[string]string{"a.ts": "", "b.ts": ""})
	a := filepath.Join(root, "a.ts")
	fsys := source.OSFileSystem{}
	ex := NewExtractor(fsys, &stubParser{imports: map[string][]string{a: {"./b", "./nope"}}}, NewResolver(fsys, root, nil), nil)

	deps, err := ex.DependenciesOf(context.Background(), a, nil)
	require.NoError(t, err)
	assert.Equal(t, set(filepath.Join(root, "b.ts")), deps)
}
