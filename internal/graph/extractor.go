package graph

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dusk-indust/codesweep/internal/source"
)

// Extractor computes the resolved dependency set of a single file.
type Extractor struct {
	fsys     source.FileSystem
	parser   Parser
	resolver *Resolver
	logger   *zap.Logger
}

// NewExtractor creates an Extractor. A nil logger disables logging.
func NewExtractor(fsys source.FileSystem, parser Parser, resolver *Resolver, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{fsys: fsys, parser: parser, resolver: resolver, logger: logger.Named("extractor")}
}

// AnalyzeDependencies reads path and returns the files it imports.
// Files in languages without import extraction have no dependencies.
func (e *Extractor) AnalyzeDependencies(ctx context.Context, path string) (map[string]struct{}, error) {
	if LanguageForPath(path) == "" {
		return map[string]struct{}{}, nil
	}
	content, err := e.fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("extractor: read %s: %w", path, err)
	}
	return e.DependenciesOf(ctx, path, content)
}

// DependenciesOf is AnalyzeDependencies for content already in memory.
func (e *Extractor) DependenciesOf(ctx context.Context, path string, content []byte) (map[string]struct{}, error) {
	lang := LanguageForPath(path)
	if lang == "" {
		return map[string]struct{}{}, nil
	}
	res, err := e.parser.ParseImports(ctx, path, content, lang)
	if err != nil {
		return nil, fmt.Errorf("extractor: parse %s: %w", path, err)
	}
	deps := e.resolver.ResolveAll(res.Imports, path, lang)
	e.logger.Debug("dependencies resolved",
		zap.String("path", path),
		zap.Int("imports", len(res.Imports)),
		zap.Int("resolved", len(deps)))
	return deps, nil
}
