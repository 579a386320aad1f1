package graph

import (
	"bufio"
	"bytes"
	"path/filepath"
	"strings"

	"github.com/dusk-indust/codesweep/internal/source"
)

// Resolver maps raw import specifiers to absolute file paths. Candidates are
// tried relative to the importing file first, then against the project root,
// then against each configured search root. Anything that does not name an
// existing file is unresolved.
type Resolver struct {
	fsys        source.FileSystem
	root        string
	searchRoots []string
	goModule    string
}

// NewResolver builds a Resolver for the project at root. Relative search
// roots are joined to root. The go.mod module path, when present, enables
// resolution of in-module Go imports.
func NewResolver(fsys source.FileSystem, root string, searchRoots []string) *Resolver {
	root = filepath.Clean(root)
	r := &Resolver{fsys: fsys, root: root}
	for _, sr := range searchRoots {
		if !filepath.IsAbs(sr) {
			sr = filepath.Join(root, sr)
		}
		r.searchRoots = append(r.searchRoots, filepath.Clean(sr))
	}
	r.goModule = readGoModule(fsys, filepath.Join(root, "go.mod"))
	return r
}

// Root returns the project root.
func (r *Resolver) Root() string { return r.root }

// Resolve returns the files that spec (written in from) refers to, or nil
// when it is unresolved. A Go import names a whole package and resolves to
// every non-test file in it; other languages name a single file.
func (r *Resolver) Resolve(spec, from string, lang Language) []string {
	if spec == "" {
		return nil
	}
	var (
		hit string
		ok  bool
	)
	switch lang {
	case LangGo:
		return r.resolveGo(spec)
	case LangTypeScript:
		hit, ok = r.resolveTS(spec, from)
	case LangPython:
		hit, ok = r.resolvePython(spec, from)
	case LangRust:
		hit, ok = r.resolveRust(spec, from)
	}
	if !ok {
		return nil
	}
	return []string{hit}
}

// ResolveAll resolves specs, dropping unresolved ones and self-references.
func (r *Resolver) ResolveAll(specs []string, from string, lang Language) map[string]struct{} {
	out := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		for _, target := range r.Resolve(s, from, lang) {
			if target != from {
				out[target] = struct{}{}
			}
		}
	}
	return out
}

// bases returns rel joined to the importing directory, the project root and
// each search root, in that order.
func (r *Resolver) bases(rel, fromDir string) []string {
	out := make([]string, 0, 2+len(r.searchRoots))
	if fromDir != "" {
		out = append(out, filepath.Join(fromDir, rel))
	}
	out = append(out, filepath.Join(r.root, rel))
	for _, sr := range r.searchRoots {
		out = append(out, filepath.Join(sr, rel))
	}
	return out
}

// probe returns the first base (as-is, then with each suffix) that exists.
func (r *Resolver) probe(bases []string, suffixes []string) (string, bool) {
	for _, base := range bases {
		if source.Exists(r.fsys, base) {
			return base, true
		}
		for _, suf := range suffixes {
			if candidate := base + suf; source.Exists(r.fsys, candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

// --- TypeScript / JavaScript ---

var tsSuffixes = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", "/index.ts", "/index.tsx", "/index.js"}

func (r *Resolver) resolveTS(spec, from string) (string, bool) {
	if strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") {
		return r.probe([]string{filepath.Join(filepath.Dir(from), spec)}, tsSuffixes)
	}
	if strings.HasPrefix(spec, "/") {
		return "", false
	}
	// Bare specifiers: project-root or search-root relative (baseUrl style).
	return r.probe(r.bases(spec, ""), tsSuffixes)
}

// --- Go ---

// resolveGo maps an in-module import path to the non-test .go files of the
// package directory, sorted. Other imports are tried as directories under
// the search roots (vendored or GOPATH-style layouts). The first directory
// holding Go files wins.
func (r *Resolver) resolveGo(spec string) []string {
	var dirs []string
	if r.goModule != "" && (spec == r.goModule || strings.HasPrefix(spec, r.goModule+"/")) {
		rel := strings.TrimPrefix(strings.TrimPrefix(spec, r.goModule), "/")
		dirs = append(dirs, filepath.Join(r.root, rel))
	}
	for _, sr := range r.searchRoots {
		dirs = append(dirs, filepath.Join(sr, spec))
	}
	for _, dir := range dirs {
		files, err := r.fsys.ReadDir(dir)
		if err != nil {
			continue
		}
		var out []string
		for _, f := range files {
			if IsGoPackageFile(f) {
				out = append(out, f)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// IsGoPackageFile reports whether path is a non-test Go source file, the
// kind an import of its directory depends on.
func IsGoPackageFile(path string) bool {
	return strings.HasSuffix(path, ".go") && !strings.HasSuffix(path, "_test.go")
}

// --- Python ---

var pySuffixes = []string{".py", "/__init__.py"}

func (r *Resolver) resolvePython(spec, from string) (string, bool) {
	dots := len(spec) - len(strings.TrimLeft(spec, "."))
	module := strings.ReplaceAll(spec[dots:], ".", "/")

	if dots > 0 {
		// One dot is the current package, each further dot goes up a level.
		dir := filepath.Dir(from)
		for i := 1; i < dots; i++ {
			dir = filepath.Dir(dir)
		}
		if module == "" {
			return r.probe([]string{filepath.Join(dir, "__init__")}, []string{".py"})
		}
		return r.probe([]string{filepath.Join(dir, module)}, pySuffixes)
	}
	return r.probe(r.bases(module, filepath.Dir(from)), pySuffixes)
}

// --- Rust ---

var rsSuffixes = []string{".rs", "/mod.rs"}

func (r *Resolver) resolveRust(spec, from string) (string, bool) {
	// "crate::model::{Repository, User}" → "crate::model"
	if idx := strings.Index(spec, "::{"); idx != -1 {
		spec = spec[:idx]
	}

	var dirs []string
	var rest string
	switch {
	case strings.HasPrefix(spec, "crate::"):
		rest = strings.TrimPrefix(spec, "crate::")
		if crate := findCrateRoot(from); crate != "" {
			dirs = append(dirs, crate)
		}
		dirs = append(dirs, filepath.Join(r.root, "src"))
	case strings.HasPrefix(spec, "self::"):
		rest = strings.TrimPrefix(spec, "self::")
		dirs = append(dirs, filepath.Dir(from))
	case strings.HasPrefix(spec, "super::"):
		rest = strings.TrimPrefix(spec, "super::")
		dirs = append(dirs, filepath.Dir(filepath.Dir(from)))
	default:
		return "", false // external crate
	}

	// "crate::db::Pool" may name an item inside db.rs, so drop trailing
	// segments until a module file matches.
	segs := strings.Split(rest, "::")
	for _, dir := range dirs {
		for n := len(segs); n > 0; n-- {
			base := filepath.Join(append([]string{dir}, segs[:n]...)...)
			if hit, ok := r.probe([]string{base}, rsSuffixes); ok {
				return hit, true
			}
		}
	}
	return "", false
}

// findCrateRoot walks up from a file path to the nearest "src" directory,
// the conventional Rust crate source root.
func findCrateRoot(filePath string) string {
	dir := filepath.Dir(filePath)
	for dir != "." && dir != string(filepath.Separator) && dir != "" {
		if filepath.Base(dir) == "src" {
			return dir
		}
		dir = filepath.Dir(dir)
	}
	return ""
}

// readGoModule returns the module path declared in go.mod, or "".
func readGoModule(fsys source.FileSystem, path string) string {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return ""
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "module ") {
			return strings.Trim(strings.TrimSpace(strings.TrimPrefix(line, "module")), "\"")
		}
	}
	return ""
}
