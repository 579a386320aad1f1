package source

import (
	"path/filepath"
	"strings"
)

// Kind classifies a tracked file for task-type selection and estimation.
type Kind int

const (
	KindOther Kind = iota
	KindSource
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindConfig:
		return "config"
	default:
		return "other"
	}
}

// defaultIgnoredDirs are never descended into, whatever the config says.
var defaultIgnoredDirs = map[string]bool{
	".git":     true,
	".hg":      true,
	".svn":     true,
	".idea":    true,
	".vscode":  true,
	".cache":   true,
	".venv":    true,
	"bin":      true,
	"obj":      true,
	"coverage": true,
}

// Classifier maps paths to kinds and decides what is tracked.
type Classifier struct {
	source   map[string]bool
	config   map[string]bool
	tracked  map[string]bool
	excluded map[string]bool
}

// NewClassifier builds a Classifier. Extensions are matched case-insensitively
// and include the leading dot.
func NewClassifier(sourceExts, configExts, extraExts, excludeDirs []string) *Classifier {
	c := &Classifier{
		source:   toSet(sourceExts),
		config:   toSet(configExts),
		tracked:  toSet(append(append(append([]string{}, sourceExts...), configExts...), extraExts...)),
		excluded: make(map[string]bool, len(excludeDirs)),
	}
	for _, d := range excludeDirs {
		c.excluded[d] = true
	}
	return c
}

// Kind returns the kind of path based on its extension.
func (c *Classifier) Kind(path string) Kind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case c.source[ext]:
		return KindSource
	case c.config[ext]:
		return KindConfig
	default:
		return KindOther
	}
}

// Tracked reports whether path has a tracked extension.
func (c *Classifier) Tracked(path string) bool {
	return c.tracked[strings.ToLower(filepath.Ext(path))]
}

// SkipDir reports whether a directory with the given base name is excluded.
func (c *Classifier) SkipDir(name string) bool {
	return defaultIgnoredDirs[name] || c.excluded[name]
}

func toSet(exts []string) map[string]bool {
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		m[strings.ToLower(e)] = true
	}
	return m
}
