package change

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/codesweep/internal/source"
)

// Entry is the last known state of a tracked file.
type Entry struct {
	Hash string
	Size int64
}

// Options configures a Detector.
type Options struct {
	// MaxTrackedFiles caps one DetectChanges pass. Zero means 10000.
	MaxTrackedFiles int
	// HashCacheSize bounds the path→hash table. Zero means 50000. It is
	// raised to MaxTrackedFiles if smaller.
	HashCacheSize int
	// Workers bounds concurrent file reads. Zero means 4.
	Workers int
	Logger  *zap.Logger
	// Now is the clock used for record timestamps; nil means time.Now.
	Now func() time.Time
}

// Scan is the outcome of one detection pass.
type Scan struct {
	Changes []FileChangeRecord
	// Unchanged lists inspected paths whose hash matched the stored one.
	Unchanged []string
	// Discovered counts tracked files found before truncation.
	Discovered int
	Warnings   []string
}

// Detector classifies files as added, modified or deleted by comparing
// content hashes against the table from the previous pass.
type Detector struct {
	fsys       source.FileSystem
	classifier *source.Classifier
	hashes     *lru.Cache[string, Entry]
	maxTracked int
	workers    int
	logger     *zap.Logger
	now        func() time.Time

	mu sync.Mutex // serializes passes
}

// NewDetector creates a Detector reading through fsys.
func NewDetector(fsys source.FileSystem, classifier *source.Classifier, opts Options) (*Detector, error) {
	if opts.MaxTrackedFiles <= 0 {
		opts.MaxTrackedFiles = 10000
	}
	if opts.HashCacheSize <= 0 {
		opts.HashCacheSize = 50000
	}
	// Evicting a hash the current pass still needs would turn an unchanged
	// file into an add on the next pass.
	opts.HashCacheSize = max(opts.HashCacheSize, opts.MaxTrackedFiles)
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	cache, err := lru.New[string, Entry](opts.HashCacheSize)
	if err != nil {
		return nil, fmt.Errorf("detector: hash cache: %w", err)
	}
	return &Detector{
		fsys:       fsys,
		classifier: classifier,
		hashes:     cache,
		maxTracked: opts.MaxTrackedFiles,
		workers:    opts.Workers,
		logger:     opts.Logger.Named("detector"),
		now:        opts.Now,
	}, nil
}

// DetectChanges enumerates tracked files under root and classifies each
// against the stored hash table. Tracked paths under root that are no longer
// present are reported Deleted and forgotten.
func (d *Detector) DetectChanges(ctx context.Context, root string) (*Scan, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	root = filepath.Clean(root)
	var paths []string
	err := d.fsys.Walk(root, d.classifier.SkipDir, d.classifier.Tracked, func(p string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("detector: walk %s: %w", root, err)
	}
	sort.Strings(paths)

	scan := &Scan{Discovered: len(paths)}
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		seen[p] = true
	}
	if len(paths) > d.maxTracked {
		msg := fmt.Sprintf("tracked file cap exceeded: found %d, analyzing first %d", len(paths), d.maxTracked)
		d.logger.Warn("tracked file cap exceeded",
			zap.Int("found", len(paths)), zap.Int("cap", d.maxTracked))
		scan.Warnings = append(scan.Warnings, msg)
		paths = paths[:d.maxTracked]
	}

	if err := d.classify(ctx, paths, scan); err != nil {
		return nil, err
	}

	prefix := root + string(filepath.Separator)
	var gone []string
	for _, p := range d.hashes.Keys() {
		if strings.HasPrefix(p, prefix) && !seen[p] {
			gone = append(gone, p)
		}
	}
	sort.Strings(gone)
	for _, p := range gone {
		scan.Changes = append(scan.Changes, d.deleted(p))
	}
	return scan, nil
}

// ProcessChangedFiles classifies only the given paths. A previously tracked
// path that no longer exists is reported Deleted; an unknown missing path
// yields nothing.
func (d *Detector) ProcessChangedFiles(ctx context.Context, paths []string) (*Scan, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	scan := &Scan{}
	var present []string
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		p = filepath.Clean(p)
		if seen[p] {
			continue
		}
		seen[p] = true

		info, err := d.fsys.Stat(p)
		switch {
		case err != nil && source.IsNotExist(err):
			if _, ok := d.hashes.Peek(p); ok {
				scan.Changes = append(scan.Changes, d.deleted(p))
			}
		case err != nil:
			d.logger.Warn("stat failed, skipping", zap.String("path", p), zap.Error(err))
		case info.IsDir || !d.classifier.Tracked(p):
			continue
		default:
			present = append(present, p)
		}
	}
	sort.Strings(present)
	scan.Discovered = len(present)
	if err := d.classify(ctx, present, scan); err != nil {
		return nil, err
	}
	return scan, nil
}

// classify hashes paths concurrently and appends Added/Modified records in
// path order. Unreadable files are logged and skipped.
func (d *Detector) classify(ctx context.Context, paths []string, scan *Scan) error {
	type hashed struct {
		entry Entry
		ok    bool
	}
	results := make([]hashed, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, err := d.fsys.ReadFile(p)
			if err != nil {
				d.logger.Warn("unreadable file skipped", zap.String("path", p), zap.Error(err))
				return nil
			}
			results[i] = hashed{entry: Entry{Hash: HashContent(content), Size: int64(len(content))}, ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("detector: hash: %w", err)
	}

	now := d.now()
	for i, p := range paths {
		r := results[i]
		if !r.ok {
			continue
		}
		old, known := d.hashes.Get(p)
		switch {
		case !known:
			scan.Changes = append(scan.Changes, FileChangeRecord{
				Path: p, NewHash: r.entry.Hash, Type: ChangeAdded,
				Size: r.entry.Size, Timestamp: now, AnalysisRequired: true,
			})
		case old.Hash != r.entry.Hash:
			scan.Changes = append(scan.Changes, FileChangeRecord{
				Path: p, OldHash: old.Hash, NewHash: r.entry.Hash, Type: ChangeModified,
				Size: r.entry.Size, Timestamp: now, AnalysisRequired: true,
			})
		default:
			scan.Unchanged = append(scan.Unchanged, p)
		}
		d.hashes.Add(p, r.entry)
	}
	return nil
}

func (d *Detector) deleted(p string) FileChangeRecord {
	old, _ := d.hashes.Peek(p)
	d.hashes.Remove(p)
	return FileChangeRecord{
		Path: p, OldHash: old.Hash, Type: ChangeDeleted,
		Timestamp: d.now(), AnalysisRequired: true,
	}
}

// Entry returns the stored state of path.
func (d *Detector) Entry(path string) (Entry, bool) {
	return d.hashes.Peek(path)
}

// Len returns the number of tracked paths.
func (d *Detector) Len() int {
	return d.hashes.Len()
}

// Hashes returns a snapshot of the path→hash table for persistence.
func (d *Detector) Hashes() map[string]string {
	out := make(map[string]string, d.hashes.Len())
	for _, k := range d.hashes.Keys() {
		if e, ok := d.hashes.Peek(k); ok {
			out[k] = e.Hash
		}
	}
	return out
}

// Restore seeds the table from a persisted snapshot. Sizes are unknown
// until the next pass reads the files.
func (d *Detector) Restore(hashes map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for p, h := range hashes {
		d.hashes.Add(p, Entry{Hash: h})
	}
}
