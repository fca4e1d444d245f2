// Package discovery implements the directory walk producer: a full
// filesystem scan of the photo tree that indexes new and moved files into
// the store and admits unfinished items to the pipeline's Discovery stage.
//
// Paths are stored and compared as absolute filesystem paths throughout —
// the same convention pipeline.ItemResolver uses to open source files
// directly, with no root to rejoin.
package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tmattsson/photocurator/internal/models"
	"github.com/tmattsson/photocurator/internal/pipeline"
)

// hashBufferSize bounds the read chunk used for content hashing.
const hashBufferSize = 64 * 1024

// mtimeTolerance accounts for filesystem timestamp precision loss when
// comparing a stat'd mtime against the stored one.
const mtimeTolerance = time.Second

// ItemStore is the subset of ItemRepository the Discovery producer needs.
type ItemStore interface {
	GetByKey(ctx context.Context, key string) (*models.Item, error)
	FindByPath(ctx context.Context, path string) (*models.ItemPath, *models.Item, error)
	AddPath(ctx context.Context, key, path string, isPrimary bool) error
	RepointPrimaryPath(ctx context.Context, key, newPath string) error
	Upsert(ctx context.Context, item *models.Item) error
	AllPaths(ctx context.Context) ([]models.ItemPath, error)
	DeletePath(ctx context.Context, key, path string) error
}

// Admitter admits a discovered file to the pipeline.
type Admitter interface {
	AddFile(key, path string) pipeline.AdmitOutcome
}

// Stats summarizes one completed scan.
type Stats struct {
	Total   int
	New     int
	Updated int
	Skipped int
	Errors  int
	Removed int
}

// ProgressFunc is notified as a scan advances, for the Telemetry
// Publisher's scan-state snapshot.
type ProgressFunc func(totalFiles, processedFiles int, currentPath string)

// Scanner walks a photo directory tree, indexing files into the store and
// admitting unfinished ones to the pipeline.
type Scanner struct {
	store      ItemStore
	orch       Admitter
	extensions map[string]bool
	maxSize    int64
	batchSize  int
	logger     *slog.Logger
	onProgress ProgressFunc
}

// SetProgressHook installs fn to be called once the walk's total file count
// is known and again after every file is indexed during Scan. Nil disables
// progress reporting (the default); IndexFile, the watcher's single-file
// path, never calls it.
func (s *Scanner) SetProgressHook(fn ProgressFunc) {
	s.onProgress = fn
}

// New builds a Scanner. extensions are lowercase, without the leading dot.
func New(store ItemStore, orch Admitter, extensions []string, maxSourceFileSize int64, batchSize int, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize < 1 {
		batchSize = 1
	}
	extSet := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		extSet[strings.ToLower(e)] = true
	}
	return &Scanner{
		store:      store,
		orch:       orch,
		extensions: extSet,
		maxSize:    maxSourceFileSize,
		batchSize:  batchSize,
		logger:     logger,
	}
}

// Scan walks root, indexing every supported photo file it finds. cancel, if
// non-nil, is polled between batches; a cancelled scan skips the
// garbage-collection pass, since a partial walk has not seen every path and
// would otherwise delete records for files it simply never got to.
func (s *Scanner) Scan(ctx context.Context, root string, cancel func() bool) (Stats, error) {
	var stats Stats
	cancelled := false

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return stats, fmt.Errorf("resolving absolute root %s: %w", root, err)
	}

	var files []string
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort walk: skip unreadable entries
		}
		if d.IsDir() {
			return nil
		}
		if s.isSupported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("walking %s: %w", absRoot, err)
	}
	stats.Total = len(files)
	if s.onProgress != nil {
		s.onProgress(stats.Total, 0, "")
	}

	processed := 0
	for i := 0; i < len(files); i += s.batchSize {
		if cancel != nil && cancel() {
			s.logger.Info("scan cancelled by user")
			cancelled = true
			break
		}
		end := i + s.batchSize
		if end > len(files) {
			end = len(files)
		}
		for _, path := range files[i:end] {
			outcome, key, indexErr := s.indexFile(ctx, path)
			if indexErr != nil {
				stats.Errors++
				s.logger.Warn("error indexing file", slog.String("path", path), slog.String("error", indexErr.Error()))
			} else {
				switch outcome {
				case outcomeNew:
					stats.New++
				case outcomeUpdated:
					stats.Updated++
				case outcomeUnchanged:
					stats.Skipped++
				}
				if outcome != outcomeUnchanged && key != "" {
					s.orch.AddFile(key, path)
				}
			}
			processed++
			if s.onProgress != nil {
				s.onProgress(stats.Total, processed, path)
			}
		}
	}

	if !cancelled {
		removed, err := s.cleanupRemovedFiles(ctx)
		if err != nil {
			return stats, fmt.Errorf("cleaning up removed files: %w", err)
		}
		stats.Removed = removed
	}

	return stats, nil
}

// IndexFile applies the same three-outcome contract as Scan to a single
// path, outside of a full directory walk. It is the entry point the live
// filesystem watcher uses to index one changed file without re-walking the
// whole tree. Unsupported extensions are silently ignored.
func (s *Scanner) IndexFile(ctx context.Context, path string) (Stats, error) {
	var stats Stats
	if !s.isSupported(path) {
		return stats, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return stats, fmt.Errorf("resolving absolute path %s: %w", path, err)
	}

	outcome, key, err := s.indexFile(ctx, absPath)
	if err != nil {
		stats.Errors = 1
		return stats, err
	}
	switch outcome {
	case outcomeNew:
		stats.New = 1
		stats.Total = 1
	case outcomeUpdated:
		stats.Updated = 1
		stats.Total = 1
	case outcomeUnchanged:
		stats.Skipped = 1
		stats.Total = 1
	}
	if outcome != outcomeUnchanged && key != "" {
		s.orch.AddFile(key, absPath)
	}
	return stats, nil
}

type indexOutcome int

const (
	outcomeUnchanged indexOutcome = iota
	outcomeUpdated
	outcomeNew
)

// indexFile applies the three-outcome contract: unchanged (size+mtime
// match), known-content-new-path (hash matches an existing item under a
// different path), or new content (fresh hash, fresh item). path must be
// absolute.
func (s *Scanner) indexFile(ctx context.Context, path string) (indexOutcome, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return outcomeUnchanged, "", err
	}
	if s.maxSize > 0 && info.Size() > s.maxSize {
		s.logger.Debug("skipping oversized file", slog.String("path", path), slog.Int64("size", info.Size()))
		return outcomeUnchanged, "", nil
	}

	existingPath, existingItem, err := s.store.FindByPath(ctx, path)
	if err != nil {
		return outcomeUnchanged, "", err
	}
	if existingPath != nil && existingItem != nil {
		if existingItem.Size == info.Size() &&
			absDuration(existingItem.MTime.Sub(info.ModTime())) < mtimeTolerance {
			return outcomeUnchanged, existingItem.ItemKey, nil
		}
	}

	key, err := hashFile(path)
	if err != nil {
		return outcomeUnchanged, "", err
	}

	item, err := s.store.GetByKey(ctx, key)
	if err != nil {
		return outcomeUnchanged, "", err
	}
	if item != nil {
		if existingPath == nil {
			if err := s.store.AddPath(ctx, key, path, false); err != nil {
				return outcomeUnchanged, "", err
			}
		}
		if _, statErr := os.Stat(item.PrimaryPath); os.IsNotExist(statErr) {
			if err := s.store.RepointPrimaryPath(ctx, key, path); err != nil {
				return outcomeUnchanged, "", err
			}
		}
		return outcomeUpdated, key, nil
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	newItem := &models.Item{
		ItemKey:     key,
		PrimaryPath: path,
		Size:        info.Size(),
		MTime:       info.ModTime(),
		MimeType:    mimeType,
	}
	if sidecar, ok := findMotionSidecar(path); ok {
		newItem.MotionPhoto = true
		newItem.MotionVideoPath = &sidecar
	}
	if err := s.store.Upsert(ctx, newItem); err != nil {
		return outcomeUnchanged, "", err
	}
	if err := s.store.AddPath(ctx, key, path, true); err != nil {
		return outcomeUnchanged, "", err
	}
	return outcomeNew, key, nil
}

// motionSidecarExtensions are the case variants checked for an Apple Live
// Photo companion video alongside a photo of the same base name.
var motionSidecarExtensions = []string{".mov", ".MOV"}

// findMotionSidecar looks for a same-name .mov video next to path, the Apple
// Live Photo convention. Unlike a Google Motion Photo's embedded video
// (extracted by the Motion stage into a relative path under the data
// directory), a sidecar already lives in the source tree, so its path is
// recorded absolute like every other path this package stores.
func findMotionSidecar(path string) (string, bool) {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for _, ext := range motionSidecarExtensions {
		candidate := base + ext
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

func (s *Scanner) isSupported(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return s.extensions[ext]
}

// RemovePath deletes the path record for a file the watcher observed
// disappear from disk. It is a no-op (not an error) for a path the store
// never knew about.
func (s *Scanner) RemovePath(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving absolute path %s: %w", path, err)
	}
	itemPath, _, err := s.store.FindByPath(ctx, absPath)
	if err != nil {
		return err
	}
	if itemPath == nil {
		return nil
	}
	return s.store.DeletePath(ctx, itemPath.ItemKey, absPath)
}

// cleanupRemovedFiles deletes path records whose backing file no longer
// exists on disk, run after a (non-cancelled) full scan.
func (s *Scanner) cleanupRemovedFiles(ctx context.Context) (int, error) {
	paths, err := s.store.AllPaths(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, p := range paths {
		if _, err := os.Stat(p.Path); os.IsNotExist(err) {
			if err := s.store.DeletePath(ctx, p.ItemKey, p.Path); err != nil {
				s.logger.Warn("failed to delete stale path", slog.String("path", p.Path), slog.String("error", err.Error()))
				continue
			}
			removed++
		}
	}
	return removed, nil
}

// hashFile computes the SHA-256 content hash used as an item's content key.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashBufferSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ScannerAdapter adapts *Scanner to watcher.Indexer: the watcher only needs
// to know whether indexing a single path succeeded, not the Stats a full
// Scan accumulates.
type ScannerAdapter struct {
	*Scanner
}

// IndexFile discards the Stats return of Scanner.IndexFile.
func (a ScannerAdapter) IndexFile(ctx context.Context, path string) error {
	_, err := a.Scanner.IndexFile(ctx, path)
	return err
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
