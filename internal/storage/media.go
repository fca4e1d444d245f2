package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Asset identifies the kind of derived artifact a MediaStore writes.
// Each asset type has its own subdirectory and naming convention per the
// on-disk layout: thumbs/<key[:2]>/<key>_<size>.webp, faces/<key[:2]>/<key>_face<i>.webp,
// motion_videos/<key[:2]>/<key>_motion.mp4. Motion videos are named by
// item key, not by the source file's name.
type Asset string

const (
	// AssetThumbnail is a resized preview image for an item.
	AssetThumbnail Asset = "thumbs"
	// AssetFaceCrop is a cropped face image extracted from an item.
	AssetFaceCrop Asset = "faces"
	// AssetMotionVideo is the video clip extracted from a motion photo.
	AssetMotionVideo Asset = "motion_videos"
)

// MediaStore manages derived photo artifacts (thumbnails, face crops, motion
// videos) under the data directory, sharded by the first two characters of
// the item key to keep any single directory from growing unbounded.
type MediaStore struct {
	sandbox *Sandbox
}

// NewMediaStore creates a MediaStore rooted at the given base directory,
// pre-creating the thumbnail, face crop, and motion video subdirectories.
func NewMediaStore(baseDir string) (*MediaStore, error) {
	sandbox, err := NewSandbox(baseDir)
	if err != nil {
		return nil, fmt.Errorf("creating sandbox: %w", err)
	}

	for _, asset := range []Asset{AssetThumbnail, AssetFaceCrop, AssetMotionVideo} {
		if err := sandbox.MkdirAll(string(asset)); err != nil {
			return nil, fmt.Errorf("creating %s directory: %w", asset, err)
		}
	}

	return &MediaStore{sandbox: sandbox}, nil
}

// shard returns the first two characters of key, used as a sharding
// directory to bound per-directory file counts.
func shard(key string) string {
	if len(key) > 2 {
		return key[:2]
	}
	return key
}

// ThumbnailPath returns the relative path for a thumbnail of the given size
// (e.g. "256" or "1024") derived from item key.
func (m *MediaStore) ThumbnailPath(key string, size string) string {
	name := fmt.Sprintf("%s_%s.webp", key, size)
	return filepath.Join(string(AssetThumbnail), shard(key), name)
}

// FaceCropPath returns the relative path for the i-th face crop of item key.
func (m *MediaStore) FaceCropPath(key string, faceIndex int) string {
	name := fmt.Sprintf("%s_face%d.webp", key, faceIndex)
	return filepath.Join(string(AssetFaceCrop), shard(key), name)
}

// MotionVideoPath returns the relative path for the extracted motion video
// of item key.
func (m *MediaStore) MotionVideoPath(key string) string {
	name := fmt.Sprintf("%s_motion.mp4", key)
	return filepath.Join(string(AssetMotionVideo), shard(key), name)
}

// Store writes data to the given relative path atomically.
func (m *MediaStore) Store(relativePath string, data []byte) error {
	if err := m.sandbox.AtomicWrite(relativePath, data); err != nil {
		return fmt.Errorf("writing media asset: %w", err)
	}
	return nil
}

// StoreReader writes the contents of r to the given relative path atomically.
func (m *MediaStore) StoreReader(relativePath string, r io.Reader) error {
	if err := m.sandbox.AtomicWriteReader(relativePath, r); err != nil {
		return fmt.Errorf("writing media asset: %w", err)
	}
	return nil
}

// Get opens a media asset for reading.
func (m *MediaStore) Get(relativePath string) (*os.File, error) {
	return m.sandbox.OpenFile(relativePath, os.O_RDONLY, 0)
}

// GetBytes reads a media asset in full.
func (m *MediaStore) GetBytes(relativePath string) ([]byte, error) {
	return m.sandbox.ReadFile(relativePath)
}

// Exists reports whether a media asset exists.
func (m *MediaStore) Exists(relativePath string) (bool, error) {
	return m.sandbox.Exists(relativePath)
}

// Delete removes a media asset.
func (m *MediaStore) Delete(relativePath string) error {
	err := m.sandbox.Remove(relativePath)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// AbsolutePath resolves a relative media path to an absolute filesystem path.
func (m *MediaStore) AbsolutePath(relativePath string) (string, error) {
	return m.sandbox.ResolvePath(relativePath)
}

// BaseDir returns the absolute path to the media store's base directory.
func (m *MediaStore) BaseDir() string {
	return m.sandbox.BaseDir()
}

// CreateMotionVideoTemp creates a temporary file under the sandbox's temp
// directory for in-progress motion video extraction, to be published via
// PublishTemp once complete.
func (m *MediaStore) CreateMotionVideoTemp(pattern string) (*os.File, error) {
	return m.sandbox.CreateTemp("temp", pattern)
}

// PublishTemp atomically moves a completed temporary file into its final
// relative location within the store.
func (m *MediaStore) PublishTemp(tempAbsPath, relativePath string) error {
	if err := m.sandbox.AtomicPublish(tempAbsPath, relativePath); err != nil {
		return fmt.Errorf("publishing media asset: %w", err)
	}
	return nil
}

// CleanupEmptyDirs removes empty shard subdirectories left behind after
// asset deletion.
func (m *MediaStore) CleanupEmptyDirs() error {
	for _, asset := range []Asset{AssetThumbnail, AssetFaceCrop, AssetMotionVideo} {
		if err := m.cleanupEmptyDirsUnder(string(asset)); err != nil {
			return err
		}
	}
	return nil
}

func (m *MediaStore) cleanupEmptyDirsUnder(relDir string) error {
	absDir, err := m.sandbox.ResolvePath(relDir)
	if err != nil {
		return err
	}

	var emptyDirs []string
	err = filepath.Walk(absDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() || path == absDir {
			return nil
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil
		}
		if len(entries) == 0 {
			emptyDirs = append(emptyDirs, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", relDir, err)
	}

	for i := len(emptyDirs) - 1; i >= 0; i-- {
		if err := os.Remove(emptyDirs[i]); err != nil {
			continue
		}
	}
	return nil
}
