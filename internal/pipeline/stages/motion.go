package stages

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/tmattsson/photocurator/internal/pipeline"
)

// motionSignatures are MP4 ftyp box brand markers that indicate an embedded
// video trails the JPEG data in a Google Motion Photo.
var motionSignatures = [][]byte{
	[]byte("ftypmp4"),
	[]byte("ftypisom"),
	[]byte("ftypmp42"),
	[]byte("ftypavc1"),
}

// motionTailScan bounds how much of the file's end is scanned for an
// embedded MP4 signature, avoiding a full read of large originals.
const motionTailScan = 4 * 1024 * 1024

// MotionMediaWriter stores the extracted motion video clip.
type MotionMediaWriter interface {
	MotionVideoPath(key string) string
	CreateMotionVideoTemp(pattern string) (*os.File, error)
	PublishTemp(tempAbsPath, relativePath string) error
}

// MotionWriter persists the motion-photo flag and extracted video path.
type MotionWriter interface {
	SetMotionPhotoFlag(ctx context.Context, key string, isMotion bool) error
	SetMotionVideo(ctx context.Context, key string, path string) error
}

// NewMotionEnricher builds the Motion stage enricher. It scans the tail of
// the source file for an embedded MP4 signature; if found, it extracts the
// trailing bytes to a standalone video file. Motion is an optional stage:
// items with no embedded video are a no-op, not a failure.
func NewMotionEnricher(resolver ItemFileResolver, media MotionMediaWriter, writer MotionWriter) pipeline.Enricher {
	return func(ctx context.Context, key string) (pipeline.EnrichOutcome, error) {
		path, ok, err := resolver.ResolvePath(ctx, key)
		if err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("resolving path for %s: %w", key, err)
		}
		if !ok {
			return pipeline.EnrichNoop, fmt.Errorf("no path for item %s", key)
		}

		videoData, found, err := findEmbeddedVideo(path)
		if err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("scanning %s for motion video: %w", path, err)
		}
		if !found {
			if err := writer.SetMotionPhotoFlag(ctx, key, false); err != nil {
				return pipeline.EnrichNoop, fmt.Errorf("clearing motion flag for %s: %w", key, err)
			}
			return pipeline.EnrichNoop, nil
		}

		tmp, err := media.CreateMotionVideoTemp("motion-*.mp4")
		if err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("creating temp file for %s: %w", key, err)
		}
		tmpPath := tmp.Name()
		if _, err := tmp.Write(videoData); err != nil {
			tmp.Close()
			return pipeline.EnrichNoop, fmt.Errorf("writing motion video for %s: %w", key, err)
		}
		if err := tmp.Close(); err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("closing temp file for %s: %w", key, err)
		}

		relPath := media.MotionVideoPath(key)
		if err := media.PublishTemp(tmpPath, relPath); err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("publishing motion video for %s: %w", key, err)
		}

		if err := writer.SetMotionPhotoFlag(ctx, key, true); err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("setting motion flag for %s: %w", key, err)
		}
		if err := writer.SetMotionVideo(ctx, key, relPath); err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("setting motion video path for %s: %w", key, err)
		}
		return pipeline.EnrichSuccess, nil
	}
}

// findEmbeddedVideo looks for an MP4 ftyp box signature in the last
// motionTailScan bytes of path. The ftyp box is [4-byte size][4-byte
// 'ftyp'][brand], so a signature match is offset 4 bytes into the box.
func findEmbeddedVideo(path string) ([]byte, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, false, err
	}

	start := int64(0)
	if info.Size() > motionTailScan {
		start = info.Size() - motionTailScan
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return nil, false, err
	}

	tail, err := io.ReadAll(f)
	if err != nil {
		return nil, false, err
	}

	var boxOffset = -1
	for _, sig := range motionSignatures {
		idx := bytes.Index(tail, sig)
		if idx >= 4 {
			boxOffset = idx - 4
			break
		}
	}
	if boxOffset < 0 {
		return nil, false, nil
	}

	videoData := tail[boxOffset:]
	if len(videoData) < 8 {
		return nil, false, nil
	}
	return videoData, true, nil
}
