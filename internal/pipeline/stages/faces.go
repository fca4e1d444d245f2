package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/tmattsson/photocurator/internal/pipeline"
	"github.com/tmattsson/photocurator/pkg/httpclient"
)

// DetectedFace is one face detection result from the embedding backend.
type DetectedFace struct {
	Embedding []float64
	BBoxX     float64
	BBoxY     float64
	BBoxW     float64
	BBoxH     float64
}

// FaceWriter persists the faces detected for an item and the faces
// completion flag, in one call so the two never drift out of sync.
type FaceWriter interface {
	ReplaceFaces(ctx context.Context, key string, faces []DetectedFace) error
	SetFacesDetected(ctx context.Context, key string) error
}

// faceDetectResponse is the subset of fields read from the face-embedding
// backend's JSON response.
type faceDetectResponse struct {
	Faces []struct {
		Embedding []float64 `json:"embedding"`
		BBox      []float64 `json:"bbox"` // [x, y, w, h], normalized 0-1
	} `json:"faces"`
}

// NewFacesEnricher builds the Faces stage enricher. It posts the source
// image to a face-embedding backend and persists each detected face's
// embedding and bounding box. Faces is optional: a backend that finds
// nothing, or isn't configured, is a no-op rather than a failure.
func NewFacesEnricher(resolver ItemFileResolver, writer FaceWriter, client *httpclient.Client, endpointURL string) pipeline.Enricher {
	return func(ctx context.Context, key string) (pipeline.EnrichOutcome, error) {
		if endpointURL == "" {
			return pipeline.EnrichNoop, nil
		}

		path, ok, err := resolver.ResolvePath(ctx, key)
		if err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("resolving path for %s: %w", key, err)
		}
		if !ok {
			return pipeline.EnrichNoop, fmt.Errorf("no path for item %s", key)
		}

		body, contentType, err := buildImageUpload(path)
		if err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("preparing upload for %s: %w", key, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, body)
		if err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("building face request for %s: %w", key, err)
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := client.DoWithContext(ctx, req)
		if err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("calling face backend for %s: %w", key, err)
		}
		defer resp.Body.Close()

		var decoded faceDetectResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("decoding face response for %s: %w", key, err)
		}

		faces := make([]DetectedFace, 0, len(decoded.Faces))
		for _, f := range decoded.Faces {
			df := DetectedFace{Embedding: f.Embedding}
			if len(f.BBox) == 4 {
				df.BBoxX, df.BBoxY, df.BBoxW, df.BBoxH = f.BBox[0], f.BBox[1], f.BBox[2], f.BBox[3]
			}
			faces = append(faces, df)
		}

		if err := writer.ReplaceFaces(ctx, key, faces); err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("saving faces for %s: %w", key, err)
		}
		if err := writer.SetFacesDetected(ctx, key); err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("marking faces detected for %s: %w", key, err)
		}
		if len(faces) == 0 {
			return pipeline.EnrichNoop, nil
		}
		return pipeline.EnrichSuccess, nil
	}
}

// buildImageUpload multipart-encodes the file at path for upload to an
// image-processing backend (the face-embedding backend; captioning sends
// its image base64-encoded in JSON instead).
func buildImageUpload(path string) (*bytes.Buffer, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile("file", path)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.ReadFrom(f); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}
