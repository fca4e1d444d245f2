package stages

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/tmattsson/photocurator/internal/pipeline"
	"github.com/tmattsson/photocurator/pkg/httpclient"
)

// CaptionWriter persists a generated caption and tag list.
type CaptionWriter interface {
	SetCaption(ctx context.Context, key string, caption, tags *string) error
}

// captionRequest matches an Ollama-style /api/generate multimodal request.
type captionRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Stream bool     `json:"stream"`
}

// captionResponse matches an Ollama-style /api/generate response.
type captionResponse struct {
	Response string `json:"response"`
}

const captionPrompt = "Describe this photo in one sentence, then list relevant tags " +
	"as a comma-separated list on a second line."

// NewCaptioningEnricher builds the Captioning stage enricher. It sends the
// source image, base64-encoded, to a vision-capable model backend and
// parses the response into a caption and tag list. Captioning is optional:
// an unconfigured endpoint is a no-op.
func NewCaptioningEnricher(resolver ItemFileResolver, writer CaptionWriter, client *httpclient.Client, endpointURL, model string) pipeline.Enricher {
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

		data, err := os.ReadFile(path)
		if err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("reading %s: %w", path, err)
		}

		reqBody := captionRequest{
			Model:  model,
			Prompt: captionPrompt,
			Images: []string{base64.StdEncoding.EncodeToString(data)},
			Stream: false,
		}
		payload, err := json.Marshal(reqBody)
		if err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("encoding caption request for %s: %w", key, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(payload))
		if err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("building caption request for %s: %w", key, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.DoWithContext(ctx, req)
		if err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("calling caption backend for %s: %w", key, err)
		}
		defer resp.Body.Close()

		var decoded captionResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("decoding caption response for %s: %w", key, err)
		}

		caption, tags := splitCaptionResponse(decoded.Response)
		if caption == "" {
			return pipeline.EnrichNoop, nil
		}

		var tagsPtr *string
		if tags != "" {
			tagsPtr = &tags
		}
		if err := writer.SetCaption(ctx, key, &caption, tagsPtr); err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("saving caption for %s: %w", key, err)
		}
		return pipeline.EnrichSuccess, nil
	}
}

// splitCaptionResponse separates the model's free-text response into a
// caption (first line) and a comma-separated tag list (remaining lines).
func splitCaptionResponse(response string) (caption, tags string) {
	lines := strings.SplitN(strings.TrimSpace(response), "\n", 2)
	caption = strings.TrimSpace(lines[0])
	if len(lines) > 1 {
		tags = strings.TrimSpace(lines[1])
	}
	return caption, tags
}
