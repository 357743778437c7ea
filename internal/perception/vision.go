package perception

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mnemosyne/brain/internal/guard"
	"github.com/mnemosyne/brain/internal/logging"
	"github.com/mnemosyne/brain/internal/model"
)

// VRAMLimitSentinel is the marker text stored for an item the vision batch
// could not serve due to an out-of-memory backend failure (spec section
// 4.6 and 9).
const VRAMLimitSentinel = "[VRAM Limit] Skipped"

// ErrOutOfMemory is returned by an in-process backend's load or infer step
// when the GPU ran out of memory.
var ErrOutOfMemory = errors.New("perception: vision backend out of memory")

// VisionItem is one unit of vision-model work: a screenshot path, the
// prompt to send alongside it, and an optional ROI to crop to first.
type VisionItem struct {
	ScreenshotPath string
	Prompt         string
	ROI            *model.ROI
}

// VisionResult is the outcome for one VisionItem.
type VisionResult struct {
	Description string
	Skipped     bool
}

// VisionBackend serves a batch of vision items. Two backends are supported
// (spec section 4.6): an external HTTP model server, and an in-process
// backend that loads/unloads a quantized model around the batch.
type VisionBackend interface {
	RunBatch(ctx context.Context, items []VisionItem) []VisionResult
}

// ExternalVisionBackend posts each image, base64-encoded, to a local HTTP
// vision model server. It never loads or unloads a model itself.
type ExternalVisionBackend struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewExternalVisionBackend builds a client against a local HTTP vision
// model server.
func NewExternalVisionBackend(endpoint, modelName string) *ExternalVisionBackend {
	return &ExternalVisionBackend{
		endpoint: endpoint,
		model:    modelName,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type visionRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Images []string `json:"images"`
}

type visionResponse struct {
	Response string `json:"response"`
}

// RunBatch serves each item independently via the HTTP backend, retrying
// transient failures with exponential backoff (spec section 3 domain
// stack).
func (b *ExternalVisionBackend) RunBatch(ctx context.Context, items []VisionItem) []VisionResult {
	results := make([]VisionResult, len(items))
	for i, item := range items {
		desc, err := b.runOne(ctx, item)
		if err != nil {
			logging.Debug().Err(err).Str("path", item.ScreenshotPath).Msg("perception: vision backend call failed")
			results[i] = VisionResult{Skipped: true, Description: ""}
			continue
		}
		results[i] = VisionResult{Description: desc}
	}
	return results
}

func (b *ExternalVisionBackend) runOne(ctx context.Context, item VisionItem) (string, error) {
	data, err := os.ReadFile(item.ScreenshotPath)
	if err != nil {
		return "", fmt.Errorf("read screenshot: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(data)

	reqBody, err := json.Marshal(visionRequest{Model: b.model, Prompt: item.Prompt, Images: []string{encoded}})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	var out visionResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/api/generate", bytes.NewReader(reqBody))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := b.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("vision backend returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("vision backend returned %d", resp.StatusCode))
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return "", err
	}
	return out.Response, nil
}

// ModelLoadFunc and ModelInferFunc are the injectable load/infer/unload
// steps an in-process backend delegates to; the actual GPU model runtime
// is outside this module's scope.
type (
	ModelLoadFunc   func(ctx context.Context) error
	ModelInferFunc  func(ctx context.Context, item VisionItem) (string, error)
	ModelUnloadFunc func()
)

// InProcessVisionBackend loads a quantized vision model onto the GPU once
// per batch, serves every item, and unloads on batch end — or on
// out-of-memory, unloading immediately and marking every remaining item
// with the VRAM-limit sentinel (spec section 4.6).
type InProcessVisionBackend struct {
	load   ModelLoadFunc
	infer  ModelInferFunc
	unload ModelUnloadFunc
}

// NewInProcessVisionBackend builds an in-process backend around the given
// load/infer/unload hooks.
func NewInProcessVisionBackend(load ModelLoadFunc, infer ModelInferFunc, unload ModelUnloadFunc) *InProcessVisionBackend {
	return &InProcessVisionBackend{load: load, infer: infer, unload: unload}
}

// RunBatch loads the model, serves every item, and unloads at the end. On
// ErrOutOfMemory from either the load step or any infer call, it unloads
// immediately and marks all remaining items as VRAM-limit skips.
func (b *InProcessVisionBackend) RunBatch(ctx context.Context, items []VisionItem) []VisionResult {
	results := make([]VisionResult, len(items))

	if b.load != nil {
		if err := b.load(ctx); err != nil {
			if b.unload != nil {
				b.unload()
			}
			if errors.Is(err, ErrOutOfMemory) {
				guard.RecordVRAMSkip()
				logging.Info().Msg("perception: vision model load failed with out-of-memory, skipping batch")
			} else {
				logging.Debug().Err(err).Msg("perception: vision model load failed")
			}
			for i := range results {
				results[i] = VisionResult{Skipped: true, Description: VRAMLimitSentinel}
			}
			return results
		}
	}

	for i, item := range items {
		if b.infer == nil {
			results[i] = VisionResult{Skipped: true, Description: VRAMLimitSentinel}
			continue
		}
		desc, err := b.infer(ctx, item)
		if err != nil {
			if errors.Is(err, ErrOutOfMemory) {
				guard.RecordVRAMSkip()
				for j := i; j < len(results); j++ {
					results[j] = VisionResult{Skipped: true, Description: VRAMLimitSentinel}
				}
				break
			}
			logging.Debug().Err(err).Str("path", item.ScreenshotPath).Msg("perception: vision inference failed")
			results[i] = VisionResult{Skipped: true}
			continue
		}
		results[i] = VisionResult{Description: desc}
	}

	if b.unload != nil {
		b.unload()
	}
	return results
}
