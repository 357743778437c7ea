// Package perception implements the per-event fallback chain from spec
// section 4.6: title sanitization, accessibility-tree extraction, OCR
// fallback, and vision-model batching, each step explicitly nullable on
// failure.
package perception

import (
	"context"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/mnemosyne/brain/internal/guard"
	"github.com/mnemosyne/brain/internal/logging"
	"github.com/mnemosyne/brain/internal/model"
	"github.com/mnemosyne/brain/internal/sanitizer"
)

// Pipeline runs the four-step fallback chain over a batch of events
// belonging to one event group.
type Pipeline struct {
	screenshotDir string
	accessibility *AccessibilityWalker
	ocr           *OCR
	vision        VisionBackend
	guard         *guard.Guard
}

// NewPipeline builds a perception pipeline. accessibility may be nil on
// platforms with no backend wired; vision may be nil to skip the
// vision-model step entirely (e.g. no endpoint configured).
func NewPipeline(screenshotDir string, accessibility *AccessibilityWalker, ocr *OCR, vision VisionBackend, g *guard.Guard) *Pipeline {
	return &Pipeline{
		screenshotDir: screenshotDir,
		accessibility: accessibility,
		ocr:           ocr,
		vision:        vision,
		guard:         g,
	}
}

// EnrichTitle runs step 1, title sanitization, which always runs
// regardless of the other steps' outcome.
func (p *Pipeline) EnrichTitle(e *model.Event) string {
	return sanitizer.CleanText(e.WindowTitle)
}

// EnrichOne runs steps 1-3 for a single event: title sanitization,
// accessibility-tree extraction (if a window handle is present), then OCR
// fallback (only if the accessibility tree came back null and a
// screenshot exists). It never returns an error; every failure degrades to
// a null field per spec section 4.6.
func (p *Pipeline) EnrichOne(ctx context.Context, e *model.Event) {
	_ = p.EnrichTitle(e)

	if e.WindowHandle != nil && p.accessibility != nil {
		tree, err := p.accessibility.Extract(*e.WindowHandle)
		if err != nil {
			logging.Debug().Err(err).Int64("event_id", e.ID).Msg("perception: accessibility extraction failed")
		} else if tree != "" {
			e.AccessibilityTree = tree
		}
	}

	if e.AccessibilityTree == "" && e.ScreenshotHash != "" && p.ocr != nil {
		path := filepath.Join(p.screenshotDir, fmt.Sprintf("%s.png", e.ScreenshotHash))
		text, err := p.ocr.Extract(path)
		if err != nil {
			logging.Debug().Err(err).Str("path", path).Msg("perception: ocr extraction failed")
		} else {
			e.OCRContent = text
		}
	}
}

// VisionPrompt is the fixed prompt sent with every vision-model batch
// item: a short instruction to describe what the user appears to be doing
// on screen.
const VisionPrompt = "Describe the application window and user activity visible in this screenshot in one or two sentences."

// RunVisionBatch runs step 4 for every event in events that carries a
// screenshot, after admission by the resource guard. Events without a
// screenshot are left untouched; when the guard denies admission, every
// event with a screenshot gets VRAMLimitSentinel as its description.
func (p *Pipeline) RunVisionBatch(ctx context.Context, events []*model.Event) {
	if p.vision == nil {
		return
	}

	var withScreenshot []*model.Event
	for _, e := range events {
		if e.ScreenshotHash != "" {
			withScreenshot = append(withScreenshot, e)
		}
	}
	if len(withScreenshot) == 0 {
		return
	}

	if p.guard != nil && !p.guard.CanRunVisionModel(ctx) {
		logging.Info().Int("count", len(withScreenshot)).Msg("perception: resource guard denied vision batch")
		for _, e := range withScreenshot {
			e.VLMDescription = VRAMLimitSentinel
		}
		return
	}

	items := make([]VisionItem, len(withScreenshot))
	for i, e := range withScreenshot {
		path := filepath.Join(p.screenshotDir, fmt.Sprintf("%s.png", e.ScreenshotHash))
		roi := clampROIForFile(e.ROI, path)
		items[i] = VisionItem{ScreenshotPath: path, Prompt: VisionPrompt, ROI: roi}
	}

	results := p.vision.RunBatch(ctx, items)
	for i, e := range withScreenshot {
		if i >= len(results) {
			e.VLMDescription = VRAMLimitSentinel
			continue
		}
		if results[i].Skipped {
			e.VLMDescription = VRAMLimitSentinel
			continue
		}
		e.VLMDescription = results[i].Description
	}
}

// clampROIForFile clamps roi to the dimensions of the image at path, if
// both are available. It returns nil when there is no ROI to clamp, and
// falls back to the unclamped ROI when the image cannot be decoded (the
// backend is then responsible for its own bounds handling).
func clampROIForFile(roi *model.ROI, path string) *model.ROI {
	if roi == nil {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return roi
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return roi
	}

	clamped := ClampROI(*roi, cfg.Width, cfg.Height)
	return &clamped
}
