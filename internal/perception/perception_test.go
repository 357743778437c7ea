package perception

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemosyne/brain/internal/model"
)

func TestClampROI(t *testing.T) {
	roi := model.ROI{Left: -10, Top: 5, Right: 300, Bottom: 50}
	clamped := ClampROI(roi, 200, 40)
	assert.Equal(t, 0, clamped.Left)
	assert.Equal(t, 5, clamped.Top)
	assert.Equal(t, 200, clamped.Right)
	assert.Equal(t, 40, clamped.Bottom)
}

func TestClampROI_DegenerateRectangleCollapses(t *testing.T) {
	roi := model.ROI{Left: 500, Top: 0, Right: 10, Bottom: 10}
	clamped := ClampROI(roi, 100, 100)
	assert.Equal(t, clamped.Left, clamped.Right)
}

func TestAccessibilityWalker_PhantomWindowSkips(t *testing.T) {
	w := NewAccessibilityWalker(
		func(handle int64) bool { return false },
		func(handle int64) []AccessibilityNode { return nil },
		nil,
	)
	tree, err := w.Extract(42)
	require.NoError(t, err)
	assert.Empty(t, tree)
}

func TestAccessibilityWalker_NilBackendDegradesToEmpty(t *testing.T) {
	var w *AccessibilityWalker
	tree, err := w.Extract(1)
	require.NoError(t, err)
	assert.Empty(t, tree)
}

func TestAccessibilityWalker_WalksBreadthFirstWithCaps(t *testing.T) {
	childrenOf := map[int64][]AccessibilityNode{
		1: {{Name: "a", ControlType: "button"}, {Name: "b", ControlType: "edit"}},
	}
	w := NewAccessibilityWalker(
		func(handle int64) bool { return true },
		func(handle int64) []AccessibilityNode { return childrenOf[handle] },
		func(n AccessibilityNode) int64 { return 0 },
	)

	tree, err := w.Extract(1)
	require.NoError(t, err)
	assert.Contains(t, tree, "button")
	assert.Contains(t, tree, "edit")
}

func TestInProcessVisionBackend_OutOfMemoryOnLoadSkipsAllItems(t *testing.T) {
	unloaded := false
	backend := NewInProcessVisionBackend(
		func(ctx context.Context) error { return ErrOutOfMemory },
		func(ctx context.Context, item VisionItem) (string, error) { return "should not run", nil },
		func() { unloaded = true },
	)

	items := []VisionItem{{ScreenshotPath: "a.png"}, {ScreenshotPath: "b.png"}}
	results := backend.RunBatch(context.Background(), items)

	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Skipped)
		assert.Equal(t, VRAMLimitSentinel, r.Description)
	}
	assert.True(t, unloaded)
}

func TestInProcessVisionBackend_OutOfMemoryMidBatchSkipsRemainder(t *testing.T) {
	calls := 0
	backend := NewInProcessVisionBackend(
		func(ctx context.Context) error { return nil },
		func(ctx context.Context, item VisionItem) (string, error) {
			calls++
			if calls == 2 {
				return "", ErrOutOfMemory
			}
			return "described", nil
		},
		func() {},
	)

	items := []VisionItem{{ScreenshotPath: "a.png"}, {ScreenshotPath: "b.png"}, {ScreenshotPath: "c.png"}}
	results := backend.RunBatch(context.Background(), items)

	require.Len(t, results, 3)
	assert.Equal(t, "described", results[0].Description)
	assert.True(t, results[1].Skipped)
	assert.True(t, results[2].Skipped)
}

func TestInProcessVisionBackend_HappyPath(t *testing.T) {
	backend := NewInProcessVisionBackend(
		func(ctx context.Context) error { return nil },
		func(ctx context.Context, item VisionItem) (string, error) { return "a window", nil },
		func() {},
	)

	results := backend.RunBatch(context.Background(), []VisionItem{{ScreenshotPath: "a.png"}})
	require.Len(t, results, 1)
	assert.Equal(t, "a window", results[0].Description)
	assert.False(t, results[0].Skipped)
}
