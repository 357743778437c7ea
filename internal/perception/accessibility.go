package perception

import (
	"encoding/json"

	"github.com/mnemosyne/brain/internal/logging"
)

// AccessibilityNode is one UI element collected during the tree walk (spec
// section 4.6): control_type, name, value, class_name and automation_id,
// with empty fields omitted from the serialized form.
type AccessibilityNode struct {
	ControlType  string `json:"control_type,omitempty"`
	Name         string `json:"name,omitempty"`
	Value        string `json:"value,omitempty"`
	ClassName    string `json:"class_name,omitempty"`
	AutomationID string `json:"automation_id,omitempty"`
}

const (
	accessibilityMaxDepth    = 5
	accessibilityMaxElements = 500
)

// WindowExistsFunc reports whether a window handle still refers to a live
// window (the "phantom window" check). WalkChildrenFunc returns the
// immediate children of a node identified by handle; the root call passes
// the window handle itself.
type (
	WindowExistsFunc  func(handle int64) bool
	WalkChildrenFunc  func(handle int64) []AccessibilityNode
)

// AccessibilityWalker extracts a window's UI tree. Both backend functions
// are injected because the underlying platform API (UI Automation, AT-SPI,
// …) is OS-specific and out of this module's scope; AccessibilityWalker
// only owns the generic breadth-first traversal, depth/element caps and
// failure handling described by the spec.
type AccessibilityWalker struct {
	exists      WindowExistsFunc
	children    WalkChildrenFunc
	handleChild func(node AccessibilityNode) int64
}

// NewAccessibilityWalker builds a walker over the given platform backend.
// handleOf maps a node back to the handle used to fetch its own children;
// backends with no concept of nested handles can return 0 and supply a
// children function that always returns nil for non-root handles.
func NewAccessibilityWalker(exists WindowExistsFunc, children WalkChildrenFunc, handleOf func(AccessibilityNode) int64) *AccessibilityWalker {
	return &AccessibilityWalker{exists: exists, children: children, handleChild: handleOf}
}

// Extract walks the tree rooted at handle breadth-first, capped at
// max_depth=5 and max_elements=500, and returns its JSON serialization. On
// any failure (missing window, nil backend) it returns ("", nil) so the
// caller leaves accessibility_tree null, matching spec section 4.6.
func (w *AccessibilityWalker) Extract(handle int64) (string, error) {
	if w == nil || w.exists == nil || w.children == nil {
		return "", nil
	}
	if !w.exists(handle) {
		logging.Debug().Int64("handle", handle).Msg("perception: phantom window, skipping accessibility extraction")
		return "", nil
	}

	type queued struct {
		handle int64
		depth  int
	}

	nodes := make([]AccessibilityNode, 0, accessibilityMaxElements)
	queue := []queued{{handle: handle, depth: 0}}

	for len(queue) > 0 && len(nodes) < accessibilityMaxElements {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth > accessibilityMaxDepth {
			continue
		}

		children := w.children(cur.handle)
		for _, child := range children {
			if len(nodes) >= accessibilityMaxElements {
				break
			}
			nodes = append(nodes, child)
			if cur.depth+1 <= accessibilityMaxDepth && w.handleChild != nil {
				queue = append(queue, queued{handle: w.handleChild(child), depth: cur.depth + 1})
			}
		}
	}

	raw, err := json.Marshal(nodes)
	if err != nil {
		logging.Debug().Err(err).Msg("perception: accessibility tree serialization failed")
		return "", nil
	}
	return string(raw), nil
}
