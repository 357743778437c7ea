package perception

import "github.com/mnemosyne/brain/internal/model"

// ClampROI clamps an ROI rectangle to the bounds of an image of the given
// width and height (spec section 4.6: "ROI cropping, when supplied, is
// applied in image space with clamping to image bounds before the call").
func ClampROI(roi model.ROI, width, height int) model.ROI {
	clamp := func(v, max int) int {
		if v < 0 {
			return 0
		}
		if v > max {
			return max
		}
		return v
	}

	out := model.ROI{
		Left:   clamp(roi.Left, width),
		Top:    clamp(roi.Top, height),
		Right:  clamp(roi.Right, width),
		Bottom: clamp(roi.Bottom, height),
	}
	if out.Right < out.Left {
		out.Right = out.Left
	}
	if out.Bottom < out.Top {
		out.Bottom = out.Top
	}
	return out
}
