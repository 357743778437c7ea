package perception

import (
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"github.com/mnemosyne/brain/internal/sanitizer"
)

// DefaultOCRLanguages matches spec section 4.6's "eng+rus" default.
var DefaultOCRLanguages = []string{"eng", "rus"}

// OCR wraps a Tesseract client configured with the pipeline's language set.
// Screenshot OCR only runs when the accessibility tree came back null and a
// screenshot reference exists (spec section 4.6, step 3).
type OCR struct {
	languages []string
}

// NewOCR builds an OCR extractor for the given languages, falling back to
// DefaultOCRLanguages when none are given.
func NewOCR(languages []string) *OCR {
	if len(languages) == 0 {
		languages = DefaultOCRLanguages
	}
	return &OCR{languages: languages}
}

// Extract runs OCR against the image at imagePath and returns sanitized
// text. Any Tesseract failure is returned to the caller, which leaves
// ocr_content null per spec section 4.6.
func (o *OCR) Extract(imagePath string) (string, error) {
	text, _, err := o.extract(imagePath)
	if err != nil {
		return "", err
	}
	return sanitizer.CleanText(text), nil
}

// ExtractWithConfidence returns the sanitized text alongside the mean
// per-word confidence in [0, 1], per spec section 4.6.
func (o *OCR) ExtractWithConfidence(imagePath string) (string, float64, error) {
	text, confidence, err := o.extract(imagePath)
	if err != nil {
		return "", 0, err
	}
	return sanitizer.CleanText(text), confidence, nil
}

func (o *OCR) extract(imagePath string) (string, float64, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(o.languages...); err != nil {
		return "", 0, fmt.Errorf("perception: ocr set language: %w", err)
	}
	if err := client.SetImage(imagePath); err != nil {
		return "", 0, fmt.Errorf("perception: ocr set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxesVerbose()
	if err != nil {
		text, textErr := client.Text()
		if textErr != nil {
			return "", 0, fmt.Errorf("perception: ocr extract: %w", textErr)
		}
		return text, 0, nil
	}

	var text string
	var confidenceSum float64
	var wordCount int
	for _, box := range boxes {
		if box.Word == "" {
			continue
		}
		if text != "" {
			text += " "
		}
		text += box.Word
		confidenceSum += box.Confidence / 100.0
		wordCount++
	}

	var meanConfidence float64
	if wordCount > 0 {
		meanConfidence = confidenceSum / float64(wordCount)
	}
	return text, meanConfidence, nil
}
