package camera

import (
	"bytes"
	"fmt"
	"image"

	_ "image/jpeg"
)

// ValidationResult carries the outcome of validate_frame: frames are never
// rejected on brightness alone, only flagged.
type ValidationResult struct {
	Width            int
	Height           int
	MeanLuminance    float64
	BrightnessWarn   bool
	BrightnessReason string
}

// ValidateFrame decodes the captured JPEG and computes its mean luminance.
// A mean outside [5, 250] on the 0-255 scale is flagged as a warning - likely
// a lens cap, total darkness, or a blown-out sensor - but the frame is still
// accepted and stored, since clipping at the boundary would lose the very
// images a smoke/fire detector most needs to see.
func ValidateFrame(data []byte) (ValidationResult, error) {
	if len(data) == 0 {
		return ValidationResult{}, fmt.Errorf("empty frame")
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return ValidationResult{}, fmt.Errorf("decode frame: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return ValidationResult{}, fmt.Errorf("invalid frame dimensions %dx%d", w, h)
	}

	const stride = 8
	var sum float64
	var count int
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stride {
		for x := bounds.Min.X; x < bounds.Max.X; x += stride {
			r, g, b, _ := img.At(x, y).RGBA()
			// RGBA() returns 16-bit channels; scale to 8-bit before the
			// standard luma weighting.
			lum := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			sum += lum
			count++
		}
	}

	mean := 0.0
	if count > 0 {
		mean = sum / float64(count)
	}

	result := ValidationResult{Width: w, Height: h, MeanLuminance: mean}
	switch {
	case mean < 5:
		result.BrightnessWarn = true
		result.BrightnessReason = "frame is nearly black (mean luminance below 5)"
	case mean > 250:
		result.BrightnessWarn = true
		result.BrightnessReason = "frame is nearly saturated (mean luminance above 250)"
	}

	return result, nil
}
