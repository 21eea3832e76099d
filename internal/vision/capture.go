package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/kbinani/screenshot"
)

// ScreenCapturer grabs frames from the primary display.
type ScreenCapturer struct{}

func NewScreenCapturer() *ScreenCapturer {
	return &ScreenCapturer{}
}

// Capture implements Capturer. A zero region captures the whole primary
// display; otherwise the configured rectangle is grabbed.
func (c *ScreenCapturer) Capture(region Region) (Frame, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return Frame{}, fmt.Errorf("no active displays")
	}

	bounds := screenshot.GetDisplayBounds(0)
	if !region.IsZero() {
		bounds = image.Rect(
			region.Left,
			region.Top,
			region.Left+region.Width,
			region.Top+region.Height,
		)
	}

	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return Frame{}, fmt.Errorf("capture screen: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return Frame{}, fmt.Errorf("encode frame: %w", err)
	}

	return Frame{
		Data:   buf.Bytes(),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}
