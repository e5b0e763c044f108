package output

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"strings"

	"github.com/icza/mjpeg"
)

// WriteTimelapse encodes frames, oldest first, into an MJPEG AVI.
// Frames are drawn onto a canvas the size of the first one.
func WriteTimelapse(frames []image.Image, outputPath string, fps int32) (string, error) {
	if len(frames) == 0 {
		return "", errors.New("no frames to encode")
	}
	if !strings.HasSuffix(outputPath, ".avi") {
		outputPath += ".avi"
	}
	if fps <= 0 {
		fps = 2
	}

	bounds := frames[0].Bounds()
	writer, err := mjpeg.New(outputPath, int32(bounds.Dx()), int32(bounds.Dy()), fps)
	if err != nil {
		return "", fmt.Errorf("failed to create video: %w", err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for i, frame := range frames {
		draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
		draw.Draw(canvas, canvas.Bounds(), frame, frame.Bounds().Min, draw.Over)

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 90}); err != nil {
			writer.Close()
			return "", fmt.Errorf("failed to encode frame %d: %w", i+1, err)
		}
		if err := writer.AddFrame(buf.Bytes()); err != nil {
			writer.Close()
			return "", fmt.Errorf("failed to add frame %d: %w", i+1, err)
		}
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finish video: %w", err)
	}
	return outputPath, nil
}
