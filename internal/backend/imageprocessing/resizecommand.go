package imageprocessing

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"strings"

	xdraw "golang.org/x/image/draw"
)

const (
	// FitOutside scales so the image covers the target box on both axes
	FitOutside = "outside"
	// FitInside scales so the image fits within the target box on both axes
	FitInside = "inside"
)

// ResizeParams represents typed parameters for resize command
type ResizeParams struct {
	Width  int
	Height int
	Fit    string
}

// NewResizeParamsFromMap creates ResizeParams from a generic map
func NewResizeParamsFromMap(params map[string]any) (*ResizeParams, error) {
	if err := validateRequiredParams(params, []string{"width", "height"}); err != nil {
		return nil, err
	}

	width := getIntParam(params, "width", 0)
	height := getIntParam(params, "height", 0)
	fit := strings.ToLower(getStringParam(params, "fit", FitOutside))

	return newResizeParams(width, height, fit)
}

func newResizeParams(width, height int, fit string) (*ResizeParams, error) {
	if width <= 0 {
		return nil, fmt.Errorf("width must be positive, got %d", width)
	}
	if height <= 0 {
		return nil, fmt.Errorf("height must be positive, got %d", height)
	}
	if fit != FitOutside && fit != FitInside {
		return nil, fmt.Errorf("invalid fit: %s (must be '%s' or '%s')", fit, FitOutside, FitInside)
	}
	return &ResizeParams{Width: width, Height: height, Fit: fit}, nil
}

// ResizeCommand scales an image relative to a target box while preserving its
// aspect ratio. Images are never enlarged.
type ResizeCommand struct {
	name   string
	params *ResizeParams
}

// NewResizeCommand creates a new resize command from configuration parameters
func NewResizeCommand(params map[string]any) (Command, error) {
	typedParams, err := NewResizeParamsFromMap(params)
	if err != nil {
		return nil, err
	}

	return &ResizeCommand{
		name:   "ResizeCommand",
		params: typedParams,
	}, nil
}

// NewResizeCommandWithParams creates a new resize command from concrete typed parameters
func NewResizeCommandWithParams(width, height int, fit string) (*ResizeCommand, error) {
	typedParams, err := newResizeParams(width, height, strings.ToLower(fit))
	if err != nil {
		return nil, err
	}
	return &ResizeCommand{
		name:   "ResizeCommand",
		params: typedParams,
	}, nil
}

// Name returns the command name
func (c *ResizeCommand) Name() string {
	return c.name
}

// GetParams returns the typed parameters
func (c *ResizeCommand) GetParams() *ResizeParams {
	return c.params
}

// Execute resizes the image and returns it PNG encoded. When no scaling is
// needed the input bytes are returned untouched.
func (c *ResizeCommand) Execute(imageData []byte) ([]byte, error) {
	img, format, err := decodeImage(imageData)
	if err != nil {
		slog.Error("ResizeCommand: failed to decode image", "error", err)
		return nil, err
	}

	bounds := img.Bounds()
	originalWidth := bounds.Dx()
	originalHeight := bounds.Dy()
	if originalWidth <= 0 || originalHeight <= 0 {
		return nil, fmt.Errorf("image has invalid dimensions %dx%d", originalWidth, originalHeight)
	}

	scaledWidth, scaledHeight := computeFitDimensions(originalWidth, originalHeight, c.params.Width, c.params.Height, c.params.Fit)
	slog.Debug("ResizeCommand: dimensions calculated",
		"format", format,
		"original_width", originalWidth,
		"original_height", originalHeight,
		"target_width", c.params.Width,
		"target_height", c.params.Height,
		"fit", c.params.Fit,
		"scaled_width", scaledWidth,
		"scaled_height", scaledHeight)

	if scaledWidth == originalWidth && scaledHeight == originalHeight {
		slog.Debug("ResizeCommand: no scaling needed; returning original bytes")
		return imageData, nil
	}

	dst := image.NewNRGBA(image.Rect(0, 0, scaledWidth, scaledHeight))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Src, nil)

	out, err := encodePNG(dst)
	if err != nil {
		slog.Error("ResizeCommand: failed to encode resized image", "error", err)
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return out, nil
}

// computeFitDimensions returns the size of an image of originalWidth x
// originalHeight scaled against the target box with the given fit mode.
// The result never exceeds the original dimensions.
func computeFitDimensions(originalWidth, originalHeight, targetWidth, targetHeight int, fit string) (int, int) {
	scaleX := float64(targetWidth) / float64(originalWidth)
	scaleY := float64(targetHeight) / float64(originalHeight)

	var scale float64
	if fit == FitInside {
		scale = math.Min(scaleX, scaleY)
	} else {
		scale = math.Max(scaleX, scaleY)
	}

	if scale >= 1 {
		return originalWidth, originalHeight
	}

	// Pin the constrained axis to the target exactly to avoid rounding drift
	var width, height int
	if scale == scaleX {
		width = targetWidth
		height = int(math.Round(float64(originalHeight) * scale))
	} else {
		height = targetHeight
		width = int(math.Round(float64(originalWidth) * scale))
	}
	return max(width, 1), max(height, 1)
}

func init() {
	// Register the command in the default registry
	if err := DefaultRegistry.Register("ResizeCommand", NewResizeCommand); err != nil {
		panic(fmt.Sprintf("failed to register ResizeCommand: %v", err))
	}
}
