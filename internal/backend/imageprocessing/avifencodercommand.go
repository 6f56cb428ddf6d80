package imageprocessing

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/gen2brain/avif"
)

const defaultAvifSpeed = 10

// AvifEncoderParams represents typed parameters for the AVIF encoder command
type AvifEncoderParams struct {
	Quality      int
	QualityAlpha int
	Speed        int
}

// NewAvifEncoderParamsFromMap creates AvifEncoderParams from a generic map
func NewAvifEncoderParamsFromMap(params map[string]any) (*AvifEncoderParams, error) {
	if err := validateRequiredParams(params, []string{"quality"}); err != nil {
		return nil, err
	}

	quality := getIntParam(params, "quality", 0)
	if err := validateQuality(quality); err != nil {
		return nil, err
	}

	// Alpha follows the color quality unless configured separately
	qualityAlpha := getIntParam(params, "qualityAlpha", quality)
	if err := validateQuality(qualityAlpha); err != nil {
		return nil, fmt.Errorf("invalid qualityAlpha: %w", err)
	}

	speed := getIntParam(params, "speed", defaultAvifSpeed)
	if speed < 0 || speed > 10 {
		return nil, fmt.Errorf("speed must be between 0 and 10, got %d", speed)
	}

	return &AvifEncoderParams{
		Quality:      quality,
		QualityAlpha: qualityAlpha,
		Speed:        speed,
	}, nil
}

// AvifEncoderCommand encodes any decodable image as AVIF
type AvifEncoderCommand struct {
	name   string
	params *AvifEncoderParams
}

// NewAvifEncoderCommand creates a new AVIF encoder command from configuration parameters
func NewAvifEncoderCommand(params map[string]any) (Command, error) {
	typedParams, err := NewAvifEncoderParamsFromMap(params)
	if err != nil {
		return nil, err
	}

	return &AvifEncoderCommand{
		name:   "AvifEncoderCommand",
		params: typedParams,
	}, nil
}

// Name returns the command name
func (c *AvifEncoderCommand) Name() string {
	return c.name
}

// Extension returns the file extension of the encoded output
func (c *AvifEncoderCommand) Extension() string {
	return "avif"
}

// GetParams returns the typed parameters
func (c *AvifEncoderCommand) GetParams() *AvifEncoderParams {
	return c.params
}

// Execute decodes the image and re-encodes it as AVIF
func (c *AvifEncoderCommand) Execute(imageData []byte) ([]byte, error) {
	img, format, err := decodeImage(imageData)
	if err != nil {
		slog.Error("AvifEncoderCommand: failed to decode image", "error", err)
		return nil, err
	}

	var buf bytes.Buffer
	err = avif.Encode(&buf, img, avif.Options{
		Quality:      c.params.Quality,
		QualityAlpha: c.params.QualityAlpha,
		Speed:        c.params.Speed,
	})
	if err != nil {
		slog.Error("AvifEncoderCommand: failed to encode image", "error", err)
		return nil, fmt.Errorf("failed to encode image to avif: %w", err)
	}

	slog.Debug("AvifEncoderCommand: conversion complete",
		"from", format,
		"quality", c.params.Quality,
		"output_size_bytes", buf.Len())

	return buf.Bytes(), nil
}

func init() {
	// Register the command in the default registry
	if err := DefaultRegistry.Register("AvifEncoderCommand", NewAvifEncoderCommand); err != nil {
		panic(fmt.Sprintf("failed to register AvifEncoderCommand: %v", err))
	}
}
