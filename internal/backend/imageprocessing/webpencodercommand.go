package imageprocessing

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/gen2brain/webp"
)

const defaultWebpMethod = 4

// WebpEncoderParams represents typed parameters for the WebP encoder command
type WebpEncoderParams struct {
	Quality  int
	Lossless bool
	Method   int
}

// NewWebpEncoderParamsFromMap creates WebpEncoderParams from a generic map
func NewWebpEncoderParamsFromMap(params map[string]any) (*WebpEncoderParams, error) {
	if err := validateRequiredParams(params, []string{"quality"}); err != nil {
		return nil, err
	}

	quality := getIntParam(params, "quality", 0)
	if err := validateQuality(quality); err != nil {
		return nil, err
	}

	method := getIntParam(params, "method", defaultWebpMethod)
	if method < 0 || method > 6 {
		return nil, fmt.Errorf("method must be between 0 and 6, got %d", method)
	}

	return &WebpEncoderParams{
		Quality:  quality,
		Lossless: getBoolParam(params, "lossless", false),
		Method:   method,
	}, nil
}

// WebpEncoderCommand encodes any decodable image as WebP
type WebpEncoderCommand struct {
	name   string
	params *WebpEncoderParams
}

// NewWebpEncoderCommand creates a new WebP encoder command from configuration parameters
func NewWebpEncoderCommand(params map[string]any) (Command, error) {
	typedParams, err := NewWebpEncoderParamsFromMap(params)
	if err != nil {
		return nil, err
	}

	return &WebpEncoderCommand{
		name:   "WebpEncoderCommand",
		params: typedParams,
	}, nil
}

// Name returns the command name
func (c *WebpEncoderCommand) Name() string {
	return c.name
}

// Extension returns the file extension of the encoded output
func (c *WebpEncoderCommand) Extension() string {
	return "webp"
}

// GetParams returns the typed parameters
func (c *WebpEncoderCommand) GetParams() *WebpEncoderParams {
	return c.params
}

// Execute decodes the image and re-encodes it as WebP
func (c *WebpEncoderCommand) Execute(imageData []byte) ([]byte, error) {
	img, format, err := decodeImage(imageData)
	if err != nil {
		slog.Error("WebpEncoderCommand: failed to decode image", "error", err)
		return nil, err
	}

	var buf bytes.Buffer
	err = webp.Encode(&buf, img, webp.Options{
		Quality:  c.params.Quality,
		Lossless: c.params.Lossless,
		Method:   c.params.Method,
	})
	if err != nil {
		slog.Error("WebpEncoderCommand: failed to encode image", "error", err)
		return nil, fmt.Errorf("failed to encode image to webp: %w", err)
	}

	slog.Debug("WebpEncoderCommand: conversion complete",
		"from", format,
		"quality", c.params.Quality,
		"output_size_bytes", buf.Len())

	return buf.Bytes(), nil
}

func init() {
	// Register the command in the default registry
	if err := DefaultRegistry.Register("WebpEncoderCommand", NewWebpEncoderCommand); err != nil {
		panic(fmt.Sprintf("failed to register WebpEncoderCommand: %v", err))
	}
}
