package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jo-hoe/cmsbuild/internal/backend/imageprocessing"
	"github.com/srwiley/oksvg"
)

const svgExtension = ".svg"

// FileResult describes what happened to a single file of the import directory
type FileResult struct {
	Name    string
	Outputs []string
	Skipped bool
	Reason  string
	Err     error
}

// Result collects the outcome of one optimizer run
type Result struct {
	Files []FileResult
}

// Processed returns the number of files that produced all outputs
func (r *Result) Processed() int {
	count := 0
	for _, file := range r.Files {
		if !file.Skipped && file.Err == nil {
			count++
		}
	}
	return count
}

// Skipped returns the number of files that were intentionally left alone
func (r *Result) Skipped() int {
	count := 0
	for _, file := range r.Files {
		if file.Skipped {
			count++
		}
	}
	return count
}

// Failed returns the number of files that could not be optimized
func (r *Result) Failed() int {
	count := 0
	for _, file := range r.Files {
		if file.Err != nil {
			count++
		}
	}
	return count
}

type pipeline struct {
	extension string
	invoker   *imageprocessing.CommandInvoker
}

// Optimizer produces one re-encoded derivative per configured format for
// every raster image in a directory.
type Optimizer struct {
	pipelines []pipeline
	failFast  bool
}

// New builds one pipeline per format. Each pipeline runs the shared commands
// followed by the format's encoder, which must be an EncoderCommand.
// With failFast the first failing file aborts the run; otherwise every file is
// attempted and failures are reported per file.
func New(registry *imageprocessing.CommandRegistry, commands, formats []imageprocessing.CommandConfig, failFast bool) (*Optimizer, error) {
	if len(formats) == 0 {
		return nil, fmt.Errorf("at least one output format is required")
	}

	seen := make(map[string]bool, len(formats))
	pipelines := make([]pipeline, 0, len(formats))
	for _, format := range formats {
		configs := make([]imageprocessing.CommandConfig, 0, len(commands)+1)
		configs = append(configs, commands...)
		configs = append(configs, format)

		invoker, err := imageprocessing.NewCommandInvokerFromConfigs(registry, configs)
		if err != nil {
			return nil, fmt.Errorf("invalid pipeline for format %s: %w", format.Name, err)
		}

		chain := invoker.Commands()
		encoder, ok := chain[len(chain)-1].(imageprocessing.EncoderCommand)
		if !ok {
			return nil, fmt.Errorf("format command %s does not encode to a file format", format.Name)
		}

		extension := strings.ToLower(encoder.Extension())
		if seen[extension] {
			return nil, fmt.Errorf("duplicate output format: %s", extension)
		}
		seen[extension] = true

		pipelines = append(pipelines, pipeline{extension: extension, invoker: invoker})
	}

	return &Optimizer{pipelines: pipelines, failFast: failFast}, nil
}

// Extensions returns the output extensions in pipeline order
func (o *Optimizer) Extensions() []string {
	extensions := make([]string, 0, len(o.pipelines))
	for _, p := range o.pipelines {
		extensions = append(extensions, p.extension)
	}
	return extensions
}

// Optimize processes every file of importDir in name order and writes
// <exportDir>/<stem>.<format> for each configured format. SVG files are
// skipped, as are derivatives written by a previous run into the same
// directory. Files are processed one at a time.
func (o *Optimizer) Optimize(ctx context.Context, importDir, exportDir string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	entries, err := os.ReadDir(importDir)
	if err != nil {
		return result, fmt.Errorf("failed to read import directory %s: %w", importDir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	derivatives := o.findDerivatives(names)

	slog.Info("optimizing images",
		"import_dir", importDir,
		"export_dir", exportDir,
		"file_count", len(names),
		"formats", o.Extensions())

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		imagePath := filepath.Join(importDir, name)

		if strings.EqualFold(filepath.Ext(name), svgExtension) {
			inspectSVG(imagePath)
			result.Files = append(result.Files, FileResult{Name: name, Skipped: true, Reason: "vector image"})
			continue
		}
		if derivatives[name] {
			slog.Debug("skipping derivative", "path", imagePath)
			result.Files = append(result.Files, FileResult{Name: name, Skipped: true, Reason: "derivative"})
			continue
		}

		outputs, err := o.optimizeFile(imagePath, exportDir)
		result.Files = append(result.Files, FileResult{Name: name, Outputs: outputs, Err: err})
		if err != nil {
			if o.failFast {
				slog.Error("image optimization aborted", "path", imagePath, "error", err)
				return result, fmt.Errorf("optimization aborted at %s: %w", name, err)
			}
			slog.Error("image optimization failed", "path", imagePath, "error", err)
			continue
		}
		slog.Debug("image optimized", "path", imagePath, "outputs", outputs)
	}

	slog.Info("image optimization completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"processed", result.Processed(),
		"skipped", result.Skipped(),
		"failed", result.Failed())

	return result, nil
}

func (o *Optimizer) optimizeFile(imagePath, exportDir string) ([]string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", imagePath, err)
	}

	base := filepath.Base(imagePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	outputs := make([]string, 0, len(o.pipelines))
	for _, p := range o.pipelines {
		out, err := p.invoker.Execute(data)
		if err != nil {
			return outputs, fmt.Errorf("failed to create %s variant: %w", p.extension, err)
		}

		outPath := filepath.Join(exportDir, stem+"."+p.extension)
		if err := os.WriteFile(outPath, out, 0644); err != nil {
			return outputs, fmt.Errorf("failed to write %s: %w", outPath, err)
		}
		outputs = append(outputs, outPath)
	}
	return outputs, nil
}

// findDerivatives marks files whose extension is an output format and whose
// stem also belongs to a raster source in the same listing.
func (o *Optimizer) findDerivatives(names []string) map[string]bool {
	outputExtensions := make(map[string]bool, len(o.pipelines))
	for _, p := range o.pipelines {
		outputExtensions["."+p.extension] = true
	}

	sourceStems := make(map[string]bool)
	for _, name := range names {
		ext := strings.ToLower(filepath.Ext(name))
		if outputExtensions[ext] || ext == svgExtension {
			continue
		}
		sourceStems[strings.TrimSuffix(name, filepath.Ext(name))] = true
	}

	derivatives := make(map[string]bool)
	for _, name := range names {
		ext := strings.ToLower(filepath.Ext(name))
		if outputExtensions[ext] && sourceStems[strings.TrimSuffix(name, filepath.Ext(name))] {
			derivatives[name] = true
		}
	}
	return derivatives
}

// inspectSVG logs the view box of a skipped vector image
func inspectSVG(path string) {
	file, err := os.Open(path)
	if err != nil {
		slog.Warn("skipping SVG file; failed to open", "path", path, "error", err)
		return
	}
	defer func() {
		_ = file.Close()
	}()

	icon, err := oksvg.ReadIconStream(file)
	if err != nil {
		slog.Warn("skipping SVG file; failed to parse", "path", path, "error", err)
		return
	}
	slog.Info("skipping SVG file",
		"path", path,
		"viewbox_width", icon.ViewBox.W,
		"viewbox_height", icon.ViewBox.H)
}
