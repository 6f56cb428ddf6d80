package frontend

import (
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jo-hoe/cmsbuild/internal/backend/database"
	"github.com/jo-hoe/cmsbuild/internal/core"
	"github.com/labstack/echo/v4"
)

const (
	MainPageName = "index.html"
	timeLayout   = "2006-01-02 15:04:05"
)

// RunSource provides the recorded runs shown on the page
type RunSource interface {
	ListRuns() ([]*database.Run, error)
	GetRun(id string) (*core.RunDetails, error)
}

type FrontendService struct {
	runs   RunSource
	config *core.ServiceConfig
}

func NewFrontendService(config *core.ServiceConfig, runs RunSource) *FrontendService {
	return &FrontendService{
		runs:   runs,
		config: config,
	}
}

// rootRedirectHandler redirects root path to index.html
func (service *FrontendService) rootRedirectHandler(ctx echo.Context) error {
	return ctx.Redirect(http.StatusMovedPermanently, "/"+MainPageName)
}

func (service *FrontendService) SetRoutes(e *echo.Echo) {
	e.Renderer = newTemplate()

	e.GET("/", service.rootRedirectHandler) // Redirect root to index.html
	e.GET("/"+MainPageName, service.indexHandler)

	e.GET("/htmx/runs", service.htmxListRunsHandler)
	e.GET("/htmx/runs/:id", service.htmxRunDetailsHandler)
	e.GET("/htmx/assets", service.htmxListAssetsHandler)
}

func (service *FrontendService) indexHandler(ctx echo.Context) error {
	return ctx.Render(http.StatusOK, MainPageName, map[string]any{
		"Title":    "cmsbuild",
		"BuildDir": service.config.BuildDir,
	})
}

func (service *FrontendService) htmxListRunsHandler(ctx echo.Context) error {
	runs, err := service.runs.ListRuns()
	if err != nil {
		slog.Error("htmxListRunsHandler: failed to list runs",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to list runs")
	}

	// Prevent caching so the latest runs are always shown
	service.setNoCache(ctx)

	return ctx.HTML(http.StatusOK, buildRunListHTML(runs))
}

func (service *FrontendService) htmxRunDetailsHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	details, err := service.runs.GetRun(id)
	if errors.Is(err, core.ErrRunNotFound) {
		slog.Warn("htmxRunDetailsHandler: run not found",
			"status", http.StatusNotFound, "run_id", id)
		return ctx.String(http.StatusNotFound, "Run not found")
	}
	if err != nil {
		slog.Error("htmxRunDetailsHandler: failed to get run",
			"status", http.StatusInternalServerError, "run_id", id, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to get run")
	}

	service.setNoCache(ctx)

	return ctx.HTML(http.StatusOK, buildRunDetailsHTML(details))
}

func (service *FrontendService) htmxListAssetsHandler(ctx echo.Context) error {
	entries, err := os.ReadDir(service.config.AssetsPath())
	if errors.Is(err, os.ErrNotExist) {
		return ctx.HTML(http.StatusOK, `<p>No build has run yet.</p>`)
	}
	if err != nil {
		slog.Error("htmxListAssetsHandler: failed to read assets",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to list images")
	}

	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.EqualFold(filepath.Ext(entry.Name()), ".webp") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	service.setNoCache(ctx)

	return ctx.HTML(http.StatusOK, buildAssetListHTML(service.config.AssetsDir, names))
}

func (service *FrontendService) setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}

func buildRunListHTML(runs []*database.Run) string {
	var b strings.Builder
	if len(runs) == 0 {
		b.WriteString(`<p>No runs recorded yet.</p>`)
		return b.String()
	}

	b.WriteString(`<table><thead><tr><th>Started</th><th>Finished</th><th>Status</th><th></th></tr></thead><tbody>`)
	for _, run := range runs {
		finished := "running"
		if !run.FinishedAt.IsZero() {
			finished = run.FinishedAt.Format(timeLayout)
		}
		id := html.EscapeString(run.ID)
		b.WriteString(fmt.Sprintf(`<tr data-id="%s"><td>%s</td><td>%s</td><td>%s</td><td><a href="#" hx-get="/htmx/runs/%s" hx-target="#run-details" hx-swap="innerHTML">Details</a></td></tr>`,
			id,
			run.StartedAt.Format(timeLayout),
			finished,
			html.EscapeString(run.Status),
			url.PathEscape(run.ID)))
	}
	b.WriteString(`</tbody></table>`)
	return b.String()
}

func buildRunDetailsHTML(details *core.RunDetails) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf(`<article><header>Run <code>%s</code>: %s</header>`,
		html.EscapeString(details.Run.ID), html.EscapeString(details.Run.Status)))

	if len(details.Items) == 0 {
		b.WriteString(`<p>No items recorded.</p></article>`)
		return b.String()
	}

	b.WriteString(`<table><thead><tr><th>Kind</th><th>Name</th><th>Status</th><th>Error</th></tr></thead><tbody>`)
	for _, item := range details.Items {
		b.WriteString(fmt.Sprintf(`<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
			html.EscapeString(item.Kind),
			html.EscapeString(item.Name),
			html.EscapeString(item.Status),
			html.EscapeString(item.Error)))
	}
	b.WriteString(`</tbody></table></article>`)
	return b.String()
}

func buildAssetListHTML(assetsDir string, names []string) string {
	var b strings.Builder
	if len(names) == 0 {
		b.WriteString(`<p>No optimized images yet.</p>`)
		return b.String()
	}

	b.WriteString(`<div class="grid">`)
	for _, name := range names {
		src := "/build/" + url.PathEscape(assetsDir) + "/" + url.PathEscape(name)
		escaped := html.EscapeString(name)
		b.WriteString(fmt.Sprintf(`<figure><img src="%s" alt="%s" loading="lazy"><figcaption>%s</figcaption></figure>`,
			src, escaped, escaped))
	}
	b.WriteString(`</div>`)
	return b.String()
}
