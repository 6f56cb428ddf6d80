package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jo-hoe/cmsbuild/internal/backend/cms"
	"github.com/jo-hoe/cmsbuild/internal/backend/download"
	"golang.org/x/sync/errgroup"
)

// CollectionFetcher writes the entries of every endpoint of a collection as
// JSON and downloads the image each entry references. The same routine serves
// every collection; only the client and the collection settings differ.
type CollectionFetcher struct {
	buildDir      string
	assetsDir     string
	downloader    download.ImageDownloader
	recorder      *RunRecorder
	endpointLimit int
	downloadLimit int
}

// NewCollectionFetcher creates a fetcher writing JSON to buildDir and images
// to assetsDir. Limits <= 0 leave the respective fan-out unbounded.
func NewCollectionFetcher(buildDir, assetsDir string, downloader download.ImageDownloader, recorder *RunRecorder, concurrency Concurrency) *CollectionFetcher {
	return &CollectionFetcher{
		buildDir:      buildDir,
		assetsDir:     assetsDir,
		downloader:    downloader,
		recorder:      recorder,
		endpointLimit: concurrency.Endpoints,
		downloadLimit: concurrency.Downloads,
	}
}

// newGroup returns an errgroup bounded by limit; limit <= 0 means no bound
func newGroup(limit int) *errgroup.Group {
	g := &errgroup.Group{}
	if limit > 0 {
		g.SetLimit(limit)
	}
	return g
}

// FetchCollection processes all endpoints of the collection concurrently.
// A failing endpoint is logged and recorded and never affects its siblings.
func (f *CollectionFetcher) FetchCollection(ctx context.Context, client cms.Client, collection CollectionConfig) {
	slog.Info("fetching collection",
		"collection", collection.Name,
		"service_domain", collection.ServiceDomain,
		"endpoints", collection.Endpoints)

	g := newGroup(f.endpointLimit)
	for _, endpoint := range collection.Endpoints {
		g.Go(func() error {
			err := f.fetchEndpoint(ctx, client, collection, endpoint)
			if err != nil {
				slog.Error("failed to fetch endpoint",
					"collection", collection.Name,
					"endpoint", endpoint,
					"error", err)
			}
			f.recorder.Record(KindEndpoint, endpoint, err)
			return nil
		})
	}
	_ = g.Wait()
}

func (f *CollectionFetcher) fetchEndpoint(ctx context.Context, client cms.Client, collection CollectionConfig, endpoint string) error {
	entries, err := client.GetAllContents(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("failed to list contents: %w", err)
	}
	slog.Info("fetched endpoint", "endpoint", endpoint, "entry_count", len(entries))

	f.downloadImages(ctx, collection, endpoint, entries)

	return writeEntries(filepath.Join(f.buildDir, endpoint+".json"), entries)
}

// downloadImages downloads the image of every entry and waits for all of them
func (f *CollectionFetcher) downloadImages(ctx context.Context, collection CollectionConfig, endpoint string, entries []cms.Entry) {
	g := newGroup(f.downloadLimit)
	for i, entry := range entries {
		imageURL, err := entry.ImageURL(collection.ImageField)
		if err != nil {
			name := fmt.Sprintf("%s[%d]", endpoint, i)
			if id := entry.ID(); id != "" {
				name = fmt.Sprintf("%s/%s", endpoint, id)
			}
			slog.Error("entry has no image url", "entry", name, "error", err)
			f.recorder.Record(KindImage, name, err)
			continue
		}

		g.Go(func() error {
			_, err := f.downloader.Download(ctx, imageURL, f.assetsDir)
			if err != nil {
				slog.Error("failed to download image", "endpoint", endpoint, "url", imageURL, "error", err)
			}
			f.recorder.Record(KindImage, imageURL, err)
			return nil
		})
	}
	_ = g.Wait()
}

// writeEntries writes the entries exactly as the CMS returned them
func writeEntries(path string, entries []cms.Entry) error {
	if entries == nil {
		entries = []cms.Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to serialize entries: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	slog.Debug("wrote entries", "path", path, "size_bytes", len(data))
	return nil
}
