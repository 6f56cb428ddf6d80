package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jo-hoe/cmsbuild/internal/backend/bootstrap"
	"github.com/jo-hoe/cmsbuild/internal/backend/cms"
	"github.com/jo-hoe/cmsbuild/internal/backend/database"
	"github.com/jo-hoe/cmsbuild/internal/backend/download"
	"github.com/jo-hoe/cmsbuild/internal/backend/imageprocessing"
	"github.com/jo-hoe/cmsbuild/internal/backend/optimizer"
)

var (
	ErrBuildInProgress   = errors.New("a build is already in progress")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrRunNotFound       = errors.New("run not found")
)

// Report is the outcome of one build run
type Report struct {
	RunID      string                 `json:"runId"`
	Status     string                 `json:"status"`
	StartedAt  time.Time              `json:"startedAt"`
	FinishedAt time.Time              `json:"finishedAt"`
	Summary    map[string]KindSummary `json:"summary"`
}

// RunDetails is a stored run together with its items
type RunDetails struct {
	Run   *database.Run    `json:"run"`
	Items []*database.Item `json:"items"`
}

type CoreService struct {
	config          *ServiceConfig
	databaseService database.DatabaseService
	downloader      download.ImageDownloader
	optimizer       *optimizer.Optimizer
	httpClient      *http.Client

	buildMutex sync.Mutex
}

func NewCoreService(config *ServiceConfig) (*CoreService, error) {
	imageOptimizer, err := newOptimizer(config.Optimizer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize optimizer: %w", err)
	}

	databaseService, err := getDatabaseService(config)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: config.HTTPTimeout}
	return &CoreService{
		config:          config,
		databaseService: databaseService,
		downloader:      download.NewDownloader(httpClient),
		optimizer:       imageOptimizer,
		httpClient:      httpClient,
	}, nil
}

func newOptimizer(config OptimizerConfig) (*optimizer.Optimizer, error) {
	return optimizer.New(imageprocessing.DefaultRegistry,
		toImageCommandConfigs(config.Commands),
		toImageCommandConfigs(config.Formats),
		config.FailFast)
}

func toImageCommandConfigs(configs []CommandConfig) []imageprocessing.CommandConfig {
	result := make([]imageprocessing.CommandConfig, 0, len(configs))
	for _, config := range configs {
		result = append(result, imageprocessing.CommandConfig{Name: config.Name, Params: config.Params})
	}
	return result
}

func getDatabaseService(config *ServiceConfig) (database.DatabaseService, error) {
	databaseService, err := database.NewDatabase(config.Ledger.Type, config.Ledger.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Ledger.Type)
	return databaseService, nil
}

// Build runs one complete build: bootstrap the output directories, fetch
// every selected collection and optimize the downloaded images. An empty
// selection builds all configured collections. Remote failures are recorded
// and do not fail the build; bootstrap failures and an aborted optimizer do.
func (service *CoreService) Build(ctx context.Context, collectionNames []string) (*Report, error) {
	if !service.buildMutex.TryLock() {
		return nil, ErrBuildInProgress
	}
	defer service.buildMutex.Unlock()

	collections, err := service.selectCollections(collectionNames)
	if err != nil {
		return nil, err
	}

	startedAt := time.Now()
	runID, err := service.databaseService.CreateRun(startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	slog.Info("build started", "run_id", runID, "build_dir", service.config.BuildDir)

	recorder := NewRunRecorder(runID, service.databaseService)
	buildErr := service.build(ctx, recorder, collections)

	status := database.RunStatusCompleted
	switch {
	case buildErr != nil:
		status = database.RunStatusFailed
	case recorder.Failures() > 0:
		status = database.RunStatusCompletedWithErrors
	}

	finishedAt := time.Now()
	if err := service.databaseService.FinishRun(runID, finishedAt, status); err != nil {
		slog.Warn("failed to finish run in ledger", "run_id", runID, "error", err)
	}

	recorder.LogSummary()
	slog.Info("build finished",
		"run_id", runID,
		"status", status,
		"duration_ms", finishedAt.Sub(startedAt).Milliseconds())

	report := &Report{
		RunID:      runID,
		Status:     status,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Summary:    recorder.Summary(),
	}
	return report, buildErr
}

func (service *CoreService) build(ctx context.Context, recorder *RunRecorder, collections []CollectionConfig) error {
	buildDir := service.config.BuildDir
	assetsDir := service.config.AssetsPath()

	for _, dir := range []string{buildDir, assetsDir} {
		if err := ensureDir(dir); err != nil {
			recorder.Record(KindDirectory, dir, err)
			return err
		}
		recorder.Record(KindDirectory, dir, nil)
	}

	fetcher := NewCollectionFetcher(buildDir, assetsDir, service.downloader, recorder, service.config.Concurrency)
	if service.config.SequentialCollections {
		for _, collection := range collections {
			if err := ctx.Err(); err != nil {
				return err
			}
			fetcher.FetchCollection(ctx, service.newClient(collection), collection)
		}
	} else {
		var wg sync.WaitGroup
		for _, collection := range collections {
			wg.Add(1)
			go func() {
				defer wg.Done()
				fetcher.FetchCollection(ctx, service.newClient(collection), collection)
			}()
		}
		wg.Wait()
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	result, err := service.optimizer.Optimize(ctx, assetsDir, assetsDir)
	if result != nil {
		for _, file := range result.Files {
			if file.Skipped {
				recorder.Skip(KindOptimize, file.Name, file.Reason)
				continue
			}
			recorder.Record(KindOptimize, file.Name, file.Err)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to optimize images: %w", err)
	}
	return nil
}

func ensureDir(path string) error {
	existed, err := bootstrap.EnsureDir(path)
	if err != nil {
		return fmt.Errorf("failed to prepare directory %s: %w", path, err)
	}
	if existed {
		slog.Info("directory already existed", "path", path)
	} else {
		slog.Info("directory created", "path", path)
	}
	return nil
}

func (service *CoreService) newClient(collection CollectionConfig) cms.Client {
	opts := []cms.Option{
		cms.WithHTTPClient(service.httpClient),
		cms.WithPageDelay(service.config.PageDelay),
	}
	if collection.BaseURL != "" {
		opts = append(opts, cms.WithBaseURL(collection.BaseURL))
	}
	return cms.NewClient(collection.ServiceDomain, collection.APIKey, opts...)
}

func (service *CoreService) selectCollections(names []string) ([]CollectionConfig, error) {
	if len(names) == 0 {
		return service.config.Collections, nil
	}

	collections := make([]CollectionConfig, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		collection, ok := service.config.Collection(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
		}
		collections = append(collections, collection)
	}
	return collections, nil
}

// ListRuns returns all recorded runs, newest first
func (service *CoreService) ListRuns() ([]*database.Run, error) {
	return service.databaseService.GetRuns()
}

// GetRun returns a run with its items or ErrRunNotFound
func (service *CoreService) GetRun(id string) (*RunDetails, error) {
	run, err := service.databaseService.GetRunByID(id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	items, err := service.databaseService.GetItems(id)
	if err != nil {
		return nil, err
	}
	return &RunDetails{Run: run, Items: items}, nil
}

func (service *CoreService) Close() error {
	return service.databaseService.Close()
}
