package core

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/jo-hoe/cmsbuild/internal/backend/cms"
	"github.com/jo-hoe/cmsbuild/internal/backend/database"
	"github.com/jo-hoe/cmsbuild/internal/backend/download"
)

func newTestFetcher(t *testing.T, concurrency Concurrency) (*CollectionFetcher, *RunRecorder, string, string) {
	t.Helper()
	buildDir := t.TempDir()
	assetsDir := filepath.Join(buildDir, "assets")
	if err := os.Mkdir(assetsDir, 0755); err != nil {
		t.Fatalf("failed to create assets dir: %v", err)
	}
	recorder := NewRunRecorder("test-run", nil)
	fetcher := NewCollectionFetcher(buildDir, assetsDir, download.NewDownloader(nil), recorder, concurrency)
	return fetcher, recorder, buildDir, assetsDir
}

func testCollection(endpoints ...string) CollectionConfig {
	return CollectionConfig{
		Name:          "feed",
		ServiceDomain: "test",
		APIKeyEnv:     "TEST_KEY",
		Endpoints:     endpoints,
		ImageField:    "thumbnail.url",
	}
}

func newTestClient(f *fakeCMS) cms.Client {
	return cms.NewClient("test", testAPIKey, cms.WithBaseURL(f.BaseURL()), cms.WithPageDelay(0))
}

func readJSON(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	var entries []map[string]any
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("failed to parse %s: %v", path, err)
	}
	return entries
}

func TestFetchCollection_WritesEntriesAndImages(t *testing.T) {
	server := newFakeCMS(t)
	server.SetImage("a.png", createTestPNG(t, 10, 10))
	server.SetImage("b.png", createTestPNG(t, 12, 8))

	newsEntries := []string{
		fmt.Sprintf(`{"id":"n1","title":"First","thumbnail":{"url":%q,"width":10}}`, server.ImageURL("a.png")),
		fmt.Sprintf(`{"id":"n2","title":"Second","tags":["x","y"],"thumbnail":{"url":%q}}`, server.ImageURL("b.png")),
	}
	server.SetContents("news", newsEntries...)
	server.SetContents("events")

	fetcher, recorder, buildDir, assetsDir := newTestFetcher(t, Concurrency{})
	fetcher.FetchCollection(context.Background(), newTestClient(server), testCollection("news", "events"))

	got := readJSON(t, filepath.Join(buildDir, "news.json"))
	var want []map[string]any
	for _, entry := range newsEntries {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(entry), &decoded); err != nil {
			t.Fatalf("bad fixture: %v", err)
		}
		want = append(want, decoded)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("news.json = %v, want %v", got, want)
	}

	events, err := os.ReadFile(filepath.Join(buildDir, "events.json"))
	if err != nil {
		t.Fatalf("events.json not written: %v", err)
	}
	if string(events) != "[]" {
		t.Errorf("expected empty array for events, got %s", events)
	}

	for _, name := range []string{"a.png", "b.png"} {
		if _, err := os.Stat(filepath.Join(assetsDir, name)); err != nil {
			t.Errorf("expected %s to be downloaded: %v", name, err)
		}
	}

	summary := recorder.Summary()
	if summary[KindEndpoint].OK != 2 || summary[KindImage].OK != 2 || recorder.Failures() != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestFetchCollection_MissingImageField(t *testing.T) {
	server := newFakeCMS(t)
	server.SetImage("a.png", createTestPNG(t, 10, 10))
	server.SetContents("news",
		`{"id":"n1","title":"no image"}`,
		fmt.Sprintf(`{"id":"n2","thumbnail":{"url":%q}}`, server.ImageURL("a.png")),
	)

	fetcher, recorder, buildDir, assetsDir := newTestFetcher(t, Concurrency{})
	fetcher.FetchCollection(context.Background(), newTestClient(server), testCollection("news"))

	entries := readJSON(t, filepath.Join(buildDir, "news.json"))
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if _, err := os.Stat(filepath.Join(assetsDir, "a.png")); err != nil {
		t.Errorf("expected sibling image to be downloaded: %v", err)
	}

	var failed []database.Item
	for _, item := range recorder.Items() {
		if item.Status == database.ItemStatusFailed {
			failed = append(failed, item)
		}
	}
	if len(failed) != 1 || failed[0].Kind != KindImage || failed[0].Name != "news/n1" {
		t.Errorf("expected one failed image item for news/n1, got %+v", failed)
	}
	if recorder.Summary()[KindEndpoint].OK != 1 {
		t.Error("expected endpoint to succeed despite missing image field")
	}
}

func TestFetchCollection_FailedDownloadDoesNotStopEndpoint(t *testing.T) {
	server := newFakeCMS(t)
	server.SetContents("news", fmt.Sprintf(`{"id":"n1","thumbnail":{"url":%q}}`, server.ImageURL("missing.png")))

	fetcher, recorder, buildDir, _ := newTestFetcher(t, Concurrency{Downloads: 1})
	fetcher.FetchCollection(context.Background(), newTestClient(server), testCollection("news"))

	if entries := readJSON(t, filepath.Join(buildDir, "news.json")); len(entries) != 1 {
		t.Errorf("expected 1 entry, got %d", len(entries))
	}
	if got := recorder.Summary()[KindImage]; got.Failed != 1 {
		t.Errorf("expected failed download to be recorded, got %+v", got)
	}
}

func TestFetchCollection_EndpointFailureIsIsolated(t *testing.T) {
	server := newFakeCMS(t)
	server.SetContents("news", `{"id":"n1","thumbnail":{"url":"http://127.0.0.1:0/x.png"}}`)
	server.Fail("events")

	fetcher, recorder, buildDir, _ := newTestFetcher(t, Concurrency{Endpoints: 1})
	fetcher.FetchCollection(context.Background(), newTestClient(server), testCollection("events", "news"))

	if _, err := os.Stat(filepath.Join(buildDir, "events.json")); !os.IsNotExist(err) {
		t.Errorf("expected events.json to be absent, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(buildDir, "news.json")); err != nil {
		t.Errorf("expected news.json to be written: %v", err)
	}

	summary := recorder.Summary()[KindEndpoint]
	if summary.OK != 1 || summary.Failed != 1 {
		t.Errorf("unexpected endpoint summary: %+v", summary)
	}
}

func TestFetchCollection_Unauthorized(t *testing.T) {
	server := newFakeCMS(t)
	server.SetContents("news")

	fetcher, recorder, buildDir, _ := newTestFetcher(t, Concurrency{})
	client := cms.NewClient("test", "wrong-key", cms.WithBaseURL(server.BaseURL()), cms.WithPageDelay(0))
	fetcher.FetchCollection(context.Background(), client, testCollection("news"))

	if _, err := os.Stat(filepath.Join(buildDir, "news.json")); !os.IsNotExist(err) {
		t.Errorf("expected news.json to be absent, got %v", err)
	}
	if recorder.Summary()[KindEndpoint].Failed != 1 {
		t.Error("expected endpoint failure to be recorded")
	}
}
