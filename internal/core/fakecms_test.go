package core

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const testAPIKey = "test-key"

// fakeCMS serves microCMS style list endpoints under /api/v1/ and images
// under /images/. Endpoints listed in failing answer with 500.
type fakeCMS struct {
	server *httptest.Server

	mu       sync.Mutex
	contents map[string][]json.RawMessage
	images   map[string][]byte
	failing  map[string]bool
}

func newFakeCMS(t *testing.T) *fakeCMS {
	t.Helper()
	f := &fakeCMS{
		contents: make(map[string][]json.RawMessage),
		images:   make(map[string][]byte),
		failing:  make(map[string]bool),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCMS) BaseURL() string {
	return f.server.URL + "/api/v1"
}

func (f *fakeCMS) ImageURL(name string) string {
	return f.server.URL + "/images/" + name
}

func (f *fakeCMS) SetContents(endpoint string, entries ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw := make([]json.RawMessage, 0, len(entries))
	for _, entry := range entries {
		raw = append(raw, json.RawMessage(entry))
	}
	f.contents[endpoint] = raw
}

func (f *fakeCMS) SetImage(name string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[name] = data
}

func (f *fakeCMS) Fail(endpoint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[endpoint] = true
}

func (f *fakeCMS) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if name, ok := strings.CutPrefix(r.URL.Path, "/images/"); ok {
		data, exists := f.images[name]
		if !exists {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
		return
	}

	endpoint, ok := strings.CutPrefix(r.URL.Path, "/api/v1/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if r.Header.Get("X-MICROCMS-API-KEY") != testAPIKey {
		http.Error(w, `{"message":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if f.failing[endpoint] {
		http.Error(w, `{"message":"Internal Server Error"}`, http.StatusInternalServerError)
		return
	}
	entries, exists := f.contents[endpoint]
	if !exists {
		http.NotFound(w, r)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	start := min(offset, len(entries))
	end := min(start+limit, len(entries))

	page := entries[start:end]
	if page == nil {
		page = []json.RawMessage{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"contents":   page,
		"totalCount": len(entries),
		"offset":     offset,
		"limit":      limit,
	})
}

func createTestPNG(t testing.TB, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / width), G: uint8(y * 255 / height), B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}
