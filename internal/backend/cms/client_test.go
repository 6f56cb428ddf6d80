package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
)

// newListServer serves count entries for endpoint "news" the way microCMS pages them
func newListServer(t *testing.T, apiKey string, count int, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			requests.Add(1)
		}
		if r.Header.Get(apiKeyHeader) != apiKey {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"X-MICROCMS-API-KEY header is invalid."}`))
			return
		}
		if r.URL.Path != "/news" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		contents := []map[string]any{}
		for i := offset; i < count && i < offset+limit; i++ {
			contents = append(contents, map[string]any{
				"id":        fmt.Sprintf("entry-%d", i),
				"thumbnail": map[string]any{"url": fmt.Sprintf("https://images.example.com/%d.png", i)},
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"contents":   contents,
			"totalCount": count,
			"offset":     offset,
			"limit":      limit,
		})
	}))
}

func TestHTTPClient_GetAllContents_Pages(t *testing.T) {
	var requests atomic.Int32
	server := newListServer(t, "secret", 7, &requests)
	defer server.Close()

	client := NewClient("sto", "secret",
		WithBaseURL(server.URL),
		WithPageSize(3),
		WithPageDelay(0),
	)

	entries, err := client.GetAllContents(context.Background(), "news")
	if err != nil {
		t.Fatalf("GetAllContents failed: %v", err)
	}
	if len(entries) != 7 {
		t.Fatalf("Expected 7 entries, got %d", len(entries))
	}
	for i, entry := range entries {
		if entry.ID() != fmt.Sprintf("entry-%d", i) {
			t.Errorf("Entry %d has id %q, order not preserved", i, entry.ID())
		}
	}

	// one count request plus three pages
	if got := requests.Load(); got != 4 {
		t.Errorf("Expected 4 requests, got %d", got)
	}
}

func TestHTTPClient_GetAllContents_Empty(t *testing.T) {
	server := newListServer(t, "secret", 0, nil)
	defer server.Close()

	client := NewClient("sto", "secret", WithBaseURL(server.URL), WithPageDelay(0))
	entries, err := client.GetAllContents(context.Background(), "news")
	if err != nil {
		t.Fatalf("GetAllContents failed: %v", err)
	}
	if entries == nil {
		t.Fatal("Expected empty, non-nil slice")
	}

	out, err := json.Marshal(entries)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "[]" {
		t.Errorf("Expected [] for empty endpoint, got %s", out)
	}
}

func TestHTTPClient_GetAllContents_Unauthorized(t *testing.T) {
	server := newListServer(t, "secret", 3, nil)
	defer server.Close()

	client := NewClient("sto", "wrong", WithBaseURL(server.URL), WithPageDelay(0))
	_, err := client.GetAllContents(context.Background(), "news")
	if err == nil {
		t.Fatal("Expected error for invalid API key")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", apiErr.StatusCode)
	}
	if apiErr.Endpoint != "news" {
		t.Errorf("Expected endpoint news, got %q", apiErr.Endpoint)
	}
}

func TestHTTPClient_MissingAPIKey(t *testing.T) {
	client := NewClient("sto", "")
	_, err := client.GetAllContents(context.Background(), "news")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("Expected ErrMissingAPIKey, got %v", err)
	}
}

func TestHTTPClient_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	client := NewClient("sto", "secret", WithBaseURL(server.URL))
	if _, err := client.GetAllContents(context.Background(), "news"); err == nil {
		t.Fatal("Expected error for malformed response")
	}
}

func TestNewClient_DefaultBaseURL(t *testing.T) {
	client := NewClient("stoaffiliatesinfo", "key")
	if client.baseURL != "https://stoaffiliatesinfo.microcms.io/api/v1" {
		t.Errorf("Unexpected base URL %q", client.baseURL)
	}
	if client.pageSize != defaultPageSize {
		t.Errorf("Expected page size %d, got %d", defaultPageSize, client.pageSize)
	}
}
