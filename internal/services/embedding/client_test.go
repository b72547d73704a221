package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"hopper/internal/services"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{APIKey: "test-key", BaseURL: server.URL, Model: "test-embed"})
}

func TestEmbedReturnsVector(t *testing.T) {
	var gotBody embeddingRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1, 0.2}}},
		})
	})

	vector, err := client.Embed(context.Background(), "some post text")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vector) != 2 || vector[0] != 0.1 {
		t.Fatalf("unexpected vector %v", vector)
	}
	if gotBody.Model != "test-embed" || gotBody.Input != "some post text" {
		t.Errorf("unexpected request %+v", gotBody)
	}
}

func TestEmbedMarksServerErrorsUpstream(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})

	_, err := client.Embed(context.Background(), "text")
	if !errors.Is(err, services.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if !services.AbortsBatch(err) {
		t.Fatal("embedding outage should abort the batch")
	}
}

func TestEmbedRejectsEmptyTextAndMissingKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	if _, err := client.Embed(context.Background(), "  "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	keyless := NewClient(Config{Model: "m"})
	if _, err := keyless.Embed(context.Background(), "text"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestEmbedTreatsEmptyDataAsUpstream(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	})
	if _, err := client.Embed(context.Background(), "text"); !errors.Is(err, services.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}
