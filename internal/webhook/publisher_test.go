package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"contentforge/internal/infra"
)

func TestPost_DeliversJSONPayload(t *testing.T) {
	var received Payload
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewPublisher(5*time.Second, infra.NewLogger("test"))
	payload := Payload{Title: "Hello", Content: "World", ImageURL: "http://img/x.png"}
	if err := p.Post(context.Background(), server.URL, payload); err != nil {
		t.Fatalf("Post: %v", err)
	}

	if !strings.HasPrefix(contentType, "application/json") {
		t.Fatalf("expected json content type, got %q", contentType)
	}
	if received != payload {
		t.Fatalf("payload mismatch: got %+v", received)
	}
}

func TestPost_NonSuccessStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	p := NewPublisher(5*time.Second, infra.NewLogger("test"))
	err := p.Post(context.Background(), server.URL, Payload{Title: "x"})
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "upstream exploded") {
		t.Fatalf("expected status and body in error, got %v", err)
	}
}

func TestPost_EmptyURLIsError(t *testing.T) {
	p := NewPublisher(time.Second, infra.NewLogger("test"))
	if err := p.Post(context.Background(), "  ", Payload{}); err == nil {
		t.Fatal("expected error for empty url")
	}
}
