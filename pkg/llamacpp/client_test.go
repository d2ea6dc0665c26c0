package llamacpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSimpleQuery(t *testing.T) {
	var got ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"{\"scores\":{}}"}}]}`))
	}))
	defer server.Close()

	c, err := NewClient(server.URL + "/")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	reply, err := c.SimpleQuery(context.Background(), "llava", "score this", "aGVsbG8=")
	if err != nil {
		t.Fatalf("SimpleQuery failed: %v", err)
	}
	if reply != `{"scores":{}}` {
		t.Errorf("Unexpected reply %q", reply)
	}

	if got.Model != "llava" || got.Stream {
		t.Errorf("Unexpected request %+v", got)
	}
	parts, ok := got.Messages[0].Content.([]interface{})
	if !ok || len(parts) != 2 {
		t.Fatalf("Expected text and image parts, got %v", got.Messages[0].Content)
	}
	image := parts[1].(map[string]interface{})["image_url"].(map[string]interface{})
	if !strings.HasPrefix(image["url"].(string), "data:image/jpeg;base64,") {
		t.Errorf("Unexpected image url %v", image["url"])
	}
}

func TestSimpleQueryPartsReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":[{"type":"text","text":"ok"}]}}]}`))
	}))
	defer server.Close()

	c, _ := NewClient(server.URL)
	reply, err := c.SimpleQuery(context.Background(), "m", "p", "")
	if err != nil {
		t.Fatalf("SimpleQuery failed: %v", err)
	}
	if reply != "ok" {
		t.Errorf("Expected ok, got %q", reply)
	}
}

func TestSimpleQueryServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c, _ := NewClient(server.URL)
	_, err := c.SimpleQuery(context.Background(), "m", "p", "")
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("Expected status 503 error, got %v", err)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient("localhost:8080"); err == nil {
		t.Error("Expected error for URL without scheme")
	}
}
