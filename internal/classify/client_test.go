package classify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	_, err := NewClient(Config{})
	if err == nil {
		t.Error("Expected error for empty endpoint")
	}

	client, err := NewClient(Config{Endpoint: "http://localhost:9000/score"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.config.Timeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", client.config.Timeout)
	}
}

func TestClientClassify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
		}

		var prompts []string
		if err := json.Unmarshal([]byte(r.FormValue("prompts")), &prompts); err != nil {
			t.Errorf("Failed to decode prompts field: %v", err)
		}
		if len(prompts) != 2 || prompts[0] != "dog barking" {
			t.Errorf("Unexpected prompts: %v", prompts)
		}

		file, _, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("Missing audio file: %v", err)
		} else {
			file.Close()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Result{
			RawScores: map[string]float64{
				"dog barking": 0.72,
				"car engine":  -0.1,
			},
			Timing: Timing{InferenceMS: 42.0, TotalMS: 50.0},
		})
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	result, err := client.Classify(context.Background(), &Request{
		RequestID:   "test-1",
		WAV:         []byte("RIFF"),
		Prompts:     []string{"dog barking", "car engine"},
		SubmittedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	if result.RawScores["dog barking"] != 0.72 {
		t.Errorf("Expected score 0.72, got %f", result.RawScores["dog barking"])
	}

	stats := client.GetStats()
	if stats.TotalRequests != 1 || stats.SuccessRequests != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestClientClassifyEmptyPrompts(t *testing.T) {
	client, err := NewClient(Config{Endpoint: "http://localhost:9000/score"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Classify(context.Background(), &Request{RequestID: "x", WAV: []byte{0}})
	if err == nil {
		t.Error("Expected error for empty prompt list")
	}
}

func TestClientModelNotReady(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, _ := NewClient(Config{Endpoint: server.URL})
	_, err := client.Classify(context.Background(), &Request{
		RequestID: "x",
		WAV:       []byte{0},
		Prompts:   []string{"speech"},
	})
	if !errors.Is(err, ErrModelNotReady) {
		t.Errorf("Expected ErrModelNotReady, got %v", err)
	}
}

func TestClientDecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client, _ := NewClient(Config{Endpoint: server.URL})
	_, err := client.Classify(context.Background(), &Request{
		RequestID: "x",
		WAV:       []byte{0},
		Prompts:   []string{"speech"},
	})
	if !errors.Is(err, ErrDecode) {
		t.Errorf("Expected ErrDecode, got %v", err)
	}

	stats := client.GetStats()
	if stats.FailedRequests != 1 {
		t.Errorf("Expected 1 failed request, got %d", stats.FailedRequests)
	}
}

func TestClientMissingPromptScore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Result{
			RawScores: map[string]float64{"speech": 0.3},
		})
	}))
	defer server.Close()

	client, _ := NewClient(Config{Endpoint: server.URL})
	_, err := client.Classify(context.Background(), &Request{
		RequestID: "x",
		WAV:       []byte{0},
		Prompts:   []string{"speech", "music"},
	})
	if !errors.Is(err, ErrDecode) {
		t.Errorf("Expected ErrDecode for missing prompt score, got %v", err)
	}
}

func TestClientTransportError(t *testing.T) {
	client, _ := NewClient(Config{Endpoint: "http://127.0.0.1:1/score", Timeout: time.Second})
	_, err := client.Classify(context.Background(), &Request{
		RequestID: "x",
		WAV:       []byte{0},
		Prompts:   []string{"speech"},
	})
	if !errors.Is(err, ErrTransport) {
		t.Errorf("Expected ErrTransport, got %v", err)
	}
}
