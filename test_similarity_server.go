package main

import (
	"encoding/json"
	"io"
	"log"
	"math"
	"net/http"
	"time"
)

type SimilarityResponse struct {
	RawScores   map[string]float64   `json:"raw_scores"`
	FrameScores map[string][]float64 `json:"frame_scores"`
	Timing      map[string]float64   `json:"timing"`
}

func scoreHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse multipart form
	err := r.ParseMultipartForm(64 << 20) // 64 MB
	if err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	requestID := r.FormValue("request_id")
	requestTimestamp := r.FormValue("request_timestamp")

	var prompts []string
	if err := json.Unmarshal([]byte(r.FormValue("prompts")), &prompts); err != nil || len(prompts) == 0 {
		http.Error(w, "Missing or malformed prompts field", http.StatusBadRequest)
		return
	}

	// Get audio file
	file, header, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	log.Printf("🎤 SIMILARITY REQUEST RECEIVED:")
	log.Printf("  Request ID: %s", requestID)
	log.Printf("  Submitted: %s", requestTimestamp)
	log.Printf("  Filename: %s", header.Filename)
	log.Printf("  Audio Size: %d bytes", len(audioData))
	log.Printf("  Prompts: %v", prompts)

	// Simulate inference time
	start := time.Now()
	time.Sleep(200 * time.Millisecond)

	// Deterministic fake scores: each prompt gets a stable value derived
	// from its text, plus a slow oscillation across 10 sub-frames.
	const subFrames = 10
	rawScores := make(map[string]float64, len(prompts))
	frameScores := make(map[string][]float64, len(prompts))
	for _, prompt := range prompts {
		base := promptScore(prompt)
		rawScores[prompt] = base

		frames := make([]float64, subFrames)
		for i := range frames {
			frames[i] = clamp01(base + 0.2*math.Sin(float64(i)/subFrames*2*math.Pi))
		}
		frameScores[prompt] = frames
	}

	inferenceMS := float64(time.Since(start).Milliseconds())
	response := SimilarityResponse{
		RawScores:   rawScores,
		FrameScores: frameScores,
		Timing: map[string]float64{
			"preprocess_ms": 5,
			"inference_ms":  inferenceMS,
			"total_ms":      inferenceMS + 5,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)

	log.Printf("✅ SCORES SENT: %v", rawScores)
	log.Println("---")
}

// promptScore hashes a prompt into a stable score in [-0.3, 0.9]
func promptScore(prompt string) float64 {
	var h uint32
	for _, c := range prompt {
		h = h*31 + uint32(c)
	}
	return -0.3 + 1.2*float64(h%1000)/1000
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func main() {
	http.HandleFunc("/score", scoreHandler)

	port := ":9000"
	log.Printf("🚀 Test Similarity Server starting on port %s", port)
	log.Printf("📡 Endpoint: http://localhost%s/score", port)
	log.Println("💡 Update your config to use: http://localhost:9000/score")

	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
