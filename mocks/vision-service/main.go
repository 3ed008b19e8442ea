// Mock vision provider for local development and e2e tests. Implements the
// three endpoints civid calls: document field extraction, face comparison
// and face indexing. Behavior is deterministic per image URL, and "magic"
// URL substrings let tests steer responses.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort      = "8082"
	defaultAPIKey    = "vision-service-secret-key"
	defaultLatencyMs = "150"
)

var (
	apiKey    = getEnv("API_KEY", defaultAPIKey)
	latencyMs = getEnvInt("LATENCY_MS", defaultLatencyMs)
)

// Magic URL substrings for test control:
//
//	SERVERERR  -> 500 on any endpoint
//	BADIMAGE   -> 422 unprocessable (bad request, must not trip the breaker)
//	LOWCONF    -> compare returns confidence 42.0
//	HIGHCONF   -> compare returns confidence 99.0
//	MIDCONF    -> compare returns confidence 88.0
const (
	magicServerError = "SERVERERR"
	magicBadImage    = "BADIMAGE"
	magicLowConf     = "LOWCONF"
	magicHighConf    = "HIGHCONF"
	magicMidConf     = "MIDCONF"
)

type extractRequest struct {
	ImageURL string `json:"image_url"`
}

type extractResponse struct {
	FullName       string `json:"full_name"`
	DateOfBirth    string `json:"date_of_birth"`
	DocumentNumber string `json:"document_number"`
	Nationality    string `json:"nationality"`
}

type compareRequest struct {
	SourceURL string `json:"source_url"`
	TargetURL string `json:"target_url"`
}

type compareResponse struct {
	Confidence float64 `json:"confidence"`
}

type indexRequest struct {
	ImageURL   string `json:"image_url"`
	Collection string `json:"collection"`
}

type indexResponse struct {
	FaceID string `json:"face_id"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func main() {
	port := getEnv("PORT", defaultPort)

	http.HandleFunc("/health", handleHealth)
	http.HandleFunc("/v1/extract", guarded(handleExtract))
	http.HandleFunc("/v1/compare", guarded(handleCompare))
	http.HandleFunc("/v1/index", guarded(handleIndex))

	log.Printf("Mock Vision Service starting on port %s", port)
	log.Printf("API Key: %s", apiKey)
	log.Printf("Simulated latency: %dms", latencyMs)

	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatal(err)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "vision-service",
		"version": "1.0.0",
	})
}

// guarded applies the shared checks: latency, method, API key.
func guarded(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Duration(latencyMs) * time.Millisecond)
		log.Printf("Incoming request: %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)

		if r.Method != http.MethodPost {
			sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if key := r.Header.Get("X-API-Key"); key != apiKey {
			sendError(w, "Missing or invalid X-API-Key header", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ImageURL == "" {
		sendError(w, "image_url is required", http.StatusBadRequest)
		return
	}
	if handled := handleMagic(w, req.ImageURL); handled {
		return
	}

	resp := generateExtraction(req.ImageURL)
	sendJSON(w, resp)
	log.Printf("Extracted fields for %s -> %s", req.ImageURL, resp.FullName)
}

func handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.SourceURL == "" || req.TargetURL == "" {
		sendError(w, "source_url and target_url are required", http.StatusBadRequest)
		return
	}
	combined := req.SourceURL + req.TargetURL
	if handled := handleMagic(w, combined); handled {
		return
	}

	confidence := generateConfidence(combined)
	switch {
	case strings.Contains(combined, magicLowConf):
		confidence = 42.0
	case strings.Contains(combined, magicHighConf):
		confidence = 99.0
	case strings.Contains(combined, magicMidConf):
		confidence = 88.0
	}

	sendJSON(w, compareResponse{Confidence: confidence})
	log.Printf("Compared faces -> confidence %.1f", confidence)
}

func handleIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ImageURL == "" {
		sendError(w, "image_url is required", http.StatusBadRequest)
		return
	}
	if req.Collection == "" {
		sendError(w, "collection is required", http.StatusBadRequest)
		return
	}
	if handled := handleMagic(w, req.ImageURL); handled {
		return
	}

	hash := sha256.Sum256([]byte(req.Collection + "/" + req.ImageURL))
	faceID := "face-" + hex.EncodeToString(hash[:8])
	sendJSON(w, indexResponse{FaceID: faceID})
	log.Printf("Indexed face %s into %s", faceID, req.Collection)
}

func handleMagic(w http.ResponseWriter, url string) bool {
	switch {
	case strings.Contains(url, magicServerError):
		sendError(w, "Simulated provider outage", http.StatusInternalServerError)
		return true
	case strings.Contains(url, magicBadImage):
		sendError(w, "Image could not be processed", http.StatusUnprocessableEntity)
		return true
	}
	return false
}

// generateExtraction derives deterministic but pseudo-random document fields
// from the image URL, so repeated calls for the same image agree.
func generateExtraction(imageURL string) extractResponse {
	hash := sha256.Sum256([]byte(imageURL))
	hashInt := int(hash[0])

	firstNames := []string{"Alice", "Bob", "Carol", "David", "Emma", "Frank", "Grace", "Henry", "Isabel", "Jack"}
	lastNames := []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Rodriguez", "Martinez"}
	nationalities := []string{"USA", "GBR", "FRA", "DEU", "ESP", "ITA", "NLD", "SWE", "NOR", "DNK"}

	age := 18 + (hashInt % 62)
	birthYear := time.Now().Year() - age
	birthMonth := 1 + (hashInt % 12)
	birthDay := 1 + (hashInt % 28)

	return extractResponse{
		FullName:       fmt.Sprintf("%s %s", firstNames[hashInt%len(firstNames)], lastNames[(hashInt*3)%len(lastNames)]),
		DateOfBirth:    fmt.Sprintf("%04d-%02d-%02d", birthYear, birthMonth, birthDay),
		DocumentNumber: strings.ToUpper(hex.EncodeToString(hash[1:6])),
		Nationality:    nationalities[(hashInt*7)%len(nationalities)],
	}
}

// generateConfidence maps a URL pair to a stable confidence in [80, 100),
// biased high so default test flows pass the manual review threshold.
func generateConfidence(combined string) float64 {
	hash := sha256.Sum256([]byte(combined))
	return 80 + float64(int(hash[0])%200)/10
}

func sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	})
	log.Printf("Error response: %d - %s", code, message)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key, defaultValue string) int {
	value := getEnv(key, defaultValue)
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %s", key, defaultValue)
		intValue, _ = strconv.Atoi(defaultValue)
	}
	return intValue
}
