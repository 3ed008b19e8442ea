package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "civid/pkg/domain-errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, "test-key", 2*time.Second, nil)
}

func TestExtractFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/extract", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))

		var req extractRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "http://blobs/doc.jpg", req.ImageURL)

		json.NewEncoder(w).Encode(Extraction{
			FullName:       "ADA OBI",
			DateOfBirth:    "1990-01-15",
			DocumentNumber: "P1234567",
			Nationality:    "NGA",
		})
	})

	ext, err := client.ExtractFields(context.Background(), "http://blobs/doc.jpg")
	require.NoError(t, err)
	assert.Equal(t, "ADA OBI", ext.FullName)
	assert.Equal(t, "P1234567", ext.DocumentNumber)
}

func TestCompareFaces(t *testing.T) {
	t.Run("returns confidence", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/compare", r.URL.Path)
			json.NewEncoder(w).Encode(compareResponse{Confidence: 93.4})
		})

		conf, err := client.CompareFaces(context.Background(), "http://a", "http://b")
		require.NoError(t, err)
		assert.Equal(t, 93.4, conf)
	})

	t.Run("rejects out of range confidence", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(compareResponse{Confidence: 140})
		})

		_, err := client.CompareFaces(context.Background(), "http://a", "http://b")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstream))
	})
}

func TestIndexFace(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req indexRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "civid-holders", req.Collection)
		json.NewEncoder(w).Encode(indexResponse{FaceID: "face-abc123"})
	})

	faceID, err := client.IndexFace(context.Background(), "http://selfie", "civid-holders")
	require.NoError(t, err)
	assert.Equal(t, "face-abc123", faceID.String())
}

func TestServerErrorsMapToUpstream(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	})

	_, err := client.ExtractFields(context.Background(), "http://doc")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstream))
}

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusBadGateway)
	})

	for i := 0; i < 5; i++ {
		_, err := client.ExtractFields(context.Background(), "http://doc")
		require.Error(t, err)
	}
	require.Equal(t, 5, calls)

	// Circuit now open and the probe window just started: calls are skipped
	// without touching the server.
	_, err := client.ExtractFields(context.Background(), "http://doc")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstream))
	assert.Equal(t, 5, calls)
}

func TestClientErrorsDoNotTripCircuit(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad image url", http.StatusBadRequest)
	})

	for i := 0; i < 10; i++ {
		_, err := client.ExtractFields(context.Background(), "http://doc")
		require.Error(t, err)
	}
	assert.Equal(t, 10, calls, "4xx responses must keep the circuit closed")
}
