// Package vision talks to the external document and face recognition API.
// Results are advisory: a vision failure can flag an application for manual
// review but never fails a submission.
package vision

import (
	"context"

	"civid/pkg/domain"
)

// Extraction holds the fields the API read off a breeder document.
type Extraction struct {
	FullName       string `json:"full_name"`
	DateOfBirth    string `json:"date_of_birth"`
	DocumentNumber string `json:"document_number"`
	Nationality    string `json:"nationality"`
}

// Client is the raw API surface. Implementations carry their own timeouts;
// callers pass a request-scoped context on top.
type Client interface {
	// ExtractFields runs document OCR on the image at imageURL.
	ExtractFields(ctx context.Context, imageURL string) (*Extraction, error)
	// CompareFaces returns a 0-100 similarity confidence between the document
	// portrait and the live selfie.
	CompareFaces(ctx context.Context, documentURL, selfieURL string) (float64, error)
	// IndexFace registers the selfie in the named collection for future
	// duplicate detection and returns the provider's face identifier.
	IndexFace(ctx context.Context, imageURL, collection string) (domain.FaceID, error)
}

// Result is the combined advisory outcome attached to a submission.
type Result struct {
	Extraction *Extraction
	// Confidence is nil when face comparison did not run.
	Confidence *float64
	FaceID     domain.FaceID
}
