package vision

import (
	"context"
	"log/slog"

	dErrors "civid/pkg/domain-errors"
)

// URLSigner converts an opaque storage key into a time-limited URL the
// vision provider can fetch.
type URLSigner interface {
	SignedURL(key string) (string, error)
}

// Verifier orchestrates the per-submission vision pipeline: sign image URLs,
// extract document fields (cached), compare faces, index the selfie. Partial
// results are returned alongside the first error so the caller can keep
// whatever succeeded.
type Verifier struct {
	client     Client
	cache      ExtractionCache
	signer     URLSigner
	collection string
	logger     *slog.Logger
}

func NewVerifier(client Client, cache ExtractionCache, signer URLSigner, collection string, logger *slog.Logger) *Verifier {
	return &Verifier{
		client:     client,
		cache:      cache,
		signer:     signer,
		collection: collection,
		logger:     logger,
	}
}

// Verify runs the pipeline over the stored images. documentKey is required;
// selfieKey may be empty, in which case face comparison and indexing are
// skipped and Confidence stays nil.
func (v *Verifier) Verify(ctx context.Context, documentKey, selfieKey string) (*Result, error) {
	if documentKey == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "document image key is required")
	}

	result := &Result{}

	documentURL, err := v.signer.SignedURL(documentKey)
	if err != nil {
		return result, err
	}

	extraction, err := v.extract(ctx, documentKey, documentURL)
	if err != nil {
		return result, err
	}
	result.Extraction = extraction

	if selfieKey == "" {
		return result, nil
	}

	selfieURL, err := v.signer.SignedURL(selfieKey)
	if err != nil {
		return result, err
	}

	confidence, err := v.client.CompareFaces(ctx, documentURL, selfieURL)
	if err != nil {
		return result, err
	}
	result.Confidence = &confidence

	faceID, err := v.client.IndexFace(ctx, selfieURL, v.collection)
	if err != nil {
		// Indexing is for duplicate detection later; losing it does not
		// invalidate the confidence we already have.
		if v.logger != nil {
			v.logger.Warn("face indexing failed", "error", err)
		}
		return result, nil
	}
	result.FaceID = faceID
	return result, nil
}

func (v *Verifier) extract(ctx context.Context, documentKey, documentURL string) (*Extraction, error) {
	if v.cache != nil {
		if cached, ok := v.cache.Get(ctx, documentKey); ok {
			return cached, nil
		}
	}
	extraction, err := v.client.ExtractFields(ctx, documentURL)
	if err != nil {
		return nil, err
	}
	if v.cache != nil {
		v.cache.Set(ctx, documentKey, extraction)
	}
	return extraction, nil
}
